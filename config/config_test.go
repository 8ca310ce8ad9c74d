package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, 3306, cfg.DBPort)
	assert.Equal(t, "scholarlink_ai", cfg.DBName)
	assert.Equal(t, "root", cfg.DBUser)
	assert.Equal(t, "utf8mb4", cfg.DBCharset)
	assert.Equal(t, "3001", cfg.HTTPPort)
	assert.Equal(t, "cat:cs.*", cfg.ArxivQuery)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("DATABASE_PORT", "3307")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, 3307, cfg.DBPort)
}

func TestFileOverridesEnv(t *testing.T) {
	path := writeConfigFile(t, `
database:
  host: file-host
  name: file_db
openai:
  chat_model: gpt-4o
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DATABASE_HOST", "env-host")
	t.Setenv("DATABASE_PASSWORD", "env-secret")

	cfg, err := Load()
	require.NoError(t, err)

	// Datei gewinnt, wo sie Schlüssel setzt
	assert.Equal(t, "file-host", cfg.DBHost)
	assert.Equal(t, "file_db", cfg.DBName)
	assert.Equal(t, "gpt-4o", cfg.OpenAIChatModel)
	// Env bleibt gültig für nicht gesetzte Schlüssel
	assert.Equal(t, "env-secret", cfg.DBPassword)
}

func TestSecretKeySectionWinsForAPIKey(t *testing.T) {
	path := writeConfigFile(t, `
openai:
  api_key: from-openai-section
secret_key:
  openai_api: from-secret-section
`)
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-secret-section", cfg.OpenAIAPIKey)
}

func TestProxyResolution(t *testing.T) {
	path := writeConfigFile(t, `
proxy:
  host: 127.0.0.1
  port: 7890
`)
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:7890", cfg.ProxyURL)
}

func TestProxyDisabledClearsEnv(t *testing.T) {
	path := writeConfigFile(t, `
proxy:
  enable: false
  url: http://127.0.0.1:7890
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTPS_PROXY", "http://env-proxy:3128")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.ProxyURL)
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		DBHost: "localhost", DBPort: 3306, DBName: "scholarlink_ai",
		DBUser: "root", DBPassword: "pw", DBCharset: "utf8mb4",
	}
	assert.Equal(t,
		"root:pw@tcp(localhost:3306)/scholarlink_ai?charset=utf8mb4&parseTime=true&loc=UTC",
		cfg.DSN())
	assert.Equal(t, "root:pw@tcp(localhost:3306)/?charset=utf8mb4", cfg.ServerDSN())
}

func TestS3Configured(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.S3Configured())
	cfg.S3Key, cfg.S3Secret, cfg.S3URL, cfg.S3Region, cfg.S3Bucket =
		"k", "s", "https://s3.example.com", "eu-central-1", "blogs"
	assert.True(t, cfg.S3Configured())
}
