package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config enthält alle Konfigurationsparameter. Auflösungsreihenfolge
// (höchste Priorität zuerst): config.yaml → Umgebungsvariablen/.env →
// eingebaute Defaults. Operatoren verlassen sich in Produktion auf die
// Datei-Overrides, in CI auf die Umgebungs-Overrides.
type Config struct {
	DBHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DATABASE_PORT" default:"3306"`
	DBName     string `envconfig:"DATABASE_NAME" default:"scholarlink_ai"`
	DBUser     string `envconfig:"DATABASE_USER" default:"root"`
	DBPassword string `envconfig:"DATABASE_PASSWORD" default:""`
	DBCharset  string `envconfig:"DATABASE_CHARSET" default:"utf8mb4"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"3001"`

	OpenAIAPIKey         string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL        string `envconfig:"OPENAI_API_BASE"`
	OpenAIChatModel      string `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-4o-mini"`
	OpenAIEmbeddingModel string `envconfig:"OPENAI_EMBEDDING_MODEL" default:"text-embedding-3-small"`
	OpenAITimeout        int    `envconfig:"OPENAI_TIMEOUT" default:"60"`
	BlogLanguage         string `envconfig:"BLOG_LANGUAGE" default:"zh"`

	ProxyURL string `envconfig:"HTTPS_PROXY"`

	ArxivBaseURL   string        `envconfig:"ARXIV_BASE_URL" default:"https://export.arxiv.org/api/query"`
	ArxivQuery     string        `envconfig:"ARXIV_QUERY" default:"cat:cs.*"`
	ArxivPageSize  int           `envconfig:"ARXIV_PAGE_SIZE" default:"100"`
	ArxivPaceDelay time.Duration `envconfig:"ARXIV_PACE_DELAY" default:"3s"`

	// Optionales S3-Archiv für generierte Blog-Artikel; leer lassen,
	// um die Archivierung zu deaktivieren.
	S3Key    string `envconfig:"BLOG_S3_KEY"`
	S3Secret string `envconfig:"BLOG_S3_SECRET"`
	S3URL    string `envconfig:"BLOG_S3_URL"`
	S3Region string `envconfig:"BLOG_S3_REGION"`
	S3Bucket string `envconfig:"BLOG_S3_BUCKET"`

	ConfigFile string `envconfig:"CONFIG_FILE" default:"config.yaml"`
}

// fileConfig bildet die config.yaml ab. Pointer unterscheiden "nicht
// gesetzt" von leeren Werten, damit die Datei nur gesetzte Schlüssel
// überschreibt.
type fileConfig struct {
	Database struct {
		Host     *string `yaml:"host"`
		Port     *int    `yaml:"port"`
		Name     *string `yaml:"name"`
		User     *string `yaml:"user"`
		Password *string `yaml:"password"`
		Charset  *string `yaml:"charset"`
	} `yaml:"database"`
	OpenAI struct {
		APIKey         *string `yaml:"api_key"`
		BaseURL        *string `yaml:"base_url"`
		ChatModel      *string `yaml:"chat_model"`
		EmbeddingModel *string `yaml:"embedding_model"`
		Timeout        *int    `yaml:"timeout"`
		Language       *string `yaml:"language"`
	} `yaml:"openai"`
	SecretKey struct {
		OpenAIAPI *string `yaml:"openai_api"`
	} `yaml:"secret_key"`
	Proxy struct {
		Enable *bool   `yaml:"enable"`
		URL    *string `yaml:"url"`
		Host   *string `yaml:"host"`
		Port   *int    `yaml:"port"`
		Scheme *string `yaml:"scheme"`
	} `yaml:"proxy"`
	Server struct {
		Port *string `yaml:"port"`
	} `yaml:"server"`
}

// Load lädt die Konfiguration: erst .env und Umgebungsvariablen über den
// Defaults, danach die YAML-Datei als oberste Schicht.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.applyFile(c.ConfigFile); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyFile überlagert gesetzte Schlüssel aus der YAML-Datei. Eine fehlende
// Datei ist kein Fehler.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("config.yaml parsen: %w", err)
	}

	setString(&c.DBHost, fc.Database.Host)
	setInt(&c.DBPort, fc.Database.Port)
	setString(&c.DBName, fc.Database.Name)
	setString(&c.DBUser, fc.Database.User)
	setString(&c.DBPassword, fc.Database.Password)
	setString(&c.DBCharset, fc.Database.Charset)

	setString(&c.OpenAIAPIKey, fc.OpenAI.APIKey)
	setString(&c.OpenAIBaseURL, fc.OpenAI.BaseURL)
	setString(&c.OpenAIChatModel, fc.OpenAI.ChatModel)
	setString(&c.OpenAIEmbeddingModel, fc.OpenAI.EmbeddingModel)
	setInt(&c.OpenAITimeout, fc.OpenAI.Timeout)
	setString(&c.BlogLanguage, fc.OpenAI.Language)
	// secret_key.openai_api hat Vorrang vor openai.api_key
	setString(&c.OpenAIAPIKey, fc.SecretKey.OpenAIAPI)

	setString(&c.HTTPPort, fc.Server.Port)

	if fc.Proxy.Enable != nil && !*fc.Proxy.Enable {
		c.ProxyURL = ""
	} else if fc.Proxy.URL != nil && *fc.Proxy.URL != "" {
		c.ProxyURL = *fc.Proxy.URL
	} else if fc.Proxy.Host != nil && fc.Proxy.Port != nil {
		scheme := "http"
		if fc.Proxy.Scheme != nil && *fc.Proxy.Scheme != "" {
			scheme = *fc.Proxy.Scheme
		}
		c.ProxyURL = fmt.Sprintf("%s://%s:%d", scheme, *fc.Proxy.Host, *fc.Proxy.Port)
	}

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// DSN gibt den Data Source Name für die MySQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBCharset)
}

// ServerDSN gibt den DSN ohne Datenbankname zurück, z. B. für CREATE DATABASE.
func (c *Config) ServerDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?charset=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBCharset)
}

// S3Configured meldet, ob das Blog-Archiv vollständig konfiguriert ist.
func (c *Config) S3Configured() bool {
	return c.S3Key != "" && c.S3Secret != "" && c.S3URL != "" && c.S3Region != "" && c.S3Bucket != ""
}
