package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewEmbeddingServiceRequiresAPIKey(t *testing.T) {
	cfg := testBlogConfig()
	cfg.OpenAIAPIKey = ""

	_, err := NewEmbeddingService(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	v := normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	assert.Equal(t, v, normalize(v))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identisch", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"entgegengesetzt", []float32{1, 0}, []float32{-1, 0}, -1},
		{"diagonal", []float32{1, 1}, []float32{1, 0}, 1 / math.Sqrt2},
		{"längen-mismatch", []float32{1, 0}, []float32{1}, 0},
		{"nullvektor", []float32{0, 0}, []float32{1, 0}, 0},
		{"leer", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineSimilarityScaleInvariant(t *testing.T) {
	a := []float32{0.2, 0.5, 0.9}
	scaled := []float32{0.4, 1.0, 1.8}
	assert.InDelta(t, 1.0, CosineSimilarity(a, scaled), 1e-6)
}
