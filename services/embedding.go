package services

import (
	"context"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"scholarlink/apperr"
	"scholarlink/config"
)

// embedBatchSize begrenzt die Eingaben pro Embedding-Request.
const embedBatchSize = 128

// EmbeddingService berechnet normalisierte Text-Embeddings über die
// OpenAI-API. Alle zurückgegebenen Vektoren sind L2-normalisiert, damit
// Cosine-Ähnlichkeit zum Skalarprodukt degeneriert.
type EmbeddingService struct {
	Config *config.Config
	Logger *zap.Logger

	client *openai.Client
}

func NewEmbeddingService(cfg *config.Config, logger *zap.Logger) (*EmbeddingService, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY fehlt: in config.yaml oder .env konfigurieren")
	}
	apiCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		apiCfg.BaseURL = cfg.OpenAIBaseURL
	}
	return &EmbeddingService{
		Config: cfg,
		Logger: logger,
		client: openai.NewClientWithConfig(apiCfg),
	}, nil
}

// Embed berechnet für jeden Text ein normalisiertes Embedding. Die
// Reihenfolge der Ergebnisse entspricht der Reihenfolge der Eingaben.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(s.Config.OpenAIEmbeddingModel),
			Input: texts[start:end],
		})
		if err != nil {
			return nil, apperr.NewUpstream("embeddings berechnen", err)
		}
		if len(resp.Data) != end-start {
			return nil, apperr.NewUpstream(
				fmt.Sprintf("embedding-antwort unvollständig: %d statt %d vektoren", len(resp.Data), end-start), nil)
		}
		for _, d := range resp.Data {
			vectors = append(vectors, normalize(d.Embedding))
		}
	}
	return vectors, nil
}

// EmbedOne ist die Einzeltext-Variante von Embed.
func (s *EmbeddingService) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// normalize skaliert den Vektor auf Länge 1. Der Nullvektor bleibt
// unverändert.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// CosineSimilarity berechnet die Cosine-Ähnlichkeit zweier Vektoren.
// Unterschiedliche Längen oder Nullvektoren ergeben 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
