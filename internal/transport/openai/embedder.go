package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/metrics"
)

// Config holds the dense embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	User       string
	Provider   string
	// Purpose labels metrics: metrics.PurposeProfile or metrics.PurposeQuery.
	Purpose string
	Logger  *zap.Logger
}

// Embedder embeds profile and query text through an OpenAI-compatible /embeddings endpoint.
// It returns the raw vector; dimension checks and normalization belong to the embedding Provider.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	purpose    string
	logger     *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	return &Embedder{
		client:     newClient(cfg.APIKey, cfg.BaseURL),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   cfg.Provider,
		purpose:    cfg.Purpose,
		logger:     cfg.Logger,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		e.failed(errorKind(err))
		return domain.EmbeddingResult{}, classifyError("embedding", err)
	}

	vec := firstEmbedding(resp.Data)
	if len(vec) == 0 {
		e.failed(kindEmpty)
		return domain.EmbeddingResult{}, fmt.Errorf("embedding response without vector: %w",
			domain.ErrMalformedProviderResponse)
	}

	model := string(e.model)
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, e.purpose, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.purpose).Observe(time.Since(start).Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, e.purpose).Add(float64(resp.Usage.TotalTokens))
	}

	return domain.EmbeddingResult{
		Embedding:    vec,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck probes the models endpoint.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	return probe(ctx, e.client)
}

func (e *Embedder) failed(kind string) {
	model := string(e.model)
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, e.purpose, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.purpose, kind).Inc()
	e.logger.Debug("Embedding request failed",
		zap.String("model", model),
		zap.String("purpose", e.purpose),
		zap.String("kind", kind),
	)
}

// firstEmbedding picks the vector for input 0. Some providers do not keep response order.
func firstEmbedding(data []openai.Embedding) []float32 {
	for _, d := range data {
		if d.Index == 0 {
			return d.Embedding
		}
	}
	return nil
}
