// Package embedding turns text into dense and sparse vectors for retrieval.
// Provider failures never surface to callers: they get a fallback vector and a flag.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/logger"
	"github.com/kailas-cloud/matchdex/internal/metrics"
)

// ProviderConfig bounds provider calls.
type ProviderConfig struct {
	Dimensions int
	Timeout    time.Duration
}

// DenseResult is a unit-norm vector, or the zero vector when Fallback is set.
type DenseResult struct {
	Vector   []float32
	Fallback bool
	Cause    error
}

// SparseResult holds positive term weights, or an empty map when Fallback is set.
type SparseResult struct {
	Vector   domain.SparseVector
	Fallback bool
	Cause    error
}

// Provider adapts the dense embedder chain and the sparse encoder.
type Provider struct {
	dense  domain.Embedder
	sparse domain.SparseEncoder
	cfg    ProviderConfig
	logger *zap.Logger
}

// NewProvider creates a provider. dense is usually the instruction-prefixed decorator chain.
func NewProvider(dense domain.Embedder, sparse domain.SparseEncoder, cfg ProviderConfig, logger *zap.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Provider{dense: dense, sparse: sparse, cfg: cfg, logger: logger}
}

// Dimensions returns the configured dense vector length.
func (p *Provider) Dimensions() int { return p.cfg.Dimensions }

// Dense embeds text. The error is non-nil only when ctx itself is done.
func (p *Provider) Dense(ctx context.Context, text string) (DenseResult, error) {
	vec, err := p.embedDense(ctx, text)
	if err == nil {
		return DenseResult{Vector: vec}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return DenseResult{}, ctxErr
	}
	p.fallback(ctx, domain.StageEmbedding, err)
	return DenseResult{Vector: domain.ZeroVector(p.cfg.Dimensions), Fallback: true, Cause: err}, nil
}

func (p *Provider) embedDense(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	res, err := p.dense.Embed(callCtx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
		}
		return nil, err
	}
	if len(res.Embedding) != p.cfg.Dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d",
			domain.ErrVectorDimMismatch, len(res.Embedding), p.cfg.Dimensions)
	}
	vec, ok := domain.Normalize(res.Embedding)
	if !ok {
		return nil, fmt.Errorf("%w: zero or non-finite norm", domain.ErrMalformedProviderResponse)
	}
	return vec, nil
}

// Sparse encodes text. The error is non-nil only when ctx itself is done.
func (p *Provider) Sparse(ctx context.Context, text string) (SparseResult, error) {
	vec, err := p.encodeSparse(ctx, text)
	if err == nil {
		return SparseResult{Vector: vec}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return SparseResult{}, ctxErr
	}
	p.fallback(ctx, domain.StageSparse, err)
	return SparseResult{Vector: domain.SparseVector{}, Fallback: true, Cause: err}, nil
}

func (p *Provider) encodeSparse(ctx context.Context, text string) (domain.SparseVector, error) {
	if p.sparse == nil {
		return nil, fmt.Errorf("%w: no sparse encoder configured", domain.ErrProviderUnavailable)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	vec, err := p.sparse.EncodeSparse(callCtx, text)
	if err != nil {
		return nil, err
	}
	return vec.Clean(), nil
}

// HealthCheck probes both encoders.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if hc, ok := p.dense.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("dense embedder: %w", err)
		}
	}
	if hc, ok := p.sparse.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("sparse encoder: %w", err)
		}
	}
	return nil
}

func (p *Provider) fallback(ctx context.Context, stage string, err error) {
	metrics.FallbackTotal.WithLabelValues(stage).Inc()
	logger.FromContextOr(ctx, p.logger).Warn("Embedding fallback",
		zap.String("stage", stage),
		zap.Error(err),
	)
}
