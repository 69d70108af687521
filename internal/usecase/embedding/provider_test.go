package embedding

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

type mockSparse struct {
	vec domain.SparseVector
	err error
}

func (m *mockSparse) EncodeSparse(ctx context.Context, _ string) (domain.SparseVector, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

type slowEmbedder struct{}

func (slowEmbedder) Embed(ctx context.Context, _ string) (domain.EmbeddingResult, error) {
	<-ctx.Done()
	return domain.EmbeddingResult{}, ctx.Err()
}

func newProvider(dense domain.Embedder, sparse domain.SparseEncoder) *Provider {
	return NewProvider(dense, sparse, ProviderConfig{Dimensions: 3, Timeout: time.Second}, zap.NewNop())
}

func TestDense_Normalizes(t *testing.T) {
	p := newProvider(&mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{3, 0, 4}}}, nil)

	res, err := p.Dense(context.Background(), "go developer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Fallback {
		t.Fatal("unexpected fallback")
	}
	if math.Abs(domain.L2Norm(res.Vector)-1) > 1e-6 {
		t.Errorf("expected unit norm, got %v", domain.L2Norm(res.Vector))
	}
	if math.Abs(float64(res.Vector[0])-0.6) > 1e-6 {
		t.Errorf("unexpected vector %v", res.Vector)
	}
}

func TestDense_Deterministic(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2, 2}}}
	p := newProvider(inner, nil)

	first, err := p.Dense(context.Background(), "senior go engineer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.Dense(context.Background(), "senior go engineer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Fallback || second.Fallback {
		t.Fatal("unexpected fallback")
	}
	if !slices.Equal(first.Vector, second.Vector) {
		t.Errorf("same text embedded differently: %v vs %v", first.Vector, second.Vector)
	}
	for _, v := range [][]float32{first.Vector, second.Vector} {
		if math.Abs(domain.L2Norm(v)-1) > 1e-6 {
			t.Errorf("expected unit norm, got %v", domain.L2Norm(v))
		}
	}
	if !slices.Equal(inner.result.Embedding, []float32{1, 2, 2}) {
		t.Errorf("provider output mutated: %v", inner.result.Embedding)
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestDense_Fallbacks(t *testing.T) {
	tests := []struct {
		name  string
		inner domain.Embedder
		text  string
		cause error
	}{
		{"provider error", &mockEmbedder{err: domain.ErrProviderUnavailable}, "x", domain.ErrProviderUnavailable},
		{"quota", &mockEmbedder{err: domain.ErrEmbeddingQuotaExceeded}, "x", domain.ErrEmbeddingQuotaExceeded},
		{"dimension mismatch", &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2}}}, "x",
			domain.ErrVectorDimMismatch},
		{"zero norm", &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0, 0, 0}}}, "x",
			domain.ErrMalformedProviderResponse},
		{"nan", &mockEmbedder{result: domain.EmbeddingResult{
			Embedding: []float32{float32(math.NaN()), 0, 1}}}, "x", domain.ErrMalformedProviderResponse},
		{"empty text", &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}}, "  ",
			domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(tt.inner, nil)
			res, err := p.Dense(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("fallback must not return an error, got %v", err)
			}
			if !res.Fallback {
				t.Fatal("expected fallback")
			}
			if len(res.Vector) != 3 || !domain.IsZero(res.Vector) {
				t.Errorf("expected zero vector of len 3, got %v", res.Vector)
			}
			if !errors.Is(res.Cause, tt.cause) {
				t.Errorf("cause = %v, want %v", res.Cause, tt.cause)
			}
		})
	}
}

func TestDense_TimeoutFallsBack(t *testing.T) {
	p := NewProvider(slowEmbedder{}, nil, ProviderConfig{Dimensions: 3, Timeout: 10 * time.Millisecond}, zap.NewNop())

	res, err := p.Dense(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Fallback || !errors.Is(res.Cause, domain.ErrProviderUnavailable) {
		t.Errorf("expected provider-unavailable fallback, got %+v", res)
	}
}

func TestDense_CancelledContextReturnsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newProvider(slowEmbedder{}, nil)

	if _, err := p.Dense(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSparse_DropsInvalidWeights(t *testing.T) {
	p := newProvider(&mockEmbedder{}, &mockSparse{vec: domain.SparseVector{
		1: 0.5, 2: 0, 3: -1, 4: float32(math.NaN()), 5: 2,
	}})

	res, err := p.Sparse(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Fallback || len(res.Vector) != 2 || res.Vector[1] != 0.5 || res.Vector[5] != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSparse_FallbackOnError(t *testing.T) {
	p := newProvider(&mockEmbedder{}, &mockSparse{err: domain.ErrProviderUnavailable})

	res, err := p.Sparse(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Fallback || res.Vector == nil || len(res.Vector) != 0 {
		t.Errorf("expected empty fallback map, got %+v", res)
	}
}

func TestSparse_NoEncoderFallsBack(t *testing.T) {
	res, err := newProvider(&mockEmbedder{}, nil).Sparse(context.Background(), "x")
	if err != nil || !res.Fallback {
		t.Errorf("expected fallback, got %+v, %v", res, err)
	}
}

type healthyEmbedder struct {
	mockEmbedder
	err error
}

func (h *healthyEmbedder) HealthCheck(context.Context) error { return h.err }

func TestProvider_HealthCheck(t *testing.T) {
	down := errors.New("down")
	p := newProvider(&healthyEmbedder{err: down}, nil)
	if err := p.HealthCheck(context.Background()); !errors.Is(err, down) {
		t.Errorf("expected dense health error, got %v", err)
	}
	p = newProvider(&healthyEmbedder{}, &mockSparse{})
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
