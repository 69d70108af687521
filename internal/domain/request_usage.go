package domain

import (
	"context"
	"sync"
)

type requestUsageKey struct{}

// RequestUsage counts provider work done for one API request. A chat search embeds
// and calls the LLM from several goroutines, so the counters are guarded.
type RequestUsage struct {
	mu              sync.Mutex
	embeddingTokens int
	embeddingCalls  int
	completions     int
}

// WithRequestUsage returns a context carrying a fresh usage collector.
func WithRequestUsage(ctx context.Context) (context.Context, *RequestUsage) {
	u := &RequestUsage{}
	return context.WithValue(ctx, requestUsageKey{}, u), u
}

// RequestUsageFrom returns the collector in ctx, or nil. Methods on a nil collector are no-ops.
func RequestUsageFrom(ctx context.Context) *RequestUsage {
	u, _ := ctx.Value(requestUsageKey{}).(*RequestUsage)
	return u
}

// AddEmbedding records one embedding call. Cache hits count as calls with zero tokens.
func (u *RequestUsage) AddEmbedding(tokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.embeddingCalls++
	u.embeddingTokens += tokens
	u.mu.Unlock()
}

// AddCompletion records one LLM completion that reached the provider.
func (u *RequestUsage) AddCompletion() {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.completions++
	u.mu.Unlock()
}

// Embedding returns the embedding token total and call count.
func (u *RequestUsage) Embedding() (tokens, calls int) {
	if u == nil {
		return 0, 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.embeddingTokens, u.embeddingCalls
}

// Completions returns the number of LLM completions.
func (u *RequestUsage) Completions() int {
	if u == nil {
		return 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.completions
}
