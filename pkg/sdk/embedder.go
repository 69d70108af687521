package matchdex

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

// Embedder converts text to dense vector embeddings.
// Without one, feeds fall back to random unseen users.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Message is one chat turn.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// Completer is a chat-completion LLM. Without one, search runs on the
// heuristic fallbacks: search intent, raw query, naive keywords, vector order.
type Completer interface {
	Complete(ctx context.Context, messages []Message, temperature float32, maxTokens int) (string, error)
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// noopEmbedder fails every call, which sends the provider down its zero-vector fallback.
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, fmt.Errorf(
		"matchdex: embedder not configured (use WithEmbedder): %w", domain.ErrProviderUnavailable,
	)
}

// completerAdapter wraps public Completer to satisfy internal domain.Completer.
type completerAdapter struct {
	inner Completer
}

func (a *completerAdapter) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	msgs := make([]Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = Message{Role: m.Role, Content: m.Content}
	}
	out, err := a.inner.Complete(ctx, msgs, req.Temperature, req.MaxTokens)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return out, nil
}
