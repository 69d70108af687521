package openai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), kindTimeout},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, kindRateLimited},
		{"unauthorized", &openai.RequestError{HTTPStatusCode: 401}, kindAuth},
		{"upstream 503", &openai.RequestError{HTTPStatusCode: 503}, kindServer},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, kindAPI},
		{"transport", errors.New("connection refused"), kindAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorKind(tt.err); got != tt.want {
				t.Errorf("errorKind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyError_WrapsProviderUnavailable(t *testing.T) {
	errs := []error{
		context.Canceled,
		&openai.RequestError{HTTPStatusCode: 502, Body: []byte(`{"detail":"bad gateway"}`)},
		&openai.APIError{HTTPStatusCode: 429, Message: "rate limit"},
		errors.New("eof"),
	}
	for _, in := range errs {
		if err := classifyError("embedding", in); !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Errorf("classifyError(%v) = %v, want ErrProviderUnavailable", in, err)
		}
	}
}

func TestClassifyError_UsesDetail(t *testing.T) {
	err := classifyError("chat", &openai.RequestError{HTTPStatusCode: 404, Body: []byte(`{"detail":"model not found"}`)})
	if got := err.Error(); got != "chat API error 404: model not found: provider unavailable" {
		t.Errorf("error = %q", got)
	}
}

func TestExtractDetail(t *testing.T) {
	if got := extractDetail([]byte(`{"detail":"model not found"}`)); got != "model not found" {
		t.Errorf("unexpected detail %q", got)
	}
	if got := extractDetail([]byte(`not json`)); got != "" {
		t.Errorf("expected empty detail, got %q", got)
	}
}

func TestFirstEmbedding_ByIndex(t *testing.T) {
	data := []openai.Embedding{
		{Index: 1, Embedding: []float32{9}},
		{Index: 0, Embedding: []float32{1, 2}},
	}
	if got := firstEmbedding(data); len(got) != 2 || got[0] != 1 {
		t.Errorf("firstEmbedding = %v", got)
	}
	if got := firstEmbedding(nil); got != nil {
		t.Errorf("firstEmbedding(nil) = %v", got)
	}
}
