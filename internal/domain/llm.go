package domain

import "context"

// Chat roles understood by OpenAI-compatible providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to the LLM provider.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is a single bounded text completion.
type CompletionRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Completer is the LLM provider contract: complete(messages, temperature, max_tokens) -> text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
