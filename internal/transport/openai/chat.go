package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

// ChatConfig holds chat completion provider settings.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// Completer calls an OpenAI-compatible chat completions endpoint.
type Completer struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewCompleter creates a chat completion client.
func NewCompleter(cfg *ChatConfig) *Completer {
	return &Completer{
		client: newClient(cfg.APIKey, cfg.BaseURL),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Complete implements domain.Completer. The caller bounds the call with ctx.
func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", classifyError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion: %w", domain.ErrMalformedProviderResponse)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("Chat completion received",
		zap.String("model", c.model),
		zap.Int("content_length", len(content)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return content, nil
}

// HealthCheck probes the models endpoint.
func (c *Completer) HealthCheck(ctx context.Context) error {
	return probe(ctx, c.client)
}
