package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

// newClient builds a go-openai client for an OpenAI-compatible endpoint. An empty baseURL keeps api.openai.com.
func newClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// probe verifies API availability via ListModels (free endpoint).
func probe(ctx context.Context, c *openai.Client) error {
	if _, err := c.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", classifyError("models", err))
	}
	return nil
}

// Error kinds used as metric labels.
const (
	kindTimeout     = "timeout"
	kindRateLimited = "rate_limited"
	kindAuth        = "auth"
	kindServer      = "server_error"
	kindAPI         = "api_error"
	kindEmpty       = "empty_response"
)

// errorKind buckets a go-openai error for metrics.
func errorKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return kindTimeout
	}
	status := 0
	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusTooManyRequests:
		return kindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return kindAuth
	case status >= http.StatusInternalServerError:
		return kindServer
	default:
		return kindAPI
	}
}

// classifyError extracts a human-readable error from the API response.
// Every error wraps domain.ErrProviderUnavailable: the callers fall back instead of failing the request.
func classifyError(api string, err error) error {
	wrap := domain.ErrProviderUnavailable

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s request: %w: %w", api, err, wrap)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w", api, reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", api, apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("%s request failed: %v: %w", api, err, wrap)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
