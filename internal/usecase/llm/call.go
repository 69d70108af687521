package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/domain/llmjson"
	"github.com/kailas-cloud/matchdex/internal/logger"
	"github.com/kailas-cloud/matchdex/internal/metrics"
)

// Call outcome labels for metrics.LLMRequestsTotal.
const (
	statusOK        = "ok"
	statusError     = "error"
	statusTimeout   = "timeout"
	statusMalformed = "malformed"
	statusOpen      = "open"
	statusCanceled  = "canceled"
)

// Caller issues one bounded completion per call with no retries.
type Caller struct {
	completer domain.Completer
	timeout   time.Duration
	params    Params
}

// Params are the sampling settings applied to every call.
type Params struct {
	Temperature float32
	MaxTokens   int
}

// NewCaller creates a Caller. A nil completer makes every call fail as unavailable.
func NewCaller(c domain.Completer, timeout time.Duration, params Params) *Caller {
	return &Caller{completer: c, timeout: timeout, params: params}
}

// Text runs a completion for the named call site and returns the raw reply.
// Errors wrap ErrProviderUnavailable unless the caller's ctx is done, in which case ctx.Err() is returned.
func (c *Caller) Text(ctx context.Context, call string, msgs []domain.Message) (string, error) {
	if c == nil || c.completer == nil {
		metrics.LLMRequestsTotal.WithLabelValues(call, statusError).Inc()
		return "", fmt.Errorf("%w: no LLM provider configured", domain.ErrProviderUnavailable)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.completer.Complete(callCtx, domain.CompletionRequest{
		Messages:    msgs,
		Temperature: c.params.Temperature,
		MaxTokens:   c.params.MaxTokens,
	})
	metrics.LLMRequestDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	domain.RequestUsageFrom(ctx).AddCompletion()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.LLMRequestsTotal.WithLabelValues(call, statusCanceled).Inc()
			return "", ctxErr
		}
		metrics.LLMRequestsTotal.WithLabelValues(call, failureStatus(callCtx, err)).Inc()
		if errors.Is(err, domain.ErrProviderUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, call, err)
	}
	metrics.LLMRequestsTotal.WithLabelValues(call, statusOK).Inc()
	return out, nil
}

// JSON runs a completion and strictly decodes the reply into T.
func JSON[T any](ctx context.Context, c *Caller, call string, msgs []domain.Message) (T, error) {
	raw, err := c.Text(ctx, call, msgs)
	if err != nil {
		var zero T
		return zero, err
	}
	out, err := llmjson.Decode[T](raw)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(call, statusMalformed).Inc()
		logger.FromContextOr(ctx, zap.NewNop()).Debug("Malformed LLM reply",
			zap.String("call", call),
			zap.String("reply", truncate(llmjson.Compact(raw), 300)),
		)
		return out, err //nolint:wrapcheck // already wraps ErrMalformedProviderResponse
	}
	return out, nil
}

func failureStatus(callCtx context.Context, err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return statusOpen
	case errors.Is(callCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return statusTimeout
	default:
		return statusError
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
