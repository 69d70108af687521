// Package llm guards the chat completion provider with a circuit breaker and
// runs bounded, instrumented calls for each pipeline call site.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/metrics"
)

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// Breaker wraps a Completer. While open, calls fail fast with ErrProviderUnavailable.
type Breaker struct {
	inner  domain.Completer
	cb     *gobreaker.CircuitBreaker[string]
	logger *zap.Logger
}

// NewBreaker creates a breaker around inner.
func NewBreaker(inner domain.Completer, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	trip := cfg.ConsecutiveFailures
	if trip == 0 {
		trip = 5
	}

	metrics.BreakerState.WithLabelValues(cfg.Name).Set(0)

	b := &Breaker{inner: inner, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trip
		},
		// A caller hanging up says nothing about provider health.
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return b
}

// Complete implements domain.Completer.
func (b *Breaker) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	out, err := b.cb.Execute(func() (string, error) {
		return b.inner.Complete(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, b.cb.Name(), err)
	}
	if err != nil {
		return "", err //nolint:wrapcheck // inner completer errors are already wrapped
	}
	return out, nil
}

// State reports the breaker state for health output.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
