package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ConnectPolicy bounds connection attempts made at startup.
type ConnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Connect calls dial until it succeeds, the attempt budget is spent or ctx is done.
// Delays grow exponentially from BaseDelay with jitter. onRetry, if set, is called
// before each wait. Request paths never go through Connect.
func Connect[T any](
	ctx context.Context,
	p ConnectPolicy,
	dial func(ctx context.Context) (T, error),
	onRetry func(err error, wait time.Duration),
) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		exp.InitialInterval = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		exp.MaxInterval = p.MaxDelay
	}
	exp.MaxElapsedTime = 0 // bounded by attempts, not wall time

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	op := func() (T, error) {
		return dial(ctx)
	}
	var notify backoff.Notify
	if onRetry != nil {
		notify = func(err error, wait time.Duration) { onRetry(err, wait) }
	}

	v, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("connect after %d attempts: %w", attempts, err)
	}
	return v, nil
}
