package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConnect_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	retries := 0
	v, err := Connect(context.Background(),
		ConnectPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("connection refused")
			}
			return "ok", nil
		},
		func(error, time.Duration) { retries++ },
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "ok" {
		t.Errorf("expected ok, got %q", v)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if retries != 2 {
		t.Errorf("expected 2 retry notifications, got %d", retries)
	}
}

func TestConnect_BoundedAttempts(t *testing.T) {
	calls := 0
	dialErr := errors.New("connection refused")
	_, err := Connect(context.Background(),
		ConnectPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		func(context.Context) (int, error) {
			calls++
			return 0, dialErr
		},
		nil,
	)
	if !errors.Is(err, dialErr) {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestConnect_ZeroAttemptsMeansOne(t *testing.T) {
	calls := 0
	_, _ = Connect(context.Background(), ConnectPolicy{},
		func(context.Context) (int, error) {
			calls++
			return 0, errors.New("down")
		}, nil)
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Connect(ctx,
		ConnectPolicy{MaxAttempts: 10, BaseDelay: time.Second},
		func(context.Context) (int, error) {
			calls++
			return 0, errors.New("down")
		}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls > 1 {
		t.Errorf("expected no retries after cancellation, got %d calls", calls)
	}
}
