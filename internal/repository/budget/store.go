// Package budget persists embedding token counters.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/matchdex/internal/db"
)

const (
	// DefaultDailyTTL keeps a daily counter one extra day for late readers.
	DefaultDailyTTL = 48 * time.Hour
	// DefaultMonthlyTTL outlives the longest month.
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

// store is the consumer interface for budget operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrWithTTL(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

// Store keeps counters as plain integers (INCRBY) that expire after their period.
type Store struct {
	store    store
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New creates a budget store. Non-positive TTLs use the defaults.
func New(s store, dailyTTL, monthTTL time.Duration) *Store {
	if dailyTTL <= 0 {
		dailyTTL = DefaultDailyTTL
	}
	if monthTTL <= 0 {
		monthTTL = DefaultMonthlyTTL
	}
	return &Store{store: s, dailyTTL: dailyTTL, monthTTL: monthTTL}
}

// IncrBy increments the counter; its TTL is set by the first write of the period.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if _, err := s.store.IncrWithTTL(ctx, key, val, s.ttlForKey(key)); err != nil {
		return fmt.Errorf("budget counter %s: %w", key, err)
	}
	return nil
}

// Get returns the counter value, or 0 when the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s parse: %w", key, err)
	}
	return val, nil
}

// Keys look like matchdex:budget:{provider}:daily:YYYY-MM-DD or ...:monthly:YYYY-MM.
func (s *Store) ttlForKey(key string) time.Duration {
	if strings.Contains(key, ":daily:") {
		return s.dailyTTL
	}
	return s.monthTTL
}
