package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

// BudgetAction defines behavior when the token budget is exhausted.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request; the provider adapter then serves the zero-vector fallback.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetStore persists budget counters. IncrBy may be called repeatedly for the same key.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// BudgetLimits are token caps. Zero means unlimited.
type BudgetLimits struct {
	Daily   int64
	Monthly int64
}

// BudgetUsage is a point-in-time view of consumed and remaining tokens.
// Remaining is -1 for an unlimited period.
type BudgetUsage struct {
	DailyUsed        int64
	MonthlyUsed      int64
	DailyRemaining   int64
	MonthlyRemaining int64
}

// BudgetTracker counts embedding tokens in memory and writes them behind to a store.
// Check never leaves the process.
type BudgetTracker struct {
	mu          sync.Mutex
	dailyUsed   int64
	monthlyUsed int64
	day         time.Time
	month       time.Time

	limits   BudgetLimits
	action   BudgetAction
	provider string
	store    BudgetStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewBudgetTracker creates a tracker for provider.
func NewBudgetTracker(provider string, limits BudgetLimits, action BudgetAction, logger *zap.Logger) *BudgetTracker {
	b := &BudgetTracker{
		limits:   limits,
		action:   action,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	b.day, b.month = periods(b.now())
	return b
}

// WithStore attaches a persistence store and loads the current period's counters.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	b.rollover()

	if val, err := store.Get(ctx, b.dailyKey()); err == nil {
		b.dailyUsed = val
	} else {
		b.logger.Warn("Failed to load daily budget from store", zap.Error(err))
	}
	if val, err := store.Get(ctx, b.monthlyKey()); err == nil {
		b.monthlyUsed = val
	} else {
		b.logger.Warn("Failed to load monthly budget from store", zap.Error(err))
	}

	b.logger.Info("Budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("monthly_used", b.monthlyUsed),
	)
	return b
}

func (b *BudgetTracker) dailyKey() string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", domain.KeyPrefix, b.provider, b.day.Format("2006-01-02"))
}

func (b *BudgetTracker) monthlyKey() string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", domain.KeyPrefix, b.provider, b.month.Format("2006-01"))
}

// Check reports whether a new request may spend tokens.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()

	dailyExceeded := b.limits.Daily > 0 && b.dailyUsed >= b.limits.Daily
	monthlyExceeded := b.limits.Monthly > 0 && b.monthlyUsed >= b.limits.Monthly
	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if b.action == BudgetActionReject {
		return fmt.Errorf("%s: %w", b.provider, domain.ErrEmbeddingQuotaExceeded)
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("daily_limit", b.limits.Daily),
		zap.Int64("monthly_used", b.monthlyUsed),
		zap.Int64("monthly_limit", b.limits.Monthly),
	)
	return nil
}

// Record adds consumed tokens in memory, then increments the persisted counters.
// Store failures are logged; they never fail the embedding call.
func (b *BudgetTracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}
	b.mu.Lock()
	b.rollover()
	b.dailyUsed += tokens
	b.monthlyUsed += tokens
	store := b.store
	dailyKey, monthlyKey := b.dailyKey(), b.monthlyKey()
	b.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := store.IncrBy(ctx, dailyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist daily budget", zap.String("key", dailyKey), zap.Error(err))
	}
	if err := store.IncrBy(ctx, monthlyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist monthly budget", zap.String("key", monthlyKey), zap.Error(err))
	}
}

// Limits returns the configured caps.
func (b *BudgetTracker) Limits() BudgetLimits { return b.limits }

// Usage returns the current counters.
func (b *BudgetTracker) Usage() BudgetUsage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return BudgetUsage{
		DailyUsed:        b.dailyUsed,
		MonthlyUsed:      b.monthlyUsed,
		DailyRemaining:   remaining(b.limits.Daily, b.dailyUsed),
		MonthlyRemaining: remaining(b.limits.Monthly, b.monthlyUsed),
	}
}

// rollover zeroes counters when the UTC day or month changes. Caller holds mu.
func (b *BudgetTracker) rollover() {
	day, month := periods(b.now())
	if day.After(b.day) {
		b.dailyUsed = 0
		b.day = day
	}
	if month.After(b.month) {
		b.monthlyUsed = 0
		b.month = month
	}
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

func periods(t time.Time) (day, month time.Time) {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
