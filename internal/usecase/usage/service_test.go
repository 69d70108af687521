package usage

import (
	"context"
	"testing"
	"time"

	domusage "github.com/kailas-cloud/matchdex/internal/domain/usage"
	"github.com/kailas-cloud/matchdex/internal/usecase/embedding"
)

// --- Mock ---

type mockBudgetReader struct {
	limits embedding.BudgetLimits
	usage  embedding.BudgetUsage
}

func (m *mockBudgetReader) Limits() embedding.BudgetLimits { return m.limits }
func (m *mockBudgetReader) Usage() embedding.BudgetUsage   { return m.usage }

func fixedService(br BudgetReader) *Service {
	s := New(br)
	s.now = func() time.Time { return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC) }
	return s
}

// --- Tests ---

func TestGetReport_DailyPeriod(t *testing.T) {
	br := &mockBudgetReader{
		limits: embedding.BudgetLimits{Daily: 10000, Monthly: 100000},
		usage:  embedding.BudgetUsage{DailyUsed: 3000, DailyRemaining: 7000, MonthlyUsed: 50000, MonthlyRemaining: 50000},
	}
	r := fixedService(br).GetReport(context.Background(), domusage.PeriodDay)

	if r.Period != domusage.PeriodDay {
		t.Errorf("expected period %q, got %q", domusage.PeriodDay, r.Period)
	}
	wantStart := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !r.PeriodStart.Equal(wantStart) || !r.PeriodEnd.Equal(wantStart.Add(24*time.Hour)) {
		t.Errorf("period bounds: got %v - %v", r.PeriodStart, r.PeriodEnd)
	}
	if r.Limit != 10000 || r.Tokens != 3000 || r.Remaining != 7000 {
		t.Errorf("counters: got %+v", r)
	}
	if r.Exhausted() {
		t.Error("expected not exhausted")
	}
}

func TestGetReport_MonthlyPeriod(t *testing.T) {
	br := &mockBudgetReader{
		limits: embedding.BudgetLimits{Monthly: 100000},
		usage:  embedding.BudgetUsage{DailyRemaining: -1, MonthlyUsed: 100000, MonthlyRemaining: 0},
	}
	r := fixedService(br).GetReport(context.Background(), domusage.PeriodMonth)

	wantStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !r.PeriodStart.Equal(wantStart) || !r.PeriodEnd.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("period bounds: got %v - %v", r.PeriodStart, r.PeriodEnd)
	}
	if !r.Exhausted() {
		t.Error("expected exhausted")
	}
}

func TestGetReport_TotalHasNoBounds(t *testing.T) {
	br := &mockBudgetReader{usage: embedding.BudgetUsage{MonthlyUsed: 42, MonthlyRemaining: -1}}
	r := fixedService(br).GetReport(context.Background(), domusage.PeriodTotal)

	if !r.PeriodStart.IsZero() || !r.PeriodEnd.IsZero() {
		t.Errorf("total should have no bounds, got %v - %v", r.PeriodStart, r.PeriodEnd)
	}
	if r.Tokens != 42 || !r.Unlimited() {
		t.Errorf("counters: got %+v", r)
	}
}

func TestGetReport_NilBudgetReader(t *testing.T) {
	r := fixedService(nil).GetReport(context.Background(), domusage.PeriodDay)

	if r.Limit != 0 || r.Tokens != 0 || r.Remaining != -1 {
		t.Errorf("expected unlimited empty report, got %+v", r)
	}
	if r.Exhausted() {
		t.Error("unlimited report is never exhausted")
	}
}
