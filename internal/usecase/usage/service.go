// Package usage reports embedding token consumption.
package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/matchdex/internal/domain/usage"
)

// Service handles usage reporting.
type Service struct {
	br  BudgetReader
	now func() time.Time
}

// New creates a Service. br can be nil (unlimited mode).
func New(br BudgetReader) *Service {
	return &Service{br: br, now: func() time.Time { return time.Now().UTC() }}
}

// GetReport builds a usage report for the given period.
// Counters are kept per UTC day and month only, so total reports the current month without bounds.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := s.now()
	r := domusage.Report{Period: period, Remaining: -1}

	switch period {
	case domusage.PeriodDay:
		r.PeriodStart = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.PeriodEnd = r.PeriodStart.Add(24 * time.Hour)
	case domusage.PeriodMonth:
		r.PeriodStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.PeriodEnd = r.PeriodStart.AddDate(0, 1, 0)
	}
	if s.br == nil {
		return r
	}

	limits, used := s.br.Limits(), s.br.Usage()
	if period == domusage.PeriodDay {
		r.Tokens, r.Limit, r.Remaining = used.DailyUsed, limits.Daily, used.DailyRemaining
	} else {
		r.Tokens, r.Limit, r.Remaining = used.MonthlyUsed, limits.Monthly, used.MonthlyRemaining
	}
	return r
}
