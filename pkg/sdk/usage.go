package matchdex

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/matchdex/internal/domain/usage"
)

// UsagePeriod is the aggregation granularity for usage reports.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
	PeriodTotal UsagePeriod = "total"
)

// UsageReport contains embedding token usage for a period.
type UsageReport struct {
	Period      UsagePeriod
	PeriodStart time.Time // zero for PeriodTotal
	PeriodEnd   time.Time
	Tokens      int64
	Budget      BudgetStatus
}

// BudgetStatus tracks token quota state. TokensLimit is zero when unlimited.
type BudgetStatus struct {
	TokensLimit     int64
	TokensRemaining int64 // -1 when unlimited
	IsExhausted     bool
}

// Usage returns an embedding usage report for the given period.
// The SDK does not track a budget, so the report is always unlimited.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) UsageReport {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, nil) }()

	report := c.usageSvc.GetReport(ctx, domusage.Period(period))
	return UsageReport{
		Period:      UsagePeriod(report.Period),
		PeriodStart: report.PeriodStart,
		PeriodEnd:   report.PeriodEnd,
		Tokens:      report.Tokens,
		Budget: BudgetStatus{
			TokensLimit:     report.Limit,
			TokensRemaining: report.Remaining,
			IsExhausted:     report.Exhausted(),
		},
	}
}

// usageUseCase is the internal interface for usage reports.
type usageUseCase interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}
