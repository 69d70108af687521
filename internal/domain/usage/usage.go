// Package usage describes embedding token consumption against the configured budget.
package usage

import (
	"fmt"
	"time"
)

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodTotal Period = "total"
)

// ParsePeriod validates a period name. Empty means month.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return PeriodMonth, nil
	case PeriodDay, PeriodMonth, PeriodTotal:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Report is the embedding token usage of one period.
// Limit is zero and Remaining is -1 when the period is unlimited.
type Report struct {
	Period      Period
	PeriodStart time.Time
	PeriodEnd   time.Time
	Tokens      int64
	Limit       int64
	Remaining   int64
}

// Exhausted reports whether a limited period has no tokens left.
func (r Report) Exhausted() bool { return r.Limit > 0 && r.Remaining == 0 }

// Unlimited reports whether the period has no cap.
func (r Report) Unlimited() bool { return r.Limit == 0 }
