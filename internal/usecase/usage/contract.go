package usage

import "github.com/kailas-cloud/matchdex/internal/usecase/embedding"

// BudgetReader provides read-only access to token budget state.
type BudgetReader interface {
	Limits() embedding.BudgetLimits
	Usage() embedding.BudgetUsage
}
