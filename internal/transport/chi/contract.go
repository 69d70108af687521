package chi

import (
	"context"

	"github.com/kailas-cloud/matchdex/internal/domain"
	domusage "github.com/kailas-cloud/matchdex/internal/domain/usage"
	healthuc "github.com/kailas-cloud/matchdex/internal/usecase/health"
	profileuc "github.com/kailas-cloud/matchdex/internal/usecase/profile"
	"github.com/kailas-cloud/matchdex/internal/usecase/recommend"
	swipeuc "github.com/kailas-cloud/matchdex/internal/usecase/swipe"
)

// Recommender serves the feed and chat flows.
type Recommender interface {
	Feed(ctx context.Context, req recommend.FeedRequest) (domain.RecommendationBatch, error)
	Chat(ctx context.Context, req recommend.ChatRequest) (domain.RecommendationBatch, error)
}

// Swipes records and lists decisions.
type Swipes interface {
	Record(ctx context.Context, actorID, targetID, direction string) (swipeuc.Result, error)
	History(ctx context.Context, actorID string) ([]domain.Interaction, error)
}

// Profiles ingests and serves profiles.
type Profiles interface {
	Upsert(ctx context.Context, p domain.Profile) (profileuc.UpsertResult, error)
	Get(ctx context.Context, userID string) (domain.Profile, error)
	Delete(ctx context.Context, userID string) error
}

// HealthChecker aggregates component checks.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// UsageReporter reports embedding token usage.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}
