package retrieval

import (
	"context"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

// Index answers hybrid nearest-neighbor queries.
type Index interface {
	Search(ctx context.Context, q domain.IndexQuery) ([]domain.IndexHit, error)
}

// InteractionLog is the read side of the swipe log.
type InteractionLog interface {
	SeenTargets(ctx context.Context, actorID string) (map[string]struct{}, error)
	RandomUnseen(ctx context.Context, actorID string, exclude map[string]struct{}, limit int) ([]string, error)
}
