package profile

import (
	"context"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/usecase/embedding"
)

// Repository stores display profiles and the population set.
type Repository interface {
	Upsert(ctx context.Context, p domain.Profile) error
	Get(ctx context.Context, userID string) (domain.Profile, error)
	Delete(ctx context.Context, userID string) error
}

// VectorIndex stores per-user vectors.
type VectorIndex interface {
	Upsert(ctx context.Context, pv domain.ProfileVector) error
	Delete(ctx context.Context, userID string) error
}

// Embeddings embeds profile text with the document instruction.
type Embeddings interface {
	Dense(ctx context.Context, text string) (embedding.DenseResult, error)
	Sparse(ctx context.Context, text string) (embedding.SparseResult, error)
}

// Snapshot receives incremental hydration updates.
type Snapshot interface {
	Put(p domain.Profile)
	Remove(userID string)
}
