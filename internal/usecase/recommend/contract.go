package recommend

import (
	"context"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/usecase/embedding"
	"github.com/kailas-cloud/matchdex/internal/usecase/query"
	"github.com/kailas-cloud/matchdex/internal/usecase/rerank"
	"github.com/kailas-cloud/matchdex/internal/usecase/retrieval"
)

// VectorReader loads a user's stored vectors.
type VectorReader interface {
	Get(ctx context.Context, userID string) (domain.ProfileVector, error)
}

// Embeddings embeds chat queries.
type Embeddings interface {
	Dense(ctx context.Context, text string) (embedding.DenseResult, error)
	Sparse(ctx context.Context, text string) (embedding.SparseResult, error)
}

// Retriever selects unseen candidates.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (retrieval.Result, error)
}

// Understander runs query understanding for chat messages.
type Understander interface {
	Understand(ctx context.Context, text string) (query.Understanding, error)
	Reply(ctx context.Context, text string, intent domain.Intent) (string, bool, error)
}

// Reranker orders chat candidates.
type Reranker interface {
	Rerank(ctx context.Context, in rerank.Input) (rerank.Output, error)
}

// Hydrator resolves display profiles.
type Hydrator interface {
	Resolve(ctx context.Context, ids []string) (map[string]domain.Profile, error)
}
