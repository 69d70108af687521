// Package vectorindex stores profile vectors in Valkey/Redis hashes and searches them
// through an FT vector index.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/matchdex/internal/db"
	"github.com/kailas-cloud/matchdex/internal/domain"
)

const (
	fieldUserID = "user_id"
	fieldVector = "vector"
	fieldSparse = "sparse"
	fieldTerms  = "terms"

	// storedTerms is how many of a profile's heaviest terms are tagged for lexical candidates.
	storedTerms = 32
	// queryTerms is how many of the query's heaviest terms select lexical candidates.
	queryTerms = 16

	// maxWindow bounds K when exclusions are filtered client-side.
	maxWindow = 10000
)

var (
	keyPrefix = domain.KeyPrefix + "vec:"
	indexName = domain.KeyPrefix + "vec:idx"
)

// store is the consumer interface for the vector index (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsNegation(ctx context.Context) bool
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config tunes the index and score fusion.
type Config struct {
	Dimensions   int
	DenseWeight  float64
	SparseWeight float64

	HNSWM           int
	HNSWEFConstruct int
	HNSWEFRuntime   int

	// MaxPushdownExcludes caps the exclusion list sent as a pre-filter. Zero disables push-down.
	MaxPushdownExcludes int
}

// Repo implements the hybrid vector index on FT.SEARCH.
//
// Candidates come from two KNN windows: one over the whole index and one restricted to
// profiles tagged with any of the query's heaviest terms, so a strong lexical match is
// found even when its dense similarity is outside the global top K. The union is
// rescored with w_d*dense + w_s*s/(1+s) where s is the sparse dot product with the
// stored terms. Both terms are non-decreasing in their sub-score.
type Repo struct {
	store store
	cfg   Config
}

// New creates a vector index repository.
func New(s store, cfg Config) *Repo {
	return &Repo{store: s, cfg: cfg}
}

// EnsureSchema creates the FT index when it is missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, indexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", indexName, err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(r.cfg)
	if err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", indexName, err)
	}
	return nil
}

func buildIndex(cfg Config) (*db.IndexDefinition, error) {
	def, err := db.NewIndex(indexName).
		Prefix(keyPrefix).
		Tag(fieldUserID).
		Tag(fieldTerms).
		Vector(fieldVector, cfg.Dimensions, db.VectorHNSW, db.DistanceCosine, cfg.HNSWM, cfg.HNSWEFConstruct).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build index definition: %w", err)
	}
	return def, nil
}

// Upsert replaces the stored vectors of one user.
func (r *Repo) Upsert(ctx context.Context, pv domain.ProfileVector) error {
	if strings.TrimSpace(pv.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	if len(pv.Dense) != r.cfg.Dimensions {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrVectorDimMismatch, len(pv.Dense), r.cfg.Dimensions)
	}

	sparse := pv.Sparse.Clean()
	fields := map[string]string{
		fieldUserID: pv.UserID,
		fieldVector: db.EncodeVector(pv.Dense),
		fieldSparse: sparse.Encode(),
		fieldTerms:  joinTerms(sparse.Top(storedTerms)),
	}
	if err := r.store.HSet(ctx, keyPrefix+pv.UserID, fields); err != nil {
		return fmt.Errorf("upsert vector %s: %w", pv.UserID, err)
	}
	return nil
}

// Get loads the stored vectors of one user. Profile carries only the user id.
func (r *Repo) Get(ctx context.Context, userID string) (domain.ProfileVector, error) {
	m, err := r.store.HGetAll(ctx, keyPrefix+userID)
	if err != nil {
		return domain.ProfileVector{}, fmt.Errorf("get vector %s: %w", userID, err)
	}
	if len(m) == 0 {
		return domain.ProfileVector{}, fmt.Errorf("vector %s: %w", userID, domain.ErrNotFound)
	}

	dense, err := db.DecodeVector(m[fieldVector])
	if err != nil {
		return domain.ProfileVector{}, fmt.Errorf("decode vector %s: %w", userID, err)
	}
	sparse, err := domain.DecodeSparse(m[fieldSparse])
	if err != nil {
		return domain.ProfileVector{}, fmt.Errorf("decode sparse %s: %w", userID, err)
	}
	return domain.ProfileVector{
		UserID:  userID,
		Dense:   dense,
		Sparse:  sparse,
		Profile: domain.Profile{UserID: userID},
	}, nil
}

// Delete removes a user's vectors.
func (r *Repo) Delete(ctx context.Context, userID string) error {
	if err := r.store.Del(ctx, keyPrefix+userID); err != nil {
		return fmt.Errorf("delete vector %s: %w", userID, err)
	}
	return nil
}

// Search returns up to TopK hits ordered by fused score, none of them in ExcludeIDs.
// Store failures are wrapped with domain.ErrProviderUnavailable.
func (r *Repo) Search(ctx context.Context, q domain.IndexQuery) ([]domain.IndexHit, error) {
	if q.TopK <= 0 {
		return nil, nil
	}
	if domain.IsZero(q.Dense) {
		return nil, fmt.Errorf("%w: dense query vector is zero", domain.ErrInvalidInput)
	}

	dense := &db.KNNQuery{
		IndexName:    indexName,
		Vector:       q.Dense,
		K:            q.TopK,
		ReturnFields: []string{fieldUserID, fieldSparse},
		EFRuntime:    r.cfg.HNSWEFRuntime,
	}
	if r.pushdown(ctx, len(q.ExcludeIDs)) {
		dense.ExcludeField = fieldUserID
		dense.Exclude = q.ExcludeIDs
	} else {
		dense.K = min(q.TopK+len(q.ExcludeIDs), maxWindow)
	}
	if ef := r.cfg.HNSWEFRuntime; ef > 0 && ef < dense.K {
		dense.EFRuntime = dense.K
	}

	windows := []*db.KNNQuery{dense}
	if terms := q.Sparse.Top(queryTerms); len(terms) > 0 && r.cfg.SparseWeight > 0 {
		lexical := *dense
		lexical.MatchField = fieldTerms
		lexical.MatchAny = tagValues(terms)
		windows = append(windows, &lexical)
	}

	excluded := make(map[string]struct{}, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	seen := make(map[string]struct{}, dense.K)
	hits := make([]domain.IndexHit, 0, q.TopK)
	for _, knn := range windows {
		sr, err := r.store.SearchKNN(ctx, knn)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("vector search: %w: %w", domain.ErrProviderUnavailable, err)
		}
		for _, e := range sr.Entries {
			id := e.Fields[fieldUserID]
			if id == "" {
				id = strings.TrimPrefix(e.Key, keyPrefix)
			}
			if _, skip := excluded[id]; skip {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			hits = append(hits, domain.IndexHit{UserID: id, Score: r.fuse(e.Score, q.Sparse, e.Fields[fieldSparse])})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}
	return hits, nil
}

func (r *Repo) pushdown(ctx context.Context, n int) bool {
	return n > 0 && n <= r.cfg.MaxPushdownExcludes && r.store.SupportsNegation(ctx)
}

// fuse combines dense similarity with the saturated sparse overlap.
// An unparsable stored sparse vector contributes zero.
func (r *Repo) fuse(dense float64, query domain.SparseVector, stored string) float64 {
	score := r.cfg.DenseWeight * dense
	if len(query) == 0 || stored == "" || r.cfg.SparseWeight == 0 {
		return score
	}
	doc, err := domain.DecodeSparse(stored)
	if err != nil {
		return score
	}
	s := query.Dot(doc)
	if s <= 0 {
		return score
	}
	return score + r.cfg.SparseWeight*s/(1+s)
}

func tagValues(ids []uint32) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatUint(uint64(id), 10)
	}
	return out
}

func joinTerms(ids []uint32) string {
	return strings.Join(tagValues(ids), ",")
}

// HealthCheck pings the store.
func (r *Repo) HealthCheck(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	return nil
}
