// Package qdrant implements the hybrid vector index on Qdrant named dense and sparse vectors.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

const (
	denseVector  = "dense"
	sparseVector = "sparse"
	payloadUser  = "user_id"

	// minPrefetch keeps fusion meaningful for small TopK.
	minPrefetch = 50
)

// pointNamespace derives stable point ids: Qdrant accepts only UUIDs or integers.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://matchdex/users"))

// pointsAPI is the subset of *qdrant.Client the index uses (ISP).
type pointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
}

// IndexConfig describes the collection.
type IndexConfig struct {
	Collection string
	Dimensions int
	HNSWM      int
	HNSWEF     int
}

// Index queries dense and sparse prefetches and fuses them with Reciprocal Rank Fusion.
// RRF is non-decreasing in each input rank, so a better sub-score never lowers a hit.
type Index struct {
	client pointsAPI
	cfg    IndexConfig
}

// NewIndex creates a Qdrant-backed index.
func NewIndex(client pointsAPI, cfg IndexConfig) *Index {
	return &Index{client: client, cfg: cfg}
}

// PointID maps a user id to its Qdrant point id.
func PointID(userID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(pointNamespace, []byte(userID)).String())
}

// EnsureSchema creates the collection with named dense and sparse vectors when missing.
func (ix *Index) EnsureSchema(ctx context.Context) error {
	exists, err := ix.client.CollectionExists(ctx, ix.cfg.Collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", ix.cfg.Collection, mapError(err))
	}
	if exists {
		return nil
	}

	dense := &qdrant.VectorParams{
		Size:     uint64(ix.cfg.Dimensions),
		Distance: qdrant.Distance_Cosine,
	}
	if ix.cfg.HNSWM > 0 || ix.cfg.HNSWEF > 0 {
		dense.HnswConfig = &qdrant.HnswConfigDiff{}
		if ix.cfg.HNSWM > 0 {
			dense.HnswConfig.M = qdrant.PtrOf(uint64(ix.cfg.HNSWM))
		}
		if ix.cfg.HNSWEF > 0 {
			dense.HnswConfig.EfConstruct = qdrant.PtrOf(uint64(ix.cfg.HNSWEF))
		}
	}

	err = ix.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: ix.cfg.Collection,
		VectorsConfig:  qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{denseVector: dense}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			sparseVector: {},
		}),
	})
	if err != nil && grpcCode(err) != codes.AlreadyExists {
		return fmt.Errorf("create collection %s: %w", ix.cfg.Collection, mapError(err))
	}
	return nil
}

// Upsert replaces the user's point.
func (ix *Index) Upsert(ctx context.Context, pv domain.ProfileVector) error {
	if strings.TrimSpace(pv.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	if len(pv.Dense) != ix.cfg.Dimensions {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrVectorDimMismatch, len(pv.Dense), ix.cfg.Dimensions)
	}

	vectors := map[string]*qdrant.Vector{denseVector: qdrant.NewVector(pv.Dense...)}
	if sparse := pv.Sparse.Clean(); len(sparse) > 0 {
		indices, values := sparse.Pairs()
		vectors[sparseVector] = qdrant.NewVectorSparse(indices, values)
	}

	_, err := ix.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: ix.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      PointID(pv.UserID),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: map[string]*qdrant.Value{payloadUser: qdrant.NewValueString(pv.UserID)},
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert point %s: %w", pv.UserID, mapError(err))
	}
	return nil
}

// Get loads the stored vectors of one user.
func (ix *Index) Get(ctx context.Context, userID string) (domain.ProfileVector, error) {
	points, err := ix.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: ix.cfg.Collection,
		Ids:            []*qdrant.PointId{PointID(userID)},
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayloadInclude(payloadUser),
	})
	if err != nil {
		return domain.ProfileVector{}, fmt.Errorf("get point %s: %w", userID, mapError(err))
	}
	if len(points) == 0 {
		return domain.ProfileVector{}, fmt.Errorf("point %s: %w", userID, domain.ErrNotFound)
	}

	named := points[0].GetVectors().GetVectors().GetVectors()
	pv := domain.ProfileVector{
		UserID:  userID,
		Dense:   named[denseVector].GetData(),
		Sparse:  domain.SparseVector{},
		Profile: domain.Profile{UserID: userID},
	}
	if sv, ok := named[sparseVector]; ok {
		indices := sv.GetIndices().GetData()
		values := sv.GetData()
		for i := 0; i < len(indices) && i < len(values); i++ {
			pv.Sparse[indices[i]] = values[i]
		}
	}
	return pv, nil
}

// Delete removes the user's point.
func (ix *Index) Delete(ctx context.Context, userID string) error {
	_, err := ix.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: ix.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(PointID(userID)),
	})
	if err != nil {
		return fmt.Errorf("delete point %s: %w", userID, mapError(err))
	}
	return nil
}

// Search runs the hybrid query. Exclusions are a must_not has_id filter on every stage.
func (ix *Index) Search(ctx context.Context, q domain.IndexQuery) ([]domain.IndexHit, error) {
	if q.TopK <= 0 {
		return nil, nil
	}
	if domain.IsZero(q.Dense) {
		return nil, fmt.Errorf("%w: dense query vector is zero", domain.ErrInvalidInput)
	}

	points, err := ix.client.Query(ctx, ix.buildQuery(q))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("query %s: %w", ix.cfg.Collection, mapError(err))
	}

	excluded := make(map[string]struct{}, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = struct{}{}
	}
	hits := make([]domain.IndexHit, 0, len(points))
	for _, p := range points {
		id := p.GetPayload()[payloadUser].GetStringValue()
		if id == "" {
			continue
		}
		if _, skip := excluded[id]; skip {
			continue
		}
		hits = append(hits, domain.IndexHit{UserID: id, Score: float64(p.GetScore())})
	}
	if len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}
	return hits, nil
}

func (ix *Index) buildQuery(q domain.IndexQuery) *qdrant.QueryPoints {
	var filter *qdrant.Filter
	if len(q.ExcludeIDs) > 0 {
		ids := make([]*qdrant.PointId, len(q.ExcludeIDs))
		for i, id := range q.ExcludeIDs {
			ids[i] = PointID(id)
		}
		filter = &qdrant.Filter{MustNot: []*qdrant.Condition{qdrant.NewHasID(ids...)}}
	}

	req := &qdrant.QueryPoints{
		CollectionName: ix.cfg.Collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(q.TopK)),
		WithPayload:    qdrant.NewWithPayloadInclude(payloadUser),
	}

	sparse := q.Sparse.Clean()
	if len(sparse) == 0 {
		req.Query = qdrant.NewQuery(q.Dense...)
		req.Using = qdrant.PtrOf(denseVector)
		return req
	}

	window := qdrant.PtrOf(uint64(max(2*q.TopK, minPrefetch)))
	indices, values := sparse.Pairs()
	req.Prefetch = []*qdrant.PrefetchQuery{
		{
			Query:  qdrant.NewQuery(q.Dense...),
			Using:  qdrant.PtrOf(denseVector),
			Filter: filter,
			Limit:  window,
		},
		{
			Query:  qdrant.NewQuerySparse(indices, values),
			Using:  qdrant.PtrOf(sparseVector),
			Filter: filter,
			Limit:  window,
		},
	}
	req.Query = qdrant.NewQueryFusion(qdrant.Fusion_RRF)
	return req
}

// HealthCheck calls the Qdrant health endpoint.
func (ix *Index) HealthCheck(ctx context.Context) error {
	if _, err := ix.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: %w", mapError(err))
	}
	return nil
}

// mapError tags gRPC failures as provider unavailability, keeping the cause.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	switch grpcCode(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
}

// grpcCode digs the status code out of errors the client wraps.
func grpcCode(err error) codes.Code {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if s, ok := status.FromError(e); ok {
			return s.Code()
		}
	}
	return codes.Unknown
}
