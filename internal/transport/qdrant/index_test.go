package qdrant

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

type fakeClient struct {
	exists    bool
	existsErr error
	created   *qdrant.CreateCollection
	createErr error
	upserted  *qdrant.UpsertPoints
	getPoints []*qdrant.RetrievedPoint
	deleted   *qdrant.DeletePoints
	query     *qdrant.QueryPoints
	queryResp []*qdrant.ScoredPoint
	queryErr  error
	healthErr error
}

func (f *fakeClient) CollectionExists(_ context.Context, _ string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeClient) CreateCollection(_ context.Context, r *qdrant.CreateCollection) error {
	f.created = r
	return f.createErr
}

func (f *fakeClient) Upsert(_ context.Context, r *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserted = r
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Get(_ context.Context, _ *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error) {
	return f.getPoints, nil
}

func (f *fakeClient) Delete(_ context.Context, r *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.deleted = r
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Query(_ context.Context, r *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.query = r
	return f.queryResp, f.queryErr
}

func (f *fakeClient) HealthCheck(_ context.Context) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{}, f.healthErr
}

func scored(userID string, score float32) *qdrant.ScoredPoint {
	return &qdrant.ScoredPoint{
		Id:      PointID(userID),
		Score:   score,
		Payload: map[string]*qdrant.Value{payloadUser: qdrant.NewValueString(userID)},
	}
}

func newTestIndex(f *fakeClient) *Index {
	return NewIndex(f, IndexConfig{Collection: "users", Dimensions: 3})
}

func TestPointID_Stable(t *testing.T) {
	a := PointID("u1").GetUuid()
	b := PointID("u1").GetUuid()
	if a == "" || a != b {
		t.Fatalf("expected stable non-empty uuid, got %q and %q", a, b)
	}
	if PointID("u2").GetUuid() == a {
		t.Error("different users must map to different points")
	}
}

func TestEnsureSchema_CreatesWhenMissing(t *testing.T) {
	f := &fakeClient{}
	if err := newTestIndex(f).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if f.created == nil {
		t.Fatal("expected CreateCollection call")
	}
	if f.created.GetCollectionName() != "users" {
		t.Errorf("collection = %q", f.created.GetCollectionName())
	}
	params := f.created.GetVectorsConfig().GetParamsMap().GetMap()[denseVector]
	if params.GetSize() != 3 || params.GetDistance() != qdrant.Distance_Cosine {
		t.Errorf("dense params = %v", params)
	}
	if _, ok := f.created.GetSparseVectorsConfig().GetMap()[sparseVector]; !ok {
		t.Error("sparse vector config missing")
	}
}

func TestEnsureSchema_ExistingSkipped(t *testing.T) {
	f := &fakeClient{exists: true}
	if err := newTestIndex(f).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if f.created != nil {
		t.Error("must not recreate an existing collection")
	}
}

func TestEnsureSchema_AlreadyExistsRace(t *testing.T) {
	f := &fakeClient{createErr: status.Error(codes.AlreadyExists, "exists")}
	if err := newTestIndex(f).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("AlreadyExists should be tolerated: %v", err)
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	f := &fakeClient{}
	err := newTestIndex(f).Upsert(context.Background(), domain.ProfileVector{UserID: "u1", Dense: []float32{1}})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if f.upserted != nil {
		t.Error("nothing should be written")
	}
}

func TestUpsert_WritesNamedVectors(t *testing.T) {
	f := &fakeClient{}
	pv := domain.ProfileVector{
		UserID: "u1",
		Dense:  []float32{1, 0, 0},
		Sparse: domain.SparseVector{7: 0.5, 3: 1},
	}
	if err := newTestIndex(f).Upsert(context.Background(), pv); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	p := f.upserted.GetPoints()[0]
	if p.GetPayload()[payloadUser].GetStringValue() != "u1" {
		t.Errorf("payload user_id missing")
	}
	named := p.GetVectors().GetVectors().GetVectors()
	if got := named[denseVector].GetData(); len(got) != 3 {
		t.Errorf("dense = %v", got)
	}
	if got := named[sparseVector].GetIndices().GetData(); len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Errorf("sparse indices = %v", got)
	}
}

func TestUpsert_OmitsEmptySparse(t *testing.T) {
	f := &fakeClient{}
	pv := domain.ProfileVector{UserID: "u1", Dense: []float32{0, 1, 0}}
	if err := newTestIndex(f).Upsert(context.Background(), pv); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	named := f.upserted.GetPoints()[0].GetVectors().GetVectors().GetVectors()
	if _, ok := named[sparseVector]; ok {
		t.Error("empty sparse vector must be omitted")
	}
}

func TestGet_NotFound(t *testing.T) {
	_, err := newTestIndex(&fakeClient{}).Get(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearch_ZeroTopK(t *testing.T) {
	f := &fakeClient{}
	hits, err := newTestIndex(f).Search(context.Background(), domain.IndexQuery{Dense: []float32{1, 0, 0}})
	if err != nil || hits != nil {
		t.Fatalf("expected nil, nil; got %v, %v", hits, err)
	}
	if f.query != nil {
		t.Error("no query expected")
	}
}

func TestSearch_ZeroVectorRejected(t *testing.T) {
	_, err := newTestIndex(&fakeClient{}).Search(context.Background(), domain.IndexQuery{Dense: []float32{0, 0, 0}, TopK: 5})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearch_HybridUsesRRF(t *testing.T) {
	f := &fakeClient{queryResp: []*qdrant.ScoredPoint{scored("a", 0.5), scored("b", 0.3)}}
	q := domain.IndexQuery{
		Dense:      []float32{1, 0, 0},
		Sparse:     domain.SparseVector{1: 1},
		TopK:       5,
		ExcludeIDs: []string{"x"},
	}
	hits, err := newTestIndex(f).Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].UserID != "a" {
		t.Fatalf("hits = %v", hits)
	}
	if len(f.query.GetPrefetch()) != 2 {
		t.Fatalf("expected dense and sparse prefetch, got %d", len(f.query.GetPrefetch()))
	}
	if f.query.GetQuery().GetFusion() != qdrant.Fusion_RRF {
		t.Error("expected RRF fusion")
	}
	for _, pf := range f.query.GetPrefetch() {
		if pf.GetLimit() < minPrefetch {
			t.Errorf("prefetch limit %d below minimum", pf.GetLimit())
		}
		ids := pf.GetFilter().GetMustNot()[0].GetHasId().GetHasId()
		if len(ids) != 1 || ids[0].GetUuid() != PointID("x").GetUuid() {
			t.Errorf("exclusion filter = %v", ids)
		}
	}
}

func TestSearch_DenseOnlyWithoutSparse(t *testing.T) {
	f := &fakeClient{}
	_, err := newTestIndex(f).Search(context.Background(), domain.IndexQuery{Dense: []float32{1, 0, 0}, TopK: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(f.query.GetPrefetch()) != 0 {
		t.Error("dense-only search must not prefetch")
	}
	if f.query.GetUsing() != denseVector {
		t.Errorf("using = %q", f.query.GetUsing())
	}
	if f.query.GetFilter() != nil {
		t.Error("no exclusion filter expected")
	}
}

func TestSearch_PostFiltersAndTruncates(t *testing.T) {
	f := &fakeClient{queryResp: []*qdrant.ScoredPoint{
		scored("x", 0.9), scored("a", 0.8), scored("b", 0.7), scored("c", 0.6),
	}}
	q := domain.IndexQuery{Dense: []float32{1, 0, 0}, TopK: 2, ExcludeIDs: []string{"x"}}
	hits, err := newTestIndex(f).Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].UserID != "a" || hits[1].UserID != "b" {
		t.Fatalf("hits = %v", hits)
	}
}

func TestSearch_UnavailableMapped(t *testing.T) {
	f := &fakeClient{queryErr: status.Error(codes.Unavailable, "down")}
	_, err := newTestIndex(f).Search(context.Background(), domain.IndexQuery{Dense: []float32{1, 0, 0}, TopK: 3})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.NotFound, domain.ErrNotFound},
		{codes.InvalidArgument, domain.ErrInvalidInput},
		{codes.DeadlineExceeded, domain.ErrProviderUnavailable},
		{codes.Internal, domain.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := mapError(fmt.Errorf("qdrant: %w", status.Error(tt.code, "x")))
			if !errors.Is(err, tt.want) {
				t.Errorf("mapError(%v) = %v", tt.code, err)
			}
		})
	}
}
