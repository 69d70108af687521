package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

// --- Mocks ---

// fakeIndex returns the first TopK ids of ranked, optionally honoring exclusions.
type fakeIndex struct {
	ranked   []string
	pushdown bool
	err      error
	breadths []int
	lastExcl []string
}

func (f *fakeIndex) Search(_ context.Context, q domain.IndexQuery) ([]domain.IndexHit, error) {
	f.breadths = append(f.breadths, q.TopK)
	f.lastExcl = q.ExcludeIDs
	if f.err != nil {
		return nil, f.err
	}
	excl := make(map[string]struct{}, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excl[id] = struct{}{}
	}
	var hits []domain.IndexHit
	for i, id := range f.ranked {
		if len(hits) == q.TopK {
			break
		}
		if _, skip := excl[id]; skip && f.pushdown {
			continue
		}
		hits = append(hits, domain.IndexHit{UserID: id, Score: 1 - float64(i)/1000})
	}
	return hits, nil
}

type fakeLog struct {
	seen       map[string]struct{}
	population []string
	seenErr    error
	sampleErr  error
	rng        *rand.Rand
}

func (f *fakeLog) SeenTargets(_ context.Context, _ string) (map[string]struct{}, error) {
	if f.seenErr != nil {
		return nil, f.seenErr
	}
	out := make(map[string]struct{}, len(f.seen))
	for k := range f.seen {
		out[k] = struct{}{}
	}
	return out, nil
}

func (f *fakeLog) RandomUnseen(_ context.Context, actorID string, exclude map[string]struct{}, limit int) ([]string, error) {
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	var pool []string
	for _, id := range f.population {
		if id == actorID {
			continue
		}
		if _, skip := exclude[id]; skip {
			continue
		}
		pool = append(pool, id)
	}
	rng := f.rng
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 2))
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}

// --- Helpers ---

func users(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("u%03d", i)
	}
	return out
}

func setOf(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

var unit = []float32{1, 0, 0}

func newService(idx Index, log InteractionLog) *Service {
	return New(idx, log, Config{Breadths: []int{50, 150, 300}, Target: 20}, zap.NewNop())
}

func assertInvariants(t *testing.T, res Result, actor string, seen map[string]struct{}) {
	t.Helper()
	got := make(map[string]struct{}, len(res.Candidates))
	for _, c := range res.Candidates {
		if c.UserID == actor {
			t.Errorf("actor %s returned", actor)
		}
		if _, bad := seen[c.UserID]; bad {
			t.Errorf("seen id %s returned", c.UserID)
		}
		if _, dup := got[c.UserID]; dup {
			t.Errorf("duplicate id %s", c.UserID)
		}
		got[c.UserID] = struct{}{}
	}
	if len(res.Candidates) > 20 {
		t.Errorf("returned %d candidates, more than target", len(res.Candidates))
	}
}

// --- Progressive retrieval ---

func TestRetrieve_FreshActorGetsTargetInRankOrder(t *testing.T) {
	pop := users(500)
	idx := &fakeIndex{ranked: pop[1:]}
	log := &fakeLog{population: pop}

	res, err := newService(idx, log).Retrieve(context.Background(), Request{ActorID: pop[0], Dense: unit})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Candidates) != 20 {
		t.Fatalf("expected 20, got %d", len(res.Candidates))
	}
	for i, c := range res.Candidates {
		if c.UserID != pop[i+1] || c.Source != domain.SourceVector {
			t.Errorf("candidate %d = %+v, want %s in vector order", i, c, pop[i+1])
		}
	}
	if res.Degraded || res.Message != "" {
		t.Errorf("unexpected degraded=%v message=%q", res.Degraded, res.Message)
	}
	if len(idx.breadths) != 1 || idx.breadths[0] != 50 {
		t.Errorf("breadths = %v, want [50]", idx.breadths)
	}
}

func TestRetrieve_AllNearestSeenFallsBackToSampling(t *testing.T) {
	pop := users(1000)
	actor := pop[0]
	seen := setOf(pop[1:301]...)
	idx := &fakeIndex{ranked: pop[1:]}
	log := &fakeLog{population: pop, seen: seen}

	res, err := newService(idx, log).Retrieve(context.Background(), Request{ActorID: actor, Dense: unit})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	assertInvariants(t, res, actor, seen)
	if len(res.Candidates) != 20 {
		t.Fatalf("expected 20, got %d", len(res.Candidates))
	}
	if !res.Degraded {
		t.Error("fallback sampling must mark the batch degraded")
	}
	for _, c := range res.Candidates {
		if c.Source != domain.SourceFallback {
			t.Errorf("%s source = %s, want fallback", c.UserID, c.Source)
		}
	}
	if want := []int{50, 150, 300}; fmt.Sprint(idx.breadths) != fmt.Sprint(want) {
		t.Errorf("breadths = %v, want %v", idx.breadths, want)
	}
}

func TestRetrieve_SmallRemainderReportsExploredMost(t *testing.T) {
	pop := users(30)
	actor := pop[0]
	seen := setOf(pop[1:25]...) // 30 - 24 seen - self = 5 left
	idx := &fakeIndex{ranked: pop[1:], pushdown: true}
	log := &fakeLog{population: pop, seen: seen}

	res, err := newService(idx, log).Retrieve(context.Background(), Request{ActorID: actor, Dense: unit})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	assertInvariants(t, res, actor, seen)
	if len(res.Candidates) != 5 {
		t.Fatalf("expected 5, got %d", len(res.Candidates))
	}
	if res.Message != MessageExploredMost || res.Exhausted {
		t.Errorf("message = %q exhausted = %v", res.Message, res.Exhausted)
	}
}

func TestRetrieve_IndexOutageSamplesAndDegrades(t *testing.T) {
	pop := users(100)
	actor := pop[0]
	seen := setOf(pop[1:10]...)
	idx := &fakeIndex{err: fmt.Errorf("dial: %w", domain.ErrProviderUnavailable)}
	log := &fakeLog{population: pop, seen: seen}

	res, err := newService(idx, log).Retrieve(context.Background(), Request{ActorID: actor, Dense: unit})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	assertInvariants(t, res, actor, seen)
	if len(res.Candidates) != 20 || !res.Degraded {
		t.Fatalf("got %d candidates degraded=%v", len(res.Candidates), res.Degraded)
	}
	if fmt.Sprint(res.DegradedStages) != fmt.Sprint([]string{domain.StageVectorIndex, domain.StageFallback}) {
		t.Errorf("stages = %v", res.DegradedStages)
	}
}

// --- Edge cases ---

func TestRetrieve_Exhausted(t *testing.T) {
	pop := users(5)
	actor := pop[0]
	seen := setOf(pop[1:]...)
	res, err := newService(&fakeIndex{ranked: pop[1:]}, &fakeLog{population: pop, seen: seen}).
		Retrieve(context.Background(), Request{ActorID: actor, Dense: unit})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Candidates) != 0 || !res.Exhausted || res.Message != MessageExploredAll {
		t.Errorf("got %+v", res)
	}
}

func TestRetrieve_ZeroVectorSkipsIndex(t *testing.T) {
	pop := users(50)
	idx := &fakeIndex{ranked: pop[1:]}
	res, err := newService(idx, &fakeLog{population: pop}).
		Retrieve(context.Background(), Request{ActorID: pop[0], Dense: make([]float32, 3)})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(idx.breadths) != 0 {
		t.Error("index must not be queried with a zero vector")
	}
	if len(res.Candidates) != 20 || !res.Degraded {
		t.Errorf("got %d degraded=%v", len(res.Candidates), res.Degraded)
	}
}

func TestRetrieve_TotalOutage(t *testing.T) {
	idx := &fakeIndex{err: errors.New("down")}
	log := &fakeLog{sampleErr: errors.New("down too")}
	_, err := newService(idx, log).Retrieve(context.Background(), Request{ActorID: "a", Dense: unit})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRetrieve_SeenSetUnavailable(t *testing.T) {
	log := &fakeLog{seenErr: errors.New("timeout")}
	_, err := newService(&fakeIndex{}, log).Retrieve(context.Background(), Request{ActorID: "a", Dense: unit})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRetrieve_FallbackFailureKeepsVectorHits(t *testing.T) {
	pop := users(10)
	log := &fakeLog{population: pop, sampleErr: errors.New("down")}
	res, err := newService(&fakeIndex{ranked: pop[1:]}, log).
		Retrieve(context.Background(), Request{ActorID: pop[0], Dense: unit})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Candidates) != 9 || !res.Degraded {
		t.Errorf("got %d degraded=%v", len(res.Candidates), res.Degraded)
	}
}

func TestRetrieve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	idx := &fakeIndex{err: context.Canceled}
	_, err := newService(idx, &fakeLog{population: users(5)}).Retrieve(ctx, Request{ActorID: "u000", Dense: unit})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetrieve_ExcludeListSentToIndex(t *testing.T) {
	pop := users(100)
	idx := &fakeIndex{ranked: pop[1:], pushdown: true}
	log := &fakeLog{population: pop, seen: setOf("u005", "u002")}
	if _, err := newService(idx, log).Retrieve(context.Background(), Request{ActorID: pop[0], Dense: unit}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if fmt.Sprint(idx.lastExcl) != "[u000 u002 u005]" {
		t.Errorf("exclude list = %v", idx.lastExcl)
	}
}

func TestRetrieve_WideningKeepsEarlierFinds(t *testing.T) {
	pop := users(400)
	actor := pop[0]
	// Only 2 unseen in the top 50, everything below is unseen.
	var seenIDs []string
	for i := 1; i <= 50; i++ {
		if i%17 != 0 {
			seenIDs = append(seenIDs, pop[i])
		}
	}
	seen := setOf(seenIDs...)
	idx := &fakeIndex{ranked: pop[1:]}
	res, err := newService(idx, &fakeLog{population: pop, seen: seen}).
		Retrieve(context.Background(), Request{ActorID: actor, Dense: unit})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	want := []string{pop[17], pop[34], pop[51]}
	for i, id := range want {
		if res.Candidates[i].UserID != id {
			t.Errorf("candidate %d = %s, want %s", i, res.Candidates[i].UserID, id)
		}
	}
	if len(res.Candidates) != 20 || res.Degraded {
		t.Errorf("got %d degraded=%v", len(res.Candidates), res.Degraded)
	}
	if res.Breadth != 150 {
		t.Errorf("breadth = %d, want 150", res.Breadth)
	}
}

// Property: for random populations and seen-sets, results never include excluded ids
// and are exactly target-sized whenever enough unseen users exist.
func TestRetrieve_PropertyExclusionAndSize(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := range 200 {
		n := 2 + rng.IntN(400)
		pop := users(n)
		actor := pop[rng.IntN(n)]
		seen := make(map[string]struct{})
		for _, id := range pop {
			if rng.Float64() < rng.Float64() {
				seen[id] = struct{}{}
			}
		}
		ranked := append([]string(nil), pop...)
		rng.Shuffle(len(ranked), func(i, j int) { ranked[i], ranked[j] = ranked[j], ranked[i] })
		idx := &fakeIndex{ranked: ranked, pushdown: rng.IntN(2) == 0}
		if rng.IntN(5) == 0 {
			idx.err = errors.New("down")
		}
		log := &fakeLog{population: pop, seen: seen, rng: rand.New(rand.NewPCG(uint64(trial), 3))}

		res, err := newService(idx, log).Retrieve(context.Background(), Request{ActorID: actor, Dense: unit})
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		assertInvariants(t, res, actor, seen)

		available := 0
		for _, id := range pop {
			if _, s := seen[id]; !s && id != actor {
				available++
			}
		}
		if want := min(available, 20); len(res.Candidates) != want {
			t.Fatalf("trial %d: got %d candidates, want %d", trial, len(res.Candidates), want)
		}
	}
}
