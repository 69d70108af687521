package matchdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/db"
	dbRedis "github.com/kailas-cloud/matchdex/internal/db/redis"
	"github.com/kailas-cloud/matchdex/internal/domain"
	interactionrepo "github.com/kailas-cloud/matchdex/internal/repository/interaction"
	profilerepo "github.com/kailas-cloud/matchdex/internal/repository/profile"
	"github.com/kailas-cloud/matchdex/internal/repository/vectorindex"
	"github.com/kailas-cloud/matchdex/internal/transport/sparse"
	embeddinguc "github.com/kailas-cloud/matchdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/matchdex/internal/usecase/health"
	"github.com/kailas-cloud/matchdex/internal/usecase/hydrate"
	"github.com/kailas-cloud/matchdex/internal/usecase/llm"
	profileuc "github.com/kailas-cloud/matchdex/internal/usecase/profile"
	"github.com/kailas-cloud/matchdex/internal/usecase/query"
	"github.com/kailas-cloud/matchdex/internal/usecase/recommend"
	"github.com/kailas-cloud/matchdex/internal/usecase/rerank"
	"github.com/kailas-cloud/matchdex/internal/usecase/retrieval"
	swipeuc "github.com/kailas-cloud/matchdex/internal/usecase/swipe"
	usageuc "github.com/kailas-cloud/matchdex/internal/usecase/usage"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	sparseVocabBits         = 18
)

// Внутренние интерфейсы для подмены в тестах.
type recommendUseCase interface {
	Feed(ctx context.Context, req recommend.FeedRequest) (domain.RecommendationBatch, error)
	Chat(ctx context.Context, req recommend.ChatRequest) (domain.RecommendationBatch, error)
}

type swipeUseCase interface {
	Record(ctx context.Context, actorID, targetID, direction string) (swipeuc.Result, error)
	History(ctx context.Context, actorID string) ([]domain.Interaction, error)
}

type profileUseCase interface {
	Upsert(ctx context.Context, p domain.Profile) (profileuc.UpsertResult, error)
	Get(ctx context.Context, userID string) (domain.Profile, error)
	Delete(ctx context.Context, userID string) error
}

// Client is the matchdex SDK entry point.
type Client struct {
	store        db.Store
	stop         context.CancelFunc
	recommendSvc recommendUseCase
	swipeSvc     swipeUseCase
	profileSvc   profileUseCase
	healthSvc    healthUseCase
	usageSvc     usageUseCase
	obs          *observer
}

// New creates a matchdex Client, connects to the database and ensures the vector index exists.
// The provided context is used for the initial readiness check and snapshot load.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("matchdex: database address required (use WithValkey or WithRedis)")
	}
	if cfg.vectorDimensions <= 0 {
		return nil, fmt.Errorf("matchdex: vector dimensions must be positive, got %d", cfg.vectorDimensions)
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Driver:   dbRedis.Driver(cfg.driver),
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("matchdex: create %s store: %w", cfg.driver, err)
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("matchdex: database not ready: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		store.Close()
		return nil, err
	}

	c, err := wireClient(ctx, store, cfg, obs)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	// Internal services log through zap; SDK callers observe through slog and prometheus.
	logger := zap.NewNop()

	index := vectorindex.New(store, vectorindex.Config{
		Dimensions:      cfg.vectorDimensions,
		DenseWeight:     cfg.denseWeight,
		SparseWeight:    cfg.sparseWeight,
		HNSWM:           cfg.hnswM,
		HNSWEFConstruct: cfg.hnswEFConstruct,
	})
	if err := index.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("matchdex: ensure vector index: %w", err)
	}

	// Embedder: noop если не задан (профили индексируются по sparse, лента случайная)
	var dense domain.Embedder = noopEmbedder{}
	if cfg.embedder != nil {
		dense = &embedderAdapter{inner: cfg.embedder}
	}
	embeddings := embeddinguc.NewProvider(dense, sparse.NewHashingEncoder(sparseVocabBits),
		embeddinguc.ProviderConfig{Dimensions: cfg.vectorDimensions}, logger)

	// Interface stays nil (not a typed nil pointer) without a completer.
	var completer domain.Completer
	if cfg.completer != nil {
		completer = llm.NewBreaker(&completerAdapter{inner: cfg.completer}, llm.BreakerConfig{Name: "sdk-llm"}, logger)
	}
	caller := llm.NewCaller(completer, cfg.llmTimeout, llm.Params{Temperature: 0.2, MaxTokens: 512})

	stopwords := sparse.Stopwords()
	understand := query.New(caller, query.Config{
		Tokenize: func(text string) []string { return sparse.Tokenize(text, stopwords) },
	}, logger)
	reranker := rerank.New(caller, rerank.Config{}, logger)

	interactions := interactionrepo.New(store)
	profiles := profilerepo.New(store)

	snapshot := hydrate.New(profiles, cfg.refreshInterval, logger)
	if err := snapshot.Load(ctx); err != nil && cfg.logger != nil {
		cfg.logger.Warn("initial hydration snapshot failed", "error", err)
	}
	runCtx, stop := context.WithCancel(context.Background())
	go snapshot.Run(runCtx)

	retriever := retrieval.New(index, interactions, retrieval.Config{}, logger)
	recommendSvc := recommend.New(index, embeddings, retriever, understand, reranker, snapshot,
		recommend.Config{}, logger)

	return &Client{
		store:        store,
		stop:         stop,
		recommendSvc: recommendSvc,
		swipeSvc:     swipeuc.New(interactions, profiles, logger),
		profileSvc:   profileuc.New(profiles, index, embeddings, snapshot, logger),
		healthSvc: healthuc.New(store,
			healthuc.Component{Name: "vector_index", Checker: index},
			healthuc.Component{Name: "embedding", Checker: embeddings},
		),
		usageSvc: usageuc.New(nil), // nil = unlimited mode (no budget tracking in SDK)
		obs:      obs,
	}, nil
}

// Close stops the background refresh and releases the connection.
func (c *Client) Close() {
	if c.stop != nil {
		c.stop()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Feed returns up to limit unseen users ranked by similarity to userID's profile.
// A zero limit uses the default of 20.
func (c *Client) Feed(ctx context.Context, userID string, limit int) (batch Batch, err error) {
	start := time.Now()
	defer func() { c.obs.observeBatch("feed", start, batch, err) }()

	batch, err = c.recommendSvc.Feed(ctx, recommend.FeedRequest{UserID: userID, Limit: limit})
	if err != nil {
		return Batch{}, fmt.Errorf("feed: %w", err)
	}
	return batch, nil
}

// Search answers a free-text request with a reranked shortlist of unseen users.
func (c *Client) Search(ctx context.Context, userID, text string, limit int) (batch Batch, err error) {
	start := time.Now()
	defer func() { c.obs.observeBatch("search", start, batch, err) }()

	batch, err = c.recommendSvc.Chat(ctx, recommend.ChatRequest{UserID: userID, Query: text, Limit: limit})
	if err != nil {
		return Batch{}, fmt.Errorf("search: %w", err)
	}
	return batch, nil
}

// Swipe records a decision. A repeated swipe on the same target is a no-op: the stored
// decision is kept and the result has Duplicate set.
func (c *Client) Swipe(ctx context.Context, actorID, targetID string, dir Direction) (s Swipe, err error) {
	start := time.Now()
	defer func() { c.obs.observe("swipe", start, err) }()

	res, err := c.swipeSvc.Record(ctx, actorID, targetID, string(dir))
	if err != nil {
		return Swipe{}, fmt.Errorf("swipe: %w", err)
	}
	return swipeFromDomain(res.Interaction, res.Duplicate), nil
}

// History lists every swipe made by actorID.
func (c *Client) History(ctx context.Context, actorID string) (out []Swipe, err error) {
	start := time.Now()
	defer func() { c.obs.observe("history", start, err) }()

	items, err := c.swipeSvc.History(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	out = make([]Swipe, len(items))
	for i, it := range items {
		out[i] = swipeFromDomain(it, false)
	}
	return out, nil
}

// UpsertProfile stores and indexes a profile, replacing any previous version.
func (c *Client) UpsertProfile(ctx context.Context, p Profile) (res UpsertResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("profile_upsert", start, err) }()

	r, err := c.profileSvc.Upsert(ctx, p)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert profile: %w", err)
	}
	return UpsertResult{Profile: r.Profile, Indexed: r.Indexed}, nil
}

// Profile returns a stored profile.
func (c *Client) Profile(ctx context.Context, userID string) (p Profile, err error) {
	start := time.Now()
	defer func() { c.obs.observe("profile_get", start, err) }()

	p, err = c.profileSvc.Get(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// DeleteProfile removes a profile from storage and the index.
func (c *Client) DeleteProfile(ctx context.Context, userID string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("profile_delete", start, err) }()

	if err = c.profileSvc.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
