package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/config"
	"github.com/kailas-cloud/matchdex/internal/db"
	dbRedis "github.com/kailas-cloud/matchdex/internal/db/redis"
	"github.com/kailas-cloud/matchdex/internal/domain"
	logpkg "github.com/kailas-cloud/matchdex/internal/logger"
	"github.com/kailas-cloud/matchdex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/matchdex/internal/repository/budget"
	"github.com/kailas-cloud/matchdex/internal/repository/embcache"
	interactionrepo "github.com/kailas-cloud/matchdex/internal/repository/interaction"
	profilerepo "github.com/kailas-cloud/matchdex/internal/repository/profile"
	"github.com/kailas-cloud/matchdex/internal/repository/vectorindex"
	chiTransport "github.com/kailas-cloud/matchdex/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/matchdex/internal/transport/openai"
	qdrantTransport "github.com/kailas-cloud/matchdex/internal/transport/qdrant"
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
	"github.com/kailas-cloud/matchdex/internal/version"
)

// vectorIndex is what the composition root needs from either backend.
type vectorIndex interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, pv domain.ProfileVector) error
	Get(ctx context.Context, userID string) (domain.ProfileVector, error)
	Delete(ctx context.Context, userID string) error
	Search(ctx context.Context, q domain.IndexQuery) ([]domain.IndexHit, error)
	HealthCheck(ctx context.Context) error
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting matchdex API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("vector_backend", cfg.VectorIndex.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	policy := db.ConnectPolicy{
		MaxAttempts: cfg.Database.ConnectAttempts,
		BaseDelay:   cfg.Database.ConnectBaseDelay,
		MaxDelay:    cfg.Database.ConnectMaxDelay,
	}

	store, err := connectStore(ctx, cfg.Database, policy, logger)
	if err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	defer store.Close()
	logger.Info("Connected to database")

	// Single BudgetTracker shared by the document and query embedders and the usage report.
	// Interfaces stay nil (not typed nil pointers) when no budget is configured.
	var (
		budget       embeddinguc.BudgetChecker
		budgetReader usageuc.BudgetReader
	)
	if b := cfg.Embedding.Budget; b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if b.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		tracker := embeddinguc.NewBudgetTracker(cfg.Embedding.Provider,
			embeddinguc.BudgetLimits{Daily: b.DailyTokenLimit, Monthly: b.MonthlyTokenLimit}, action, logger)
		tracker.WithStore(ctx, budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour))
		budget, budgetReader = tracker, tracker
	}

	sparseEncoder := buildSparseEncoder(cfg.Embedding.Sparse, cfg.Embedding.Timeout)
	providerCfg := embeddinguc.ProviderConfig{
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	}
	docEmbeddings := embeddinguc.NewProvider(
		buildEmbedder(cfg.Embedding, metrics.PurposeProfile, cfg.Embedding.DocumentInstruction, store, budget, logger),
		sparseEncoder, providerCfg, logger)
	queryEmbeddings := embeddinguc.NewProvider(
		buildEmbedder(cfg.Embedding, metrics.PurposeQuery, cfg.Embedding.QueryInstruction, store, budget, logger),
		sparseEncoder, providerCfg, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("sparse", cfg.Embedding.Sparse.Provider),
	)

	index, closeIndex, err := buildVectorIndex(ctx, cfg, store, policy, logger)
	if err != nil {
		logger.Fatal("Vector index not ready", zap.Error(err))
	}
	defer closeIndex()
	if err := index.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index schema", zap.Error(err))
	}

	// LLM chain: provider -> circuit breaker -> bounded caller.
	// An unconfigured provider leaves every LLM step on its fallback.
	var (
		completer domain.Completer
		llmCheck  healthuc.Checker
	)
	if cfg.LLM.Configured() {
		chat := openaiTransport.NewCompleter(&openaiTransport.ChatConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Logger:  logger,
		})
		completer = llm.NewBreaker(chat, llm.BreakerConfig{
			Name:                "llm",
			MaxRequests:         cfg.LLM.Breaker.MaxRequests,
			Interval:            cfg.LLM.Breaker.Interval,
			Timeout:             cfg.LLM.Breaker.Timeout,
			ConsecutiveFailures: cfg.LLM.Breaker.ConsecutiveFailures,
		}, logger)
		llmCheck = chat
	} else {
		logger.Warn("LLM provider not configured, query understanding and reranking run on fallbacks")
	}
	caller := llm.NewCaller(completer, cfg.LLM.Timeout, llm.Params{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})

	stopwords := sparse.Stopwords()
	understand := query.New(caller, query.Config{
		MaxQueryChars: cfg.LLM.MaxQueryChars,
		Tokenize:      func(text string) []string { return sparse.Tokenize(text, stopwords) },
	}, logger)
	reranker := rerank.New(caller, rerank.Config{
		MaxCandidates: cfg.Rerank.MaxCandidates,
		TopN:          cfg.Rerank.TopN,
	}, logger)

	// Repositories
	interactions := interactionrepo.New(store)
	profiles := profilerepo.New(store)

	snapshot := hydrate.New(profiles, cfg.Hydration.RefreshInterval, logger)
	if err := snapshot.Load(ctx); err != nil {
		// Resolve fetches misses on demand, so an empty snapshot only costs latency.
		logger.Warn("Initial hydration snapshot failed", zap.Error(err))
	}
	go snapshot.Run(ctx)

	// Use case services
	retriever := retrieval.New(index, interactions, retrieval.Config{
		Breadths: cfg.Retrieval.Breadths,
		Target:   cfg.Retrieval.Target,
	}, logger)
	recommendSvc := recommend.New(index, queryEmbeddings, retriever, understand, reranker, snapshot, recommend.Config{
		DefaultLimit:  cfg.Retrieval.DefaultLimit,
		MaxLimit:      cfg.Retrieval.MaxLimit,
		RerankTopN:    cfg.Rerank.TopN,
		RerankMaxSent: cfg.Rerank.MaxCandidates,
	}, logger)
	profileSvc := profileuc.New(profiles, index, docEmbeddings, snapshot, logger)
	swipeSvc := swipeuc.New(interactions, profiles, logger)
	usageSvc := usageuc.New(budgetReader)
	healthSvc := healthuc.New(store,
		healthuc.Component{Name: "vector_index", Checker: index},
		healthuc.Component{Name: "embedding", Checker: queryEmbeddings},
		healthuc.Component{Name: "llm", Checker: llmCheck},
	)

	server := chiTransport.NewServer(recommendSvc, swipeSvc, profileSvc, usageSvc, healthSvc, logger)
	handler := server.Handler(
		jsonRecoverer(logger),
		chiMiddleware.RequestID,
		wideEventMiddleware(logger),
		chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys),
		metrics.Middleware(),
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// connectStore dials the key-value store with bounded backoff and verifies it answers PING.
func connectStore(
	ctx context.Context, cfg config.DatabaseConfig, policy db.ConnectPolicy, logger *zap.Logger,
) (*dbRedis.Store, error) {
	readyCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second*
		time.Duration(max(policy.MaxAttempts, 1)))
	defer cancel()

	store, err := db.Connect(readyCtx, policy, func(ctx context.Context) (*dbRedis.Store, error) {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Driver:   dbRedis.Driver(cfg.Driver),
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create store: %w", err)
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("ping store: %w", err)
		}
		return s, nil
	}, func(err error, wait time.Duration) {
		logger.Warn("Database not reachable, retrying", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	return store, nil
}

// buildVectorIndex selects the hybrid index backend. The returned func releases its connection.
func buildVectorIndex(
	ctx context.Context, cfg config.Config, store *dbRedis.Store, policy db.ConnectPolicy, logger *zap.Logger,
) (vectorIndex, func(), error) {
	vi := cfg.VectorIndex
	if vi.Backend != "qdrant" {
		return vectorindex.New(store, vectorindex.Config{
			Dimensions:          cfg.Embedding.Dimensions,
			DenseWeight:         vi.DenseWeight,
			SparseWeight:        vi.SparseWeight,
			HNSWM:               vi.HNSWM,
			HNSWEFConstruct:     vi.HNSWEFConstruct,
			HNSWEFRuntime:       vi.HNSWEFRuntime,
			MaxPushdownExcludes: vi.MaxPushdownExcludes,
		}), func() {}, nil
	}

	client, err := qdrantTransport.Connect(ctx, qdrantTransport.ClientConfig{
		Host:      vi.Qdrant.Host,
		Port:      vi.Qdrant.Port,
		APIKey:    vi.Qdrant.APIKey,
		UseTLS:    vi.Qdrant.UseTLS,
		UserAgent: version.UserAgent(),
	}, policy, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect qdrant: %w", err)
	}
	index := qdrantTransport.NewIndex(client, qdrantTransport.IndexConfig{
		Collection: vi.Qdrant.Collection,
		Dimensions: cfg.Embedding.Dimensions,
		HNSWM:      vi.HNSWM,
		HNSWEF:     vi.HNSWEFConstruct,
	})
	return index, func() { _ = client.Close() }, nil
}

// buildSparseEncoder returns the TEI client or the local hashing encoder.
func buildSparseEncoder(cfg config.SparseConfig, timeout time.Duration) domain.SparseEncoder {
	if cfg.Provider == "tei" {
		return sparse.NewTEIEncoder(sparse.TEIConfig{URL: cfg.URL, Timeout: timeout})
	}
	return sparse.NewHashingEncoder(cfg.VocabBits)
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	cfg config.EmbeddingConfig,
	purpose, instruction string,
	store *dbRedis.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) domain.Embedder {
	// Base provider (with transport metrics built-in)
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Purpose:    purpose,
		Logger:     logger,
	})

	if cfg.Cache {
		embedder = embcache.New(embedder, store, embcache.Options{
			Namespace:  fmt.Sprintf("%s:%d", cfg.Model, cfg.Dimensions),
			Dimensions: cfg.Dimensions,
		}, metrics.EmbeddingCacheCounter(purpose), logger)
	}

	// Instrumented (budget + usage accounting)
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, budget, logger)

	// Instruction prefix (outermost, so the cache key includes the instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line: one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
