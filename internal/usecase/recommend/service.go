// Package recommend runs the feed and chat flows and assembles their responses.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/logger"
	"github.com/kailas-cloud/matchdex/internal/usecase/embedding"
	"github.com/kailas-cloud/matchdex/internal/usecase/rerank"
	"github.com/kailas-cloud/matchdex/internal/usecase/retrieval"
)

// Config holds request limits.
type Config struct {
	DefaultLimit  int
	MaxLimit      int
	RerankTopN    int
	RerankMaxSent int
}

// FeedRequest asks for swipe candidates.
type FeedRequest struct {
	UserID string
	Limit  int
}

// ChatRequest is one free-text search message.
type ChatRequest struct {
	UserID    string
	Query     string
	SessionID string
	Limit     int
}

// Service wires retrieval, query understanding, reranking and hydration.
type Service struct {
	vectors    VectorReader
	embeddings Embeddings
	retriever  Retriever
	understand Understander
	reranker   Reranker
	hydrator   Hydrator
	cfg        Config
	logger     *zap.Logger
}

// New creates the service.
func New(
	vectors VectorReader, embeddings Embeddings, retriever Retriever,
	understand Understander, reranker Reranker, hydrator Hydrator,
	cfg Config, logger *zap.Logger,
) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.RerankTopN <= 0 {
		cfg.RerankTopN = 5
	}
	if cfg.RerankMaxSent <= 0 {
		cfg.RerankMaxSent = 10
	}
	return &Service{
		vectors:    vectors,
		embeddings: embeddings,
		retriever:  retriever,
		understand: understand,
		reranker:   reranker,
		hydrator:   hydrator,
		cfg:        cfg,
		logger:     logger,
	}
}

// Feed returns unseen candidates ranked by similarity to the user's own profile.
func (s *Service) Feed(ctx context.Context, req FeedRequest) (domain.RecommendationBatch, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.RecommendationBatch{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	limit := s.limit(req.Limit)
	log := logger.FromContextOr(ctx, s.logger)

	var stages []string
	pv, err := s.vectors.Get(ctx, req.UserID)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return domain.RecommendationBatch{}, ctx.Err()
	case errors.Is(err, domain.ErrNotFound):
		log.Info("No stored vector for user, sampling feed", zap.String("user_id", req.UserID))
		pv = domain.ProfileVector{}
		stages = append(stages, domain.StageEmbedding)
	default:
		log.Warn("Stored vector unavailable, sampling feed",
			zap.String("stage", domain.StageVectorIndex),
			zap.Error(err),
		)
		pv = domain.ProfileVector{}
		stages = append(stages, domain.StageVectorIndex)
	}

	res, err := s.retriever.Retrieve(ctx, retrieval.Request{
		ActorID: req.UserID,
		Dense:   pv.Dense,
		Sparse:  pv.Sparse,
		Target:  limit,
	})
	if err != nil {
		return domain.RecommendationBatch{}, fmt.Errorf("retrieve: %w", err)
	}

	ranked := make([]Ranked, len(res.Candidates))
	for i, c := range res.Candidates {
		ranked[i] = Ranked{UserID: c.UserID, Score: c.RawScore}
	}
	lookup, err := s.lookup(ctx, res.IDs())
	if err != nil {
		return domain.RecommendationBatch{}, err
	}

	return Assemble(AssembleInput{
		Ranked:         ranked,
		Limit:          limit,
		DegradedStages: append(stages, res.DegradedStages...),
		Message:        res.Message,
	}, lookup), nil
}

// Chat answers a free-text message: a reply for small talk and questions,
// an LLM-reranked shortlist for searches.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (domain.RecommendationBatch, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.RecommendationBatch{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	text := strings.TrimSpace(req.Query)

	u, err := s.understand.Understand(ctx, text)
	if err != nil {
		return domain.RecommendationBatch{}, fmt.Errorf("understand query: %w", err)
	}
	stages := append([]string(nil), u.DegradedStages...)

	if !u.IsSearch() {
		reply, fallback, err := s.understand.Reply(ctx, text, u.Intent)
		if err != nil {
			return domain.RecommendationBatch{}, fmt.Errorf("reply: %w", err)
		}
		if fallback {
			stages = append(stages, domain.StageReply)
		}
		return Assemble(AssembleInput{
			Query:          &text,
			SessionID:      req.SessionID,
			Intent:         u.Intent,
			Confidence:     u.Confidence,
			DegradedStages: stages,
			Reply:          reply,
		}, nil), nil
	}

	dense, sparse, err := s.embedQuery(ctx, u.Optimized, strings.Join(u.Keywords, " "))
	if err != nil {
		return domain.RecommendationBatch{}, err
	}
	if dense.Fallback {
		stages = append(stages, domain.StageEmbedding)
	}
	if sparse.Fallback {
		stages = append(stages, domain.StageSparse)
	}

	res, err := s.retriever.Retrieve(ctx, retrieval.Request{
		ActorID: req.UserID,
		Dense:   dense.Vector,
		Sparse:  sparse.Vector,
	})
	if err != nil {
		return domain.RecommendationBatch{}, fmt.Errorf("retrieve: %w", err)
	}
	stages = append(stages, res.DegradedStages...)

	sent := res.Candidates[:min(len(res.Candidates), s.cfg.RerankMaxSent)]
	ids := make([]string, 0, len(sent)+1)
	for _, c := range sent {
		ids = append(ids, c.UserID)
	}
	lookup, err := s.lookup(ctx, append(ids, req.UserID))
	if err != nil {
		return domain.RecommendationBatch{}, err
	}

	cands := make([]rerank.Candidate, len(sent))
	for i, c := range sent {
		summary := c.UserID
		if p, ok := lookup(c.UserID); ok {
			summary = p.Summary()
		}
		cands[i] = rerank.Candidate{UserID: c.UserID, Score: c.RawScore, Summary: summary}
	}
	requester, _ := lookup(req.UserID)

	out, err := s.reranker.Rerank(ctx, rerank.Input{Query: text, Requester: requester, Candidates: cands})
	if err != nil {
		return domain.RecommendationBatch{}, fmt.Errorf("rerank: %w", err)
	}
	if err := rerank.IsSubset(out.Items, cands); err != nil {
		logger.FromContextOr(ctx, s.logger).Error("Reranker returned foreign ids", zap.Error(err))
		return domain.RecommendationBatch{}, err
	}
	if out.Degraded {
		stages = append(stages, domain.StageRerank)
	}

	ranked := make([]Ranked, len(out.Items))
	for i, it := range out.Items {
		ranked[i] = Ranked{UserID: it.UserID, Score: it.Score, Reason: it.Reason}
	}

	limit := s.cfg.RerankTopN
	if req.Limit > 0 && req.Limit < limit {
		limit = req.Limit
	}
	return Assemble(AssembleInput{
		Query:          &text,
		SessionID:      req.SessionID,
		Ranked:         ranked,
		Limit:          limit,
		Intent:         u.Intent,
		Confidence:     u.Confidence,
		Keywords:       u.Keywords,
		DegradedStages: stages,
		Message:        res.Message,
	}, lookup), nil
}

// embedQuery embeds the optimized text and the keywords concurrently.
func (s *Service) embedQuery(
	ctx context.Context, optimized, keywords string,
) (embedding.DenseResult, embedding.SparseResult, error) {
	var (
		dense  embedding.DenseResult
		sparse embedding.SparseResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = s.embeddings.Dense(gctx, optimized)
		return err
	})
	g.Go(func() error {
		var err error
		sparse, err = s.embeddings.Sparse(gctx, keywords)
		return err
	})
	if err := g.Wait(); err != nil {
		return dense, sparse, fmt.Errorf("embed query: %w", err)
	}
	return dense, sparse, nil
}

// lookup resolves ids for assembly. A store outage during resolution is not
// fatal: the snapshot's profiles are used and Assemble reports what it had to drop.
func (s *Service) lookup(ctx context.Context, ids []string) (Lookup, error) {
	profiles, err := s.hydrator.Resolve(ctx, ids)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, domain.ErrProviderUnavailable) && profiles != nil:
		logger.FromContextOr(ctx, s.logger).Warn("Hydration incomplete, assembling from snapshot",
			zap.String("stage", domain.StageHydration),
			zap.Int("resolved", len(profiles)),
			zap.Int("requested", len(ids)),
			zap.Error(err),
		)
	default:
		return nil, fmt.Errorf("hydrate: %w", err)
	}
	return func(id string) (domain.Profile, bool) {
		p, ok := profiles[id]
		return p, ok
	}, nil
}

func (s *Service) limit(n int) int {
	switch {
	case n <= 0:
		return s.cfg.DefaultLimit
	case n > s.cfg.MaxLimit:
		return s.cfg.MaxLimit
	default:
		return n
	}
}
