// Package retrieval selects unseen candidates for a user by progressively widening
// a vector search and topping up with uniform random sampling.
package retrieval

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/logger"
	"github.com/kailas-cloud/matchdex/internal/metrics"
)

// Terminal-state messages shown to the user.
const (
	MessageExploredAll  = "You've explored all available profiles. Check back later for new people."
	MessageExploredMost = "You've explored most profiles. Here is everyone left."
)

// Config holds the search breadths (ascending) and the target count.
type Config struct {
	Breadths []int
	Target   int
}

// Request is one retrieval.
type Request struct {
	ActorID string
	Dense   []float32
	Sparse  domain.SparseVector
	// Target overrides Config.Target when positive.
	Target int
}

// Result lists candidates: vector hits in index order, then fallback samples.
type Result struct {
	Candidates     []domain.CandidateScore
	Degraded       bool
	DegradedStages []string
	Exhausted      bool
	Message        string
	// Breadth is the widest breadth queried, 0 when the index was not used.
	Breadth int
}

// IDs returns the candidate ids in order.
func (r Result) IDs() []string {
	ids := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		ids[i] = c.UserID
	}
	return ids
}

func (r *Result) degrade(stage string) {
	r.Degraded = true
	if !slices.Contains(r.DegradedStages, stage) {
		r.DegradedStages = append(r.DegradedStages, stage)
	}
}

// Service is the candidate retrieval orchestrator.
type Service struct {
	index  Index
	log    InteractionLog
	cfg    Config
	logger *zap.Logger
}

// New creates a retrieval service.
func New(index Index, log InteractionLog, cfg Config, logger *zap.Logger) *Service {
	if len(cfg.Breadths) == 0 {
		cfg.Breadths = []int{50, 150, 300}
	}
	if cfg.Target <= 0 {
		cfg.Target = 20
	}
	return &Service{index: index, log: log, cfg: cfg, logger: logger}
}

// Target returns the configured target count.
func (s *Service) Target() int { return s.cfg.Target }

// Retrieve returns at most target unseen candidates, never the actor or a seen target.
// Exhaustion is reported through Result.Message, not an error. It fails with
// ErrProviderUnavailable when the seen-set cannot be loaded or when neither the
// index nor fallback sampling produced anything.
func (s *Service) Retrieve(ctx context.Context, req Request) (Result, error) {
	target := s.cfg.Target
	if req.Target > 0 {
		target = req.Target
	}
	log := logger.FromContextOr(ctx, s.logger)

	seen, err := s.log.SeenTargets(ctx, req.ActorID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, fmt.Errorf("%w: load seen targets: %w", domain.ErrProviderUnavailable, err)
	}
	exclude := make(map[string]struct{}, len(seen)+1)
	for id := range seen {
		exclude[id] = struct{}{}
	}
	exclude[req.ActorID] = struct{}{}

	var res Result
	picked := make(map[string]struct{}, target)
	vectorOK := false

	if domain.IsZero(req.Dense) {
		res.degrade(domain.StageEmbedding)
	} else {
		vectorOK, err = s.progressive(ctx, req, target, exclude, picked, &res)
		if err != nil {
			return Result{}, err
		}
	}
	vectorCount := len(res.Candidates)

	if len(res.Candidates) < target {
		blocked := make(map[string]struct{}, len(exclude)+len(picked))
		for id := range exclude {
			blocked[id] = struct{}{}
		}
		for id := range picked {
			blocked[id] = struct{}{}
		}

		ids, err := s.log.RandomUnseen(ctx, req.ActorID, blocked, target-len(res.Candidates))
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			if !vectorOK && len(res.Candidates) == 0 {
				return Result{}, fmt.Errorf("%w: index and fallback sampling both failed: %w",
					domain.ErrProviderUnavailable, err)
			}
			metrics.FallbackTotal.WithLabelValues(domain.StageFallback).Inc()
			log.Warn("Fallback sampling failed", zap.String("stage", domain.StageFallback), zap.Error(err))
			res.degrade(domain.StageFallback)
		default:
			for _, id := range ids {
				if len(res.Candidates) == target {
					break
				}
				if _, skip := blocked[id]; skip {
					continue
				}
				blocked[id] = struct{}{}
				picked[id] = struct{}{}
				res.Candidates = append(res.Candidates, domain.CandidateScore{UserID: id, Source: domain.SourceFallback})
			}
			if len(res.Candidates) > vectorCount {
				metrics.FallbackTotal.WithLabelValues(domain.StageFallback).Inc()
				res.degrade(domain.StageFallback)
			}
		}
	}

	if err := checkExclusion(res.Candidates, exclude); err != nil {
		log.Error("Retrieval broke exclusion", zap.Error(err))
		return Result{}, err
	}

	switch {
	case len(res.Candidates) == 0:
		res.Exhausted = true
		res.Message = MessageExploredAll
	case len(res.Candidates) < target:
		res.Message = MessageExploredMost
	}

	metrics.RetrievalCandidates.WithLabelValues(string(domain.SourceVector)).Observe(float64(vectorCount))
	metrics.RetrievalCandidates.WithLabelValues(string(domain.SourceFallback)).Observe(float64(len(res.Candidates) - vectorCount))
	log.Debug("Candidates retrieved",
		zap.String("actor_id", req.ActorID),
		zap.Int("seen", len(seen)),
		zap.Int("vector", vectorCount),
		zap.Int("fallback", len(res.Candidates)-vectorCount),
		zap.Int("breadth", res.Breadth),
		zap.Bool("degraded", res.Degraded),
	)
	return res, nil
}

// progressive queries each breadth until target unseen hits are collected.
// Earlier finds are kept; a wider breadth only appends. Returns false when the index failed.
func (s *Service) progressive(
	ctx context.Context, req Request, target int,
	exclude, picked map[string]struct{}, res *Result,
) (bool, error) {
	excludeIDs := make([]string, 0, len(exclude))
	for id := range exclude {
		excludeIDs = append(excludeIDs, id)
	}
	slices.Sort(excludeIDs)

	for _, breadth := range s.cfg.Breadths {
		metrics.RetrievalBreadthTotal.WithLabelValues(strconv.Itoa(breadth)).Inc()
		res.Breadth = breadth

		hits, err := s.index.Search(ctx, domain.IndexQuery{
			Dense:      req.Dense,
			Sparse:     req.Sparse,
			TopK:       breadth,
			ExcludeIDs: excludeIDs,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			metrics.FallbackTotal.WithLabelValues(domain.StageVectorIndex).Inc()
			logger.FromContextOr(ctx, s.logger).Warn("Vector index unavailable, sampling instead",
				zap.String("stage", domain.StageVectorIndex),
				zap.Int("breadth", breadth),
				zap.Error(err),
			)
			res.degrade(domain.StageVectorIndex)
			return false, nil
		}

		for _, h := range hits {
			if _, skip := exclude[h.UserID]; skip {
				continue
			}
			if _, dup := picked[h.UserID]; dup {
				continue
			}
			picked[h.UserID] = struct{}{}
			res.Candidates = append(res.Candidates, domain.CandidateScore{
				UserID:   h.UserID,
				RawScore: h.Score,
				Source:   domain.SourceVector,
			})
		}

		if len(res.Candidates) >= target {
			for _, c := range res.Candidates[target:] {
				delete(picked, c.UserID)
			}
			res.Candidates = res.Candidates[:target]
			return true, nil
		}
		// The index has nothing beyond what it returned.
		if len(hits) < breadth {
			return true, nil
		}
	}
	return true, nil
}

func checkExclusion(cands []domain.CandidateScore, exclude map[string]struct{}) error {
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		if _, bad := exclude[c.UserID]; bad {
			return fmt.Errorf("%w: candidate %s is excluded", domain.ErrContractViolation, c.UserID)
		}
		if _, dup := seen[c.UserID]; dup {
			return fmt.Errorf("%w: candidate %s repeated", domain.ErrContractViolation, c.UserID)
		}
		seen[c.UserID] = struct{}{}
	}
	return nil
}
