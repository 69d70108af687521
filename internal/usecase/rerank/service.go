// Package rerank asks the LLM to pick and justify the best candidates for a chat query.
package rerank

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/logger"
	"github.com/kailas-cloud/matchdex/internal/metrics"
	"github.com/kailas-cloud/matchdex/internal/usecase/llm"
)

// FallbackReason is attached to every item of a fallback ranking.
const FallbackReason = "high vector similarity"

// MaxScore is the top of the rerank scale.
const MaxScore = 10.0

const prompt = `You match people in a discovery app. Given the searcher's request, their profile and a
numbered list of candidates, pick at most %d candidates that best fit the request, best first.
Score each from 0 to 10 and give a one-sentence reason.
Use only user_id values from the list.
Reply with JSON only: {"results": [{"user_id": "...", "score": 0-10, "reason": "..."}]}`

// Config bounds the rerank call.
type Config struct {
	MaxCandidates int
	TopN          int
}

// Candidate is one retrieval hit with its profile summary.
type Candidate struct {
	UserID  string
	Score   float64
	Summary string
}

// Input is one rerank request.
type Input struct {
	Query     string
	Requester domain.Profile
	// Candidates are in retrieval order.
	Candidates []Candidate
}

// Item is one ranked candidate.
type Item struct {
	UserID string
	Score  float64
	Reason string
}

// Output is identical in shape on the LLM and fallback paths.
type Output struct {
	Items    []Item
	Degraded bool
}

// Service reranks candidates.
type Service struct {
	llm    *llm.Caller
	cfg    Config
	logger *zap.Logger
}

// New creates a reranker.
func New(caller *llm.Caller, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 10
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	return &Service{llm: caller, cfg: cfg, logger: logger}
}

type rankedItem struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

type rankReply struct {
	Results []rankedItem `json:"results"`
}

// Rerank orders the first MaxCandidates candidates. Items with ids outside the input,
// duplicates and out-of-range scores are dropped. An empty valid result, a timeout or
// a malformed reply yields the retrieval order scaled to 0-10.
func (s *Service) Rerank(ctx context.Context, in Input) (Output, error) {
	cands := in.Candidates
	if len(cands) > s.cfg.MaxCandidates {
		cands = cands[:s.cfg.MaxCandidates]
	}
	if len(cands) == 0 {
		return Output{}, nil
	}

	reply, err := llm.JSON[rankReply](ctx, s.llm, domain.StageRerank, []domain.Message{
		{Role: domain.RoleSystem, Content: fmt.Sprintf(prompt, s.cfg.TopN)},
		{Role: domain.RoleUser, Content: buildUserMessage(in.Query, in.Requester, cands)},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{}, ctxErr
		}
		return s.fallback(ctx, cands, err), nil
	}

	items, dropped := s.validate(reply.Results, cands)
	if dropped > 0 {
		logger.FromContextOr(ctx, s.logger).Warn("Rerank dropped invalid items",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(items)),
		)
	}
	if len(items) == 0 {
		return s.fallback(ctx, cands, fmt.Errorf("%w: no valid items", domain.ErrMalformedProviderResponse)), nil
	}
	return Output{Items: items}, nil
}

// validate keeps items whose ids are in cands, first occurrence only, capped at TopN.
func (s *Service) validate(results []rankedItem, cands []Candidate) ([]Item, int) {
	allowed := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		allowed[c.UserID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(results))
	items := make([]Item, 0, min(len(results), s.cfg.TopN))
	dropped := 0
	for _, r := range results {
		id := strings.TrimSpace(r.UserID)
		_, known := allowed[id]
		_, dup := seen[id]
		if !known || dup || math.IsNaN(r.Score) || r.Score < 0 || r.Score > MaxScore {
			dropped++
			continue
		}
		if len(items) == s.cfg.TopN {
			continue
		}
		seen[id] = struct{}{}
		reason := strings.TrimSpace(r.Reason)
		if reason == "" {
			reason = FallbackReason
		}
		items = append(items, Item{UserID: id, Score: r.Score, Reason: reason})
	}
	return items, dropped
}

func (s *Service) fallback(ctx context.Context, cands []Candidate, cause error) Output {
	metrics.FallbackTotal.WithLabelValues(domain.StageRerank).Inc()
	logger.FromContextOr(ctx, s.logger).Warn("Rerank fallback",
		zap.String("stage", domain.StageRerank),
		zap.Error(cause),
	)
	return Output{Items: ScaleFallback(cands, s.cfg.TopN), Degraded: true}
}

// ScaleFallback maps retrieval scores onto 0-10 as 10*score/max, keeping order.
// When no score is positive the scale is rank-linear from 10 down.
func ScaleFallback(cands []Candidate, topN int) []Item {
	n := min(len(cands), topN)
	items := make([]Item, n)

	best := 0.0
	for _, c := range cands[:n] {
		if c.Score > best {
			best = c.Score
		}
	}

	for i, c := range cands[:n] {
		var score float64
		switch {
		case best > 0:
			score = MaxScore * math.Max(c.Score, 0) / best
		default:
			score = MaxScore * float64(n-i) / float64(n)
		}
		items[i] = Item{UserID: c.UserID, Score: math.Round(score*100) / 100, Reason: FallbackReason}
	}
	return items
}

func buildUserMessage(query string, requester domain.Profile, cands []Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", query)
	if summary := requester.Summary(); summary != "" {
		fmt.Fprintf(&b, "Searcher: %s\n", summary)
	}
	b.WriteString("Candidates:\n")
	for i, c := range cands {
		fmt.Fprintf(&b, "%d. user_id=%s: %s\n", i+1, c.UserID, c.Summary)
	}
	return b.String()
}

// IsSubset reports whether every item id is one of the candidate ids.
func IsSubset(items []Item, cands []Candidate) error {
	allowed := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		allowed[c.UserID] = struct{}{}
	}
	for _, it := range items {
		if _, ok := allowed[it.UserID]; !ok {
			return fmt.Errorf("%w: reranked id %s not in candidates", domain.ErrContractViolation, it.UserID)
		}
	}
	return nil
}
