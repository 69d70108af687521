// Package query turns a free-text chat message into an intent, an embedding-friendly
// rewrite and a keyword list. Every LLM step has a deterministic fallback.
package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/logger"
	"github.com/kailas-cloud/matchdex/internal/metrics"
	"github.com/kailas-cloud/matchdex/internal/usecase/llm"
)

// Fallback values.
const (
	FallbackIntent     = domain.IntentSearch
	FallbackConfidence = 0.8

	minKeywords = 3
	maxKeywords = 5
)

// Canned replies used when the LLM cannot answer.
var fallbackReplies = map[domain.Intent]string{
	domain.IntentChat:     "Hi! Tell me what kind of people you are looking for and I will find matches.",
	domain.IntentQuestion: "I can help you find people by skills, roles and interests. Describe who you want to meet.",
}

// Tokenizer splits text into lowercase terms with stopwords removed.
type Tokenizer func(text string) []string

// Config tunes the pipeline.
type Config struct {
	MaxQueryChars int
	Tokenize      Tokenizer
}

// Classification is the detected intent.
type Classification struct {
	Intent     domain.Intent
	Confidence float64
	Fallback   bool
}

// Understanding is the result of the whole pipeline for one message.
type Understanding struct {
	Text           string
	Intent         domain.Intent
	Confidence     float64
	Optimized      string
	Keywords       []string
	DegradedStages []string
}

// IsSearch reports whether retrieval should run.
func (u Understanding) IsSearch() bool { return u.Intent == domain.IntentSearch }

// Pipeline runs intent classification, query optimization and keyword extraction.
type Pipeline struct {
	llm    *llm.Caller
	cfg    Config
	logger *zap.Logger
}

// New creates a pipeline.
func New(caller *llm.Caller, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.MaxQueryChars <= 0 {
		cfg.MaxQueryChars = 100
	}
	if cfg.Tokenize == nil {
		cfg.Tokenize = fieldsTokenizer
	}
	return &Pipeline{llm: caller, cfg: cfg, logger: logger}
}

type intentReply struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func (r *intentReply) Validate() error {
	switch domain.Intent(strings.ToLower(strings.TrimSpace(r.Intent))) {
	case domain.IntentSearch, domain.IntentChat, domain.IntentQuestion:
	default:
		return fmt.Errorf("unknown intent %q", r.Intent)
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	return nil
}

type optimizeReply struct {
	Query string `json:"query"`
}

func (r *optimizeReply) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return errors.New("empty query")
	}
	return nil
}

type keywordsReply struct {
	Keywords []string `json:"keywords"`
}

func (r *keywordsReply) Validate() error {
	r.Keywords = normalizeKeywords(r.Keywords)
	if len(r.Keywords) < minKeywords {
		return fmt.Errorf("got %d keywords, want at least %d", len(r.Keywords), minKeywords)
	}
	return nil
}

// Classify detects the intent of text. Falls back to {search, 0.8}.
func (p *Pipeline) Classify(ctx context.Context, text string) (Classification, error) {
	reply, err := llm.JSON[intentReply](ctx, p.llm, domain.StageIntent, []domain.Message{
		{Role: domain.RoleSystem, Content: intentPrompt},
		{Role: domain.RoleUser, Content: text},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Classification{}, ctxErr
		}
		p.fallback(ctx, domain.StageIntent, err)
		return Classification{Intent: FallbackIntent, Confidence: FallbackConfidence, Fallback: true}, nil
	}
	return Classification{
		Intent:     domain.Intent(strings.ToLower(strings.TrimSpace(reply.Intent))),
		Confidence: reply.Confidence,
	}, nil
}

// Optimize rewrites text for embedding. Falls back to the trimmed original.
// The result never exceeds MaxQueryChars runes.
func (p *Pipeline) Optimize(ctx context.Context, text string) (string, bool, error) {
	reply, err := llm.JSON[optimizeReply](ctx, p.llm, domain.StageOptimize, []domain.Message{
		{Role: domain.RoleSystem, Content: fmt.Sprintf(optimizePrompt, p.cfg.MaxQueryChars)},
		{Role: domain.RoleUser, Content: text},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, ctxErr
		}
		p.fallback(ctx, domain.StageOptimize, err)
		return capRunes(text, p.cfg.MaxQueryChars), true, nil
	}
	return capRunes(reply.Query, p.cfg.MaxQueryChars), false, nil
}

// Keywords extracts 3-5 lowercase keywords. Falls back to naive tokenization.
func (p *Pipeline) Keywords(ctx context.Context, text string) ([]string, bool, error) {
	reply, err := llm.JSON[keywordsReply](ctx, p.llm, domain.StageKeywords, []domain.Message{
		{Role: domain.RoleSystem, Content: keywordsPrompt},
		{Role: domain.RoleUser, Content: text},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		p.fallback(ctx, domain.StageKeywords, err)
		return p.NaiveKeywords(text), true, nil
	}
	return reply.Keywords, false, nil
}

// NaiveKeywords tokenizes text, drops stopwords and duplicates and keeps the first five.
func (p *Pipeline) NaiveKeywords(text string) []string {
	return normalizeKeywords(p.cfg.Tokenize(text))
}

// Understand classifies text and, for search intents, optimizes it and extracts
// keywords concurrently. A done ctx aborts with its error and no partial result.
func (p *Pipeline) Understand(ctx context.Context, text string) (Understanding, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Understanding{}, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	u := Understanding{Text: text}
	cls, err := p.Classify(ctx, text)
	if err != nil {
		return Understanding{}, err
	}
	u.Intent, u.Confidence = cls.Intent, cls.Confidence
	if cls.Fallback {
		u.DegradedStages = append(u.DegradedStages, domain.StageIntent)
	}
	if !u.IsSearch() {
		return u, nil
	}

	var (
		optimized                          string
		keywords                           []string
		optimizeFallback, keywordsFallback bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		optimized, optimizeFallback, err = p.Optimize(gctx, text)
		return err
	})
	g.Go(func() error {
		var err error
		keywords, keywordsFallback, err = p.Keywords(gctx, text)
		return err
	})
	if err := g.Wait(); err != nil {
		return Understanding{}, err
	}
	if err := ctx.Err(); err != nil {
		return Understanding{}, err
	}

	u.Optimized, u.Keywords = optimized, keywords
	if optimizeFallback {
		u.DegradedStages = append(u.DegradedStages, domain.StageOptimize)
	}
	if keywordsFallback {
		u.DegradedStages = append(u.DegradedStages, domain.StageKeywords)
	}
	return u, nil
}

// Reply answers a non-search message. Falls back to a canned text per intent.
func (p *Pipeline) Reply(ctx context.Context, text string, intent domain.Intent) (string, bool, error) {
	out, err := p.llm.Text(ctx, domain.StageReply, []domain.Message{
		{Role: domain.RoleSystem, Content: replyPrompt},
		{Role: domain.RoleUser, Content: text},
	})
	out = strings.TrimSpace(out)
	if err == nil && out == "" {
		err = fmt.Errorf("%w: empty reply", domain.ErrMalformedProviderResponse)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, ctxErr
		}
		p.fallback(ctx, domain.StageReply, err)
		reply, ok := fallbackReplies[intent]
		if !ok {
			reply = fallbackReplies[domain.IntentChat]
		}
		return reply, true, nil
	}
	return out, false, nil
}

func (p *Pipeline) fallback(ctx context.Context, stage string, err error) {
	metrics.FallbackTotal.WithLabelValues(stage).Inc()
	logger.FromContextOr(ctx, p.logger).Warn("Query understanding fallback",
		zap.String("stage", stage),
		zap.Error(err),
	)
}

// normalizeKeywords lowercases, trims, dedups and caps the list.
func normalizeKeywords(in []string) []string {
	out := make([]string, 0, min(len(in), maxKeywords))
	for _, k := range in {
		k = strings.Join(strings.Fields(strings.ToLower(k)), " ")
		if k == "" || slices.Contains(out, k) {
			continue
		}
		out = append(out, k)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// capRunes trims s and cuts it to at most n runes, preferring a word boundary.
func capRunes(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n]
	cut := string(r)
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

func fieldsTokenizer(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
