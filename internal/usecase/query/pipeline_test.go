package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/usecase/llm"
)

// scriptedCompleter answers by the system prompt of each request.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[string]string // prompt prefix -> reply
	errs    map[string]error
	calls   []string
	hook    func(ctx context.Context, prompt string) error
}

func (s *scriptedCompleter) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	prompt := req.Messages[0].Content
	key := promptKey(prompt)
	s.mu.Lock()
	s.calls = append(s.calls, key)
	s.mu.Unlock()
	if s.hook != nil {
		if err := s.hook(ctx, key); err != nil {
			return "", err
		}
	}
	if err := s.errs[key]; err != nil {
		return "", err
	}
	return s.replies[key], nil
}

func promptKey(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, "You route"):
		return "intent"
	case strings.HasPrefix(prompt, "Rewrite"):
		return "optimize"
	case strings.HasPrefix(prompt, "Extract"):
		return "keywords"
	default:
		return "reply"
	}
}

func newPipeline(c domain.Completer) *Pipeline {
	caller := llm.NewCaller(c, time.Second, llm.Params{})
	return New(caller, Config{MaxQueryChars: 100}, zap.NewNop())
}

func TestClassify_Success(t *testing.T) {
	p := newPipeline(&scriptedCompleter{replies: map[string]string{
		"intent": `{"intent": "question", "confidence": 0.95}`,
	}})
	cls, err := p.Classify(context.Background(), "how does matching work?")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.Intent != domain.IntentQuestion || cls.Confidence != 0.95 || cls.Fallback {
		t.Errorf("got %+v", cls)
	}
}

func TestClassify_UnparsableFallsBack(t *testing.T) {
	tests := map[string]string{
		"prose":         "I think this is a search request",
		"unknown field": `{"intent": "search", "confidence": 0.9, "extra": 1}`,
		"bad intent":    `{"intent": "shopping", "confidence": 0.9}`,
		"bad conf":      `{"intent": "chat", "confidence": 7}`,
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			p := newPipeline(&scriptedCompleter{replies: map[string]string{"intent": reply}})
			cls, err := p.Classify(context.Background(), "find me a go developer")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if cls.Intent != domain.IntentSearch || cls.Confidence != 0.8 || !cls.Fallback {
				t.Errorf("expected {search 0.8} fallback, got %+v", cls)
			}
		})
	}
}

func TestClassify_FencedReply(t *testing.T) {
	p := newPipeline(&scriptedCompleter{replies: map[string]string{
		"intent": "```json\n{\"intent\": \"chat\", \"confidence\": 0.7}\n```",
	}})
	cls, err := p.Classify(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.Intent != domain.IntentChat || cls.Fallback {
		t.Errorf("got %+v", cls)
	}
}

func TestOptimize_CappedAt100(t *testing.T) {
	long := strings.Repeat("backend engineer ", 20)
	p := newPipeline(&scriptedCompleter{replies: map[string]string{
		"optimize": `{"query": "` + long + `"}`,
	}})
	out, fb, err := p.Optimize(context.Background(), "x")
	if err != nil || fb {
		t.Fatalf("Optimize: %q %v %v", out, fb, err)
	}
	if n := utf8.RuneCountInString(out); n > 100 || n == 0 {
		t.Errorf("len = %d", n)
	}
}

func TestOptimize_FallbackIsOriginal(t *testing.T) {
	p := newPipeline(&scriptedCompleter{errs: map[string]error{"optimize": errors.New("down")}})
	out, fb, err := p.Optimize(context.Background(), "  rust developer in Berlin  ")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !fb || out != "rust developer in Berlin" {
		t.Errorf("got %q fallback=%v", out, fb)
	}
}

func TestKeywords_NormalizesReply(t *testing.T) {
	p := newPipeline(&scriptedCompleter{replies: map[string]string{
		"keywords": `{"keywords": ["Go", "Kubernetes", "go", "Distributed  Systems", "sre", "linux", "rust"]}`,
	}})
	kws, fb, err := p.Keywords(context.Background(), "x")
	if err != nil || fb {
		t.Fatalf("Keywords: %v %v", fb, err)
	}
	want := []string{"go", "kubernetes", "distributed systems", "sre", "linux"}
	if strings.Join(kws, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", kws, want)
	}
}

func TestKeywords_TooFewFallsBack(t *testing.T) {
	p := newPipeline(&scriptedCompleter{replies: map[string]string{
		"keywords": `{"keywords": ["go"]}`,
	}})
	kws, fb, err := p.Keywords(context.Background(), "Go Rust Python Java Kotlin Swift")
	if err != nil {
		t.Fatalf("Keywords: %v", err)
	}
	if !fb {
		t.Error("expected fallback")
	}
	if len(kws) != 5 || kws[0] != "go" {
		t.Errorf("naive keywords = %v", kws)
	}
}

func TestUnderstand_NonSearchExitsEarly(t *testing.T) {
	c := &scriptedCompleter{replies: map[string]string{
		"intent": `{"intent": "chat", "confidence": 0.9}`,
	}}
	u, err := newPipeline(c).Understand(context.Background(), "hey how are you")
	if err != nil {
		t.Fatalf("Understand: %v", err)
	}
	if u.IsSearch() {
		t.Error("chat intent must not search")
	}
	if len(c.calls) != 1 {
		t.Errorf("expected only the intent call, got %v", c.calls)
	}
}

func TestUnderstand_UnparsableIntentProceedsWithSearch(t *testing.T) {
	c := &scriptedCompleter{replies: map[string]string{
		"intent":   "no idea",
		"optimize": `{"query": "senior go engineer"}`,
		"keywords": `{"keywords": ["go", "backend", "senior"]}`,
	}}
	u, err := newPipeline(c).Understand(context.Background(), "looking for a senior go engineer")
	if err != nil {
		t.Fatalf("Understand: %v", err)
	}
	if u.Intent != domain.IntentSearch || u.Confidence != 0.8 {
		t.Errorf("intent = %s %v", u.Intent, u.Confidence)
	}
	if u.Optimized != "senior go engineer" || len(u.Keywords) != 3 {
		t.Errorf("got %+v", u)
	}
	if len(u.DegradedStages) != 1 || u.DegradedStages[0] != domain.StageIntent {
		t.Errorf("degraded = %v", u.DegradedStages)
	}
}

func TestUnderstand_OptimizeAndKeywordsConcurrent(t *testing.T) {
	var (
		wg      sync.WaitGroup
		arrived = make(chan struct{})
	)
	wg.Add(2)
	go func() { wg.Wait(); close(arrived) }()

	c := &scriptedCompleter{
		replies: map[string]string{
			"intent":   `{"intent": "search", "confidence": 1}`,
			"optimize": `{"query": "designer"}`,
			"keywords": `{"keywords": ["ux", "figma", "design"]}`,
		},
		hook: func(ctx context.Context, prompt string) error {
			if prompt == "intent" {
				return nil
			}
			wg.Done()
			// Each call waits for the other one: sequential execution would time out.
			select {
			case <-arrived:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	u, err := newPipeline(c).Understand(context.Background(), "need a designer")
	if err != nil {
		t.Fatalf("Understand: %v", err)
	}
	if len(u.DegradedStages) != 0 {
		t.Errorf("expected no fallbacks, got %v", u.DegradedStages)
	}
}

func TestUnderstand_CancelledReturnsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &scriptedCompleter{
		replies: map[string]string{"intent": `{"intent": "search", "confidence": 1}`},
		hook: func(hctx context.Context, prompt string) error {
			if prompt != "intent" {
				cancel()
				<-hctx.Done()
				return hctx.Err()
			}
			return nil
		},
	}
	u, err := newPipeline(c).Understand(ctx, "find people")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if u.Text != "" {
		t.Error("no partial result expected")
	}
}

func TestUnderstand_EmptyText(t *testing.T) {
	_, err := newPipeline(&scriptedCompleter{}).Understand(context.Background(), "   ")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReply_Fallback(t *testing.T) {
	p := newPipeline(&scriptedCompleter{errs: map[string]error{"reply": errors.New("down")}})
	out, fb, err := p.Reply(context.Background(), "what is this?", domain.IntentQuestion)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !fb || out != fallbackReplies[domain.IntentQuestion] {
		t.Errorf("got %q fallback=%v", out, fb)
	}
}

func TestCapRunes(t *testing.T) {
	if got := capRunes("  a   b  ", 10); got != "a b" {
		t.Errorf("got %q", got)
	}
	got := capRunes("привет мир как дела", 10)
	if utf8.RuneCountInString(got) > 10 || got != "привет" {
		t.Errorf("got %q", got)
	}
}
