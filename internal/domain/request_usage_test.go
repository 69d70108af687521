package domain

import (
	"context"
	"sync"
	"testing"
)

func TestRequestUsage_Counts(t *testing.T) {
	ctx, u := WithRequestUsage(context.Background())
	if RequestUsageFrom(ctx) != u {
		t.Fatal("collector not found in context")
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RequestUsageFrom(ctx).AddEmbedding(10)
			RequestUsageFrom(ctx).AddCompletion()
		}()
	}
	wg.Wait()
	RequestUsageFrom(ctx).AddEmbedding(0)

	tokens, calls := u.Embedding()
	if tokens != 40 || calls != 5 {
		t.Errorf("embedding = %d tokens / %d calls, want 40 / 5", tokens, calls)
	}
	if u.Completions() != 4 {
		t.Errorf("completions = %d, want 4", u.Completions())
	}
}

func TestRequestUsage_NilIsNoop(t *testing.T) {
	u := RequestUsageFrom(context.Background())
	u.AddEmbedding(5)
	u.AddCompletion()
	if tokens, calls := u.Embedding(); tokens != 0 || calls != 0 || u.Completions() != 0 {
		t.Error("nil collector must report zero")
	}
}
