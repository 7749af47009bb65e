package nextstep

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeClient struct {
	suggestion Suggestion
	err        error
	calls      int
}

func (f *fakeClient) Suggest(ctx context.Context, prompt string) (Suggestion, error) {
	f.calls++
	if f.err != nil {
		return Suggestion{}, f.err
	}
	return f.suggestion, nil
}

func TestSuggestFromModel(t *testing.T) {
	client := &fakeClient{suggestion: Suggestion{
		Next: "Pair on the OAuth integration",
		Who:  "Bob",
		Time: "3 hours",
		Why:  "It gates the release",
	}}
	svc := NewService(client)

	step := svc.Suggest(context.Background(), "Implement auth flow", Context{Progress: 60})
	if step.Source != "model" || step.Cached {
		t.Fatalf("step %+v", step)
	}
	if step.Next != "Pair on the OAuth integration" || step.Confidence != 85 {
		t.Fatalf("step %+v", step)
	}
}

func TestSuggestCaches(t *testing.T) {
	client := &fakeClient{suggestion: Suggestion{Next: "Do the thing", Who: "Alice", Time: "1 hour", Why: "Because"}}
	svc := NewService(client)
	ctx := context.Background()

	first := svc.Suggest(ctx, "Task", Context{Progress: 50})
	second := svc.Suggest(ctx, "Task", Context{Progress: 50})
	if client.calls != 1 {
		t.Fatalf("expected one model call, got %d", client.calls)
	}
	if first.Cached || !second.Cached {
		t.Fatalf("cached flags %v %v", first.Cached, second.Cached)
	}

	// Different progress misses the cache.
	svc.Suggest(ctx, "Task", Context{Progress: 51})
	if client.calls != 2 {
		t.Fatalf("expected cache miss, calls %d", client.calls)
	}
}

func TestSuggestCacheExpires(t *testing.T) {
	client := &fakeClient{suggestion: Suggestion{Next: "Do it", Who: "A", Time: "1h", Why: "w"}}
	svc := NewService(client)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }
	ctx := context.Background()

	svc.Suggest(ctx, "Task", Context{})
	now = now.Add(11 * time.Minute)
	svc.Suggest(ctx, "Task", Context{})
	if client.calls != 2 {
		t.Fatalf("expected expired entry to refetch, calls %d", client.calls)
	}
}

func TestSuggestCacheEviction(t *testing.T) {
	client := &fakeClient{suggestion: Suggestion{Next: "Do it", Who: "A", Time: "1h", Why: "w"}}
	svc := NewService(client)
	ctx := context.Background()

	for i := 0; i < cacheCap+1; i++ {
		svc.Suggest(ctx, fmt.Sprintf("Task %d", i), Context{})
	}
	calls := client.calls
	// The first key was evicted, so asking again calls the model.
	svc.Suggest(ctx, "Task 0", Context{})
	if client.calls != calls+1 {
		t.Fatalf("expected eviction of oldest entry, calls %d -> %d", calls, client.calls)
	}
	// The most recent key is still cached.
	svc.Suggest(ctx, fmt.Sprintf("Task %d", cacheCap), Context{})
	if client.calls != calls+1 {
		t.Fatalf("expected cache hit on recent entry, calls %d", client.calls)
	}
}

func TestSuggestFallbackOnError(t *testing.T) {
	svc := NewService(&fakeClient{err: errors.New("model down")})
	ctx := context.Background()

	blocked := svc.Suggest(ctx, "Task", Context{Blockers: []string{"waiting for IT"}})
	if blocked.Source != "fallback" || blocked.Confidence != 70 {
		t.Fatalf("step %+v", blocked)
	}
	if blocked.Next != "Address any blockers from team chat" || blocked.Who != "Team Lead" {
		t.Fatalf("step %+v", blocked)
	}

	late := svc.Suggest(ctx, "Task", Context{Progress: 90})
	if late.Next != "Update stakeholders on progress" || late.Who != "Product Owner" {
		t.Fatalf("step %+v", late)
	}

	plain := svc.Suggest(ctx, "Task", Context{Progress: 10})
	if plain.Next != "Review and prioritize remaining tasks" || plain.Who != "Project Manager" {
		t.Fatalf("step %+v", plain)
	}
}

func TestSuggestNoClientFallsBack(t *testing.T) {
	svc := NewService(nil)
	step := svc.Suggest(context.Background(), "Task", Context{})
	if step.Source != "fallback" {
		t.Fatalf("step %+v", step)
	}
}

func TestFallbackNotCached(t *testing.T) {
	client := &fakeClient{err: errors.New("down")}
	svc := NewService(client)
	ctx := context.Background()
	svc.Suggest(ctx, "Task", Context{})
	svc.Suggest(ctx, "Task", Context{})
	if client.calls != 2 {
		t.Fatalf("fallback results must not be cached, calls %d", client.calls)
	}
}
