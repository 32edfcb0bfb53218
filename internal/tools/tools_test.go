package tools

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pywen-dev/pywen/internal/mcp"
)

func newProxy(t *testing.T, handlers map[string]mcp.ToolHandler) *mcp.Proxy {
	t.Helper()
	p := mcp.NewProxy(nil)
	for name, h := range handlers {
		p.RegisterTool(mcp.Tool{Name: name, Description: name}, h)
	}
	return p
}

func okHandler(text string) mcp.ToolHandler {
	return func(_ context.Context, _ json.RawMessage) (*mcp.ToolResult, error) {
		return &mcp.ToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: text}}}, nil
	}
}

// RunAll preserves request order in its results even though calls run
// concurrently under the hood.
func TestRunAll_PreservesOrder(t *testing.T) {
	proxy := newProxy(t, map[string]mcp.ToolHandler{
		"a": okHandler("A"),
		"b": okHandler("B"),
		"c": okHandler("C"),
	})
	executor := NewExecutor(NewRegistry(proxy), WithParallel(true))

	reqs := []Request{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}, {ID: "3", Name: "c"}}
	results := executor.RunAll(context.Background(), reqs)

	want := []string{"A", "B", "C"}
	for i, r := range results {
		if r.Content != want[i] {
			t.Fatalf("results[%d] = %q, want %q", i, r.Content, want[i])
		}
	}
}

// HIGH risk calls never overlap each other, even though Safe calls run
// concurrently.
func TestRunAll_HighRiskSerialized(t *testing.T) {
	var active int32
	var maxActive int32
	track := func(_ context.Context, _ json.RawMessage) (*mcp.ToolResult, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			cur := atomic.LoadInt32(&maxActive)
			if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &mcp.ToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: "ok"}}}, nil
	}

	proxy := newProxy(t, map[string]mcp.ToolHandler{"risky": track})
	registry := NewRegistry(proxy)
	registry.SetRisk("risky", High)
	executor := NewExecutor(registry, WithParallel(true))

	reqs := []Request{{ID: "1", Name: "risky"}, {ID: "2", Name: "risky"}, {ID: "3", Name: "risky"}}
	executor.RunAll(context.Background(), reqs)

	if maxActive > 1 {
		t.Fatalf("max concurrent HIGH-risk calls = %d, want 1", maxActive)
	}
}

// A confirmation callback that rejects a Medium+ risk call surfaces
// ErrRejected without treating it as a hard execution failure.
func TestRun_ConfirmationRejection(t *testing.T) {
	proxy := newProxy(t, map[string]mcp.ToolHandler{"danger": okHandler("should not run")})
	registry := NewRegistry(proxy)
	registry.SetRisk("danger", Medium)
	executor := NewExecutor(registry, WithConfirm(func(_ context.Context, _ Request) (bool, error) {
		return false, nil
	}))

	results := executor.RunAll(context.Background(), []Request{{ID: "1", Name: "danger"}})
	r := results[0]
	if !r.IsError {
		t.Fatal("expected IsError on rejection")
	}
	if r.Content != "tool call rejected by user" {
		t.Fatalf("Content = %q", r.Content)
	}
}

// Calls below Medium risk never go through confirmation at all.
func TestRun_SafeCallsSkipConfirmation(t *testing.T) {
	proxy := newProxy(t, map[string]mcp.ToolHandler{"safe": okHandler("ran")})
	registry := NewRegistry(proxy)

	var confirmed bool
	executor := NewExecutor(registry, WithConfirm(func(_ context.Context, _ Request) (bool, error) {
		confirmed = true
		return true, nil
	}))

	results := executor.RunAll(context.Background(), []Request{{ID: "1", Name: "safe"}})
	if confirmed {
		t.Fatal("confirmation should not be invoked for a Safe-risk call")
	}
	if results[0].Content != "ran" {
		t.Fatalf("Content = %q", results[0].Content)
	}
}

// A tool call that blocks past the executor's timeout surfaces the
// context's deadline error rather than hanging the caller.
func TestRun_PerCallTimeout(t *testing.T) {
	blocked := func(ctx context.Context, _ json.RawMessage) (*mcp.ToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	proxy := newProxy(t, map[string]mcp.ToolHandler{"slow": blocked})
	executor := NewExecutor(NewRegistry(proxy), WithTimeout(10*time.Millisecond))

	results := executor.RunAll(context.Background(), []Request{{ID: "1", Name: "slow"}})
	if results[0].Err == nil {
		t.Fatal("expected a timeout error")
	}
}

// The concurrency cap actually bounds how many Safe calls run at once.
func TestRunAll_ConcurrencyCap(t *testing.T) {
	var active int32
	var maxActive int32
	var mu sync.Mutex
	track := func(_ context.Context, _ json.RawMessage) (*mcp.ToolResult, error) {
		n := atomic.AddInt32(&active, 1)
		mu.Lock()
		if n > maxActive {
			maxActive = n
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &mcp.ToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: "ok"}}}, nil
	}
	proxy := newProxy(t, map[string]mcp.ToolHandler{"work": track})
	executor := NewExecutor(NewRegistry(proxy), WithConcurrency(2), WithParallel(true))

	reqs := make([]Request, 6)
	for i := range reqs {
		reqs[i] = Request{ID: "x", Name: "work"}
	}
	executor.RunAll(context.Background(), reqs)

	if maxActive > 2 {
		t.Fatalf("max concurrent calls = %d, want <= 2", maxActive)
	}
}
