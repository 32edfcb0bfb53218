// Package tools adds a risk-aware scheduling layer on top of an mcp.Proxy:
// every registered tool carries a RiskLevel, calls at Medium risk or above
// go through a ConfirmFunc before they run, and execution is sequential by
// default or, with Parallel set, bounded-concurrency with HIGH risk tools
// forced to run one at a time. The
// concurrency cap and per-call timeout are grounded on the tool scheduler's
// max_concurrent_tasks=5 gather-with-return-exceptions pattern; the risk/
// confirmation handshake has no teacher analogue and is new for this layer.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pywen-dev/pywen/internal/mcp"
)

// RiskLevel classifies how much latitude a tool should get before running.
type RiskLevel int

const (
	Safe RiskLevel = iota
	Low
	Medium
	High
)

func (r RiskLevel) String() string {
	switch r {
	case Safe:
		return "safe"
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DefaultConcurrency matches the Python scheduler's max_concurrent_tasks.
const DefaultConcurrency = 5

// DefaultTimeout is applied to a tool call when the caller doesn't set one.
const DefaultTimeout = 120 * time.Second

// Request describes one pending tool invocation.
type Request struct {
	ID        string // correlates with a provider.ToolCall.ID
	Name      string
	Arguments json.RawMessage
	Risk      RiskLevel
}

// Result is the outcome of executing a Request.
type Result struct {
	ID      string
	Content string
	IsError bool
	Err     error
}

// ConfirmFunc is asked to approve a request before it runs. Returning
// (false, nil) rejects the call without it being an error; the rejection is
// surfaced to the model as a tool result so it can adjust course.
type ConfirmFunc func(ctx context.Context, req Request) (approved bool, err error)

// Registry tracks the risk level of each known tool name on top of an
// mcp.Proxy's tool set.
type Registry struct {
	proxy *mcp.Proxy

	mu    sync.RWMutex
	risks map[string]RiskLevel
}

// NewRegistry wraps an existing proxy. Tools not given an explicit risk
// default to Safe.
func NewRegistry(proxy *mcp.Proxy) *Registry {
	return &Registry{proxy: proxy, risks: make(map[string]RiskLevel)}
}

// SetRisk assigns a risk level to a tool name.
func (r *Registry) SetRisk(name string, risk RiskLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.risks[name] = risk
}

// RiskOf returns the configured risk level for a tool, defaulting to Safe.
func (r *Registry) RiskOf(name string) RiskLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.risks[name]
}

// List returns the tool definitions known to the underlying proxy.
func (r *Registry) List(ctx context.Context) ([]mcp.Tool, error) {
	return r.proxy.ListTools(ctx)
}

// Executor runs Requests against a Registry's proxy, enforcing confirmation,
// per-call timeout, and bounded concurrency with HIGH risk calls serialized
// against everything else.
type Executor struct {
	registry    *Registry
	confirm     ConfirmFunc
	concurrency int
	timeout     time.Duration

	// Parallel controls whether a round's tool calls run concurrently
	// (subject to the concurrency cap and HIGH-risk serialization) or one
	// at a time in request order. Defaults false: most agent turns issue
	// one tool call per round, and sequential execution keeps result
	// ordering trivially obvious without losing anything in practice.
	Parallel bool

	sem      chan struct{}
	highLock sync.Mutex
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithConfirm sets the confirmation callback. Calls below Medium risk skip
// confirmation entirely.
func WithConfirm(fn ConfirmFunc) ExecutorOption {
	return func(e *Executor) { e.confirm = fn }
}

// WithConcurrency overrides DefaultConcurrency.
func WithConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithParallel enables concurrent execution of a round's tool calls
// (still subject to the concurrency cap and HIGH-risk serialization).
func WithParallel(parallel bool) ExecutorOption {
	return func(e *Executor) { e.Parallel = parallel }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExecutor builds an Executor over a Registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:    registry,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sem = make(chan struct{}, e.concurrency)
	return e
}

// RiskOf reports the configured risk level for a tool name, so a caller can
// decide whether to surface a confirmation event before RunAll reaches it.
func (e *Executor) RiskOf(name string) RiskLevel {
	return e.registry.RiskOf(name)
}

// NeedsConfirmation reports whether running the named tool would block on
// the confirmation callback.
func (e *Executor) NeedsConfirmation(name string) bool {
	return e.confirm != nil && e.registry.RiskOf(name) >= Medium
}

// ErrRejected is returned (wrapped in a Result, not an error return) when a
// ConfirmFunc declines a call.
var ErrRejected = fmt.Errorf("tool call rejected")

// RunAll runs every request, one at a time in request order unless Parallel
// is set, in which case concurrently (subject to the concurrency cap and
// HIGH-risk serialization), and returns results in the same order as
// requests, mirroring CoreToolScheduler.schedule_tool_calls's
// gather-with-return-exceptions semantics: one failing call never aborts the
// others.
func (e *Executor) RunAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	if !e.Parallel {
		for i, req := range reqs {
			req.Risk = e.registry.RiskOf(req.Name)
			results[i] = e.run(ctx, req)
		}
		return results
	}
	var wg sync.WaitGroup
	for i, req := range reqs {
		req.Risk = e.registry.RiskOf(req.Name)
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			results[i] = e.run(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return results
}

func (e *Executor) run(ctx context.Context, req Request) Result {
	if req.Risk == High {
		e.highLock.Lock()
		defer e.highLock.Unlock()
	} else {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			return Result{ID: req.ID, Err: ctx.Err()}
		}
	}

	if e.confirm != nil && req.Risk >= Medium {
		approved, err := e.confirm(ctx, req)
		if err != nil {
			return Result{ID: req.ID, IsError: true, Err: err}
		}
		if !approved {
			log.Info().Str("tool", req.Name).Msg("tool call rejected by confirmation")
			return Result{ID: req.ID, Content: "tool call rejected by user", IsError: true, Err: ErrRejected}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.registry.proxy.CallTool(callCtx, req.Name, req.Arguments)
	if err != nil {
		return Result{ID: req.ID, IsError: true, Err: err}
	}

	return Result{ID: req.ID, Content: contentText(res), IsError: res.IsError}
}

func contentText(res *mcp.ToolResult) string {
	if res == nil {
		return ""
	}
	var out string
	for _, block := range res.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}
