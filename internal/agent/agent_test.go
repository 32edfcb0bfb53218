package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pywen-dev/pywen/internal/events"
	"github.com/pywen-dev/pywen/internal/history"
	"github.com/pywen-dev/pywen/internal/mcp"
	"github.com/pywen-dev/pywen/internal/provider"
	"github.com/pywen-dev/pywen/internal/stats"
	"github.com/pywen-dev/pywen/internal/tools"
)

// echoTool registers a trivial local tool on a fresh proxy, returning the
// arguments it was called with as its result text.
func echoTool(proxy *mcp.Proxy, name string) {
	proxy.RegisterTool(mcp.Tool{Name: name, Description: name}, func(_ context.Context, args json.RawMessage) (*mcp.ToolResult, error) {
		return &mcp.ToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: string(args)}}}, nil
	})
}

func newTestLoop(t *testing.T, prov *provider.MockProvider, confirm tools.ConfirmFunc, registerEcho string) (*Loop, *[]events.AgentEvent) {
	t.Helper()
	proxy := mcp.NewProxy(nil)
	if registerEcho != "" {
		echoTool(proxy, registerEcho)
	}
	registry := tools.NewRegistry(proxy)
	if registerEcho != "" {
		registry.SetRisk(registerEcho, tools.Medium)
	}
	var opts []tools.ExecutorOption
	if confirm != nil {
		opts = append(opts, tools.WithConfirm(confirm))
	}
	executor := tools.NewExecutor(registry, opts...)

	var recorded []events.AgentEvent
	l := &Loop{
		Provider: prov,
		Executor: executor,
		History:  history.New("you are a test agent"),
		Budgets:  Budgets{MaxIterations: 60},
		Stats:    &stats.Session{},
		OnEvent:  func(e events.AgentEvent) { recorded = append(recorded, e) },
	}
	return l, &recorded
}

func kinds(evts []events.AgentEvent) []events.AgentKind {
	out := make([]events.AgentKind, len(evts))
	for i, e := range evts {
		out[i] = e.Kind
	}
	return out
}

func contains(ks []events.AgentKind, k events.AgentKind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}

// Scenario 1: the model answers directly with no tool calls.
func TestRunTurn_PlainAnswer(t *testing.T) {
	prov := provider.NewMock("mock").WithTextTurn("the answer is 4", 10, 5)
	l, recorded := newTestLoop(t, prov, nil, "")

	result, err := l.RunTurn(context.Background(), "what is 2+2?")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.FinalContent != "the answer is 4" {
		t.Fatalf("FinalContent = %q", result.FinalContent)
	}
	if result.Iterations != 1 {
		t.Fatalf("Iterations = %d, want 1", result.Iterations)
	}

	ks := kinds(*recorded)
	if ks[0] != events.AgentUserMessage {
		t.Fatalf("first event = %v, want AgentUserMessage", ks[0])
	}
	if !contains(ks, events.AgentLLMStreamStart) {
		t.Fatal("missing AgentLLMStreamStart")
	}
	if !contains(ks, events.AgentContentDelta) {
		t.Fatal("missing AgentContentDelta")
	}
	if ks[len(ks)-1] != events.AgentTaskComplete {
		t.Fatalf("last event = %v, want AgentTaskComplete", ks[len(ks)-1])
	}

	items := l.History.Snapshot()
	if len(items) != 3 {
		t.Fatalf("History.Len = %d, want 3 (system, user, assistant)", len(items))
	}
	if items[2].Kind != history.KindAssistant || items[2].Content != "the answer is 4" {
		t.Fatalf("final item = %+v", items[2])
	}
}

// Scenario 2: one tool call, approved, followed by a plain answer.
func TestRunTurn_ToolCallAccepted(t *testing.T) {
	prov := provider.NewMock("mock").
		WithToolCallTurn("call_1", "echo", `{"msg":"hi"}`, 10, 5).
		WithTextTurn("done", 3, 2)

	confirmCalls := 0
	confirm := func(_ context.Context, req tools.Request) (bool, error) {
		confirmCalls++
		return true, nil
	}
	l, recorded := newTestLoop(t, prov, confirm, "echo")

	result, err := l.RunTurn(context.Background(), "use the echo tool")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if confirmCalls != 1 {
		t.Fatalf("confirm called %d times, want 1", confirmCalls)
	}
	if result.FinalContent != "done" {
		t.Fatalf("FinalContent = %q", result.FinalContent)
	}
	if result.Iterations != 2 {
		t.Fatalf("Iterations = %d, want 2", result.Iterations)
	}

	ks := kinds(*recorded)
	if !contains(ks, events.AgentToolCallRequested) {
		t.Fatal("missing AgentToolCallRequested")
	}
	if !contains(ks, events.AgentToolCallConfirmation) {
		t.Fatal("missing AgentToolCallConfirmation for a Medium-risk call")
	}
	if !contains(ks, events.AgentToolCallStarted) {
		t.Fatal("missing AgentToolCallStarted")
	}
	if !contains(ks, events.AgentWaitingForUser) {
		t.Fatal("missing AgentWaitingForUser before a confirmation-gated call")
	}
	if !contains(ks, events.AgentToolCallCompleted) {
		t.Fatal("missing AgentToolCallCompleted")
	}
	if !contains(ks, events.AgentTurnCompleted) {
		t.Fatal("missing AgentTurnCompleted")
	}
	if result.Turn.Status() != TurnCompleted {
		t.Fatalf("Turn.Status() = %v, want TurnCompleted", result.Turn.Status())
	}

	items := l.History.Snapshot()
	var toolItems int
	for _, it := range items {
		if it.Kind == history.KindTool {
			toolItems++
			if it.Content != `{"msg":"hi"}` {
				t.Fatalf("tool result content = %q", it.Content)
			}
		}
	}
	if toolItems != 1 {
		t.Fatalf("tool items = %d, want 1", toolItems)
	}
}

// Scenario 3: the user's confirmation callback rejects the call.
func TestRunTurn_ToolCallRejected(t *testing.T) {
	prov := provider.NewMock("mock").
		WithToolCallTurn("call_1", "echo", `{"msg":"hi"}`, 10, 5).
		WithTextTurn("okay, skipping that", 3, 2)

	confirm := func(_ context.Context, req tools.Request) (bool, error) { return false, nil }
	l, recorded := newTestLoop(t, prov, confirm, "echo")

	result, err := l.RunTurn(context.Background(), "use the echo tool")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.FinalContent != "okay, skipping that" {
		t.Fatalf("FinalContent = %q", result.FinalContent)
	}

	ks := kinds(*recorded)
	if !contains(ks, events.AgentToolCallFailed) {
		t.Fatal("missing AgentToolCallFailed for a rejected call")
	}

	items := l.History.Snapshot()
	for _, it := range items {
		if it.Kind == history.KindTool && it.Content != "tool call rejected by user" {
			t.Fatalf("rejected tool result content = %q", it.Content)
		}
	}
}

// Scenario 4: the model requests a tool the registry has never heard of.
// The proxy reports it as an error result rather than failing the call
// outright, so the loop keeps going instead of aborting the task.
func TestRunTurn_ToolNotFound(t *testing.T) {
	prov := provider.NewMock("mock").
		WithToolCallTurn("call_1", "does_not_exist", `{}`, 10, 5).
		WithTextTurn("couldn't find that tool", 3, 2)

	l, recorded := newTestLoop(t, prov, nil, "")

	result, err := l.RunTurn(context.Background(), "call a tool that doesn't exist")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.FinalContent != "couldn't find that tool" {
		t.Fatalf("FinalContent = %q", result.FinalContent)
	}

	var sawErrorText bool
	for _, it := range l.History.Snapshot() {
		if it.Kind == history.KindTool {
			sawErrorText = true
			if it.Content == "" {
				t.Fatal("expected a tool-not-found message in the tool result")
			}
		}
	}
	if !sawErrorText {
		t.Fatal("expected one tool result item")
	}

	ks := kinds(*recorded)
	if !contains(ks, events.AgentToolCallFailed) {
		t.Fatal("missing AgentToolCallFailed for an unknown tool")
	}
	if contains(ks, events.AgentToolCallCompleted) {
		t.Fatal("an unknown tool must not be reported as a successful tool result")
	}
}

// Scenario 5: the model keeps calling tools forever; the turn's iteration
// budget runs out before a final answer arrives.
func TestRunTurn_MaxIterationsExhausted(t *testing.T) {
	prov := provider.NewMock("mock").
		WithToolCallTurn("call_1", "echo", `{"n":1}`, 5, 5).
		WithToolCallTurn("call_2", "echo", `{"n":2}`, 5, 5)

	l, recorded := newTestLoop(t, prov, nil, "echo")
	l.Budgets.MaxIterations = 2

	result, err := l.RunTurn(context.Background(), "keep going forever")
	if err == nil {
		t.Fatal("expected ErrIterationBudgetExceeded")
	}
	if !errors.Is(err, ErrIterationBudgetExceeded) {
		t.Fatalf("err = %v, want ErrIterationBudgetExceeded", err)
	}
	if result.Iterations != 2 {
		t.Fatalf("Iterations = %d, want 2", result.Iterations)
	}

	var toolItems int
	for _, it := range l.History.Snapshot() {
		if it.Kind == history.KindTool {
			toolItems++
		}
	}
	if toolItems != 2 {
		t.Fatalf("tool items = %d, want 2", toolItems)
	}

	ks := kinds(*recorded)
	if ks[len(ks)-1] != events.AgentMaxIterations {
		t.Fatalf("last event = %v, want AgentMaxIterations", ks[len(ks)-1])
	}
	if result.Turn.Status() != TurnMaxIterations {
		t.Fatalf("Turn.Status() = %v, want TurnMaxIterations", result.Turn.Status())
	}
}

// TestTurn_StatusIsMonotonic checks spec.md §8's invariant directly: a Turn
// can only move ACTIVE -> one terminal state, once.
func TestTurn_StatusIsMonotonic(t *testing.T) {
	turn := NewTurn("hello")
	if turn.Status() != TurnActive {
		t.Fatalf("new Turn status = %v, want TurnActive", turn.Status())
	}
	if err := turn.SetStatus(TurnCompleted); err != nil {
		t.Fatalf("first SetStatus: %v", err)
	}
	if turn.Status() != TurnCompleted {
		t.Fatalf("Status() = %v, want TurnCompleted", turn.Status())
	}
	if err := turn.SetStatus(TurnError); err == nil {
		t.Fatal("second SetStatus should have failed, turn already terminal")
	}
	if turn.Status() != TurnCompleted {
		t.Fatalf("Status() after rejected transition = %v, want still TurnCompleted", turn.Status())
	}
	if err := NewTurn("x").SetStatus(TurnActive); err == nil {
		t.Fatal("SetStatus(TurnActive) should be rejected")
	}
}

// Scenario 6: the provider reports an error partway through a stream.
func TestRunTurn_ProviderErrorMidStream(t *testing.T) {
	prov := provider.NewMock("mock").WithTurn(
		provider.StreamEvent{Type: provider.EventContentDelta, Content: "partial..."},
		provider.StreamEvent{Type: provider.EventError, Err: errors.New("upstream closed the connection")},
	)
	l, recorded := newTestLoop(t, prov, nil, "")

	_, err := l.RunTurn(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected a provider stream error")
	}
	if !errors.Is(err, ErrProviderStream) {
		t.Fatalf("err = %v, want ErrProviderStream", err)
	}

	ks := kinds(*recorded)
	if ks[len(ks)-1] != events.AgentError {
		t.Fatalf("last event = %v, want AgentError", ks[len(ks)-1])
	}

	items := l.History.Snapshot()
	for _, it := range items {
		if it.Kind == history.KindAssistant {
			t.Fatal("no assistant item should be appended when the stream errors")
		}
	}
}

// A context cancelled before a turn starts its next round short-circuits
// the loop with ErrCancelled rather than attempting another LLM call.
func TestRunTurn_ContextCancelled(t *testing.T) {
	prov := provider.NewMock("mock").WithToolCallTurn("call_1", "echo", `{}`, 1, 1)
	l, recorded := newTestLoop(t, prov, nil, "echo")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.RunTurn(ctx, "hello")
	if err == nil {
		t.Fatal("expected ErrCancelled")
	}
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}

	ks := kinds(*recorded)
	if ks[len(ks)-1] != events.AgentError {
		t.Fatalf("last event = %v, want AgentError", ks[len(ks)-1])
	}
}

// RunTurn is called twice in a row; History accumulates rather than resets,
// and turn numbers increase across calls.
func TestRunTurn_MultipleTurnsAccumulateHistory(t *testing.T) {
	prov := provider.NewMock("mock").
		WithTextTurn("first answer", 1, 1).
		WithTextTurn("second answer", 1, 1)
	l, _ := newTestLoop(t, prov, nil, "")

	r1, err := l.RunTurn(context.Background(), "first question")
	if err != nil {
		t.Fatalf("first RunTurn: %v", err)
	}
	r2, err := l.RunTurn(context.Background(), "second question")
	if err != nil {
		t.Fatalf("second RunTurn: %v", err)
	}
	if r1.FinalContent == r2.FinalContent {
		t.Fatal("expected distinct answers across turns")
	}

	items := l.History.Snapshot()
	// system, user1, assistant1, user2, assistant2
	if len(items) != 5 {
		t.Fatalf("History.Len = %d, want 5", len(items))
	}
}

// RunTurn refuses to run once MaxTurns is exhausted.
func TestRunTurn_TurnBudgetExceeded(t *testing.T) {
	prov := provider.NewMock("mock").WithTextTurn("ok", 1, 1)
	l, _ := newTestLoop(t, prov, nil, "")
	l.Budgets.MaxTurns = 1

	if _, err := l.RunTurn(context.Background(), "one"); err != nil {
		t.Fatalf("first RunTurn: %v", err)
	}
	_, err := l.RunTurn(context.Background(), "two")
	if !errors.Is(err, ErrTurnBudgetExceeded) {
		t.Fatalf("err = %v, want ErrTurnBudgetExceeded", err)
	}
}

// RunTurn refuses to recurse past MaxDepth, for sub-agent tool calls.
func TestRunTurn_RecursionDepthExceeded(t *testing.T) {
	prov := provider.NewMock("mock").WithTextTurn("ok", 1, 1)
	l, _ := newTestLoop(t, prov, nil, "")
	l.Depth = MaxDepth + 1

	_, err := l.RunTurn(context.Background(), "recurse")
	if !errors.Is(err, ErrRecursionDepthExceeded) {
		t.Fatalf("err = %v, want ErrRecursionDepthExceeded", err)
	}
}
