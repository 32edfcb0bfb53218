// Package agent runs the turn/iteration state machine that drives a single
// conversation: stream a response from the model, execute any tool calls it
// requests through a risk-aware tools.Executor, feed the results back, and
// repeat until the model produces a final answer or a budget is exhausted.
// It generalizes the teacher's llm.ProcessTurn to operate on a history.History
// value, a tools.Executor (confirmation + risk aware, not a bare mcp.Proxy),
// and to emit the closed events.AgentEvent vocabulary instead of ad hoc
// callbacks, while keeping the same recitation-injection and
// repeated-tool-call-warning behavior.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pywen-dev/pywen/internal/events"
	"github.com/pywen-dev/pywen/internal/history"
	"github.com/pywen-dev/pywen/internal/mcp"
	"github.com/pywen-dev/pywen/internal/provider"
	"github.com/pywen-dev/pywen/internal/stats"
	"github.com/pywen-dev/pywen/internal/tools"
)

// MaxDepth is the maximum recursion depth for sub-agent tool calls.
const MaxDepth = 1

// reminderInterval is the number of tool-calling rounds between synthetic
// goal reminders.
const reminderInterval = 10

// Scratchpad provides read access to the agent's working plan, if any.
type Scratchpad interface {
	Content() string
}

// Budgets bounds a Loop's resource consumption.
type Budgets struct {
	MaxTurns      int // conversation turns across the Loop's lifetime, 0 = unbounded
	MaxIterations int // LLM/tool-call rounds within a single turn, default 60
}

// Loop drives one conversation across possibly many turns, sharing a single
// History and enforcing Budgets across the whole session.
type Loop struct {
	Provider provider.Provider
	Executor *tools.Executor
	ToolDefs []mcp.Tool
	History  *history.History
	Budgets  Budgets
	Depth    int

	OnEvent    func(events.AgentEvent)
	Scratchpad Scratchpad

	// Stats receives turn/token/tool-call counters; nil means stats.Global.
	// Tests inject their own Session here instead of resetting the global.
	Stats *stats.Session

	turnsUsed int
}

func (l *Loop) statsSession() *stats.Session {
	if l.Stats != nil {
		return l.Stats
	}
	return stats.Global
}

func (l *Loop) emit(evt events.AgentEvent) {
	evt.At = time.Now()
	if l.OnEvent != nil {
		l.OnEvent(evt)
	}
}

// TurnResult summarizes the outcome of one RunTurn call.
type TurnResult struct {
	FinalContent string
	InputTokens  int
	OutputTokens int
	Iterations   int

	// Turn is the checkable status object backing this result: by the time
	// RunTurn returns, Turn.Status() is always one of the three terminal
	// states, never TurnActive.
	Turn *Turn
}

// RunTurn appends userInput to History as a user item and runs the
// iteration loop until the model gives a final answer, the iteration budget
// for this turn is exhausted, or ctx is cancelled.
func (l *Loop) RunTurn(ctx context.Context, userInput string) (*TurnResult, error) {
	if l.Depth > MaxDepth {
		return nil, wrapErr(ErrRecursionDepthExceeded, fmt.Sprintf("depth %d > max %d", l.Depth, MaxDepth), nil)
	}
	if l.Budgets.MaxTurns > 0 && l.turnsUsed >= l.Budgets.MaxTurns {
		l.emit(events.AgentEvent{Kind: events.AgentMaxIterations, Turn: l.turnsUsed + 1})
		return nil, wrapErr(ErrTurnBudgetExceeded, fmt.Sprintf("used %d of %d", l.turnsUsed, l.Budgets.MaxTurns), nil)
	}
	l.turnsUsed++
	turnNum := l.turnsUsed

	maxIter := l.Budgets.MaxIterations
	if maxIter <= 0 {
		maxIter = 60
	}

	l.statsSession().AddTurn()
	l.History.Append(history.User(userInput))
	l.emit(events.AgentEvent{Kind: events.AgentUserMessage, Content: userInput, Turn: turnNum})

	providerTools := l.providerTools()

	turn := NewTurn(userInput)
	var recent []recentCall
	result := TurnResult{Turn: turn}

	for round := 0; round < maxIter; round++ {
		if err := ctx.Err(); err != nil {
			taskErr := wrapErr(ErrCancelled, "", err)
			_ = turn.SetStatus(TurnError)
			l.emit(events.AgentEvent{Kind: events.AgentError, Turn: turnNum, Err: taskErr})
			return nil, taskErr
		}

		l.injectRecitation(round)

		resp, err := l.streamAndCollect(ctx, providerTools)
		if err != nil {
			taskErr := wrapErr(ErrProviderStream, "", err)
			_ = turn.SetStatus(TurnError)
			l.emit(events.AgentEvent{Kind: events.AgentError, Turn: turnNum, Err: taskErr})
			return nil, taskErr
		}

		l.appendAssistant(resp)
		result.InputTokens += resp.InputTokens
		result.OutputTokens += resp.OutputTokens
		result.Iterations++
		turn.Iterations = result.Iterations
		turn.TotalTokens += resp.InputTokens + resp.OutputTokens

		if len(resp.ToolCalls) == 0 {
			result.FinalContent = resp.Content
			_ = turn.SetStatus(TurnCompleted)
			l.emit(events.AgentEvent{Kind: events.AgentTaskComplete, Turn: turnNum, Iterations: result.Iterations})
			return &result, nil
		}

		reqs := make([]tools.Request, len(resp.ToolCalls))
		willBlockOnUser := false
		for i, tc := range resp.ToolCalls {
			reqs[i] = tools.Request{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
			risk := l.Executor.RiskOf(tc.Name)
			l.emit(events.AgentEvent{Kind: events.AgentToolCallRequested, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgs: string(tc.Arguments)})
			if risk >= tools.Medium {
				l.emit(events.AgentEvent{Kind: events.AgentToolCallConfirmation, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgs: string(tc.Arguments), ToolRisk: risk.String()})
			}
			if l.Executor.NeedsConfirmation(tc.Name) {
				willBlockOnUser = true
			}
		}
		if willBlockOnUser {
			// Status indicator only: the driver is about to be asked to
			// confirm, and the loop is paused until it answers.
			l.emit(events.AgentEvent{Kind: events.AgentWaitingForUser, Turn: turnNum})
		}

		for _, req := range reqs {
			l.emit(events.AgentEvent{Kind: events.AgentToolCallStarted, ToolCallID: req.ID, ToolName: req.Name, ToolArgs: string(req.Arguments)})
		}
		toolResults := l.Executor.RunAll(ctx, reqs)
		l.appendToolResults(resp.ToolCalls, toolResults)

		for _, tc := range resp.ToolCalls {
			recent = append(recent, recentCall{Name: tc.Name, Args: string(tc.Arguments)})
		}
		l.maybeWarnRepeatedCall(recent)

		l.emit(events.AgentEvent{Kind: events.AgentTurnCompleted, Turn: turnNum, Iterations: result.Iterations})
	}

	// Iteration budget exhausted without a tool-call-free response: the turn
	// moves to MAX_ITERATIONS rather than being silently retried.
	_ = turn.SetStatus(TurnMaxIterations)
	l.emit(events.AgentEvent{Kind: events.AgentMaxIterations, Turn: turnNum, Iterations: result.Iterations})
	return &result, wrapErr(ErrIterationBudgetExceeded, fmt.Sprintf("used %d rounds", maxIter), nil)
}

func (l *Loop) providerTools() []provider.Tool {
	out := make([]provider.Tool, len(l.ToolDefs))
	for i, t := range l.ToolDefs {
		out[i] = provider.Tool{Name: t.Name, Description: t.Description, Parameters: t.InputSchema}
	}
	return out
}

func (l *Loop) appendAssistant(resp *provider.ChatResponse) {
	item := history.Assistant(resp.Content, resp.Reasoning, resp.ToolCalls, resp.InputTokens, resp.OutputTokens)
	l.History.Append(item)
	l.emit(events.AgentEvent{Kind: events.AgentMessageAppended, Content: resp.Content})
	if resp.InputTokens > 0 || resp.OutputTokens > 0 {
		l.statsSession().AddUsage(resp.InputTokens, resp.OutputTokens)
		l.emit(events.AgentEvent{Kind: events.AgentUsageUpdated, InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens})
	} else {
		// No usage from the provider: count an estimate so the session
		// totals still move.
		l.statsSession().AddUsage(0, stats.EstimateTokens(resp.Content+resp.Reasoning))
	}
}

func (l *Loop) appendToolResults(calls []provider.ToolCall, results []tools.Result) {
	byID := make(map[string]tools.Result, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	for _, tc := range calls {
		r := byID[tc.ID]
		l.History.Append(history.Tool(tc.ID, tc.Name, r.Content))
		l.statsSession().AddToolCall(r.Err != nil || r.IsError)
		if r.Err != nil || r.IsError {
			l.emit(events.AgentEvent{Kind: events.AgentToolCallFailed, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgs: string(tc.Arguments), ToolError: r.Content})
		} else {
			l.emit(events.AgentEvent{Kind: events.AgentToolCallCompleted, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgs: string(tc.Arguments), ToolResult: r.Content})
		}
	}
}

type recentCall struct {
	Name string
	Args string
}

// maybeWarnRepeatedCall appends a warning reminder to the most recent tool
// result when the last three tool calls were identical, matching the
// teacher's loop detection for wasted repetition.
func (l *Loop) maybeWarnRepeatedCall(recent []recentCall) {
	if len(recent) < 3 {
		return
	}
	last3 := recent[len(recent)-3:]
	if last3[0] != last3[1] || last3[1] != last3[2] {
		return
	}
	items := l.History.Snapshot()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Kind == history.KindTool {
			warning := "\n\n<system-reminder>WARNING: You are repeating the same tool call with the same arguments. This is wasteful. Stop and either try a different approach, summarize what you know, or ask the user for help.</system-reminder>"
			l.replaceToolContent(i, items[i].Content+warning)
			return
		}
	}
}

// replaceToolContent mutates a single tool item's content in place. History
// otherwise only allows append and ReplaceSystem; this is used for the two
// narrow in-place edits (recitation injection, repetition warning) the
// teacher's loop performs on the tail of the log.
func (l *Loop) replaceToolContent(idx int, content string) {
	items := l.History.Snapshot()
	if idx < 0 || idx >= len(items) {
		return
	}
	items[idx].Content = content
	l.History.DeleteFrom(0)
	l.History.Extend(items...)
}

// injectRecitation appends a <system-reminder> block to the last tool-result
// item in history every reminderInterval rounds, preferring a scratchpad
// plan and falling back to the original user request.
func (l *Loop) injectRecitation(round int) {
	if round == 0 || round%reminderInterval != 0 {
		return
	}

	var reminder string
	if l.Scratchpad != nil {
		reminder = l.Scratchpad.Content()
	}
	items := l.History.Snapshot()
	if reminder == "" {
		for _, it := range items {
			if it.Kind == history.KindUser {
				reminder = "The user's request: " + it.Content
				break
			}
		}
	}
	if reminder == "" {
		return
	}

	tag := "\n\n<system-reminder>\n"
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Kind == history.KindTool {
			content := items[i].Content
			if idx := strings.Index(content, tag); idx >= 0 {
				content = content[:idx]
			}
			l.replaceToolContent(i, content+tag+reminder+"\n</system-reminder>")
			return
		}
	}
}

// streamAndCollect runs one LLM call, retrying once on an empty response,
// and forwards streaming deltas as AgentEvents as they arrive.
func (l *Loop) streamAndCollect(ctx context.Context, providerTools []provider.Tool) (*provider.ChatResponse, error) {
	const maxEmptyRetries = 1

	messages := l.History.ToProviderMessages()
	for attempt := 0; attempt <= maxEmptyRetries; attempt++ {
		stream, err := l.Provider.ChatStream(ctx, messages, providerTools)
		if err != nil {
			return nil, err
		}
		l.emit(events.AgentEvent{Kind: events.AgentLLMStreamStart})
		resp, err := l.collectWithDeltas(stream)
		if err != nil {
			return nil, err
		}
		if !isEmptyResponse(resp) {
			return resp, nil
		}
		log.Warn().Str("provider", l.Provider.Name()).Int("attempt", attempt+1).Msg("empty response from provider")
	}
	return nil, wrapErr(ErrEmptyResponse, l.Provider.Name(), nil)
}

func isEmptyResponse(resp *provider.ChatResponse) bool {
	return resp == nil || (resp.Content == "" && resp.Reasoning == "" && len(resp.ToolCalls) == 0)
}

func (l *Loop) collectWithDeltas(ch <-chan provider.StreamEvent) (*provider.ChatResponse, error) {
	var result provider.ChatResponse
	tca := newToolCallAccumulator()

	for se := range ch {
		re := events.FromStreamEvent(se)
		switch re.Kind {
		case events.ResponseContentDelta:
			result.Content += re.Content
			l.emit(events.AgentEvent{Kind: events.AgentContentDelta, Content: re.Content})
		case events.ResponseReasoningDelta:
			result.Reasoning += re.Content
			l.emit(events.AgentEvent{Kind: events.AgentReasoningDelta, Content: re.Content})
		case events.ResponseToolCallBegin:
			tca.begin(se)
		case events.ResponseToolCallDelta:
			tca.delta(se)
		case events.ResponseUsage:
			if se.InputTokens > result.InputTokens {
				result.InputTokens = se.InputTokens
			}
			if se.OutputTokens > result.OutputTokens {
				result.OutputTokens = se.OutputTokens
			}
		case events.ResponseError:
			return nil, se.Err
		case events.ResponseDone:
			// finalize below
		}
	}

	if calls := tca.finalize(); len(calls) > 0 {
		result.ToolCalls = calls
	}
	return &result, nil
}

// toolCallAccumulator tracks tool calls as their arguments stream in.
type toolCallAccumulator struct {
	byIndex     map[int]int
	calls       []provider.ToolCall
	argBuilders []string
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIndex: make(map[int]int)}
}

func (a *toolCallAccumulator) begin(evt provider.StreamEvent) {
	pos := len(a.calls)
	a.byIndex[evt.ToolCallIndex] = pos
	a.calls = append(a.calls, provider.ToolCall{ID: evt.ToolCallID, Name: evt.ToolCallName, Kind: evt.ToolCallKind})
	a.argBuilders = append(a.argBuilders, "")
}

func (a *toolCallAccumulator) delta(evt provider.StreamEvent) {
	if pos, ok := a.byIndex[evt.ToolCallIndex]; ok {
		a.argBuilders[pos] += evt.ToolCallArgs
	}
}

// finalize assembles each call's arguments, tolerating arrival as either a
// single fragment or many deltas. Function calls whose accumulated argument
// text isn't valid JSON fall back to {"input": raw} rather than dropping the
// call; custom calls never parse their raw text as JSON, matching spec.md
// §4.1's `tool_call.ready(kind=custom, args={"patch": raw})` rule (the
// generic {"input": raw} form is used for non-patch customs).
func (a *toolCallAccumulator) finalize() []provider.ToolCall {
	for i := range a.calls {
		if i >= len(a.argBuilders) {
			continue
		}
		raw := a.argBuilders[i]
		if a.calls[i].Kind == provider.ToolCallCustom {
			a.calls[i].Input = raw
			a.calls[i].Arguments = customArgsJSON(a.calls[i].Name, raw)
			continue
		}
		if json.Valid([]byte(raw)) {
			a.calls[i].Arguments = json.RawMessage(raw)
		} else {
			a.calls[i].Arguments, _ = json.Marshal(map[string]string{"input": raw})
		}
	}
	return a.calls
}

// customArgsJSON wraps a custom tool call's raw opaque input for the
// Executor, which only understands JSON arguments: a tool named "patch"
// (or containing "patch") gets {"patch": raw}, matching the teacher's
// existing Edit tool argument shape; anything else gets {"input": raw}.
func customArgsJSON(name, raw string) json.RawMessage {
	key := "input"
	if strings.Contains(strings.ToLower(name), "patch") {
		key = "patch"
	}
	out, _ := json.Marshal(map[string]string{key: raw})
	return out
}
