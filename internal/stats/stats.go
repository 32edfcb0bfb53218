// Package stats tracks process-wide token and tool-call counters for the
// current session. It replaces the teacher's SQLite-backed session/message
// store for this purpose: this spec treats a session as transient to one
// process run rather than something resumed across restarts, so counters
// live in memory and are reset by starting a new process.
package stats

import "sync/atomic"

// Session is a process-wide set of atomic counters plus the active agent
// profile. The zero value is ready to use; Global is the counter set the
// agent core reports to by default.
type Session struct {
	agentType    atomic.Value // string
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
	turns        atomic.Int64
	toolCalls    atomic.Int64
	toolErrors   atomic.Int64
}

// Global is the counter set used by a single-process run.
var Global = &Session{}

// SetAgentType records which agent profile this session is running.
func (s *Session) SetAgentType(agentType string) {
	s.agentType.Store(agentType)
}

// AgentType returns the active agent profile, or "" if never set.
func (s *Session) AgentType() string {
	v, _ := s.agentType.Load().(string)
	return v
}

// AddUsage records token usage from one LLM call.
func (s *Session) AddUsage(inputTokens, outputTokens int) {
	s.inputTokens.Add(int64(inputTokens))
	s.outputTokens.Add(int64(outputTokens))
}

// EstimateTokens is the fallback heuristic applied when a provider reports
// no usage: roughly four characters per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// AddTurn increments the turn counter.
func (s *Session) AddTurn() {
	s.turns.Add(1)
}

// AddToolCall records one tool invocation, and whether it failed.
func (s *Session) AddToolCall(failed bool) {
	s.toolCalls.Add(1)
	if failed {
		s.toolErrors.Add(1)
	}
}

// Snapshot is a point-in-time read of a Session's counters.
type Snapshot struct {
	InputTokens  int64
	OutputTokens int64
	Turns        int64
	ToolCalls    int64
	ToolErrors   int64
}

// Snapshot reads the current counter values.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		InputTokens:  s.inputTokens.Load(),
		OutputTokens: s.outputTokens.Load(),
		Turns:        s.turns.Load(),
		ToolCalls:    s.toolCalls.Load(),
		ToolErrors:   s.toolErrors.Load(),
	}
}

// Reset zeroes all counters. Used by tests and by a REPL's /reset command.
func (s *Session) Reset() {
	s.inputTokens.Store(0)
	s.outputTokens.Store(0)
	s.turns.Store(0)
	s.toolCalls.Store(0)
	s.toolErrors.Store(0)
}
