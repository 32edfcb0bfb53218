// Package events defines the two closed event vocabularies that cross the
// boundaries of the agent execution core: ResponseEvent flows from an LLM
// provider up into the agent loop, AgentEvent flows from the agent loop out
// to whatever is driving it (a TUI, a one-shot CLI runner, a sub-agent
// caller). Both are tagged unions over a Kind field rather than the
// teacher's single loose provider.StreamEvent struct, so a switch over Kind
// is exhaustive and new event kinds are additions, not silent reinterpretations
// of existing fields.
package events

import (
	"time"

	"github.com/pywen-dev/pywen/internal/provider"
)

// ResponseKind identifies the kind of event a provider emits while streaming
// a single LLM response.
type ResponseKind int

const (
	ResponseContentDelta ResponseKind = iota
	ResponseReasoningDelta
	ResponseToolCallBegin
	ResponseToolCallDelta
	ResponseUsage
	ResponseDone
	ResponseError
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseContentDelta:
		return "content_delta"
	case ResponseReasoningDelta:
		return "reasoning_delta"
	case ResponseToolCallBegin:
		return "tool_call_begin"
	case ResponseToolCallDelta:
		return "tool_call_delta"
	case ResponseUsage:
		return "usage"
	case ResponseDone:
		return "done"
	case ResponseError:
		return "error"
	default:
		return "unknown"
	}
}

// ResponseEvent is one event in the stream of a single LLM turn. It is the
// canonical, provider-agnostic representation an Adapter produces; provider
// implementations still speak provider.StreamEvent internally (that type
// maps 1:1 onto ResponseKind) and FromStreamEvent bridges the two so the
// existing Adapter plumbing doesn't need to be rewritten to build these.
type ResponseEvent struct {
	Kind ResponseKind

	Content string // ResponseContentDelta, ResponseReasoningDelta

	ToolCallIndex     int
	ToolCallID        string
	ToolCallName      string
	ToolCallKind      provider.ToolCallKind
	ToolCallSignature string
	ToolCallArgs      string

	InputTokens  int
	OutputTokens int

	Err error
}

// FromStreamEvent converts a provider.StreamEvent into a ResponseEvent.
func FromStreamEvent(e provider.StreamEvent) ResponseEvent {
	kind := ResponseKind(e.Type)
	return ResponseEvent{
		Kind:              kind,
		Content:           e.Content,
		ToolCallIndex:     e.ToolCallIndex,
		ToolCallID:        e.ToolCallID,
		ToolCallName:      e.ToolCallName,
		ToolCallKind:      e.ToolCallKind,
		ToolCallSignature: e.ToolCallSignature,
		ToolCallArgs:      e.ToolCallArgs,
		InputTokens:       e.InputTokens,
		OutputTokens:      e.OutputTokens,
		Err:               e.Err,
	}
}

// AgentKind identifies the kind of event the agent loop reports to its
// driver while running a turn.
type AgentKind int

const (
	// AgentUserMessage fires once a user utterance is appended to History,
	// opening a task (spec.md §3 "user_message").
	AgentUserMessage AgentKind = iota
	// AgentLLMStreamStart fires each time the loop opens a provider stream,
	// once per iteration (spec.md §3 "llm_stream_start").
	AgentLLMStreamStart
	AgentMessageAppended
	// AgentContentDelta is the spec's "llm_chunk".
	AgentContentDelta
	// AgentReasoningDelta is the spec's "reasoning_chunk".
	AgentReasoningDelta
	// AgentToolCallRequested is the spec's "tool_call".
	AgentToolCallRequested
	AgentToolCallConfirmation
	AgentToolCallStarted
	// AgentToolCallCompleted is the spec's "tool_result".
	AgentToolCallCompleted
	// AgentToolCallFailed is the spec's "tool_error".
	AgentToolCallFailed
	// AgentUsageUpdated is the spec's "turn_token_usage".
	AgentUsageUpdated
	// AgentWaitingForUser is a status indicator only (spec.md §9 Open
	// Questions: never a blocking prompt).
	AgentWaitingForUser
	// AgentTurnCompleted fires when one provider-stream-and-tool-cycle ends
	// but the task continues into another turn (spec.md §3 "turn_complete").
	AgentTurnCompleted
	// AgentTaskComplete is the terminal event for a task that ended with a
	// final tool-call-free answer (spec.md §3 "task_complete").
	AgentTaskComplete
	// AgentMaxIterations is the terminal event for a task whose turn or
	// iteration budget was exhausted (spec.md §3 "max_iterations").
	AgentMaxIterations
	// AgentError is the terminal event for a task ended by a provider or
	// cancellation error (spec.md §3 "error").
	AgentError
)

func (k AgentKind) String() string {
	switch k {
	case AgentUserMessage:
		return "user_message"
	case AgentLLMStreamStart:
		return "llm_stream_start"
	case AgentMessageAppended:
		return "message_appended"
	case AgentContentDelta:
		return "llm_chunk"
	case AgentReasoningDelta:
		return "reasoning_chunk"
	case AgentToolCallRequested:
		return "tool_call"
	case AgentToolCallConfirmation:
		return "tool_call_confirmation"
	case AgentToolCallStarted:
		return "tool_call_started"
	case AgentToolCallCompleted:
		return "tool_result"
	case AgentToolCallFailed:
		return "tool_error"
	case AgentUsageUpdated:
		return "turn_token_usage"
	case AgentWaitingForUser:
		return "waiting_for_user"
	case AgentTurnCompleted:
		return "turn_complete"
	case AgentTaskComplete:
		return "task_complete"
	case AgentMaxIterations:
		return "max_iterations"
	case AgentError:
		return "error"
	default:
		return "unknown"
	}
}

// AgentEvent is one event emitted by the agent loop toward its driver.
// Only the payload fields relevant to a given Kind are set; the rest are
// zero.
type AgentEvent struct {
	Kind AgentKind
	At   time.Time

	Content    string // AgentContentDelta, AgentReasoningDelta
	ToolName   string // AgentToolCallRequested/Confirmation/Started/Completed/Failed
	ToolCallID string
	ToolArgs   string // raw JSON arguments, for confirmation prompts
	ToolRisk   string // risk level label, set on AgentToolCallConfirmation

	ToolResult string // AgentToolCallCompleted
	ToolError  string // AgentToolCallFailed

	InputTokens  int // AgentUsageUpdated
	OutputTokens int

	Turn       int // current turn number, set on AgentUserMessage, AgentWaitingForUser, AgentTurnCompleted and the terminal kinds
	Iterations int // iterations consumed this turn, set on AgentTurnCompleted, AgentTaskComplete and AgentMaxIterations

	Err error // AgentError
}
