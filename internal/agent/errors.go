package agent

import "errors"

// Error kinds the agent loop can return. Callers use errors.Is against these
// sentinels; Error.Unwrap exposes the underlying cause (a provider error, a
// context cancellation, ...) for logging.
var (
	// ErrTurnBudgetExceeded is returned when a session has already consumed
	// its configured MaxTurns.
	ErrTurnBudgetExceeded = errors.New("agent: turn budget exceeded")

	// ErrIterationBudgetExceeded is returned when a single turn exhausts its
	// MaxIterations without the model producing a final tool-call-free
	// response.
	ErrIterationBudgetExceeded = errors.New("agent: iteration budget exceeded")

	// ErrRecursionDepthExceeded is returned when a sub-agent tool call would
	// exceed the maximum recursion depth.
	ErrRecursionDepthExceeded = errors.New("agent: recursion depth exceeded")

	// ErrToolNotFound is returned when the model requests a tool the
	// registry does not know about.
	ErrToolNotFound = errors.New("agent: tool not found")

	// ErrToolRejected is returned when a confirmation callback declines a
	// tool call.
	ErrToolRejected = errors.New("agent: tool call rejected")

	// ErrToolExecutionFailed wraps a failure returned by a tool handler.
	ErrToolExecutionFailed = errors.New("agent: tool execution failed")

	// ErrProviderStream wraps a failure from the underlying LLM stream.
	ErrProviderStream = errors.New("agent: provider stream failed")

	// ErrEmptyResponse is returned when the model produces neither content
	// nor tool calls across every retry.
	ErrEmptyResponse = errors.New("agent: empty model response")

	// ErrCancelled is returned when the context driving a turn is cancelled.
	ErrCancelled = errors.New("agent: cancelled")
)

// Error wraps one of the sentinels above with context-specific detail.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func wrapErr(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}
