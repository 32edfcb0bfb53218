package agent

import (
	"fmt"

	"github.com/google/uuid"
)

// TurnStatus is the terminal-state machine spec.md §3/§8 assigns a Turn:
// it starts TurnActive and moves exactly once to one of the three terminal
// states.
type TurnStatus int

const (
	TurnActive TurnStatus = iota
	TurnCompleted
	TurnMaxIterations
	TurnError
)

func (s TurnStatus) String() string {
	switch s {
	case TurnActive:
		return "active"
	case TurnCompleted:
		return "completed"
	case TurnMaxIterations:
		return "max_iterations"
	case TurnError:
		return "error"
	default:
		return "unknown"
	}
}

// Turn is the checkable object backing RunTurn's status invariant: it starts
// ACTIVE and SetStatus enforces that it only ever moves ACTIVE →
// {COMPLETED, MAX_ITERATIONS, ERROR}, once. ID is a uuid, matching
// trajectory.SessionID's use of github.com/google/uuid for
// externally-visible identifiers.
type Turn struct {
	ID          string
	UserMessage string
	Iterations  int
	TotalTokens int

	status TurnStatus
}

// NewTurn starts a Turn in the ACTIVE status.
func NewTurn(userMessage string) *Turn {
	return &Turn{ID: uuid.NewString(), UserMessage: userMessage, status: TurnActive}
}

// Status returns the Turn's current status.
func (t *Turn) Status() TurnStatus {
	return t.status
}

// SetStatus moves the Turn to a terminal status. It returns an error without
// mutating anything if the Turn has already left ACTIVE, or if s is
// TurnActive itself — the invariant is one-way and one-shot.
func (t *Turn) SetStatus(s TurnStatus) error {
	if s == TurnActive {
		return fmt.Errorf("agent: turn %s cannot be set back to active", t.ID)
	}
	if t.status != TurnActive {
		return fmt.Errorf("agent: turn %s already %s, cannot move to %s", t.ID, t.status, s)
	}
	t.status = s
	return nil
}
