package tui

import (
	"regexp"

	"github.com/pywen-dev/pywen/internal/provider"
)

// roleAssistant mirrors provider.Message.Role for assistant turns.
const roleAssistant = "assistant"

// maxDisplayTurns bounds how many turns stay in convEntries before the
// oldest are trimmed (trimOldTurns), keeping render and wrap costs flat in
// long sessions.
const maxDisplayTurns = 200

// toolResultLineRe extracts the starting line number from a Read result's
// "(lines N-M)" suffix.
var toolResultLineRe = regexp.MustCompile(`\(lines (\d+)-\d+\)`)

// toolResultRangeRe extracts both bounds of a Read result's "(lines N-M)"
// suffix, used to center the editor cursor in the read range.
var toolResultRangeRe = regexp.MustCompile(`\(lines (\d+)-(\d+)\)`)

// convPos is a position within the wrapped conversation view: a wrapped
// line index and a rune column within that line.
type convPos struct {
	line int
	col  int
}

// convSelection tracks a mouse-driven text selection in the conversation
// pane as an anchor (drag start) and active (current) position.
type convSelection struct {
	anchor convPos
	active convPos
}

// empty reports whether the selection covers no text.
func (s *convSelection) empty() bool {
	return s.anchor == s.active
}

// ordered returns the anchor/active pair in document order (start, end).
func (s *convSelection) ordered() (convPos, convPos) {
	a, b := s.anchor, s.active
	if a.line > b.line || (a.line == b.line && a.col > b.col) {
		return b, a
	}
	return a, b
}

// isCentered reports whether the wrapped line at lineIdx belongs to an
// entry that should be rendered centered (separators and the undo label).
func (m *Model) isCentered(lineIdx int) bool {
	m.wrappedConvLines()
	src := m.convLineSource
	if lineIdx < 0 || lineIdx >= len(src) {
		return false
	}
	entryIdx := src[lineIdx]
	if entryIdx < 0 || entryIdx >= len(m.convEntries) {
		return false
	}
	switch m.convEntries[entryIdx].kind {
	case entrySeparator, entryUndo:
		return true
	default:
		return false
	}
}

// turnBoundary snapshots token totals and the conv/db position at the start
// of a user turn, so handleUndo can roll both state and display back to it.
type turnBoundary struct {
	convIdx      int
	dbMsgID      int64
	inputTokens  int
	outputTokens int
}

// modelsFetchedMsg carries the result of a background model-list refresh
// (fetchModelsCmd) back into Update.
type modelsFetchedMsg struct {
	models []provider.TaggedModel
	err    error
}

// modelSwitchedMsg carries the result of switchModelCmd back into Update.
type modelSwitchedMsg struct {
	modelName    string
	providerName string
	prov         provider.Provider
	err          error
}
