// Package trajectory records one JSON-lines file per session describing
// every event the agent core emits, for offline debugging and replay. It
// replaces the teacher's SQLite session/message store for this spec: a
// trajectory is append-only, process-local, and never read back by the
// agent itself, so a flat file needs no schema migrations or busy-retry
// handling the way store/session.go's SQLite writer does.
package trajectory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pywen-dev/pywen/internal/events"
)

// Record is one line written to a trajectory file.
type Record struct {
	Seq  int       `json:"seq"`
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`

	Content      string `json:"content,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`
	ToolCallID   string `json:"tool_call_id,omitempty"`
	ToolArgs     string `json:"tool_args,omitempty"`
	ToolResult   string `json:"tool_result,omitempty"`
	ToolError    string `json:"tool_error,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	Turn         int    `json:"turn,omitempty"`
	Iterations   int    `json:"iterations,omitempty"`
	Err          string `json:"error,omitempty"`
}

// Recorder appends Records to a session's trajectory file as newline-delimited
// JSON. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	seq  int
	path string
}

// SessionID generates a new random session identifier.
func SessionID() string {
	return uuid.NewString()
}

// Open creates (or appends to) the trajectory file for a session under
// dir/trajectories/<sessionID>.jsonl, creating the directory if needed.
func Open(dir, sessionID string) (*Recorder, error) {
	trajDir := filepath.Join(dir, "trajectories")
	if err := os.MkdirAll(trajDir, 0750); err != nil {
		return nil, fmt.Errorf("create trajectory dir: %w", err)
	}
	path := filepath.Join(trajDir, sessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("open trajectory file: %w", err)
	}
	log.Info().Str("path", path).Msg("trajectory recorder opened")
	return &Recorder{f: f, enc: json.NewEncoder(f), path: path}, nil
}

// Path returns the file path this recorder writes to.
func (r *Recorder) Path() string {
	return r.path
}

// RecordAgentEvent appends one AgentEvent as a trajectory line.
func (r *Recorder) RecordAgentEvent(evt events.AgentEvent) {
	rec := Record{
		Kind: evt.Kind.String(), At: evt.At,
		Content: evt.Content, ToolName: evt.ToolName, ToolCallID: evt.ToolCallID,
		ToolArgs: evt.ToolArgs, ToolResult: evt.ToolResult, ToolError: evt.ToolError,
		InputTokens: evt.InputTokens, OutputTokens: evt.OutputTokens,
		Turn: evt.Turn, Iterations: evt.Iterations,
	}
	if evt.Err != nil {
		rec.Err = evt.Err.Error()
	}
	r.write(rec)
}

func (r *Recorder) write(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rec.Seq = r.seq
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	if err := r.enc.Encode(rec); err != nil {
		log.Warn().Err(err).Str("path", r.path).Msg("failed to write trajectory record")
	}
}

// Close closes the underlying file.
func (r *Recorder) Close() error {
	if r == nil || r.f == nil {
		return nil
	}
	return r.f.Close()
}
