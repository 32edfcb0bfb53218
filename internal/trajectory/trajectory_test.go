package trajectory

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pywen-dev/pywen/internal/events"
)

func TestOpen_CreatesFileUnderTrajectoriesDir(t *testing.T) {
	dir := t.TempDir()
	rec, err := Open(dir, "session-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rec.Close()

	want := filepath.Join(dir, "trajectories", "session-1.jsonl")
	if rec.Path() != want {
		t.Fatalf("Path = %q, want %q", rec.Path(), want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected trajectory file to exist: %v", err)
	}
}

func TestRecordAgentEvent_WritesOneLinePerEvent(t *testing.T) {
	dir := t.TempDir()
	rec, err := Open(dir, "session-2")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rec.RecordAgentEvent(events.AgentEvent{Kind: events.AgentUserMessage, Content: "hello"})
	rec.RecordAgentEvent(events.AgentEvent{Kind: events.AgentTaskComplete, Turn: 1, Iterations: 1})
	rec.RecordAgentEvent(events.AgentEvent{Kind: events.AgentError, Err: errors.New("boom")})
	rec.Close()

	f, err := os.Open(rec.Path())
	if err != nil {
		t.Fatalf("open written file: %v", err)
	}
	defer f.Close()

	var lines []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, r)
	}
	if len(lines) != 3 {
		t.Fatalf("wrote %d lines, want 3", len(lines))
	}
	if lines[0].Kind != "user_message" || lines[0].Content != "hello" {
		t.Fatalf("lines[0] = %+v", lines[0])
	}
	if lines[2].Kind != "error" || lines[2].Err != "boom" {
		t.Fatalf("lines[2] = %+v", lines[2])
	}

	for i, l := range lines {
		if l.Seq != i+1 {
			t.Fatalf("lines[%d].Seq = %d, want %d", i, l.Seq, i+1)
		}
	}
}

func TestSessionID_ProducesDistinctValues(t *testing.T) {
	a := SessionID()
	b := SessionID()
	if a == b {
		t.Fatal("SessionID should not repeat across calls")
	}
}
