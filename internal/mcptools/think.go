package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pywen-dev/pywen/internal/mcp"
)

// ThinkArgs represents arguments for the Think tool. Grounded on
// original_source/pywen/agents/claudecode/tools/think_tool.py's ThinkTool,
// whose only parameter is the thought itself.
type ThinkArgs struct {
	Thought string `json:"thought" jsonschema:"required,description=Your thoughts, reasoning, or analysis"`
}

// NewThinkTool creates the Think tool definition. Its InputSchema is
// reflected from ThinkArgs rather than hand-written, per SPEC_FULL.md §2's
// invopop/jsonschema wiring.
func NewThinkTool() mcp.Tool {
	return mcp.Tool{
		Name:        "Think",
		Description: `Share your thoughts and reasoning process with the user. Use this to show your thinking, analysis, or decision-making process transparently. It does not change any files or fetch new information — it only records the thought.`,
		InputSchema: generateSchema[ThinkArgs](),
	}
}

// ThinkLog records every Think call in order, mirroring the Python
// original's get_thoughts_log/get_recent_thoughts introspection.
type ThinkLog struct {
	mu       sync.RWMutex
	thoughts []string
}

// Recent returns up to n of the most recently recorded thoughts, oldest first.
func (l *ThinkLog) Recent(n int) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.thoughts) {
		n = len(l.thoughts)
	}
	start := len(l.thoughts) - n
	out := make([]string, n)
	copy(out, l.thoughts[start:])
	return out
}

func (l *ThinkLog) append(thought string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.thoughts = append(l.thoughts, thought)
	return len(l.thoughts)
}

// MakeThinkHandler creates a handler that appends each call's thought to log
// and echoes it back formatted for the transcript. The tool has no side
// effect beyond the log, so it is Safe risk (matching the Python original's
// is_risky() -> False) and needs no confirmation.
func MakeThinkHandler(log *ThinkLog) mcp.ToolHandler {
	return func(_ context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
		var args ThinkArgs
		if err := json.Unmarshal(arguments, &args); err != nil {
			return &mcp.ToolResult{
				Content: []mcp.ContentBlock{{Type: "text", Text: "Invalid arguments: " + err.Error()}},
				IsError: true,
			}, nil
		}
		if args.Thought == "" {
			return &mcp.ToolResult{
				Content: []mcp.ContentBlock{{Type: "text", Text: "thought cannot be empty"}},
				IsError: true,
			}, nil
		}

		total := log.append(args.Thought)
		text := fmt.Sprintf("Thought recorded.\n\n%s\n\n(thought #%d, recorded at %s)",
			args.Thought, total, time.Now().UTC().Format(time.RFC3339))

		return &mcp.ToolResult{
			Content: []mcp.ContentBlock{{Type: "text", Text: text}},
		}, nil
	}
}
