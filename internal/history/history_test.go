package history

import (
	"testing"

	"github.com/pywen-dev/pywen/internal/provider"
)

func TestNew_SeedsSystemItem(t *testing.T) {
	h := New("be helpful")
	items := h.Snapshot()
	if len(items) != 1 || items[0].Kind != KindSystem || items[0].Content != "be helpful" {
		t.Fatalf("items = %+v", items)
	}
}

func TestNew_EmptySystemPromptOmitsItem(t *testing.T) {
	h := New("")
	if h.Len() != 0 {
		t.Fatalf("Len = %d, want 0", h.Len())
	}
}

func TestReplaceSystem_ReplacesExistingLeadingItem(t *testing.T) {
	h := New("v1")
	h.Append(User("hi"))
	h.ReplaceSystem("v2")

	items := h.Snapshot()
	if items[0].Content != "v2" {
		t.Fatalf("system content = %q, want v2", items[0].Content)
	}
	if len(items) != 2 {
		t.Fatalf("ReplaceSystem should not add an item, got %d", len(items))
	}
}

func TestReplaceSystem_InsertsWhenMissing(t *testing.T) {
	h := &History{}
	h.Append(User("hi"))
	h.ReplaceSystem("late system prompt")

	items := h.Snapshot()
	if len(items) != 2 || items[0].Kind != KindSystem {
		t.Fatalf("items = %+v", items)
	}
}

func TestAppend_IsAppendOnly(t *testing.T) {
	h := New("sys")
	h.Append(User("one"))
	h.Append(Assistant("two", "", nil, 0, 0))
	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3", h.Len())
	}
	snap1 := h.Snapshot()
	h.Append(User("three"))
	if len(snap1) != 3 {
		t.Fatal("Snapshot should be independent of later appends")
	}
}

func TestLastAssistant(t *testing.T) {
	h := New("sys")
	if _, ok := h.LastAssistant(); ok {
		t.Fatal("expected no assistant item yet")
	}
	h.Append(Assistant("first", "", nil, 0, 0))
	h.Append(User("interruption"))
	h.Append(Assistant("second", "", nil, 0, 0))

	last, ok := h.LastAssistant()
	if !ok || last.Content != "second" {
		t.Fatalf("LastAssistant = %+v, %v", last, ok)
	}
}

func TestDeleteFrom(t *testing.T) {
	h := New("sys")
	h.Append(User("a"))
	h.Append(User("b"))
	h.DeleteFrom(1)
	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1", h.Len())
	}
}

func TestDeleteFrom_OutOfRangeIsNoop(t *testing.T) {
	h := New("sys")
	h.Append(User("a"))
	h.DeleteFrom(-1)
	h.DeleteFrom(100)
	if h.Len() != 2 {
		t.Fatalf("Len = %d, want 2", h.Len())
	}
}

// ToProviderMessages / FromProviderMessages round-trip every field a
// provider adapter depends on, including tool-call correlation.
func TestWireRoundTrip(t *testing.T) {
	h := New("sys")
	calls := []provider.ToolCall{{ID: "call_1", Name: "Read", Arguments: []byte(`{"path":"x"}`)}}
	h.Append(User("do the thing"))
	h.Append(Assistant("", "thinking...", calls, 10, 5))
	h.Append(Tool("call_1", "Read", "file contents"))

	msgs := h.ToProviderMessages()
	if len(msgs) != 4 {
		t.Fatalf("len(msgs) = %d, want 4", len(msgs))
	}
	if msgs[2].ToolCalls[0].ID != "call_1" {
		t.Fatalf("tool call id lost in conversion: %+v", msgs[2])
	}
	if msgs[3].ToolCallID != "call_1" || msgs[3].FunctionName != "Read" {
		t.Fatalf("tool result correlation lost: %+v", msgs[3])
	}

	items := FromProviderMessages(msgs)
	if len(items) != 4 {
		t.Fatalf("len(items) = %d, want 4", len(items))
	}
	if items[1].Kind != KindUser || items[1].Content != "do the thing" {
		t.Fatalf("items[1] = %+v", items[1])
	}
	if items[2].Kind != KindAssistant || items[2].ToolCalls[0].Name != "Read" {
		t.Fatalf("items[2] = %+v", items[2])
	}
	if items[3].Kind != KindTool || items[3].ToolCallID != "call_1" {
		t.Fatalf("items[3] = %+v", items[3])
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindSystem:    "system",
		KindUser:      "user",
		KindAssistant: "assistant",
		KindTool:      "tool",
		Kind(99):      "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
