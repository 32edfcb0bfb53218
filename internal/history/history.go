// Package history holds the conversation as a value: a log of Items that
// grows by appending, with two exceptions: the leading system item may be
// replaced in place (matching how a system prompt is regenerated when the
// project's instructions or tree-sitter outline change mid-session), and
// DeleteFrom truncates the log at a given index. Callers take
// immutable snapshots rather than holding references into the live log, so
// a sub-agent or a retry can fork a conversation without racing the turn
// that produced it.
package history

import (
	"time"

	"github.com/pywen-dev/pywen/internal/provider"
)

// Kind is the closed set of roles an Item can take in the conversation.
type Kind int

const (
	KindSystem Kind = iota
	KindUser
	KindAssistant
	KindTool
)

func (k Kind) String() string {
	switch k {
	case KindSystem:
		return "system"
	case KindUser:
		return "user"
	case KindAssistant:
		return "assistant"
	case KindTool:
		return "tool"
	default:
		return "unknown"
	}
}

// Item is one entry in a History. It carries the union of fields any wire
// message needs; which are meaningful depends on Kind.
type Item struct {
	Kind Kind

	Content   string
	Reasoning string // assistant only

	ToolCalls    []provider.ToolCall // assistant only, may be empty
	ToolCallID   string              // tool only
	FunctionName string              // tool only, required by some dialects

	CreatedAt    time.Time
	InputTokens  int // assistant only
	OutputTokens int
}

// System builds a KindSystem item.
func System(content string) Item {
	return Item{Kind: KindSystem, Content: content, CreatedAt: now()}
}

// User builds a KindUser item.
func User(content string) Item {
	return Item{Kind: KindUser, Content: content, CreatedAt: now()}
}

// Assistant builds a KindAssistant item.
func Assistant(content, reasoning string, calls []provider.ToolCall, inputTokens, outputTokens int) Item {
	return Item{
		Kind: KindAssistant, Content: content, Reasoning: reasoning, ToolCalls: calls,
		InputTokens: inputTokens, OutputTokens: outputTokens, CreatedAt: now(),
	}
}

// Tool builds a KindTool item (a tool call result).
func Tool(callID, functionName, content string) Item {
	return Item{Kind: KindTool, Content: content, ToolCallID: callID, FunctionName: functionName, CreatedAt: now()}
}

func now() time.Time { return time.Now() }

// History is the conversation log; beyond appends it allows only
// ReplaceSystem and DeleteFrom. The zero value is ready to use.
// Not safe for concurrent use without external synchronization; the agent
// loop owns one History per turn and hands out Snapshot() copies to
// observers instead of sharing the live slice.
type History struct {
	items []Item
}

// New creates a History seeded with a system item.
func New(systemPrompt string) *History {
	h := &History{}
	if systemPrompt != "" {
		h.items = append(h.items, System(systemPrompt))
	}
	return h
}

// ReplaceSystem replaces the leading system item in place, or inserts one at
// index 0 if none exists yet. This is one of the two mutations History allows
// beyond append (DeleteFrom is the other): a system prompt can be regenerated mid-session
// (project instructions changed, a new file entered the tree-sitter outline)
// without it counting as a new conversation turn.
func (h *History) ReplaceSystem(content string) {
	if len(h.items) > 0 && h.items[0].Kind == KindSystem {
		h.items[0].Content = content
		return
	}
	h.items = append([]Item{System(content)}, h.items...)
}

// Append adds a single item to the end of the log.
func (h *History) Append(item Item) {
	h.items = append(h.items, item)
}

// Extend adds multiple items to the end of the log.
func (h *History) Extend(items ...Item) {
	h.items = append(h.items, items...)
}

// Len returns the number of items in the log.
func (h *History) Len() int {
	return len(h.items)
}

// Snapshot returns an independent copy of the log's items, safe for a caller
// to read or fork from without observing later mutation.
func (h *History) Snapshot() []Item {
	out := make([]Item, len(h.items))
	copy(out, h.items)
	return out
}

// LastAssistant returns the most recent assistant item, if any.
func (h *History) LastAssistant() (Item, bool) {
	for i := len(h.items) - 1; i >= 0; i-- {
		if h.items[i].Kind == KindAssistant {
			return h.items[i], true
		}
	}
	return Item{}, false
}

// DeleteFrom truncates the log to the given index, discarding everything at
// or after it. Used when a turn is rewound (e.g. a rejected tool call).
func (h *History) DeleteFrom(idx int) {
	if idx < 0 || idx >= len(h.items) {
		return
	}
	h.items = h.items[:idx]
}

// ToProviderMessages converts the log into the flat wire-ish representation
// every provider.Adapter consumes. Adapters are responsible for any further
// dialect-specific reshaping (e.g. hoisting the system message, splitting a
// tool item into a user+tool_result pair) the same way they already do for
// provider.Message today.
func (h *History) ToProviderMessages() []provider.Message {
	out := make([]provider.Message, 0, len(h.items))
	for _, it := range h.items {
		out = append(out, itemToMessage(it))
	}
	return out
}

func itemToMessage(it Item) provider.Message {
	return provider.Message{
		Role:         it.Kind.String(),
		Content:      it.Content,
		Reasoning:    it.Reasoning,
		ToolCalls:    it.ToolCalls,
		ToolCallID:   it.ToolCallID,
		FunctionName: it.FunctionName,
		CreatedAt:    it.CreatedAt,
		InputTokens:  it.InputTokens,
		OutputTokens: it.OutputTokens,
	}
}

// FromProviderMessages converts existing provider.Message values (e.g. a
// persisted session) back into Items, for resuming a conversation.
func FromProviderMessages(msgs []provider.Message) []Item {
	out := make([]Item, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToItem(m))
	}
	return out
}

func messageToItem(m provider.Message) Item {
	var k Kind
	switch m.Role {
	case "system":
		k = KindSystem
	case "user":
		k = KindUser
	case "assistant":
		k = KindAssistant
	case "tool":
		k = KindTool
	default:
		k = KindUser
	}
	return Item{
		Kind: k, Content: m.Content, Reasoning: m.Reasoning, ToolCalls: m.ToolCalls,
		ToolCallID: m.ToolCallID, FunctionName: m.FunctionName, CreatedAt: m.CreatedAt,
		InputTokens: m.InputTokens, OutputTokens: m.OutputTokens,
	}
}
