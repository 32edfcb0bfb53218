// Package provider defines the LLM provider interface and implementations.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrProviderNotFound is returned when a requested provider doesn't exist.
var ErrProviderNotFound = errors.New("provider not found")

// Message represents a chat message.
type Message struct {
	Role         string
	Content      string
	Reasoning    string     // Model reasoning/thinking content (optional)
	ToolCalls    []ToolCall // For assistant messages with tool calls
	ToolCallID   string     // For tool result messages
	FunctionName string     // For tool result messages: name of the called function (required by Gemini)
	CreatedAt    time.Time  // Message timestamp
	InputTokens  int        // Token usage for this LLM call (assistant messages only)
	OutputTokens int        // Token usage for this LLM call (assistant messages only)
}

// Tool represents a tool/function definition for the LLM.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ToolCallKind distinguishes structured function calls from opaque custom
// (e.g. patch/diff) calls, per spec.md §3's ToolCall data model.
type ToolCallKind int

const (
	// ToolCallFunction carries JSON-object arguments. The zero value, so
	// existing call sites that never set Kind keep today's behavior.
	ToolCallFunction ToolCallKind = iota
	// ToolCallCustom carries an opaque string in Input rather than
	// structured Arguments (e.g. a patch tool's diff body).
	ToolCallCustom
)

func (k ToolCallKind) String() string {
	if k == ToolCallCustom {
		return "custom"
	}
	return "function"
}

// ToolCall represents a tool call made by the LLM.
type ToolCall struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Kind             ToolCallKind    `json:"kind,omitempty"`
	Arguments        json.RawMessage `json:"arguments"`
	Input            string          `json:"input,omitempty"` // ToolCallCustom only: raw opaque payload
	ThoughtSignature string          `json:"thought_signature,omitempty"`
}

// ChatResponse represents the response from a chat completion.
type ChatResponse struct {
	Content      string     // Text content (may be empty if tool calls)
	ToolCalls    []ToolCall // Tool calls (may be empty if text response)
	Reasoning    string     // Model reasoning content (optional)
	InputTokens  int        // Input/prompt token count (0 if unavailable)
	OutputTokens int        // Output/completion token count (0 if unavailable)
}

// StreamEventType identifies the kind of streaming event.
type StreamEventType int

const (
	// EventContentDelta carries a chunk of text content.
	EventContentDelta StreamEventType = iota
	// EventReasoningDelta carries a chunk of reasoning/thinking content.
	EventReasoningDelta
	// EventToolCallBegin signals the start of a new tool call with ID and name.
	EventToolCallBegin
	// EventToolCallDelta carries a chunk of tool call arguments.
	EventToolCallDelta
	// EventUsage carries token usage statistics.
	EventUsage
	// EventDone signals the stream is complete.
	EventDone
	// EventError signals a stream error.
	EventError
)

// StreamEvent represents a single event in a streamed LLM response.
type StreamEvent struct {
	Type StreamEventType

	// Content or reasoning text delta (for EventContentDelta, EventReasoningDelta).
	Content string

	// Tool call fields (for EventToolCallBegin, EventToolCallDelta).
	ToolCallIndex     int          // Index of the tool call in the response (from OpenAI spec)
	ToolCallID        string       // Set on EventToolCallBegin
	ToolCallName      string       // Set on EventToolCallBegin
	ToolCallKind      ToolCallKind // Set on EventToolCallBegin; zero value is ToolCallFunction
	ToolCallSignature string       // Optional thought signature for Gemini tool calls
	ToolCallArgs      string       // Argument fragment on EventToolCallDelta

	// Token usage (for EventUsage).
	InputTokens  int
	OutputTokens int

	// Error (for EventError).
	Err error
}

type Model struct {
	Name       string
	Size       int64
	Digest     string
	ModifiedAt time.Time
	Format     string
	Family     string
	ParamSize  string
	QuantLevel string
}

// Provider defines the interface for LLM providers.
type Provider interface {
	// Name returns the provider's identifier.
	Name() string

	// ChatStream sends messages with optional tools and returns a channel of streaming events.
	// The channel is closed after EventDone or EventError is sent.
	// Pass nil tools for simple chat without tool calling.
	ChatStream(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error)

	// ListModels returns available models from the provider.
	ListModels(ctx context.Context) ([]Model, error)

	// Close closes idle HTTP connections and cleans up resources.
	Close() error
}

// WireAPI selects which wire dialect an OpenAI-family adapter speaks to the
// backend, per spec.md §4.1: "chat" (Chat Completions, tool_calls on
// assistant messages, tool-role results) or "responses" (a typed input list
// with function_call/function_call_output/reasoning items, assembled from
// output-item and delta events). "auto" defers to the adapter's own default.
type WireAPI string

const (
	WireChat      WireAPI = "chat"
	WireResponses WireAPI = "responses"
	WireAuto      WireAPI = "auto"
)

// Adapter is the full two-way translation contract spec.md §4.1 describes:
// StreamResponse is the required streaming entry point every Provider
// already exposes as ChatStream; GenerateResponse is the optional
// non-streaming form, implemented here by aggregating a StreamResponse call;
// ConversationsCreate is the optional server-side-conversation-state hook a
// provider may support (the Responses dialect does, Chat Completions and
// Anthropic's Messages API don't, so those implementations return "", nil).
type Adapter interface {
	Provider

	// GenerateResponse sends messages with optional tools and returns one
	// aggregated response rather than a stream, per spec.md §4.1's
	// "generate_response(history, params) → LLMResponse (non-streaming,
	// optional)".
	GenerateResponse(ctx context.Context, messages []Message, tools []Tool) (*ChatResponse, error)

	// StreamResponse is spec.md §4.1's "stream_response(history, params) →
	// async iterator<ResponseEvent>" contract; it is the same call as
	// ChatStream, named to match the spec vocabulary directly.
	StreamResponse(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error)

	// ConversationsCreate asks the provider for an opaque server-side
	// conversation id to attach to subsequent calls. Providers that don't
	// support server-side conversation state return ("", nil).
	ConversationsCreate(ctx context.Context) (string, error)
}

// aggregateStream drains a StreamEvent channel into one ChatResponse,
// backing every Adapter implementation's GenerateResponse. It mirrors
// internal/agent.Loop's own delta-collection loop but has no events package
// dependency, since provider must not import agent.
func aggregateStream(ch <-chan StreamEvent) (*ChatResponse, error) {
	var resp ChatResponse
	type pendingCall struct {
		id, name string
		kind     ToolCallKind
		args     strings.Builder
	}
	var order []int
	byIndex := make(map[int]*pendingCall)

	for evt := range ch {
		switch evt.Type {
		case EventContentDelta:
			resp.Content += evt.Content
		case EventReasoningDelta:
			resp.Reasoning += evt.Content
		case EventToolCallBegin:
			pc := &pendingCall{id: evt.ToolCallID, name: evt.ToolCallName, kind: evt.ToolCallKind}
			byIndex[evt.ToolCallIndex] = pc
			order = append(order, evt.ToolCallIndex)
		case EventToolCallDelta:
			if pc, ok := byIndex[evt.ToolCallIndex]; ok {
				pc.args.WriteString(evt.ToolCallArgs)
			}
		case EventUsage:
			if evt.InputTokens > resp.InputTokens {
				resp.InputTokens = evt.InputTokens
			}
			if evt.OutputTokens > resp.OutputTokens {
				resp.OutputTokens = evt.OutputTokens
			}
		case EventError:
			return nil, evt.Err
		case EventDone:
			// finalize below
		}
	}

	for _, idx := range order {
		pc := byIndex[idx]
		raw := pc.args.String()
		tc := ToolCall{ID: pc.id, Name: pc.name, Kind: pc.kind}
		if pc.kind == ToolCallCustom {
			tc.Input = raw
		} else if json.Valid([]byte(raw)) {
			tc.Arguments = json.RawMessage(raw)
		} else {
			tc.Arguments, _ = json.Marshal(map[string]string{"input": raw})
		}
		resp.ToolCalls = append(resp.ToolCalls, tc)
	}
	return &resp, nil
}

type Factory interface {
	Name() string
	Create(model string, opts Options) Provider
}

// Registry holds available providers.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

func (r *Registry) RegisterFactory(name string, f Factory) {
	r.factories[name] = f
}

func (r *Registry) Create(name, model string, opts Options) (Provider, error) {
	f, ok := r.factories[name]
	if !ok {
		log.Error().Str("name", name).Str("model", model).Msg("Registry.Create: factory not found")
		return nil, ErrProviderNotFound
	}
	log.Info().Str("name", name).Str("model", model).Str("factory_type", "unknown").Msg("Registry.Create: calling factory")
	return f.Create(model, opts), nil
}

// Options holds provider generation settings.
type Options struct {
	Temperature   float64
	TopP          float64
	RepeatPenalty float64
	MaxTokens     int
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// TaggedModel pairs a provider config name with a model.
type TaggedModel struct {
	ProviderName string
	Model        Model
}

// ListAllModels concurrently fetches models from every registered provider and
// returns the combined list. Errors from individual providers are logged and
// skipped so a single unavailable provider does not block the rest.
func (r *Registry) ListAllModels(ctx context.Context, opts Options) []TaggedModel {
	type result struct {
		name   string
		models []Model
	}
	ch := make(chan result, len(r.factories))
	for name := range r.factories {
		name := name
		go func() {
			prov := r.factories[name].Create("", opts)
			models, err := prov.ListModels(ctx)
			prov.Close()
			if err != nil {
				log.Warn().Str("provider", name).Err(err).Msg("ListAllModels: provider error")
				ch <- result{name: name}
				return
			}
			ch <- result{name: name, models: models}
		}()
	}
	var all []TaggedModel
	for range r.factories {
		res := <-ch
		for _, m := range res.models {
			all = append(all, TaggedModel{ProviderName: res.name, Model: m})
		}
	}
	return all
}
