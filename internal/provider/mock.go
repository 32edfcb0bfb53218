package provider

import (
	"context"
	"sync"
	"time"
)

// MockProvider is a scriptable Provider used by the agent execution core's
// tests. Each call to ChatStream consumes the next queued turn; a turn is
// simply the sequence of StreamEvent values the real SSE parsers would have
// produced for that round. Queuing turns up front keeps test scenarios
// declarative instead of reimplementing provider wire formats.
type MockProvider struct {
	mu sync.Mutex

	name  string
	turns [][]StreamEvent
	calls int

	streamErr error // returned by the next ChatStream call instead of a turn
	delay     time.Duration
}

// NewMock creates a mock provider with no queued turns; use WithTurn to
// script responses before passing it to agent.Loop.
func NewMock(name string) *MockProvider {
	return &MockProvider{name: name}
}

// WithTurn appends one queued ChatStream response. Calls consume turns in
// FIFO order; once exhausted, ChatStream returns a single EventDone.
func (p *MockProvider) WithTurn(events ...StreamEvent) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, events)
	return p
}

// WithTextTurn is a convenience for the common "model answers with plain
// text, no tool calls" turn.
func (p *MockProvider) WithTextTurn(content string, inputTokens, outputTokens int) *MockProvider {
	return p.WithTurn(
		StreamEvent{Type: EventContentDelta, Content: content},
		StreamEvent{Type: EventUsage, InputTokens: inputTokens, OutputTokens: outputTokens},
		StreamEvent{Type: EventDone},
	)
}

// WithToolCallTurn is a convenience for a turn where the model emits exactly
// one function-style tool call, assembled from a single argument fragment.
func (p *MockProvider) WithToolCallTurn(id, toolName, argsJSON string, inputTokens, outputTokens int) *MockProvider {
	return p.WithTurn(
		StreamEvent{Type: EventToolCallBegin, ToolCallIndex: 0, ToolCallID: id, ToolCallName: toolName, ToolCallKind: ToolCallFunction},
		StreamEvent{Type: EventToolCallDelta, ToolCallIndex: 0, ToolCallArgs: argsJSON},
		StreamEvent{Type: EventUsage, InputTokens: inputTokens, OutputTokens: outputTokens},
		StreamEvent{Type: EventDone},
	)
}

// WithStreamError makes the next ChatStream call fail outright (as if the
// HTTP request itself failed, before any events were produced).
func (p *MockProvider) WithStreamError(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamErr = err
	return p
}

// SetDelay makes every emitted event wait this long, so tests can exercise
// context cancellation mid-stream.
func (p *MockProvider) SetDelay(delay time.Duration) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = delay
	return p
}

// Calls returns how many times ChatStream has been invoked.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Name returns the provider identifier.
func (p *MockProvider) Name() string {
	return p.name
}

// ChatStream replays the next queued turn onto a channel, honoring ctx
// cancellation between events so tests can verify mid-stream abort behavior.
func (p *MockProvider) ChatStream(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error) {
	p.mu.Lock()
	if p.streamErr != nil {
		err := p.streamErr
		p.streamErr = nil
		p.mu.Unlock()
		return nil, err
	}
	var events []StreamEvent
	if p.calls < len(p.turns) {
		events = p.turns[p.calls]
	} else {
		events = []StreamEvent{{Type: EventDone}}
	}
	p.calls++
	delay := p.delay
	p.mu.Unlock()

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		for _, e := range events {
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- e:
			}
		}
	}()
	return ch, nil
}

// ListModels returns an empty list; the mock provider is never queried for
// model discovery in tests.
func (p *MockProvider) ListModels(ctx context.Context) ([]Model, error) {
	return nil, nil
}

// Close is a no-op for the mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// MockFactory adapts a fixed MockProvider into the Factory interface so it
// can be registered on a Registry the same way real providers are.
type MockFactory struct {
	name string
	prov *MockProvider
}

// NewMockFactory wraps an already-configured MockProvider.
func NewMockFactory(name string, prov *MockProvider) *MockFactory {
	return &MockFactory{name: name, prov: prov}
}

func (f *MockFactory) Name() string { return f.name }

func (f *MockFactory) Create(model string, opts Options) Provider {
	return f.prov
}
