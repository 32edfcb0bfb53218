package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Adapter interface against either of the two
// dialects spec.md §4.1 names: Chat Completions (via the official go-openai
// client's own streaming support) or the Responses API (hand-rolled SSE
// scanning against p.baseURL+"/responses", since go-openai has no Responses
// client). wireAPI picks between them; "auto" behaves as "chat", the dialect
// every deployment is guaranteed to speak.
type OpenAIProvider struct {
	name        string
	client      *openai.Client
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	wireAPI     WireAPI
}

// NewOpenAI creates a provider against the public OpenAI API.
func NewOpenAI(model, apiKey string) *OpenAIProvider {
	return NewOpenAIWithBaseURL("openai", "", model, apiKey, 0.7)
}

// NewOpenAIWithBaseURL creates a provider against baseURL (empty uses the
// go-openai default, api.openai.com), for "compatible" deployments that speak
// the OpenAI Chat Completions dialect under a different host. Equivalent to
// NewOpenAIAdapter with wireAPI WireAuto.
func NewOpenAIWithBaseURL(name, baseURL, model, apiKey string, temperature float64) *OpenAIProvider {
	return NewOpenAIAdapter(name, baseURL, model, apiKey, temperature, WireAuto)
}

// NewOpenAIAdapter is the full constructor, taking the wire-format hint
// spec.md §3's LLMConfig carries (config.ModelConfig.WireAPI).
func NewOpenAIAdapter(name, baseURL, model, apiKey string, temperature float64, wireAPI WireAPI) *OpenAIProvider {
	trimmed := strings.TrimRight(baseURL, "/")
	cfg := openai.DefaultConfig(apiKey)
	if trimmed != "" {
		cfg.BaseURL = trimmed
	}
	httpClient := &http.Client{}
	cfg.HTTPClient = httpClient

	// streamResponses/ConversationsCreate hit p.baseURL directly (no
	// go-openai client involved), so an unset baseURL needs the same default
	// go-openai's own client would otherwise apply internally.
	if trimmed == "" && wireAPI == WireResponses {
		trimmed = "https://api.openai.com/v1"
	}

	return &OpenAIProvider{
		name:        name,
		client:      openai.NewClientWithConfig(cfg),
		httpClient:  httpClient,
		baseURL:     trimmed,
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		wireAPI:     wireAPI,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

// ChatStream dispatches to the Responses dialect when explicitly configured;
// every other setting ("chat", "auto", or unset) uses Chat Completions.
func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error) {
	if p.wireAPI == WireResponses {
		return p.streamResponses(ctx, messages, tools)
	}
	return p.chatCompletionsStream(ctx, messages, tools)
}

// StreamResponse is spec.md §4.1's name for the same streaming contract.
func (p *OpenAIProvider) StreamResponse(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error) {
	return p.ChatStream(ctx, messages, tools)
}

// GenerateResponse is the non-streaming form, aggregating a ChatStream call.
func (p *OpenAIProvider) GenerateResponse(ctx context.Context, messages []Message, tools []Tool) (*ChatResponse, error) {
	ch, err := p.ChatStream(ctx, messages, tools)
	if err != nil {
		return nil, err
	}
	return aggregateStream(ch)
}

// ConversationsCreate opens a server-side conversation on the Responses API
// and returns its id. Only meaningful under the Responses dialect; the Chat
// Completions dialect has no equivalent server-side state, so this returns
// ("", nil) rather than an error when wireAPI isn't "responses".
func (p *OpenAIProvider) ConversationsCreate(ctx context.Context) (string, error) {
	if p.wireAPI != WireResponses {
		return "", nil
	}
	body, err := json.Marshal(map[string]any{})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/conversations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("conversations.create status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// streamResponses drives the Responses dialect: a typed input list
// (message/function_call/function_call_output items, via toResponsesInput)
// posted to p.baseURL+"/responses" with stream=true, parsed back into
// StreamEvents by parseResponsesSSEStream. Grounded on
// original_source/pywen/llm/adapters/openai_adapter.py's
// OpenAIAdapter._responses_stream_responses_async.
func (p *OpenAIProvider) streamResponses(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error) {
	temp := float32(p.temperature)
	req := responsesRequest{
		Model:       p.model,
		Input:       toResponsesInput(messages),
		Tools:       toResponsesTools(tools),
		Temperature: &temp,
		Stream:      true,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	reader, err := httpDoSSE(ctx, httpRequestConfig{
		client:   p.httpClient,
		url:      p.baseURL + "/responses",
		body:     body,
		headers:  headers,
		provider: p.name,
		model:    p.model,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer reader.Close()
		parseResponsesSSEStream(ctx, reader, ch)
	}()
	return ch, nil
}

func (p *OpenAIProvider) chatCompletionsStream(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    mergeSystemMessagesOpenAI(toOpenAIMessages(messages)),
		Tools:       toOpenAITools(tools),
		Temperature: float32(p.temperature),
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	log.Info().Str("provider", p.name).Str("model", p.model).Int("message_count", len(messages)).Msg("OpenAI stream request started")

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer func() {
			if cerr := stream.Close(); cerr != nil {
				log.Warn().Err(cerr).Msg("OpenAI: failed to close stream")
			}
		}()

		toolNames := map[int]bool{}
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				trySend(ctx, ch, StreamEvent{Type: EventDone})
				return
			}
			if err != nil {
				trySend(ctx, ch, StreamEvent{Type: EventError, Err: err})
				return
			}

			if resp.Usage != nil {
				if !trySend(ctx, ch, StreamEvent{
					Type:         EventUsage,
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
				}) {
					return
				}
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if !p.emitChoiceDelta(ctx, ch, resp.Choices[0].Delta, toolNames) {
				return
			}
		}
	}()

	return ch, nil
}

// emitChoiceDelta translates one streamed choice delta into StreamEvents,
// tracking which tool-call indices have already emitted their begin event
// (the OpenAI SDK repeats the name on only the first argument fragment).
func (p *OpenAIProvider) emitChoiceDelta(ctx context.Context, ch chan<- StreamEvent, delta openai.ChatCompletionStreamChoiceDelta, seenTool map[int]bool) bool {
	if delta.Content != "" {
		if !trySend(ctx, ch, StreamEvent{Type: EventContentDelta, Content: delta.Content}) {
			return false
		}
	}
	for _, tc := range delta.ToolCalls {
		idx := 0
		if tc.Index != nil {
			idx = *tc.Index
		}
		if tc.Function.Name != "" && !seenTool[idx] {
			seenTool[idx] = true
			if !trySend(ctx, ch, StreamEvent{
				Type: EventToolCallBegin, ToolCallIndex: idx,
				ToolCallID: tc.ID, ToolCallName: tc.Function.Name,
			}) {
				return false
			}
		}
		if tc.Function.Arguments != "" {
			if !trySend(ctx, ch, StreamEvent{
				Type: EventToolCallDelta, ToolCallIndex: idx,
				ToolCallArgs: tc.Function.Arguments,
			}) {
				return false
			}
		}
	}
	return true
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]Model, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	models := make([]Model, len(list.Models))
	for i, m := range list.Models {
		models[i] = Model{Name: m.ID}
	}
	return models, nil
}

func (p *OpenAIProvider) Close() error {
	if p.httpClient != nil {
		p.httpClient.CloseIdleConnections()
	}
	return nil
}
