package provider

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestToResponsesInput_SystemBecomesDeveloper(t *testing.T) {
	items := toResponsesInput([]Message{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "hi"},
	})
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].Type != "message" || items[0].Role != "developer" {
		t.Fatalf("system item = %+v, want developer message", items[0])
	}
	if items[1].Role != "user" {
		t.Fatalf("user item = %+v", items[1])
	}
}

func TestToResponsesInput_ExpandsToolCalls(t *testing.T) {
	calls := []ToolCall{
		{ID: "c1", Name: "Read", Arguments: json.RawMessage(`{"file":"a.go"}`)},
		{ID: "c2", Name: "ApplyPatch", Kind: ToolCallCustom, Input: "*** Begin Patch"},
	}
	items := toResponsesInput([]Message{
		{Role: "assistant", Content: "working on it", ToolCalls: calls},
	})
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3 (message + two call items)", len(items))
	}
	if items[1].Type != "function_call" || items[1].CallID != "c1" || items[1].Arguments != `{"file":"a.go"}` {
		t.Fatalf("function call item = %+v", items[1])
	}
	if items[2].Type != "custom_tool_call" || items[2].CallID != "c2" || items[2].Input != "*** Begin Patch" {
		t.Fatalf("custom call item = %+v", items[2])
	}
}

func TestToResponsesInput_FunctionOutputCarriesArgumentsAndResult(t *testing.T) {
	calls := []ToolCall{{ID: "c1", Name: "Read", Arguments: json.RawMessage(`{"file":"a.go"}`)}}
	items := toResponsesInput([]Message{
		{Role: "assistant", ToolCalls: calls},
		{Role: "tool", ToolCallID: "c1", Content: "contents"},
	})
	out := items[len(items)-1]
	if out.Type != "function_call_output" || out.CallID != "c1" {
		t.Fatalf("output item = %+v", out)
	}
	var payload struct {
		Arguments map[string]string `json:"arguments"`
		Result    string            `json:"result"`
	}
	if err := json.Unmarshal([]byte(out.Output), &payload); err != nil {
		t.Fatalf("output is not the {arguments, result} object: %v (%q)", err, out.Output)
	}
	if payload.Arguments["file"] != "a.go" || payload.Result != "contents" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestToResponsesInput_CustomOutputStaysRaw(t *testing.T) {
	calls := []ToolCall{{ID: "c1", Name: "ApplyPatch", Kind: ToolCallCustom, Input: "patch body"}}
	items := toResponsesInput([]Message{
		{Role: "assistant", ToolCalls: calls},
		{Role: "tool", ToolCallID: "c1", Content: "Done!"},
	})
	out := items[len(items)-1]
	if out.Output != "Done!" {
		t.Fatalf("custom output = %q, want the raw result string", out.Output)
	}
}

func collectSSE(t *testing.T, body string) []StreamEvent {
	t.Helper()
	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		parseResponsesSSEStream(context.Background(), strings.NewReader(body), ch)
	}()
	var events []StreamEvent
	for evt := range ch {
		events = append(events, evt)
	}
	return events
}

func TestParseResponsesSSEStream_TextAndCompletion(t *testing.T) {
	body := "event: response.output_text.delta\n" +
		"data: {\"delta\":\"Hi\"}\n" +
		"event: response.output_text.delta\n" +
		"data: {\"delta\":\" there\"}\n" +
		"event: response.completed\n" +
		"data: {\"response\":{\"usage\":{\"input_tokens\":12,\"output_tokens\":4}}}\n"

	events := collectSSE(t, body)
	var text string
	var sawUsage, sawDone bool
	for _, e := range events {
		switch e.Type {
		case EventContentDelta:
			text += e.Content
		case EventUsage:
			sawUsage = e.InputTokens == 12 && e.OutputTokens == 4
		case EventDone:
			sawDone = true
		}
	}
	if text != "Hi there" {
		t.Fatalf("text = %q", text)
	}
	if !sawUsage || !sawDone {
		t.Fatalf("usage=%v done=%v, want both", sawUsage, sawDone)
	}
}

func TestParseResponsesSSEStream_CustomToolCall(t *testing.T) {
	body := "event: response.output_item.added\n" +
		"data: {\"output_index\":0,\"item\":{\"type\":\"custom_tool_call\",\"call_id\":\"c9\",\"name\":\"ApplyPatch\"}}\n" +
		"event: response.custom_tool_call_input.delta\n" +
		"data: {\"output_index\":0,\"delta\":\"*** Begin\"}\n" +
		"event: response.custom_tool_call_input.delta\n" +
		"data: {\"output_index\":0,\"delta\":\" Patch\"}\n" +
		"event: response.completed\n" +
		"data: {\"response\":{}}\n"

	events := collectSSE(t, body)
	var begin *StreamEvent
	var input string
	for i, e := range events {
		switch e.Type {
		case EventToolCallBegin:
			begin = &events[i]
		case EventToolCallDelta:
			input += e.ToolCallArgs
		}
	}
	if begin == nil {
		t.Fatal("missing EventToolCallBegin")
	}
	if begin.ToolCallID != "c9" || begin.ToolCallName != "ApplyPatch" || begin.ToolCallKind != ToolCallCustom {
		t.Fatalf("begin = %+v", begin)
	}
	if input != "*** Begin Patch" {
		t.Fatalf("input = %q", input)
	}
}

func TestParseResponsesSSEStream_FailureSurfacesError(t *testing.T) {
	body := "event: response.failed\n" +
		"data: {\"response\":{\"error\":{\"code\":\"server_error\",\"message\":\"boom\"}}}\n"

	events := collectSSE(t, body)
	if len(events) == 0 {
		t.Fatal("no events")
	}
	last := events[len(events)-1]
	if last.Type != EventError || last.Err == nil || !strings.Contains(last.Err.Error(), "boom") {
		t.Fatalf("last = %+v", last)
	}
}

func TestParseResponsesSSEStream_MissingTerminatorIsAnError(t *testing.T) {
	body := "event: response.output_text.delta\n" +
		"data: {\"delta\":\"partial\"}\n"

	events := collectSSE(t, body)
	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("last = %+v, want a synthetic error for a truncated stream", last)
	}
}
