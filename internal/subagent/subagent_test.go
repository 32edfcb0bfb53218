package subagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pywen-dev/pywen/internal/mcp"
	"github.com/pywen-dev/pywen/internal/provider"
)

func echoTool() (mcp.Tool, mcp.ToolHandler) {
	tool := mcp.Tool{Name: "Echo", Description: "echoes its input", InputSchema: json.RawMessage(`{"type":"object"}`)}
	handler := func(ctx context.Context, args json.RawMessage) (*mcp.ToolResult, error) {
		return &mcp.ToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: "echoed"}}}, nil
	}
	return tool, handler
}

func TestRunPlainAnswer(t *testing.T) {
	prov := provider.NewMock("mock").WithTextTurn("done", 5, 5)
	proxy := mcp.NewProxy(nil)

	res, err := Run(context.Background(), Options{
		Provider: prov,
		Proxy:    proxy,
		Prompt:   "summarize the repo",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content != "done" {
		t.Fatalf("content = %q, want %q", res.Content, "done")
	}
}

func TestRunWithToolCall(t *testing.T) {
	prov := provider.NewMock("mock").
		WithToolCallTurn("c1", "Echo", `{}`, 3, 3).
		WithTextTurn("finished", 2, 2)
	proxy := mcp.NewProxy(nil)
	tool, handler := echoTool()
	proxy.RegisterTool(tool, handler)

	res, err := Run(context.Background(), Options{
		Provider: prov,
		Proxy:    proxy,
		Tools:    []mcp.Tool{tool},
		Prompt:   "echo something",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content != "finished" {
		t.Fatalf("content = %q, want %q", res.Content, "finished")
	}
	if res.InputTokens != 5 || res.OutputTokens != 5 {
		t.Fatalf("usage = %d/%d, want 5/5", res.InputTokens, res.OutputTokens)
	}
}

func TestRunRejectsOversizedMaxIterations(t *testing.T) {
	prov := provider.NewMock("mock").WithTextTurn("done", 1, 1)
	proxy := mcp.NewProxy(nil)

	_, err := Run(context.Background(), Options{
		Provider:      prov,
		Proxy:         proxy,
		Prompt:        "task",
		MaxIterations: MaxAllowedIterations + 1,
	})
	if err == nil {
		t.Fatal("expected an error for an oversized max_iterations")
	}
}

func TestRunDepthExceeded(t *testing.T) {
	prov := provider.NewMock("mock").WithTextTurn("done", 1, 1)
	proxy := mcp.NewProxy(nil)

	_, err := Run(context.Background(), Options{
		Provider:    prov,
		Proxy:       proxy,
		Prompt:      "task",
		ParentDepth: MaxSubAgentDepth,
	})
	if err == nil {
		t.Fatal("expected recursion depth error")
	}
}

func TestRunRequiresPrompt(t *testing.T) {
	prov := provider.NewMock("mock")
	proxy := mcp.NewProxy(nil)

	if _, err := Run(context.Background(), Options{Provider: prov, Proxy: proxy}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}
