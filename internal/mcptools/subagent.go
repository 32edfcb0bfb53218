package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pywen-dev/pywen/internal/delta"
	"github.com/pywen-dev/pywen/internal/lsp"
	"github.com/pywen-dev/pywen/internal/mcp"
	"github.com/pywen-dev/pywen/internal/provider"
	"github.com/pywen-dev/pywen/internal/shell"
	"github.com/pywen-dev/pywen/internal/store"
	"github.com/pywen-dev/pywen/internal/subagent"
)

const (
	// MaxSubAgentIterations is the default max tool rounds for sub-agents.
	MaxSubAgentIterations = subagent.MaxSubAgentIterations

	// MaxAllowedIterations is the upper bound for user-specified max_iterations.
	MaxAllowedIterations = subagent.MaxAllowedIterations
)

// SubAgentArgs represents arguments for the SubAgent tool. Its schema is
// reflected from these tags rather than hand-written, per SPEC_FULL.md §2's
// invopop/jsonschema wiring.
type SubAgentArgs struct {
	Prompt        string `json:"prompt" jsonschema:"required,description=Task description for the sub-agent. Be specific about what needs to be accomplished and the expected output format."`
	MaxIterations int    `json:"max_iterations,omitempty" jsonschema:"description=Maximum tool rounds for the sub-agent (default: 5)"`
}

// NewSubAgentTool creates the SubAgent tool definition.
func NewSubAgentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "SubAgent",
		Description: `Spawn a sub-agent to handle a focused task. The sub-agent runs with the same tools but cannot spawn further sub-agents. Use this to decompose complex tasks into smaller, manageable pieces. The sub-agent's work is returned as a summary.`,
		InputSchema: generateSchema[SubAgentArgs](),
	}
}

// SubAgentHandler handles SubAgent tool calls.
type SubAgentHandler struct {
	provider     provider.Provider
	lspManager   *lsp.Manager
	deltaTracker *delta.Tracker
	sh           *shell.Shell
	webCache     *store.Cache
	exaKey       string
	allTools     []mcp.Tool
}

// NewSubAgentHandler creates a handler for the SubAgent tool.
func NewSubAgentHandler(
	prov provider.Provider,
	lspManager *lsp.Manager,
	deltaTracker *delta.Tracker,
	sh *shell.Shell,
	webCache *store.Cache,
	exaKey string,
	allTools []mcp.Tool,
) *SubAgentHandler {
	// Validate required dependencies
	if prov == nil {
		panic("SubAgentHandler: provider cannot be nil")
	}
	if sh == nil {
		panic("SubAgentHandler: shell cannot be nil")
	}
	// lspManager, deltaTracker, webCache can be nil (handlers check internally)

	return &SubAgentHandler{
		provider:     prov,
		lspManager:   lspManager,
		deltaTracker: deltaTracker,
		sh:           sh,
		webCache:     webCache,
		exaKey:       exaKey,
		allTools:     allTools,
	}
}

// Handle implements the mcp.ToolHandler interface.
func (h *SubAgentHandler) Handle(ctx context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
	// Check if context is already cancelled
	if err := ctx.Err(); err != nil {
		return toolError("Sub-agent cancelled: %v", err), nil
	}

	var args SubAgentArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return toolError("Invalid arguments: %v", err), nil
	}
	if args.Prompt == "" {
		return toolError("prompt is required"), nil
	}

	if args.MaxIterations > MaxAllowedIterations {
		return toolError("max_iterations too large (max: %d)", MaxAllowedIterations), nil
	}

	// Create isolated FileReadTracker for sub-agent
	subTracker := NewFileReadTracker()

	// Create fresh handlers with isolated tracker
	subReadHandler := NewReadHandler(subTracker, h.lspManager)
	subEditHandler := NewEditHandler(subTracker, h.lspManager, h.deltaTracker)
	subShellHandler := NewShellHandler(h.sh, h.deltaTracker)

	// Create proxy with sub-agent tools (filtered - no nested SubAgent)
	subProxy := mcp.NewProxy(nil)
	filteredTools := subagent.FilterTools(h.allTools)

	// Register tools with sub-agent proxy
	for _, tool := range filteredTools {
		switch tool.Name {
		case "Read":
			subProxy.RegisterTool(tool, subReadHandler.Handle)
		case "Edit":
			subProxy.RegisterTool(tool, subEditHandler.Handle)
		case "Shell":
			subProxy.RegisterTool(tool, subShellHandler.Handle)
		case "Grep":
			subProxy.RegisterTool(tool, MakeGrepHandler())
		case "TodoWrite":
			// Sub-agents get their own scratchpad
			subPad := &Scratchpad{}
			subProxy.RegisterTool(tool, MakeTodoWriteHandler(subPad))
		case "WebFetch":
			subProxy.RegisterTool(tool, MakeWebFetchHandler(h.webCache))
		case "WebSearch":
			subProxy.RegisterTool(tool, MakeWebSearchHandler(h.webCache, h.exaKey, ""))
		case "GitStatus":
			subProxy.RegisterTool(tool, MakeGitStatusHandler())
		case "GitDiff":
			subProxy.RegisterTool(tool, MakeGitDiffHandler())
		case "Think":
			subLog := &ThinkLog{}
			subProxy.RegisterTool(tool, MakeThinkHandler(subLog))
		}
	}

	res, err := subagent.Run(ctx, subagent.Options{
		Provider:      h.provider,
		Proxy:         subProxy,
		Tools:         filteredTools,
		Prompt:        args.Prompt,
		MaxIterations: args.MaxIterations,
		ParentDepth:   0,
	})
	if err != nil {
		return toolError("%v", err), nil
	}

	result := fmt.Sprintf("Sub-agent completed.\n\n%s\n\n---\nToken usage: %d in, %d out",
		res.Content, res.InputTokens, res.OutputTokens)

	return toolText(result), nil
}
