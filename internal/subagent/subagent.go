// Package subagent spawns an isolated child conversation one recursion level
// below its caller, driven by agent.Loop rather than a bespoke tool round
// loop, so a SubAgent tool call gets the same budget/event machinery as the
// root conversation instead of a second, parallel implementation of it.
package subagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/pywen-dev/pywen/internal/agent"
	"github.com/pywen-dev/pywen/internal/history"
	"github.com/pywen-dev/pywen/internal/llm"
	"github.com/pywen-dev/pywen/internal/mcp"
	"github.com/pywen-dev/pywen/internal/provider"
	"github.com/pywen-dev/pywen/internal/tools"
)

// subAgentBasePrompt is the fixed role description given to every sub-agent,
// grounded on the teacher's buildSubAgentSystemPrompt (previously inlined in
// mcptools/subagent.go, now shared from here since both the SubAgent tool
// handler and this package's own tests construct sub-agent runs).
const subAgentBasePrompt = `You are a focused sub-agent working on a specific task assigned by a parent agent.

Your role:
- Complete the assigned task efficiently
- Use tools as needed (Read, Edit, Grep, Shell, etc.)
- Provide a clear, concise final response summarizing what you accomplished
- You cannot spawn further sub-agents

Output format:
- Use tools to gather information and make changes
- When done, respond with a summary of what was accomplished
- Be specific about any files modified, tests run, or issues found

You have a limited number of tool rounds - work efficiently.`

const (
	// MaxSubAgentDepth is the maximum recursion depth for sub-agents.
	// Depth 0 = root agent, depth 1 = sub-agent spawned by root.
	MaxSubAgentDepth = agent.MaxDepth

	// MaxSubAgentIterations is the default max tool rounds for sub-agents.
	MaxSubAgentIterations = 5

	// MaxAllowedIterations is the upper bound for user-specified max_iterations.
	MaxAllowedIterations = 20
)

// Options configures a sub-agent run.
type Options struct {
	Provider      provider.Provider
	Proxy         *mcp.Proxy
	Tools         []mcp.Tool
	Prompt        string
	MaxIterations int

	// ParentDepth is the calling agent.Loop's Depth; the sub-agent runs at
	// ParentDepth+1 so agent.Loop's own recursion-depth sentinel applies
	// uniformly whether a sub-agent is spawned from the root or from
	// another sub-agent.
	ParentDepth int
}

// Result reports a sub-agent run outcome.
type Result struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Run executes a sub-agent turn to completion and returns its final
// assistant content. The sub-agent gets its own history.History and
// tools.Executor (built over the caller-scoped proxy/tool list, typically
// already filtered to exclude SubAgent) and runs without a confirmation
// handshake: sub-agents are expected to complete unattended once a human has
// approved spawning them via the outer SubAgent tool call.
func Run(ctx context.Context, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("sub-agent cancelled: %v", err)
	}
	if opts.Provider == nil {
		return Result{}, fmt.Errorf("provider is required")
	}
	if opts.Proxy == nil {
		return Result{}, fmt.Errorf("proxy is required")
	}
	if opts.Prompt == "" {
		return Result{}, fmt.Errorf("prompt is required")
	}

	maxIter := MaxSubAgentIterations
	if opts.MaxIterations > 0 {
		if opts.MaxIterations > MaxAllowedIterations {
			return Result{}, fmt.Errorf("max_iterations too large (max: %d)", MaxAllowedIterations)
		}
		maxIter = opts.MaxIterations
	}

	registry := tools.NewRegistry(opts.Proxy)
	executor := tools.NewExecutor(registry)

	h := history.New(SystemPrompt())

	loop := &agent.Loop{
		Provider: opts.Provider,
		Executor: executor,
		ToolDefs: opts.Tools,
		History:  h,
		Budgets:  agent.Budgets{MaxTurns: 1, MaxIterations: maxIter},
		Depth:    opts.ParentDepth + 1,
	}

	res, err := loop.RunTurn(ctx, opts.Prompt)
	if err != nil {
		// A turn that exhausted its iteration budget still produced partial
		// work; surface whatever final content made it into history rather
		// than treating MAX_ITERATIONS as total failure.
		if last, ok := h.LastAssistant(); ok && last.Content != "" {
			var in, out int
			if res != nil {
				in, out = res.InputTokens, res.OutputTokens
			}
			return Result{Content: last.Content, InputTokens: in, OutputTokens: out}, nil
		}
		return Result{}, fmt.Errorf("sub-agent failed: %v", err)
	}

	if res.FinalContent == "" {
		return Result{}, fmt.Errorf("sub-agent produced no final response")
	}

	return Result{Content: res.FinalContent, InputTokens: res.InputTokens, OutputTokens: res.OutputTokens}, nil
}

// FilterTools removes the SubAgent tool from a tool list, preventing a
// sub-agent from spawning further sub-agents.
func FilterTools(toolList []mcp.Tool) []mcp.Tool {
	filtered := make([]mcp.Tool, 0, len(toolList))
	for _, t := range toolList {
		if t.Name != "SubAgent" {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// SystemPrompt returns the system prompt for sub-agents: the fixed
// sub-agent role description plus any project/user instructions a root
// agent would also pick up.
func SystemPrompt() string {
	parts := []string{subAgentBasePrompt}
	if instructions := llm.LoadAgentInstructions(); instructions != "" {
		parts = append(parts, instructions)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n---\n\n"))
}
