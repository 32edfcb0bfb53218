package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pywen-dev/pywen/internal/agent"
	"github.com/pywen-dev/pywen/internal/config"
	"github.com/pywen-dev/pywen/internal/history"
	"github.com/pywen-dev/pywen/internal/mcptools"
	"github.com/pywen-dev/pywen/internal/provider"
	"github.com/pywen-dev/pywen/internal/skills"
	"github.com/pywen-dev/pywen/internal/stats"
	"github.com/pywen-dev/pywen/internal/tools"
	"github.com/pywen-dev/pywen/internal/trajectory"
	"github.com/pywen-dev/pywen/internal/treesitter"
)

// exit codes, per spec.md §6.
const (
	exitOK            = 0
	exitUserError     = 1
	exitProviderError = 2
	exitUserCancel    = 130
)

// agentProfiles are the subcommands spec.md §6 recognizes for selecting a
// system prompt/environment-block flavor. An unrecognized or absent leading
// argument defaults to "pywen".
var agentProfiles = map[string]bool{"pywen": true, "codex": true, "claudecode": true}

// splitAgentArgs pulls a leading agent-profile subcommand off os.Args[1:], if
// present, returning the profile and the remaining args to hand to flag.Parse.
func splitAgentArgs(args []string) (profile string, rest []string) {
	if len(args) > 0 && agentProfiles[args[0]] {
		return args[0], args[1:]
	}
	return "pywen", args
}

// runAgentCLI implements the --prompt one-shot agent path: load config, build
// a provider and tool set, compose a system prompt (splicing in any skills
// named via --skill), run a single turn, and record the trajectory. It
// returns the process exit code.
func runAgentCLI(agentType, configPath, promptText string, skillNames []string) int {
	cfg, err := config.LoadAgentConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitUserError
	}
	stats.Global.SetAgentType(agentType)
	if cfg.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}

	prov, err := buildAgentProvider(cfg.ModelConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitUserError
	}
	defer prov.Close()

	svc := setupServices(&config.Config{}, mustLoadCredentials())
	defer svc.proxy.Close()
	defer svc.lspManager.StopAll(context.Background())
	if svc.webCache != nil {
		defer svc.webCache.Close()
	}

	ctx := context.Background()
	toolList, err := svc.proxy.ListTools(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list tools: %v\n", err)
		return exitUserError
	}

	subAgentHandler := mcptools.NewSubAgentHandler(
		prov, svc.lspManager, svc.deltaTracker, svc.shell, svc.webCache, svc.exaKey, toolList,
	)
	svc.proxy.RegisterTool(mcptools.NewSubAgentTool(), subAgentHandler.Handle)
	toolList, err = svc.proxy.ListTools(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list tools: %v\n", err)
		return exitUserError
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	tsIndex := treesitter.NewIndex(cwd)
	if err := tsIndex.Build(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: tree-sitter index build failed: %v\n", err)
	}

	discovered := skills.Load(cwd)
	for _, w := range discovered.Warnings {
		fmt.Fprintf(os.Stderr, "warning: skill discovery: %v\n", w)
	}

	systemPrompt := composeAgentSystemPrompt(agentType, cfg.ModelConfig.Model, tsIndex, discovered.Skills)

	// Explicitly named skills are loaded in full and become extra system
	// material for this turn. Resolution failures are warnings, never errors.
	if len(skillNames) > 0 {
		mentions := make([]skills.Mention, 0, len(skillNames))
		for _, name := range skillNames {
			mentions = append(mentions, skills.Mention{Name: name})
		}
		injections, warns := skills.BuildInjections(discovered.Skills, mentions)
		for _, w := range warns {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		if len(injections) > 0 {
			systemPrompt = strings.Join(injections, "\n\n") + "\n\n---\n\n" + systemPrompt
		}
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = trajectory.SessionID()
	}

	home := config.PywenHome()
	recorder, err := trajectory.Open(home, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to open trajectory file: %v\n", err)
	}
	defer func() {
		if recorder != nil {
			recorder.Close()
		}
	}()

	registry := tools.NewRegistry(svc.proxy)
	registerToolRisks(registry)
	executor := tools.NewExecutor(registry, tools.WithConfirm(autoApproveConfirm))

	h := history.New(systemPrompt)
	loop := &agent.Loop{
		Provider:   prov,
		Executor:   executor,
		ToolDefs:   toolList,
		History:    h,
		Budgets:    agent.Budgets{MaxTurns: cfg.MaxTurns, MaxIterations: cfg.MaxIterationsOrDefault()},
		Depth:      0,
		Scratchpad: svc.scratchpad,
	}
	if recorder != nil {
		loop.OnEvent = recorder.RecordAgentEvent
	}

	result, err := loop.RunTurn(ctx, promptText)
	if err != nil {
		if errors.Is(err, agent.ErrCancelled) {
			fmt.Fprintf(os.Stderr, "cancelled: %v\n", err)
			return exitUserCancel
		}
		fmt.Fprintf(os.Stderr, "agent error: %v\n", err)
		return exitProviderError
	}

	fmt.Println(result.FinalContent)
	return exitOK
}

// mustLoadCredentials loads credentials, falling back to an empty set rather
// than failing the one-shot path over an optional file (exa_ai key, etc.).
func mustLoadCredentials() *config.Credentials {
	creds, err := config.LoadCredentials()
	if err != nil {
		return &config.Credentials{}
	}
	return creds
}

// buildAgentProvider constructs a provider.Provider from an AgentConfig's
// ModelConfig, matching spec.md §4.1's provider/auth split: "openai" and
// "compatible" both use the OpenAI adapter with the configured wire_api
// (Chat Completions unless it is "responses"; the latter provider simply
// requires an explicit base_url), "anthropic" speaks the Messages API
// with the bearer-vs-native auth switch AnthropicProvider implements.
func buildAgentProvider(mc config.ModelConfig) (provider.Provider, error) {
	wireAPI := provider.WireAPI(mc.WireAPI)
	if wireAPI == "" {
		wireAPI = provider.WireAuto
	}
	switch mc.Provider {
	case "openai":
		return provider.NewOpenAIAdapter("openai", mc.BaseURL, mc.Model, mc.APIKey, 0.7, wireAPI), nil
	case "compatible":
		if mc.BaseURL == "" {
			return nil, fmt.Errorf("model_config.base_url is required for provider=compatible")
		}
		return provider.NewOpenAIAdapter("compatible", mc.BaseURL, mc.Model, mc.APIKey, 0.7, wireAPI), nil
	case "anthropic":
		baseURL := mc.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com/v1"
		}
		return provider.NewAnthropicWithBaseURL("anthropic", baseURL, mc.Model, mc.APIKey, 0.7), nil
	default:
		return nil, fmt.Errorf("model_config.provider=%q must be one of openai, compatible, anthropic", mc.Provider)
	}
}

// composeAgentSystemPrompt builds the full system prompt, honoring the
// PYWEN_SYSTEM_MD family of overrides spec.md §6 describes: a disabled
// setting falls back to agent.Compose's own composition, a path setting
// replaces the composed prompt with that file's contents, and
// PYWEN_WRITE_SYSTEM_MD asks the composed prompt to be written back out.
func composeAgentSystemPrompt(agentType, modelID string, tsIndex *treesitter.Index, skillList []skills.Skill) string {
	composed := agent.Compose(agent.PromptOptions{
		AgentType: agentType,
		ModelID:   modelID,
		TreeIndex: tsIndex,
		Skills:    skillList,
	})

	setting := config.ResolveSystemMD(agentType)
	if setting.Disabled {
		return composed
	}

	if config.WriteSystemMDRequested() {
		if err := os.WriteFile(setting.Path, []byte(composed), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write system prompt to %s: %v\n", setting.Path, err)
		}
		return composed
	}

	if data, err := os.ReadFile(setting.Path); err == nil {
		return string(data)
	}
	return composed
}

// registerToolRisks assigns confirmation-relevant risk levels to the tools a
// one-shot agent run can call. Shell and Edit mutate the filesystem or spawn
// processes, so per spec.md §4.4 they are High risk: routed through
// autoApproveConfirm below for confirmation, and serialized against every
// other High-risk call by tools.Executor's highLock. Everything else
// defaults to Safe.
func registerToolRisks(registry *tools.Registry) {
	registry.SetRisk("Shell", tools.High)
	registry.SetRisk("Edit", tools.High)
}

// autoApproveConfirm approves every call. Unlike the interactive TUI, a
// one-shot --prompt run has no human present to answer a confirmation
// prompt; the caller opted into unattended execution by choosing --prompt
// over the REPL, so Medium/High risk calls proceed without a pause.
func autoApproveConfirm(ctx context.Context, req tools.Request) (bool, error) {
	return true, nil
}
