package agent

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/pywen-dev/pywen/internal/llm"
	"github.com/pywen-dev/pywen/internal/skills"
	"github.com/pywen-dev/pywen/internal/treesitter"
)

// LoadInstructions returns the concatenated PYWEN.md instructions reachable
// from the working directory, project level taking precedence over the
// user's config directory. The walk itself lives in llm.LoadAgentInstructions
// so the interactive TUI and the agent core can never disagree about which
// files feed the prompt.
func LoadInstructions() string {
	return llm.LoadAgentInstructions()
}

// SystemPrompt composes the full system prompt for a root-level agent: the
// model-specific base prompt (still selected by llm.SelectPrompt, keyed off
// the model name the way the teacher's prompt.go does), project/user
// instructions, and an optional tree-sitter symbol outline of the project.
func SystemPrompt(modelID string, idx *treesitter.Index) string {
	base := llm.SelectPrompt(modelID)
	instructions := LoadInstructions()

	var parts []string
	if instructions != "" {
		parts = append(parts, instructions)
	}
	if idx != nil {
		if outline := treesitter.FormatOutline(idx.Snapshot()); outline != "" {
			parts = append(parts, outline)
		}
	}
	parts = append(parts, base)
	return strings.Join(parts, "\n\n---\n\n")
}

// PromptOptions configures the full spec.md §4.5 system-prompt composition:
// base prompt + style prompt (PYWEN.md walk) + runtime environment block +
// sandbox descriptor + optional git-repo descriptor + skills section.
type PromptOptions struct {
	AgentType string // "pywen" | "codex" | "claudecode"
	ModelID   string
	TreeIndex *treesitter.Index
	Skills    []skills.Skill
}

// Compose builds the complete system prompt text for a fresh turn 0 and is
// the intended input to history.New / History.ReplaceSystem. Base prompt
// selection still keys off ModelID via llm.SelectPrompt (the teacher never
// had distinct per-agent-type prompt files, only per-model ones); AgentType
// only labels the runtime environment block, matching how the bundled
// system prompts already refer to themselves generically.
func Compose(opts PromptOptions) string {
	base := llm.SelectPrompt(opts.ModelID)

	var parts []string
	if instructions := LoadInstructions(); instructions != "" {
		parts = append(parts, instructions)
	}
	parts = append(parts, environmentBlock(opts.AgentType))
	if sandbox := sandboxDescriptor(); sandbox != "" {
		parts = append(parts, sandbox)
	}
	if repo := gitRepoDescriptor(); repo != "" {
		parts = append(parts, repo)
	}
	if opts.TreeIndex != nil {
		if outline := treesitter.FormatOutline(opts.TreeIndex.Snapshot()); outline != "" {
			parts = append(parts, outline)
		}
	}
	if section := skillsSection(opts.Skills); section != "" {
		parts = append(parts, section)
	}
	parts = append(parts, base)
	return strings.Join(parts, "\n\n---\n\n")
}

// environmentBlock describes the OS, kernel release (from `uname -r`, or
// "unknown" where that fails), Go runtime version, shell, and working
// directory the agent is running under, so the model doesn't have to guess
// which shell dialect or path conventions apply.
func environmentBlock(agentType string) string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "unknown"
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "unknown"
	}
	release := "unknown"
	if out, err := exec.Command("uname", "-r").Output(); err == nil {
		if r := strings.TrimSpace(string(out)); r != "" {
			release = r
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Environment\nAgent profile: %s\nOS: %s/%s\nRelease: %s\nGo runtime: %s\nShell: %s\nWorking directory: %s",
		agentType, runtime.GOOS, runtime.GOARCH, release, runtime.Version(), shell, cwd)
	return b.String()
}

// sandboxDescriptor reports the active sandbox mode from $SANDBOX, matching
// spec.md §6: "sandbox-exec" on macOS triggers the seatbelt-style
// description; any other non-empty value triggers the generic one.
func sandboxDescriptor() string {
	sandbox := os.Getenv("SANDBOX")
	if sandbox == "" {
		return ""
	}
	if sandbox == "sandbox-exec" && runtime.GOOS == "darwin" {
		return "## Sandbox\nRunning under macOS seatbelt (sandbox-exec). Filesystem and network access outside the project directory may be denied."
	}
	return "## Sandbox\nRunning inside a restricted execution sandbox (" + sandbox + "). Some commands may be blocked or fail."
}

// gitRepoDescriptor reports the current branch and remote, if the working
// directory is inside a git repository, so the model knows it can use git
// tools without first checking `git status`.
func gitRepoDescriptor() string {
	if !commandSucceeds("git", "rev-parse", "--is-inside-work-tree") {
		return ""
	}
	branch := runGitQuiet("rev-parse", "--abbrev-ref", "HEAD")
	remote := runGitQuiet("remote", "get-url", "origin")
	var b strings.Builder
	b.WriteString("## Git repository\nThis directory is a git repository.")
	if branch != "" {
		fmt.Fprintf(&b, "\nBranch: %s", branch)
	}
	if remote != "" {
		fmt.Fprintf(&b, "\nRemote: %s", remote)
	}
	return b.String()
}

func commandSucceeds(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	return cmd.Run() == nil
}

func runGitQuiet(args ...string) string {
	cmd := exec.Command("git", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(out.String())
}

// skillsSection lists every discovered skill's name and one-line description
// so the model knows what it can explicitly reference, per spec.md §4.5.
func skillsSection(list []skills.Skill) string {
	if len(list) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Available skills\nReference a skill by name to load its full instructions for this turn.\n")
	for _, s := range list {
		desc := s.ShortDescription
		if desc == "" {
			desc = s.Description
		}
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, desc)
	}
	return strings.TrimSpace(b.String())
}
