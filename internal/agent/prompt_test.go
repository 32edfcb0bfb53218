package agent

import (
	"strings"
	"testing"

	"github.com/pywen-dev/pywen/internal/skills"
)

func TestComposeIncludesEnvironmentAndBase(t *testing.T) {
	out := Compose(PromptOptions{AgentType: "pywen", ModelID: "claude-opus"})
	if !strings.Contains(out, "## Environment") {
		t.Fatalf("expected an environment block, got:\n%s", out)
	}
	if !strings.Contains(out, "Agent profile: pywen") {
		t.Fatalf("expected the agent profile to be named, got:\n%s", out)
	}
}

func TestComposeListsSkills(t *testing.T) {
	list := []skills.Skill{
		{Name: "code-review", Description: "Review a diff for bugs."},
		{Name: "release-notes", ShortDescription: "Draft release notes."},
	}
	out := Compose(PromptOptions{AgentType: "pywen", ModelID: "gpt-5", Skills: list})
	if !strings.Contains(out, "code-review: Review a diff for bugs.") {
		t.Fatalf("expected code-review entry, got:\n%s", out)
	}
	if !strings.Contains(out, "release-notes: Draft release notes.") {
		t.Fatalf("expected release-notes entry using ShortDescription, got:\n%s", out)
	}
}

func TestComposeOmitsSkillsSectionWhenEmpty(t *testing.T) {
	out := Compose(PromptOptions{AgentType: "codex", ModelID: "gpt-5"})
	if strings.Contains(out, "## Available skills") {
		t.Fatalf("expected no skills section, got:\n%s", out)
	}
}
