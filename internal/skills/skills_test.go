package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, dir, name, description, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}
	content := "---\nname: " + name + "\ndescription: " + description + "\n---\n" + body
	if err := os.WriteFile(filepath.Join(dir, skillsFilename), []byte(content), 0640); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverUnderRoot_FindsSkill(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, filepath.Join(root, "greet"), "greeter", "says hello", "# Greeter\nSay hi.")

	found, errs := discoverUnderRoot(root, ScopeUser)
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if len(found) != 1 {
		t.Fatalf("found = %d skills, want 1", len(found))
	}
	if found[0].Name != "greeter" || found[0].Description != "says hello" {
		t.Fatalf("found[0] = %+v", found[0])
	}
	if !strings.Contains(found[0].Body, "Say hi.") {
		t.Fatalf("Body = %q", found[0].Body)
	}
}

func TestDiscoverUnderRoot_SkipsHiddenAndSymlinks(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, filepath.Join(root, ".hidden"), "hidden-skill", "should be skipped", "body")
	writeSkill(t, filepath.Join(root, "visible"), "visible-skill", "should be found", "body")

	realDir := filepath.Join(t.TempDir(), "real-target")
	writeSkill(t, realDir, "linked-skill", "via symlink", "body")
	_ = os.Symlink(realDir, filepath.Join(root, "linked"))

	found, _ := discoverUnderRoot(root, ScopeUser)
	names := map[string]bool{}
	for _, sk := range found {
		names[sk.Name] = true
	}
	if names["hidden-skill"] {
		t.Fatal("hidden directory should have been skipped")
	}
	if names["linked-skill"] {
		t.Fatal("symlinked directory should have been skipped")
	}
	if !names["visible-skill"] {
		t.Fatal("expected visible-skill to be discovered")
	}
}

func TestParseSkillFile_NameLengthBoundary(t *testing.T) {
	dir := t.TempDir()
	exactly64 := strings.Repeat("a", maxNameLen)
	writeSkill(t, dir, exactly64, "ok description", "body")
	if _, errs := discoverUnderRoot(dir, ScopeUser); len(errs) != 0 {
		t.Fatalf("name of exactly %d chars should be valid: %v", maxNameLen, errs)
	}

	dir2 := t.TempDir()
	tooLong := strings.Repeat("a", maxNameLen+1)
	writeSkill(t, dir2, tooLong, "ok description", "body")
	found, errs := discoverUnderRoot(dir2, ScopeUser)
	if len(found) != 0 || len(errs) == 0 {
		t.Fatalf("name of %d chars should be rejected, found=%v errs=%v", maxNameLen+1, found, errs)
	}
}

func TestParseSkillFile_DescriptionLengthBoundary(t *testing.T) {
	dir := t.TempDir()
	tooLong := strings.Repeat("d", maxDescriptionLen+1)
	writeSkill(t, dir, "valid-name", tooLong, "body")
	found, errs := discoverUnderRoot(dir, ScopeUser)
	if len(found) != 0 || len(errs) == 0 {
		t.Fatal("over-length description should be rejected")
	}
}

func writeSkillWithShortDescription(t *testing.T, dir, name, description, short string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}
	content := "---\nname: " + name + "\ndescription: " + description + "\nshort_description: " + short + "\n---\nbody"
	if err := os.WriteFile(filepath.Join(dir, skillsFilename), []byte(content), 0640); err != nil {
		t.Fatal(err)
	}
}

func TestParseSkillFile_ShortDescriptionLengthBoundary(t *testing.T) {
	dir := t.TempDir()
	exactly := strings.Repeat("s", maxShortDescriptionLen)
	writeSkillWithShortDescription(t, dir, "short-ok", "ok description", exactly)
	found, errs := discoverUnderRoot(dir, ScopeUser)
	if len(found) != 1 || len(errs) != 0 {
		t.Fatalf("short description of exactly %d chars should be valid: found=%v errs=%v", maxShortDescriptionLen, found, errs)
	}
	if found[0].ShortDescription != exactly {
		t.Fatalf("ShortDescription not preserved, got %d chars", len(found[0].ShortDescription))
	}

	dir2 := t.TempDir()
	tooLong := strings.Repeat("s", maxShortDescriptionLen+1)
	writeSkillWithShortDescription(t, dir2, "short-bad", "ok description", tooLong)
	found2, errs2 := discoverUnderRoot(dir2, ScopeUser)
	if len(found2) != 0 || len(errs2) == 0 {
		t.Fatalf("short description of %d chars should be rejected", maxShortDescriptionLen+1)
	}
}

func TestParseSkillFile_MissingFrontmatterDelimiters(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, skillsFilename), []byte("no frontmatter here"), 0640); err != nil {
		t.Fatal(err)
	}
	found, errs := discoverUnderRoot(dir, ScopeUser)
	if len(found) != 0 || len(errs) == 0 {
		t.Fatal("expected a parse error for a file with no frontmatter")
	}
}

func TestExtractFrontmatter(t *testing.T) {
	fm, body, err := extractFrontmatter("---\nname: x\n---\nbody text\nmore")
	if err != nil {
		t.Fatalf("extractFrontmatter: %v", err)
	}
	if fm != "name: x" {
		t.Fatalf("fm = %q", fm)
	}
	if body != "body text\nmore" {
		t.Fatalf("body = %q", body)
	}
}

func TestLoad_DedupesByNameFirstOccurrenceWins(t *testing.T) {
	repo := t.TempDir()
	userHome := t.TempDir()
	t.Setenv("PYWEN_HOME", userHome)

	repoSkillsDir := filepath.Join(repo, repoRootConfigDirName, skillsDirName, "dup")
	writeSkill(t, repoSkillsDir, "dup", "from repo", "repo body")

	userSkillsDir := filepath.Join(userHome, skillsDirName, "dup")
	writeSkill(t, userSkillsDir, "dup", "from user", "user body")

	outcome := Load(repo)
	var matches []Skill
	for _, sk := range outcome.Skills {
		if sk.Name == "dup" {
			matches = append(matches, sk)
		}
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one surviving 'dup' skill, got %d", len(matches))
	}
	if matches[0].Scope != ScopeRepo {
		t.Fatalf("expected the repo-scoped skill to win, got scope %v", matches[0].Scope)
	}
}

func TestLoad_SortsByNameThenPath(t *testing.T) {
	userHome := t.TempDir()
	t.Setenv("PYWEN_HOME", userHome)

	writeSkill(t, filepath.Join(userHome, skillsDirName, "zeta"), "zeta", "z", "body")
	writeSkill(t, filepath.Join(userHome, skillsDirName, "alpha"), "alpha", "a", "body")

	outcome := Load(t.TempDir())
	if len(outcome.Skills) < 2 {
		t.Fatalf("expected at least 2 skills, got %d", len(outcome.Skills))
	}
	for i := 1; i < len(outcome.Skills); i++ {
		if outcome.Skills[i-1].Name > outcome.Skills[i].Name {
			t.Fatalf("skills not sorted by name: %q before %q", outcome.Skills[i-1].Name, outcome.Skills[i].Name)
		}
	}
}

func TestPywenHome_RespectsEnvOverride(t *testing.T) {
	t.Setenv("PYWEN_HOME", "/tmp/custom-pywen-home")
	if got := PywenHome(); got != "/tmp/custom-pywen-home" {
		t.Fatalf("PywenHome = %q", got)
	}
}

func TestPywenHome_DefaultsUnderUserHomeDir(t *testing.T) {
	t.Setenv("PYWEN_HOME", "")
	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".pywen")
	if got := PywenHome(); got != want {
		t.Fatalf("PywenHome = %q, want %q", got, want)
	}
}

func TestBuildInjections_OnlyExplicitMentionsResolve(t *testing.T) {
	skillsList := []Skill{
		{Name: "commit-helper", Path: "/a/SKILL.md", Body: "how to write commits"},
		{Name: "release-notes", Path: "/b/SKILL.md", Body: "how to draft release notes"},
	}

	injections, warnings := BuildInjections(skillsList, []Mention{{Name: "commit-helper"}})
	if len(injections) != 1 || !strings.Contains(injections[0], "how to write commits") {
		t.Fatalf("injections = %v", injections)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestBuildInjections_UnknownMentionWarns(t *testing.T) {
	skillsList := []Skill{{Name: "known", Path: "/a/SKILL.md", Body: "body"}}
	injections, warnings := BuildInjections(skillsList, []Mention{{Name: "unknown"}})
	if len(injections) != 0 {
		t.Fatalf("injections = %v, want none", injections)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one", warnings)
	}
}

func TestBuildInjections_NoMentionsIsNoop(t *testing.T) {
	skillsList := []Skill{{Name: "known", Path: "/a/SKILL.md", Body: "body"}}
	injections, warnings := BuildInjections(skillsList, nil)
	if injections != nil || warnings != nil {
		t.Fatal("expected no injections or warnings when there are no mentions")
	}
}

func TestBuildInjections_DuplicateMentionNamesResolveOnce(t *testing.T) {
	skillsList := []Skill{{Name: "known", Path: "/a/SKILL.md", Body: "body"}}
	injections, _ := BuildInjections(skillsList, []Mention{{Name: "known"}, {Name: "known"}})
	if len(injections) != 1 {
		t.Fatalf("injections = %v, want exactly one", injections)
	}
}
