// Package skills discovers, installs, and injects Skill documents: short
// Markdown files with YAML frontmatter that teach the agent a procedure on
// demand. Discovery, scope precedence, and the fingerprinted system-skill
// cache install are ported from the Python reference implementation's
// pywen/skills/{loader,system}.py; injection (explicit-mention-only, first
// match wins per name) is ported from pywen/skills/injection.py.
package skills

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rs/zerolog/log"
)

const (
	skillsFilename        = "SKILL.md"
	skillsDirName         = "skills"
	repoRootConfigDirName = ".pywen"
	adminSkillsRoot       = "/etc/pywen/skills"

	maxNameLen             = 64
	maxDescriptionLen      = 1024
	maxShortDescriptionLen = 1024
)

// Scope identifies where a Skill was discovered, which also sets its
// precedence: Repo beats User beats System beats Admin.
type Scope int

const (
	ScopeRepo Scope = iota
	ScopeUser
	ScopeSystem
	ScopeAdmin
)

func (s Scope) String() string {
	switch s {
	case ScopeRepo:
		return "repo"
	case ScopeUser:
		return "user"
	case ScopeSystem:
		return "system"
	case ScopeAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Skill is one parsed SKILL.md document.
type Skill struct {
	Name             string
	Description      string
	ShortDescription string
	Path             string // path to SKILL.md
	Scope            Scope
	Body             string // markdown body, frontmatter stripped
}

// frontmatter is the YAML header of a SKILL.md file.
type frontmatter struct {
	Name             string `yaml:"name"`
	Description      string `yaml:"description"`
	ShortDescription string `yaml:"short_description"`
}

// DiscoveryOutcome is the result of scanning every applicable root.
type DiscoveryOutcome struct {
	Skills   []Skill
	Warnings []string
	Errors   []string
}

// SkillRoots returns the ordered list of (root, scope) pairs to scan for the
// given working directory, matching skill_roots_for_cwd: repo, user, system,
// then admin (POSIX only).
func SkillRoots(cwd string) []struct {
	Root  string
	Scope Scope
} {
	var roots []struct {
		Root  string
		Scope Scope
	}
	if repo := repoSkillsRoot(cwd); repo != "" {
		roots = append(roots, struct {
			Root  string
			Scope Scope
		}{repo, ScopeRepo})
	}
	home := PywenHome()
	roots = append(roots, struct {
		Root  string
		Scope Scope
	}{filepath.Join(home, skillsDirName), ScopeUser})
	roots = append(roots, struct {
		Root  string
		Scope Scope
	}{systemCacheRootDir(), ScopeSystem})
	if runtime.GOOS != "windows" {
		roots = append(roots, struct {
			Root  string
			Scope Scope
		}{adminSkillsRoot, ScopeAdmin})
	}
	return roots
}

// repoSkillsRoot walks up from cwd looking for a .pywen/skills directory,
// stopping at (and including) a git root.
func repoSkillsRoot(cwd string) string {
	dir := cwd
	for {
		candidate := filepath.Join(dir, repoRootConfigDirName, skillsDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return filepath.Join(dir, repoRootConfigDirName, skillsDirName)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// PywenHome returns $PYWEN_HOME, or ~/.pywen if unset, matching spec.md §6's
// environment variable table.
func PywenHome() string {
	if v := os.Getenv("PYWEN_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pywen"
	}
	return filepath.Join(home, ".pywen")
}

// systemCacheRootDir is the bundled system-skills cache, $PYWEN_HOME/skills/.system.
func systemCacheRootDir() string {
	return filepath.Join(PywenHome(), skillsDirName, ".system")
}

// Load discovers and parses every skill reachable from cwd, deduping by
// name with first-match-wins (earlier, higher-precedence roots shadow
// later ones), sorted by (name, path).
func Load(cwd string) DiscoveryOutcome {
	var outcome DiscoveryOutcome
	seen := map[string]bool{}

	for _, r := range SkillRoots(cwd) {
		found, errs := discoverUnderRoot(r.Root, r.Scope)
		for _, e := range errs {
			if r.Scope == ScopeSystem {
				outcome.Warnings = append(outcome.Warnings, e)
			} else {
				outcome.Errors = append(outcome.Errors, e)
			}
		}
		for _, sk := range found {
			if seen[sk.Name] {
				continue
			}
			seen[sk.Name] = true
			outcome.Skills = append(outcome.Skills, sk)
		}
	}

	sort.Slice(outcome.Skills, func(i, j int) bool {
		if outcome.Skills[i].Name != outcome.Skills[j].Name {
			return outcome.Skills[i].Name < outcome.Skills[j].Name
		}
		return outcome.Skills[i].Path < outcome.Skills[j].Path
	})
	return outcome
}

// discoverUnderRoot does a breadth-first walk under root looking for
// SKILL.md files, skipping hidden directories and symlinks.
func discoverUnderRoot(root string, scope Scope) ([]Skill, []string) {
	var found []Skill
	var errs []string

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	queue := []string{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			if entry.Type()&fs.ModeSymlink != 0 {
				continue
			}
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				queue = append(queue, full)
				continue
			}
			if entry.Name() != skillsFilename {
				continue
			}
			sk, err := parseSkillFile(full, scope)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", full, err))
				continue
			}
			found = append(found, sk)
		}
	}
	return found, errs
}

func parseSkillFile(path string, scope Scope) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}
	fm, body, err := extractFrontmatter(string(data))
	if err != nil {
		return Skill{}, err
	}

	var meta frontmatter
	if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
		return Skill{}, fmt.Errorf("invalid frontmatter: %w", err)
	}
	meta.Name = sanitizeSingleLine(meta.Name)
	meta.Description = sanitizeSingleLine(meta.Description)
	meta.ShortDescription = sanitizeSingleLine(meta.ShortDescription)

	if err := validateField("name", meta.Name, maxNameLen); err != nil {
		return Skill{}, err
	}
	if err := validateField("description", meta.Description, maxDescriptionLen); err != nil {
		return Skill{}, err
	}
	if meta.ShortDescription != "" {
		if err := validateField("short_description", meta.ShortDescription, maxShortDescriptionLen); err != nil {
			return Skill{}, err
		}
	}

	return Skill{
		Name: meta.Name, Description: meta.Description, ShortDescription: meta.ShortDescription,
		Path: path, Scope: scope, Body: body,
	}, nil
}

// extractFrontmatter requires the first line to be "---" and finds the
// closing "---", returning (frontmatter, body).
func extractFrontmatter(content string) (string, string, error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", fmt.Errorf("missing frontmatter opening delimiter")
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimSpace(body), nil
		}
	}
	return "", "", fmt.Errorf("missing frontmatter closing delimiter")
}

func sanitizeSingleLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func validateField(field, value string, maxLen int) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(value) > maxLen {
		return fmt.Errorf("%s exceeds %d characters", field, maxLen)
	}
	return nil
}

// --- System skill cache install, fingerprinted ---

const (
	systemSkillsMarkerFilename = ".pywen-system-skills.marker"
	systemSkillsMarkerSalt     = "v1"
)

// InstallSystemSkills copies embedded into the system cache directory if the
// cache is missing or its fingerprint no longer matches, matching
// install_system_skills's wipe-and-recopy-on-mismatch behavior.
func InstallSystemSkills(embedded embed.FS, embeddedRoot string) error {
	cacheDir := systemCacheRootDir()
	wantFingerprint, err := fingerprint(embedded, embeddedRoot)
	if err != nil {
		return err
	}

	markerPath := filepath.Join(cacheDir, systemSkillsMarkerFilename)
	if existing, err := os.ReadFile(markerPath); err == nil && strings.TrimSpace(string(existing)) == wantFingerprint {
		return nil
	}

	if err := os.RemoveAll(cacheDir); err != nil {
		return fmt.Errorf("clear system skills cache: %w", err)
	}
	if err := os.MkdirAll(cacheDir, 0750); err != nil {
		return err
	}
	if err := writeEmbeddedDir(embedded, embeddedRoot, cacheDir); err != nil {
		return err
	}
	log.Info().Str("cache_dir", cacheDir).Msg("installed system skills")
	return os.WriteFile(markerPath, []byte(wantFingerprint), 0640)
}

// fingerprint hashes every embedded file's relative path and content (salted)
// so a changed bundled skill invalidates the cache.
func fingerprint(embedded embed.FS, root string) (string, error) {
	var entries []string
	err := fs.WalkDir(embedded, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path, root)
		if d.IsDir() {
			entries = append(entries, "dir:"+rel)
			return nil
		}
		data, err := embedded.ReadFile(path)
		if err != nil {
			return err
		}
		h := sha256.Sum256(data)
		entries = append(entries, fmt.Sprintf("file:%s:%s", rel, hex.EncodeToString(h[:])))
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(entries)
	h := sha256.New()
	h.Write([]byte(systemSkillsMarkerSalt))
	for _, e := range entries {
		h.Write([]byte(e))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeEmbeddedDir(embedded embed.FS, root, destRoot string) error {
	return fs.WalkDir(embedded, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, root), "/")
		dest := filepath.Join(destRoot, rel)
		if d.IsDir() {
			return os.MkdirAll(dest, 0750)
		}
		data, err := embedded.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(dest, data, 0640)
	})
}

// --- Injection ---

// Mention is an explicit reference to a skill by name from a user input
// (e.g. a slash-command-like "/skill <name>" token).
type Mention struct {
	Name string
	Path string // optional: a specific path hint, matched against discovered skills
}

// BuildInjections returns the skill bodies to splice into the prompt for the
// given explicit mentions, matching build_skill_injections. It returns
// nothing when there are no skills or no mentions, resolves each name once
// (first match wins), and injects a skill only when the mention's path, if
// given, equals the skill's path; unknown names and path mismatches become
// warnings.
func BuildInjections(skillsList []Skill, mentions []Mention) (injections []string, warnings []string) {
	if len(skillsList) == 0 || len(mentions) == 0 {
		return nil, nil
	}

	byName := map[string]Skill{}
	for _, sk := range skillsList {
		if _, ok := byName[sk.Name]; !ok {
			byName[sk.Name] = sk
		}
	}

	resolved := map[string]bool{}
	for _, m := range mentions {
		if resolved[m.Name] {
			continue
		}
		sk, ok := byName[m.Name]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("skill %q not found", m.Name))
			continue
		}
		if m.Path != "" && m.Path != sk.Path {
			warnings = append(warnings, fmt.Sprintf("skill %q path hint %q does not match discovered path %q", m.Name, m.Path, sk.Path))
			continue
		}
		injections = append(injections, fmt.Sprintf("<skill name=%q>\n%s\n</skill>", sk.Name, sk.Body))
		resolved[m.Name] = true
	}
	return injections, warnings
}
