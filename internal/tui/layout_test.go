package tui

import (
	"regexp"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/pywen-dev/pywen/internal/provider"
)

// stripANSI removes ANSI escape codes for content comparison.
func stripANSI(s string) string {
	ansiRe := regexp.MustCompile(`\x1b\[[0-9;]*m`)
	return ansiRe.ReplaceAllString(s, "")
}

func newTestModel(width, height int) Model {
	m := New(nil, nil, nil, "test-model", nil, "test-session", nil, nil, nil, "mock", nil, nil, nil, provider.Options{}, "vulcan")
	updated, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: height})
	return updated.(Model)
}

func TestLayout(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
	}{
		{"80x24", 80, 24},
		{"120x40", 120, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(tt.width, tt.height)
			output := m.renderContent()
			lines := strings.Split(output, "\n")

			if len(lines) != tt.height {
				t.Fatalf("rendered %d lines, want %d", len(lines), tt.height)
			}
			for i, line := range lines {
				if w := lipgloss.Width(line); w != tt.width {
					t.Errorf("line %d: width=%d, want %d", i, w, tt.width)
				}
			}

			// The divider column and the status separator junction are the
			// only structural glyphs in an empty session.
			divX := m.layout.div.Min.X
			for row := 0; row < tt.height-statusRows; row++ {
				plain := []rune(stripANSI(lines[row]))
				if plain[divX] != '│' {
					t.Errorf("row %d: expected divider at col %d, got %q", row, divX, plain[divX])
				}
			}
			sepPlain := []rune(stripANSI(lines[tt.height-statusRows]))
			if sepPlain[divX] != '┴' {
				t.Errorf("status separator: expected junction at col %d, got %q", divX, sepPlain[divX])
			}
		})
	}
}

func TestGenerateLayoutRegions(t *testing.T) {
	ly := generateLayout(100, 30, 50)

	if ly.editor.Dx() != 50 {
		t.Errorf("editor width = %d, want 50", ly.editor.Dx())
	}
	if ly.div.Min.X != 50 || ly.div.Dx() != 1 {
		t.Errorf("divider = %v, want 1-wide column at x=50", ly.div)
	}
	if ly.input.Dy() != inputRows {
		t.Errorf("input height = %d, want %d", ly.input.Dy(), inputRows)
	}
	contentH := 30 - statusRows
	if ly.conv.Max.Y+1+inputRows != contentH {
		t.Errorf("conv/sep/input do not tile the right pane: conv=%v", ly.conv)
	}
}
