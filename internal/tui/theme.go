package tui

import "github.com/pywen-dev/pywen/internal/highlight"

// palette holds the chrome colors derived from the active syntax theme.
// Set once at startup via initTheme; read by conv.go/update_modals.go for
// markdown highlighting and modal chrome.
var palette = highlight.ThemePalette("vulcan")

// syntaxTheme is the Chroma style name used for markdown/code highlighting
// in the conversation pane and the editor. Set alongside palette so both
// stay derived from the same configured theme.
var syntaxTheme = "vulcan"

// initTheme selects the syntax theme used both for editor highlighting and
// for deriving the chrome palette. Call before constructing a Model.
func initTheme(name string) {
	if name == "" {
		name = "vulcan"
	}
	syntaxTheme = name
	palette = highlight.ThemePalette(name)
}
