package tui

import (
	"context"
	"image"
	"os"
	"regexp"
	"sync/atomic"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/pywen-dev/pywen/internal/delta"
	"github.com/pywen-dev/pywen/internal/filesearch"
	"github.com/pywen-dev/pywen/internal/llm"
	"github.com/pywen-dev/pywen/internal/mcp"
	"github.com/pywen-dev/pywen/internal/mcptools"
	"github.com/pywen-dev/pywen/internal/provider"
	"github.com/pywen-dev/pywen/internal/store"
	"github.com/pywen-dev/pywen/internal/treesitter"
	"github.com/pywen-dev/pywen/internal/tui/editor"
	"github.com/pywen-dev/pywen/internal/tui/modal"
)

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

// layout holds computed rectangles for every TUI region.
// Recomputed from terminal dimensions on every resize.
type layout struct {
	editor image.Rectangle // Left pane: code viewer
	conv   image.Rectangle // Right pane: conversation log
	sep    image.Rectangle // Right pane: separator between conv and input
	input  image.Rectangle // Right pane: agent input
	div    image.Rectangle // Vertical divider column (1-wide)
}

const (
	inputRows    = 3 // Agent input height
	statusRows   = 2 // Status separator + status bar
	minPaneWidth = 20
)

// generateLayout computes all regions from terminal size and divider position.
func generateLayout(width, height, divX int) layout {
	contentH := height - statusRows
	if contentH < 1 {
		contentH = 1
	}

	// Vertical divider splits left/right at column divX.
	rightX := divX + 1
	rightW := width - rightX
	if rightW < 1 {
		rightW = 1
	}

	// Right pane vertical splits: conv | sep(1) | input(3)
	sepY := contentH - inputRows - 1
	if sepY < 0 {
		sepY = 0
	}
	inputY := contentH - inputRows
	if inputY < 0 {
		inputY = 0
	}

	return layout{
		editor: image.Rect(0, 0, divX, contentH),
		div:    image.Rect(divX, 0, divX+1, contentH),
		conv:   image.Rect(rightX, 0, rightX+rightW, sepY),
		sep:    image.Rect(rightX, sepY, rightX+rightW, sepY+1),
		input:  image.Rect(rightX, inputY, rightX+rightW, inputY+inputRows),
	}
}

// inRect returns true if screen point (x,y) is inside r.
func inRect(x, y int, r image.Rectangle) bool {
	return image.Pt(x, y).In(r)
}

// ---------------------------------------------------------------------------
// Conversation entries
// ---------------------------------------------------------------------------

// entryKind distinguishes conversation entry types for rendering and click
// handling.
type entryKind int

const (
	entryText       entryKind = iota // Plain text (user, assistant)
	entryToolCall                    // "→ Tool(args)" request line
	entryToolResult                  // Tool result — [view] opens content
	entryToolDiag                    // LSP diagnostic line under a tool result
	entrySeparator                   // Per-turn timestamp/token separator
	entryUndo                        // Clickable undo control under the latest separator
)

// convEntry is a single logical entry in the conversation pane.
type convEntry struct {
	display  string    // Styled text for rendering
	kind     entryKind // Entry type
	filePath string    // Source file path (for tool results that reference a file)
	full     string    // Raw content behind the entry (tool output, separator text)
	line     int       // Target line for cursor positioning when opened
	toolName string    // Originating tool, for view routing
}

// toolResultFileRe extracts the file path from "Opened path ..." / "Edited path ..." / "Created path ..." headers.
var toolResultFileRe = regexp.MustCompile(`^(?:Opened|Edited|Created|Read)\s+(\S+)`)

// ---------------------------------------------------------------------------
// Focus
// ---------------------------------------------------------------------------

type focus int

const (
	focusInput  focus = iota // Default: agent input has focus
	focusEditor              // Code viewer has focus
)

// setFocus moves keyboard focus between the editor and the agent input.
func (m *Model) setFocus(f focus) {
	m.focus = f
	switch f {
	case focusEditor:
		m.agentInput.Blur()
		m.editor.Focus()
	case focusInput:
		m.editor.Blur()
		m.agentInput.Focus()
	}
}

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

// Model is the top-level TUI model.
type Model struct {
	// Terminal dimensions
	width, height int

	// Sub-models
	editor     editor.Model
	agentInput editor.Model

	// Layout
	layout layout
	divX   int // Divider X position (resizable)
	focus  focus
	styles Styles

	// LLM
	provider           provider.Provider
	sharedProvider     *atomic.Pointer[provider.Provider]
	mcpProxy           *mcp.Proxy
	mcpTools           []mcp.Tool
	registry           *provider.Registry
	providerOpts       provider.Options
	providerConfigName string
	currentModelName   string
	cachedModels       []provider.TaggedModel
	initialSystemMsg   *provider.Message
	scratchpad         llm.ScratchpadReader
	updateChan         chan tea.Msg
	ctx                context.Context
	cancel             context.CancelFunc

	// Per-turn LLM state
	turnCtx     context.Context
	turnCancel  context.CancelFunc
	turnPending bool // user message save in flight, turn not started yet
	llmInFlight bool

	// Persistence
	store          *store.Cache
	sessionID      string
	storeQueue     chan storeBatch
	storeQueueDone <-chan struct{}
	deltaTracker   *delta.Tracker
	fileTracker    *mcptools.FileReadTracker
	tsIndex        *treesitter.Index
	undoInFlight   bool

	// Conversation
	convEntries    []convEntry // Conversation entries (not wrapped)
	convLineSource []int       // Maps each wrapped line -> index in convEntries
	frameLines     []string    // Per-frame wrapped line cache
	scrollOffset   int         // Lines from bottom (0 = pinned)
	turnBoundaries []turnBoundary
	pendingToolCalls map[string]provider.ToolCall

	// Streaming state: raw text accumulated during streaming, styled on frame tick
	streamingReasoning string
	streamingContent   string
	streaming          bool
	streamDirty        bool
	streamEntryStart   int // Index in convEntries where streaming entries begin (-1 = none)

	// Token accounting
	totalInputTokens  int
	totalOutputTokens int
	turnInputTokens   int
	turnOutputTokens  int
	turnContextTokens int

	// Status bar
	spinFrame      int
	spinFrameAt    time.Time
	gitBranch      string
	gitDirty       bool
	lspErrors      int
	lspWarnings    int
	editorFilePath string
	lastNetError   string

	// Modals
	fileModal     *modal.Model
	keybindsModal *modal.Model
	modelsModal   *modal.Model
	toolViewModal *modal.ToolView
	searcher      *filesearch.Searcher
	atOffset      int // input offset of the "@" that opened the file modal

	// Mouse state
	resizingPane bool
	convSel      *convSelection
	convDragging bool
}

// New creates the top-level TUI model. The long parameter list mirrors the
// service set main.go wires up: a nil store/searcher/tracker degrades that
// feature rather than failing.
func New(
	prov provider.Provider,
	proxy *mcp.Proxy,
	tools []mcp.Tool,
	modelID string,
	webCache *store.Cache,
	sessionID string,
	tsIndex *treesitter.Index,
	deltaTracker *delta.Tracker,
	fileTracker *mcptools.FileReadTracker,
	providerConfigName string,
	scratchpad llm.ScratchpadReader,
	resumeHistory []provider.Message,
	registry *provider.Registry,
	providerOpts provider.Options,
	theme string,
) Model {
	initTheme(theme)
	sty := DefaultStyles()
	cursorStyle := lipgloss.NewStyle().Foreground(ColorHighlight)

	ed := editor.New()
	ed.ShowLineNumbers = true
	ed.ReadOnly = true
	ed.Language = "markdown"
	ed.SyntaxTheme = syntaxTheme
	ed.CursorStyle = cursorStyle
	ed.SelectionStyle = sty.Selection
	ed.LineNumStyle = lipgloss.NewStyle().Foreground(ColorBorder)
	ed.MarkAddStyle = lipgloss.NewStyle().Foreground(ColorHighlight)
	ed.MarkChgStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	ed.MarkDelStyle = lipgloss.NewStyle().Foreground(ColorError)
	ed.DiagErrStyle = lipgloss.NewStyle().Foreground(ColorError)
	ed.DiagWarnStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	ed.BgColor = ColorBg

	ai := editor.New()
	ai.Placeholder = "Type a message..."
	ai.CursorStyle = cursorStyle
	ai.SelectionStyle = sty.Selection
	ai.PlaceholderSty = lipgloss.NewStyle().Foreground(ColorDim).Background(ColorBg)
	ai.BgColor = ColorBg
	ai.Focus()

	ch := make(chan tea.Msg, 500)
	ctx, cancel := context.WithCancel(context.Background())

	systemMsg := provider.Message{
		Role:      "system",
		Content:   llm.BuildSystemPrompt(modelID, tsIndex),
		CreatedAt: time.Now(),
	}

	var searcher *filesearch.Searcher
	if cwd, err := os.Getwd(); err == nil {
		if s, serr := filesearch.NewSearcher(cwd); serr == nil {
			searcher = s
		}
	}

	var storeQueue chan storeBatch
	var storeDone <-chan struct{}
	if webCache != nil {
		storeQueue = make(chan storeBatch, 64)
		storeDone = startStoreWorker(webCache, storeQueue)
	}

	shared := &atomic.Pointer[provider.Provider]{}
	if prov != nil {
		shared.Store(&prov)
	}

	m := Model{
		editor:     ed,
		agentInput: ai,
		styles:     sty,
		focus:      focusInput,

		provider:           prov,
		sharedProvider:     shared,
		mcpProxy:           proxy,
		mcpTools:           tools,
		registry:           registry,
		providerOpts:       providerOpts,
		providerConfigName: providerConfigName,
		currentModelName:   modelID,
		initialSystemMsg:   &systemMsg,
		scratchpad:         scratchpad,
		updateChan:         ch,
		ctx:                ctx,
		cancel:             cancel,

		store:          webCache,
		sessionID:      sessionID,
		storeQueue:     storeQueue,
		storeQueueDone: storeDone,
		deltaTracker:   deltaTracker,
		fileTracker:    fileTracker,
		tsIndex:        tsIndex,

		searcher: searcher,

		streamEntryStart: -1,
		spinFrameAt:      time.Now(),
	}

	if len(resumeHistory) > 0 {
		m.convEntries = historyConvEntries(resumeHistory)
	}
	return m
}

// Init starts the frame loop, git polling, and cursor blink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		frameTick(),
		gitBranchCmd(),
		func() tea.Msg { return editor.Blink() },
	)
}
