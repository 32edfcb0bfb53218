package tui

import (
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/pywen-dev/pywen/internal/mcptools"
)

// ---------------------------------------------------------------------------
// Update — dispatch only; handlers live in update_*.go
// ---------------------------------------------------------------------------

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m.frameLines = nil // invalidate per-frame wrap cache

	// Modals intercept all input while open.
	if mdl, cmd, handled := m.updateFileModal(msg); handled {
		return mdl, cmd
	}
	if mdl, cmd, handled := m.updateKeybindsModal(msg); handled {
		return mdl, cmd
	}
	if mdl, cmd, handled := m.updateModelsModal(msg); handled {
		return mdl, cmd
	}
	if mdl, cmd, handled := m.updateToolViewModal(msg); handled {
		return mdl, cmd
	}

	switch msg := msg.(type) {

	// -- Window resize -------------------------------------------------------
	case tea.WindowSizeMsg:
		m.handleResize(msg)

	// -- Paste (clipboard read or bracketed paste) ---------------------------
	case tea.ClipboardMsg, tea.PasteMsg:
		return m.handlePaste(msg)

	// -- Mouse ---------------------------------------------------------------
	case tea.MouseMsg:
		return m.handleMouse(msg)

	// -- Keyboard ------------------------------------------------------------
	case tea.KeyPressMsg:
		if mdl, cmd, handled := m.handleKeyPress(msg); handled {
			return mdl, cmd
		}

	// -- Frame tick (60fps) — rebuild streaming entries for live updates ------
	case tickMsg:
		m.tickStreaming()
		m.tickSpinner(time.Time(msg))
		return m, frameTick()

	// -- LLM turn lifecycle --------------------------------------------------
	case llmBatchMsg:
		return m.handleLLMBatch(msg)
	case llmUserMsg:
		return m.handleLLMUser(msg)
	case userMsgSavedMsg:
		return m.handleUserMsgSaved(msg)

	// -- Undo ----------------------------------------------------------------
	case undoMsg:
		return m.handleUndo()
	case undoResultMsg:
		return m.handleUndoResult(msg), nil

	// -- Modals opened via commands ------------------------------------------
	case openToolViewMsg:
		m.openToolViewModal(msg.title, msg.content)
		return m, nil
	case modelsFetchedMsg:
		return m.handleModelsFetched(msg), nil
	case modelSwitchedMsg:
		return m.handleModelSwitched(msg), nil

	// -- Status / environment ------------------------------------------------
	case LSPDiagnosticsMsg:
		return m.handleLSPDiag(msg), nil
	case UpdateToolsMsg:
		m.mcpTools = msg.Tools
		return m, nil
	case mcptools.OpenForUserMsg:
		m.editor.SetValue(msg.Content)
		m.editor.Language = msg.Language
		m.editor.DiagnosticLines = nil
		m.editorFilePath = msg.AbsPath
		m.lspErrors = 0
		m.lspWarnings = 0
		m.setFocus(focusEditor)
		return m, nil
	case ShellOutputMsg:
		m.ensureStreaming()
		m.streamingContent += msg.Content
		m.streamDirty = true
		return m, nil
	case gitBranchMsg:
		return m.handleGitBranch(msg)
	}

	// Forward remaining messages to sub-models (mouse is already handled above).
	return m.forwardToSubModels(msg)
}

// forwardToSubModels sends a non-handled message to sub-editors.
func (m Model) forwardToSubModels(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	cmds = append(cmds, cmd)
	m.agentInput, cmd = m.agentInput.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handlePaste(msg tea.Msg) (tea.Model, tea.Cmd) {
	var text string
	switch v := msg.(type) {
	case tea.ClipboardMsg:
		text = v.Content
	case tea.PasteMsg:
		text = v.Content
	}
	if text != "" {
		m.insertPaste(text)
	}
	return m, nil
}

// insertPaste inserts pasted text into the focused component.
func (m *Model) insertPaste(text string) {
	if text == "" {
		return
	}
	switch m.focus {
	case focusInput:
		m.agentInput.DeleteSelection()
		m.agentInput.InsertText(text)
	case focusEditor:
		m.editor.DeleteSelection()
		m.editor.InsertText(text)
	}
}
