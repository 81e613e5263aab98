package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"primewrap/internal/toggle"
)

// MsgEntriesReady carries a freshly loaded list.
type MsgEntriesReady []Entry

// MsgToggled reports a finished toggle.
type MsgToggled struct {
	Path   string
	Report *toggle.Report
	Err    error
}

// MsgError indicates loading failed.
type MsgError error

func loadEntriesCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		entries, err := loadEntries(b)
		if err != nil {
			return MsgError(err)
		}
		return MsgEntriesReady(entries)
	}
}

// loadEntries merges running executables with the selection file. Running
// processes are best effort; the selection alone still makes a useful list.
func loadEntries(b Backend) ([]Entry, error) {
	byPath := make(map[string]*Entry)

	running, runErr := b.RunningExecutables()
	for _, p := range running {
		byPath[p] = &Entry{Path: p, Running: true}
	}

	selected, err := b.Selected()
	if err != nil {
		return nil, err
	}
	if runErr != nil && len(selected) == 0 {
		return nil, runErr
	}
	for p := range selected {
		if e, ok := byPath[p]; ok {
			e.Selected = true
			continue
		}
		byPath[p] = &Entry{Path: p, Selected: true}
	}

	entries := make([]Entry, 0, len(byPath))
	for _, e := range byPath {
		if insp, err := b.Status(e.Path); err == nil {
			e.State = insp.State
			e.Problem = insp.Problem()
		}
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func toggleCmd(b Backend, path string) tea.Cmd {
	return func() tea.Msg {
		report, err := b.Toggle(path)
		return MsgToggled{Path: path, Report: report, Err: err}
	}
}

// Update handles events.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.WindowSize = msg
		return m, nil

	case MsgEntriesReady:
		m.Loading = false
		m.Err = nil
		m.Entries = []Entry(msg)
		m.applyFilter()
		return m, nil

	case MsgError:
		m.Err = msg
		m.Loading = false
		return m, nil

	case MsgToggled:
		m.Busy = false
		m.Status, m.StatusErr = describeToggle(msg)
		return m, loadEntriesCmd(m.Backend)

	case tea.KeyMsg:
		if m.InputMode {
			switch msg.Type {
			case tea.KeyEnter:
				m.InputMode = false
				m.InputBuffer.Blur()
				m.applyFilter()
				return m, nil
			case tea.KeyEsc:
				m.clearFilter()
				return m, nil
			}
			m.InputBuffer, cmd = m.InputBuffer.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc":
			if m.FilterActive {
				m.clearFilter()
			}
		case "up", "k":
			if m.SelectedIdx > 0 {
				m.SelectedIdx--
			}
		case "down", "j":
			if m.SelectedIdx < len(m.FilteredIndices)-1 {
				m.SelectedIdx++
			}
		case "enter", " ":
			e, ok := m.Current()
			if !ok || m.Busy {
				return m, nil
			}
			m.Busy = true
			m.Status = "Toggling " + e.Path + "..."
			m.StatusErr = false
			return m, toggleCmd(m.Backend, e.Path)
		case "r":
			m.Loading = true
			return m, loadEntriesCmd(m.Backend)
		case "/":
			m.InputMode = true
			m.InputBuffer.Focus()
			return m, textinput.Blink
		}
	}

	return m, cmd
}

func describeToggle(msg MsgToggled) (string, bool) {
	if msg.Report == nil {
		return fmt.Sprintf("Error: %v", msg.Err), true
	}
	if msg.Report.IsDir {
		installed, reverted, failed := msg.Report.Counts()
		s := fmt.Sprintf("%s: %d wrapped, %d restored", msg.Path, installed, reverted)
		if failed > 0 {
			return fmt.Sprintf("%s, %d failed: %v", s, failed, msg.Err), true
		}
		return s, false
	}
	if msg.Err != nil && !msg.Report.Outcomes[0].Applied() {
		return fmt.Sprintf("Error: %v", msg.Err), true
	}
	if msg.Report.Reverted() {
		if msg.Err != nil {
			return fmt.Sprintf("Restored %s, but: %v", msg.Path, msg.Err), true
		}
		return "Restored " + msg.Path + " (integrated GPU)", false
	}
	return "Wrapped " + msg.Path + " (discrete GPU)", false
}

func (m *AppModel) clearFilter() {
	m.InputMode = false
	m.InputBuffer.Blur()
	m.InputBuffer.SetValue("")
	m.applyFilter()
}

func (m *AppModel) applyFilter() {
	term := strings.ToLower(strings.TrimSpace(m.InputBuffer.Value()))
	m.FilterActive = term != ""

	indices := make([]int, 0, len(m.Entries))
	for i, e := range m.Entries {
		if term == "" || strings.Contains(strings.ToLower(e.Path), term) {
			indices = append(indices, i)
		}
	}
	m.FilteredIndices = indices

	// Bounds check
	if m.SelectedIdx >= len(m.FilteredIndices) {
		m.SelectedIdx = len(m.FilteredIndices) - 1
	}
	if m.SelectedIdx < 0 {
		m.SelectedIdx = 0
	}
}
