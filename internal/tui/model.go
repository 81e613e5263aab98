package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"primewrap/internal/selection"
	"primewrap/internal/toggle"
	"primewrap/internal/wrapper"
)

// Backend is the part of the manager the TUI drives.
type Backend interface {
	RunningExecutables() ([]string, error)
	Selected() (selection.Set, error)
	Toggle(path string) (*toggle.Report, error)
	Status(path string) (toggle.Inspection, error)
}

// Entry is one row of the list.
type Entry struct {
	Path     string
	Running  bool
	Selected bool
	State    wrapper.State
	Problem  string // Non-empty when the files disagree with State
}

// AppModel holds the TUI state.
type AppModel struct {
	Backend Backend

	// Data
	Entries []Entry
	Loading bool
	Err     error

	// UI State
	SelectedIdx int
	WindowSize  tea.WindowSizeMsg
	Busy        bool // A toggle is in flight

	// Filter State
	InputMode       bool
	InputBuffer     textinput.Model
	FilteredIndices []int // Indices of Entries to show
	FilterActive    bool

	// Status line
	Status    string
	StatusErr bool
}

// InitialModel returns the initial state.
func InitialModel(b Backend) AppModel {
	ti := textinput.New()
	ti.Placeholder = "path contains..."
	ti.CharLimit = 256
	ti.Width = 30

	return AppModel{
		Backend:     b,
		Loading:     true,
		InputBuffer: ti,
	}
}

// Init loads the entries.
func (m AppModel) Init() tea.Cmd {
	return loadEntriesCmd(m.Backend)
}

// Current returns the highlighted entry, if any.
func (m AppModel) Current() (Entry, bool) {
	if m.SelectedIdx < 0 || m.SelectedIdx >= len(m.FilteredIndices) {
		return Entry{}, false
	}
	return m.Entries[m.FilteredIndices[m.SelectedIdx]], true
}
