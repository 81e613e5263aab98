package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"primewrap/internal/wrapper"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#76B900")).
			Padding(0, 1)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57"))

	normalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	wrappedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#76B900")).
			Bold(true)

	problemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")) // Orange

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81"))
)

func (m AppModel) View() string {
	if m.Loading && len(m.Entries) == 0 {
		return "\n  Looking for running executables... please wait.\n"
	}
	if m.Err != nil {
		return fmt.Sprintf("\n  Error: %v\n\n  r: retry  q: quit\n", m.Err)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("primewrap"))
	b.WriteString(dimStyle.Render("  ● wrapped (discrete GPU)   ○ unwrapped"))
	b.WriteString("\n\n")

	if len(m.FilteredIndices) == 0 {
		if m.FilterActive {
			b.WriteString(dimStyle.Render("  No entries match the filter."))
		} else {
			b.WriteString(dimStyle.Render("  No running executables or saved selections."))
		}
		b.WriteString("\n")
	}

	start, end := m.window()
	for row := start; row < end; row++ {
		b.WriteString(m.renderEntry(m.Entries[m.FilteredIndices[row]], row == m.SelectedIdx))
		b.WriteString("\n")
	}
	if end < len(m.FilteredIndices) {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d more", len(m.FilteredIndices)-end)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.InputMode {
		b.WriteString("  Filter: " + m.InputBuffer.View() + "\n")
	} else if m.FilterActive {
		b.WriteString(dimStyle.Render("  Filter: "+m.InputBuffer.Value()+" (esc to clear)") + "\n")
	}
	if m.Status != "" {
		style := statusStyle
		if m.StatusErr {
			style = errorStyle
		}
		b.WriteString("  " + style.Render(m.Status) + "\n")
	}
	b.WriteString(dimStyle.Render("  ↑/↓ move  enter toggle  / filter  r refresh  q quit"))
	return b.String()
}

func (m AppModel) renderEntry(e Entry, selected bool) string {
	marker := "○"
	if e.State == wrapper.Wrapped {
		marker = wrappedStyle.Render("●")
	}

	var tags []string
	if e.Running {
		tags = append(tags, "running")
	}
	if e.Selected {
		tags = append(tags, "saved")
	}

	line := e.Path
	if selected {
		line = selectedItemStyle.Render(line)
	} else {
		line = normalItemStyle.Render(line)
	}

	out := fmt.Sprintf("  %s %s", marker, line)
	if len(tags) > 0 {
		out += dimStyle.Render(" [" + strings.Join(tags, ", ") + "]")
	}
	if e.Problem != "" {
		out += problemStyle.Render(" ! " + e.Problem)
	}
	return out
}

// window returns the visible slice of FilteredIndices, keeping the cursor on screen.
func (m AppModel) window() (int, int) {
	total := len(m.FilteredIndices)
	visible := m.WindowSize.Height - 8
	if visible < 5 {
		visible = 5
	}
	if total <= visible {
		return 0, total
	}
	start := m.SelectedIdx - visible/2
	if start < 0 {
		start = 0
	}
	if start+visible > total {
		start = total - visible
	}
	return start, start + visible
}
