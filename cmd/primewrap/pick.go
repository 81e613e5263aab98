package main

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"primewrap/internal/manager"
	"primewrap/internal/tui"
)

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Interactively toggle running programs and saved selections",
	Args:  cobra.NoArgs,
	RunE:  runPick,
}

func init() {
	pickCmd.Flags().BoolVar(&allowSystem, "allow-system", false, "allow paths under /usr, /bin and /sbin")
}

func runPick(cmd *cobra.Command, args []string) error {
	// Log lines would tear the alternate screen; they still reach the log file.
	m, logger, err := setupManager(io.Discard, manager.Options{AllowSystem: allowSystem})
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("Failed to shut down cleanly", "error", err)
		}
	}()

	model := tui.InitialModel(m)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
