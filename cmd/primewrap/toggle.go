package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"primewrap/internal/exitcodes"
	"primewrap/internal/logging"
	"primewrap/internal/manager"
	"primewrap/internal/toggle"
	"primewrap/internal/wrapper"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle PATH...",
	Short: "Wrap or restore executables",
	Long: `Toggle installs a wrapper for each PATH that is not wrapped and restores each
PATH that is. A directory toggles every executable below it.

Paths under /usr, /bin and /sbin are refused unless --allow-system is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runToggle,
}

var statusCmd = &cobra.Command{
	Use:   "status PATH...",
	Short: "Show whether executables are wrapped",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStatus,
}

var repairCmd = &cobra.Command{
	Use:   "repair PATH...",
	Short: "Fix executables left half-toggled by an interrupted run",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRepair,
}

var scanCmd = &cobra.Command{
	Use:   "scan DIR",
	Short: "List the executables a directory toggle would act on",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

var procsCmd = &cobra.Command{
	Use:   "procs",
	Short: "List executables of running processes that can be toggled",
	Args:  cobra.NoArgs,
	RunE:  runProcs,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved selections",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	for _, cmd := range []*cobra.Command{toggleCmd, repairCmd} {
		cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
		cmd.Flags().BoolVar(&allowSystem, "allow-system", false, "allow paths under /usr, /bin and /sbin")
	}
	for _, cmd := range []*cobra.Command{statusCmd, scanCmd, procsCmd, listCmd} {
		cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	}
}

func runToggle(cmd *cobra.Command, args []string) error {
	opts := manager.Options{DryRun: dryRun, AllowSystem: allowSystem}
	return withManager(opts, func(m *manager.Manager, logger *logging.Leveled) error {
		if dryRun {
			logger.Info("DRY RUN MODE: no files will be changed")
		}

		var errs []error
		code := exitcodes.Success
		for _, path := range args {
			report, err := m.Toggle(path)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			if err == nil {
				continue
			}
			errs = append(errs, err)
			if code == exitcodes.Success {
				code = toggleExitCode(report, err)
			}
		}
		if len(errs) == 0 {
			return nil
		}
		return &exitError{code: code, err: errors.Join(errs...)}
	})
}

// toggleExitCode distinguishes a directory run where only some entries failed.
func toggleExitCode(report *toggle.Report, err error) int {
	if report != nil && report.IsDir {
		installed, reverted, _ := report.Counts()
		if installed+reverted > 0 {
			return exitcodes.PartialFailure
		}
	}
	return exitCode(err)
}

func printReport(w io.Writer, report *toggle.Report) {
	if report.IsDir && len(report.Outcomes) == 0 {
		_, _ = fmt.Fprintf(w, "no executables found in %s\n", report.Root)
		return
	}
	for _, o := range report.Outcomes {
		_, _ = fmt.Fprintf(w, "%-10s %s\n", outcomeLabel(o), o.Path)
		if o.Err != nil {
			_, _ = fmt.Fprintf(w, "           %v\n", o.Err)
		}
	}
	if report.IsDir {
		installed, reverted, failed := report.Counts()
		_, _ = fmt.Fprintf(w, "%s: %d wrapped, %d restored, %d failed\n", report.Root, installed, reverted, failed)
	}
}

func outcomeLabel(o toggle.Outcome) string {
	switch {
	case o.DryRun && o.Action == toggle.ActionRevert:
		return "would-undo"
	case o.DryRun:
		return "would-wrap"
	case o.Err != nil && !o.Applied():
		return "FAILED"
	case o.Action == toggle.ActionRevert:
		return "restored"
	default:
		return "wrapped"
	}
}

type statusRow struct {
	Path    string `json:"path"`
	State   string `json:"state"`
	Backup  bool   `json:"backup"`
	Script  bool   `json:"script"`
	Problem string `json:"problem,omitempty"`
	Error   string `json:"error,omitempty"`
}

func inspect(m *manager.Manager, path string) statusRow {
	insp, err := m.Status(path)
	row := statusRow{
		Path:    insp.Path,
		State:   insp.State.String(),
		Backup:  insp.State == wrapper.Wrapped,
		Script:  insp.ScriptExists,
		Problem: insp.Problem(),
	}
	if row.Path == "" {
		row.Path = path
	}
	if info, statErr := os.Stat(row.Path); statErr == nil && info.IsDir() {
		row.State = "directory"
	}
	if err != nil {
		row.Error = err.Error()
		row.Problem = ""
	}
	return row
}

func printStatusRows(w io.Writer, rows []statusRow) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "No entries")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STATE\tPATH\tNOTE")
	for _, r := range rows {
		note := r.Problem
		if r.Error != "" {
			note = "error: " + r.Error
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.State, r.Path, note)
	}
	return tw.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withManager(manager.Options{}, func(m *manager.Manager, _ *logging.Leveled) error {
		rows := make([]statusRow, 0, len(args))
		inconsistent := 0
		for _, path := range args {
			row := inspect(m, path)
			if row.Problem != "" || row.Error != "" {
				inconsistent++
			}
			rows = append(rows, row)
		}
		if err := printStatusRows(cmd.OutOrStdout(), rows); err != nil {
			return err
		}
		if inconsistent > 0 {
			return fmt.Errorf("%d path(s) need attention, see 'primewrap repair'", inconsistent)
		}
		return nil
	})
}

func runRepair(cmd *cobra.Command, args []string) error {
	opts := manager.Options{DryRun: dryRun, AllowSystem: allowSystem}
	return withManager(opts, func(m *manager.Manager, _ *logging.Leveled) error {
		var errs []error
		for _, path := range args {
			action, err := m.Repair(path)
			if err != nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s\n", "FAILED", path)
				errs = append(errs, err)
				continue
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s\n", action, path)
		}
		return errors.Join(errs...)
	})
}

func runScan(cmd *cobra.Command, args []string) error {
	return withManager(manager.Options{}, func(m *manager.Manager, _ *logging.Leveled) error {
		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", args[0])
		}

		exes := m.Executables(args[0])
		rows := make([]statusRow, 0, len(exes))
		for _, p := range exes {
			rows = append(rows, inspect(m, p))
		}
		return printStatusRows(cmd.OutOrStdout(), rows)
	})
}

func runProcs(cmd *cobra.Command, args []string) error {
	return withManager(manager.Options{}, func(m *manager.Manager, _ *logging.Leveled) error {
		exes, err := m.RunningExecutables()
		if err != nil {
			return err
		}
		rows := make([]statusRow, 0, len(exes))
		for _, p := range exes {
			rows = append(rows, inspect(m, p))
		}
		return printStatusRows(cmd.OutOrStdout(), rows)
	})
}

func runList(cmd *cobra.Command, args []string) error {
	return withManager(manager.Options{}, func(m *manager.Manager, _ *logging.Leveled) error {
		set, err := m.Selected()
		if err != nil {
			return err
		}
		rows := make([]statusRow, 0, len(set))
		for _, p := range set.Sorted() {
			rows = append(rows, inspect(m, p))
		}
		return printStatusRows(cmd.OutOrStdout(), rows)
	})
}
