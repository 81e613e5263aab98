package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"primewrap/internal/database"
	"primewrap/internal/logging"
	"primewrap/internal/manager"
)

var (
	historyRecent int
	historyStats  bool
	historyAction string
	historyPath   string
	historyDays   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the toggle history",
	Example: `  primewrap history                      # 20 most recent events
  primewrap history --recent 50          # 50 most recent events
  primewrap history --stats --days 7     # statistics for the last week
  primewrap history --action ERROR       # only failures
  primewrap history --path '/opt/%'      # events under /opt`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyRecent, "recent", 20, "show N most recent events")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "show statistics")
	historyCmd.Flags().StringVar(&historyAction, "action", "", "filter by action (INSTALL, REVERT, REPAIR, ERROR)")
	historyCmd.Flags().StringVar(&historyPath, "path", "", "filter by path pattern (SQL LIKE syntax)")
	historyCmd.Flags().IntVar(&historyDays, "days", 30, "number of days for statistics")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withManager(manager.Options{}, func(m *manager.Manager, _ *logging.Leveled) error {
		db := m.History()
		if db == nil {
			return errors.New("history is disabled in the configuration")
		}

		w := cmd.OutOrStdout()
		switch {
		case historyStats:
			return showStats(w, db, historyDays)
		case historyAction != "":
			records, err := db.GetByAction(strings.ToUpper(historyAction))
			if err != nil {
				return fmt.Errorf("failed to query by action: %w", err)
			}
			return showRecords(w, records, "Records with action: "+strings.ToUpper(historyAction))
		case historyPath != "":
			records, err := db.GetByPath(historyPath)
			if err != nil {
				return fmt.Errorf("failed to query by path: %w", err)
			}
			return showRecords(w, records, "Records matching path pattern: "+historyPath)
		default:
			records, err := db.GetRecent(historyRecent)
			if err != nil {
				return fmt.Errorf("failed to get recent events: %w", err)
			}
			return showRecords(w, records, "")
		}
	})
}

func showStats(w io.Writer, db *database.HistoryDB, days int) error {
	stats, err := db.GetStats(days)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	if jsonOutput {
		return writeJSON(w, stats)
	}

	_, _ = fmt.Fprintf(w, "Toggle Statistics (Last %d days)\n", days)
	_, _ = fmt.Fprintf(w, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	_, _ = fmt.Fprintf(w, "Installs:        %d\n", stats.TotalInstalls)
	_, _ = fmt.Fprintf(w, "Reverts:         %d\n", stats.TotalReverts)
	_, _ = fmt.Fprintf(w, "Repairs:         %d\n", stats.TotalRepairs)
	_, _ = fmt.Fprintf(w, "Errors:          %d\n", stats.TotalErrors)
	_, _ = fmt.Fprintf(w, "Distinct paths:  %d\n", stats.DistinctPaths)

	top, err := db.GetTopPaths(5)
	if err != nil {
		return fmt.Errorf("failed to get top paths: %w", err)
	}
	if len(top) > 0 {
		paths := make([]string, 0, len(top))
		for p := range top {
			paths = append(paths, p)
		}
		sort.Slice(paths, func(i, j int) bool {
			if top[paths[i]] != top[paths[j]] {
				return top[paths[i]] > top[paths[j]]
			}
			return paths[i] < paths[j]
		})

		_, _ = fmt.Fprintln(w, "\nMost toggled:")
		for _, p := range paths {
			_, _ = fmt.Fprintf(w, "  %-5d %s\n", top[p], p)
		}
	}
	return nil
}

func showRecords(w io.Writer, records []database.ToggleRecord, title string) error {
	if jsonOutput {
		return writeJSON(w, records)
	}
	if title != "" {
		_, _ = fmt.Fprintf(w, "%s\n\n", title)
	}
	printRecords(w, records)
	return nil
}

func printRecords(w io.Writer, records []database.ToggleRecord) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No records found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTimestamp\tAction\tDetail\tPath")
	_, _ = fmt.Fprintln(tw, "--\t---------\t------\t------\t----")

	for _, r := range records {
		detail := r.Detail
		if r.ErrorMessage != "" {
			detail = strings.TrimSpace(detail + " " + r.ErrorMessage)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), r.Action, detail, r.Path)
	}
	_ = tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
