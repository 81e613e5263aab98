package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"primewrap/internal/config"
	"primewrap/internal/exitcodes"
	"primewrap/internal/logging"
	"primewrap/internal/manager"
	"primewrap/internal/safety"
)

var (
	// Set by the release build
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile string
	verbose bool

	// Toggle flags
	dryRun      bool
	allowSystem bool
	jsonOutput  bool
)

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
}

var rootCmd = &cobra.Command{
	Use:   "primewrap",
	Short: "Run chosen programs on the discrete NVIDIA GPU",
	Long: `primewrap makes individual executables start with PRIME render offload.

Toggling an executable moves it aside to <name>.bak and puts a symlink to a
small wrapper script in its place. The script exports the offload environment
and execs the original. Toggling again restores the executable. Toggling a
directory does this for every executable inside it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("primewrap %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/primewrap/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(procsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(pickCmd)
	rootCmd.AddCommand(versionCmd)
}

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return exitcodes.Success
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, safety.ErrProtectedPath),
		errors.Is(err, safety.ErrTraversal),
		errors.Is(err, safety.ErrWrapperDir),
		errors.Is(err, safety.ErrInvalidPath):
		return exitcodes.SafetyViolation
	default:
		return exitcodes.RuntimeError
	}
}

func loadConfig() (*config.Config, error) {
	path, explicit := cfgFile, cfgFile != ""
	if !explicit {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(path, explicit)
	if err != nil {
		return nil, &exitError{code: exitcodes.InvalidConfig, err: fmt.Errorf("failed to load config: %w", err)}
	}
	return cfg, nil
}

// setupManager loads the configuration and builds a manager logging to
// console and the log file.
func setupManager(console io.Writer, opts manager.Options) (*manager.Manager, *logging.Leveled, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewLeveled(logging.NewWithWriter(cfg, console), verbose)
	logger.Debug("Configuration loaded",
		"wrapper_dir", cfg.WrapperDir,
		"selection_file", cfg.SelectionFile,
		"database", cfg.DatabasePath)

	m, err := manager.New(cfg, logger, opts)
	if err != nil {
		return nil, nil, err
	}
	return m, logger, nil
}

// withManager runs fn with a manager and closes it afterwards.
func withManager(opts manager.Options, fn func(m *manager.Manager, logger *logging.Leveled) error) error {
	m, logger, err := setupManager(os.Stderr, opts)
	if err != nil {
		return err
	}
	runErr := fn(m, logger)
	if err := m.Close(); err != nil {
		logger.Warn("Failed to shut down cleanly", "error", err)
	}
	return runErr
}
