// Package manager wires the toggle core to the safety filter, selection file,
// history database and metrics. It is what the CLI and TUI talk to.
package manager

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"primewrap/internal/classify"
	"primewrap/internal/config"
	"primewrap/internal/database"
	"primewrap/internal/logging"
	"primewrap/internal/metrics"
	"primewrap/internal/procs"
	"primewrap/internal/safety"
	"primewrap/internal/scan"
	"primewrap/internal/selection"
	"primewrap/internal/toggle"
	"primewrap/internal/wrapper"
)

// Options adjust a Manager for one invocation.
type Options struct {
	DryRun      bool
	AllowSystem bool        // Skip the protected path check
	Lister      procs.Lister // Defaults to procs.ProcFS{}
}

// Manager serializes toggles and records their side effects.
type Manager struct {
	cfg       *config.Config
	logger    *logging.Leveled
	opts      Options
	toggler   *toggle.Toggler
	validator *safety.Validator
	selection *selection.Store
	history   *database.HistoryDB

	mu   sync.Mutex
	root string // Root of the toggle in progress, for history rows
}

// New prepares the wrapper directory and opens the history database. A
// history database that cannot be opened is logged and skipped.
func New(cfg *config.Config, logger *logging.Leveled, opts Options) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Lister == nil {
		opts.Lister = procs.ProcFS{}
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		opts:      opts,
		validator: safety.NewValidator(cfg.ProtectedPaths, cfg.WrapperDir),
		selection: selection.NewStore(cfg.SelectionFile),
	}

	t := toggle.New(cfg.WrapperDir)
	t.Env = wrapperEnv(cfg.Offload.Env)
	t.Shell = cfg.Offload.Shell
	t.DryRun = opts.DryRun
	t.Logger = logger
	t.Observer = m
	m.toggler = t

	if !cfg.History.Disabled {
		db, err := database.NewHistoryDB(cfg.DatabasePath)
		if err != nil {
			logger.Warn("History disabled, database unavailable", "path", cfg.DatabasePath, "error", err)
		} else {
			m.history = db
			m.pruneHistory()
		}
	}

	return m, nil
}

func wrapperEnv(env []config.EnvVar) []wrapper.EnvVar {
	out := make([]wrapper.EnvVar, 0, len(env))
	for _, e := range env {
		out = append(out, wrapper.EnvVar{Name: e.Name, Value: e.Value})
	}
	return out
}

func (m *Manager) pruneHistory() {
	if m.cfg.History.RetentionDays <= 0 {
		return
	}
	n, err := m.history.DeleteOldRecords(m.cfg.History.RetentionDays)
	if err != nil {
		m.logger.Warn("Failed to prune history", "error", err)
		return
	}
	if n > 0 {
		m.logger.Debug("Pruned history", "records", n, "retention_days", m.cfg.History.RetentionDays)
	}
}

// Config returns the configuration the manager was built with.
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// History returns the history database, nil when history is disabled.
func (m *Manager) History() *database.HistoryDB {
	return m.history
}

// Validate applies the safety filter to a user-supplied path.
func (m *Manager) Validate(path string) error {
	err := m.validator.ValidateToggleTarget(path)
	if errors.Is(err, safety.ErrProtectedPath) && m.opts.AllowSystem {
		m.logger.Warn("Toggling protected path", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Toggle validates path, toggles it and updates the selection file. The report
// is returned even when some directory entries failed.
func (m *Manager) Toggle(path string) (*toggle.Report, error) {
	if err := m.Validate(path); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	m.root = ""
	if abs, err := filepath.Abs(path); err == nil {
		m.root = abs
	}

	report, err := m.toggler.Toggle(path)
	if report == nil {
		m.record(database.Event{Action: database.ActionError, Path: m.root,
			Detail: wrapper.KindOf(err).String(), Error: err})
		metrics.RecordOutcome(string(toggle.ActionNone), wrapper.KindOf(err).String(), time.Since(start))
		return nil, err
	}

	metrics.RecordRun(report.Scanned, time.Since(start))

	if !m.opts.DryRun {
		m.updateSelection(report)
	}
	return report, err
}

// updateSelection mirrors the report into the selection file. A directory is
// stored as itself, not as its entries.
func (m *Manager) updateSelection(report *toggle.Report) {
	if report.IsDir {
		installed, reverted, _ := report.Counts()
		switch {
		case report.Reverted():
			m.selectionRemove(report.Root)
		case installed > 0 && reverted == 0:
			m.selectionAdd(report.Root)
		}
		return
	}

	for _, o := range report.Outcomes {
		switch {
		case o.Reverted():
			m.selectionRemove(o.Path)
		case o.Action == toggle.ActionInstall && o.Applied():
			m.selectionAdd(o.Path)
		}
	}
}

func (m *Manager) selectionAdd(p string) {
	if _, err := m.selection.Add(p); err != nil {
		m.logger.Warn("Failed to update selection file", "path", p, "error", err)
	}
	m.refreshSelectedGauge()
}

func (m *Manager) selectionRemove(p string) {
	if _, err := m.selection.Remove(p); err != nil {
		m.logger.Warn("Failed to update selection file", "path", p, "error", err)
	}
	m.refreshSelectedGauge()
}

func (m *Manager) refreshSelectedGauge() {
	if set, err := m.selection.Load(); err == nil {
		metrics.SetSelected(len(set))
	}
}

// OnOutcome implements toggle.Observer.
func (m *Manager) OnOutcome(o toggle.Outcome, elapsed time.Duration) {
	if o.DryRun {
		return
	}

	errKind := ""
	if o.Err != nil && !o.Applied() {
		errKind = wrapper.KindOf(o.Err).String()
	}
	metrics.RecordOutcome(string(o.Action), errKind, elapsed)

	e := database.Event{
		Path:        o.Path,
		BackupPath:  classify.BackupPath(o.Path),
		WrapperPath: wrapper.ScriptPath(m.cfg.WrapperDir, o.Path),
		Duration:    elapsed,
		Error:       o.Err,
	}
	if m.root != o.Path {
		e.Root = m.root
	}
	switch {
	case errKind != "":
		e.Action = database.ActionError
		e.Detail = errKind
	case o.Action == toggle.ActionRevert:
		e.Action = database.ActionRevert
	default:
		e.Action = database.ActionInstall
	}
	m.record(e)
}

func (m *Manager) record(e database.Event) {
	if m.history == nil || m.opts.DryRun {
		return
	}
	if err := m.history.RecordToggle(e); err != nil {
		m.logger.Warn("Failed to record history", "path", e.Path, "error", err)
	}
}

// Repair reconciles a half-toggled path and keeps the selection file in step.
func (m *Manager) Repair(path string) (toggle.RepairAction, error) {
	if err := m.Validate(path); err != nil {
		return toggle.RepairNone, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return toggle.RepairNone, err
	}
	abs = classify.OriginalPath(abs)

	action, err := m.toggler.Repair(abs)
	if err != nil {
		kind := wrapper.KindOf(err).String()
		metrics.RecordRepair(string(action), kind)
		m.record(database.Event{Action: database.ActionError, Path: abs, Detail: kind, Error: err})
		return action, err
	}
	if action == toggle.RepairNone || m.opts.DryRun {
		return action, nil
	}

	metrics.RecordRepair(string(action), "")
	m.record(database.Event{
		Action:      database.ActionRepair,
		Path:        abs,
		BackupPath:  classify.BackupPath(abs),
		WrapperPath: wrapper.ScriptPath(m.cfg.WrapperDir, abs),
		Detail:      string(action),
	})

	switch action {
	case toggle.RepairRelinked, toggle.RepairRegenerated:
		m.selectionAdd(abs)
	case toggle.RepairRestored, toggle.RepairRemovedOrphan:
		m.selectionRemove(abs)
	}
	return action, nil
}

// Status inspects path without changing anything.
func (m *Manager) Status(path string) (toggle.Inspection, error) {
	return m.toggler.Status(path)
}

// Selected prunes stale entries from the selection file and returns the rest.
func (m *Manager) Selected() (selection.Set, error) {
	removed, err := m.selection.Prune()
	if err != nil {
		return nil, err
	}
	for _, p := range removed {
		m.logger.Info("Dropped unwrapped entry from selection", "path", p)
	}
	set, err := m.selection.Load()
	if err != nil {
		return nil, err
	}
	metrics.SetSelected(len(set))
	return set, nil
}

// RunningExecutables lists writable, non-system executables of running
// processes, sorted.
func (m *Manager) RunningExecutables() ([]string, error) {
	set, err := procs.ExecutablePaths(m.opts.Lister, m.validator)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	return procs.Sorted(set), nil
}

// Executables lists what a directory toggle of dir would consider.
func (m *Manager) Executables(dir string) []string {
	return scan.NewScanner(m.logger).ListExecutables(dir)
}

// Close closes the history database and writes the metrics textfile if one
// is configured.
func (m *Manager) Close() error {
	var errs []error
	if m.history != nil {
		if err := m.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if m.cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(m.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
