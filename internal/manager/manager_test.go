package manager

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"primewrap/internal/config"
	"primewrap/internal/database"
	"primewrap/internal/metrics"
	"primewrap/internal/safety"
	"primewrap/internal/toggle"
	"primewrap/internal/wrapper"
)

type fixedLister []string

func (f fixedLister) Executables() ([]string, error) { return f, nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.WrapperDir = filepath.Join(base, "data", "wrappers")
	cfg.SelectionFile = filepath.Join(base, "data", "config.txt")
	cfg.DatabasePath = filepath.Join(base, "state", "history.db")
	cfg.Logging.Dir = filepath.Join(base, "state", "log")
	cfg.Metrics.Textfile = filepath.Join(base, "metrics", "primewrap.prom")
	return cfg
}

func newManager(t *testing.T, cfg *config.Config, opts Options) *Manager {
	t.Helper()
	m, err := New(cfg, nil, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func writeExec(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func actions(t *testing.T, db *database.HistoryDB) []string {
	t.Helper()
	records, err := db.GetRecent(100)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	out := make([]string, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i].Action)
	}
	return out
}

func TestToggleTracksSelectionAndHistory(t *testing.T) {
	m := newManager(t, testConfig(t), Options{})
	app := filepath.Join(t.TempDir(), "app")
	writeExec(t, app)

	report, err := m.Toggle(app)
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if report.Reverted() {
		t.Fatal("first toggle should install")
	}
	set, err := m.Selected()
	if err != nil {
		t.Fatal(err)
	}
	if !set.Has(app) {
		t.Errorf("selection should contain %s, got %v", app, set.Sorted())
	}

	report, err = m.Toggle(app)
	if err != nil || !report.Reverted() {
		t.Fatalf("revert failed: %v", err)
	}
	set, err = m.Selected()
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 0 {
		t.Errorf("selection should be empty, got %v", set.Sorted())
	}

	want := []string{database.ActionInstall, database.ActionRevert}
	if got := actions(t, m.History()); !reflect.DeepEqual(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func TestToggleDirectoryStoresRoot(t *testing.T) {
	m := newManager(t, testConfig(t), Options{})
	dir := t.TempDir()
	writeExec(t, filepath.Join(dir, "a"))
	writeExec(t, filepath.Join(dir, "bin", "b"))

	report, err := m.Toggle(dir)
	if err != nil {
		t.Fatalf("directory toggle failed: %v", err)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %+v", report.Outcomes)
	}

	set, err := m.Selected()
	if err != nil {
		t.Fatal(err)
	}
	if got := set.Sorted(); !reflect.DeepEqual(got, []string{dir}) {
		t.Errorf("selection = %v, want only the directory", got)
	}

	records, err := m.History().GetByAction(database.ActionInstall)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if r.Root != dir {
			t.Errorf("record %s root = %q, want %q", r.Path, r.Root, dir)
		}
	}

	if _, err := m.Toggle(dir); err != nil {
		t.Fatalf("directory revert failed: %v", err)
	}
	if set, _ = m.Selected(); len(set) != 0 {
		t.Errorf("selection should be empty after revert, got %v", set.Sorted())
	}
}

func scannedTotal(t *testing.T) float64 {
	t.Helper()
	metrics.Init()
	mfs, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "primewrap_executables_scanned_total" && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestToggleDirectoryCountsScannedExecutables(t *testing.T) {
	m := newManager(t, testConfig(t), Options{})
	dir := t.TempDir()
	writeExec(t, filepath.Join(dir, "a"))
	writeExec(t, filepath.Join(dir, "old.bak"))

	before := scannedTotal(t)
	report, err := m.Toggle(dir)
	if err != nil {
		t.Fatalf("directory toggle failed: %v", err)
	}
	if len(report.Outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %+v", report.Outcomes)
	}
	if got := scannedTotal(t) - before; got != 2 {
		t.Errorf("scanned delta = %v, want 2", got)
	}
}

func TestToggleRefusesProtectedPath(t *testing.T) {
	m := newManager(t, testConfig(t), Options{})

	_, err := m.Toggle("/usr/bin/env")
	if !errors.Is(err, safety.ErrProtectedPath) {
		t.Fatalf("expected ErrProtectedPath, got %v", err)
	}
}

func TestToggleRefusesWrapperDir(t *testing.T) {
	cfg := testConfig(t)
	m := newManager(t, cfg, Options{AllowSystem: true})

	_, err := m.Toggle(cfg.WrapperDir)
	if !errors.Is(err, safety.ErrWrapperDir) {
		t.Fatalf("expected ErrWrapperDir, got %v", err)
	}
}

func TestToggleRecordsRootFailure(t *testing.T) {
	m := newManager(t, testConfig(t), Options{})
	missing := filepath.Join(t.TempDir(), "missing")

	_, err := m.Toggle(missing)
	if !errors.Is(err, wrapper.ErrPathNotFound) {
		t.Fatalf("expected ErrPathNotFound, got %v", err)
	}

	records, err := m.History().GetByAction(database.ActionError)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Detail != "path_not_found" || records[0].Path != missing {
		t.Errorf("unexpected error records: %+v", records)
	}
}

func TestDryRunLeavesNoTrace(t *testing.T) {
	cfg := testConfig(t)
	m := newManager(t, cfg, Options{DryRun: true})
	app := filepath.Join(t.TempDir(), "app")
	writeExec(t, app)

	report, err := m.Toggle(app)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if report.Outcomes[0].Action != toggle.ActionInstall {
		t.Errorf("unexpected outcome %+v", report.Outcomes[0])
	}
	if info, err := os.Lstat(app); err != nil || !info.Mode().IsRegular() {
		t.Errorf("dry run modified %s", app)
	}
	if _, err := os.Stat(cfg.SelectionFile); !os.IsNotExist(err) {
		t.Errorf("dry run wrote the selection file: %v", err)
	}
	if got := actions(t, m.History()); len(got) != 0 {
		t.Errorf("dry run recorded history: %v", got)
	}
}

func TestRepairRecordsHistory(t *testing.T) {
	m := newManager(t, testConfig(t), Options{})
	app := filepath.Join(t.TempDir(), "app")
	writeExec(t, app)

	if _, err := m.Toggle(app); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(app); err != nil {
		t.Fatal(err)
	}

	action, err := m.Repair(app)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if action != toggle.RepairRelinked {
		t.Errorf("action = %s, want relinked", action)
	}

	records, err := m.History().GetByAction(database.ActionRepair)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Detail != string(toggle.RepairRelinked) {
		t.Errorf("unexpected repair records: %+v", records)
	}

	insp, err := m.Status(app)
	if err != nil {
		t.Fatal(err)
	}
	if !insp.Consistent() || insp.State != wrapper.Wrapped {
		t.Errorf("unexpected status after repair: %+v", insp)
	}
}

func TestRunningExecutables(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "game")
	writeExec(t, app)

	m := newManager(t, testConfig(t), Options{
		Lister: fixedLister{app, "/usr/bin/bash", filepath.Join(dir, "gone"), app},
	})

	got, err := m.RunningExecutables()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{app}; !reflect.DeepEqual(got, want) {
		t.Errorf("RunningExecutables = %v, want %v", got, want)
	}
}

func TestHistoryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Disabled = true
	m := newManager(t, cfg, Options{})

	if m.History() != nil {
		t.Fatal("history should be disabled")
	}
	app := filepath.Join(t.TempDir(), "app")
	writeExec(t, app)
	if _, err := m.Toggle(app); err != nil {
		t.Fatalf("toggle without history failed: %v", err)
	}
	if _, err := os.Stat(cfg.DatabasePath); !os.IsNotExist(err) {
		t.Errorf("database should not be created: %v", err)
	}
}

func TestCloseWritesMetricsTextfile(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	app := filepath.Join(t.TempDir(), "app")
	writeExec(t, app)
	if _, err := m.Toggle(app); err != nil {
		t.Fatal(err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := os.ReadFile(cfg.Metrics.Textfile)
	if err != nil {
		t.Fatalf("textfile not written: %v", err)
	}
	if !strings.Contains(string(data), `primewrap_toggles_total{action="install"}`) {
		t.Errorf("textfile missing install counter:\n%s", data)
	}
}
