package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestDB(t *testing.T, name string) *HistoryDB {
	t.Helper()
	db, err := NewHistoryDB(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

// TestDatabaseCreation verifies database file creation in a missing directory
func TestDatabaseCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "history.db")

	db, err := NewHistoryDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	}()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file not created at %s", dbPath)
	}
}

// TestWALModeEnabled verifies that WAL mode is properly configured
func TestWALModeEnabled(t *testing.T) {
	db := openTestDB(t, "test_wal.db")

	var journalMode string
	if err := db.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	var synchronous string
	if err := db.db.QueryRow("PRAGMA synchronous").Scan(&synchronous); err != nil {
		t.Fatalf("Failed to query synchronous mode: %v", err)
	}
	// synchronous=NORMAL returns 1
	if synchronous != "1" {
		t.Errorf("Expected synchronous=1, got %s", synchronous)
	}
}

// TestSchemaCreation verifies tables and indexes
func TestSchemaCreation(t *testing.T) {
	db := openTestDB(t, "test_schema.db")

	for _, table := range []string{"toggles", "schema_version"} {
		var name string
		err := db.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not found: %v", table, err)
		}
	}

	var version int
	if err := db.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		t.Errorf("Failed to read schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected schema version 1, got %d", version)
	}

	for _, indexName := range []string{"idx_timestamp", "idx_action", "idx_path"} {
		var name string
		err := db.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", indexName).Scan(&name)
		if err != nil {
			t.Errorf("Index %s not found: %v", indexName, err)
		}
	}
}

// TestRecordToggle verifies a full event round-trips
func TestRecordToggle(t *testing.T) {
	db := openTestDB(t, "test_record.db")

	ts := time.Now().Add(-time.Minute).Truncate(time.Second)
	err := db.RecordToggle(Event{
		Timestamp:   ts,
		Action:      ActionInstall,
		Path:        "/opt/game/run",
		Root:        "/opt/game",
		BackupPath:  "/opt/game/run.bak",
		WrapperPath: "/w/wrapper__opt_game_run",
		Duration:    1500 * time.Microsecond,
	})
	if err != nil {
		t.Fatalf("Failed to record toggle: %v", err)
	}

	records, err := db.GetRecent(10)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	r := records[0]
	if r.Action != ActionInstall || r.Path != "/opt/game/run" || r.Root != "/opt/game" {
		t.Errorf("Unexpected record: %+v", r)
	}
	if r.BackupPath != "/opt/game/run.bak" || r.WrapperPath != "/w/wrapper__opt_game_run" {
		t.Errorf("Unexpected paths: %+v", r)
	}
	if r.DurationMs != 1 {
		t.Errorf("Expected duration 1ms, got %d", r.DurationMs)
	}
	if !r.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, ts)
	}
	if r.ErrorMessage != "" {
		t.Errorf("Expected empty error message, got %q", r.ErrorMessage)
	}
}

// TestNullFieldHandling verifies optional fields and error messages
func TestNullFieldHandling(t *testing.T) {
	db := openTestDB(t, "test_null.db")

	err := db.RecordToggle(Event{
		Action: ActionError,
		Path:   "/opt/broken",
		Detail: "conflict",
		Error:  errors.New("backup already exists"),
	})
	if err != nil {
		t.Fatalf("Failed to record error: %v", err)
	}
	if _, err := db.db.Exec(`INSERT INTO toggles (timestamp, action, path) VALUES (?, ?, ?)`,
		time.Now(), ActionRevert, "/opt/bare"); err != nil {
		t.Fatalf("Failed to insert bare row: %v", err)
	}

	errs, err := db.GetByAction(ActionError)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 || errs[0].ErrorMessage != "backup already exists" || errs[0].Detail != "conflict" {
		t.Errorf("Unexpected error records: %+v", errs)
	}
	if errs[0].Timestamp.IsZero() {
		t.Error("Zero timestamp should default to now")
	}

	bare, err := db.GetByPath("/opt/bare")
	if err != nil {
		t.Fatal(err)
	}
	if len(bare) != 1 || bare[0].Root != "" || bare[0].WrapperPath != "" {
		t.Errorf("Unexpected bare record: %+v", bare)
	}
}

// TestQueryMethods verifies filtering and ordering
func TestQueryMethods(t *testing.T) {
	db := openTestDB(t, "test_query.db")

	base := time.Now().Add(-time.Hour)
	events := []Event{
		{Timestamp: base, Action: ActionInstall, Path: "/opt/a"},
		{Timestamp: base.Add(time.Minute), Action: ActionInstall, Path: "/home/u/b"},
		{Timestamp: base.Add(2 * time.Minute), Action: ActionRevert, Path: "/opt/a"},
		{Timestamp: base.Add(3 * time.Minute), Action: ActionRepair, Path: "/opt/c", Detail: "relinked"},
	}
	for _, e := range events {
		if err := db.RecordToggle(e); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}

	t.Run("GetRecent", func(t *testing.T) {
		records, err := db.GetRecent(2)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 2 || records[0].Path != "/opt/c" || records[1].Action != ActionRevert {
			t.Errorf("Unexpected order: %+v", records)
		}
	})

	t.Run("GetByPath", func(t *testing.T) {
		records, err := db.GetByPath("/opt/%")
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 3 {
			t.Errorf("Expected 3 records under /opt, got %d", len(records))
		}
	})

	t.Run("GetByAction", func(t *testing.T) {
		records, err := db.GetByAction(ActionInstall)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 2 {
			t.Errorf("Expected 2 installs, got %d", len(records))
		}
	})

	t.Run("GetByDateRange", func(t *testing.T) {
		records, err := db.GetByDateRange(base.Add(30*time.Second), base.Add(150*time.Second))
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 2 {
			t.Errorf("Expected 2 records in range, got %d", len(records))
		}
	})

	t.Run("GetTopPaths", func(t *testing.T) {
		top, err := db.GetTopPaths(1)
		if err != nil {
			t.Fatal(err)
		}
		if top["/opt/a"] != 2 || len(top) != 1 {
			t.Errorf("Unexpected top paths: %v", top)
		}
	})
}

// TestHistoryStats verifies aggregated statistics
func TestHistoryStats(t *testing.T) {
	db := openTestDB(t, "test_stats.db")

	now := time.Now()
	events := []Event{
		{Timestamp: now, Action: ActionInstall, Path: "/opt/a"},
		{Timestamp: now, Action: ActionRevert, Path: "/opt/a"},
		{Timestamp: now, Action: ActionInstall, Path: "/opt/b"},
		{Timestamp: now, Action: ActionError, Path: "/opt/c", Error: errors.New("denied")},
		{Timestamp: now.AddDate(0, 0, -30), Action: ActionInstall, Path: "/opt/old"},
	}
	for _, e := range events {
		if err := db.RecordToggle(e); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := db.GetStats(7)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalInstalls != 2 || stats.TotalReverts != 1 || stats.TotalErrors != 1 || stats.TotalRepairs != 0 {
		t.Errorf("Unexpected totals: %+v", stats)
	}
	if stats.DistinctPaths != 3 {
		t.Errorf("Expected 3 distinct paths, got %d", stats.DistinctPaths)
	}
	if stats.ByAction[ActionInstall] != 2 {
		t.Errorf("ByAction = %v", stats.ByAction)
	}

	dbStats, err := db.GetDatabaseStats()
	if err != nil {
		t.Fatalf("Failed to get database stats: %v", err)
	}
	if dbStats["total_records"].(int64) != 5 {
		t.Errorf("Expected 5 records, got %v", dbStats["total_records"])
	}
	if _, ok := dbStats["oldest_record"]; !ok {
		t.Error("Expected oldest_record to be parsed")
	}
}

// TestDeleteOldRecords verifies retention pruning
func TestDeleteOldRecords(t *testing.T) {
	db := openTestDB(t, "test_retention.db")

	now := time.Now()
	for i, age := range []int{0, 10, 100, 200} {
		e := Event{Timestamp: now.AddDate(0, 0, -age), Action: ActionInstall, Path: fmt.Sprintf("/opt/%d", i)}
		if err := db.RecordToggle(e); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := db.DeleteOldRecords(90)
	if err != nil {
		t.Fatalf("Failed to delete old records: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}
	if err := db.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}

	records, err := db.GetRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 remaining, got %d", len(records))
	}
}

// TestConcurrentReadWrite verifies concurrent read and write operations
func TestConcurrentReadWrite(t *testing.T) {
	db := openTestDB(t, "test_concurrent_rw.db")

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			e := Event{Action: ActionInstall, Path: fmt.Sprintf("/opt/app%d", i)}
			if err := db.RecordToggle(e); err != nil {
				errs <- fmt.Errorf("writer error: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := db.GetRecent(10); err != nil {
					errs <- fmt.Errorf("reader %d: %v", id, err)
					return
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent read/write error: %v", err)
	}
}

// TestDatabaseErrorHandling verifies invalid locations fail loudly
func TestDatabaseErrorHandling(t *testing.T) {
	_, err := NewHistoryDB("/dev/null/invalid/path/history.db")
	if err == nil {
		t.Error("Expected error for invalid database path")
	}
}
