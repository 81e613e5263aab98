package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Actions recorded in the toggles table
const (
	ActionInstall = "INSTALL"
	ActionRevert  = "REVERT"
	ActionRepair  = "REPAIR"
	ActionError   = "ERROR"
)

// HistoryDB manages the SQLite database for toggle history
type HistoryDB struct {
	db *sql.DB
}

// Event is one toggle, revert or repair to be recorded
type Event struct {
	Timestamp   time.Time
	Action      string
	Path        string
	Root        string // Directory the toggle was started on, empty for single files
	BackupPath  string
	WrapperPath string
	Detail      string // Repair action or error kind
	Duration    time.Duration
	Error       error
}

// ToggleRecord represents a single stored event
type ToggleRecord struct {
	ID           int64
	Timestamp    time.Time
	Action       string
	Path         string
	Root         string
	BackupPath   string
	WrapperPath  string
	Detail       string
	DurationMs   int64
	ErrorMessage string
	CreatedAt    time.Time
}

// NewHistoryDB creates a new database connection and initializes schema
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// file: prefix with _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Ping does not create the file; a real statement does
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	// The TUI and a CLI run may write at the same time
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	hdb := &HistoryDB{db: db}
	if err = hdb.initSchema(); err != nil {
		return nil, err
	}

	return hdb, nil
}

// initSchema creates tables and indexes if they don't exist
func (h *HistoryDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS toggles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		path TEXT NOT NULL,
		root TEXT,
		backup_path TEXT,
		wrapper_path TEXT,
		detail TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,

		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_timestamp ON toggles(timestamp);
	CREATE INDEX IF NOT EXISTS idx_action ON toggles(action);
	CREATE INDEX IF NOT EXISTS idx_path ON toggles(path);

	-- Metadata table for schema versioning
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := h.db.Exec(schema)
	return err
}

// RecordToggle inserts an event into the database
func (h *HistoryDB) RecordToggle(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	var errMsg sql.NullString
	if e.Error != nil {
		errMsg = sql.NullString{String: e.Error.Error(), Valid: true}
	}

	_, err := h.db.Exec(`
	INSERT INTO toggles (
		timestamp, action, path, root, backup_path, wrapper_path,
		detail, duration_ms, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Timestamp,
		e.Action,
		e.Path,
		e.Root,
		e.BackupPath,
		e.WrapperPath,
		e.Detail,
		e.Duration.Milliseconds(),
		errMsg,
	)
	return err
}

// Close closes the database connection
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Vacuum optimizes the database (run after pruning)
func (h *HistoryDB) Vacuum() error {
	_, err := h.db.Exec("VACUUM")
	return err
}

// GetDatabaseStats returns database statistics
func (h *HistoryDB) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalRecords int64
	if err := h.db.QueryRow("SELECT COUNT(*) FROM toggles").Scan(&totalRecords); err != nil {
		return nil, err
	}
	stats["total_records"] = totalRecords

	var pageCount, pageSize int64
	if err := h.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := h.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	stats["database_size_bytes"] = pageCount * pageSize

	// Aggregates come back as text, not DATETIME
	var oldest, newest sql.NullString
	err := h.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM toggles").Scan(&oldest, &newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if t, ok := parseTimestamp(oldest); ok {
		stats["oldest_record"] = t
	}
	if t, ok := parseTimestamp(newest); ok {
		stats["newest_record"] = t
	}

	return stats, nil
}

// timestampLayouts are the forms SQLite hands back for stored time.Time values
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s sql.NullString) (time.Time, bool) {
	if !s.Valid || s.String == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
