package database

import (
	"database/sql"
	"time"
)

const selectToggles = `
	SELECT id, timestamp, action, path, root, backup_path, wrapper_path,
	       detail, duration_ms, error_message, created_at
	FROM toggles
`

// GetRecent returns the N most recent events
func (h *HistoryDB) GetRecent(limit int) ([]ToggleRecord, error) {
	return h.queryToggles(selectToggles+`
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, limit)
}

// GetByDateRange returns events within a time range
func (h *HistoryDB) GetByDateRange(start, end time.Time) ([]ToggleRecord, error) {
	return h.queryToggles(selectToggles+`
	WHERE timestamp BETWEEN ? AND ?
	ORDER BY timestamp DESC, id DESC
	`, start, end)
}

// GetByPath returns events whose path matches a LIKE pattern
func (h *HistoryDB) GetByPath(pathPattern string) ([]ToggleRecord, error) {
	return h.queryToggles(selectToggles+`
	WHERE path LIKE ?
	ORDER BY timestamp DESC, id DESC
	`, pathPattern)
}

// GetByAction returns events filtered by action type
func (h *HistoryDB) GetByAction(action string) ([]ToggleRecord, error) {
	return h.queryToggles(selectToggles+`
	WHERE action = ?
	ORDER BY timestamp DESC, id DESC
	`, action)
}

// GetCountByAction returns count of events grouped by action
func (h *HistoryDB) GetCountByAction(since time.Time) (map[string]int, error) {
	rows, err := h.db.Query(`
	SELECT action, COUNT(*)
	FROM toggles
	WHERE timestamp >= ?
	GROUP BY action
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[action] = count
	}

	return counts, rows.Err()
}

// HistoryStats holds aggregated statistics
type HistoryStats struct {
	TotalInstalls int
	TotalReverts  int
	TotalRepairs  int
	TotalErrors   int
	DistinctPaths int
	ByAction      map[string]int
	StartDate     time.Time
	EndDate       time.Time
}

// GetStats returns statistics for the last days days
func (h *HistoryDB) GetStats(days int) (*HistoryStats, error) {
	now := time.Now()
	since := now.AddDate(0, 0, -days)

	stats := &HistoryStats{
		StartDate: since,
		EndDate:   now,
	}

	err := h.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN action = 'INSTALL' THEN 1 END),
			COUNT(CASE WHEN action = 'REVERT' THEN 1 END),
			COUNT(CASE WHEN action = 'REPAIR' THEN 1 END),
			COUNT(CASE WHEN action = 'ERROR' THEN 1 END),
			COUNT(DISTINCT path)
		FROM toggles
		WHERE timestamp >= ?
	`, since).Scan(&stats.TotalInstalls, &stats.TotalReverts, &stats.TotalRepairs,
		&stats.TotalErrors, &stats.DistinctPaths)
	if err != nil {
		return nil, err
	}

	stats.ByAction, err = h.GetCountByAction(since)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// GetTopPaths returns the paths toggled most often
func (h *HistoryDB) GetTopPaths(limit int) (map[string]int, error) {
	rows, err := h.db.Query(`
	SELECT path, COUNT(*) as count
	FROM toggles
	WHERE action IN ('INSTALL', 'REVERT')
	GROUP BY path
	ORDER BY count DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var path string
		var count int
		if err := rows.Scan(&path, &count); err != nil {
			return nil, err
		}
		counts[path] = count
	}

	return counts, rows.Err()
}

// DeleteOldRecords removes records older than specified days
func (h *HistoryDB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	result, err := h.db.Exec(`DELETE FROM toggles WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// queryToggles is a helper function to execute queries and scan results
func (h *HistoryDB) queryToggles(query string, args ...interface{}) ([]ToggleRecord, error) {
	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ToggleRecord
	for rows.Next() {
		var r ToggleRecord
		var root, backup, wrapper, detail, errMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Action, &r.Path, &root, &backup,
			&wrapper, &detail, &r.DurationMs, &errMsg, &r.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		r.Root = root.String
		r.BackupPath = backup.String
		r.WrapperPath = wrapper.String
		r.Detail = detail.String
		r.ErrorMessage = errMsg.String

		records = append(records, r)
	}

	return records, rows.Err()
}
