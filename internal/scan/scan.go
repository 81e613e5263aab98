package scan

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Logger interface for structured logging
type Logger interface {
	Warn(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

// ExecBits are the owner, group and other execute permission bits
const ExecBits fs.FileMode = 0o111

// Scanner walks directory trees looking for executables
type Scanner struct {
	logger Logger
}

// NewScanner creates a new Scanner with the given logger
func NewScanner(logger Logger) *Scanner {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Scanner{logger: logger}
}

// ListExecutables is ListExecutables on a Scanner without logging
func ListExecutables(root string) []string {
	return NewScanner(nil).ListExecutables(root)
}

// IsExecutable reports whether mode describes a regular file with at least
// one execute bit set
func IsExecutable(mode fs.FileMode) bool {
	return mode.IsRegular() && mode.Perm()&ExecBits != 0
}

// ListExecutables returns every regular file under root that has an execute
// bit set. Symlinks are not followed and never returned. Entries that cannot
// be read are skipped, so the result may be partial on a live filesystem.
// The order is the walk order and callers must not rely on it.
func (s *Scanner) ListExecutables(root string) []string {
	var found []string

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				s.logger.Warn("Permission denied", "path", path)
			} else {
				s.logger.Warn("Skipping unreadable entry", "path", path, "error", err)
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Raced with a delete or rename
			s.logger.Debug("Entry vanished during scan", "path", path, "error", err)
			return nil
		}
		if IsExecutable(info.Mode()) {
			found = append(found, path)
		}
		return nil
	})

	s.logger.Debug("Scan complete", "root", root, "executables", len(found))
	return found
}
