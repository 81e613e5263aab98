package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"primewrap/internal/config"
)

// NewWithWriter creates a logger that writes to console and to the rotated
// log file under cfg.Logging.Dir. The TUI passes io.Discard so log lines do
// not tear the screen.
func NewWithWriter(cfg *config.Config, console io.Writer) *log.Logger {
	if cfg == nil {
		return log.New(console, "", log.LstdFlags)
	}

	if err := os.MkdirAll(cfg.Logging.Dir, 0o755); err != nil {
		log.Printf("failed to ensure log directory %s: %v", cfg.Logging.Dir, err)
		return log.New(console, "", log.LstdFlags)
	}

	filePath := cfg.LogFile()
	rotateLogsIfNeeded(filePath, cfg.Logging.RotationDays)

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("failed to open log file %s: %v", filePath, err)
		return log.New(console, "", log.LstdFlags)
	}

	mw := io.MultiWriter(console, f)
	return log.New(mw, "", log.LstdFlags|log.Lmicroseconds)
}

// Leveled adapts a standard logger to the Info/Warn/Error/Debug key-value
// style used across the internal packages
type Leveled struct {
	Logger  *log.Logger
	Verbose bool // Emit Debug lines
}

// NewLeveled wraps logger. A nil logger falls back to log.Default().
func NewLeveled(logger *log.Logger, verbose bool) *Leveled {
	if logger == nil {
		logger = log.Default()
	}
	return &Leveled{Logger: logger, Verbose: verbose}
}

// Discard returns a Leveled logger that drops everything
func Discard() *Leveled {
	return &Leveled{Logger: log.New(io.Discard, "", 0)}
}

func (l *Leveled) Info(msg string, args ...interface{}) {
	l.logWithLevel("INFO", msg, args...)
}

func (l *Leveled) Warn(msg string, args ...interface{}) {
	l.logWithLevel("WARN", msg, args...)
}

func (l *Leveled) Error(msg string, args ...interface{}) {
	l.logWithLevel("ERROR", msg, args...)
}

func (l *Leveled) Debug(msg string, args ...interface{}) {
	if !l.Verbose {
		return
	}
	l.logWithLevel("DEBUG", msg, args...)
}

func (l *Leveled) logWithLevel(level, msg string, args ...interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	l.Logger.Println(b.String())
}

// rotateLogsIfNeeded rotates log files older than the specified days
func rotateLogsIfNeeded(logPath string, rotationDays int) {
	info, err := os.Stat(logPath)
	if err != nil {
		// Log file doesn't exist yet, nothing to rotate
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -rotationDays)
	if info.ModTime().Before(cutoffTime) {
		timestamp := info.ModTime().Format("20060102-150405")
		rotatedPath := logPath + "." + timestamp

		if err := os.Rename(logPath, rotatedPath); err != nil {
			log.Printf("failed to rotate log file: %v", err)
			return
		}

		cleanupOldLogs(logPath, rotationDays)
	}
}

// cleanupOldLogs removes rotated log files older than rotation days
func cleanupOldLogs(logPath string, rotationDays int) {
	logDir := filepath.Dir(logPath)
	baseName := filepath.Base(logPath)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -rotationDays)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, baseName+".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			fullPath := filepath.Join(logDir, name)
			if err := os.Remove(fullPath); err != nil {
				log.Printf("failed to remove old log file %s: %v", fullPath, err)
			}
		}
	}
}
