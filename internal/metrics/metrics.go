// Package metrics exposes primewrap's Prometheus metrics. The CLI is
// short-lived, so metrics are written to a node_exporter textfile instead of
// being served.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	// Registry holds every primewrap metric. It is separate from the default
	// registry so the textfile carries no go_* or process_* series that would
	// clash with node_exporter's own.
	Registry *prometheus.Registry
)

// Init initializes all metrics and registers them with Registry
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		Registry = prometheus.NewRegistry()

		initToggleMetrics()
		registerToggleMetrics(Registry)

		// Appear in the textfile even before the first toggle
		LastRunTimestamp.Set(0)
		SelectedTargets.Set(0)
	})
}

// WriteTextfile writes all metrics in the text exposition format to path.
// The write goes through a temp file so node_exporter never reads a partial file.
func WriteTextfile(path string) error {
	Init()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
