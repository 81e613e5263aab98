package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Toggle subsystem metrics
var (
	// TogglesTotal counts applied transitions by action (install, revert)
	TogglesTotal *prometheus.CounterVec

	// ToggleErrorsTotal counts failed transitions by error kind
	ToggleErrorsTotal *prometheus.CounterVec

	// ToggleDuration tracks how long a single-file toggle takes
	ToggleDuration prometheus.Histogram

	// RunDuration tracks a whole toggle call, including directory scans
	RunDuration prometheus.Histogram

	// RepairsTotal counts repairs by the action taken
	RepairsTotal *prometheus.CounterVec

	// ExecutablesScannedTotal counts executables found in toggled directories
	ExecutablesScannedTotal prometheus.Counter

	// SelectedTargets is the size of the selection set after the last change
	SelectedTargets prometheus.Gauge

	// LastRunTimestamp records Unix timestamp of the last toggle call
	LastRunTimestamp prometheus.Gauge
)

func initToggleMetrics() {
	TogglesTotal = NewCounterVec(
		"primewrap_toggles_total",
		"Total number of wrapper installs and reverts.",
		[]string{"action"},
	)

	ToggleErrorsTotal = NewCounterVec(
		"primewrap_toggle_errors_total",
		"Total number of failed toggles by error kind.",
		[]string{"kind"},
	)

	ToggleDuration = NewDurationHistogram(
		"primewrap_toggle_duration_seconds",
		"Duration of single-file toggles in seconds.",
		ToggleBuckets,
	)

	RunDuration = NewDurationHistogram(
		"primewrap_run_duration_seconds",
		"Duration of toggle calls in seconds, including directory scans.",
		DurationBuckets,
	)

	RepairsTotal = NewCounterVec(
		"primewrap_repairs_total",
		"Total number of repairs by action.",
		[]string{"action"},
	)

	ExecutablesScannedTotal = NewCounter(
		"primewrap_executables_scanned_total",
		"Total number of executables found while toggling directories.",
	)

	SelectedTargets = NewGauge(
		"primewrap_selected_targets",
		"Number of paths in the selection file.",
	)

	LastRunTimestamp = NewGauge(
		"primewrap_last_run_timestamp",
		"Timestamp of the last toggle call (Unix epoch seconds).",
	)
}

func registerToggleMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		TogglesTotal,
		ToggleErrorsTotal,
		ToggleDuration,
		RunDuration,
		RepairsTotal,
		ExecutablesScannedTotal,
		SelectedTargets,
		LastRunTimestamp,
	)
}

// RecordOutcome records one processed file. An empty errKind means success.
func RecordOutcome(action, errKind string, elapsed time.Duration) {
	Init()
	ToggleDuration.Observe(elapsed.Seconds())
	if errKind != "" {
		ToggleErrorsTotal.WithLabelValues(errKind).Inc()
		return
	}
	TogglesTotal.WithLabelValues(action).Inc()
}

// RecordRun records a finished toggle call over scanned executables.
func RecordRun(scanned int, elapsed time.Duration) {
	Init()
	RunDuration.Observe(elapsed.Seconds())
	ExecutablesScannedTotal.Add(float64(scanned))
	LastRunTimestamp.Set(float64(time.Now().Unix()))
}

// RecordRepair records a repair attempt. An empty errKind means success.
func RecordRepair(action, errKind string) {
	Init()
	if errKind != "" {
		ToggleErrorsTotal.WithLabelValues(errKind).Inc()
		return
	}
	RepairsTotal.WithLabelValues(action).Inc()
}

// SetSelected updates the selection size gauge.
func SetSelected(n int) {
	Init()
	SelectedTargets.Set(float64(n))
}
