package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// counterValue reads a counter from Registry, matching one label pair or none.
func counterValue(t *testing.T, name, label, value string) float64 {
	t.Helper()
	mfs, err := Registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// TestMetricsInit verifies that Init() is idempotent and registers metrics
func TestMetricsInit(t *testing.T) {
	Init()
	reg := Registry
	Init()
	Init()

	if Registry != reg {
		t.Fatal("Init should not replace the registry")
	}
	if TogglesTotal == nil || ToggleDuration == nil || SelectedTargets == nil {
		t.Fatal("metrics should be initialized")
	}

	mfs, err := Registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	found := make(map[string]bool)
	for _, mf := range mfs {
		found[mf.GetName()] = true
		if strings.HasPrefix(mf.GetName(), "go_") || strings.HasPrefix(mf.GetName(), "process_") {
			t.Errorf("runtime metric %s should not be registered", mf.GetName())
		}
	}

	// Vectors only show up once a label set exists
	for _, expected := range []string{
		"primewrap_toggle_duration_seconds",
		"primewrap_run_duration_seconds",
		"primewrap_executables_scanned_total",
		"primewrap_selected_targets",
		"primewrap_last_run_timestamp",
	} {
		if !found[expected] {
			t.Errorf("Expected metric %s not found in registry", expected)
		}
	}
}

// TestStandardBuckets verifies that bucket definitions are increasing
func TestStandardBuckets(t *testing.T) {
	for name, buckets := range map[string][]float64{
		"ToggleBuckets":   ToggleBuckets,
		"DurationBuckets": DurationBuckets,
	} {
		for i := 1; i < len(buckets); i++ {
			if buckets[i] <= buckets[i-1] {
				t.Errorf("%s not increasing at %d: %v", name, i, buckets)
			}
		}
	}
}

func TestRecordOutcome(t *testing.T) {
	Init()
	installs := counterValue(t, "primewrap_toggles_total", "action", "install")
	conflicts := counterValue(t, "primewrap_toggle_errors_total", "kind", "conflict")

	RecordOutcome("install", "", 2*time.Millisecond)
	RecordOutcome("install", "", 3*time.Millisecond)
	RecordOutcome("install", "conflict", time.Millisecond)

	if got := counterValue(t, "primewrap_toggles_total", "action", "install"); got != installs+2 {
		t.Errorf("install count = %v, want %v", got, installs+2)
	}
	if got := counterValue(t, "primewrap_toggle_errors_total", "kind", "conflict"); got != conflicts+1 {
		t.Errorf("conflict count = %v, want %v", got, conflicts+1)
	}
}

func TestRecordRunAndRepair(t *testing.T) {
	Init()
	scanned := counterValue(t, "primewrap_executables_scanned_total", "", "")
	relinks := counterValue(t, "primewrap_repairs_total", "action", "relinked")

	RecordRun(7, time.Second)
	RecordRepair("relinked", "")
	SetSelected(4)

	if got := counterValue(t, "primewrap_executables_scanned_total", "", ""); got != scanned+7 {
		t.Errorf("scanned = %v, want %v", got, scanned+7)
	}
	if got := counterValue(t, "primewrap_repairs_total", "action", "relinked"); got != relinks+1 {
		t.Errorf("repairs = %v, want %v", got, relinks+1)
	}
}

func TestWriteTextfile(t *testing.T) {
	RecordOutcome("revert", "", time.Millisecond)
	SetSelected(2)

	path := filepath.Join(t.TempDir(), "textfile", "primewrap.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		`primewrap_toggles_total{action="revert"}`,
		"primewrap_selected_targets 2",
		"# TYPE primewrap_toggle_duration_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*"))
	if len(matches) != 1 {
		t.Errorf("temp files left behind: %v", matches)
	}
}
