package procs

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type fixedLister struct {
	exes []string
	err  error
}

func (f fixedLister) Executables() ([]string, error) { return f.exes, f.err }

type filterFunc func(string) bool

func (f filterFunc) IsCandidate(p string) bool { return f(p) }

func TestExecutablePaths(t *testing.T) {
	lister := fixedLister{exes: []string{
		"/home/u/game", "/usr/bin/bash", "/home/u/game", "/opt/tool",
	}}
	notUsr := filterFunc(func(p string) bool { return filepath.Dir(p) != "/usr/bin" })

	set, err := ExecutablePaths(lister, notUsr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"/home/u/game", "/opt/tool"}
	if got := Sorted(set); !reflect.DeepEqual(got, want) {
		t.Errorf("ExecutablePaths = %v, want %v", got, want)
	}
}

func TestExecutablePathsListerError(t *testing.T) {
	boom := errors.New("no procfs")
	if _, err := ExecutablePaths(fixedLister{err: boom}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected lister error, got %v", err)
	}
}

func TestExecutablePathsReportsWrappedUnderOriginalName(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app")
	if err := os.WriteFile(app+".bak", []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "wrapper"), app); err != nil {
		t.Fatal(err)
	}
	stray := filepath.Join(dir, "stray.bak")

	set, err := ExecutablePaths(fixedLister{exes: []string{app + ".bak", stray}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{app, stray}
	if got := Sorted(set); !reflect.DeepEqual(got, want) {
		t.Errorf("ExecutablePaths = %v, want %v", got, want)
	}
}

func TestProcFSIncludesSelf(t *testing.T) {
	if _, err := os.Stat("/proc/self/exe"); err != nil {
		t.Skip("procfs not available")
	}
	self, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}

	exes, err := ProcFS{}.Executables()
	if err != nil {
		t.Fatalf("Executables failed: %v", err)
	}
	for _, exe := range exes {
		if exe == self {
			return
		}
	}
	t.Errorf("own executable %s not listed among %d processes", self, len(exes))
}
