// Package toggle decides, from the filesystem alone, whether a target gets a
// wrapper installed or reverted and applies that decision to files and
// directory trees.
package toggle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"primewrap/internal/classify"
	"primewrap/internal/fsops"
	"primewrap/internal/logging"
	"primewrap/internal/scan"
	"primewrap/internal/wrapper"
)

// Logger interface for structured logging
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// Observer is told about every processed target, e.g. to feed metrics and
// history without the core depending on them.
type Observer interface {
	OnOutcome(o Outcome, elapsed time.Duration)
}

// Toggler installs and reverts wrappers under WrapperDir.
// Calls are synchronous and not safe for concurrent use on the same target.
type Toggler struct {
	FS         fsops.FS
	WrapperDir string
	Env        []wrapper.EnvVar
	Shell      string
	DryRun     bool
	Logger     Logger
	Observer   Observer
}

// New creates a Toggler on the real filesystem with the default offload env
func New(wrapperDir string) *Toggler {
	return &Toggler{
		FS:         fsops.OSFS{},
		WrapperDir: filepath.Clean(wrapperDir),
		Env:        wrapper.DefaultEnv(),
		Shell:      wrapper.DefaultShell,
		Logger:     logging.Discard(),
	}
}

// Execute toggles target and reports whether a wrapper was reverted (true)
// or installed (false). For a directory the result of the last processed
// executable is reported and the errors of all entries are joined.
func Execute(wrapperDir, target string) (bool, error) {
	report, err := New(wrapperDir).Toggle(target)
	return report.Reverted(), err
}

// Toggle applies the install-or-revert decision to target. A directory is
// scanned and each executable in it is toggled in turn; a failure on one
// entry is recorded in the report and the batch continues. The returned error
// is nil only when every entry succeeded.
func (t *Toggler) Toggle(target string) (*Report, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, &wrapper.Error{Kind: wrapper.KindIO, Op: "toggle", Path: target, Err: err}
	}

	info, err := t.FS.Lstat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &wrapper.Error{Kind: wrapper.KindPathNotFound, Op: "toggle", Path: abs,
				Err: fmt.Errorf("path %s does not exist", abs)}
		}
		return nil, &wrapper.Error{Kind: wrapper.KindIO, Op: "toggle", Path: abs, Err: err}
	}

	report := &Report{Root: abs}

	dir, isDir := t.directoryRoot(abs, info)
	if !isDir {
		report.Outcomes = []Outcome{t.toggleFile(abs)}
		return report, report.Err()
	}

	report.IsDir = true
	targets, scanned := t.targetsIn(dir)
	report.Scanned = scanned
	t.Logger.Info("Toggling directory", "path", abs, "executables", scanned, "targets", len(targets))
	for _, p := range targets {
		report.Outcomes = append(report.Outcomes, t.toggleFile(p))
	}
	return report, report.Err()
}

// directoryRoot resolves a directory or a symlink to one. Symlinks into the
// wrapper directory are wrappers and never treated as directories.
func (t *Toggler) directoryRoot(abs string, info os.FileInfo) (string, bool) {
	if info.IsDir() {
		return abs, true
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return "", false
	}
	target, err := t.FS.Stat(abs)
	if err != nil || !target.IsDir() {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", false
	}
	return resolved, true
}

// targetsIn lists the executables under dir that a directory toggle acts on.
// Wrapped executables are symlinks the scanner skips, so they are reached
// through their backup file instead. A stray "*.bak" without a matching
// symlink is left alone. scanned is the scanner's raw count.
func (t *Toggler) targetsIn(dir string) (targets []string, scanned int) {
	found := scan.NewScanner(t.Logger).ListExecutables(dir)

	seen := make(map[string]bool, len(found))
	targets = make([]string, 0, len(found))
	for _, p := range found {
		if p == dir || t.inWrapperDir(p) {
			continue
		}
		if classify.IsBackup(p) {
			orig := classify.OriginalPath(p)
			if isLink, err := fsops.IsSymlink(t.FS, orig); err != nil || !isLink {
				t.Logger.Debug("Skipping backup without wrapper symlink", "path", p)
				continue
			}
			p = orig
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		targets = append(targets, p)
	}
	return targets, len(found)
}

func (t *Toggler) inWrapperDir(p string) bool {
	rel, err := filepath.Rel(t.WrapperDir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// toggleFile runs the two-state machine for a single executable.
func (t *Toggler) toggleFile(p string) Outcome {
	start := time.Now()
	p = classify.OriginalPath(p)
	out := Outcome{Path: p, Action: ActionNone, DryRun: t.DryRun}

	defer func() {
		t.logOutcome(out)
		if t.Observer != nil {
			t.Observer.OnOutcome(out, time.Since(start))
		}
	}()

	state, err := wrapper.Probe(t.FS, p)
	if err != nil {
		out.Err = err
		return out
	}
	name := classify.WrapperName(p)

	switch state {
	case wrapper.Wrapped:
		out.Action = ActionRevert
		if !t.DryRun {
			out.Err = wrapper.Revert(t.FS, p, t.WrapperDir, name)
		}
	default:
		out.Action = ActionInstall
		if err := t.checkInstallable(p); err != nil {
			out.Err = err
			return out
		}
		if !t.DryRun {
			out.Err = wrapper.Install(t.FS, p, t.WrapperDir, name, wrapper.Script(p, t.env(), t.Shell))
		}
	}
	return out
}

// checkInstallable guards against wrapping something that is not an
// executable file, including a wrapper symlink whose backup went missing.
func (t *Toggler) checkInstallable(p string) error {
	info, err := t.FS.Lstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &wrapper.Error{Kind: wrapper.KindPathNotFound, Op: "install", Path: p,
				Err: fmt.Errorf("path %s does not exist", p)}
		}
		return &wrapper.Error{Kind: wrapper.KindIO, Op: "install", Path: p, Err: err}
	}

	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		dest, err := t.FS.Readlink(p)
		if err != nil {
			return &wrapper.Error{Kind: wrapper.KindIO, Op: "install", Path: p, Err: err}
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(p), dest)
		}
		if t.inWrapperDir(dest) {
			return &wrapper.Error{Kind: wrapper.KindConflict, Op: "install", Path: p,
				Err: fmt.Errorf("%s already links into the wrapper directory but has no backup", p)}
		}
	case !mode.IsRegular():
		return &wrapper.Error{Kind: wrapper.KindConflict, Op: "install", Path: p,
			Err: fmt.Errorf("%s is not a regular file", p)}
	}
	return nil
}

func (t *Toggler) env() []wrapper.EnvVar {
	if t.Env == nil {
		return wrapper.DefaultEnv()
	}
	return t.Env
}

func (t *Toggler) logOutcome(o Outcome) {
	switch {
	case o.DryRun:
		t.Logger.Info("[DRY RUN] Would toggle", "path", o.Path, "action", o.Action, "error", o.Err)
	case o.Err != nil && o.Applied():
		t.Logger.Warn("Toggled with leftovers", "path", o.Path, "action", o.Action, "error", o.Err)
	case o.Err != nil:
		t.Logger.Error("Failed to toggle", "path", o.Path, "action", o.Action, "error", o.Err)
	case o.Action == ActionRevert:
		t.Logger.Info("Reverted wrapper, original executable restored", "path", o.Path)
	default:
		t.Logger.Info("Installed wrapper, executable now uses the discrete GPU", "path", o.Path)
	}
}
