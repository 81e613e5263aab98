package toggle

import (
	"fmt"
	"os"
	"path/filepath"

	"primewrap/internal/classify"
	"primewrap/internal/fsops"
	"primewrap/internal/wrapper"
)

// Inspection is a read-only snapshot of the files that make up one toggle.
type Inspection struct {
	Path         string
	BackupPath   string
	ScriptPath   string
	State        wrapper.State
	TargetExists bool
	TargetIsLink bool
	LinkToScript bool // target is a symlink resolving to ScriptPath
	ScriptExists bool
}

// Consistent reports whether the files agree with State.
func (i Inspection) Consistent() bool {
	if i.State == wrapper.Wrapped {
		return i.TargetIsLink && i.LinkToScript && i.ScriptExists
	}
	return i.TargetExists && !i.LinkToScript && !i.ScriptExists
}

// Problem describes the inconsistency, empty when there is none.
func (i Inspection) Problem() string {
	if i.Consistent() {
		return ""
	}
	if i.State == wrapper.Wrapped {
		switch {
		case !i.TargetExists:
			return "backup present but target missing"
		case !i.TargetIsLink:
			return "backup present but target is not a symlink"
		case !i.LinkToScript:
			return "target links outside the wrapper directory"
		default:
			return "wrapper script missing"
		}
	}
	switch {
	case i.LinkToScript:
		return "target links to a wrapper but the backup is gone"
	case !i.TargetExists:
		return "target missing"
	default:
		return "orphan wrapper script"
	}
}

// RepairAction names what Repair did (or would do in dry-run mode).
type RepairAction string

const (
	RepairNone          RepairAction = "none"
	RepairRelinked      RepairAction = "relinked"
	RepairRestored      RepairAction = "restored_backup"
	RepairRegenerated   RepairAction = "regenerated_script"
	RepairRemovedOrphan RepairAction = "removed_orphan_script"
)

// Status inspects target without changing anything.
func (t *Toggler) Status(target string) (Inspection, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return Inspection{}, &wrapper.Error{Kind: wrapper.KindIO, Op: "status", Path: target, Err: err}
	}
	abs = classify.OriginalPath(abs)

	insp := Inspection{
		Path:       abs,
		BackupPath: classify.BackupPath(abs),
		ScriptPath: wrapper.ScriptPath(t.WrapperDir, abs),
	}

	if insp.State, err = wrapper.Probe(t.FS, abs); err != nil {
		return insp, err
	}

	info, err := t.FS.Lstat(abs)
	switch {
	case err == nil:
		insp.TargetExists = true
		insp.TargetIsLink = info.Mode()&os.ModeSymlink != 0
	case !os.IsNotExist(err):
		return insp, &wrapper.Error{Kind: wrapper.KindIO, Op: "status", Path: abs, Err: err}
	}

	if insp.TargetIsLink {
		dest, err := t.FS.Readlink(abs)
		if err != nil {
			return insp, &wrapper.Error{Kind: wrapper.KindIO, Op: "status", Path: abs, Err: err}
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(abs), dest)
		}
		insp.LinkToScript = filepath.Clean(dest) == insp.ScriptPath
	}

	if insp.ScriptExists, err = fsops.Exists(t.FS, insp.ScriptPath); err != nil {
		return insp, &wrapper.Error{Kind: wrapper.KindIO, Op: "status", Path: insp.ScriptPath, Err: err}
	}
	return insp, nil
}

// Repair brings a half-toggled target back to one of the two valid states,
// preferring whichever state the backup marker says it is in.
func (t *Toggler) Repair(target string) (RepairAction, error) {
	insp, err := t.Status(target)
	if err != nil {
		return RepairNone, err
	}
	if insp.Consistent() {
		return RepairNone, nil
	}

	action, fix, err := t.planRepair(insp)
	if err != nil {
		t.Logger.Error("Cannot repair", "path", insp.Path, "problem", insp.Problem(), "error", err)
		return RepairNone, err
	}
	if t.DryRun {
		t.Logger.Info("[DRY RUN] Would repair", "path", insp.Path, "problem", insp.Problem(), "action", action)
		return action, nil
	}
	if err := fix(); err != nil {
		t.Logger.Error("Repair failed", "path", insp.Path, "action", action, "error", err)
		return RepairNone, wrapper.Wrap("repair "+string(action), insp.Path, err)
	}
	t.Logger.Info("Repaired", "path", insp.Path, "problem", insp.Problem(), "action", action)
	return action, nil
}

func (t *Toggler) planRepair(insp Inspection) (RepairAction, func() error, error) {
	conflict := func(format string, args ...interface{}) error {
		return &wrapper.Error{Kind: wrapper.KindConflict, Op: "repair", Path: insp.Path, Err: fmt.Errorf(format, args...)}
	}

	if insp.State == wrapper.Wrapped {
		switch {
		case !insp.TargetExists && insp.ScriptExists:
			return RepairRelinked, func() error { return t.FS.Symlink(insp.ScriptPath, insp.Path) }, nil
		case !insp.TargetExists:
			return RepairRestored, func() error { return t.FS.Rename(insp.BackupPath, insp.Path) }, nil
		case insp.LinkToScript && !insp.ScriptExists:
			return RepairRegenerated, func() error {
				if err := t.FS.WriteFile(insp.ScriptPath, wrapper.Script(insp.Path, t.env(), t.Shell), wrapper.ScriptMode); err != nil {
					return err
				}
				return t.FS.Chmod(insp.ScriptPath, wrapper.ScriptMode)
			}, nil
		case !insp.TargetIsLink:
			return RepairNone, nil, conflict("both %s and %s are files; remove one by hand", insp.Path, insp.BackupPath)
		default:
			return RepairNone, nil, conflict("%s links outside %s", insp.Path, t.WrapperDir)
		}
	}

	switch {
	case insp.LinkToScript:
		return RepairNone, nil, conflict("backup %s is missing, the original executable cannot be recovered", insp.BackupPath)
	case !insp.TargetExists:
		return RepairNone, nil, &wrapper.Error{Kind: wrapper.KindPathNotFound, Op: "repair", Path: insp.Path,
			Err: fmt.Errorf("path %s does not exist", insp.Path)}
	default:
		return RepairRemovedOrphan, func() error { return t.FS.Remove(insp.ScriptPath) }, nil
	}
}
