// Package wrapper installs and reverts offload wrappers around a single
// executable. The presence of the backup file is the only state: it exists
// exactly while a wrapper is installed.
package wrapper

import (
	"fmt"
	"os"
	"path/filepath"

	"primewrap/internal/classify"
	"primewrap/internal/fsops"
)

// ScriptMode is applied to every generated wrapper script
const ScriptMode os.FileMode = 0o755

// State is the wrapped-ness of a target derived from one existence probe.
type State int

const (
	Unwrapped State = iota
	Wrapped
)

func (s State) String() string {
	if s == Wrapped {
		return "wrapped"
	}
	return "unwrapped"
}

// Probe reports Wrapped when the backup of target exists.
func Probe(fsys fsops.FS, target string) (State, error) {
	backup := classify.BackupPath(target)
	ok, err := fsops.Exists(fsys, backup)
	if err != nil {
		return Unwrapped, newError("probe backup", backup, err)
	}
	if ok {
		return Wrapped, nil
	}
	return Unwrapped, nil
}

// ScriptPath returns where the wrapper for the original path target lives.
func ScriptPath(wrapperDir, target string) string {
	return filepath.Join(wrapperDir, classify.WrapperName(classify.OriginalPath(target)))
}

// Install moves target to its backup path and puts a symlink to a freshly
// written wrapper script in its place.
//
// If the rename or symlink step fails, completed steps are undone so target
// is left as it was found.
func Install(fsys fsops.FS, target, wrapperDir, name string, script []byte) error {
	scriptPath := filepath.Join(wrapperDir, name)
	backup := classify.BackupPath(target)

	exists, err := fsops.Exists(fsys, backup)
	if err != nil {
		return newError("probe backup", backup, err)
	}
	if exists {
		return &Error{Kind: KindConflict, Op: "install", Path: target,
			Err: fmt.Errorf("backup %s already exists", backup)}
	}

	removeScript := func() error { return fsys.Remove(scriptPath) }

	if err := fsys.WriteFile(scriptPath, script, ScriptMode); err != nil {
		return newError("write wrapper", scriptPath, err)
	}
	if err := fsys.Chmod(scriptPath, ScriptMode); err != nil {
		return compensate(newError("chmod wrapper", scriptPath, err), removeScript)
	}
	if err := fsys.Rename(target, backup); err != nil {
		return compensate(newError("rename to backup", target, err), removeScript)
	}
	if err := fsys.Symlink(scriptPath, target); err != nil {
		return compensate(newError("link wrapper", target, err),
			func() error { return fsys.Rename(backup, target) },
			removeScript,
		)
	}
	return nil
}

// Revert removes the symlink at target, moves the backup back into place and
// deletes the wrapper script.
//
// Without a backup nothing is touched and ErrNoBackupFound is returned. A
// missing target is only accepted while the wrapper script still exists,
// otherwise the backup is left alone with ErrConflict. A failure to delete the script is reported with ErrWrapperLeftBehind while
// the executable itself is already restored.
func Revert(fsys fsops.FS, target, wrapperDir, name string) error {
	target = classify.OriginalPath(target)
	backup := classify.BackupPath(target)
	scriptPath := filepath.Join(wrapperDir, name)

	exists, err := fsops.Exists(fsys, backup)
	if err != nil {
		return newError("probe backup", backup, err)
	}
	if !exists {
		return &Error{Kind: KindNoBackupFound, Op: "revert", Path: target,
			Err: fmt.Errorf("no backup at %s, cannot revert", backup)}
	}

	linked := false
	info, err := fsys.Lstat(target)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink == 0:
		// Something replaced our symlink, most likely a self-update. Removing
		// it would destroy the new binary.
		return &Error{Kind: KindConflict, Op: "revert", Path: target,
			Err: fmt.Errorf("%s is not a symlink while backup %s exists", target, backup)}
	case err == nil:
		linked = true
	case !os.IsNotExist(err):
		return newError("inspect target", target, err)
	default:
		// Target gone. Without our script nothing shows this backup was ever
		// wrapped; it may just be a user file with a .bak suffix.
		hasScript, err := fsops.Exists(fsys, scriptPath)
		if err != nil {
			return newError("probe wrapper", scriptPath, err)
		}
		if !hasScript {
			return &Error{Kind: KindConflict, Op: "revert", Path: target,
				Err: fmt.Errorf("%s is missing and no wrapper script exists for backup %s", target, backup)}
		}
	}

	if linked {
		if err := fsys.Remove(target); err != nil {
			return newError("remove symlink", target, err)
		}
	}

	if err := fsys.Rename(backup, target); err != nil {
		primary := newError("restore backup", backup, err)
		if !linked {
			return primary
		}
		return compensate(primary, func() error { return fsys.Symlink(scriptPath, target) })
	}

	if err := fsys.Remove(scriptPath); err != nil && !os.IsNotExist(err) {
		return &Error{Kind: KindIO, Op: "remove wrapper", Path: scriptPath,
			Err: fmt.Errorf("%w: %w", ErrWrapperLeftBehind, err)}
	}
	return nil
}
