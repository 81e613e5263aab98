// Package procs lists the executables of running processes so they can be
// offered for toggling.
package procs

import (
	"os"
	"sort"

	"github.com/prometheus/procfs"

	"primewrap/internal/classify"
)

// Lister returns the executable paths of running processes.
type Lister interface {
	Executables() ([]string, error)
}

// Filter decides whether a path is worth offering.
type Filter interface {
	IsCandidate(path string) bool
}

// ProcFS lists processes from a procfs mount.
type ProcFS struct {
	MountPoint string // Defaults to procfs.DefaultMountPoint
}

// Executables reads /proc/<pid>/exe for every process. Processes that exit
// mid-scan, kernel threads and processes owned by other users are skipped.
func (p ProcFS) Executables() ([]string, error) {
	mount := p.MountPoint
	if mount == "" {
		mount = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mount)
	if err != nil {
		return nil, err
	}
	all, err := fs.AllProcs()
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(all))
	for _, proc := range all {
		exe, err := proc.Executable()
		if err != nil || exe == "" {
			continue
		}
		out = append(out, exe)
	}
	return out, nil
}

// ExecutablePaths returns the distinct executables of running processes that
// pass filter. A wrapped program runs from its backup file, so such paths are
// reported under the original name.
func ExecutablePaths(lister Lister, filter Filter) (map[string]struct{}, error) {
	exes, err := lister.Executables()
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(exes))
	for _, exe := range exes {
		p := displayPath(exe)
		if _, seen := set[p]; seen {
			continue
		}
		if filter != nil && !filter.IsCandidate(p) {
			continue
		}
		set[p] = struct{}{}
	}
	return set, nil
}

// Sorted returns the members of set in lexical order.
func Sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func displayPath(exe string) string {
	if !classify.IsBackup(exe) {
		return exe
	}
	orig := classify.OriginalPath(exe)
	if info, err := os.Lstat(orig); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return orig
	}
	return exe
}
