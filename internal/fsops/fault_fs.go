package fsops

import (
	"fmt"
	"os"
)

// Operation names understood by FaultFS.FailOn.
const (
	OpWrite   = "write"
	OpChmod   = "chmod"
	OpRename  = "rename"
	OpSymlink = "symlink"
	OpRemove  = "remove"
)

type fault struct {
	nth int
	err error
}

// FaultFS implements FS for testing.
// Mutating calls are recorded in Calls and forwarded to Base unless a fault
// was registered for that call, in which case nothing is forwarded.
type FaultFS struct {
	Base  FS
	Calls []string

	faults map[string]fault
	counts map[string]int
}

// NewFaultFS wraps base. A nil base means OSFS.
func NewFaultFS(base FS) *FaultFS {
	if base == nil {
		base = OSFS{}
	}
	return &FaultFS{
		Base:   base,
		Calls:  []string{},
		faults: make(map[string]fault),
		counts: make(map[string]int),
	}
}

// FailOn makes the nth (1-based) call of op return err.
func (f *FaultFS) FailOn(op string, nth int, err error) {
	f.faults[op] = fault{nth: nth, err: err}
}

// Count returns how many times op was attempted.
func (f *FaultFS) Count(op string) int {
	return f.counts[op]
}

func (f *FaultFS) hit(op, call string) error {
	f.counts[op]++
	f.Calls = append(f.Calls, call)
	if flt, ok := f.faults[op]; ok && flt.nth == f.counts[op] {
		return flt.err
	}
	return nil
}

func (f *FaultFS) Lstat(name string) (os.FileInfo, error) {
	return f.Base.Lstat(name)
}

func (f *FaultFS) Stat(name string) (os.FileInfo, error) {
	return f.Base.Stat(name)
}

func (f *FaultFS) Readlink(name string) (string, error) {
	return f.Base.Readlink(name)
}

func (f *FaultFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	if err := f.hit(OpWrite, "write:"+name); err != nil {
		return err
	}
	return f.Base.WriteFile(name, data, perm)
}

func (f *FaultFS) Chmod(name string, mode os.FileMode) error {
	if err := f.hit(OpChmod, fmt.Sprintf("chmod:%s:%o", name, mode.Perm())); err != nil {
		return err
	}
	return f.Base.Chmod(name, mode)
}

func (f *FaultFS) Rename(oldpath, newpath string) error {
	if err := f.hit(OpRename, "rename:"+oldpath+"->"+newpath); err != nil {
		return err
	}
	return f.Base.Rename(oldpath, newpath)
}

func (f *FaultFS) Symlink(oldname, newname string) error {
	if err := f.hit(OpSymlink, "symlink:"+newname+"->"+oldname); err != nil {
		return err
	}
	return f.Base.Symlink(oldname, newname)
}

func (f *FaultFS) Remove(name string) error {
	if err := f.hit(OpRemove, "rm:"+name); err != nil {
		return err
	}
	return f.Base.Remove(name)
}
