package fsops

import "os"

// OSFS implements FS using real os package calls
type OSFS struct{}

func (OSFS) Lstat(name string) (os.FileInfo, error) {
	return os.Lstat(name)
}

func (OSFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (OSFS) Readlink(name string) (string, error) {
	return os.Readlink(name)
}

// WriteFile creates or truncates name. The umask may strip bits from perm,
// callers that need exact bits follow up with Chmod.
func (OSFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (OSFS) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

func (OSFS) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (OSFS) Symlink(oldname, newname string) error {
	return os.Symlink(oldname, newname)
}

func (OSFS) Remove(name string) error {
	return os.Remove(name)
}
