package fsops

import "os"

// FS abstracts the filesystem calls used to install and revert wrappers.
// Tests substitute FaultFS to prove compensation paths without breaking
// real files.
type FS interface {
	Lstat(name string) (os.FileInfo, error)
	Stat(name string) (os.FileInfo, error)
	Readlink(name string) (string, error)

	WriteFile(name string, data []byte, perm os.FileMode) error
	Chmod(name string, mode os.FileMode) error
	Rename(oldpath, newpath string) error
	Symlink(oldname, newname string) error
	Remove(name string) error
}

// Exists reports whether name is present without following a final symlink.
// Errors other than "not exist" are returned to the caller.
func Exists(fsys FS, name string) (bool, error) {
	_, err := fsys.Lstat(name)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// IsSymlink reports whether name is a symbolic link.
func IsSymlink(fsys FS, name string) (bool, error) {
	info, err := fsys.Lstat(name)
	if err != nil {
		return false, err
	}
	return info.Mode()&os.ModeSymlink != 0, nil
}
