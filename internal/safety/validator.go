package safety

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrProtectedPath = errors.New("protected path")
	ErrTraversal     = errors.New("path traversal detected")
	ErrWrapperDir    = errors.New("path inside wrapper directory")
)

// ReservedPrefixes are system locations whose executables are never offered
// or toggled.
var ReservedPrefixes = []string{"/usr", "/bin", "/sbin"}

// Validator decides which paths may be toggled
type Validator struct {
	ProtectedPaths []string
	WrapperDir     string
}

// NewValidator creates a validator with the reserved prefixes plus optional extras
func NewValidator(extraProtected []string, wrapperDir string) *Validator {
	v := &Validator{ProtectedPaths: defaultProtected(extraProtected)}
	if wrapperDir != "" {
		if p, err := NormalizePath(wrapperDir); err == nil {
			v.WrapperDir = p
		}
	}
	return v
}

// ValidateToggleTarget is the single check the CLI runs before touching a
// user-supplied path. Returns typed error on safety violation
func (v *Validator) ValidateToggleTarget(path string) error {
	if DetectTraversal(path) {
		return ErrTraversal
	}

	p, err := NormalizePath(path)
	if err != nil {
		return err
	}

	if IsSystemPath(p, v.ProtectedPaths) {
		return ErrProtectedPath
	}

	// Toggling our own scripts would wrap a wrapper.
	if v.WrapperDir != "" && (hasPathPrefix(p, v.WrapperDir) || hasPathPrefix(v.WrapperDir, p)) {
		return ErrWrapperDir
	}

	return nil
}

// IsCandidate reports whether an executable discovered elsewhere (e.g. in the
// process table) should be offered for toggling: it exists, the current user
// can write it and it is outside protected locations.
func (v *Validator) IsCandidate(path string) bool {
	p, err := NormalizePath(path)
	if err != nil {
		return false
	}
	if IsSystemPath(p, v.ProtectedPaths) {
		return false
	}
	if v.WrapperDir != "" && hasPathPrefix(p, v.WrapperDir) {
		return false
	}
	if _, err := os.Lstat(p); err != nil {
		return false
	}
	return HasWriteAccess(p)
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrInvalidPath
	}
	return filepath.Clean(abs), nil
}

// DetectTraversal blocks any ".." segment in raw input
func DetectTraversal(raw string) bool {
	parts := strings.Split(filepath.ToSlash(raw), "/")
	for _, p := range parts {
		if p == ".." {
			return true
		}
	}
	return false
}

// IsSystemPath checks whether path equals or lies under one of the prefixes.
// "/usrlocal" is not under "/usr".
func IsSystemPath(path string, prefixes []string) bool {
	p := filepath.Clean(path)
	for _, prefix := range prefixes {
		if strings.TrimSpace(prefix) == "" {
			continue
		}
		if hasPathPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// HasWriteAccess asks the kernel whether the real user may write path.
func HasWriteAccess(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

// hasPathPrefix checks if path has the given prefix
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if prefix == string(os.PathSeparator) {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

// defaultProtected returns the reserved prefixes plus any extras
func defaultProtected(extra []string) []string {
	base := make([]string, 0, len(ReservedPrefixes)+len(extra))
	base = append(base, ReservedPrefixes...)
	for _, e := range extra {
		if strings.TrimSpace(e) == "" {
			continue
		}
		base = append(base, filepath.Clean(e))
	}
	return base
}
