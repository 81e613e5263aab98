package wrapper

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies why a wrapper operation failed.
type Kind int

const (
	KindIO Kind = iota
	KindPathNotFound
	KindNoBackupFound
	KindPermissionDenied
	KindConflict
)

var (
	ErrIO               = errors.New("i/o failure")
	ErrPathNotFound     = errors.New("path not found")
	ErrNoBackupFound    = errors.New("no backup found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflicting filesystem state")

	// ErrWrapperLeftBehind marks a revert whose executable was fully restored
	// but whose wrapper script could not be deleted.
	ErrWrapperLeftBehind = errors.New("wrapper script left behind")
)

func (k Kind) String() string {
	switch k {
	case KindPathNotFound:
		return "path_not_found"
	case KindNoBackupFound:
		return "no_backup_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindConflict:
		return "conflict"
	default:
		return "io"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindPathNotFound:
		return ErrPathNotFound
	case KindNoBackupFound:
		return ErrNoBackupFound
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindConflict:
		return ErrConflict
	default:
		return ErrIO
	}
}

// Error reports a failed step of an install, revert or repair.
type Error struct {
	Kind Kind
	Op   string // Step that failed, e.g. "rename to backup"
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause, so
// errors.Is works for ErrNoBackupFound as well as fs.ErrPermission.
func (e *Error) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}

// KindOf returns the kind of the first *Error in err's chain, KindIO otherwise.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindIO
}

// Wrap classifies err from step op on path by its filesystem cause.
func Wrap(op, path string, err error) *Error {
	return newError(op, path, err)
}

// newError classifies a filesystem error from step op.
func newError(op, path string, err error) *Error {
	kind := KindIO
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = KindPathNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// compensate runs undo steps after primary failed. Undo failures are joined
// onto primary so the caller sees both.
func compensate(primary error, undo ...func() error) error {
	var errs []error
	for _, fn := range undo {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return primary
	}
	return errors.Join(primary, fmt.Errorf("rollback incomplete: %w", errors.Join(errs...)))
}
