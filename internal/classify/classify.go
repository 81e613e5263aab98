// Package classify derives the backup and wrapper names of a target path.
// Every function here is pure: no filesystem access, no errors.
package classify

import (
	"path/filepath"
	"strings"
)

const (
	// Marker is the extension that identifies a backup of a wrapped executable.
	Marker = "bak"

	// WrapperPrefix is prepended to every generated wrapper script name.
	WrapperPrefix = "wrapper_"

	markerExt = "." + Marker
	hexDigits = "0123456789abcdef"
)

// IsBackup reports whether p is already in backup form.
// A hidden file named exactly ".bak" has no extension and is not a backup.
func IsBackup(p string) bool {
	if filepath.Ext(p) != markerExt {
		return false
	}
	return filepath.Base(p) != markerExt
}

// BackupPath returns the path the original executable is moved to while wrapped.
// "name" becomes "name.bak" and "name.ext" becomes "name.ext.bak". A path that
// is already a backup is returned unchanged.
func BackupPath(p string) string {
	if IsBackup(p) {
		return p
	}
	return p + markerExt
}

// OriginalPath strips the trailing marker from a backup path, keeping any
// extension that preceded it. Non-backup paths are returned unchanged.
func OriginalPath(p string) string {
	if !IsBackup(p) {
		return p
	}
	return strings.TrimSuffix(p, markerExt)
}

// WrapperName returns the script file name used for original inside the
// wrapper directory.
//
// Alphanumerics are kept, '/' becomes '_' and any other byte becomes "__"
// followed by its two hex digits. Cleaned paths never contain "//", so a run
// of underscores can always be split back into separators and escapes.
func WrapperName(original string) string {
	var b strings.Builder
	b.Grow(len(WrapperPrefix) + len(original)*2)
	b.WriteString(WrapperPrefix)
	for i := 0; i < len(original); i++ {
		c := original[i]
		switch {
		case isAlnum(c):
			b.WriteByte(c)
		case c == '/':
			b.WriteByte('_')
		default:
			b.WriteString("__")
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	return b.String()
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
