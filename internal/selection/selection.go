// Package selection persists the user's list of toggled targets, one absolute
// path per line. The list is a convenience for the UI; wrapper state itself is
// always read from the filesystem.
package selection

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"primewrap/internal/classify"
)

// Set is a set of absolute paths.
type Set map[string]struct{}

// Has reports membership.
func (s Set) Has(p string) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Store reads and writes the selection file at Path.
type Store struct {
	Path string

	mu sync.Mutex
}

// NewStore creates a store backed by path
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads the set. A missing file is an empty set.
func (s *Store) Load() (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add inserts p and reports whether it was new.
func (s *Store) Add(p string) (bool, error) {
	return s.update(func(set Set) bool {
		if set.Has(p) {
			return false
		}
		set[p] = struct{}{}
		return true
	})
}

// Remove deletes p and reports whether it was present.
func (s *Store) Remove(p string) (bool, error) {
	return s.update(func(set Set) bool {
		if !set.Has(p) {
			return false
		}
		delete(set, p)
		return true
	})
}

// Prune drops file entries that are no longer wrapped, i.e. whose backup is
// gone. Directory entries are kept since their state is per file. It returns
// the removed paths.
func (s *Store) Prune() ([]string, error) {
	var removed []string
	_, err := s.update(func(set Set) bool {
		for p := range set {
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				continue
			}
			if _, err := os.Lstat(classify.BackupPath(p)); err == nil {
				continue
			}
			delete(set, p)
			removed = append(removed, p)
		}
		return len(removed) > 0
	})
	sort.Strings(removed)
	return removed, err
}

func (s *Store) update(fn func(Set) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.load()
	if err != nil {
		return false, err
	}
	if !fn(set) {
		return false, nil
	}
	if err := s.save(set); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) load() (Set, error) {
	set := make(Set)

	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return set, nil
		}
		return nil, fmt.Errorf("failed to open selection file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		set[line] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read selection file: %w", err)
	}
	return set, nil
}

// save writes the set sorted, via a temp file renamed over the old one.
func (s *Store) save(set Set) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create selection dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".selection-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	w := bufio.NewWriter(tmpFile)
	for _, p := range set.Sorted() {
		if _, err := fmt.Fprintln(w, p); err != nil {
			_ = tmpFile.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("failed to replace selection file: %w", err)
	}
	return nil
}
