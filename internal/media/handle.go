package media

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Handle owns the files and scratch directory produced by an acquisition.
// Release removes everything; it is safe to call more than once and never
// touches anything outside the configured download root.
type Handle struct {
	// Files are the deliverable paths, sorted. For a video acquisition this
	// is a single path; for a photo set it is every image.
	Files []string
	// Dir is the top-level scratch directory created under the download root.
	Dir string

	root string

	mu       sync.Mutex
	released bool
}

func newHandle(root, dir string, files []string) *Handle {
	return &Handle{Files: files, Dir: dir, root: root}
}

// Release deletes the deliverable files, removes the scratch directory, and
// prunes any empty parent directories left behind up to (but never including)
// the download root. Errors are collected best-effort; missing files are not
// an error.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	var errs []error
	for _, f := range h.Files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	if h.Dir != "" && inRoot(h.Dir, h.root) && !sameDir(h.Dir, h.root) {
		if err := os.RemoveAll(h.Dir); err != nil {
			errs = append(errs, err)
		}
	}

	for _, f := range h.Files {
		pruneEmptyParents(filepath.Dir(f), h.root)
	}
	return errors.Join(errs...)
}

// inRoot reports whether path resolves to a location inside root.
func inRoot(path, root string) bool {
	p, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	r, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(r, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func sameDir(a, b string) bool {
	aa, err := filepath.Abs(a)
	if err != nil {
		return false
	}
	bb, err := filepath.Abs(b)
	if err != nil {
		return false
	}
	return aa == bb
}

// pruneEmptyParents removes empty directories ascending from dir, stopping at
// the root or the first non-empty directory.
func pruneEmptyParents(dir, root string) {
	for inRoot(dir, root) && !sameDir(dir, root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
