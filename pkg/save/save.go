// Package save writes captured stills to local storage.
package save

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrBadName is returned for names that are not a single path element.
var ErrBadName = errors.New("save: file name must be a bare name")

// Saver stores an encoded image under a file name.
type Saver interface {
	// Save writes data and returns where it went.
	Save(name string, data []byte) (string, error)
}

// FileSaver writes into a directory. An existing file of the same name is
// replaced, like a browser download of a fixed file name would be.
type FileSaver struct {
	Dir  string
	Perm os.FileMode
}

// NewFileSaver creates a saver for dir.
func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{Dir: dir, Perm: 0o644}
}

// Save writes data to Dir/name atomically (temp file + rename).
func (s *FileSaver) Save(name string, data []byte) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}

	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("save: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("save: temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("save: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("save: close: %w", err)
	}

	perm := s.Perm
	if perm == 0 {
		perm = 0o644
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return "", fmt.Errorf("save: chmod: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return "", fmt.Errorf("save: rename: %w", err)
	}
	return path, nil
}
