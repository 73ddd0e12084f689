package receiver

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrBadSessionID is returned for session ids that cannot name a directory.
var ErrBadSessionID = errors.New("receiver: invalid session id")

// UploadStore keeps received images.
type UploadStore interface {
	// Store keeps data received for sessionID under fileName and returns
	// where it went.
	Store(sessionID, fileName string, data []byte) (string, error)
}

// DirStore writes uploads to Dir/<session>/<uuid>-<fileName>, so repeated
// uploads of the same file name never overwrite each other.
type DirStore struct {
	Dir string
}

// Store implements UploadStore.
func (d DirStore) Store(sessionID, fileName string, data []byte) (string, error) {
	dir, err := sessionDir(sessionID)
	if err != nil {
		return "", err
	}
	dir = filepath.Join(d.Dir, dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("receiver: create dir: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+"-"+filepath.Base(fileName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("receiver: write: %w", err)
	}
	return path, nil
}

// sessionDir escapes sessionID into a single path element.
func sessionDir(sessionID string) (string, error) {
	name := url.PathEscape(sessionID)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrBadSessionID, sessionID)
	}
	return name, nil
}

// MemoryStore keeps uploads in memory.
type MemoryStore struct {
	mu    sync.Mutex
	items []StoredUpload
}

// StoredUpload is one upload held by MemoryStore.
type StoredUpload struct {
	SessionID string
	FileName  string
	Data      []byte
}

// Store implements UploadStore.
func (m *MemoryStore) Store(sessionID, fileName string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, StoredUpload{SessionID: sessionID, FileName: fileName, Data: data})
	return fmt.Sprintf("memory:%s/%d", sessionID, len(m.items)-1), nil
}

// Uploads returns everything stored so far.
func (m *MemoryStore) Uploads() []StoredUpload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StoredUpload, len(m.items))
	copy(out, m.items)
	return out
}
