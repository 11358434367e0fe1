package client

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// NameStore remembers the display name between sessions.
type NameStore interface {
	Load() (string, error)
	Save(name string) error
}

type MemoryNameStore struct {
	mu   sync.Mutex
	name string
}

func (m *MemoryNameStore) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name, nil
}

func (m *MemoryNameStore) Save(name string) error {
	m.mu.Lock()
	m.name = name
	m.mu.Unlock()
	return nil
}

// FileNameStore keeps the name in a single file. A missing file means no
// name has been saved yet.
type FileNameStore struct {
	Path string
}

func (f FileNameStore) Load() (string, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (f FileNameStore) Save(name string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(f.Path, []byte(name+"\n"), 0o600)
}
