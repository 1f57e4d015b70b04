package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MemoryArtifacts is an in-process ArtifactStore. Safe for concurrent use.
type MemoryArtifacts struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryArtifacts creates an empty in-memory artifact store.
func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{data: make(map[string][]byte)}
}

// Put stores a copy of data under name.
func (m *MemoryArtifacts) Put(_ context.Context, name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the artifact named name.
func (m *MemoryArtifacts) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[name]
	if !ok {
		return nil, fmt.Errorf("artifact %s not found", name)
	}
	return append([]byte(nil), data...), nil
}

// Names returns the stored artifact names in no particular order.
func (m *MemoryArtifacts) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	return names
}

// DirArtifacts stores artifacts as files under a directory. Artifact
// names must be plain file names; path separators are rejected.
type DirArtifacts struct {
	dir string
}

// NewDirArtifacts creates the directory if needed and returns a store
// over it.
func NewDirArtifacts(dir string) (*DirArtifacts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &DirArtifacts{dir: dir}, nil
}

func (d *DirArtifacts) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid artifact name: %q", name)
	}
	return filepath.Join(d.dir, name), nil
}

// Put writes the artifact to disk.
func (d *DirArtifacts) Put(_ context.Context, name string, data []byte) error {
	path, err := d.path(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Get reads the artifact from disk.
func (d *DirArtifacts) Get(_ context.Context, name string) ([]byte, error) {
	path, err := d.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifact %s not found: %w", name, err)
	}
	return data, nil
}

var (
	_ ArtifactStore = (*MemoryArtifacts)(nil)
	_ ArtifactStore = (*DirArtifacts)(nil)
)
