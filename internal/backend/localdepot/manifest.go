package localdepot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
)

// haveEntry records what a workspace file was synced from.
type haveEntry struct {
	Rev     int       `json:"rev"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// manifest is the workspace have-list, one JSON file guarded by an in-process
// mutex and a cross-process file lock.
type manifest struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

func newManifest(workspaceDir string) *manifest {
	path := filepath.Join(workspaceDir, metaDirName, "have.json")

	return &manifest{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (m *manifest) read() (map[string]haveEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureDir(); err != nil { //nolint:noinlineerr // Setup step
		return nil, err
	}

	if err := m.lock.RLock(); err != nil { //nolint:noinlineerr // Lock acquisition
		return nil, fmt.Errorf("lock have-list: %w", err)
	}

	defer func() { _ = m.lock.Unlock() }()

	return m.load()
}

// update applies fn to the have-list and writes it back atomically.
func (m *manifest) update(fn func(map[string]haveEntry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureDir(); err != nil { //nolint:noinlineerr // Setup step
		return err
	}

	if err := m.lock.Lock(); err != nil { //nolint:noinlineerr // Lock acquisition
		return fmt.Errorf("lock have-list: %w", err)
	}

	defer func() { _ = m.lock.Unlock() }()

	entries, err := m.load()
	if err != nil {
		return err
	}

	fn(entries)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode have-list: %w", err)
	}

	tmp := m.path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o600); err != nil { //nolint:noinlineerr // Atomic write step
		return fmt.Errorf("write have-list: %w", err)
	}

	if err := os.Rename(tmp, m.path); err != nil { //nolint:noinlineerr // Atomic write step
		return fmt.Errorf("replace have-list: %w", err)
	}

	return nil
}

func (m *manifest) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil { //nolint:noinlineerr // Setup step
		return fmt.Errorf("create metadata dir: %w", err)
	}

	return nil
}

// load must be called with the lock held.
func (m *manifest) load() (map[string]haveEntry, error) {
	entries := make(map[string]haveEntry)

	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read have-list: %w", err)
	}

	if err := json.Unmarshal(data, &entries); err != nil { //nolint:noinlineerr // Decode step
		return nil, fmt.Errorf("decode have-list %s: %w", m.path, err)
	}

	return entries, nil
}
