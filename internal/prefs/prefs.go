// Package prefs persists user preferences (filter choices, window size, hide-synced)
// in a small JSON file in the user's home directory.
package prefs

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
)

// Exported constants.
const (
	DefaultFileName = ".psdf"
	FilePermissions = 0o644
)

const (
	filterSuffix  = "_filters"
	keyWindowSize = "window_size"
	keyHideSynced = "hide_synced"
)

// Preferences is the decoded preference file.
type Preferences struct {
	// Filters maps filter type to value to enabled. Stored on disk as "{type}_filters".
	Filters    map[string]map[string]bool
	WindowSize []int
	HideSynced bool

	// extra holds keys this program does not interpret so they survive a rewrite.
	extra map[string]json.RawMessage
}

// Clone returns a deep copy.
func (p Preferences) Clone() Preferences {
	out := Preferences{
		Filters:    make(map[string]map[string]bool, len(p.Filters)),
		WindowSize: append([]int(nil), p.WindowSize...),
		HideSynced: p.HideSynced,
		extra:      maps.Clone(p.extra),
	}

	for filterType, values := range p.Filters {
		out.Filters[filterType] = maps.Clone(values)
	}

	return out
}

// FilterValues returns the value map for a filter type, creating it if needed.
func (p *Preferences) FilterValues(filterType string) map[string]bool {
	if p.Filters == nil {
		p.Filters = make(map[string]map[string]bool)
	}

	values, ok := p.Filters[filterType]
	if !ok {
		values = make(map[string]bool)
		p.Filters[filterType] = values
	}

	return values
}

// MarshalJSON flattens filter maps into "{type}_filters" keys.
func (p Preferences) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(p.extra)+len(p.Filters)+2)
	for k, v := range p.extra {
		doc[k] = v
	}

	for filterType, values := range p.Filters {
		doc[filterType+filterSuffix] = values
	}

	if p.WindowSize != nil {
		doc[keyWindowSize] = p.WindowSize
	}

	doc[keyHideSynced] = p.HideSynced

	return json.Marshal(doc)
}

// UnmarshalJSON reads "{type}_filters" keys into Filters and keeps unknown keys.
func (p *Preferences) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage

	err := json.Unmarshal(data, &doc)
	if err != nil {
		return err //nolint:wrapcheck // decoder errors carry their own position info
	}

	*p = Preferences{Filters: make(map[string]map[string]bool)}

	for key, raw := range doc {
		switch {
		case key == keyWindowSize:
			err = json.Unmarshal(raw, &p.WindowSize)
		case key == keyHideSynced:
			err = json.Unmarshal(raw, &p.HideSynced)
		case strings.HasSuffix(key, filterSuffix):
			values := make(map[string]bool)
			err = json.Unmarshal(raw, &values)
			p.Filters[strings.TrimSuffix(key, filterSuffix)] = values
		default:
			if p.extra == nil {
				p.extra = make(map[string]json.RawMessage)
			}

			p.extra[key] = raw
		}

		if err != nil {
			return fmt.Errorf("preference %q: %w", key, err)
		}
	}

	return nil
}

// Store is the preference file. Writers are serialized by a mutex within the
// process and a file lock across processes, and every Update re-reads the file so
// concurrent toggles are not dropped.
type Store struct {
	path string
	lock *flock.Flock

	mu   sync.Mutex
	data Preferences
}

// DefaultPath returns ~/.psdf.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}

	return filepath.Join(home, DefaultFileName), nil
}

// Open loads the preference file, creating an empty one when it does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, lock: flock.New(path + ".lock")}

	err := s.Update(func(*Preferences) {})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Path returns the preference file location.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a copy of the preferences as of the last read or write.
func (s *Store) Snapshot() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data.Clone()
}

// Update re-reads the file, applies fn, and writes the result back.
func (s *Store) Update(fn func(*Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.lock.Lock()
	if err != nil {
		return fmt.Errorf("lock preferences: %w", err)
	}

	defer func() { _ = s.lock.Unlock() }()

	current, err := s.read()
	if err != nil {
		return err
	}

	fn(&current)

	err = s.write(current)
	if err != nil {
		return err
	}

	s.data = current

	return nil
}

func (s *Store) read() (Preferences, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Preferences{Filters: make(map[string]map[string]bool)}, nil
	}

	if err != nil {
		return Preferences{}, fmt.Errorf("read preferences %s: %w", s.path, err)
	}

	var prefs Preferences

	err = json.Unmarshal(data, &prefs)
	if err != nil {
		return Preferences{}, fmt.Errorf("decode preferences %s: %w", s.path, err)
	}

	return prefs, nil
}

func (s *Store) write(prefs Preferences) error {
	data, err := json.MarshalIndent(prefs, "", "    ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	tmp := s.path + ".tmp"

	err = os.WriteFile(tmp, data, FilePermissions)
	if err != nil {
		return fmt.Errorf("write preferences %s: %w", tmp, err)
	}

	err = os.Rename(tmp, s.path)
	if err != nil {
		return fmt.Errorf("replace preferences %s: %w", s.path, err)
	}

	return nil
}
