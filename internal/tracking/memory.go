package tracking

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

// MemoryStore keeps records in memory. Records are stored in their JSON-decoded
// form so query behavior matches the SQLite store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[int]Record
	paths   map[string][]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[int]Record),
		paths:   make(map[string][]string),
	}
}

// AddPath records a path for the entity once.
func (s *MemoryStore) AddPath(_ context.Context, entityType string, id int, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(entityType, id)
	for _, existing := range s.paths[key] {
		if existing == path {
			return nil
		}
	}

	s.paths[key] = append(s.paths[key], path)

	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Get returns a copy of the record.
func (s *MemoryStore) Get(_ context.Context, entityType string, id int) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[entityType][id]
	if !ok {
		return nil, fmt.Errorf("%s %d: %w", entityType, id, syncerrors.ErrNotFound)
	}

	return copyRecord(rec), nil
}

// List returns copies of every record of the type, ordered by id.
func (s *MemoryStore) List(_ context.Context, entityType string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.records[entityType]

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyRecord(byID[id]))
	}

	return out, nil
}

// Paths returns the recorded paths for the entity.
func (s *MemoryStore) Paths(_ context.Context, entityType string, id int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.paths[recordKey(entityType, id)]...), nil
}

// Put inserts or replaces a record.
func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	decoded, err := roundTrip(rec)
	if err != nil {
		return err
	}

	entityType, id := decoded.Type(), decoded.ID()
	if entityType == "" || id == 0 {
		return fmt.Errorf("put record: missing type or id in %v", rec) //nolint:err113 // Fixture validation error
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[entityType] == nil {
		s.records[entityType] = make(map[int]Record)
	}

	s.records[entityType][id] = decoded

	return nil
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}

	return out
}

func roundTrip(rec Record) (Record, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	var decoded Record

	err = json.Unmarshal(data, &decoded)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	return decoded, nil
}
