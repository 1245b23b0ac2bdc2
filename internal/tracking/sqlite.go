package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entities (
	type TEXT NOT NULL,
	id   INTEGER NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (type, id)
);
CREATE TABLE IF NOT EXISTS path_cache (
	entity_type TEXT NOT NULL,
	entity_id   INTEGER NOT NULL,
	path        TEXT NOT NULL,
	PRIMARY KEY (entity_type, entity_id, path)
);
`

// SQLiteStore keeps records as JSON blobs in a SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open tracker db %s: %w", path, err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil { //nolint:noinlineerr // Schema setup
		_ = db.Close()
		return nil, fmt.Errorf("create tracker schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// AddPath records a path for the entity once.
func (s *SQLiteStore) AddPath(ctx context.Context, entityType string, id int, path string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO path_cache (entity_type, entity_id, path) VALUES (?, ?, ?)`,
		entityType, id, path)
	if err != nil {
		return fmt.Errorf("insert path: %w", err)
	}

	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get loads one record.
func (s *SQLiteStore) Get(ctx context.Context, entityType string, id int) (Record, error) {
	var data string

	err := s.db.GetContext(ctx, &data, `SELECT data FROM entities WHERE type = ? AND id = ?`, entityType, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %d: %w", entityType, id, syncerrors.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("select %s %d: %w", entityType, id, err)
	}

	return decodeRecord(data)
}

// List loads every record of the type, ordered by id.
func (s *SQLiteStore) List(ctx context.Context, entityType string) ([]Record, error) {
	var blobs []string

	err := s.db.SelectContext(ctx, &blobs, `SELECT data FROM entities WHERE type = ? ORDER BY id`, entityType)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", entityType, err)
	}

	out := make([]Record, 0, len(blobs))

	for _, blob := range blobs {
		rec, err := decodeRecord(blob)
		if err != nil {
			return nil, err
		}

		out = append(out, rec)
	}

	return out, nil
}

// Paths returns the recorded paths for the entity.
func (s *SQLiteStore) Paths(ctx context.Context, entityType string, id int) ([]string, error) {
	var paths []string

	err := s.db.SelectContext(ctx, &paths,
		`SELECT path FROM path_cache WHERE entity_type = ? AND entity_id = ? ORDER BY path`, entityType, id)
	if err != nil {
		return nil, fmt.Errorf("select paths: %w", err)
	}

	return paths, nil
}

// Put inserts or replaces a record.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	entityType, id := rec.Type(), rec.ID()
	if entityType == "" || id == 0 {
		return fmt.Errorf("put record: missing type or id in %v", rec) //nolint:err113 // Fixture validation error
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (type, id, data) VALUES (?, ?, ?)
		 ON CONFLICT(type, id) DO UPDATE SET data = excluded.data`,
		entityType, id, string(data))
	if err != nil {
		return fmt.Errorf("upsert %s %d: %w", entityType, id, err)
	}

	return nil
}

func decodeRecord(data string) (Record, error) {
	var rec Record

	err := json.Unmarshal([]byte(data), &rec)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	return rec, nil
}
