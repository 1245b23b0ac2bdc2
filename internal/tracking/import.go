package tracking

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// ImportJSON reads a JSON array of records and puts each into store.
// It returns the number of records imported.
func ImportJSON(ctx context.Context, store Store, r io.Reader) (int, error) {
	var records []Record

	err := json.NewDecoder(r).Decode(&records)
	if err != nil {
		return 0, fmt.Errorf("decode records: %w", err)
	}

	for i, rec := range records {
		if err := store.Put(ctx, rec); err != nil { //nolint:noinlineerr // Per-record insert
			return i, fmt.Errorf("record %d: %w", i, err)
		}
	}

	return len(records), nil
}
