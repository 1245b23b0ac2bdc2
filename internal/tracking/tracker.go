package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

// Tracker is the query interface the resolvers consume.
type Tracker interface {
	Find(ctx context.Context, entityType string, filters []Filter, fields []string) ([]Record, error)
	FindOne(ctx context.Context, entityType string, filters []Filter, fields []string) (Record, error)
	ContextFromEntity(ctx context.Context, entityType string, id int) (*Context, error)
	PathsFromEntity(ctx context.Context, entityType string, id int) ([]string, error)
	RegisterPath(ctx context.Context, entityType string, id int, path string) error
}

// Store is the persistence behind a Client.
type Store interface {
	List(ctx context.Context, entityType string) ([]Record, error)
	// Get returns syncerrors.ErrNotFound when the record does not exist.
	Get(ctx context.Context, entityType string, id int) (Record, error)
	Put(ctx context.Context, rec Record) error
	Paths(ctx context.Context, entityType string, id int) ([]string, error)
	AddPath(ctx context.Context, entityType string, id int, path string) error
	Close() error
}

// Context is the tracking context of one entity, flattened into template fields.
type Context struct {
	Entity  Link
	Project *Link
	// Fields maps template keys (entity type names and string fields) to values.
	Fields map[string]string
}

func (c *Context) String() string {
	keys := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+c.Fields[k])
	}

	return fmt.Sprintf("%s %d {%s}", c.Entity.Type, c.Entity.ID, strings.Join(parts, ", "))
}

// Client implements Tracker over a Store.
type Client struct {
	store Store
}

// NewClient creates a Tracker backed by store.
func NewClient(store Store) *Client {
	return &Client{store: store}
}

// Close closes the underlying store.
func (c *Client) Close() error {
	return c.store.Close()
}

// ContextFromEntity derives template fields from the entity and its direct links.
// The entity's code is stored under its type name; each linked record's code is
// stored under the link's type name; plain string fields are kept by name.
func (c *Client) ContextFromEntity(ctx context.Context, entityType string, id int) (*Context, error) {
	rec, err := c.store.Get(ctx, entityType, id)
	if err != nil {
		return nil, fmt.Errorf("context from %s %d: %w", entityType, id, err)
	}

	tctx := &Context{
		Entity: rec.Self(),
		Fields: map[string]string{entityType: displayName(rec)},
	}

	for key, value := range rec {
		if key == "type" || key == "id" || key == "code" {
			continue
		}

		if s, ok := value.(string); ok {
			if _, taken := tctx.Fields[key]; !taken {
				tctx.Fields[key] = s
			}

			continue
		}

		link, ok := asLink(value)
		if !ok {
			continue
		}

		linked, err := c.store.Get(ctx, link.Type, link.ID)
		if err != nil {
			if errors.Is(err, syncerrors.ErrNotFound) {
				continue
			}

			return nil, fmt.Errorf("context from %s %d: follow %s: %w", entityType, id, key, err)
		}

		if _, taken := tctx.Fields[link.Type]; !taken {
			tctx.Fields[link.Type] = displayName(linked)
		}

		if link.Type == "Project" {
			self := linked.Self()
			tctx.Project = &self
		}
	}

	return tctx, nil
}

// Find returns the records of entityType matching every filter, projected to
// "type", "id" and the requested fields.
func (c *Client) Find(ctx context.Context, entityType string, filters []Filter, fields []string) ([]Record, error) {
	candidates, err := c.candidates(ctx, entityType, filters)
	if err != nil {
		return nil, err
	}

	results := make([]Record, 0, len(candidates))

	for _, rec := range candidates {
		ok, err := c.matchAll(ctx, rec, filters)
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		results = append(results, c.project(ctx, rec, fields))
	}

	return results, nil
}

// FindOne returns the first match, or syncerrors.ErrNotFound.
func (c *Client) FindOne(ctx context.Context, entityType string, filters []Filter, fields []string) (Record, error) {
	records, err := c.Find(ctx, entityType, filters, fields)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("find one %s: %w", entityType, syncerrors.ErrNotFound)
	}

	return records[0], nil
}

// PathsFromEntity returns the filesystem paths recorded for the entity, sorted.
func (c *Client) PathsFromEntity(ctx context.Context, entityType string, id int) ([]string, error) {
	paths, err := c.store.Paths(ctx, entityType, id)
	if err != nil {
		return nil, fmt.Errorf("paths from %s %d: %w", entityType, id, err)
	}

	sort.Strings(paths)

	return paths, nil
}

// RegisterPath records a filesystem path for the entity. Registering the same path twice is a no-op.
func (c *Client) RegisterPath(ctx context.Context, entityType string, id int, path string) error {
	err := c.store.AddPath(ctx, entityType, id, path)
	if err != nil {
		return fmt.Errorf("register path for %s %d: %w", entityType, id, err)
	}

	return nil
}

// candidates narrows the scan to a single Get when the query pins the id.
func (c *Client) candidates(ctx context.Context, entityType string, filters []Filter) ([]Record, error) {
	for _, f := range filters {
		if f.Field != "id" || f.Op != OpIs {
			continue
		}

		id, ok := asInt(f.Value)
		if !ok {
			break
		}

		rec, err := c.store.Get(ctx, entityType, id)
		if errors.Is(err, syncerrors.ErrNotFound) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("find %s: %w", entityType, err)
		}

		return []Record{rec}, nil
	}

	records, err := c.store.List(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", entityType, err)
	}

	return records, nil
}

func (c *Client) matchAll(ctx context.Context, rec Record, filters []Filter) (bool, error) {
	for _, f := range filters {
		ok, err := f.matches(c.resolve(ctx, rec, f.Field))
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func (c *Client) project(ctx context.Context, rec Record, fields []string) Record {
	out := Record{"type": rec["type"], "id": rec["id"]}
	for _, field := range fields {
		out[field] = c.resolve(ctx, rec, field)
	}

	return out
}

// resolve reads a possibly dotted field path. "a.Type.b" follows the link(s) in
// field a that point at Type and reads b on each; multiple links flatten into a list.
func (c *Client) resolve(ctx context.Context, rec Record, field string) any {
	parts := strings.Split(field, ".")
	value := rec[parts[0]]

	for i := 1; i+1 < len(parts); i += 2 {
		entityType, next := parts[i], parts[i+1]

		var collected []any

		for _, link := range (Record{"v": value}).Links("v") {
			if link.Type != entityType {
				continue
			}

			linked, err := c.store.Get(ctx, link.Type, link.ID)
			if err != nil {
				continue
			}

			if nested, isList := linked[next].([]any); isList {
				collected = append(collected, nested...)
			} else if linked[next] != nil {
				collected = append(collected, linked[next])
			}
		}

		switch {
		case len(collected) == 0:
			return nil
		case len(collected) == 1 && !isListField(value):
			value = collected[0]
		default:
			value = collected
		}
	}

	return value
}

func isListField(value any) bool {
	switch value.(type) {
	case []any, []Link:
		return true
	default:
		return false
	}
}

func displayName(rec Record) string {
	if code := rec.String("code"); code != "" {
		return code
	}

	return rec.String("name")
}
