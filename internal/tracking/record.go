// Package tracking is the production-tracking query layer: entity records, filters,
// contexts, and the filesystem path cache that root resolution reads.
package tracking

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Record is one tracking-system entity as a field mapping. "type" and "id" are always present.
type Record map[string]any

// Link is a reference from one record to another.
type Link struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// NewRecord creates a record with the identity fields set.
func NewRecord(entityType string, id int, fields map[string]any) Record {
	rec := Record{"type": entityType, "id": id}
	for k, v := range fields {
		rec[k] = v
	}

	return rec
}

// ID returns the record id, or 0 when missing.
func (r Record) ID() int {
	id, _ := asInt(r["id"])
	return id
}

// Link returns the field as a single link.
func (r Record) Link(field string) (Link, bool) {
	return asLink(r[field])
}

// Links returns the field as a list of links. A single link is returned as a one-element list.
func (r Record) Links(field string) []Link {
	value := r[field]
	if link, ok := asLink(value); ok {
		return []Link{link}
	}

	items, ok := value.([]any)
	if !ok {
		if typed, isLinks := value.([]Link); isLinks {
			return typed
		}

		return nil
	}

	links := make([]Link, 0, len(items))

	for _, item := range items {
		if link, ok := asLink(item); ok {
			links = append(links, link)
		}
	}

	return links
}

// Self returns a link to this record.
func (r Record) Self() Link {
	return Link{Type: r.Type(), ID: r.ID(), Name: r.String("code")}
}

// String returns the field as a string, or "" when missing or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Type returns the record's entity type.
func (r Record) Type() string {
	return r.String("type")
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}

		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

func asLink(value any) (Link, bool) {
	switch v := value.(type) {
	case Link:
		return v, true
	case *Link:
		if v == nil {
			return Link{}, false
		}

		return *v, true
	case map[string]any:
		entityType, _ := v["type"].(string)
		id, ok := asInt(v["id"])

		if entityType == "" || !ok {
			return Link{}, false
		}

		name, _ := v["name"].(string)

		return Link{Type: entityType, ID: id, Name: name}, true
	default:
		return Link{}, false
	}
}

// normalize reduces a field value to a comparable form: links compare by type and id,
// numbers compare numerically.
func normalize(value any) any {
	if link, ok := asLink(value); ok {
		return Link{Type: link.Type, ID: link.ID}
	}

	switch v := value.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		return value
	}
}

func valuesEqual(a, b any) bool {
	na, nb := normalize(a), normalize(b)

	if reflect.TypeOf(na) != reflect.TypeOf(nb) {
		return false
	}

	if na == nil || reflect.TypeOf(na).Comparable() {
		return na == nb
	}

	return reflect.DeepEqual(na, nb)
}

func recordKey(entityType string, id int) string {
	return fmt.Sprintf("%s:%d", entityType, id)
}
