package model

import (
	"strconv"
	"weak"

	"github.com/google/uuid"

	"github.com/joe/depot-sync/internal/schema"
)

// Kind distinguishes asset rows from leaf rows.
type Kind int

// Row kinds.
const (
	KindAsset Kind = iota
	KindLeaf
)

func (k Kind) String() string {
	if k == KindAsset {
		return "asset"
	}

	return "leaf"
}

// Data keys shared with the schema files.
const (
	KeyAssetName = "asset_name"
	KeyDetail    = "detail"
	KeyExt       = "ext"
	KeyIndex     = "index"
	KeyItemFound = "item_found"
	KeyStatus    = "status"
)

// Row is one tree node. Rows are only mutated by the goroutine that owns the Tree.
type Row struct {
	id       string
	kind     Kind
	schema   *schema.Schema
	parent   weak.Pointer[Row]
	children []*Row
	data     map[string]any

	visible bool
	syncing bool
	synced  bool
	err     string
	newRev  string
}

func newRow(kind Kind, s *schema.Schema, data map[string]any) *Row {
	return &Row{
		id:      uuid.NewString(),
		kind:    kind,
		schema:  s,
		data:    data,
		visible: true,
	}
}

// ID returns the row's unique token. Tokens are never reused.
func (r *Row) ID() string { return r.id }

// Kind returns the row kind.
func (r *Row) Kind() Kind { return r.kind }

// Schema returns the row's column schema.
func (r *Row) Schema() *schema.Schema { return r.schema }

// Parent returns the owning asset row, or nil for asset rows and detached leaves.
func (r *Row) Parent() *Row { return r.parent.Value() }

// Children returns a copy of the child list.
func (r *Row) Children() []*Row {
	return append([]*Row(nil), r.children...)
}

// Field returns raw row data.
func (r *Row) Field(key string) any { return r.data[key] }

// FieldString returns raw row data as a string, or "" when it is not a string.
func (r *Row) FieldString(key string) string {
	s, _ := r.data[key].(string)
	return s
}

// Candidate returns the backend record behind a leaf row.
func (r *Row) Candidate() map[string]string {
	m, _ := r.data[KeyItemFound].(map[string]string)
	return m
}

// AssetName returns the asset the row belongs to.
func (r *Row) AssetName() string { return r.FieldString(KeyAssetName) }

// ClientFile returns the leaf's workspace path.
func (r *Row) ClientFile() string { return r.Candidate()["clientFile"] }

// DepotFile returns the leaf's depot path.
func (r *Row) DepotFile() string { return r.Candidate()["depotFile"] }

// FileSize returns the leaf's size in bytes, or 0 when unknown.
func (r *Row) FileSize() int64 {
	size, err := strconv.ParseInt(r.Candidate()["fileSize"], 10, 64)
	if err != nil {
		return 0
	}

	return size
}

// Visible reports whether the row passed the last filter pass.
func (r *Row) Visible() bool { return r.visible }

// SetVisible records the filter verdict.
func (r *Row) SetVisible(visible bool) { r.visible = visible }

// Syncing reports whether an execution worker holds the row.
func (r *Row) Syncing() bool { return r.syncing }

// Synced reports whether the row's file was synced.
func (r *Row) Synced() bool { return r.synced }

// Err returns the recorded error text.
func (r *Row) Err() string { return r.err }

// NewRevision returns the revision reported by the last successful sync.
func (r *Row) NewRevision() string { return r.newRev }

// ChildCount returns the number of children.
func (r *Row) ChildCount() int { return len(r.children) }

// VisibleChildCount returns the number of visible children.
func (r *Row) VisibleChildCount() int {
	count := 0

	for _, child := range r.children {
		if child.visible {
			count++
		}
	}

	return count
}

// MarkSyncing puts the row in the syncing state, clearing any earlier outcome.
func (r *Row) MarkSyncing() {
	r.syncing = true
	r.synced = false
	r.err = ""
}

// MarkSynced records a successful sync.
func (r *Row) MarkSynced(newRev string) {
	r.syncing = false
	r.synced = true
	r.err = ""

	if newRev != "" {
		r.newRev = newRev
	}
}

// MarkError records a failure.
func (r *Row) MarkError(msg string) {
	r.syncing = false
	r.synced = false
	r.err = msg
}
