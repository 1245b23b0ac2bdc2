// Package model holds the aggregation tree built from streamed discovery events.
package model

import (
	"fmt"
	"sort"
	"strings"
	"weak"

	"github.com/joe/depot-sync/internal/schema"
)

// Item is one discovery result to aggregate. A nil Candidate creates or reuses
// the asset row only.
type Item struct {
	AssetName string
	Candidate map[string]string
	Ext       string
	// Status is the leaf action, or the terminal status when Candidate is nil.
	Status string
	// Summary is the asset-level classification ("N items to Sync", "Synced", ...).
	Summary string
	Index   int
	Detail  string
	Err     string
}

// Tree is the asset -> leaf tree for one discovery generation. It is not safe for
// concurrent use; one goroutine owns it.
type Tree struct {
	generation  uint64
	registry    *schema.Registry
	assetSchema *schema.Schema
	itemSchema  *schema.Schema

	roots    []*Row
	byName   map[string]*Row
	byID     map[string]*Row
	revision uint64
}

// New creates an empty tree for generation.
func New(registry *schema.Registry, generation uint64) *Tree {
	return &Tree{
		generation:  generation,
		registry:    registry,
		assetSchema: registry.MustGet(schema.AssetItem),
		itemSchema:  registry.MustGet(schema.SyncItem),
		byName:      make(map[string]*Row),
		byID:        make(map[string]*Row),
	}
}

// Generation returns the discovery generation this tree belongs to.
func (t *Tree) Generation() uint64 { return t.generation }

// AssetSchema returns the asset row schema.
func (t *Tree) AssetSchema() *schema.Schema { return t.assetSchema }

// ItemSchema returns the leaf row schema.
func (t *Tree) ItemSchema() *schema.Schema { return t.itemSchema }

// AddRow creates the asset row for item.AssetName on first sight, reusing it
// afterwards, and appends a leaf when the item carries a candidate.
func (t *Tree) AddRow(item Item) (*Row, *Row) {
	asset, ok := t.byName[item.AssetName]
	if !ok {
		status := item.Summary
		if status == "" {
			status = item.Status
		}

		asset = newRow(KindAsset, t.assetSchema, map[string]any{
			KeyAssetName: item.AssetName,
			KeyStatus:    status,
			KeyDetail:    item.Detail,
		})
		t.byName[item.AssetName] = asset
		t.byID[asset.id] = asset
		t.roots = append(t.roots, asset)
	}

	if item.Candidate == nil {
		if item.Err != "" {
			asset.err = item.Err
		}

		return asset, nil
	}

	leaf := newRow(KindLeaf, t.itemSchema, map[string]any{
		KeyAssetName: item.AssetName,
		KeyItemFound: item.Candidate,
		KeyExt:       item.Ext,
		KeyStatus:    item.Status,
		KeyIndex:     item.Index,
		KeyDetail:    item.Detail,
	})
	leaf.parent = weak.Make(asset)
	asset.children = append(asset.children, leaf)
	t.byID[leaf.id] = leaf

	return asset, leaf
}

// Row looks a row up by id.
func (t *Tree) Row(id string) (*Row, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// Asset looks an asset row up by name.
func (t *Tree) Asset(name string) (*Row, bool) {
	r, ok := t.byName[name]
	return r, ok
}

// Roots returns the asset rows in arrival order.
func (t *Tree) Roots() []*Row {
	return append([]*Row(nil), t.roots...)
}

// Leaves returns every leaf row, grouped by asset in arrival order.
func (t *Tree) Leaves() []*Row {
	var leaves []*Row
	for _, asset := range t.roots {
		leaves = append(leaves, asset.children...)
	}

	return leaves
}

// VisibleLeaves returns leaves that are visible and whose asset row is visible.
func (t *Tree) VisibleLeaves() []*Row {
	var leaves []*Row

	for _, asset := range t.roots {
		if !asset.visible {
			continue
		}

		for _, leaf := range asset.children {
			if leaf.visible {
				leaves = append(leaves, leaf)
			}
		}
	}

	return leaves
}

// Len returns the number of rows of each kind.
func (t *Tree) Len() (assets, leaves int) {
	return len(t.roots), len(t.byID) - len(t.roots)
}

// Values computes a row's display values at read time.
func (t *Tree) Values(r *Row) []string {
	return t.registry.Resolve(r.schema, r)
}

// Refresh invalidates views without touching row data.
func (t *Tree) Refresh() {
	t.revision++
}

// Revision counts Refresh calls and structural changes seen by views.
func (t *Tree) Revision() uint64 { return t.revision }

// SortedRoots returns asset rows ordered by one display column. The tree itself is not reordered.
func (t *Tree) SortedRoots(column int, descending bool) []*Row {
	roots := t.Roots()
	if column < 0 || column >= len(t.assetSchema.Columns) {
		return roots
	}

	col := t.assetSchema.Columns[column]
	keys := make(map[*Row]string, len(roots))

	for _, r := range roots {
		keys[r] = strings.ToLower(t.registry.Value(col, r))
	}

	sort.SliceStable(roots, func(i, j int) bool {
		if descending {
			return keys[roots[i]] > keys[roots[j]]
		}

		return keys[roots[i]] < keys[roots[j]]
	})

	return roots
}

func (t *Tree) String() string {
	assets, leaves := t.Len()
	return fmt.Sprintf("tree gen=%d assets=%d leaves=%d", t.generation, assets, leaves)
}
