// Package filters decides row visibility from the schema's filterable columns and
// the user's persisted filter choices.
package filters

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/joe/depot-sync/internal/model"
	"github.com/joe/depot-sync/internal/prefs"
	"github.com/joe/depot-sync/internal/schema"
)

// State is the known value set of one filter type.
type State struct {
	Type   string
	Values mapset.Set[string]
}

// Engine evaluates visibility. Filter types are fixed at construction from the
// leaf schema; values are learned as rows arrive.
type Engine struct {
	store  *prefs.Store
	states map[string]*State
	order  []string
	path   PathFilter
}

// New creates an Engine for the filterable columns of itemSchema. A nil path
// filter shows every path.
func New(store *prefs.Store, itemSchema *schema.Schema, path PathFilter) *Engine {
	if path == nil {
		path = NewGlobFilter("")
	}

	engine := &Engine{
		store:  store,
		states: make(map[string]*State),
		path:   path,
	}

	for _, key := range itemSchema.FilterKeys() {
		engine.states[key] = &State{Type: key, Values: mapset.NewThreadUnsafeSet[string]()}
		engine.order = append(engine.order, key)
	}

	return engine
}

// Types returns the filter types in schema order.
func (e *Engine) Types() []string {
	return append([]string(nil), e.order...)
}

// Observe registers a value for a filter type, defaulting it to enabled without
// overriding an existing choice. It reports whether the value was new to the engine.
func (e *Engine) Observe(filterType, value string) (bool, error) {
	state, ok := e.states[filterType]
	if !ok || value == "" {
		return false, nil
	}

	if !state.Values.Add(value) {
		return false, nil
	}

	snapshot := e.store.Snapshot()
	if _, known := snapshot.Filters[filterType][value]; known {
		return true, nil
	}

	err := e.store.Update(func(p *prefs.Preferences) {
		values := p.FilterValues(filterType)
		if _, set := values[value]; !set {
			values[value] = true
		}
	})
	if err != nil {
		return true, fmt.Errorf("register %s filter %q: %w", filterType, value, err)
	}

	return true, nil
}

// Toggle enables or disables one value.
func (e *Engine) Toggle(filterType, value string, enabled bool) error {
	if _, ok := e.states[filterType]; !ok {
		return fmt.Errorf("unknown filter type %q", filterType)
	}

	e.states[filterType].Values.Add(value)

	err := e.store.Update(func(p *prefs.Preferences) {
		p.FilterValues(filterType)[value] = enabled
	})
	if err != nil {
		return fmt.Errorf("toggle %s filter %q: %w", filterType, value, err)
	}

	return nil
}

// Enabled reports whether a value is shown. Unknown values are shown.
func (e *Engine) Enabled(filterType, value string) bool {
	enabled, ok := e.store.Snapshot().Filters[filterType][value]
	return !ok || enabled
}

// Active reports whether any value of the filter type is disabled.
func (e *Engine) Active(filterType string) bool {
	for _, enabled := range e.store.Snapshot().Filters[filterType] {
		if !enabled {
			return true
		}
	}

	return false
}

// Values returns the values seen this session for a filter type, sorted.
func (e *Engine) Values(filterType string) []string {
	state, ok := e.states[filterType]
	if !ok {
		return nil
	}

	values := state.Values.ToSlice()
	sort.Strings(values)

	return values
}

// Reset enables every value of every filter type, persisted ones included.
func (e *Engine) Reset() error {
	err := e.store.Update(func(p *prefs.Preferences) {
		for _, filterType := range e.order {
			values := p.FilterValues(filterType)
			for value := range values {
				values[value] = true
			}

			for value := range e.states[filterType].Values.Iter() {
				values[value] = true
			}
		}
	})
	if err != nil {
		return fmt.Errorf("reset filters: %w", err)
	}

	return nil
}

// HideSynced reports the "hide assets with nothing to sync" toggle.
func (e *Engine) HideSynced() bool {
	return e.store.Snapshot().HideSynced
}

// SetHideSynced persists the toggle.
func (e *Engine) SetHideSynced(hide bool) error {
	err := e.store.Update(func(p *prefs.Preferences) { p.HideSynced = hide })
	if err != nil {
		return fmt.Errorf("set hide synced: %w", err)
	}

	return nil
}

// Snapshot returns the current persisted choices for use with Visible.
func (e *Engine) Snapshot() prefs.Preferences {
	return e.store.Snapshot()
}

// Visible evaluates one row against a preference snapshot.
func (e *Engine) Visible(row *model.Row, snapshot prefs.Preferences) bool {
	if row.Kind() == model.KindAsset {
		return !snapshot.HideSynced || row.ChildCount() > 0
	}

	if client := row.ClientFile(); client != "" && !e.path.ShouldInclude(client) {
		return false
	}

	for _, filterType := range e.order {
		value := row.FieldString(filterType)
		if value == "" {
			continue
		}

		if enabled, ok := snapshot.Filters[filterType][value]; ok && !enabled {
			return false
		}
	}

	return true
}

// Apply recomputes visibility for every row of the tree and returns the number
// of visible leaves.
func (e *Engine) Apply(tree *model.Tree) int {
	snapshot := e.store.Snapshot()
	visible := 0

	for _, asset := range tree.Roots() {
		asset.SetVisible(e.Visible(asset, snapshot))

		for _, leaf := range asset.Children() {
			leaf.SetVisible(e.Visible(leaf, snapshot))

			if leaf.Visible() && asset.Visible() {
				visible++
			}
		}
	}

	tree.Refresh()

	return visible
}
