package filters_test

import (
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/joe/depot-sync/internal/filters"
	"github.com/joe/depot-sync/internal/model"
	"github.com/joe/depot-sync/internal/prefs"
	"github.com/joe/depot-sync/internal/schema"
)

type fixture struct {
	store  *prefs.Store
	engine *filters.Engine
	tree   *model.Tree
}

func newFixture(t *testing.T, include string) *fixture {
	t.Helper()
	g := NewWithT(t)

	registry, err := schema.Load()
	g.Expect(err).ToNot(HaveOccurred())

	store, err := prefs.Open(filepath.Join(t.TempDir(), ".psdf"))
	g.Expect(err).ToNot(HaveOccurred())

	tree := model.New(registry, 1)

	return &fixture{
		store:  store,
		engine: filters.New(store, tree.ItemSchema(), filters.NewGlobFilter(include)),
		tree:   tree,
	}
}

func (f *fixture) add(t *testing.T, asset, file, ext, status string) *model.Row {
	t.Helper()

	_, leaf := f.tree.AddRow(model.Item{
		AssetName: asset,
		Candidate: map[string]string{"depotFile": "//depot/" + asset + "/" + file, "clientFile": "/ws/" + asset + "/" + file},
		Ext:       ext,
		Status:    status,
	})

	for _, filterType := range f.engine.Types() {
		_, err := f.engine.Observe(filterType, leaf.FieldString(filterType))
		NewWithT(t).Expect(err).ToNot(HaveOccurred())
	}

	return leaf
}

func TestTypesComeFromSchema(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	f := newFixture(t, "")
	g.Expect(f.engine.Types()).To(Equal([]string{"status", "ext"}))
}

func TestObserveDefaultsToEnabledWithoutOverwriting(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	f := newFixture(t, "")
	g.Expect(f.store.Update(func(p *prefs.Preferences) { p.FilterValues("ext")[".ma"] = false })).To(Succeed())

	isNew, err := f.engine.Observe("ext", ".fbx")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(isNew).To(BeTrue())

	isNew, err = f.engine.Observe("ext", ".ma")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(isNew).To(BeTrue())

	isNew, err = f.engine.Observe("ext", ".fbx")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(isNew).To(BeFalse())

	g.Expect(f.store.Snapshot().Filters["ext"]).To(Equal(map[string]bool{".fbx": true, ".ma": false}))
	g.Expect(f.engine.Values("ext")).To(Equal([]string{".fbx", ".ma"}))
	g.Expect(f.engine.Active("ext")).To(BeTrue())
}

func TestObserveIgnoresUnknownTypeAndEmptyValue(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	f := newFixture(t, "")

	isNew, err := f.engine.Observe("step", "model")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(isNew).To(BeFalse())

	isNew, err = f.engine.Observe("ext", "")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(isNew).To(BeFalse())

	g.Expect(f.store.Snapshot().Filters).ToNot(HaveKey("step"))
}

func TestDisabledValueHidesLeaf(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	f := newFixture(t, "")
	fbx := f.add(t, "tree", "mesh.fbx", ".fbx", "updated")
	ma := f.add(t, "tree", "rig.ma", ".ma", "updated")
	bare := f.add(t, "tree", "README", "", "updated")

	g.Expect(f.engine.Toggle("ext", ".fbx", false)).To(Succeed())
	g.Expect(f.engine.Apply(f.tree)).To(Equal(2))

	g.Expect(fbx.Visible()).To(BeFalse())
	g.Expect(ma.Visible()).To(BeTrue())
	g.Expect(bare.Visible()).To(BeTrue())
}

func TestToggleOffThenOnRestoresVisibility(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	f := newFixture(t, "")
	a := f.add(t, "tree", "a.fbx", ".fbx", "updated")
	b := f.add(t, "tree", "b.fbx", ".fbx", "added")
	c := f.add(t, "rock", "c.ma", ".ma", "updated")

	g.Expect(f.engine.Toggle("status", "added", false)).To(Succeed())
	f.engine.Apply(f.tree)

	before := []bool{a.Visible(), b.Visible(), c.Visible()}
	g.Expect(before).To(Equal([]bool{true, false, true}))

	g.Expect(f.engine.Toggle("ext", ".fbx", false)).To(Succeed())
	f.engine.Apply(f.tree)
	g.Expect([]bool{a.Visible(), b.Visible(), c.Visible()}).To(Equal([]bool{false, false, true}))

	g.Expect(f.engine.Toggle("ext", ".fbx", true)).To(Succeed())
	f.engine.Apply(f.tree)
	g.Expect([]bool{a.Visible(), b.Visible(), c.Visible()}).To(Equal(before))
}

func TestResetEnablesEverything(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	f := newFixture(t, "")
	leaf := f.add(t, "tree", "a.fbx", ".fbx", "updated")
	g.Expect(f.store.Update(func(p *prefs.Preferences) { p.FilterValues("ext")[".old"] = false })).To(Succeed())
	g.Expect(f.engine.Toggle("ext", ".fbx", false)).To(Succeed())

	g.Expect(f.engine.Reset()).To(Succeed())
	f.engine.Apply(f.tree)

	g.Expect(leaf.Visible()).To(BeTrue())
	g.Expect(f.engine.Active("ext")).To(BeFalse())
	g.Expect(f.store.Snapshot().Filters["ext"]).To(HaveKeyWithValue(".old", true))
}

func TestHideSyncedHidesChildlessAssets(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	f := newFixture(t, "")
	f.add(t, "tree", "a.fbx", ".fbx", "updated")
	rock, _ := f.tree.AddRow(model.Item{AssetName: "rock", Status: schema.StatusSynced})
	tree, _ := f.tree.Asset("tree")

	f.engine.Apply(f.tree)
	g.Expect(rock.Visible()).To(BeTrue())

	g.Expect(f.engine.SetHideSynced(true)).To(Succeed())
	g.Expect(f.engine.HideSynced()).To(BeTrue())
	f.engine.Apply(f.tree)

	g.Expect(rock.Visible()).To(BeFalse())
	g.Expect(tree.Visible()).To(BeTrue())
}

func TestPathFilterHidesNonMatchingLeaves(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	f := newFixture(t, "**/*.fbx")
	fbx := f.add(t, "tree", "a.fbx", ".fbx", "updated")
	ma := f.add(t, "tree", "b.ma", ".ma", "updated")

	g.Expect(f.engine.Apply(f.tree)).To(Equal(1))
	g.Expect(fbx.Visible()).To(BeTrue())
	g.Expect(ma.Visible()).To(BeFalse())
}

func TestToggleUnknownTypeFails(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	f := newFixture(t, "")
	g.Expect(f.engine.Toggle("step", "model", false)).To(MatchError(ContainSubstring("unknown filter type")))
	g.Expect(f.engine.Enabled("ext", ".never-seen")).To(BeTrue())
}
