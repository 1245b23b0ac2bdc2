package roots_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/joe/depot-sync/internal/entity"
	"github.com/joe/depot-sync/internal/roots"
	"github.com/joe/depot-sync/internal/tracking"
	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

type countingTracker struct {
	tracking.Tracker
	registered atomic.Int32
}

func (c *countingTracker) RegisterPath(ctx context.Context, entityType string, id int, path string) error {
	c.registered.Add(1)
	return c.Tracker.RegisterPath(ctx, entityType, id, path)
}

func newTracker(t *testing.T) *countingTracker {
	t.Helper()
	g := NewWithT(t)

	project := tracking.Link{Type: "Project", ID: 1}
	store := tracking.NewMemoryStore()

	for _, rec := range []tracking.Record{
		tracking.NewRecord("Project", 1, map[string]any{"name": "demo"}),
		tracking.NewRecord("Asset", 1, map[string]any{"code": "tree", "project": project}),
		tracking.NewRecord("Asset", 3, map[string]any{"code": "rock", "project": project}),
		tracking.NewRecord("Asset", 4, map[string]any{"code": "orphan"}),
		tracking.NewRecord("Sequence", 10, map[string]any{"code": "sq010", "project": project}),
		tracking.NewRecord("Shot", 20, map[string]any{"code": "sh010", "project": project, "sg_sequence": tracking.Link{Type: "Sequence", ID: 10}}),
		tracking.NewRecord("Version", 7, map[string]any{"code": "v7", "project": project}),
	} {
		g.Expect(store.Put(context.Background(), rec)).To(Succeed())
	}

	return &countingTracker{Tracker: tracking.NewClient(store)}
}

func newResolver(t *testing.T, tracker tracking.Tracker, storage string, create bool) *roots.Resolver {
	t.Helper()

	resolver, err := roots.New(tracker, roots.Config{
		StorageRoot:   storage,
		Templates:     roots.DefaultTemplates(),
		CreateFolders: create,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	NewWithT(t).Expect(err).ToNot(HaveOccurred())

	return resolver
}

func TestResolveRendersAndMaterializes(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	storage := t.TempDir()
	resolver := newResolver(t, newTracker(t), storage, true)

	root := resolver.Resolve(context.Background(), entity.Ref{Type: "Asset", ID: 1, Code: "tree"})
	g.Expect(root.Err).ToNot(HaveOccurred())
	g.Expect(root.AssetName).To(Equal("tree"))
	g.Expect(root.Path).To(Equal(filepath.ToSlash(filepath.Join(storage, "demo", "assets", "tree")) + "/..."))
	g.Expect(filepath.Join(storage, "demo", "assets", "tree")).To(BeADirectory())
	g.Expect(root.Context.Fields).To(HaveKeyWithValue("Project", "demo"))
}

func TestResolveShotUsesSequenceField(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	storage := t.TempDir()
	root := newResolver(t, newTracker(t), storage, true).Resolve(context.Background(), entity.Ref{Type: "Shot", ID: 20})

	g.Expect(root.Err).ToNot(HaveOccurred())
	g.Expect(root.Ref.Code).To(Equal("sh010"))
	g.Expect(root.Path).To(HaveSuffix("/demo/sequences/sq010/sh010/..."))
}

func TestMaterializeRunsOncePerEntity(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	tracker := newTracker(t)
	resolver := newResolver(t, tracker, t.TempDir(), true)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			root := resolver.Resolve(context.Background(), entity.Ref{Type: "Asset", ID: 1, Code: "tree"})
			g.Expect(root.Err).ToNot(HaveOccurred())
		}()
	}

	wg.Wait()

	resolver.Resolve(context.Background(), entity.Ref{Type: "Asset", ID: 1, Code: "tree"})
	g.Expect(tracker.registered.Load()).To(Equal(int32(1)))
}

func TestAmbiguousRootIsAnError(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	tracker := newTracker(t)
	g.Expect(tracker.RegisterPath(context.Background(), "Asset", 3, "/elsewhere/rock")).To(Succeed())

	root := newResolver(t, tracker, t.TempDir(), true).Resolve(context.Background(), entity.Ref{Type: "Asset", ID: 3, Code: "rock"})
	g.Expect(root.Path).To(BeEmpty())
	g.Expect(root.Err).To(MatchError(syncerrors.ErrAmbiguousRoot))
	g.Expect(root.AssetName).To(Equal("rock"))

	var resolution *syncerrors.ResolutionError
	g.Expect(root.Err).To(BeAssignableToTypeOf(resolution))
}

func TestZeroRootsIsAnError(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	root := newResolver(t, newTracker(t), t.TempDir(), false).Resolve(context.Background(), entity.Ref{Type: "Asset", ID: 1, Code: "tree"})
	g.Expect(root.Err).To(MatchError(syncerrors.ErrNoRoot))
}

func TestUnmappedTypeHasNoTemplate(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	root := newResolver(t, newTracker(t), t.TempDir(), true).Resolve(context.Background(), entity.Ref{Type: "Version", ID: 7})
	g.Expect(root.Err).To(MatchError(syncerrors.ErrNoTemplate))
	g.Expect(root.AssetName).To(Equal("v7"))
}

func TestMissingTemplateField(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	root := newResolver(t, newTracker(t), t.TempDir(), true).Resolve(context.Background(), entity.Ref{Type: "Asset", ID: 4, Code: "orphan"})
	g.Expect(root.Err).To(MatchError(roots.ErrMissingField))
	g.Expect(root.Err.Error()).To(ContainSubstring("Project"))
}

func TestUnknownEntityFails(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	root := newResolver(t, newTracker(t), t.TempDir(), true).Resolve(context.Background(), entity.Ref{Type: "Asset", ID: 99})
	g.Expect(root.Err).To(MatchError(syncerrors.ErrNotFound))
	g.Expect(root.AssetName).To(Equal("Asset 99"))
}

func TestExactFilePaths(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	resolver := newResolver(t, newTracker(t), "/studio/"+roots.ClientRootVar, true)
	resolver.SetClientRoot("ws")

	relative := resolver.Resolve(context.Background(), entity.Ref{Type: "PublishedFile", ID: 1, ExactFile: true, PathCache: "demo/tree_v003.fbx"})
	g.Expect(relative.Err).ToNot(HaveOccurred())
	g.Expect(relative.Path).To(Equal(filepath.ToSlash(filepath.Join("/studio/ws", "demo/tree_v003.fbx"))))

	absolute := resolver.Resolve(context.Background(), entity.Ref{Type: "PublishedFile", ID: 2, ExactFile: true, PathCache: "/mnt/pub/rock.fbx"})
	g.Expect(absolute.Path).To(Equal("/mnt/pub/rock.fbx"))

	missing := resolver.Resolve(context.Background(), entity.Ref{Type: "PublishedFile", ID: 3, ExactFile: true})
	g.Expect(missing.Err).To(MatchError(syncerrors.ErrNoRoot))
}

func TestNewRejectsUndefinedTemplate(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	_, err := roots.New(newTracker(t), roots.Config{
		Templates: map[string]string{"asset_root": "{Asset}"},
		Mapping:   map[string]string{"Asset": "asset_root", "Shot": "shot_root"},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.Expect(err).To(MatchError(ContainSubstring("shot_root")))
}

func TestTemplateFields(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	tmpl := roots.Template{Name: "shot_root", Pattern: "{Project}/sequences/{Sequence}/{Shot}"}
	g.Expect(tmpl.Fields()).To(Equal([]string{"Project", "Sequence", "Shot"}))

	out, err := tmpl.Apply(map[string]string{"Project": "demo", "Sequence": "sq010", "Shot": "sh010"})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(out).To(Equal("demo/sequences/sq010/sh010"))
}
