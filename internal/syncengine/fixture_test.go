package syncengine_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/joe/depot-sync/internal/backend"
	"github.com/joe/depot-sync/internal/backend/backendtest"
	"github.com/joe/depot-sync/internal/entity"
	"github.com/joe/depot-sync/internal/filters"
	"github.com/joe/depot-sync/internal/model"
	"github.com/joe/depot-sync/internal/prefs"
	"github.com/joe/depot-sync/internal/progress"
	"github.com/joe/depot-sync/internal/roots"
	"github.com/joe/depot-sync/internal/schema"
	"github.com/joe/depot-sync/internal/syncengine"
	"github.com/joe/depot-sync/internal/tracking"
)

const clientRoot = "/ws"

// testingT is satisfied by *testing.T and GinkgoT().
type testingT interface {
	Helper()
	TempDir() string
	Cleanup(fn func())
	Fatalf(format string, args ...any)
}

type fixture struct {
	t        testingT
	g        Gomega
	depot    *backendtest.Depot
	store    *tracking.MemoryStore
	tracker  tracking.Tracker
	registry *schema.Registry
	prefs    *prefs.Store
	logger   *slog.Logger
	opts     syncengine.Options
}

func newFixture(t testingT) *fixture {
	t.Helper()
	g := NewWithT(t)

	registry, err := schema.Load()
	g.Expect(err).ToNot(HaveOccurred())

	store, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.json"))
	g.Expect(err).ToNot(HaveOccurred())

	memory := tracking.NewMemoryStore()
	g.Expect(memory.Put(context.Background(), tracking.NewRecord("Project", 1, map[string]any{"name": "demo"}))).To(Succeed())

	return &fixture{
		t:        t,
		g:        g,
		depot:    backendtest.NewDepot(clientRoot),
		store:    memory,
		tracker:  tracking.NewClient(memory),
		registry: registry,
		prefs:    store,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		opts: syncengine.Options{
			Workers:   4,
			FacetKeys: registry.MustGet(schema.SyncItem).FilterKeys(),
		},
	}
}

// asset adds an Asset with the given folder paths and returns its link.
func (f *fixture) asset(id int, code string, paths ...string) tracking.Link {
	f.t.Helper()

	ctx := context.Background()
	rec := tracking.NewRecord(entity.TypeAsset, id, map[string]any{
		"code":    code,
		"project": tracking.Link{Type: "Project", ID: 1},
	})
	f.g.Expect(f.store.Put(ctx, rec)).To(Succeed())

	for _, p := range paths {
		f.g.Expect(f.store.AddPath(ctx, entity.TypeAsset, id, p)).To(Succeed())
	}

	return tracking.Link{Type: entity.TypeAsset, ID: id}
}

// files adds n depot files under dir with the given have and head revisions.
func (f *fixture) files(dir string, have, head int, names ...string) {
	for _, name := range names {
		f.depot.Add(backendtest.File{
			DepotFile:  "//depot" + dir + "/" + name,
			ClientFile: dir + "/" + name,
			HaveRev:    have,
			HeadRev:    head,
			Size:       int64(len(name)) * 1024,
		})
	}
}

func (f *fixture) engine(emitter syncengine.EventEmitter) *syncengine.Engine {
	f.t.Helper()

	pool, err := backend.NewPool(f.depot, f.opts.Workers)
	f.g.Expect(err).ToNot(HaveOccurred())
	f.t.Cleanup(func() { _ = pool.Close() })

	resolver, err := roots.New(f.tracker, roots.Config{StorageRoot: clientRoot, Templates: roots.DefaultTemplates()}, f.logger)
	f.g.Expect(err).ToNot(HaveOccurred())
	resolver.SetClientRoot(clientRoot)

	entities := entity.NewResolver(f.tracker, entity.DefaultOptions(), f.logger)

	return syncengine.NewEngine(pool, entities, resolver, emitter, f.logger, f.opts)
}

func (f *fixture) session(selection []tracking.Link, force bool) *syncengine.Session {
	f.t.Helper()

	emitter := syncengine.NewChannelEmitter(syncengine.EventBufferSize)
	engine := f.engine(emitter)
	filterEngine := filters.New(f.prefs, f.registry.MustGet(schema.SyncItem), nil)

	session := syncengine.NewSession(engine, emitter, f.registry, filterEngine, progress.New(), f.logger,
		syncengine.SessionOptions{Selection: selection, Force: force, LogPath: "/tmp/depot-sync.log"})
	f.t.Cleanup(session.Close)

	return session
}

// recorder collects events from synchronous engine calls.
type recorder struct {
	mu     sync.Mutex
	events []syncengine.Event
}

func (r *recorder) Emit(event syncengine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recorder) all() []syncengine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]syncengine.Event(nil), r.events...)
}

func ofType[T syncengine.Event](events []syncengine.Event) []T {
	var out []T

	for _, event := range events {
		if typed, ok := event.(T); ok {
			out = append(out, typed)
		}
	}

	return out
}

func itemsFor(events []syncengine.Event, asset string) []syncengine.ItemFound {
	var out []syncengine.ItemFound

	for _, item := range ofType[syncengine.ItemFound](events) {
		if item.AssetName == asset {
			out = append(out, item)
		}
	}

	return out
}

func isType[T syncengine.Event](event syncengine.Event) bool {
	_, ok := event.(T)
	return ok
}

// pumpUntil handles session events until one of type T is handled.
func pumpUntil[T syncengine.Event](g Gomega, session *syncengine.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g.Expect(session.Pump(ctx, isType[T])).To(Succeed())
}

func leafPaths(rows []*model.Row) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ClientFile())
	}

	return out
}
