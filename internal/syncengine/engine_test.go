package syncengine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/joe/depot-sync/internal/schema"
	"github.com/joe/depot-sync/internal/syncengine"
	"github.com/joe/depot-sync/internal/tracking"
	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

var errServerDown = errors.New("dial tcp: connection refused")

func TestWorkersIsBoundedByLimit(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	g.Expect(syncengine.Workers(1)).To(Equal(1))
	g.Expect(syncengine.Workers(0)).To(Equal(1))
	g.Expect(syncengine.Workers(syncengine.DefaultWorkerCap)).To(BeNumerically("<=", syncengine.DefaultWorkerCap))
}

func TestConnectReportsClientRoot(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fx := newFixture(t)
	root, err := fx.engine(&recorder{}).Connect(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(root).To(Equal(clientRoot))
}

func TestConnectFailureIsConnectionError(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fx := newFixture(t)
	fx.depot.FailConnect(errServerDown)

	_, err := fx.engine(&recorder{}).Connect(context.Background())

	var connErr *syncerrors.ConnectionError
	g.Expect(errors.As(err, &connErr)).To(BeTrue())
	g.Expect(err.Error()).To(ContainSubstring("connection refused"))
}

func TestDiscoverMixedAssets(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fx := newFixture(t)
	selection := []tracking.Link{
		fx.asset(1, "tree", "/ws/tree"),
		fx.asset(2, "rock", "/ws/rock"),
		fx.asset(3, "bush", "/ws/bush1", "/ws/bush2"),
	}
	fx.files("/ws/tree", 3, 3, "a.ma", "b.ma")
	fx.files("/ws/rock", 1, 2, "a.png", "b.png", "c.ma", "d.ma", "e.txt")

	rec := &recorder{}
	g.Expect(fx.engine(rec).Discover(context.Background(), 7, selection, false)).To(Succeed())

	events := rec.all()
	g.Expect(events[0]).To(BeAssignableToTypeOf(syncengine.DiscoveryStarted{}))
	g.Expect(events[0].(syncengine.DiscoveryStarted).Units).To(Equal(3))
	g.Expect(events[len(events)-1]).To(Equal(syncengine.DiscoveryComplete{Header: syncengine.Header{Generation: 7}, Workers: 3}))

	for _, event := range events {
		g.Expect(event.Gen()).To(Equal(uint64(7)))
	}

	tree := itemsFor(events, "tree")
	g.Expect(tree).To(HaveLen(1))
	g.Expect(tree[0].Status).To(Equal(schema.StatusSynced))
	g.Expect(tree[0].Candidate).To(BeNil())
	g.Expect(tree[0].Detail).To(Equal("Nothing new to sync for [/ws/tree/...]"))

	rock := itemsFor(events, "rock")
	g.Expect(rock).To(HaveLen(5))

	for i, item := range rock {
		g.Expect(item.Index).To(Equal(i))
		g.Expect(item.Summary).To(Equal("5 items to Sync"))
		g.Expect(item.Status).To(Equal("updated"))
		g.Expect(item.Candidate).To(HaveKeyWithValue("haveRev", "1"))
		g.Expect(item.Candidate).To(HaveKeyWithValue("rev", "2"))
		g.Expect(item.Detail).To(Equal("/ws/rock/..."))
	}

	g.Expect(rock[0].Candidate).To(HaveKeyWithValue("clientFile", "/ws/rock/a.png"))
	g.Expect(rock[0].Ext).To(Equal(".png"))

	bush := itemsFor(events, "bush")
	g.Expect(bush).To(HaveLen(1))
	g.Expect(bush[0].Status).To(Equal(schema.StatusError))
	g.Expect(bush[0].Err).To(HaveOccurred())
	g.Expect(bush[0].Detail).To(ContainSubstring("multiple root paths"))

	g.Expect(ofType[syncengine.GatheringComplete](events)).To(HaveLen(3))
	g.Expect(ofType[syncengine.PlanStarted](events)).To(HaveLen(3))

	// bush fails before its query is sent
	updates := ofType[syncengine.StatusUpdate](events)
	g.Expect(updates).To(HaveLen(2))

	messages := []string{updates[0].Message, updates[1].Message}
	g.Expect(messages).To(ConsistOf("Requesting sync information for tree", "Requesting sync information for rock"))
}

func TestDiscoverNotInDepot(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fx := newFixture(t)
	selection := []tracking.Link{fx.asset(4, "ghost", "/ws/ghost")}

	rec := &recorder{}
	g.Expect(fx.engine(rec).Discover(context.Background(), 1, selection, false)).To(Succeed())

	items := itemsFor(rec.all(), "ghost")
	g.Expect(items).To(HaveLen(1))
	g.Expect(items[0].Status).To(Equal(schema.StatusNotInDepot))
	g.Expect(items[0].Detail).To(Equal("Nothing in depot resolves [/ws/ghost/...]"))
	g.Expect(items[0].Err).ToNot(HaveOccurred())
}

func TestDiscoverForceIncludesCurrentFiles(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fx := newFixture(t)
	selection := []tracking.Link{fx.asset(1, "tree", "/ws/tree")}
	fx.files("/ws/tree", 3, 3, "a.ma", "b.ma", "c.ma")

	rec := &recorder{}
	g.Expect(fx.engine(rec).Discover(context.Background(), 1, selection, false)).To(Succeed())
	g.Expect(itemsFor(rec.all(), "tree")).To(HaveLen(1))

	forced := &recorder{}
	g.Expect(fx.engine(forced).Discover(context.Background(), 2, selection, true)).To(Succeed())

	items := itemsFor(forced.all(), "tree")
	g.Expect(items).To(HaveLen(3))

	for _, item := range items {
		g.Expect(item.Status).To(Equal("refreshed"))
	}

	g.Expect(fx.depot.Commands()).To(ContainElement("sync -n -f /ws/tree/...#head"))
}

func TestDiscoverProgressIsBatched(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fx := newFixture(t)
	fx.opts.ProgressBatch = 2
	selection := []tracking.Link{fx.asset(2, "rock", "/ws/rock")}
	fx.files("/ws/rock", 0, 1, "a.png", "b.png", "c.ma", "d.ma", "e.txt")

	rec := &recorder{}
	g.Expect(fx.engine(rec).Discover(context.Background(), 1, selection, false)).To(Succeed())

	var seen []int
	for _, total := range ofType[syncengine.TotalItemsFound](rec.all()) {
		g.Expect(total.Count).To(Equal(5))
		seen = append(seen, total.Seen)
	}

	g.Expect(seen).To(Equal([]int{0, 2, 4, 5}))
}

func TestDiscoverAnnouncesEachFacetOnce(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fx := newFixture(t)
	selection := []tracking.Link{fx.asset(2, "rock", "/ws/rock")}
	fx.files("/ws/rock", 0, 1, "a.png", "b.png", "c.MA")

	rec := &recorder{}
	g.Expect(fx.engine(rec).Discover(context.Background(), 1, selection, false)).To(Succeed())

	var facets []string
	for _, facet := range ofType[syncengine.FacetObserved](rec.all()) {
		facets = append(facets, facet.FilterType+"="+facet.Value)
	}

	g.Expect(facets).To(ConsistOf("status=added", "ext=.png", "ext=.ma"))
}

func TestDiscoverSurvivesPanicsOnASingleConnection(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fx := newFixture(t)
	fx.opts.Workers = 1
	selection := []tracking.Link{
		fx.asset(1, "crash", "/ws/crash"),
		fx.asset(2, "wreck", "/ws/wreck"),
		fx.asset(3, "tree", "/ws/tree"),
	}
	fx.files("/ws/tree", 1, 2, "a.ma")
	fx.depot.PanicOn("/ws/crash/...")
	fx.depot.PanicOn("/ws/wreck/...")

	rec := &recorder{}
	engine := fx.engine(rec)
	done := make(chan error, 1)

	go func() { done <- engine.Discover(context.Background(), 1, selection, false) }()

	g.Eventually(done, 5*time.Second).Should(Receive(Not(HaveOccurred())))

	events := rec.all()
	g.Expect(ofType[syncengine.GatheringComplete](events)).To(HaveLen(3))
	g.Expect(ofType[syncengine.DiscoveryComplete](events)).To(HaveLen(1))

	for _, asset := range []string{"crash", "wreck"} {
		items := itemsFor(events, asset)
		g.Expect(items).To(HaveLen(1))
		g.Expect(items[0].Status).To(Equal(schema.StatusError))

		var unexpected *syncerrors.UnexpectedError
		g.Expect(errors.As(items[0].Err, &unexpected)).To(BeTrue())
	}

	g.Expect(itemsFor(events, "tree")).To(HaveLen(1))
}

func TestDiscoverSkipsUnknownEntities(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fx := newFixture(t)
	selection := []tracking.Link{fx.asset(1, "tree", "/ws/tree"), {Type: "Asset", ID: 99}}
	fx.files("/ws/tree", 0, 1, "a.ma")

	rec := &recorder{}
	g.Expect(fx.engine(rec).Discover(context.Background(), 1, selection, false)).To(Succeed())

	started := ofType[syncengine.DiscoveryStarted](rec.all())
	g.Expect(started).To(HaveLen(1))
	g.Expect(started[0].Units).To(Equal(1))
	g.Expect(started[0].Failures).To(HaveLen(1))
}

func TestExecuteSyncsEveryItem(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fx := newFixture(t)
	fx.files("/ws/rock", 1, 4, "a.png", "b.png", "c.ma")
	fx.depot.FailSync("/ws/rock/b.png", errors.New("b.png - file(s) not in client view")) //nolint:err113 // Scripted failure

	rec := &recorder{}
	fx.engine(rec).Execute(context.Background(), &syncengine.ExecPlan{
		Generation: 3,
		Items:      []syncengine.ExecItem{{RowID: "a", Path: "/ws/rock/a.png"}, {RowID: "b", Path: "/ws/rock/b.png"}, {RowID: "c", Path: "/ws/rock/c.ma"}},
	})

	events := rec.all()
	g.Expect(ofType[syncengine.SyncStarted](events)).To(HaveLen(3))

	completed := map[string]syncengine.SyncCompleted{}
	for _, done := range ofType[syncengine.SyncCompleted](events) {
		completed[done.RowID] = done
	}

	g.Expect(completed).To(HaveLen(3))
	g.Expect(completed["a"].Err).ToNot(HaveOccurred())
	g.Expect(completed["a"].NewRev).To(Equal("4"))
	g.Expect(completed["b"].Err).To(MatchError(ContainSubstring("not in client view")))
	g.Expect(completed["c"].Err).ToNot(HaveOccurred())

	g.Expect(events[len(events)-1]).To(Equal(syncengine.ExecutionComplete{Header: syncengine.Header{Generation: 3}, Synced: 2, Failed: 1}))
	g.Expect(fx.depot.Have("/ws/rock/a.png")).To(Equal(4))
	g.Expect(fx.depot.Have("/ws/rock/b.png")).To(Equal(1))
}

func TestExecuteWithoutServerFailsEveryItem(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fx := newFixture(t)
	fx.opts.Workers = 2
	fx.depot.FailConnect(errServerDown)

	items := []syncengine.ExecItem{{RowID: "a", Path: "/ws/a"}, {RowID: "b", Path: "/ws/b"}, {RowID: "c", Path: "/ws/c"}}

	rec := &recorder{}
	fx.engine(rec).Execute(context.Background(), &syncengine.ExecPlan{Generation: 1, Items: items})

	events := rec.all()
	g.Expect(ofType[syncengine.SyncStarted](events)).To(HaveLen(3))

	for _, done := range ofType[syncengine.SyncCompleted](events) {
		g.Expect(done.Err).To(MatchError(ContainSubstring("could not connect")))
	}

	g.Expect(events[len(events)-1]).To(Equal(syncengine.ExecutionComplete{Header: syncengine.Header{Generation: 1}, Failed: 3}))
}
