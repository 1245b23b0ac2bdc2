package backend_test

import (
	"context"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/joe/depot-sync/internal/backend"
	"github.com/joe/depot-sync/internal/backend/backendtest"
)

func newDepot() *backendtest.Depot {
	depot := backendtest.NewDepot("/work")
	depot.Add(
		backendtest.File{DepotFile: "//depot/assets/tree/tree.ma", ClientFile: "/work/assets/tree/tree.ma", HaveRev: 2, HeadRev: 3, Size: 10},
		backendtest.File{DepotFile: "//depot/assets/tree/bark.png", ClientFile: "/work/assets/tree/bark.png", HaveRev: 1, HeadRev: 1, Size: 20},
		backendtest.File{DepotFile: "//depot/assets/tree/new.obj", ClientFile: "/work/assets/tree/new.obj", HeadRev: 1, Size: 30},
	)

	return depot
}

func TestDryRun_ForceIncludesCurrentFiles(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ctx := context.Background()
	conn, err := newDepot().Connect(ctx)
	g.Expect(err).ToNot(HaveOccurred())

	plain, err := backend.DryRun(ctx, conn, "/work/assets/tree/...", false)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(plain).To(HaveLen(2))

	forced, err := backend.DryRun(ctx, conn, "/work/assets/tree/...", true)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(forced).To(HaveLen(3))
	g.Expect(forced[1].Get(backend.FieldAction)).To(Equal("refreshed"))
}

func TestDryRun_UpToDateAndMissing(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ctx := context.Background()
	conn, err := newDepot().Connect(ctx)
	g.Expect(err).ToNot(HaveOccurred())

	current, err := backend.DryRun(ctx, conn, "/work/assets/tree/bark.png", false)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(current).To(HaveLen(1))
	g.Expect(current[0].IsMessage()).To(BeTrue())
	g.Expect(current[0].String()).To(ContainSubstring("up-to-date"))

	missing, err := backend.DryRun(ctx, conn, "/work/assets/rock/...", false)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(missing).To(BeEmpty())
}

func TestHaveRevisions_SkipsNeverSynced(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ctx := context.Background()
	conn, err := newDepot().Connect(ctx)
	g.Expect(err).ToNot(HaveOccurred())

	haves, err := backend.HaveRevisions(ctx, conn, "/work/assets/tree/...")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(haves).To(Equal(map[string]string{
		"/work/assets/tree/tree.ma":  "2",
		"/work/assets/tree/bark.png": "1",
	}))
}

func TestSyncFile_UpdatesHaveRevision(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ctx := context.Background()
	depot := newDepot()
	conn, err := depot.Connect(ctx)
	g.Expect(err).ToNot(HaveOccurred())

	result, err := backend.SyncFile(ctx, conn, "/work/assets/tree/tree.ma", false)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.Int(backend.FieldRev)).To(Equal(3))
	g.Expect(result.String()).To(Equal("//depot/assets/tree/tree.ma | 3"))
	g.Expect(depot.Have("/work/assets/tree/tree.ma")).To(Equal(3))
	g.Expect(depot.Commands()).To(ContainElement("sync /work/assets/tree/tree.ma#head"))
}

func TestClientRoot(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ctx := context.Background()
	conn, err := newDepot().Connect(ctx)
	g.Expect(err).ToNot(HaveOccurred())

	root, err := backend.ClientRoot(ctx, conn)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(root).To(Equal("/work"))
}
