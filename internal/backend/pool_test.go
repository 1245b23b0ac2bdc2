package backend_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/joe/depot-sync/internal/backend"
	"github.com/joe/depot-sync/internal/backend/backendtest"
	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

func TestNewPool_RejectsNonPositiveSize(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	_, err := backend.NewPool(backendtest.NewDepot("/work"), 0)
	g.Expect(err).To(HaveOccurred())
}

func TestPool_CreatesLazilyAndReuses(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	depot := backendtest.NewDepot("/work")
	pool, err := backend.NewPool(depot, 3)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(depot.Connects()).To(Equal(0))

	ctx := context.Background()
	conn, err := pool.Acquire(ctx)
	g.Expect(err).ToNot(HaveOccurred())
	pool.Release(conn)

	again, err := pool.Acquire(ctx)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(again).To(BeIdenticalTo(conn))
	g.Expect(depot.Connects()).To(Equal(1))
	g.Expect(pool.Size()).To(Equal(1))
}

func TestPool_BoundsLiveConnections(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	depot := backendtest.NewDepot("/work")
	pool, err := backend.NewPool(depot, 2)
	g.Expect(err).ToNot(HaveOccurred())

	var (
		inFlight, peak int32
		wg             sync.WaitGroup
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = pool.WithConn(context.Background(), func(backend.Conn) error {
				now := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
						break
					}
				}

				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)

				return nil
			})
		}()
	}

	wg.Wait()

	g.Expect(atomic.LoadInt32(&peak)).To(BeNumerically("<=", 2))
	g.Expect(depot.Connects()).To(BeNumerically("<=", 2))
}

func TestPool_AcquireHonorsContext(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	pool, err := backend.NewPool(backendtest.NewDepot("/work"), 1)
	g.Expect(err).ToNot(HaveOccurred())

	held, err := pool.Acquire(context.Background())
	g.Expect(err).ToNot(HaveOccurred())

	defer pool.Release(held)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = pool.Acquire(ctx)
	g.Expect(err).To(MatchError(context.DeadlineExceeded))
}

func TestPool_ConnectFailureIsConnectionError(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	depot := backendtest.NewDepot("/work")
	depot.FailConnect(errors.New("Connect to server failed; check $P4PORT."))

	pool, err := backend.NewPool(depot, 1)
	g.Expect(err).ToNot(HaveOccurred())

	_, err = pool.Acquire(context.Background())

	var connErr *syncerrors.ConnectionError
	g.Expect(errors.As(err, &connErr)).To(BeTrue())
	g.Expect(pool.Size()).To(Equal(0))
}

func TestPool_CloseRejectsAcquireAndClosesReleased(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	pool, err := backend.NewPool(backendtest.NewDepot("/work"), 2)
	g.Expect(err).ToNot(HaveOccurred())

	ctx := context.Background()
	idle, err := pool.Acquire(ctx)
	g.Expect(err).ToNot(HaveOccurred())
	busy, err := pool.Acquire(ctx)
	g.Expect(err).ToNot(HaveOccurred())
	pool.Release(idle)

	g.Expect(pool.Close()).To(Succeed())
	g.Expect(pool.Close()).To(Succeed())
	g.Expect(pool.Size()).To(Equal(1))

	pool.Release(busy)
	g.Expect(pool.Size()).To(Equal(0))

	_, err = busy.Run(ctx, backend.CmdInfo)
	g.Expect(err).To(HaveOccurred())

	_, err = pool.Acquire(ctx)
	g.Expect(err).To(MatchError(backend.ErrPoolClosed))
}

func TestPool_PanicInWithConnFreesSlot(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	depot := backendtest.NewDepot("/work")
	pool, err := backend.NewPool(depot, 1)
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(func() {
		_ = pool.WithConn(context.Background(), func(backend.Conn) error {
			panic("boom")
		})
	}).To(PanicWith("boom"))
	g.Expect(pool.Size()).To(Equal(0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	g.Expect(pool.WithConn(ctx, func(backend.Conn) error { return nil })).To(Succeed())
	g.Expect(depot.Connects()).To(Equal(2))
}
