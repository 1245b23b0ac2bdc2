// Package syncengine discovers what needs syncing for a selection of entities and
// performs the sync, streaming every result as an event to a single consumer.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"golang.org/x/sync/errgroup"

	"github.com/joe/depot-sync/internal/backend"
	"github.com/joe/depot-sync/internal/entity"
	"github.com/joe/depot-sync/internal/roots"
	"github.com/joe/depot-sync/internal/tracking"
	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

// Exported constants.
const (
	// DefaultWorkerCap bounds the worker pool regardless of host size.
	DefaultWorkerCap = 23
	// DefaultProgressBatch is how many items a plan worker emits between progress events.
	DefaultProgressBatch = 50
	// DefaultLargeFileThreshold is the size above which a file is synced by its own worker.
	DefaultLargeFileThreshold = 500 * 1024 * 1024
)

// Exported variables.
var (
	ErrNotConnected = errors.New("not connected")
)

// Options tunes the engine.
type Options struct {
	// Workers bounds concurrent workers. Zero means Workers(DefaultWorkerCap).
	Workers            int
	ProgressBatch      int
	LargeFileThreshold int64
	// FacetKeys are the filter types announced through FacetObserved.
	FacetKeys []string
	// BackendTimeout bounds each plan query and each file sync. Zero means unbounded.
	BackendTimeout time.Duration
}

// Workers returns min(limit, host CPU count).
func Workers(limit int) int {
	count, err := cpu.Counts(true)
	if err != nil || count <= 0 {
		count = runtime.NumCPU()
	}

	return max(1, min(limit, count))
}

// Engine dispatches plan and sync workers on a bounded pool.
type Engine struct {
	pool     *backend.Pool
	entities *entity.Resolver
	roots    *roots.Resolver
	emitter  EventEmitter
	enricher syncerrors.Enricher
	logger   *slog.Logger
	opts     Options
}

// NewEngine creates an Engine. The pool should allow at least opts.Workers connections.
func NewEngine(
	pool *backend.Pool,
	entities *entity.Resolver,
	rootResolver *roots.Resolver,
	emitter EventEmitter,
	logger *slog.Logger,
	opts Options,
) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = Workers(DefaultWorkerCap)
	}

	if opts.ProgressBatch <= 0 {
		opts.ProgressBatch = DefaultProgressBatch
	}

	if opts.LargeFileThreshold <= 0 {
		opts.LargeFileThreshold = DefaultLargeFileThreshold
	}

	return &Engine{
		pool:     pool,
		entities: entities,
		roots:    rootResolver,
		emitter:  emitter,
		enricher: syncerrors.NewEnricher(),
		logger:   logger,
		opts:     opts,
	}
}

// WorkerCount returns the pool bound.
func (e *Engine) WorkerCount() int {
	return e.opts.Workers
}

// Connect checks the backend once and records its client root for root resolution.
func (e *Engine) Connect(ctx context.Context) (string, error) {
	var clientRoot string

	err := e.pool.WithConn(ctx, func(conn backend.Conn) error {
		root, err := backend.ClientRoot(ctx, conn)
		if err != nil {
			return &syncerrors.ConnectionError{Err: err}
		}

		clientRoot = root

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}

	e.roots.SetClientRoot(clientRoot)
	e.logger.Info("connected", "client_root", clientRoot, "workers", e.opts.Workers)

	return clientRoot, nil
}

// bounded applies BackendTimeout to one backend call.
func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.BackendTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, e.opts.BackendTimeout)
}

func (e *Engine) emit(event Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}

// Discover resolves the selection and runs one plan worker per unit. It returns
// after every worker has finished and DiscoveryComplete has been emitted. Worker
// failures become events; only a failure to resolve the selection is returned.
func (e *Engine) Discover(ctx context.Context, gen uint64, selection []tracking.Link, force bool) error {
	batch, err := e.entities.Resolve(ctx, selection)
	if err != nil {
		e.emit(DiscoveryFailed{Header: Header{gen}, Err: err})
		return fmt.Errorf("discover: %w", err)
	}

	e.emit(DiscoveryStarted{Header: Header{gen}, Units: len(batch.Refs), Failures: batch.Failures})
	e.logger.Info("discovery started", "generation", gen, "units", len(batch.Refs), "force", force)

	group := new(errgroup.Group)
	group.SetLimit(e.opts.Workers)

	for _, ref := range batch.Refs {
		group.Go(func() error {
			job := planJob{gen: gen, worker: newWorkerID(), ref: ref, force: force}
			e.emit(PlanStarted{Header: Header{gen}, Worker: job.worker, Unit: ref.String()})

			job.root = e.roots.Resolve(ctx, ref)
			e.runPlan(ctx, job)

			return nil
		})
	}

	_ = group.Wait()

	e.emit(DiscoveryComplete{Header: Header{gen}, Workers: len(batch.Refs)})
	e.logger.Info("discovery complete", "generation", gen, "units", len(batch.Refs))

	return nil
}
