package syncengine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/joe/depot-sync/internal/backend"
	"github.com/joe/depot-sync/internal/metrics"
	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

// Execute syncs every item of the plan. Each item gets exactly one SyncStarted
// and one SyncCompleted; failures never stop other items. It returns after
// ExecutionComplete has been emitted.
func (e *Engine) Execute(ctx context.Context, plan *ExecPlan) {
	header := Header{plan.Generation}
	batches := Batches(plan.Items, e.opts.Workers, e.opts.LargeFileThreshold)

	e.emit(ExecutionStarted{Header: header, Items: len(plan.Items), Batches: len(batches)})
	e.logger.Info("sync started", "generation", plan.Generation, "items", len(plan.Items),
		"batches", len(batches), "force", plan.Force)

	var synced, failed atomic.Int32

	group := new(errgroup.Group)
	group.SetLimit(e.opts.Workers)

	for _, batch := range batches {
		group.Go(func() error {
			ok, bad := e.runBatch(ctx, plan, batch)
			synced.Add(int32(ok))  //nolint:gosec // Bounded by item count
			failed.Add(int32(bad)) //nolint:gosec // Bounded by item count

			return nil
		})
	}

	_ = group.Wait()

	e.emit(ExecutionComplete{Header: header, Synced: int(synced.Load()), Failed: int(failed.Load())})
	e.logger.Info("sync complete", "generation", plan.Generation, "synced", synced.Load(), "failed", failed.Load())
}

// runBatch holds one connection for the whole batch.
func (e *Engine) runBatch(ctx context.Context, plan *ExecPlan, batch []ExecItem) (int, int) {
	done := metrics.WorkerStarted(metrics.PhaseSync)
	worker := newWorkerID()
	synced, failed := 0, 0
	next := 0

	err := e.pool.WithConn(ctx, func(conn backend.Conn) error {
		for ; next < len(batch); next++ {
			err := e.syncItem(ctx, conn, plan, worker, batch[next])
			if err == nil {
				synced++
				continue
			}

			failed++

			var connErr *syncerrors.ConnectionError
			if errors.As(err, &connErr) {
				next++
				return err
			}
		}

		return nil
	})
	if err != nil {
		// Items never attempted still owe their start and completion events.
		for ; next < len(batch); next++ {
			item := batch[next]
			e.emit(SyncStarted{Header: Header{plan.Generation}, RowID: item.RowID, Path: item.Path})
			e.completeWithError(plan, worker, item, err)

			failed++
		}
	}

	outcome := metrics.OutcomeSuccess
	if failed > 0 {
		outcome = metrics.OutcomeError
	}

	done(outcome)

	return synced, failed
}

// syncItem syncs one file and emits its start and completion.
func (e *Engine) syncItem(ctx context.Context, conn backend.Conn, plan *ExecPlan, worker string, item ExecItem) (err error) {
	header := Header{plan.Generation}
	e.emit(SyncStarted{Header: header, RowID: item.RowID, Path: item.Path})

	defer func() {
		if r := recover(); r != nil {
			err = &syncerrors.UnexpectedError{
				Op:    "sync " + item.Path,
				Err:   fmt.Errorf("panic: %v", r), //nolint:err113 // Panic value
				Stack: string(debug.Stack()),
			}
			e.completeWithError(plan, worker, item, err)
		}
	}()

	callCtx, cancel := e.bounded(ctx)
	defer cancel()

	result, err := backend.SyncFile(callCtx, conn, item.Path, plan.Force)
	if err != nil {
		var connErr *syncerrors.ConnectionError
		if !errors.As(err, &connErr) {
			err = &syncerrors.SyncExecutionError{Path: item.Path, Err: err}
		}

		e.completeWithError(plan, worker, item, err)

		return err
	}

	newRev := result.Get(backend.FieldRev)
	metrics.RecordFileSync(item.Size, true)
	e.logger.Debug("synced file", "worker", worker, "path", item.Path, "rev", newRev, "generation", plan.Generation)
	e.emit(SyncCompleted{Header: header, RowID: item.RowID, Path: item.Path, Size: item.Size, NewRev: newRev})

	return nil
}

func (e *Engine) completeWithError(plan *ExecPlan, worker string, item ExecItem, err error) {
	enriched := e.enricher.Enrich(err, item.Path)
	metrics.RecordFileSync(item.Size, false)
	e.logger.Error("sync failed", "worker", worker, "path", item.Path, "generation", plan.Generation, "error", err)
	e.emit(SyncCompleted{Header: Header{plan.Generation}, RowID: item.RowID, Path: item.Path, Size: item.Size, Err: enriched})
}
