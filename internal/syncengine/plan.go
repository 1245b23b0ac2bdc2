package syncengine

import (
	"context"
	"fmt"
	"path"
	"runtime/debug"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/joe/depot-sync/internal/backend"
	"github.com/joe/depot-sync/internal/entity"
	"github.com/joe/depot-sync/internal/metrics"
	"github.com/joe/depot-sync/internal/model"
	"github.com/joe/depot-sync/internal/roots"
	"github.com/joe/depot-sync/internal/schema"
	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

// planJob is one plan worker's input. Nothing in it is shared with other workers.
type planJob struct {
	gen    uint64
	worker string
	ref    entity.Ref
	root   roots.ResolvedRoot
	force  bool
}

func newWorkerID() string {
	return uuid.NewString()
}

// runPlan asks the backend what a sync of the job's root would do and streams
// the answer. It never panics or returns an error; GatheringComplete always fires.
func (e *Engine) runPlan(ctx context.Context, job planJob) {
	header := Header{job.gen}
	asset := job.root.AssetName
	logger := e.logger.With("worker", job.worker, "asset", asset, "path", job.root.Path, "generation", job.gen)
	done := metrics.WorkerStarted(metrics.PhasePlan)
	outcome := metrics.OutcomeError

	var finalErr error

	defer func() {
		if r := recover(); r != nil {
			finalErr = &syncerrors.UnexpectedError{
				Op:    "gather " + asset,
				Err:   fmt.Errorf("panic: %v", r), //nolint:err113 // Panic value
				Stack: string(debug.Stack()),
			}
			logger.Error("plan worker panicked", "error", finalErr)
			e.emitFailure(header, job, finalErr)
		}

		done(outcome)
		e.emit(GatheringComplete{Header: header, Worker: job.worker, AssetName: asset, Err: finalErr})
	}()

	if job.root.Err != nil {
		finalErr = job.root.Err
		logger.Warn("unresolved root", "error", finalErr)
		e.emitFailure(header, job, finalErr)

		return
	}

	e.emit(StatusUpdate{Header: header, Worker: job.worker, Message: "Requesting sync information for " + asset})

	callCtx, cancel := e.bounded(ctx)
	defer cancel()

	err := e.pool.WithConn(callCtx, func(conn backend.Conn) error {
		var err error

		outcome, err = e.gather(callCtx, conn, job)

		return err
	})
	if err != nil {
		outcome = metrics.OutcomeError
		finalErr = e.unexpected("gather "+asset, err)
		logger.Error("gather failed", "error", finalErr)
		e.emitFailure(header, job, finalErr)
	}
}

// gather runs the dry run and the have-revision query on one connection.
func (e *Engine) gather(ctx context.Context, conn backend.Conn, job planJob) (string, error) {
	header := Header{job.gen}
	root := job.root.Path
	asset := job.root.AssetName

	results, err := backend.DryRun(ctx, conn, root, job.force)
	if err != nil {
		return metrics.OutcomeError, err //nolint:wrapcheck // DryRun names the command
	}

	candidates := make([]backend.Result, 0, len(results))

	for _, result := range results {
		e.emit(BackendLog{Header: header, Worker: job.worker, Line: result.String()})

		if !result.IsMessage() {
			candidates = append(candidates, result)
		}
	}

	switch {
	case len(results) == 0:
		notInDepot := &syncerrors.NotInDepotError{Path: root}
		e.emit(ItemFound{
			Header: header, Worker: job.worker, AssetName: asset,
			Status: schema.StatusNotInDepot, Summary: schema.StatusNotInDepot, Detail: notInDepot.Error(),
		})

		return metrics.OutcomeNotInDepot, nil
	case len(candidates) == 0:
		e.emit(ItemFound{
			Header: header, Worker: job.worker, AssetName: asset,
			Status: schema.StatusSynced, Summary: schema.StatusSynced,
			Detail: fmt.Sprintf("Nothing new to sync for [%s]", root),
		})

		return metrics.OutcomeSynced, nil
	}

	haves, err := backend.HaveRevisions(ctx, conn, root)
	if err != nil {
		return metrics.OutcomeError, err //nolint:wrapcheck // HaveRevisions names the command
	}

	e.emitCandidates(job, candidates, haves)
	metrics.RecordCandidates(len(candidates))

	return metrics.OutcomeToSync, nil
}

// emitCandidates streams candidates in backend order, with progress every batch
// and once on the final item.
func (e *Engine) emitCandidates(job planJob, candidates []backend.Result, haves map[string]string) {
	header := Header{job.gen}
	total := len(candidates)
	summary := fmt.Sprintf("%d items to Sync", total)
	facets := mapset.NewThreadUnsafeSet[string]()

	e.emit(TotalItemsFound{Header: header, Worker: job.worker, Count: total})

	for i, result := range candidates {
		item := make(map[string]string, len(result.Fields)+1)
		for k, v := range result.Fields {
			item[k] = v
		}

		clientFile := item[backend.FieldClientFile]

		item[backend.FieldHaveRev] = "0"
		if have, ok := haves[clientFile]; ok {
			item[backend.FieldHaveRev] = have
		}

		name := clientFile
		if name == "" {
			name = item[backend.FieldDepotFile]
		}

		ext := strings.ToLower(path.Ext(strings.ReplaceAll(name, `\`, "/")))

		status := item[backend.FieldAction]
		if job.ref.ExactFile {
			status = schema.StatusExactFile
		}

		e.emit(ItemFound{
			Header: header, Worker: job.worker, AssetName: job.root.AssetName,
			Candidate: item, Ext: ext, Status: status, Summary: summary, Index: i, Detail: job.root.Path,
		})

		facetValues := map[string]string{model.KeyExt: ext, model.KeyStatus: status}
		for _, key := range e.opts.FacetKeys {
			value, ok := facetValues[key]
			if !ok {
				value = item[key]
			}

			if value != "" && facets.Add(key+"\x00"+value) {
				e.emit(FacetObserved{Header: header, Worker: job.worker, FilterType: key, Value: value})
			}
		}

		if (i+1)%e.opts.ProgressBatch == 0 || i == total-1 {
			e.emit(TotalItemsFound{Header: header, Worker: job.worker, Count: total, Seen: i + 1})
		}
	}
}

func (e *Engine) emitFailure(header Header, job planJob, err error) {
	enriched := e.enricher.Enrich(err, job.root.Path)
	e.emit(ItemFound{
		Header:    header,
		Worker:    job.worker,
		AssetName: job.root.AssetName,
		Status:    schema.StatusError,
		Summary:   schema.StatusError,
		Detail:    enriched.Error(),
		Err:       enriched,
	})
}

// unexpected keeps typed taxonomy errors and wraps everything else.
func (e *Engine) unexpected(op string, err error) error {
	switch err.(type) { //nolint:errorlint // Only the outermost type decides wrapping
	case *syncerrors.ConnectionError, *syncerrors.ResolutionError, *syncerrors.SyncExecutionError, *syncerrors.UnexpectedError:
		return err
	}

	return &syncerrors.UnexpectedError{Op: op, Err: err}
}
