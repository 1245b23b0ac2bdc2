// Package entity turns a selection of tracking entities into the deduplicated set
// of top-level sync units.
package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/joe/depot-sync/internal/tracking"
	syncerrors "github.com/joe/depot-sync/pkg/errors"
)

// Entity types with special handling.
const (
	TypeAsset         = "Asset"
	TypePublishedFile = "PublishedFile"
	TypeSequence      = "Sequence"
	TypeShot          = "Shot"
	TypeTask          = "Task"
)

// Exported constants.
const (
	DefaultParentField  = "sg_asset_parent"
	DefaultEnvAssetType = "CustomEntity01"
)

// Exported variables.
var (
	ErrNoUser = errors.New("no user to find tasks for")
	//nolint:gochecknoglobals // Fixed status list for the task fallback
	DefaultTaskStatuses = []string{"rdy", "ip"}
)

// Ref is one sync unit.
type Ref struct {
	Type string
	ID   int
	Code string
	// ExactFile units sync one published file instead of a tree.
	ExactFile bool
	PathCache string
}

// Key is the dedup identity.
func (r Ref) Key() string {
	return r.Type + "_" + strconv.Itoa(r.ID)
}

// Link returns a tracking link to the unit.
func (r Ref) Link() tracking.Link {
	return tracking.Link{Type: r.Type, ID: r.ID, Name: r.Code}
}

func (r Ref) String() string {
	if r.Code != "" {
		return fmt.Sprintf("%s %d (%s)", r.Type, r.ID, r.Code)
	}

	return fmt.Sprintf("%s %d", r.Type, r.ID)
}

// Batch is the resolver output.
type Batch struct {
	Refs []Ref
	// SpecificFiles is set when any unit is an exact published file.
	SpecificFiles bool
	// Failures holds per-entity lookup errors; the entities were skipped.
	Failures []error
}

// Options tunes resolution.
type Options struct {
	ParentField        string
	EnvAssetType       string
	ExpandLinkedAssets bool
	// User and Project drive the task fallback when nothing is selected.
	User         *tracking.Link
	Project      *tracking.Link
	TaskStatuses []string
}

// DefaultOptions returns the standard field names with linked-asset expansion on.
func DefaultOptions() Options {
	return Options{
		ParentField:        DefaultParentField,
		EnvAssetType:       DefaultEnvAssetType,
		ExpandLinkedAssets: true,
		TaskStatuses:       DefaultTaskStatuses,
	}
}

// Resolver maps selections to sync units.
type Resolver struct {
	tracker tracking.Tracker
	opts    Options
	logger  *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(tracker tracking.Tracker, opts Options, logger *slog.Logger) *Resolver {
	if opts.ParentField == "" {
		opts.ParentField = DefaultParentField
	}

	if opts.TaskStatuses == nil {
		opts.TaskStatuses = DefaultTaskStatuses
	}

	return &Resolver{tracker: tracker, opts: opts, logger: logger}
}

// resolution is the per-call accumulator.
type resolution struct {
	batch *Batch
	seen  mapset.Set[string]
}

func (res *resolution) add(ref Ref) {
	if !res.seen.Add(ref.Key()) {
		return
	}

	res.batch.Refs = append(res.batch.Refs, ref)
	if ref.ExactFile {
		res.batch.SpecificFiles = true
	}
}

func (res *resolution) fail(link tracking.Link, err error) {
	res.batch.Failures = append(res.batch.Failures, &syncerrors.ResolutionError{
		EntityType: link.Type,
		EntityID:   link.ID,
		Err:        err,
	})
}

// Resolve maps the selection to sync units. An empty selection falls back to the
// current user's open tasks in the current project. Per-entity failures are
// collected on the batch; only the fallback query or cancellation returns an error.
func (r *Resolver) Resolve(ctx context.Context, selection []tracking.Link) (*Batch, error) {
	res := &resolution{batch: &Batch{}, seen: mapset.NewThreadUnsafeSet[string]()}

	if len(selection) == 0 {
		tasks, err := r.userTasks(ctx)
		if err != nil {
			return nil, err
		}

		selection = tasks
	}

	for _, link := range selection {
		err := ctx.Err()
		if err != nil {
			return nil, fmt.Errorf("resolve entities: %w", err)
		}

		switch link.Type {
		case TypeTask:
			r.addTask(ctx, res, link)
		case TypePublishedFile:
			r.addPublishedFile(ctx, res, link)
		case TypeSequence:
			r.addPromoted(ctx, res, link)
			r.expandAssets(ctx, res, link, "assets")
		default:
			if r.promotable(link.Type) {
				r.addPromoted(ctx, res, link)
				continue
			}

			res.add(Ref{Type: link.Type, ID: link.ID, Code: link.Name})
		}
	}

	for _, failure := range res.batch.Failures {
		r.logger.Warn("skipped entity", "error", failure)
	}

	r.logger.Debug("resolved entities", "selected", len(selection), "units", len(res.batch.Refs),
		"specific_files", res.batch.SpecificFiles)

	return res.batch, nil
}

func (r *Resolver) promotable(entityType string) bool {
	switch entityType {
	case TypeAsset, TypeShot, TypeSequence:
		return true
	default:
		return entityType == r.opts.EnvAssetType && entityType != ""
	}
}

func (r *Resolver) userTasks(ctx context.Context) ([]tracking.Link, error) {
	if r.opts.User == nil {
		return nil, ErrNoUser
	}

	filters := []tracking.Filter{
		tracking.Is("task_assignees", *r.opts.User),
		tracking.In("sg_status_list", r.opts.TaskStatuses...),
	}
	if r.opts.Project != nil {
		filters = append(filters, tracking.Is("project", *r.opts.Project))
	}

	tasks, err := r.tracker.Find(ctx, TypeTask, filters, []string{"entity", "sg_status_list"})
	if err != nil {
		return nil, fmt.Errorf("find tasks for user %d: %w", r.opts.User.ID, err)
	}

	links := make([]tracking.Link, 0, len(tasks))
	for _, task := range tasks {
		links = append(links, task.Self())
	}

	return links, nil
}

func (r *Resolver) addTask(ctx context.Context, res *resolution, task tracking.Link) {
	rec, err := r.tracker.FindOne(ctx, TypeTask, []tracking.Filter{tracking.Is("id", task.ID)}, []string{"entity"})
	if err != nil {
		res.fail(task, err)
		return
	}

	linked, ok := rec.Link("entity")
	if !ok || !r.promotable(linked.Type) {
		return
	}

	r.addPromoted(ctx, res, linked)

	switch linked.Type {
	case TypeShot:
		r.expandAssets(ctx, res, linked, "sg_sequence.Sequence.assets")
	case TypeSequence:
		r.expandAssets(ctx, res, linked, "assets")
	}
}

func (r *Resolver) addPublishedFile(ctx context.Context, res *resolution, link tracking.Link) {
	rec, err := r.tracker.FindOne(ctx, TypePublishedFile, []tracking.Filter{tracking.Is("id", link.ID)},
		[]string{"entity", "path_cache", "path", "code"})
	if err != nil {
		res.fail(link, err)
		return
	}

	res.add(Ref{
		Type:      TypePublishedFile,
		ID:        link.ID,
		Code:      rec.String("code"),
		ExactFile: true,
		PathCache: rec.String("path_cache"),
	})
}

// addPromoted adds the entity, or its parent when it has one.
func (r *Resolver) addPromoted(ctx context.Context, res *resolution, link tracking.Link) {
	ref, err := r.promote(ctx, link)
	if err != nil {
		res.fail(link, err)
		return
	}

	res.add(ref)
}

func (r *Resolver) promote(ctx context.Context, link tracking.Link) (Ref, error) {
	rec, err := r.tracker.FindOne(ctx, link.Type, []tracking.Filter{tracking.Is("id", link.ID)},
		[]string{r.opts.ParentField, "code"})
	if err != nil {
		return Ref{}, err //nolint:wrapcheck // wrapped in ResolutionError by the caller
	}

	if parent, ok := rec.Link(r.opts.ParentField); ok {
		return Ref{Type: parent.Type, ID: parent.ID, Code: parent.Name}, nil
	}

	return Ref{Type: link.Type, ID: link.ID, Code: rec.String("code")}, nil
}

// expandAssets adds the promoted assets reachable through field.
func (r *Resolver) expandAssets(ctx context.Context, res *resolution, link tracking.Link, field string) {
	if !r.opts.ExpandLinkedAssets {
		return
	}

	rec, err := r.tracker.FindOne(ctx, link.Type, []tracking.Filter{tracking.Is("id", link.ID)}, []string{field})
	if err != nil {
		res.fail(link, err)
		return
	}

	for _, asset := range rec.Links(field) {
		r.addPromoted(ctx, res, asset)
	}
}
