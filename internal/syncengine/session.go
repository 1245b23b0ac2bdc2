package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joe/depot-sync/internal/filters"
	"github.com/joe/depot-sync/internal/metrics"
	"github.com/joe/depot-sync/internal/model"
	"github.com/joe/depot-sync/internal/progress"
	"github.com/joe/depot-sync/internal/schema"
	"github.com/joe/depot-sync/internal/tracking"
)

// Progress queue ids.
const (
	QueueDiscovery = "discovery"
	QueueSync      = "sync"
	queuePlan      = "plan/"
)

// Exported constants.
const (
	// MaxLogLines bounds the retained backend log.
	MaxLogLines = 500
)

// Exported variables.
var (
	ErrBusy          = errors.New("a sync is already running")
	ErrNothingToSync = errors.New("nothing to sync")
)

// State is the session's coarse state.
type State int

// Session states.
const (
	StateIdle State = iota
	StateDisconnected
	StateDiscovering
	StateReady
	StateSyncing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDisconnected:
		return "could not connect"
	case StateDiscovering:
		return "discovering"
	case StateReady:
		return "ready"
	case StateSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// Runner is the part of Engine a Session drives.
type Runner interface {
	Connect(ctx context.Context) (string, error)
	Discover(ctx context.Context, gen uint64, selection []tracking.Link, force bool) error
	Execute(ctx context.Context, plan *ExecPlan)
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Selection []tracking.Link
	Force     bool
	// LogPath is shown in the could-not-connect state.
	LogPath string
	// OnRescan runs before every discovery, e.g. to purge tracker caches.
	OnRescan func()
}

// Session owns the tree. Every method except Events must be called from the one
// goroutine that consumes Events; workers only reach it through events.
type Session struct {
	runner   Runner
	emitter  *ChannelEmitter
	registry *schema.Registry
	filters  *filters.Engine
	progress *progress.Aggregator
	logger   *slog.Logger

	ctx    context.Context //nolint:containedctx // Session lifetime bounds every worker it starts
	cancel context.CancelFunc

	selection  []tracking.Link
	force      bool
	logPath    string
	onRescan   func()
	clientRoot string

	connErr     error
	discovering bool
	// executions counts Execute calls whose ExecutionComplete has not been
	// handled yet, whatever their generation.
	executions int
	generation uint64
	tree       *model.Tree
	units      int
	gathered   int
	execGen    uint64
	lastResult ExecutionComplete
	logs       []string
}

// NewSession creates a Session. The emitter must be the one the runner emits to.
func NewSession(
	runner Runner,
	emitter *ChannelEmitter,
	registry *schema.Registry,
	filterEngine *filters.Engine,
	agg *progress.Aggregator,
	logger *slog.Logger,
	opts SessionOptions,
) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		runner:    runner,
		emitter:   emitter,
		registry:  registry,
		filters:   filterEngine,
		progress:  agg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		selection: opts.Selection,
		force:     opts.Force,
		logPath:   opts.LogPath,
		onRescan:  opts.OnRescan,
		tree:      model.New(registry, 0),
	}
}

// Events returns the stream the consumer must feed back into Handle.
func (s *Session) Events() <-chan Event {
	return s.emitter.Events()
}

// Connect checks the backend. On failure the session enters StateDisconnected.
func (s *Session) Connect(ctx context.Context) error {
	root, err := s.runner.Connect(ctx)
	if err != nil {
		s.connErr = err
		s.logger.Error("could not connect", "error", err, "log", s.logPath)

		return err
	}

	s.clientRoot = root
	s.connErr = nil

	return nil
}

// Rescan discards the tree and starts discovery for a new generation. Workers of
// earlier generations keep running; their events are dropped on arrival.
func (s *Session) Rescan() uint64 {
	s.generation++
	gen := s.generation

	s.tree = model.New(s.registry, gen)
	s.units = 0
	s.gathered = 0
	s.discovering = true
	s.progress.Reset()
	s.progress.Track(QueueDiscovery, 0)

	if s.onRescan != nil {
		s.onRescan()
	}

	selection := append([]tracking.Link(nil), s.selection...)
	force := s.force

	go func() {
		err := s.runner.Discover(s.ctx, gen, selection, force)
		if err != nil {
			s.logger.Error("discovery failed", "generation", gen, "error", err)
		}
	}()

	return gen
}

// Go syncs every visible leaf of the current tree. It refuses while any earlier
// sync, including one started before a rescan, is still running.
func (s *Session) Go() (int, error) {
	if s.executions > 0 {
		return 0, ErrBusy
	}

	s.filters.Apply(s.tree)

	leaves := s.tree.VisibleLeaves()
	if len(leaves) == 0 {
		return 0, ErrNothingToSync
	}

	plan := &ExecPlan{Generation: s.generation, Force: s.force, Items: make([]ExecItem, 0, len(leaves))}
	for _, leaf := range leaves {
		plan.Items = append(plan.Items, ExecItem{RowID: leaf.ID(), Path: leaf.ClientFile(), Size: leaf.FileSize()})
	}

	s.execGen = plan.Generation
	s.executions++
	s.progress.Reset()
	s.progress.Track(QueueSync, len(plan.Items))

	go s.runner.Execute(s.ctx, plan)

	return len(plan.Items), nil
}

// Handle applies one event. It returns false for events of a replaced generation.
func (s *Session) Handle(event Event) bool {
	if _, ok := event.(ExecutionComplete); ok && s.executions > 0 {
		s.executions--
	}

	if event.Gen() != s.generation {
		metrics.RecordStaleEvent()
		s.logger.Debug("dropped stale event", "generation", event.Gen(), "current", s.generation)

		return false
	}

	switch ev := event.(type) {
	case DiscoveryStarted:
		s.units = ev.Units
		s.progress.SetTotal(QueueDiscovery, ev.Units)

		for _, failure := range ev.Failures {
			s.appendLog("skipped: " + failure.Error())
		}
	case DiscoveryFailed:
		s.discovering = false
		s.appendLog("discovery failed: " + ev.Err.Error())
	case PlanStarted:
	case StatusUpdate:
		s.appendLog(ev.Message)
	case BackendLog:
		s.appendLog(ev.Line)
	case TotalItemsFound:
		s.progress.SetTotal(queuePlan+ev.Worker, ev.Count)
		s.progress.SetCurrent(queuePlan+ev.Worker, ev.Seen)
	case ItemFound:
		s.addItem(ev)
	case FacetObserved:
		_, err := s.filters.Observe(ev.FilterType, ev.Value)
		if err != nil {
			s.logger.Warn("could not register filter value", "filter", ev.FilterType, "value", ev.Value, "error", err)
		}
	case GatheringComplete:
		s.gathered++
		s.progress.Iterate(QueueDiscovery, 1)
	case DiscoveryComplete:
		s.discovering = false
		s.filters.Apply(s.tree)
	case ExecutionStarted:
	case SyncStarted:
		if row, ok := s.tree.Row(ev.RowID); ok {
			row.MarkSyncing()
		}
	case SyncCompleted:
		s.completeRow(ev)
	case ExecutionComplete:
		s.lastResult = ev
		s.tree.Refresh()
	}

	return true
}

// Pump feeds events into Handle until stop returns true for a handled event or
// ctx is done.
func (s *Session) Pump(ctx context.Context, stop func(Event) bool) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("pump: %w", ctx.Err())
		case event := <-s.Events():
			if s.Handle(event) && stop != nil && stop(event) {
				return nil
			}
		}
	}
}

// Close stops in-flight workers and releases blocked senders.
func (s *Session) Close() {
	s.cancel()
	s.emitter.Close()
}

func (s *Session) addItem(ev ItemFound) {
	item := model.Item{
		AssetName: ev.AssetName,
		Candidate: ev.Candidate,
		Ext:       ev.Ext,
		Status:    ev.Status,
		Summary:   ev.Summary,
		Index:     ev.Index,
		Detail:    ev.Detail,
	}
	if ev.Err != nil {
		item.Err = ev.Err.Error()
	}

	asset, leaf := s.tree.AddRow(item)
	snapshot := s.filters.Snapshot()

	asset.SetVisible(s.filters.Visible(asset, snapshot))

	if leaf != nil {
		leaf.SetVisible(s.filters.Visible(leaf, snapshot))
	}
}

func (s *Session) completeRow(ev SyncCompleted) {
	s.progress.Iterate(QueueSync, 1)

	row, ok := s.tree.Row(ev.RowID)
	if !ok {
		return
	}

	if ev.Err != nil {
		row.MarkError(ev.Err.Error())
		return
	}

	row.MarkSynced(ev.NewRev)
}

func (s *Session) appendLog(line string) {
	s.logs = append(s.logs, line)
	if len(s.logs) > MaxLogLines {
		s.logs = s.logs[len(s.logs)-MaxLogLines:]
	}
}

// ToggleFilter persists a filter choice and re-applies visibility.
func (s *Session) ToggleFilter(filterType, value string, enabled bool) error {
	err := s.filters.Toggle(filterType, value, enabled)
	if err != nil {
		return err //nolint:wrapcheck // filters names the operation
	}

	s.filters.Apply(s.tree)

	return nil
}

// ResetFilters enables every filter value and re-applies visibility.
func (s *Session) ResetFilters() error {
	err := s.filters.Reset()
	if err != nil {
		return err //nolint:wrapcheck // filters names the operation
	}

	s.filters.Apply(s.tree)

	return nil
}

// SetHideSynced persists the toggle and re-applies visibility.
func (s *Session) SetHideSynced(hide bool) error {
	err := s.filters.SetHideSynced(hide)
	if err != nil {
		return err //nolint:wrapcheck // filters names the operation
	}

	s.filters.Apply(s.tree)

	return nil
}

// SetForce changes the force flag for the next discovery and sync.
func (s *Session) SetForce(force bool) { s.force = force }

// Force reports the force flag.
func (s *Session) Force() bool { return s.force }

// Filters returns the filter engine.
func (s *Session) Filters() *filters.Engine { return s.filters }

// Tree returns the current tree.
func (s *Session) Tree() *model.Tree { return s.tree }

// Generation returns the current generation.
func (s *Session) Generation() uint64 { return s.generation }

// State returns the coarse state.
func (s *Session) State() State {
	switch {
	case s.connErr != nil:
		return StateDisconnected
	case s.executions > 0:
		return StateSyncing
	case s.discovering:
		return StateDiscovering
	case s.generation == 0:
		return StateIdle
	default:
		return StateReady
	}
}

// ConnErr returns the last connection failure.
func (s *Session) ConnErr() error { return s.connErr }

// LogPath returns the log file location.
func (s *Session) LogPath() string { return s.logPath }

// ClientRoot returns the backend workspace root.
func (s *Session) ClientRoot() string { return s.clientRoot }

// Progress returns overall progress in 0..1.
func (s *Session) Progress() float64 { return s.progress.Progress() }

// Gathered returns finished and total plan workers of the current generation.
func (s *Session) Gathered() (int, int) { return s.gathered, s.units }

// LastResult returns the counts of the last finished sync of this generation.
func (s *Session) LastResult() ExecutionComplete { return s.lastResult }

// Logs returns the retained log lines, oldest first.
func (s *Session) Logs() []string { return append([]string(nil), s.logs...) }
