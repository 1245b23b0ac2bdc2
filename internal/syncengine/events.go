package syncengine

// Event is the interface implemented by all sync engine events. Every event
// carries the discovery generation it belongs to.
type Event interface {
	isEvent()
	Gen() uint64
}

// EventEmitter is the interface for emitting events.
type EventEmitter interface {
	Emit(event Event)
}

// Header is embedded in every event.
type Header struct {
	Generation uint64
}

// Gen returns the event's generation.
func (h Header) Gen() uint64 { return h.Generation }

// Discovery phase events

// DiscoveryStarted is emitted once the selection is resolved, before any worker runs.
type DiscoveryStarted struct {
	Header
	Units    int
	Failures []error
}

func (DiscoveryStarted) isEvent() {}

// DiscoveryFailed is emitted when the selection itself could not be resolved.
type DiscoveryFailed struct {
	Header
	Err error
}

func (DiscoveryFailed) isEvent() {}

// PlanStarted is emitted when a plan worker begins.
type PlanStarted struct {
	Header
	Worker string
	Unit   string
}

func (PlanStarted) isEvent() {}

// StatusUpdate is a human-readable progress line from a worker.
type StatusUpdate struct {
	Header
	Worker  string
	Message string
}

func (StatusUpdate) isEvent() {}

// BackendLog carries one raw dry-run record for a log pane.
type BackendLog struct {
	Header
	Worker string
	Line   string
}

func (BackendLog) isEvent() {}

// TotalItemsFound reports a worker's candidate count and how many it has emitted.
// It fires once before the first item, then every progress batch and on the last item.
type TotalItemsFound struct {
	Header
	Worker string
	Count  int
	Seen   int
}

func (TotalItemsFound) isEvent() {}

// ItemFound is one discovery result. Candidate is nil for the terminal result of
// an asset with nothing to list (up to date, not in depot, or failed).
type ItemFound struct {
	Header
	Worker    string
	AssetName string
	Candidate map[string]string
	Ext       string
	// Status is the leaf action, or the terminal status when Candidate is nil.
	Status string
	// Summary is the asset-level classification.
	Summary string
	Index   int
	Detail  string
	Err     error
}

func (ItemFound) isEvent() {}

// FacetObserved announces a filter value, once per distinct value per worker.
type FacetObserved struct {
	Header
	Worker     string
	FilterType string
	Value      string
}

func (FacetObserved) isEvent() {}

// GatheringComplete fires exactly once per plan worker, success or failure.
type GatheringComplete struct {
	Header
	Worker    string
	AssetName string
	Err       error
}

func (GatheringComplete) isEvent() {}

// DiscoveryComplete fires after every plan worker of the generation has completed.
type DiscoveryComplete struct {
	Header
	Workers int
}

func (DiscoveryComplete) isEvent() {}

// Sync phase events

// ExecutionStarted is emitted when sync workers are dispatched.
type ExecutionStarted struct {
	Header
	Items   int
	Batches int
}

func (ExecutionStarted) isEvent() {}

// SyncStarted is emitted when a file sync begins.
type SyncStarted struct {
	Header
	RowID string
	Path  string
}

func (SyncStarted) isEvent() {}

// SyncCompleted fires exactly once per dispatched row, success or failure.
type SyncCompleted struct {
	Header
	RowID  string
	Path   string
	Size   int64
	NewRev string
	Err    error
}

func (SyncCompleted) isEvent() {}

// ExecutionComplete fires after every sync worker has finished.
type ExecutionComplete struct {
	Header
	Synced int
	Failed int
}

func (ExecutionComplete) isEvent() {}
