package syncengine

// ExecItem is one row to sync.
type ExecItem struct {
	RowID string
	Path  string
	Size  int64
}

// ExecPlan is the per-run context handed to sync workers. It is built by the
// session at "go" time and never shared between runs.
type ExecPlan struct {
	Generation uint64
	Force      bool
	Items      []ExecItem
}

// Batches groups items for sync workers. Files larger than threshold get a batch
// of their own. The rest are split into at most parallelism batches of near-equal
// size, keeping their order.
func Batches(items []ExecItem, parallelism int, threshold int64) [][]ExecItem {
	parallelism = max(1, parallelism)

	var (
		batches [][]ExecItem
		small   []ExecItem
	)

	for _, item := range items {
		if threshold > 0 && item.Size > threshold {
			batches = append(batches, []ExecItem{item})
			continue
		}

		small = append(small, item)
	}

	if len(small) == 0 {
		return batches
	}

	size := (len(small) + parallelism - 1) / parallelism
	for start := 0; start < len(small); start += size {
		end := min(start+size, len(small))
		batches = append(batches, small[start:end:end])
	}

	return batches
}
