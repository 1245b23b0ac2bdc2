package schema

import (
	"fmt"
	"path"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Status values shared by the engine, the model, and the transforms.
const (
	StatusError      = "Error"
	StatusExactFile  = "Exact File"
	StatusNotInDepot = "Not In Depot"
	StatusSynced     = "Synced"
	StatusSyncing    = "Syncing..."
	StatusUpToDate   = "Up to date"
)

// RowState is what transforms may read from a row.
type RowState interface {
	Field(key string) any
	Syncing() bool
	Synced() bool
	Err() string
	NewRevision() string
	ChildCount() int
	VisibleChildCount() int
}

// Transform renders one raw value for display.
type Transform func(row RowState, value any) string

// Transforms maps transform names to functions.
type Transforms map[string]Transform

// DefaultTransforms returns the transforms the embedded schemas use.
func DefaultTransforms() Transforms {
	return Transforms{
		"asset_name":       assetName,
		"destination_path": destinationPath,
		"detail":           detail,
		"file_size":        fileSize,
		"revision":         revision,
		"sync_item":        syncItem,
		"sync_status":      syncStatus,
		"total_to_sync":    totalToSync,
	}
}

func assetName(row RowState, value any) string {
	name := fmt.Sprint(value)
	if count := row.ChildCount(); count > 0 {
		return fmt.Sprintf("%s (%d)", name, count)
	}

	return name
}

func destinationPath(_ RowState, value any) string {
	return fields(value)["clientFile"]
}

func detail(_ RowState, value any) string {
	if m, ok := value.(map[string]string); ok {
		return m["detail"]
	}

	return fmt.Sprint(value)
}

func fileSize(_ RowState, value any) string {
	size, err := strconv.ParseUint(fields(value)["fileSize"], 10, 64)
	if err != nil {
		return ""
	}

	return humanize.Bytes(size)
}

func revision(row RowState, value any) string {
	item := fields(value)

	have := item["haveRev"]
	if have == "" {
		have = "0"
	}

	if row.Synced() && row.NewRevision() != "" {
		have = row.NewRevision()
	}

	head := item["rev"]
	if head == "" {
		head = "0"
	}

	return have + "/" + head
}

func syncItem(_ RowState, value any) string {
	depotFile := fields(value)["depotFile"]
	if depotFile == "" {
		return ""
	}

	return path.Base(depotFile)
}

func syncStatus(row RowState, value any) string {
	switch {
	case row.Err() != "":
		return row.Err()
	case row.Syncing():
		return StatusSyncing
	case row.Synced():
		return StatusSynced
	default:
		return fmt.Sprint(value)
	}
}

func totalToSync(row RowState, value any) string {
	status := fmt.Sprint(value)
	if status == StatusError {
		return status
	}

	items := row.ChildCount()
	if items == 0 {
		return StatusUpToDate
	}

	filtered := items - row.VisibleChildCount()

	msg := fmt.Sprintf("%d To Sync", items-filtered)
	if filtered > 0 {
		msg += fmt.Sprintf(" (%d filtered)", filtered)
	}

	return msg
}

func fields(value any) map[string]string {
	m, _ := value.(map[string]string)
	return m
}
