package errors

import (
	"errors"
	"fmt"
)

// Exported variables.
var (
	ErrAmbiguousRoot = errors.New("multiple root paths")
	ErrNoRoot        = errors.New("no root path")
	ErrNoTemplate    = errors.New("no template specified")
	ErrNotFound      = errors.New("entity not found")
)

// ResolutionError means an entity or its root path could not be determined.
// It is recorded against the entity and never aborts the batch.
type ResolutionError struct {
	EntityType string
	EntityID   int
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %d: %v", e.EntityType, e.EntityID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// NotInDepotError means the backend has nothing matching a root path.
type NotInDepotError struct {
	Path string
}

func (e *NotInDepotError) Error() string {
	return fmt.Sprintf("Nothing in depot resolves [%s]", e.Path)
}

// SyncExecutionError means the authoritative sync of a single file failed.
type SyncExecutionError struct {
	Path string
	Err  error
}

func (e *SyncExecutionError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Path, e.Err)
}

func (e *SyncExecutionError) Unwrap() error { return e.Err }

// UnexpectedError wraps anything else caught at a worker boundary, including panics.
type UnexpectedError struct {
	Op    string
	Err   error
	Stack string
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("%s: unexpected error: %v", e.Op, e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// ConnectionError means the backend could not be reached at all. It is the only
// failure allowed to halt an operation.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not connect to depot server: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
