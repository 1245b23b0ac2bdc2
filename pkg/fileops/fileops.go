// Package fileops writes depot revisions into the workspace for the local depot backend.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/joe/depot-sync/pkg/filesystem"
)

// Exported constants.
const (
	// BufferSize is the copy buffer size (32KB).
	BufferSize = 32 * 1024
	// DirPermissions is the mode of created workspace directories.
	DirPermissions = 0o750
)

// Exported variables.
var (
	ErrTransferCancelled = errors.New("transfer cancelled")
)

// Transfer copies files over an injected filesystem.
type Transfer struct {
	FS filesystem.FileSystem
}

// New creates a Transfer over fsys.
func New(fsys filesystem.FileSystem) *Transfer {
	return &Transfer{FS: fsys}
}

// NewOS creates a Transfer over the host filesystem.
func NewOS() *Transfer {
	return New(filesystem.NewOS())
}

// Put copies src onto dst and returns the bytes written. The data is written to
// a temporary file beside dst and renamed into place, so dst always holds either
// the previous or the new content. dst takes src's modification time.
func (t *Transfer) Put(ctx context.Context, src, dst string) (int64, error) {
	source, err := t.FS.Open(src)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", dst, err)
	}

	defer func() { _ = source.Close() }()

	info, err := source.Stat()
	if err != nil {
		return 0, fmt.Errorf("put %s: stat source: %w", dst, err)
	}

	dir := filepath.Dir(dst)

	err = t.FS.MkdirAll(dir, DirPermissions)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", dst, err)
	}

	tmp, err := t.FS.CreateTemp(dir)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", dst, err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = t.FS.Remove(tmp.Name())
		}
	}()

	written, err := io.CopyBuffer(tmp, &ctxReader{ctx: ctx, r: source}, make([]byte, BufferSize))
	if err != nil {
		return written, fmt.Errorf("put %s: %w", dst, err)
	}

	// Close before stamping; some network filesystems reset the time on close.
	err = tmp.Close()
	if err != nil {
		return written, fmt.Errorf("put %s: close: %w", dst, err)
	}

	err = t.FS.Replace(tmp.Name(), dst, info.ModTime())
	if err != nil {
		_ = t.FS.Remove(tmp.Name())
		committed = true

		return written, fmt.Errorf("put %s: %w", dst, err)
	}

	committed = true

	return written, nil
}

// ctxReader stops a copy between reads once ctx is done.
type ctxReader struct {
	ctx context.Context //nolint:containedctx // Bound to one copy
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if c.ctx.Err() != nil {
		return 0, ErrTransferCancelled
	}

	return c.r.Read(p) //nolint:wrapcheck // io.Reader passthrough
}
