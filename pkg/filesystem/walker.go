package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kr/fs"
)

// Entry is one file or directory found by a Walker.
type Entry struct {
	// Path is slash-separated and relative to the walk root.
	Path    string
	Size    int64
	ModTime time.Time
	Dir     bool
}

// Walker iterates a directory tree. After Next returns false, Err tells an
// exhausted walk from a failed one.
type Walker interface {
	Next() (Entry, bool)
	Err() error
}

type krWalker struct {
	root   string
	walker *fs.Walker
	err    error
}

func newKrWalker(root string) *krWalker {
	return &krWalker{root: root, walker: fs.Walk(root)}
}

func (w *krWalker) Err() error {
	return w.err
}

func (w *krWalker) Next() (Entry, bool) {
	if w.err != nil {
		return Entry{}, false
	}

	for w.walker.Step() {
		if err := w.walker.Err(); err != nil { //nolint:noinlineerr // Walker error is per-step
			if errors.Is(err, os.ErrNotExist) && w.walker.Path() == w.root {
				return Entry{}, false
			}

			w.err = fmt.Errorf("walk %s: %w", w.walker.Path(), err)

			return Entry{}, false
		}

		rel, err := filepath.Rel(w.root, w.walker.Path())
		if err != nil {
			w.err = fmt.Errorf("walk %s: %w", w.walker.Path(), err)
			return Entry{}, false
		}

		if rel == "." {
			continue
		}

		info := w.walker.Stat()

		return Entry{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Dir:     info.IsDir(),
		}, true
	}

	return Entry{}, false
}
