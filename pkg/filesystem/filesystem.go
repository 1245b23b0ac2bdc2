// Package filesystem is the disk access of the local depot backend. It sits
// behind an interface so the backend can run against real or temporary trees.
package filesystem

import (
	"fmt"
	"io"
	"os"
	"time"
)

// TempPrefix marks in-flight files written beside their destination.
const TempPrefix = ".depot-sync-"

// File is an open file.
type File interface {
	io.Reader
	io.Writer
	io.Closer
	Name() string
	Stat() (os.FileInfo, error)
}

// FileSystem is what the local backend needs from the disk.
type FileSystem interface {
	// Walk lists every entry below root, depth first. A missing root lists nothing.
	Walk(root string) Walker
	Stat(path string) (os.FileInfo, error)
	Open(path string) (File, error)
	MkdirAll(path string, perm os.FileMode) error
	// CreateTemp creates an empty hidden file in dir.
	CreateTemp(dir string) (File, error)
	// Replace renames tmp onto path after stamping it with modTime.
	Replace(tmp, path string, modTime time.Time) error
	Remove(path string) error
}

// OS implements FileSystem on the host filesystem.
type OS struct{}

// NewOS returns the host filesystem.
func NewOS() OS {
	return OS{}
}

// CreateTemp implements FileSystem.
func (OS) CreateTemp(dir string) (File, error) {
	file, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create temp file in %s: %w", dir, err)
	}

	return file, nil
}

// MkdirAll implements FileSystem.
func (OS) MkdirAll(path string, perm os.FileMode) error {
	err := os.MkdirAll(path, perm)
	if err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}

	return nil
}

// Open implements FileSystem.
func (OS) Open(path string) (File, error) {
	file, err := os.Open(path) // #nosec G304 - path is resolved from the depot mapping
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return file, nil
}

// Remove implements FileSystem.
func (OS) Remove(path string) error {
	err := os.Remove(path)
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	return nil
}

// Replace implements FileSystem.
func (OS) Replace(tmp, path string, modTime time.Time) error {
	err := os.Chtimes(tmp, modTime, modTime)
	if err != nil {
		return fmt.Errorf("stamp %s: %w", tmp, err)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}

// Stat implements FileSystem.
func (OS) Stat(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return info, nil
}

// Walk implements FileSystem.
func (OS) Walk(root string) Walker {
	return newKrWalker(root)
}
