// Package localdepot is a backend that mirrors a depot directory into a workspace
// directory. Head revisions are derived from a have-list: a depot file whose size or
// modification time changed since it was last synced is one revision ahead.
package localdepot

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/joe/depot-sync/internal/backend"
	"github.com/joe/depot-sync/pkg/fileops"
	"github.com/joe/depot-sync/pkg/filesystem"
)

// Exported constants.
const (
	// DepotPrefix is the depot path of the depot directory root.
	DepotPrefix = "//depot"
)

const metaDirName = ".depot-sync"

// Connector opens connections to one depot directory and workspace.
// All connections share the workspace have-list.
type Connector struct {
	DepotDir     string
	WorkspaceDir string

	fs       filesystem.FileSystem
	ops      *fileops.Transfer
	manifest *manifest
}

// New creates a Connector over the real filesystem.
func New(depotDir, workspaceDir string) *Connector {
	fsys := filesystem.NewOS()

	return &Connector{
		DepotDir:     filepath.Clean(depotDir),
		WorkspaceDir: filepath.Clean(workspaceDir),
		fs:           fsys,
		ops:          fileops.New(fsys),
		manifest:     newManifest(filepath.Clean(workspaceDir)),
	}
}

// Connect checks that the depot directory is reachable.
func (c *Connector) Connect(_ context.Context) (backend.Conn, error) {
	info, err := c.fs.Stat(c.DepotDir)
	if err != nil {
		return nil, fmt.Errorf("depot %s unreachable: %w", c.DepotDir, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("depot %s is not a directory", c.DepotDir) //nolint:err113 // Configuration error
	}

	return &conn{connector: c}, nil
}

type depotFile struct {
	rel     string
	size    int64
	modTime time.Time
}

type conn struct {
	connector *Connector
}

func (c *conn) Close() error { return nil }

func (c *conn) Run(ctx context.Context, command string, args ...string) ([]backend.Result, error) {
	switch command {
	case backend.CmdInfo:
		return []backend.Result{backend.Tagged(map[string]string{
			backend.FieldClientRoot: c.connector.WorkspaceDir,
			"clientName":            "local",
			"serverAddress":         "local:" + c.connector.DepotDir,
		})}, nil
	case backend.CmdFstat:
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: missing file argument", command) //nolint:err113 // Usage error
		}

		return c.fstat(args[len(args)-1])
	case backend.CmdSync:
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: missing file argument", command) //nolint:err113 // Usage error
		}

		return c.sync(ctx, args)
	default:
		return nil, fmt.Errorf("unsupported command %q", command) //nolint:err113 // Usage error
	}
}

func (c *conn) fstat(spec string) ([]backend.Result, error) {
	files, err := c.match(spec)
	if err != nil {
		return nil, err
	}

	haves, err := c.connector.manifest.read()
	if err != nil {
		return nil, err
	}

	results := make([]backend.Result, 0, len(files))

	for _, f := range files {
		entry, synced := haves[f.rel]
		fields := c.fields(f)
		fields[backend.FieldHeadRev] = strconv.Itoa(headRev(f, entry, synced))

		if synced {
			fields[backend.FieldHaveRev] = strconv.Itoa(entry.Rev)
		}

		results = append(results, backend.Tagged(fields))
	}

	return results, nil
}

//nolint:funlen,cyclop // Plan, copy, and record are one sequence
func (c *conn) sync(ctx context.Context, args []string) ([]backend.Result, error) {
	var dryRun, force bool

	for _, arg := range args[:len(args)-1] {
		switch arg {
		case "-n":
			dryRun = true
		case "-f":
			force = true
		default:
			return nil, fmt.Errorf("sync: unsupported flag %q", arg) //nolint:err113 // Usage error
		}
	}

	spec := args[len(args)-1]

	files, err := c.match(spec)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, nil
	}

	haves, err := c.connector.manifest.read()
	if err != nil {
		return nil, err
	}

	var (
		results []backend.Result
		synced  = make(map[string]haveEntry)
	)

	for _, f := range files {
		entry, have := haves[f.rel]
		head := headRev(f, entry, have)

		action := ""

		switch {
		case !have:
			action = "added"
		case entry.Rev != head:
			action = "updated"
		case force:
			action = "refreshed"
		default:
			continue
		}

		if !dryRun {
			_, err := c.connector.ops.Put(ctx, c.depotPath(f.rel), c.clientPath(f.rel))
			if err != nil {
				return nil, err //nolint:wrapcheck // Put names the path
			}

			synced[f.rel] = haveEntry{Rev: head, Size: f.size, ModTime: f.modTime}
		}

		fields := c.fields(f)
		fields[backend.FieldRev] = strconv.Itoa(head)
		fields[backend.FieldAction] = action
		fields[backend.FieldChange] = strconv.Itoa(head)
		results = append(results, backend.Tagged(fields))
	}

	if len(synced) > 0 {
		err := c.connector.manifest.update(func(entries map[string]haveEntry) {
			for rel, entry := range synced {
				entries[rel] = entry
			}
		})
		if err != nil {
			return nil, err
		}
	}

	if len(results) == 0 {
		return []backend.Result{backend.Message(spec + " - file(s) up-to-date.")}, nil
	}

	return results, nil
}

func (c *conn) clientPath(rel string) string {
	return filepath.Join(c.connector.WorkspaceDir, filepath.FromSlash(rel))
}

func (c *conn) depotPath(rel string) string {
	return filepath.Join(c.connector.DepotDir, filepath.FromSlash(rel))
}

func (c *conn) fields(f depotFile) map[string]string {
	return map[string]string{
		backend.FieldDepotFile:  DepotPrefix + "/" + f.rel,
		backend.FieldClientFile: c.clientPath(f.rel),
		backend.FieldFileSize:   strconv.FormatInt(f.size, 10),
	}
}

// match returns the depot files a file spec names, in path order. Specs may be
// depot paths or workspace paths, use "..." as a recursive wildcard, and carry a
// "#rev" suffix that is ignored.
func (c *conn) match(spec string) ([]depotFile, error) {
	pattern, ok := c.relativePattern(spec)
	if !ok {
		return nil, nil
	}

	base, _ := doublestar.SplitPattern(pattern)

	walker := c.connector.fs.Walk(c.depotPath(base))

	var files []depotFile

	for entry, more := walker.Next(); more; entry, more = walker.Next() {
		if entry.Dir {
			continue
		}

		rel := path.Join(base, entry.Path)
		if strings.HasPrefix(rel, metaDirName+"/") {
			continue
		}

		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", spec, err)
		}

		if matched {
			files = append(files, depotFile{rel: rel, size: entry.Size, modTime: entry.ModTime})
		}
	}

	if err := walker.Err(); err != nil { //nolint:noinlineerr // Walker error check
		return nil, fmt.Errorf("scan depot for %s: %w", spec, err)
	}

	return files, nil
}

func (c *conn) relativePattern(spec string) (string, bool) {
	p, _, _ := strings.Cut(spec, "#")

	var rel string

	switch {
	case strings.HasPrefix(p, DepotPrefix+"/"):
		rel = strings.TrimPrefix(p, DepotPrefix+"/")
	default:
		workspace := filepath.ToSlash(c.connector.WorkspaceDir)
		clean := filepath.ToSlash(filepath.Clean(p))

		if strings.HasSuffix(p, "/...") {
			clean = filepath.ToSlash(filepath.Clean(strings.TrimSuffix(p, "/..."))) + "/..."
		}

		trimmed, ok := strings.CutPrefix(clean, workspace+"/")
		if !ok {
			return "", false
		}

		rel = trimmed
	}

	if rel == "" || rel == "..." {
		return "**", true
	}

	return strings.ReplaceAll(rel, "...", "**"), true
}

func headRev(f depotFile, entry haveEntry, synced bool) int {
	switch {
	case !synced:
		return 1
	case entry.Size == f.size && entry.ModTime.Equal(f.modTime):
		return entry.Rev
	default:
		return entry.Rev + 1
	}
}
