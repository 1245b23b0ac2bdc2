// Package backendtest provides an in-memory scripted depot for tests.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/joe/depot-sync/internal/backend"
)

// File is one depot file as the fake server sees it.
type File struct {
	DepotFile  string
	ClientFile string
	HaveRev    int
	HeadRev    int
	Size       int64
}

// Depot is a scripted backend. It understands info, fstat, and sync with -n and -f.
type Depot struct {
	ClientRootPath string

	mu         sync.Mutex
	files      []*File
	syncErrs   map[string]error
	gates      map[string]chan struct{}
	panics     map[string]bool
	connectErr error
	connects   int32
	commands   []string
}

// NewDepot creates an empty depot whose workspace root is clientRoot.
func NewDepot(clientRoot string) *Depot {
	return &Depot{
		ClientRootPath: clientRoot,
		syncErrs:       make(map[string]error),
		gates:          make(map[string]chan struct{}),
		panics:         make(map[string]bool),
	}
}

// Add registers files.
func (d *Depot) Add(files ...File) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range files {
		f := files[i]
		d.files = append(d.files, &f)
	}
}

// Commands returns every command run so far as "cmd arg arg".
func (d *Depot) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.commands...)
}

// Connect implements backend.Connector.
func (d *Depot) Connect(_ context.Context) (backend.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connectErr != nil {
		return nil, d.connectErr
	}

	atomic.AddInt32(&d.connects, 1)

	return &conn{depot: d}, nil
}

// Connects returns how many connections were opened.
func (d *Depot) Connects() int {
	return int(atomic.LoadInt32(&d.connects))
}

// FailConnect makes every later Connect fail with err.
func (d *Depot) FailConnect(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.connectErr = err
}

// FailSync makes the authoritative sync of clientFile fail with err.
func (d *Depot) FailSync(clientFile string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.syncErrs[clientFile] = err
}

// Gate blocks dry runs of root until the returned function is called.
func (d *Depot) Gate(root string) (release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	gate := make(chan struct{})
	d.gates[root] = gate

	var once sync.Once

	return func() { once.Do(func() { close(gate) }) }
}

// PanicOn makes every sync of spec, dry run or not, panic inside Run.
func (d *Depot) PanicOn(spec string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.panics[spec] = true
}

// Have returns the have revision of clientFile.
func (d *Depot) Have(clientFile string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, f := range d.files {
		if f.ClientFile == clientFile {
			return f.HaveRev
		}
	}

	return 0
}

type conn struct {
	depot  *Depot
	closed bool
}

func (c *conn) Close() error {
	c.closed = true
	return nil
}

func (c *conn) Run(ctx context.Context, command string, args ...string) ([]backend.Result, error) {
	if c.closed {
		return nil, errors.New("connection closed") //nolint:err113 // Test double
	}

	c.depot.record(command, args)

	switch command {
	case backend.CmdInfo:
		return []backend.Result{backend.Tagged(map[string]string{backend.FieldClientRoot: c.depot.ClientRootPath})}, nil
	case backend.CmdFstat:
		return c.depot.fstat(args[len(args)-1]), nil
	case backend.CmdSync:
		return c.depot.sync(ctx, args)
	default:
		return nil, fmt.Errorf("unknown command %q", command) //nolint:err113 // Test double
	}
}

func (d *Depot) record(command string, args []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.commands = append(d.commands, strings.TrimSpace(command+" "+strings.Join(args, " ")))
}

func (d *Depot) fstat(spec string) []backend.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	var results []backend.Result

	for _, f := range d.matching(spec) {
		fields := map[string]string{
			backend.FieldClientFile: f.ClientFile,
			backend.FieldDepotFile:  f.DepotFile,
			backend.FieldHeadRev:    strconv.Itoa(f.HeadRev),
		}
		if f.HaveRev > 0 {
			fields[backend.FieldHaveRev] = strconv.Itoa(f.HaveRev)
		}

		results = append(results, backend.Tagged(fields))
	}

	return results
}

func (d *Depot) sync(ctx context.Context, args []string) ([]backend.Result, error) {
	var dryRun, force bool

	for _, arg := range args[:len(args)-1] {
		switch arg {
		case "-n":
			dryRun = true
		case "-f":
			force = true
		}
	}

	spec := args[len(args)-1]

	d.mu.Lock()
	explode := d.panics[trimRev(spec)]
	d.mu.Unlock()

	if explode {
		panic("scripted panic syncing " + spec)
	}

	if dryRun {
		d.mu.Lock()
		gate := d.gates[trimRev(spec)]
		d.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err() //nolint:wrapcheck // Test double
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	matched := d.matching(spec)
	if len(matched) == 0 {
		return nil, nil
	}

	var results []backend.Result

	for _, f := range matched {
		if !force && f.HaveRev == f.HeadRev {
			continue
		}

		if !dryRun {
			if err := d.syncErrs[f.ClientFile]; err != nil { //nolint:noinlineerr // Scripted failure
				return nil, err
			}
		}

		action := "updated"

		switch {
		case f.HaveRev == 0:
			action = "added"
		case f.HaveRev == f.HeadRev:
			action = "refreshed"
		}

		results = append(results, backend.Tagged(map[string]string{
			backend.FieldDepotFile:  f.DepotFile,
			backend.FieldClientFile: f.ClientFile,
			backend.FieldRev:        strconv.Itoa(f.HeadRev),
			backend.FieldAction:     action,
			backend.FieldFileSize:   strconv.FormatInt(f.Size, 10),
			backend.FieldChange:     strconv.Itoa(f.HeadRev),
		}))

		if !dryRun {
			f.HaveRev = f.HeadRev
		}
	}

	if len(results) == 0 {
		return []backend.Result{backend.Message(spec + " - file(s) up-to-date.")}, nil
	}

	return results, nil
}

// matching must be called with d.mu held.
func (d *Depot) matching(spec string) []*File {
	path := trimRev(spec)

	var out []*File

	if prefix, ok := strings.CutSuffix(path, "/..."); ok {
		for _, f := range d.files {
			if strings.HasPrefix(f.ClientFile, prefix+"/") {
				out = append(out, f)
			}
		}

		return out
	}

	for _, f := range d.files {
		if f.ClientFile == path {
			out = append(out, f)
		}
	}

	return out
}

func trimRev(spec string) string {
	if i := strings.Index(spec, "#"); i >= 0 {
		return spec[:i]
	}

	return spec
}
