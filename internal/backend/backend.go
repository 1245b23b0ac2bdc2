// Package backend defines the version-control collaborator: connections that run
// commands and return tagged records, typed helpers for the commands the sync engine
// needs, and a pool that hands connections to workers.
package backend

import (
	"context"
	"sort"
	"strconv"
	"strings"
)

// Conn is one backend connection. Run blocks until the command completes.
// A Conn is not safe for concurrent use; the Pool hands each worker its own.
type Conn interface {
	Run(ctx context.Context, command string, args ...string) ([]Result, error)
	Close() error
}

// Connector opens connections.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Conn, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) { return f(ctx) }

// Result is one record of command output. Tagged output fills Fields; plain
// informational output (for example "file(s) up-to-date.") fills Message.
type Result struct {
	Fields  map[string]string
	Message string
}

// Tagged builds a tagged result.
func Tagged(fields map[string]string) Result {
	return Result{Fields: fields}
}

// Message builds a plain message result.
func Message(text string) Result {
	return Result{Message: text}
}

// Get returns a tagged field, or "".
func (r Result) Get(key string) string {
	return r.Fields[key]
}

// Int returns a tagged field as an int, or 0.
func (r Result) Int(key string) int {
	n, _ := strconv.Atoi(r.Fields[key])
	return n
}

// Int64 returns a tagged field as an int64, or 0.
func (r Result) Int64(key string) int64 {
	n, _ := strconv.ParseInt(r.Fields[key], 10, 64)
	return n
}

// IsMessage reports whether the result carries no tagged fields.
func (r Result) IsMessage() bool {
	return len(r.Fields) == 0
}

// String renders a result for the raw backend log: "depotFile | change" for tagged
// file records, the message otherwise.
func (r Result) String() string {
	if r.IsMessage() {
		return r.Message
	}

	if depotFile := r.Get("depotFile"); depotFile != "" {
		return depotFile + " | " + r.Get("change")
	}

	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+r.Fields[k])
	}

	return strings.Join(parts, " ")
}
