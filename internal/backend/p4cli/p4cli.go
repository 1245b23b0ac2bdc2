// Package p4cli drives the p4 command line client in tagged output mode.
package p4cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/joe/depot-sync/internal/backend"
)

// Runner executes the p4 binary. It returns stdout and stderr separately.
type Runner func(ctx context.Context, binary string, args []string) (stdout, stderr []byte, err error)

// Settings select the server, user, and workspace. Empty values fall back to the
// p4 client's own environment (P4PORT, P4USER, P4CLIENT, P4CONFIG).
type Settings struct {
	Binary string
	Port   string
	User   string
	Client string
}

// Connector opens p4 connections. Each connection is an independent process
// invocation per command, so connections share nothing.
type Connector struct {
	Settings Settings
	Run      Runner
}

// New creates a Connector that executes the real binary.
func New(settings Settings) *Connector {
	if settings.Binary == "" {
		settings.Binary = "p4"
	}

	return &Connector{Settings: settings, Run: execRunner}
}

// Connect verifies the server answers "info" and returns a connection.
func (c *Connector) Connect(ctx context.Context) (backend.Conn, error) {
	conn := &conn{connector: c}

	_, err := conn.Run(ctx, backend.CmdInfo)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

type conn struct {
	connector *Connector
}

func (c *conn) Close() error { return nil }

// Run executes "p4 -ztag <globals> command args..." and parses the tagged output.
// Warnings such as "file(s) up-to-date." become message results; "no such file(s)"
// warnings are dropped so an unknown path yields an empty result.
func (c *conn) Run(ctx context.Context, command string, args ...string) ([]backend.Result, error) {
	argv := append(c.globalArgs(), command)
	argv = append(argv, args...)

	stdout, stderr, runErr := c.connector.Run(ctx, c.connector.Settings.Binary, argv)

	results := ParseTagged(stdout)

	var failures []string

	warnings := nonEmptyLines(stderr)
	for _, line := range warnings {
		lower := strings.ToLower(line)

		switch {
		case strings.Contains(lower, "no such file(s)"):
		case strings.Contains(lower, "up-to-date"):
			results = append(results, backend.Message(line))
		default:
			failures = append(failures, line)
		}
	}

	if runErr != nil {
		if len(failures) > 0 {
			return nil, fmt.Errorf("p4 %s: %s", command, strings.Join(failures, "; ")) //nolint:err113 // Server error text
		}

		if len(warnings) == 0 {
			return nil, fmt.Errorf("p4 %s: %w", command, runErr)
		}

		// A non-zero exit carrying only warnings is not a failure.
		return results, nil
	}

	for _, line := range failures {
		results = append(results, backend.Message(line))
	}

	return results, nil
}

func (c *conn) globalArgs() []string {
	args := []string{"-ztag"}

	settings := c.connector.Settings
	if settings.Port != "" {
		args = append(args, "-p", settings.Port)
	}

	if settings.User != "" {
		args = append(args, "-u", settings.User)
	}

	if settings.Client != "" {
		args = append(args, "-c", settings.Client)
	}

	return args
}

// ParseTagged parses -ztag output: records are blocks of "... key value" lines
// separated by blank lines. Lines outside that form become message results.
func ParseTagged(out []byte) []backend.Result {
	var (
		results []backend.Result
		current map[string]string
	)

	flush := func() {
		if len(current) > 0 {
			results = append(results, backend.Tagged(current))
		}

		current = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		rest, tagged := strings.CutPrefix(line, "... ")
		if !tagged {
			flush()

			results = append(results, backend.Message(line))

			continue
		}

		key, value, _ := strings.Cut(rest, " ")
		if current == nil {
			current = make(map[string]string)
		}

		current[key] = value
	}

	flush()

	return results
}

func execRunner(ctx context.Context, binary string, args []string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, binary, args...) // #nosec G204 - binary comes from configuration
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.Bytes(), stderr.Bytes(), err //nolint:wrapcheck // Classified by the caller
}

func nonEmptyLines(out []byte) []string {
	var lines []string

	for line := range strings.SplitSeq(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}
