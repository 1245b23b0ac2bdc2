// Package config handles application configuration and command-line argument parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/joe/depot-sync/internal/tracking"
)

// BackendKind selects the version-control backend.
type BackendKind int

const (
	// Perforce drives the p4 command line.
	Perforce BackendKind = iota
	// Local mirrors a depot directory into a workspace directory.
	Local
)

// Exported variables.
var (
	ErrDepotRequired     = errors.New("local backend needs --depot-dir")
	ErrWorkspaceRequired = errors.New("local backend needs --workspace")
	ErrBadEntity         = errors.New("entity must be Type:ID")
)

// String returns the string representation of BackendKind
func (k BackendKind) String() string {
	switch k {
	case Perforce:
		return "p4"
	case Local:
		return "local"
	default:
		return "unknown"
	}
}

// ParseBackendKind parses a string into a BackendKind
func ParseBackendKind(s string) (BackendKind, error) {
	switch strings.ToLower(s) {
	case "p4", "perforce":
		return Perforce, nil
	case "local", "dir":
		return Local, nil
	default:
		return Perforce, fmt.Errorf("invalid backend: %s (valid: p4, local)", s) //nolint:err113 // User input
	}
}

// UnmarshalText implements encoding.TextUnmarshaler for go-arg
func (k *BackendKind) UnmarshalText(text []byte) error {
	parsed, err := ParseBackendKind(string(text))
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}

// Config holds the application configuration
type Config struct {
	Entities []string    `arg:"positional" help:"entities to sync as Type:ID, e.g. Asset:12 Task:40 (none = your open tasks)"`
	Force    bool        `arg:"-f,--force" help:"re-sync files that are already at head"`
	Backend  BackendKind `arg:"-b,--backend" default:"p4" help:"version-control backend: p4|local"`

	P4Port   string `arg:"--p4-port,env:P4PORT" help:"Perforce server"`
	P4User   string `arg:"--p4-user,env:P4USER" help:"Perforce user"`
	P4Client string `arg:"--p4-client,env:P4CLIENT" help:"Perforce workspace"`

	DepotDir  string `arg:"--depot-dir" help:"local backend: directory served as //depot"`
	Workspace string `arg:"--workspace" help:"local backend: workspace directory"`

	TrackerDB     string `arg:"--tracker" help:"SQLite tracking database (empty = in-memory)"`
	TrackerImport string `arg:"--import" help:"JSON file of tracking records to load at startup"`
	UserID        int    `arg:"--user" help:"tracking user id for the open-task fallback"`
	ProjectID     int    `arg:"--project" help:"tracking project id for the open-task fallback"`

	ProjectConfig  string        `arg:"-c,--config" help:"project config file (YAML)"`
	Include        string        `arg:"--include" help:"only show files whose path matches this glob"`
	Workers        int           `arg:"-w,--workers" help:"concurrent workers (0 = min(worker cap, CPUs))"`
	BackendTimeout time.Duration `arg:"--backend-timeout" help:"bound on each backend call (0 = none)"`

	Prefs       string `arg:"--prefs" help:"preference file (default ~/.psdf)"`
	LogFile     string `arg:"--log-file" help:"log file (default under the user cache directory)"`
	LogLevel    string `arg:"--log-level" default:"info" help:"console log level: debug|info|warn|error"`
	MetricsAddr string `arg:"--metrics-addr" help:"serve Prometheus metrics on this address"`
	NoTUI       bool   `arg:"--no-tui" help:"discover, sync everything visible, and exit"`

	// Selection is parsed from Entities.
	Selection []tracking.Link `arg:"-"`
	// Project is loaded from ProjectConfig.
	Project *Project `arg:"-"`
}

// Description returns the program description for go-arg
func (Config) Description() string {
	return "Sync the depot files of tracked assets, shots and tasks into your workspace"
}

// Version returns the version string for go-arg
func (Config) Version() string {
	return "depot-sync 1.0.0"
}

// ParseFlags parses command-line flags and returns configuration
func ParseFlags() (*Config, error) {
	cfg := &Config{
		Backend:  Perforce,
		LogLevel: "info",
	}

	arg.MustParse(cfg)

	return PostProcessConfig(cfg)
}

// PostProcessConfig applies post-processing logic to a parsed config
func PostProcessConfig(cfg *Config) (*Config, error) {
	selection, err := ParseSelection(cfg.Entities)
	if err != nil {
		return nil, err
	}

	cfg.Selection = selection

	if err := cfg.ValidateBackend(); err != nil { //nolint:noinlineerr // Validation chain
		return nil, err
	}

	project, err := LoadProject(cfg.ProjectConfig)
	if err != nil {
		return nil, err
	}

	cfg.Project = project

	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative: %d", cfg.Workers) //nolint:err113 // User input
	}

	return cfg, nil
}

// ParseSelection parses Type:ID arguments.
func ParseSelection(entities []string) ([]tracking.Link, error) {
	links := make([]tracking.Link, 0, len(entities))

	for _, raw := range entities {
		entityType, rawID, ok := strings.Cut(raw, ":")
		if !ok || entityType == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadEntity, raw)
		}

		id, err := strconv.Atoi(rawID)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadEntity, raw)
		}

		links = append(links, tracking.Link{Type: entityType, ID: id})
	}

	return links, nil
}

// ValidateBackend validates the settings of the local backend.
func (cfg *Config) ValidateBackend() error {
	if cfg.Backend != Local {
		return nil
	}

	if cfg.DepotDir == "" {
		return ErrDepotRequired
	}

	if cfg.Workspace == "" {
		return ErrWorkspaceRequired
	}

	info, err := os.Stat(cfg.DepotDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("depot directory does not exist: %s", cfg.DepotDir) //nolint:err113 // User input
	}

	if err != nil {
		return fmt.Errorf("cannot access depot directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("depot path is not a directory: %s", cfg.DepotDir) //nolint:err113 // User input
	}

	return nil
}

// UserLink returns the fallback user, if one was given.
func (cfg *Config) UserLink() *tracking.Link {
	if cfg.UserID == 0 {
		return nil
	}

	return &tracking.Link{Type: "HumanUser", ID: cfg.UserID}
}

// ProjectLink returns the fallback project, if one was given.
func (cfg *Config) ProjectLink() *tracking.Link {
	if cfg.ProjectID == 0 {
		return nil
	}

	return &tracking.Link{Type: "Project", ID: cfg.ProjectID}
}
