// Package main is the entry point for the depot-sync application.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term" //nolint:depguard // Required for TTY detection

	"github.com/joe/depot-sync/internal/config"
	"github.com/joe/depot-sync/internal/logging"
	"github.com/joe/depot-sync/internal/metrics"
	"github.com/joe/depot-sync/internal/tui"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err //nolint:wrapcheck // ParseLevel names the flag value
	}

	// The TUI owns the terminal, so console logging is headless only.
	var console io.Writer
	if cfg.NoTUI {
		console = os.Stderr
	}

	logger, err := logging.New(logging.Options{File: cfg.LogFile, Level: level, Console: console})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}

	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}

	defer app.Close()

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		group.Go(func() error {
			return metrics.Serve(groupCtx, cfg.MetricsAddr) //nolint:wrapcheck // Serve names the address
		})
	}

	group.Go(func() error {
		defer stop()

		if cfg.NoTUI {
			return runHeadless(groupCtx, app.session, os.Stdout)
		}

		return runTUI(groupCtx, app)
	})

	return group.Wait() //nolint:wrapcheck // Members wrap their own errors
}

func runTUI(ctx context.Context, app *app) error {
	// A failed connection is shown by the TUI rather than returned.
	_ = app.session.Connect(ctx)

	model := tui.New(app.session, app.emitter, app.prefs)

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		opts = append(opts, tea.WithAltScreen())
	}

	_, err := tea.NewProgram(model, opts...).Run()
	if err != nil {
		return fmt.Errorf("run tui: %w", err)
	}

	return nil
}
