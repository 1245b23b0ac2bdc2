package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joe/depot-sync/internal/backend"
	"github.com/joe/depot-sync/internal/backend/localdepot"
	"github.com/joe/depot-sync/internal/backend/p4cli"
	"github.com/joe/depot-sync/internal/config"
	"github.com/joe/depot-sync/internal/entity"
	"github.com/joe/depot-sync/internal/filters"
	"github.com/joe/depot-sync/internal/logging"
	"github.com/joe/depot-sync/internal/prefs"
	"github.com/joe/depot-sync/internal/progress"
	"github.com/joe/depot-sync/internal/roots"
	"github.com/joe/depot-sync/internal/schema"
	"github.com/joe/depot-sync/internal/syncengine"
	"github.com/joe/depot-sync/internal/tracking"
)

const trackerCacheSize = 1024

// app holds everything a run needs and the resources to release afterwards.
type app struct {
	session *syncengine.Session
	emitter *syncengine.ChannelEmitter
	prefs   *prefs.Store
	closers []func() error
}

func (a *app) Close() {
	if a.session != nil {
		a.session.Close()
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	result := &app{}

	registry, err := schema.Load()
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}

	itemSchema := registry.MustGet(schema.SyncItem)

	prefsPath := cfg.Prefs
	if prefsPath == "" {
		prefsPath, err = prefs.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("locate preferences: %w", err)
		}
	}

	result.prefs, err = prefs.Open(prefsPath)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}

	client, err := openTracker(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	result.closers = append(result.closers, client.Close)

	tracker, err := tracking.NewCachedTracker(client, trackerCacheSize)
	if err != nil {
		result.Close()
		return nil, fmt.Errorf("tracker cache: %w", err)
	}

	opts := cfg.Project.EngineOptions(cfg, itemSchema.FilterKeys())

	pool, err := backend.NewPool(connector(cfg), opts.Workers)
	if err != nil {
		result.Close()
		return nil, fmt.Errorf("connection pool: %w", err)
	}

	result.closers = append(result.closers, pool.Close)

	rootResolver, err := roots.New(tracker, cfg.Project.RootsConfig(), logger.Logger)
	if err != nil {
		result.Close()
		return nil, fmt.Errorf("root templates: %w", err)
	}

	entities := entity.NewResolver(tracker, cfg.Project.EntityOptions(cfg), logger.Logger)

	result.emitter = syncengine.NewChannelEmitter(syncengine.EventBufferSize)
	engine := syncengine.NewEngine(pool, entities, rootResolver, result.emitter, logger.Logger, opts)
	filterEngine := filters.New(result.prefs, itemSchema, filters.NewGlobFilter(cfg.Include))

	result.session = syncengine.NewSession(engine, result.emitter, registry, filterEngine, progress.New(),
		logger.Logger, syncengine.SessionOptions{
			Selection: cfg.Selection,
			Force:     cfg.Force,
			LogPath:   logger.Path,
			OnRescan:  tracker.Purge,
		})

	logger.Info("started", "backend", cfg.Backend, "workers", opts.Workers,
		"selection", len(cfg.Selection), "prefs", prefsPath)

	return result, nil
}

func openTracker(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*tracking.Client, error) {
	var store tracking.Store = tracking.NewMemoryStore()

	if cfg.TrackerDB != "" {
		sqlite, err := tracking.OpenSQLiteStore(cfg.TrackerDB)
		if err != nil {
			return nil, fmt.Errorf("open tracker: %w", err)
		}

		store = sqlite
	}

	if cfg.TrackerImport != "" {
		file, err := os.Open(cfg.TrackerImport)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open tracker import: %w", err)
		}

		defer func() { _ = file.Close() }()

		count, err := tracking.ImportJSON(ctx, store, file)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("import %s: %w", cfg.TrackerImport, err)
		}

		logger.Info("imported tracking records", "file", cfg.TrackerImport, "records", count)
	}

	return tracking.NewClient(store), nil
}

func connector(cfg *config.Config) backend.Connector {
	if cfg.Backend == config.Local {
		return localdepot.New(cfg.DepotDir, cfg.Workspace)
	}

	return p4cli.New(p4cli.Settings{Port: cfg.P4Port, User: cfg.P4User, Client: cfg.P4Client})
}
