package main

import (
	"context"
	"io/fs"

	"github.com/cockroachdb/errors"

	"github.com/steveyegge/marksync/internal/container"
	"github.com/steveyegge/marksync/internal/db"
	"github.com/steveyegge/marksync/internal/idmap"
	"github.com/steveyegge/marksync/internal/native"
	"github.com/steveyegge/marksync/internal/reconcile"
	"github.com/steveyegge/marksync/internal/syncq"
)

// app is the wired engine shared by every command.
type app struct {
	db       *db.DB
	mappings *idmap.SQLStore
	executor syncq.Executor
	platform *native.MemoryPlatform
	engine   *reconcile.Engine
}

// openApp opens the database, loads the native tree snapshot and the synced
// tree, and builds the engine. observer may be nil.
func openApp(ctx context.Context, observer reconcile.Observer) (*app, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.InitSchemaContext(ctx); err != nil {
		database.Close()
		return nil, err
	}

	platform := native.NewMemoryPlatform()
	if err := platform.LoadFile(cfg.Native.TreeFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		database.Close()
		return nil, err
	}

	a := &app{
		db:       database,
		mappings: idmap.New(database, logger.Named("idmap")),
		executor: syncq.New(database, syncq.NewLogTransport(logger.Named("sync")), logger.Named("sync")),
		platform: platform,
	}
	a.engine, err = reconcile.New(reconcile.Config{
		Platform:    platform,
		Containers:  container.NewResolver(platform, logger.Named("container")),
		Mappings:    a.mappings,
		Cache:       database,
		Executor:    a.executor,
		SyncToolbar: reconcile.StaticSetting(cfg.Sync.Toolbar),
		SyncEnabled: reconcile.StaticSetting(cfg.Sync.Enabled),
		Unsupported: cfg.Sync.Unsupported(),
		Debounce:    cfg.Queue.Debounce(),
		SyncDelay:   cfg.Queue.SyncDelay(),
		Observer:    observer,
		Logger:      logger.Named("engine"),
	})
	if err != nil {
		database.Close()
		return nil, err
	}
	if err := a.engine.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// saveTree writes the native tree back to the snapshot file.
func (a *app) saveTree() error {
	return a.platform.SaveFile(cfg.Native.TreeFile)
}

func (a *app) Close() {
	a.engine.Close()
	if err := a.db.Close(); err != nil {
		logger.Warnw("Failed to close database", "error", err)
	}
}
