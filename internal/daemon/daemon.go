package daemon

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/steveyegge/marksync/internal/idmap"
	"github.com/steveyegge/marksync/internal/native"
	"github.com/steveyegge/marksync/internal/reconcile"
)

// RejectedDir is the spool subdirectory malformed change files are moved to.
const RejectedDir = "rejected"

// Config holds configuration for the daemon.
type Config struct {
	// SpoolDir receives change files from the host.
	SpoolDir string

	// TreeFile is the host's native tree snapshot.
	TreeFile string

	// Logger for daemon activity (default: no-op)
	Logger *zap.SugaredLogger
}

// Daemon feeds spooled host changes into the engine.
type Daemon struct {
	engine   *reconcile.Engine
	platform *native.MemoryPlatform
	mappings idmap.Store
	config   *Config
	logger   *zap.SugaredLogger

	watcher *SpoolWatcher
	spoolMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon. platform must be the platform engine was built on.
func New(engine *reconcile.Engine, platform *native.MemoryPlatform, mappings idmap.Store, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if platform == nil {
		return nil, errors.New("platform cannot be nil")
	}
	if mappings == nil {
		return nil, errors.New("mapping store cannot be nil")
	}
	if config == nil || config.SpoolDir == "" {
		return nil, errors.New("spool directory cannot be empty")
	}
	if config.TreeFile == "" {
		return nil, errors.New("native tree file cannot be empty")
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	watcher, err := NewSpoolWatcher(logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		engine:   engine,
		platform: platform,
		mappings: mappings,
		config:   config,
		logger:   logger,
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start prepares the engine, replays the spool and processes file events.
// It blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Infow("Starting daemon", "spool", d.config.SpoolDir, "tree", d.config.TreeFile)

	if err := d.Prepare(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(d.config.SpoolDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create spool directory")
	}
	if err := d.watcher.Start(d.config.SpoolDir, d.config.TreeFile); err != nil {
		return err
	}
	d.platform.Subscribe(d.onPlatformChange)

	if n, err := d.ReplaySpool(); err != nil {
		d.logger.Warnw("Failed to replay spool", "error", err)
	} else if n > 0 {
		d.logger.Infow("Replayed spooled changes", "count", n)
	}

	d.wg.Add(1)
	go d.watchFileEvents()

	select {
	case <-ctx.Done():
		d.logger.Info("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and processes events still queued in the
// engine.
func (d *Daemon) Stop() error {
	if d.ctx.Err() != nil {
		return nil
	}
	d.logger.Info("Stopping daemon")
	d.cancel()

	if err := d.watcher.Stop(); err != nil {
		d.logger.Warnw("Error closing watcher", "error", err)
	}
	d.wg.Wait()

	d.engine.Flush(context.Background())
	d.logger.Info("Daemon stopped")
	return nil
}

// Prepare loads the native snapshot and the synced tree, seeds the synced
// tree from the browser when it is empty and rebuilds id mappings when the
// table is empty but the synced tree is not.
func (d *Daemon) Prepare(ctx context.Context) error {
	if err := d.platform.LoadFile(d.config.TreeFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		d.logger.Infow("Native tree snapshot not found, writing initial tree", "path", d.config.TreeFile)
		if err := d.platform.SaveFile(d.config.TreeFile); err != nil {
			return err
		}
	}

	if err := d.engine.Load(ctx); err != nil {
		return err
	}
	seeded, err := d.engine.Bootstrap(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to seed synced bookmarks")
	}
	if seeded {
		return nil
	}

	count, err := d.mappings.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 && len(d.engine.Bookmarks()) > 0 {
		d.logger.Info("No id mappings found, rebuilding")
		if err := d.engine.BuildIdMappingsFromScratch(ctx); err != nil {
			return errors.Wrap(err, "failed to rebuild id mappings")
		}
	}
	return nil
}

// ReplaySpool hands every spooled change file to the engine in name order
// and deletes it. Malformed files are moved to the rejected directory. It
// returns the number of changes handed over.
func (d *Daemon) ReplaySpool() (int, error) {
	d.spoolMu.Lock()
	defer d.spoolMu.Unlock()

	paths, err := native.ListChangeFiles(d.config.SpoolDir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, path := range paths {
		ok, err := d.processFile(path)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (d *Daemon) processFile(path string) (bool, error) {
	c, err := native.ReadChangeFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		d.reject(path, err)
		return false, nil
	}

	d.engine.OnNativeEvent(c)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return true, errors.Wrap(err, "failed to remove change file")
	}
	return true, nil
}

func (d *Daemon) reject(path string, cause error) {
	d.logger.Warnw("Rejected change file", "file", filepath.Base(path), "error", cause)
	dir := filepath.Join(d.config.SpoolDir, RejectedDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		d.logger.Errorw("Failed to create rejected directory", "error", err)
		return
	}
	if err := os.Rename(path, filepath.Join(dir, filepath.Base(path))); err != nil {
		d.logger.Errorw("Failed to move rejected change file", "file", filepath.Base(path), "error", err)
	}
}

// onPlatformChange persists native writes made by the engine itself, such
// as restores and container reordering.
func (d *Daemon) onPlatformChange(c native.Change) {
	if err := d.platform.SaveFile(d.config.TreeFile); err != nil {
		d.logger.Warnw("Failed to write native tree snapshot", "change", c.Type().String(), "error", err)
	}
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.logger.Debugw("File event", "target", event.Target.String(), "path", event.Path)

			switch event.Target {
			case ChangeFile:
				if _, err := d.ReplaySpool(); err != nil {
					d.logger.Warnw("Failed to process spool", "error", err)
				}
			case TreeSnapshot:
				if err := d.platform.LoadFile(d.config.TreeFile); err != nil {
					d.logger.Warnw("Failed to reload native tree", "error", err)
				}
			}
		}
	}
}
