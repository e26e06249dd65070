package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/steveyegge/marksync/internal/bookmark"
	"github.com/steveyegge/marksync/internal/idmap"
	"github.com/steveyegge/marksync/internal/native"
	"github.com/steveyegge/marksync/internal/syncq"
)

// DefaultSyncDelay is the pause between signalling a sync and reordering
// containers after a drain.
const DefaultSyncDelay = 100 * time.Millisecond

// TreeCache persists the committed synced tree.
type TreeCache interface {
	LoadBookmarks(ctx context.Context) ([]bookmark.Bookmark, error)
	SaveBookmarks(ctx context.Context, bs []bookmark.Bookmark) error
}

// SyncExecutor queues and runs syncs with the sync service.
type SyncExecutor interface {
	QueueSync(ctx context.Context, s syncq.Sync) error
	ExecuteSync(ctx context.Context) error
}

// Observer is notified of processing results. Calls are made from the drain
// goroutine and must not block.
type Observer interface {
	ChangeProcessed(ev ChangeEvent, o Outcome)
	DrainCompleted(stats DrainStats)
}

// Config holds engine dependencies and settings.
type Config struct {
	Platform   native.Platform
	Containers Resolver
	Mappings   idmap.Store
	Cache      TreeCache
	Executor   SyncExecutor

	// Policy defaults to a ToolbarPolicy over SyncToolbar.
	Policy      Policy
	SyncToolbar Setting
	// SyncEnabled selects the export source: the synced tree when on, the
	// live browser tree when off.
	SyncEnabled Setting
	Unsupported []bookmark.Container

	Debounce  time.Duration
	SyncDelay time.Duration
	Clock     Clock
	Observer  Observer
	Logger    *zap.SugaredLogger
}

// Engine owns the committed synced tree and reconciles native changes into
// it.
type Engine struct {
	cfg       Config
	logger    *zap.SugaredLogger
	processor *Processor
	importer  *Importer
	queue     *EventQueue

	treeMu sync.Mutex
	tree   *bookmark.Tree

	suspended atomic.Int32

	reorderMu    sync.Mutex
	reorderTimer Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates cfg and returns an Engine with an empty tree. Call Load to
// restore the cached tree.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Platform == nil:
		return nil, errors.New("platform cannot be nil")
	case cfg.Containers == nil:
		return nil, errors.New("container resolver cannot be nil")
	case cfg.Mappings == nil:
		return nil, errors.New("mapping store cannot be nil")
	case cfg.Cache == nil:
		return nil, errors.New("tree cache cannot be nil")
	case cfg.Executor == nil:
		return nil, errors.New("sync executor cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.SyncToolbar == nil {
		cfg.SyncToolbar = StaticSetting(false)
	}
	if cfg.SyncEnabled == nil {
		cfg.SyncEnabled = StaticSetting(true)
	}
	if cfg.Policy == nil {
		cfg.Policy = ToolbarPolicy{SyncToolbar: cfg.SyncToolbar, Logger: cfg.Logger}
	}
	if cfg.SyncDelay <= 0 {
		cfg.SyncDelay = DefaultSyncDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:       cfg,
		logger:    cfg.Logger,
		processor: NewProcessor(cfg.Containers, cfg.Mappings, cfg.Policy, cfg.Logger),
		importer: &Importer{
			Platform:    cfg.Platform,
			Containers:  cfg.Containers,
			SyncToolbar: cfg.SyncToolbar,
			Unsupported: cfg.Unsupported,
		},
		tree:   bookmark.NewTree(),
		ctx:    ctx,
		cancel: cancel,
	}
	e.queue = NewEventQueue(QueueConfig{
		Debounce: cfg.Debounce,
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
	}, e.handleEvent, e.onDrained)
	return e, nil
}

// Load replaces the in-memory tree with the cached one.
func (e *Engine) Load(ctx context.Context) error {
	bs, err := e.cfg.Cache.LoadBookmarks(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load cached bookmarks")
	}
	tree, err := bookmark.FromBookmarks(bs)
	if err != nil {
		return errors.Wrap(err, "cached bookmarks are invalid")
	}
	e.treeMu.Lock()
	e.tree = tree
	e.treeMu.Unlock()
	e.logger.Infow("Loaded synced bookmarks", "count", tree.Len())
	return nil
}

// Close stops the queue and waits for background work.
func (e *Engine) Close() {
	e.queue.Close()
	e.reorderMu.Lock()
	if e.reorderTimer != nil && e.reorderTimer.Stop() {
		e.wg.Done()
	}
	e.reorderTimer = nil
	e.reorderMu.Unlock()
	e.cancel()
	e.wg.Wait()
}

// Bookmarks returns a copy of the committed synced tree.
func (e *Engine) Bookmarks() []bookmark.Bookmark {
	e.treeMu.Lock()
	defer e.treeMu.Unlock()
	return e.tree.Bookmarks()
}

// QueueLen returns the number of events waiting to be processed.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// DisableEventListeners makes OnNativeEvent drop events. Calls nest.
func (e *Engine) DisableEventListeners() {
	e.suspended.Add(1)
}

// EnableEventListeners undoes one DisableEventListeners call.
func (e *Engine) EnableEventListeners() {
	if e.suspended.Add(-1) < 0 {
		e.suspended.Store(0)
	}
}

// ListenersEnabled reports whether native events are being accepted.
func (e *Engine) ListenersEnabled() bool {
	return e.suspended.Load() == 0
}

// OnNativeEvent queues a browser change. Changes are dropped while event
// listeners are disabled.
func (e *Engine) OnNativeEvent(c native.Change) {
	if !e.ListenersEnabled() {
		e.logger.Debugw("Ignoring bookmark event while listeners are disabled", "type", c.Type().String(), "native_id", c.NativeID())
		return
	}
	e.logger.Infof("%s event detected", c.Type())
	e.queue.Enqueue(c)
}

// Flush drains queued events immediately.
func (e *Engine) Flush(ctx context.Context) {
	e.queue.Flush(ctx)
}

// ProcessNativeChange applies c to a copy of the synced tree. An applied
// outcome becomes the committed tree and is persisted. A failed outcome is
// returned together with its error.
func (e *Engine) ProcessNativeChange(ctx context.Context, c native.Change) (Outcome, error) {
	e.treeMu.Lock()
	defer e.treeMu.Unlock()

	working := e.tree.Clone()
	o := e.processor.Process(ctx, working, c)
	switch o.Kind {
	case OutcomeApplied:
		e.tree = o.Tree
		if err := e.cfg.Cache.SaveBookmarks(ctx, e.tree.Bookmarks()); err != nil {
			return o, errors.Wrap(err, "failed to persist synced bookmarks")
		}
		e.logger.Debugw("Applied bookmark event", "type", c.Type().String(), "native_id", c.NativeID(), "synced_id", o.SyncedID)
	case OutcomeSkipped:
		e.logger.Infow("Skipped bookmark event", "type", c.Type().String(), "native_id", c.NativeID(), "reason", o.Reason)
	case OutcomeFailed:
		return o, o.Err
	}
	return o, nil
}

func (e *Engine) handleEvent(ctx context.Context, ev ChangeEvent) error {
	o, err := e.ProcessNativeChange(ctx, ev.Change)
	if e.cfg.Observer != nil {
		e.cfg.Observer.ChangeProcessed(ev, o)
	}
	if err != nil {
		return err
	}
	if o.Kind != OutcomeApplied {
		return nil
	}
	s := syncq.Sync{
		Type: syncq.TypeRemote,
		ChangeInfo: &syncq.ChangeInfo{
			Type:     ev.Change.Type().String(),
			NativeID: ev.Change.NativeID(),
			SyncedID: o.SyncedID,
		},
	}
	if mv, ok := ev.Change.(*native.MoveChange); ok {
		s.ChangeInfo.OldIndex = &mv.OldIndex
	}
	return errors.Wrap(e.cfg.Executor.QueueSync(ctx, s), "failed to queue sync")
}

func (e *Engine) onDrained(_ context.Context, stats DrainStats) {
	if e.cfg.Observer != nil {
		e.cfg.Observer.DrainCompleted(stats)
	}
	if stats.Err != nil {
		e.logger.Errorw("Bookmark event processing aborted", "processed", stats.Processed, "error", stats.Err)
		return
	}
	e.logger.Infow("Processed bookmark events",
		"processed", stats.Processed, "failed", stats.Failed,
		"corrected_moves", stats.Corrected, "duration", stats.Duration)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.cfg.Executor.ExecuteSync(e.ctx); err != nil {
			e.logger.Warnw("Sync failed", "error", err)
		}
	}()

	e.scheduleReorder()
}

// scheduleReorder runs ReorderContainers after the sync delay, replacing a
// reorder that has not fired yet.
func (e *Engine) scheduleReorder() {
	e.reorderMu.Lock()
	defer e.reorderMu.Unlock()
	if e.ctx.Err() != nil {
		return
	}
	if e.reorderTimer != nil && e.reorderTimer.Stop() {
		e.wg.Done()
	}
	e.wg.Add(1)
	e.reorderTimer = e.cfg.Clock.AfterFunc(e.cfg.SyncDelay, func() {
		defer e.wg.Done()
		if e.ctx.Err() != nil {
			return
		}
		if err := e.ReorderContainers(e.ctx); err != nil {
			e.logger.Warnw("Failed to reorder containers", "error", err)
		}
	})
}

// GetNativeTreeAsBookmarks returns the live browser tree as synced
// bookmarks with fresh ids.
func (e *Engine) GetNativeTreeAsBookmarks(ctx context.Context) ([]bookmark.Bookmark, error) {
	return e.importer.Import(ctx)
}

// GetBookmarksForExport returns cleaned bookmarks without empty containers.
// The source is the synced tree while sync is enabled and the browser tree
// otherwise.
func (e *Engine) GetBookmarksForExport(ctx context.Context) ([]bookmark.Bookmark, error) {
	enabled, err := e.cfg.SyncEnabled.Enabled(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read sync setting")
	}
	var bs []bookmark.Bookmark
	if enabled {
		bs = e.Bookmarks()
	} else {
		bs, err = e.importer.Import(ctx)
		if err != nil {
			return nil, err
		}
	}
	return bookmark.Clean(bookmark.RemoveEmptyContainers(bs)), nil
}
