package daemon

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Target names the watched file an Event is about.
type Target int

const (
	// ChangeFile is a spooled change envelope (<spool>/*.json).
	ChangeFile Target = iota
	// TreeSnapshot is the host's native tree snapshot.
	TreeSnapshot
)

func (t Target) String() string {
	if t == TreeSnapshot {
		return "tree"
	}
	return "change"
}

// Event reports that a watched file appeared or was rewritten. Removals are
// not reported.
type Event struct {
	Target Target
	Path   string
}

// SpoolWatcher reports new change files and snapshot rewrites. The
// snapshot's directory is watched instead of the file because the host
// replaces the snapshot by rename, which drops a watch on the file itself.
type SpoolWatcher struct {
	fsw    *fsnotify.Watcher
	logger *zap.SugaredLogger
	events chan Event

	spoolDir string
	treeFile string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSpoolWatcher creates a watcher. Nothing is watched until Start.
func NewSpoolWatcher(logger *zap.SugaredLogger) (*SpoolWatcher, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	return &SpoolWatcher{
		fsw:    fsw,
		logger: logger,
		events: make(chan Event, 64),
	}, nil
}

// Start watches spoolDir and the directory holding treeFile. Both
// directories must exist. A watcher can be started once.
func (w *SpoolWatcher) Start(spoolDir, treeFile string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.cancel != nil {
		return errors.New("watcher already started")
	}

	var err error
	if w.spoolDir, err = filepath.Abs(spoolDir); err != nil {
		return errors.Wrap(err, "failed to resolve spool directory")
	}
	if w.treeFile, err = filepath.Abs(treeFile); err != nil {
		return errors.Wrap(err, "failed to resolve native tree file")
	}

	for _, dir := range []string{w.spoolDir, filepath.Dir(w.treeFile)} {
		if err := w.fsw.Add(dir); err != nil {
			return errors.Wrapf(err, "failed to watch %s", dir)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop closes the watcher and waits for the event loop. Events is closed
// afterwards.
func (w *SpoolWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	close(w.events)
	return errors.Wrap(err, "failed to close watcher")
}

// Events delivers classified file events.
func (w *SpoolWatcher) Events() <-chan Event {
	return w.events
}

// Running reports whether the event loop is active.
func (w *SpoolWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *SpoolWatcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Watcher error", "error", err)
		case fe, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			ev, keep := w.classify(fe)
			if !keep {
				continue
			}
			select {
			case w.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *SpoolWatcher) classify(fe fsnotify.Event) (Event, bool) {
	if !fe.Has(fsnotify.Create) && !fe.Has(fsnotify.Write) {
		return Event{}, false
	}
	path, err := filepath.Abs(fe.Name)
	if err != nil {
		return Event{}, false
	}
	switch {
	case path == w.treeFile:
		return Event{Target: TreeSnapshot, Path: path}, true
	case filepath.Dir(path) == w.spoolDir && strings.HasSuffix(path, ".json"):
		return Event{Target: ChangeFile, Path: path}, true
	default:
		return Event{}, false
	}
}
