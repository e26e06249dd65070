package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/steveyegge/marksync/internal/bookmark"
	"github.com/steveyegge/marksync/internal/container"
	"github.com/steveyegge/marksync/internal/idmap"
	"github.com/steveyegge/marksync/internal/native"
	"github.com/steveyegge/marksync/internal/syncq"
)

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due, pending []*fakeTimer
	for _, t := range c.timers {
		switch {
		case t.done:
		case !t.at.After(c.now):
			t.done = true
			due = append(due, t)
		default:
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

type memCache struct {
	mu    sync.Mutex
	bs    []bookmark.Bookmark
	saves int
}

func (m *memCache) LoadBookmarks(context.Context) ([]bookmark.Bookmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bs, nil
}

func (m *memCache) SaveBookmarks(_ context.Context, bs []bookmark.Bookmark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bs = bs
	m.saves++
	return nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	queued   []syncq.Sync
	executed atomic.Int32
}

func (f *fakeExecutor) QueueSync(_ context.Context, s syncq.Sync) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, s)
	return nil
}

func (f *fakeExecutor) ExecuteSync(context.Context) error {
	f.executed.Add(1)
	return nil
}

func (f *fakeExecutor) Queued() []syncq.Sync {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]syncq.Sync(nil), f.queued...)
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	platform *native.MemoryPlatform
	mappings *idmap.MemoryStore
	cache    *memCache
	exec     *fakeExecutor
	clock    *fakeClock
	logs     *observer.ObservedLogs
	engine   *Engine
}

// seedRoot is the browser tree most tests start from. Importing it with
// toolbar sync off numbers m1=1, b=2, f=3, a=4, go=5, Other=6, Menu=7.
func seedRoot() *native.Node {
	return &native.Node{ID: native.RootID, Type: native.TypeFolder, Children: []*native.Node{
		{ID: native.MenuID, Title: "Bookmarks Menu", Type: native.TypeFolder, Children: []*native.Node{
			{ID: "m1", Title: "m", URL: "https://m.example", DateAdded: 10},
		}},
		{ID: native.ToolbarID, Title: "Bookmarks Toolbar", Type: native.TypeFolder, Children: []*native.Node{
			{ID: "t1", Title: "t", URL: "https://t.example", DateAdded: 5},
		}},
		{ID: native.OtherID, Title: "Other Bookmarks", Type: native.TypeFolder, Children: []*native.Node{
			{ID: "go", Title: "Go", URL: "https://go.dev", DateAdded: 300},
			{ID: "f", Title: "F", Type: native.TypeFolder, DateAdded: 100, Children: []*native.Node{
				{ID: "a", Title: "a", URL: "https://a.example", DateAdded: 200},
				{ID: "b", Title: "b", URL: "https://b.example", DateAdded: 50},
			}},
		}},
		{ID: native.MobileID, Title: "Mobile Bookmarks", Type: native.TypeFolder},
	}}
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core).Sugar()

	platform := native.NewMemoryPlatform()
	require.NoError(t, platform.Replace(seedRoot()))

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		platform: platform,
		mappings: idmap.NewMemoryStore(),
		cache:    &memCache{},
		exec:     &fakeExecutor{},
		clock:    newFakeClock(),
		logs:     logs,
	}
	cfg := Config{
		Platform:   platform,
		Containers: container.NewResolver(platform, logger),
		Mappings:   h.mappings,
		Cache:      h.cache,
		Executor:   h.exec,
		Clock:      h.clock,
		Logger:     logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	engine, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

// bootstrap seeds the synced tree from the browser and starts listening.
func (h *harness) bootstrap() {
	h.t.Helper()
	seeded, err := h.engine.Bootstrap(h.ctx)
	require.NoError(h.t, err)
	require.True(h.t, seeded)
	h.platform.Subscribe(h.engine.OnNativeEvent)
}

// settle lets the debounce elapse so queued events drain.
func (h *harness) settle() {
	h.clock.Advance(DefaultDebounce)
}

func (h *harness) syncedID(nativeID string) int {
	h.t.Helper()
	m, err := h.mappings.GetByNativeID(h.ctx, nativeID)
	require.NoError(h.t, err)
	require.NotNil(h.t, m, "no mapping for %s", nativeID)
	return m.SyncedID
}

func (h *harness) tree() *bookmark.Tree {
	h.t.Helper()
	tree, err := bookmark.FromBookmarks(h.engine.Bookmarks())
	require.NoError(h.t, err)
	return tree
}

func childIDs(t *testing.T, tree *bookmark.Tree, id int) []int {
	t.Helper()
	n, ok := tree.Get(id)
	require.True(t, ok, "synced id %d missing", id)
	return n.Children
}
