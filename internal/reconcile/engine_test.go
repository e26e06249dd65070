package reconcile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steveyegge/marksync/internal/bookmark"
	"github.com/steveyegge/marksync/internal/container"
	"github.com/steveyegge/marksync/internal/idmap"
	"github.com/steveyegge/marksync/internal/native"
	"github.com/steveyegge/marksync/internal/syncq"
)

func TestBootstrap_BuildsMappings(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	all, err := h.mappings.List(h.ctx, time.Time{})
	require.NoError(t, err)
	got := map[int]string{}
	for _, m := range all {
		got[m.SyncedID] = m.NativeID
	}
	assert.Equal(t, map[int]string{1: "m1", 2: "b", 3: "f", 4: "a", 5: "go"}, got)

	seeded, err := h.engine.Bootstrap(h.ctx)
	require.NoError(t, err)
	assert.False(t, seeded, "second bootstrap is a no-op")
}

func TestAdd_EndToEnd(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	created, err := h.platform.Create(h.ctx, native.CreateDetails{ParentID: native.OtherID, Index: 0, Title: "New", URL: "https://new.example"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.engine.QueueLen())
	h.settle()

	id := h.syncedID(created.ID)
	assert.Equal(t, 8, id)
	tree := h.tree()
	assert.Equal(t, []int{8, 5, 3}, childIDs(t, tree, 6))
	n, _ := tree.Get(8)
	assert.Equal(t, "New", n.Title)
	assert.Equal(t, "https://new.example", n.URL)

	queued := h.exec.Queued()
	require.Len(t, queued, 2)
	assert.Equal(t, syncq.TypeRemote, queued[1].Type)
	assert.Equal(t, "add", queued[1].ChangeInfo.Type)
	assert.Equal(t, 8, queued[1].ChangeInfo.SyncedID)

	assert.Eventually(t, func() bool { return h.exec.executed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, h.engine.Bookmarks(), h.cache.bs, "applied changes are persisted")
}

func TestAdd_ReplayIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	change := &native.AddChange{ID: "n-new", Node: native.Node{ID: "n-new", ParentID: native.MenuID, Index: 1, Title: "x", URL: "https://x.example"}}
	o, err := h.engine.ProcessNativeChange(h.ctx, change)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, o.Kind)
	before := h.engine.Bookmarks()

	o, err = h.engine.ProcessNativeChange(h.ctx, change)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, o.Kind)
	assert.Equal(t, before, h.engine.Bookmarks())
	count, _ := h.mappings.Count(h.ctx)
	assert.Equal(t, 6, count)
}

func TestAdd_ToolbarDisabledIsReverted(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()
	before := h.engine.Bookmarks()

	created, err := h.platform.Create(h.ctx, native.CreateDetails{ParentID: native.ToolbarID, Index: -1, Title: "tb", URL: "https://tb.example"})
	require.NoError(t, err)
	h.settle()

	assert.Equal(t, before, h.engine.Bookmarks())
	m, err := h.mappings.GetByNativeID(h.ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, 1, h.logs.FilterMessage("Not syncing toolbar").Len())
}

func TestAdd_UnmappedParentIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	o, err := h.engine.ProcessNativeChange(h.ctx, &native.AddChange{ID: "orphan", Node: native.Node{ParentID: "unknown-folder", Title: "o", URL: "https://o"}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, o.Kind)
}

func TestContainerChangeIsRejected(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	_, err := h.engine.ProcessNativeChange(h.ctx, &native.ModifyChange{ID: native.MenuID, Node: native.Node{ID: native.MenuID, Title: "renamed"}})
	assert.True(t, errors.Is(err, ErrContainerChanged))
	assert.False(t, IsFatal(err))
}

type unknownChange struct{ *native.AddChange }

func TestUnknownChangeIsAmbiguous(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	_, err := h.engine.ProcessNativeChange(h.ctx, unknownChange{&native.AddChange{ID: "x"}})
	assert.True(t, errors.Is(err, ErrAmbiguousRequest))
}

func TestModify_OverwritesMetadata(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	_, err := h.platform.Update(h.ctx, "go", "Golang", "https://golang.org")
	require.NoError(t, err)
	h.settle()

	n, ok := h.tree().Get(5)
	require.True(t, ok)
	assert.Equal(t, "Golang", n.Title)
	assert.Equal(t, "https://golang.org", n.URL)
}

func TestRemove_DropsSubtreeMappings(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	require.NoError(t, h.platform.Remove(h.ctx, "f"))
	h.settle()

	for _, nativeID := range []string{"f", "a", "b"} {
		m, err := h.mappings.GetByNativeID(h.ctx, nativeID)
		require.NoError(t, err)
		assert.Nil(t, m, "mapping for %s", nativeID)
	}
	count, _ := h.mappings.Count(h.ctx)
	assert.Equal(t, 2, count)
	assert.Equal(t, []int{5}, childIDs(t, h.tree(), 6))
}

func TestMove_ToOtherContainer(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	_, err := h.platform.Move(h.ctx, "a", native.Destination{ParentID: native.MenuID, Index: 0})
	require.NoError(t, err)
	h.settle()

	tree := h.tree()
	assert.Equal(t, []int{4, 1}, childIDs(t, tree, 7))
	assert.Equal(t, []int{2}, childIDs(t, tree, 3))
}

func TestMove_IntoUnsyncedToolbarIsReverted(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()
	before := h.engine.Bookmarks()

	_, err := h.platform.Move(h.ctx, "go", native.Destination{ParentID: native.ToolbarID, Index: 0})
	require.NoError(t, err)
	h.settle()

	assert.Equal(t, before, h.engine.Bookmarks())
}

func TestReorder_FollowsNativeOrder(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	require.NoError(t, h.platform.Reorder(h.ctx, native.OtherID, []string{"f", "go"}))
	h.settle()
	assert.Equal(t, []int{3, 5}, childIDs(t, h.tree(), 6))

	require.NoError(t, h.platform.Reorder(h.ctx, "f", []string{"b", "a"}))
	h.settle()
	assert.Equal(t, []int{2, 4}, childIDs(t, h.tree(), 3))
}

func TestReorder_DropsUnlistedChildren(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	o, err := h.engine.ProcessNativeChange(h.ctx, &native.ReorderChange{ParentID: "f", ChildIDs: []string{"b"}})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, o.Kind)

	assert.Equal(t, []int{2}, childIDs(t, h.tree(), 3))
	m, err := h.mappings.GetBySyncedID(h.ctx, 4)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, 1, h.logs.FilterMessage("Reorder dropped children missing from the new order").Len())
}

func TestReorder_SkipsUnmappedChildren(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	o, err := h.engine.ProcessNativeChange(h.ctx, &native.ReorderChange{ParentID: "f", ChildIDs: []string{"ghost", "a", "b"}})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, o.Kind)

	assert.Equal(t, []int{4, 2}, childIDs(t, h.tree(), 3))
	count, _ := h.mappings.Count(h.ctx)
	assert.Equal(t, 5, count)
	assert.Equal(t, 0, h.logs.FilterMessage("Reorder dropped children missing from the new order").Len())
}

func TestAdd_ReplacesStaleMapping(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()
	require.NoError(t, h.mappings.Add(h.ctx, idmap.Mapping{SyncedID: 42, NativeID: "ghost"}))

	o, err := h.engine.ProcessNativeChange(h.ctx, &native.AddChange{ID: "ghost", Node: native.Node{ID: "ghost", ParentID: native.MenuID, Index: 0, Title: "g", URL: "https://g.example"}})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, o.Kind)

	assert.Equal(t, 8, h.syncedID("ghost"))
	m, err := h.mappings.GetBySyncedID(h.ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, []int{8, 1}, childIDs(t, h.tree(), 7))
	assert.Equal(t, 1, h.logs.FilterMessage("Dropping stale id mapping").Len())
}

func TestMissingContainerAbortsDrain(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()
	h.engine.DisableEventListeners()
	require.NoError(t, h.platform.Remove(h.ctx, native.MobileID))
	h.engine.EnableEventListeners()
	before := h.engine.Bookmarks()

	_, err := h.platform.Create(h.ctx, native.CreateDetails{ParentID: native.OtherID, Index: -1, Title: "x", URL: "https://x"})
	require.NoError(t, err)
	h.settle()

	warnings := h.logs.FilterLevelExact(zap.WarnLevel).FilterMessage("Missing container: mobile bookmarks")
	assert.Equal(t, 1, warnings.Len())
	assert.Equal(t, 1, h.logs.FilterMessage("Bookmark event processing aborted").Len())
	assert.Equal(t, before, h.engine.Bookmarks())
	assert.Equal(t, int32(0), h.exec.executed.Load(), "aborted drains do not sync")
}

func TestBuildIdMappingsFromScratch_RestoresMappings(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()
	want, err := h.mappings.List(h.ctx, time.Time{})
	require.NoError(t, err)

	require.NoError(t, h.mappings.Set(h.ctx, nil))
	require.NoError(t, h.engine.BuildIdMappingsFromScratch(h.ctx))

	got, err := h.mappings.List(h.ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].SyncedID, got[i].SyncedID)
		assert.Equal(t, want[i].NativeID, got[i].NativeID)
	}
}

func TestPlanIdMappings_PositionalPrefix(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	// An extra native node without a synced counterpart stays unmapped.
	h.engine.DisableEventListeners()
	_, err := h.platform.Create(h.ctx, native.CreateDetails{ParentID: "f", Index: -1, Title: "c", URL: "https://c"})
	require.NoError(t, err)
	h.engine.EnableEventListeners()

	plan, err := h.engine.PlanIdMappings(h.ctx)
	require.NoError(t, err)
	assert.Len(t, plan, 5)
	assert.Contains(t, plan, idmap.Mapping{SyncedID: 2, NativeID: "b"})
}

func TestCreateNativeTree_DoesNotEcho(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	created, err := h.engine.CreateNativeTree(h.ctx, native.MobileID, []bookmark.Bookmark{
		{Title: "folder", Children: []bookmark.Bookmark{{Title: "x", URL: "https://x"}, {}}},
		{Title: "y", URL: "https://y"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, created)
	assert.Equal(t, 0, h.engine.QueueLen())
	assert.True(t, h.engine.ListenersEnabled())

	mobile, err := h.platform.GetSubtree(h.ctx, native.MobileID)
	require.NoError(t, err)
	require.Len(t, mobile.Children, 2)
	assert.Equal(t, native.TypeSeparator, mobile.Children[0].Children[1].Type)
}

func TestGetBookmarksForExport(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	_, err := h.engine.ProcessNativeChange(h.ctx, &native.ModifyChange{ID: "go", Node: native.Node{Title: "  Go  ", URL: "https://go.dev", Tags: []string{"Lang"}}})
	require.NoError(t, err)

	bs, err := h.engine.GetBookmarksForExport(h.ctx)
	require.NoError(t, err)
	require.Len(t, bs, 2)
	for _, c := range bs {
		assert.NotEmpty(t, c.Children)
	}
	assert.Equal(t, "Go", bs[0].Children[0].Title)
	assert.Equal(t, []string{"lang"}, bs[0].Children[0].Tags)
}

func TestGetBookmarksForExport_SyncDisabledReadsBrowser(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.SyncEnabled = StaticSetting(false) })

	bs, err := h.engine.GetBookmarksForExport(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, bookmark.Count(bs))
}

func TestRestore_ReplacesBrowserContents(t *testing.T) {
	h := newHarness(t)
	h.bootstrap()

	restored := []bookmark.Bookmark{
		{ID: 1, Title: string(bookmark.ContainerOther), Children: []bookmark.Bookmark{
			{ID: 10, Title: "r1", URL: "https://r1"},
			{ID: 11, Title: "rf", Children: []bookmark.Bookmark{{ID: 12, Title: "r2", URL: "https://r2"}}},
		}},
	}
	require.NoError(t, h.engine.Restore(h.ctx, restored))
	assert.Equal(t, 0, h.engine.QueueLen())

	other, err := h.platform.GetSubtree(h.ctx, native.OtherID)
	require.NoError(t, err)
	require.Len(t, other.Children, 2)
	assert.Equal(t, "r1", other.Children[0].Title)
	menu, err := h.platform.GetSubtree(h.ctx, native.MenuID)
	require.NoError(t, err)
	assert.Empty(t, menu.Children)

	assert.Equal(t, 11, h.syncedID(other.Children[1].ID))
	assert.Equal(t, 12, h.syncedID(other.Children[1].Children[0].ID))
	count, _ := h.mappings.Count(h.ctx)
	assert.Equal(t, 3, count)
	assert.Equal(t, restored, h.engine.Bookmarks())
}

func TestReorderContainers_MovesUnsupportedFoldersLast(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Unsupported = []bookmark.Container{bookmark.ContainerMenu} })
	ctx := context.Background()
	_, err := h.platform.Create(ctx, native.CreateDetails{ParentID: native.OtherID, Index: 0, Title: string(bookmark.ContainerMenu), Type: native.TypeFolder})
	require.NoError(t, err)

	require.NoError(t, h.engine.ReorderContainers(ctx))

	other, err := h.platform.GetSubtree(ctx, native.OtherID)
	require.NoError(t, err)
	require.Len(t, other.Children, 3)
	assert.Equal(t, string(bookmark.ContainerMenu), other.Children[2].Title)
}

func TestNew_ValidatesDependencies(t *testing.T) {
	p := native.NewMemoryPlatform()
	_, err := New(Config{Platform: p})
	assert.Error(t, err)

	_, err = New(Config{
		Platform:   p,
		Containers: container.NewResolver(p, nil),
		Mappings:   idmap.NewMemoryStore(),
		Cache:      &memCache{},
		Executor:   &fakeExecutor{},
	})
	assert.NoError(t, err)
}

func TestImportExport_MatchesNativeTree(t *testing.T) {
	h := newHarness(t)
	folder, err := h.platform.Create(h.ctx, native.CreateDetails{ParentID: native.MobileID, Index: -1, Title: "phone", Type: native.TypeFolder})
	require.NoError(t, err)
	for _, d := range []native.CreateDetails{
		{ParentID: folder.ID, Index: -1, Title: "maps", URL: "https://maps.example"},
		{ParentID: folder.ID, Index: -1, Type: native.TypeSeparator},
		{ParentID: folder.ID, Index: -1, Title: "news", URL: "https://news.example"},
	} {
		_, err := h.platform.Create(h.ctx, d)
		require.NoError(t, err)
	}
	h.bootstrap()

	bs, err := h.engine.GetBookmarksForExport(h.ctx)
	require.NoError(t, err)

	roots := map[string]string{
		string(bookmark.ContainerOther):  native.OtherID,
		string(bookmark.ContainerMenu):   native.MenuID,
		string(bookmark.ContainerMobile): native.MobileID,
	}
	require.Len(t, bs, len(roots))
	for _, c := range bs {
		rootID, ok := roots[c.Title]
		require.True(t, ok, "unexpected container %q", c.Title)
		sub, err := h.platform.GetSubtree(h.ctx, rootID)
		require.NoError(t, err)
		assert.Equal(t, nativeOutline(sub.Children, 0), syncedOutline(c.Children, 0), c.Title)
	}
}

// nativeOutline and syncedOutline flatten a tree into indented
// "title url" lines so trees of either kind compare directly.
func nativeOutline(nodes []*native.Node, depth int) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, strings.Repeat("  ", depth)+n.Title+" "+n.URL)
		out = append(out, nativeOutline(n.Children, depth+1)...)
	}
	return out
}

func syncedOutline(bs []bookmark.Bookmark, depth int) []string {
	var out []string
	for _, b := range bs {
		out = append(out, strings.Repeat("  ", depth)+b.Title+" "+b.URL)
		out = append(out, syncedOutline(b.Children, depth+1)...)
	}
	return out
}
