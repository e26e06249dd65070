package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/marksync/internal/bookmark"
	"github.com/steveyegge/marksync/internal/container"
	"github.com/steveyegge/marksync/internal/native"
)

func seededImporter(t *testing.T, syncToolbar bool, unsupported ...bookmark.Container) (*Importer, *native.MemoryPlatform) {
	t.Helper()
	p := native.NewMemoryPlatform()
	require.NoError(t, p.Replace(seedRoot()))
	return &Importer{
		Platform:    p,
		Containers:  container.NewResolver(p, nil),
		SyncToolbar: StaticSetting(syncToolbar),
		Unsupported: unsupported,
	}, p
}

func TestImporter_NumbersByDateAdded(t *testing.T) {
	im, _ := seededImporter(t, false)

	bs, err := im.Import(context.Background())
	require.NoError(t, err)

	want := []bookmark.Bookmark{
		{ID: 6, Title: string(bookmark.ContainerOther), Children: []bookmark.Bookmark{
			{ID: 5, Title: "Go", URL: "https://go.dev", DateAdded: 300},
			{ID: 3, Title: "F", DateAdded: 100, Children: []bookmark.Bookmark{
				{ID: 4, Title: "a", URL: "https://a.example", DateAdded: 200},
				{ID: 2, Title: "b", URL: "https://b.example", DateAdded: 50},
			}},
		}},
		{ID: 7, Title: string(bookmark.ContainerMenu), Children: []bookmark.Bookmark{
			{ID: 1, Title: "m", URL: "https://m.example", DateAdded: 10},
		}},
	}
	assert.Equal(t, want, bs)
}

func TestImporter_IncludesToolbarWhenEnabled(t *testing.T) {
	im, _ := seededImporter(t, true)

	bs, err := im.Import(context.Background())
	require.NoError(t, err)
	require.Len(t, bs, 3)
	assert.Equal(t, string(bookmark.ContainerOther), bs[0].Title)
	assert.Equal(t, string(bookmark.ContainerToolbar), bs[1].Title)
	assert.Equal(t, string(bookmark.ContainerMenu), bs[2].Title)
	assert.Equal(t, []int{7, 8, 9}, []int{bs[0].ID, bs[1].ID, bs[2].ID})
	assert.Equal(t, 1, bs[1].Children[0].ID, "oldest node gets the first id")
}

func TestImporter_TiesKeepTraversalOrder(t *testing.T) {
	p := native.NewMemoryPlatform()
	ctx := context.Background()
	for _, title := range []string{"x", "y", "z"} {
		_, err := p.Create(ctx, native.CreateDetails{ParentID: native.MobileID, Index: -1, Title: title, URL: "https://" + title})
		require.NoError(t, err)
	}
	root, err := p.GetTree(ctx)
	require.NoError(t, err)
	for _, c := range root.Children {
		for _, n := range c.Children {
			n.DateAdded = 42
		}
	}
	require.NoError(t, p.Replace(root))

	im := &Importer{Platform: p, Containers: container.NewResolver(p, nil), SyncToolbar: StaticSetting(false)}
	bs, err := im.Import(ctx)
	require.NoError(t, err)
	require.Len(t, bs, 1)
	var ids []int
	for _, b := range bs[0].Children {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []int{1, 2, 3}, ids)
	assert.Equal(t, 4, bs[0].ID)
}

func TestImporter_UnsupportedContainerFolders(t *testing.T) {
	im, p := seededImporter(t, false, bookmark.ContainerMobile)
	ctx := context.Background()
	folder, err := p.Create(ctx, native.CreateDetails{ParentID: native.OtherID, Index: -1, Title: string(bookmark.ContainerMobile), Type: native.TypeFolder})
	require.NoError(t, err)
	_, err = p.Create(ctx, native.CreateDetails{ParentID: folder.ID, Index: -1, Title: "phone", URL: "https://phone.example"})
	require.NoError(t, err)

	bs, err := im.Import(ctx)
	require.NoError(t, err)
	require.Len(t, bs, 3)

	other := bs[0]
	assert.Len(t, other.Children, 2, "unsupported container folder is not part of Other")
	mobile := bs[2]
	assert.Equal(t, string(bookmark.ContainerMobile), mobile.Title)
	require.Len(t, mobile.Children, 1)
	assert.Equal(t, "phone", mobile.Children[0].Title)
}
