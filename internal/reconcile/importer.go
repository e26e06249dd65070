package reconcile

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/steveyegge/marksync/internal/bookmark"
	"github.com/steveyegge/marksync/internal/native"
)

// importOrder is the order containers are read from the browser.
var importOrder = []bookmark.Container{
	bookmark.ContainerOther,
	bookmark.ContainerToolbar,
	bookmark.ContainerMenu,
	bookmark.ContainerMobile,
}

// Resolver resolves every container to its native root folder id.
type Resolver interface {
	ContainerLookup
	Resolve(ctx context.Context) (map[bookmark.Container]string, error)
}

// Importer reads the native tree into synced bookmarks.
type Importer struct {
	Platform    native.Platform
	Containers  Resolver
	SyncToolbar Setting
	// Unsupported lists containers the browser has no root folder for;
	// they live as folders inside Other Bookmarks and are skipped there.
	Unsupported []bookmark.Container
}

// Import returns the native tree as synced bookmarks. Empty containers are
// omitted. Nodes are numbered in ascending dateAdded order across the whole
// tree, ties keeping traversal order; containers take the ids after them.
func (im *Importer) Import(ctx context.Context) ([]bookmark.Bookmark, error) {
	ids, err := im.Containers.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	syncToolbar, err := im.SyncToolbar.Enabled(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read toolbar setting")
	}

	var out []bookmark.Bookmark
	for _, c := range importOrder {
		if c == bookmark.ContainerToolbar && !syncToolbar {
			continue
		}
		children, err := im.nativeChildren(ctx, ids, c)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			continue
		}
		out = append(out, bookmark.Bookmark{Title: string(c), Children: convertNodes(children)})
	}

	assignIDs(out)
	return out, nil
}

// nativeChildren returns the native nodes holding the contents of c. An
// unsupported container's contents live in a same-titled folder inside Other
// Bookmarks; Other Bookmarks itself never lists those folders.
func (im *Importer) nativeChildren(ctx context.Context, ids map[bookmark.Container]string, c bookmark.Container) ([]*native.Node, error) {
	if im.isUnsupported(c) {
		other, err := im.Platform.GetSubtree(ctx, ids[bookmark.ContainerOther])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", bookmark.ContainerOther.DisplayName())
		}
		for _, n := range other.Children {
			if n.Kind() == native.TypeFolder && n.Title == string(c) {
				return n.Children, nil
			}
		}
		return nil, nil
	}

	sub, err := im.Platform.GetSubtree(ctx, ids[c])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", c.DisplayName())
	}
	if c == bookmark.ContainerOther {
		return im.withoutUnsupported(sub.Children), nil
	}
	return sub.Children, nil
}

func (im *Importer) isUnsupported(c bookmark.Container) bool {
	for _, u := range im.Unsupported {
		if u == c {
			return true
		}
	}
	return false
}

func (im *Importer) withoutUnsupported(nodes []*native.Node) []*native.Node {
	if len(im.Unsupported) == 0 {
		return nodes
	}
	out := make([]*native.Node, 0, len(nodes))
	for _, n := range nodes {
		if im.isUnsupportedFolder(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (im *Importer) isUnsupportedFolder(n *native.Node) bool {
	return n.Kind() == native.TypeFolder && im.isUnsupported(bookmark.Container(n.Title))
}

func convertNodes(nodes []*native.Node) []bookmark.Bookmark {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]bookmark.Bookmark, 0, len(nodes))
	for _, n := range nodes {
		b := bookmark.Bookmark{
			Title:       n.Title,
			URL:         n.URL,
			Description: n.Description,
			Tags:        bookmark.NormalizeTags(n.Tags),
			DateAdded:   n.DateAdded,
		}
		if n.Kind() == native.TypeSeparator {
			b.Title = ""
			b.URL = ""
		}
		if n.Kind() == native.TypeFolder {
			b.Children = convertNodes(n.Children)
		}
		out = append(out, b)
	}
	return out
}

// assignIDs numbers every descendant by ascending dateAdded, then gives the
// top-level nodes the ids left over.
func assignIDs(bs []bookmark.Bookmark) {
	var flat []*bookmark.Bookmark
	for i := range bs {
		bookmark.Walk(bs[i].Children, func(b *bookmark.Bookmark, _ int) bool {
			flat = append(flat, b)
			return true
		})
	}
	sort.SliceStable(flat, func(i, j int) bool {
		return flat[i].DateAdded < flat[j].DateAdded
	})

	next := 1
	for _, b := range flat {
		b.ID = next
		next++
	}
	for i := range bs {
		bs[i].ID = next
		next++
	}
}
