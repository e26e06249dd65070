package reconcile

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/steveyegge/marksync/internal/bookmark"
	"github.com/steveyegge/marksync/internal/idmap"
	"github.com/steveyegge/marksync/internal/native"
	"github.com/steveyegge/marksync/internal/syncq"
)

// BuildIdMappingsFromScratch rebuilds every id mapping by walking the synced
// tree and the browser tree side by side, pairing children by position. The
// mapping table is replaced atomically.
func (e *Engine) BuildIdMappingsFromScratch(ctx context.Context) error {
	mappings, err := e.pairTrees(ctx)
	if err != nil {
		return err
	}
	if err := e.cfg.Mappings.Set(ctx, mappings); err != nil {
		return errors.Wrap(err, "failed to store id mappings")
	}
	e.logger.Infow("Rebuilt id mappings", "count", len(mappings))
	return nil
}

// PlanIdMappings returns the mappings BuildIdMappingsFromScratch would store
// without storing them.
func (e *Engine) PlanIdMappings(ctx context.Context) ([]idmap.Mapping, error) {
	return e.pairTrees(ctx)
}

func (e *Engine) pairTrees(ctx context.Context) ([]idmap.Mapping, error) {
	ids, err := e.cfg.Containers.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	syncToolbar, err := e.cfg.SyncToolbar.Enabled(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read toolbar setting")
	}

	synced := e.Bookmarks()
	var mappings []idmap.Mapping
	for _, c := range bookmark.Containers {
		if c == bookmark.ContainerToolbar && !syncToolbar {
			continue
		}
		sc := findContainer(synced, c)
		if sc == nil {
			continue
		}
		children, err := e.importer.nativeChildren(ctx, ids, c)
		if err != nil {
			return nil, err
		}
		mappings = pairChildren(mappings, sc.Children, children)
	}
	return mappings, nil
}

func findContainer(bs []bookmark.Bookmark, c bookmark.Container) *bookmark.Bookmark {
	for i := range bs {
		if bs[i].Title == string(c) && bs[i].URL == "" {
			return &bs[i]
		}
	}
	return nil
}

// pairChildren maps synced[i] to natives[i] for the common prefix, recursing
// into children.
func pairChildren(out []idmap.Mapping, synced []bookmark.Bookmark, natives []*native.Node) []idmap.Mapping {
	n := min(len(synced), len(natives))
	for i := 0; i < n; i++ {
		out = append(out, idmap.Mapping{SyncedID: synced[i].ID, NativeID: natives[i].ID})
		out = pairChildren(out, synced[i].Children, natives[i].Children)
	}
	return out
}

// CreateNativeTree creates bs in the browser under nativeParentID, appending
// after existing children. Event listeners are disabled meanwhile so the
// writes are not reconciled back. It returns the number of nodes created.
func (e *Engine) CreateNativeTree(ctx context.Context, nativeParentID string, bs []bookmark.Bookmark) (int, error) {
	e.DisableEventListeners()
	defer e.EnableEventListeners()
	return e.createNative(ctx, nativeParentID, bs)
}

func (e *Engine) createNative(ctx context.Context, parentID string, bs []bookmark.Bookmark) (int, error) {
	created := 0
	for _, b := range bs {
		d := native.CreateDetails{ParentID: parentID, Index: -1, Title: b.Title, URL: b.URL}
		switch b.Kind() {
		case bookmark.KindSeparator:
			d.Type = native.TypeSeparator
		case bookmark.KindBookmark:
			d.Type = native.TypeBookmark
		default:
			d.Type = native.TypeFolder
		}
		n, err := e.cfg.Platform.Create(ctx, d)
		if err != nil {
			return created, errors.Wrapf(err, "failed to create %q", b.Title)
		}
		created++
		if len(b.Children) > 0 {
			c, err := e.createNative(ctx, n.ID, b.Children)
			created += c
			if err != nil {
				return created, err
			}
		}
	}
	return created, nil
}

// ReorderContainers moves the folders that hold unsupported containers to
// the end of Other Bookmarks, in canonical container order.
func (e *Engine) ReorderContainers(ctx context.Context) error {
	if len(e.cfg.Unsupported) == 0 {
		return nil
	}
	e.DisableEventListeners()
	defer e.EnableEventListeners()

	ids, err := e.cfg.Containers.Resolve(ctx)
	if err != nil {
		return err
	}
	other, err := e.cfg.Platform.GetSubtree(ctx, ids[bookmark.ContainerOther])
	if err != nil {
		return errors.Wrap(err, "failed to read other bookmarks")
	}
	for _, c := range bookmark.Containers {
		if !e.importer.isUnsupported(c) {
			continue
		}
		for _, n := range other.Children {
			if n.Kind() == native.TypeFolder && n.Title == string(c) {
				if _, err := e.cfg.Platform.Move(ctx, n.ID, native.Destination{ParentID: other.ID, Index: -1}); err != nil {
					return errors.Wrapf(err, "failed to move %s", c.DisplayName())
				}
			}
		}
	}
	return nil
}

// Bootstrap seeds an empty synced tree from the browser and builds the id
// mappings. It does nothing when the synced tree already has content.
func (e *Engine) Bootstrap(ctx context.Context) (bool, error) {
	e.treeMu.Lock()
	empty := e.tree.Len() == 0
	e.treeMu.Unlock()
	if !empty {
		return false, nil
	}

	bs, err := e.importer.Import(ctx)
	if err != nil {
		return false, err
	}
	if err := e.replaceTree(ctx, bs); err != nil {
		return false, err
	}
	if err := e.BuildIdMappingsFromScratch(ctx); err != nil {
		return false, err
	}
	e.logger.Infow("Seeded synced bookmarks from browser", "count", bookmark.Count(bs))
	return true, e.cfg.Executor.QueueSync(ctx, syncq.Sync{Type: syncq.TypeRemote})
}

// Restore replaces both the synced tree and the browser contents of every
// synced container with bs, then rebuilds the id mappings.
func (e *Engine) Restore(ctx context.Context, bs []bookmark.Bookmark) error {
	tree, err := bookmark.FromBookmarks(bs)
	if err != nil {
		return errors.Wrap(err, "invalid bookmarks")
	}
	bs = tree.Bookmarks()

	ids, err := e.cfg.Containers.Resolve(ctx)
	if err != nil {
		return err
	}
	syncToolbar, err := e.cfg.SyncToolbar.Enabled(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read toolbar setting")
	}

	e.DisableEventListeners()
	defer e.EnableEventListeners()

	for _, c := range bookmark.Containers {
		if c == bookmark.ContainerToolbar && !syncToolbar {
			continue
		}
		parentID, err := e.clearNativeContainer(ctx, ids, c)
		if err != nil {
			return err
		}
		sc := findContainer(bs, c)
		if sc == nil || len(sc.Children) == 0 {
			continue
		}
		if parentID == "" {
			folder, err := e.cfg.Platform.Create(ctx, native.CreateDetails{
				ParentID: ids[bookmark.ContainerOther], Index: -1, Title: string(c), Type: native.TypeFolder,
			})
			if err != nil {
				return errors.Wrapf(err, "failed to create %s folder", c.DisplayName())
			}
			parentID = folder.ID
		}
		if _, err := e.createNative(ctx, parentID, sc.Children); err != nil {
			return err
		}
	}
	if err := e.ReorderContainers(ctx); err != nil {
		return err
	}

	if err := e.replaceTree(ctx, bs); err != nil {
		return err
	}
	if err := e.BuildIdMappingsFromScratch(ctx); err != nil {
		return err
	}
	return e.cfg.Executor.QueueSync(ctx, syncq.Sync{Type: syncq.TypeRemote})
}

// clearNativeContainer removes the browser contents of c. It returns the
// native folder to recreate contents under, or "" when an unsupported
// container's folder has to be created.
func (e *Engine) clearNativeContainer(ctx context.Context, ids map[bookmark.Container]string, c bookmark.Container) (string, error) {
	if e.importer.isUnsupported(c) {
		other, err := e.cfg.Platform.GetSubtree(ctx, ids[bookmark.ContainerOther])
		if err != nil {
			return "", errors.Wrap(err, "failed to read other bookmarks")
		}
		for _, n := range other.Children {
			if n.Kind() == native.TypeFolder && n.Title == string(c) {
				if err := e.cfg.Platform.Remove(ctx, n.ID); err != nil {
					return "", errors.Wrapf(err, "failed to clear %s", c.DisplayName())
				}
			}
		}
		return "", nil
	}

	sub, err := e.cfg.Platform.GetSubtree(ctx, ids[c])
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", c.DisplayName())
	}
	for _, n := range sub.Children {
		if c == bookmark.ContainerOther && e.importer.isUnsupportedFolder(n) {
			continue
		}
		if err := e.cfg.Platform.Remove(ctx, n.ID); err != nil {
			return "", errors.Wrapf(err, "failed to clear %s", c.DisplayName())
		}
	}
	return ids[c], nil
}

func (e *Engine) replaceTree(ctx context.Context, bs []bookmark.Bookmark) error {
	tree, err := bookmark.FromBookmarks(bs)
	if err != nil {
		return errors.Wrap(err, "invalid bookmarks")
	}
	e.treeMu.Lock()
	defer e.treeMu.Unlock()
	if err := e.cfg.Cache.SaveBookmarks(ctx, tree.Bookmarks()); err != nil {
		return errors.Wrap(err, "failed to persist synced bookmarks")
	}
	e.tree = tree
	return nil
}
