package reconcile

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/steveyegge/marksync/internal/bookmark"
	"github.com/steveyegge/marksync/internal/idmap"
	"github.com/steveyegge/marksync/internal/native"
)

// ContainerLookup names the container a native id is the root folder of.
type ContainerLookup interface {
	NameForNativeID(ctx context.Context, nativeID string) (bookmark.Container, error)
}

// Processor applies one native change to a working copy of the synced tree.
// It never touches the engine's committed tree; the caller adopts the tree
// from an applied Outcome.
type Processor struct {
	containers ContainerLookup
	mappings   idmap.Store
	policy     Policy
	logger     *zap.SugaredLogger
}

// NewProcessor returns a Processor.
func NewProcessor(containers ContainerLookup, mappings idmap.Store, policy Policy, logger *zap.SugaredLogger) *Processor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Processor{containers: containers, mappings: mappings, policy: policy, logger: logger}
}

// Process dispatches c to the handler for its type. tree is mutated.
func (p *Processor) Process(ctx context.Context, tree *bookmark.Tree, c native.Change) Outcome {
	switch ch := c.(type) {
	case *native.AddChange:
		return p.add(ctx, tree, ch)
	case *native.ModifyChange:
		return p.modify(ctx, tree, ch)
	case *native.RemoveChange:
		return p.remove(ctx, tree, ch)
	case *native.MoveChange:
		return p.move(ctx, tree, ch)
	case *native.ReorderChange:
		return p.reorder(ctx, tree, ch)
	default:
		return failed(errors.Wrapf(ErrAmbiguousRequest, "change %T", c))
	}
}

// checkNotContainer fails when nativeID is a native root folder.
func (p *Processor) checkNotContainer(ctx context.Context, nativeID string) error {
	name, err := p.containers.NameForNativeID(ctx, nativeID)
	if err != nil {
		return err
	}
	if name != "" {
		return errors.Wrapf(ErrContainerChanged, "%s", name.DisplayName())
	}
	return nil
}

// resolveParent returns the synced id standing for a native parent folder.
// Containers resolve to their synced container, created on demand when
// create is set; other folders need a mapping to a node present in tree.
func (p *Processor) resolveParent(ctx context.Context, tree *bookmark.Tree, nativeParentID string, create bool) (int, bool, error) {
	name, err := p.containers.NameForNativeID(ctx, nativeParentID)
	if err != nil {
		return 0, false, err
	}
	if name != "" {
		if create {
			return tree.EnsureContainer(name).ID, true, nil
		}
		n, ok := tree.Container(name)
		if !ok {
			return 0, false, nil
		}
		return n.ID, true, nil
	}
	return p.syncedID(ctx, tree, nativeParentID)
}

// syncedID returns the mapped synced id for nativeID when the mapped node is
// present in tree.
func (p *Processor) syncedID(ctx context.Context, tree *bookmark.Tree, nativeID string) (int, bool, error) {
	m, err := p.mappings.GetByNativeID(ctx, nativeID)
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to read id mapping")
	}
	if m == nil {
		return 0, false, nil
	}
	if _, ok := tree.Get(m.SyncedID); !ok {
		p.logger.Warnw("Mapped bookmark missing from synced tree", "native_id", nativeID, "synced_id", m.SyncedID)
		return 0, false, nil
	}
	return m.SyncedID, true, nil
}

func metadataOf(n native.Node) bookmark.Metadata {
	return bookmark.Metadata{
		Title:       n.Title,
		URL:         n.URL,
		Description: n.Description,
		Tags:        bookmark.NormalizeTags(n.Tags),
	}
}

func (p *Processor) add(ctx context.Context, tree *bookmark.Tree, c *native.AddChange) Outcome {
	if err := p.checkNotContainer(ctx, c.ID); err != nil {
		return failed(err)
	}
	m, err := p.mappings.GetByNativeID(ctx, c.ID)
	if err != nil {
		return failed(errors.Wrap(err, "failed to read id mapping"))
	}
	if m != nil {
		if _, ok := tree.Get(m.SyncedID); ok {
			return skipped("native bookmark %s already synced as %d", c.ID, m.SyncedID)
		}
		p.logger.Warnw("Dropping stale id mapping", "native_id", c.ID, "synced_id", m.SyncedID)
		if err := p.mappings.Remove(ctx, []int{m.SyncedID}); err != nil {
			return failed(errors.Wrap(err, "failed to remove id mappings"))
		}
	}

	parentID, ok, err := p.resolveParent(ctx, tree, c.Node.ParentID, true)
	if err != nil {
		return failed(err)
	}
	if !ok {
		return skipped("no id mapping for parent %s", c.Node.ParentID)
	}

	meta := metadataOf(c.Node)
	n, err := tree.Insert(parentID, c.Node.Index, bookmark.Node{
		Title:       meta.Title,
		URL:         meta.URL,
		Description: meta.Description,
		Tags:        meta.Tags,
		DateAdded:   c.Node.DateAdded,
	})
	if err != nil {
		return failed(err)
	}

	eligible, err := p.policy.ShouldSync(ctx, tree, n.ID)
	if err != nil {
		return failed(err)
	}
	if !eligible {
		return skipped("new bookmark %s is not in a synced location", c.ID)
	}

	if err := p.mappings.Add(ctx, idmap.Mapping{SyncedID: n.ID, NativeID: c.ID}); err != nil {
		return failed(err)
	}
	return applied(tree, n.ID)
}

func (p *Processor) modify(ctx context.Context, tree *bookmark.Tree, c *native.ModifyChange) Outcome {
	if err := p.checkNotContainer(ctx, c.ID); err != nil {
		return failed(err)
	}
	id, ok, err := p.syncedID(ctx, tree, c.ID)
	if err != nil {
		return failed(err)
	}
	if !ok {
		return skipped("no id mapping for %s", c.ID)
	}

	eligible, err := p.policy.ShouldSync(ctx, tree, id)
	if err != nil {
		return failed(err)
	}
	if !eligible {
		return skipped("bookmark %d is not in a synced location", id)
	}

	if err := tree.Update(id, metadataOf(c.Node)); err != nil {
		return failed(err)
	}
	return applied(tree, id)
}

func (p *Processor) remove(ctx context.Context, tree *bookmark.Tree, c *native.RemoveChange) Outcome {
	if err := p.checkNotContainer(ctx, c.ID); err != nil {
		return failed(err)
	}
	id, ok, err := p.syncedID(ctx, tree, c.ID)
	if err != nil {
		return failed(err)
	}
	if !ok {
		return skipped("no id mapping for %s", c.ID)
	}

	eligible, err := p.policy.ShouldSync(ctx, tree, id)
	if err != nil {
		return failed(err)
	}
	if !eligible {
		return skipped("bookmark %d is not in a synced location", id)
	}

	removed, err := tree.Remove(id)
	if err != nil {
		return failed(err)
	}
	if err := p.mappings.Remove(ctx, removed); err != nil {
		return failed(errors.Wrap(err, "failed to remove id mappings"))
	}
	return applied(tree, id)
}

func (p *Processor) move(ctx context.Context, tree *bookmark.Tree, c *native.MoveChange) Outcome {
	if err := p.checkNotContainer(ctx, c.ID); err != nil {
		return failed(err)
	}
	id, ok, err := p.syncedID(ctx, tree, c.ID)
	if err != nil {
		return failed(err)
	}
	if !ok {
		return skipped("no id mapping for %s", c.ID)
	}

	parentID, ok, err := p.resolveParent(ctx, tree, c.ParentID, true)
	if err != nil {
		return failed(err)
	}
	if !ok {
		return skipped("no id mapping for destination %s", c.ParentID)
	}

	if err := tree.Move(id, parentID, c.Index); err != nil {
		return failed(err)
	}

	eligible, err := p.policy.ShouldSync(ctx, tree, id)
	if err != nil {
		return failed(err)
	}
	if !eligible {
		return skipped("bookmark %d moved out of synced locations", id)
	}
	return applied(tree, id)
}

func (p *Processor) reorder(ctx context.Context, tree *bookmark.Tree, c *native.ReorderChange) Outcome {
	parentID, ok, err := p.resolveParent(ctx, tree, c.ParentID, false)
	if err != nil {
		return failed(err)
	}
	if !ok {
		return skipped("no synced folder for parent %s", c.ParentID)
	}

	order := make([]int, 0, len(c.ChildIDs))
	for _, nativeID := range c.ChildIDs {
		id, ok, err := p.syncedID(ctx, tree, nativeID)
		if err != nil {
			return failed(err)
		}
		if ok {
			order = append(order, id)
		}
	}

	dropped, err := tree.SetChildren(parentID, order)
	if err != nil {
		return failed(err)
	}
	if len(dropped) > 0 {
		p.logger.Warnw("Reorder dropped children missing from the new order",
			"parent_id", parentID, "dropped", dropped)
		if err := p.mappings.Remove(ctx, dropped); err != nil {
			return failed(errors.Wrap(err, "failed to remove id mappings"))
		}
	}
	return applied(tree, parentID)
}
