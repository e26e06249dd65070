package reconcile

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/steveyegge/marksync/internal/bookmark"
)

// Policy decides whether a synced node should be synchronized.
type Policy interface {
	ShouldSync(ctx context.Context, tree *bookmark.Tree, id int) (bool, error)
}

// Setting reads a boolean preference.
type Setting interface {
	Enabled(ctx context.Context) (bool, error)
}

// StaticSetting is a Setting with a fixed value.
type StaticSetting bool

// Enabled implements Setting.
func (s StaticSetting) Enabled(context.Context) (bool, error) { return bool(s), nil }

// ToolbarPolicy syncs everything except toolbar bookmarks when toolbar sync
// is off.
type ToolbarPolicy struct {
	SyncToolbar Setting
	Logger      *zap.SugaredLogger
}

// ShouldSync implements Policy.
func (p ToolbarPolicy) ShouldSync(ctx context.Context, tree *bookmark.Tree, id int) (bool, error) {
	c, ok := tree.ContainerOf(id)
	if !ok {
		return false, errors.Wrapf(ErrNoContainer, "synced id %d", id)
	}
	if c != bookmark.ContainerToolbar {
		return true, nil
	}
	enabled, err := p.SyncToolbar.Enabled(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to read toolbar setting")
	}
	if !enabled && p.Logger != nil {
		p.Logger.Infow("Not syncing toolbar", "synced_id", id)
	}
	return enabled, nil
}
