// Package container maps the reserved synced containers onto the browser's
// well-known root folders.
package container

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/steveyegge/marksync/internal/bookmark"
	"github.com/steveyegge/marksync/internal/native"
)

// ErrContainerNotFound is returned when one or more native root folders are
// missing. It is fatal to a reconciliation pass.
var ErrContainerNotFound = errors.New("container not found")

// NativeIDs maps each container to its Firefox root folder id.
var NativeIDs = map[bookmark.Container]string{
	bookmark.ContainerMenu:    native.MenuID,
	bookmark.ContainerMobile:  native.MobileID,
	bookmark.ContainerOther:   native.OtherID,
	bookmark.ContainerToolbar: native.ToolbarID,
}

// Resolver answers container questions against the live native tree.
type Resolver struct {
	platform native.Platform
	logger   *zap.SugaredLogger
}

// NewResolver returns a Resolver for platform.
func NewResolver(platform native.Platform, logger *zap.SugaredLogger) *Resolver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Resolver{platform: platform, logger: logger}
}

// Resolve returns the native id of every container. Each missing root folder
// is logged once before the call fails with ErrContainerNotFound.
func (r *Resolver) Resolve(ctx context.Context) (map[bookmark.Container]string, error) {
	tree, err := r.platform.GetTree(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read native tree")
	}

	ids := make(map[bookmark.Container]string, len(bookmark.Containers))
	var missing []string
	for _, c := range bookmark.Containers {
		id := NativeIDs[c]
		if _, ok := tree.Child(id); !ok {
			r.logger.Warnf("Missing container: %s", c.DisplayName())
			missing = append(missing, c.DisplayName())
			continue
		}
		ids[c] = id
	}
	if len(missing) > 0 {
		return nil, errors.WithDetailf(
			errors.Wrapf(ErrContainerNotFound, "%d native root folders missing", len(missing)),
			"missing: %v", missing)
	}
	return ids, nil
}

// NameForNativeID returns the container whose root folder has nativeID, or
// "" when nativeID is not a container. Every container must resolve.
func (r *Resolver) NameForNativeID(ctx context.Context, nativeID string) (bookmark.Container, error) {
	ids, err := r.Resolve(ctx)
	if err != nil {
		return "", err
	}
	for c, id := range ids {
		if id == nativeID {
			return c, nil
		}
	}
	return "", nil
}
