package container

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/steveyegge/marksync/internal/bookmark"
	"github.com/steveyegge/marksync/internal/native"
)

func TestResolve_AllPresent(t *testing.T) {
	r := NewResolver(native.NewMemoryPlatform(), nil)

	ids, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, native.OtherID, ids[bookmark.ContainerOther])
	assert.Len(t, ids, 4)
}

func TestResolve_MissingMobileLogsOnce(t *testing.T) {
	p := native.NewMemoryPlatform()
	require.NoError(t, p.Remove(context.Background(), native.MobileID))

	core, logs := observer.New(zap.WarnLevel)
	r := NewResolver(p, zap.New(core).Sugar())

	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContainerNotFound))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Missing container: mobile bookmarks", logs.All()[0].Message)
}

func TestNameForNativeID(t *testing.T) {
	p := native.NewMemoryPlatform()
	folder, err := p.Create(context.Background(), native.CreateDetails{ParentID: native.MenuID, Index: -1, Title: "f"})
	require.NoError(t, err)
	r := NewResolver(p, nil)

	name, err := r.NameForNativeID(context.Background(), native.ToolbarID)
	require.NoError(t, err)
	assert.Equal(t, bookmark.ContainerToolbar, name)

	name, err = r.NameForNativeID(context.Background(), folder.ID)
	require.NoError(t, err)
	assert.Equal(t, bookmark.Container(""), name)
}
