package idmap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steveyegge/marksync/internal/db"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "idmap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.InitSchema())

	return map[string]Store{
		"sql":    New(database, zaptest.NewLogger(t).Sugar()),
		"memory": NewMemoryStore(),
	}
}

func TestStore_AddAndLookup(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Add(ctx, Mapping{SyncedID: 3, NativeID: "n3"}))

			m, err := s.GetByNativeID(ctx, "n3")
			require.NoError(t, err)
			require.NotNil(t, m)
			assert.Equal(t, 3, m.SyncedID)

			m, err = s.GetBySyncedID(ctx, 3)
			require.NoError(t, err)
			require.NotNil(t, m)
			assert.Equal(t, "n3", m.NativeID)

			m, err = s.GetBySyncedID(ctx, 4)
			require.NoError(t, err)
			assert.Nil(t, m)
		})
	}
}

func TestStore_RejectsDuplicates(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Add(ctx, Mapping{SyncedID: 1, NativeID: "a"}))

			assert.True(t, errors.Is(s.Add(ctx, Mapping{SyncedID: 1, NativeID: "b"}), ErrDuplicateMapping))
			assert.True(t, errors.Is(s.Add(ctx, Mapping{SyncedID: 2, NativeID: "a"}), ErrDuplicateMapping))

			count, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestStore_RemoveBatch(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 4; i++ {
				require.NoError(t, s.Add(ctx, Mapping{SyncedID: i, NativeID: string(rune('a' + i))}))
			}
			require.NoError(t, s.Remove(ctx, []int{1, 2, 3}))

			all, err := s.List(ctx, time.Time{})
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, 4, all[0].SyncedID)
		})
	}
}

func TestStore_SetReplacesAtomically(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Add(ctx, Mapping{SyncedID: 1, NativeID: "old"}))

			err := s.Set(ctx, []Mapping{{SyncedID: 5, NativeID: "x"}, {SyncedID: 6, NativeID: "x"}})
			assert.True(t, errors.Is(err, ErrDuplicateMapping))
			m, err := s.GetByNativeID(ctx, "old")
			require.NoError(t, err)
			assert.NotNil(t, m)

			require.NoError(t, s.Set(ctx, []Mapping{{SyncedID: 5, NativeID: "x"}, {SyncedID: 6, NativeID: "y"}}))
			m, err = s.GetByNativeID(ctx, "old")
			require.NoError(t, err)
			assert.Nil(t, m)
			count, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, count)
		})
	}
}
