package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/steveyegge/marksync/internal/bookmark"
)

// KeyCachedBookmarks holds the synced bookmark tree as JSON.
const KeyCachedBookmarks = "cache.bookmarks"

// GetValue returns the value stored under key and whether it exists.
func (db *DB) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read %s", key)
	}
	return value, true, nil
}

// SetValue stores value under key, replacing any previous value.
func (db *DB) SetValue(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`, key, value, toMillis(time.Now()))
	return errors.Wrapf(err, "failed to write %s", key)
}

// LoadBookmarks returns the cached synced bookmark tree. A missing cache
// yields an empty tree.
func (db *DB) LoadBookmarks(ctx context.Context) ([]bookmark.Bookmark, error) {
	raw, ok, err := db.GetValue(ctx, KeyCachedBookmarks)
	if err != nil || !ok {
		return nil, err
	}
	var bs []bookmark.Bookmark
	if err := json.Unmarshal([]byte(raw), &bs); err != nil {
		return nil, errors.Wrap(err, "failed to parse cached bookmarks")
	}
	return bs, nil
}

// SaveBookmarks replaces the cached synced bookmark tree.
func (db *DB) SaveBookmarks(ctx context.Context, bs []bookmark.Bookmark) error {
	data, err := json.Marshal(bs)
	if err != nil {
		return errors.Wrap(err, "failed to marshal bookmarks")
	}
	return db.SetValue(ctx, KeyCachedBookmarks, string(data))
}
