package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// SyncRow is one pending sync request.
type SyncRow struct {
	ID         string
	Type       string
	ChangeInfo string
	QueuedAt   time.Time
}

// InsertSync appends a sync request to the queue.
func (db *DB) InsertSync(ctx context.Context, row SyncRow) error {
	var info sql.NullString
	if row.ChangeInfo != "" {
		info = sql.NullString{String: row.ChangeInfo, Valid: true}
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sync_queue (id, type, change_info, queued_at) VALUES (?, ?, ?, ?)`,
		row.ID, row.Type, info, toMillis(row.QueuedAt))
	return errors.Wrap(err, "failed to queue sync")
}

// ListPendingSyncs returns queued sync requests in insertion order.
func (db *DB) ListPendingSyncs(ctx context.Context) ([]SyncRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, type, change_info, queued_at FROM sync_queue ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list syncs")
	}
	defer rows.Close()

	var out []SyncRow
	for rows.Next() {
		var r SyncRow
		var info sql.NullString
		var queued int64
		if err := rows.Scan(&r.ID, &r.Type, &info, &queued); err != nil {
			return nil, errors.Wrap(err, "failed to scan sync")
		}
		r.ChangeInfo = info.String
		r.QueuedAt = fromMillis(queued)
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate syncs")
}

// DeleteSyncs removes the given sync requests.
func (db *DB) DeleteSyncs(ctx context.Context, ids []string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM sync_queue WHERE id = ?`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare delete")
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return errors.Wrapf(err, "failed to delete sync %s", id)
			}
		}
		return nil
	})
}

// GetPendingSyncCount returns the number of queued sync requests.
func (db *DB) GetPendingSyncCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count syncs")
	}
	return count, nil
}
