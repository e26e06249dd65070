package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrMappingConflict is returned when either side of a new mapping is
// already mapped.
var ErrMappingConflict = errors.New("mapping conflict")

// MappingRow is one stored id mapping.
type MappingRow struct {
	SyncedID  int
	NativeID  string
	CreatedAt time.Time
}

// GetMappingByNativeID returns the mapping for a native id, or nil.
func (db *DB) GetMappingByNativeID(ctx context.Context, nativeID string) (*MappingRow, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT synced_id, native_id, created_at FROM id_mappings WHERE native_id = ?`, nativeID)
	return scanMapping(row)
}

// GetMappingBySyncedID returns the mapping for a synced id, or nil.
func (db *DB) GetMappingBySyncedID(ctx context.Context, syncedID int) (*MappingRow, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT synced_id, native_id, created_at FROM id_mappings WHERE synced_id = ?`, syncedID)
	return scanMapping(row)
}

func scanMapping(row *sql.Row) (*MappingRow, error) {
	var m MappingRow
	var created int64
	if err := row.Scan(&m.SyncedID, &m.NativeID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to query mapping")
	}
	m.CreatedAt = fromMillis(created)
	return &m, nil
}

// InsertMapping stores a new mapping. It fails with ErrMappingConflict when
// the synced id or the native id is already mapped.
func (db *DB) InsertMapping(ctx context.Context, m MappingRow) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM id_mappings WHERE synced_id = ? OR native_id = ?`,
			m.SyncedID, m.NativeID).Scan(&count)
		if err != nil {
			return errors.Wrap(err, "failed to check mapping")
		}
		if count > 0 {
			return errors.Wrapf(ErrMappingConflict, "synced %d / native %s", m.SyncedID, m.NativeID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO id_mappings (synced_id, native_id, created_at) VALUES (?, ?, ?)`,
			m.SyncedID, m.NativeID, toMillis(m.CreatedAt))
		return errors.Wrap(err, "failed to insert mapping")
	})
}

// DeleteMappings removes the mappings for the given synced ids in one
// transaction and returns how many rows were deleted. Unknown ids are
// ignored.
func (db *DB) DeleteMappings(ctx context.Context, syncedIDs []int) (int64, error) {
	var deleted int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM id_mappings WHERE synced_id = ?`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare delete")
		}
		defer stmt.Close()

		for _, id := range syncedIDs {
			res, err := stmt.ExecContext(ctx, id)
			if err != nil {
				return errors.Wrapf(err, "failed to delete mapping %d", id)
			}
			n, _ := res.RowsAffected()
			deleted += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// ReplaceMappings atomically replaces every mapping with rows.
func (db *DB) ReplaceMappings(ctx context.Context, rows []MappingRow) error {
	now := time.Now()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM id_mappings`); err != nil {
			return errors.Wrap(err, "failed to clear mappings")
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO id_mappings (synced_id, native_id, created_at) VALUES (?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare insert")
		}
		defer stmt.Close()

		for _, m := range rows {
			created := m.CreatedAt
			if created.IsZero() {
				created = now
			}
			if _, err := stmt.ExecContext(ctx, m.SyncedID, m.NativeID, toMillis(created)); err != nil {
				return errors.Wrapf(ErrMappingConflict, "synced %d / native %s: %v", m.SyncedID, m.NativeID, err)
			}
		}
		return nil
	})
}

// ListMappings returns mappings created at or after since, ordered by synced
// id. A zero since returns every mapping.
func (db *DB) ListMappings(ctx context.Context, since time.Time) ([]MappingRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT synced_id, native_id, created_at FROM id_mappings
		 WHERE created_at >= ? ORDER BY synced_id`, toMillis(since))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list mappings")
	}
	defer rows.Close()

	var out []MappingRow
	for rows.Next() {
		var m MappingRow
		var created int64
		if err := rows.Scan(&m.SyncedID, &m.NativeID, &created); err != nil {
			return nil, errors.Wrap(err, "failed to scan mapping")
		}
		m.CreatedAt = fromMillis(created)
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate mappings")
}

// GetMappingCount returns the number of stored mappings.
func (db *DB) GetMappingCount() (int, error) {
	return db.GetMappingCountContext(context.Background())
}

// GetMappingCountContext returns the number of stored mappings with context
// support.
func (db *DB) GetMappingCountContext(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM id_mappings`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count mappings")
	}
	return count, nil
}
