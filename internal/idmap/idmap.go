// Package idmap persists the bijection between synced bookmark ids and
// native browser ids.
package idmap

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/steveyegge/marksync/internal/db"
)

// ErrDuplicateMapping is returned when adding a mapping whose synced id or
// native id is already mapped.
var ErrDuplicateMapping = errors.New("id mapping already exists")

// Mapping pairs a synced id with a native id.
type Mapping struct {
	SyncedID  int       `json:"syncedId" yaml:"syncedId"`
	NativeID  string    `json:"nativeId" yaml:"nativeId"`
	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

// Store is the mapping store used by the reconciliation engine. Lookups
// return nil without error when nothing is mapped.
type Store interface {
	GetByNativeID(ctx context.Context, nativeID string) (*Mapping, error)
	GetBySyncedID(ctx context.Context, syncedID int) (*Mapping, error)

	// Add stores a new mapping. It fails with ErrDuplicateMapping if either
	// id is already mapped.
	Add(ctx context.Context, m Mapping) error

	// Remove deletes the mappings for every given synced id in one batch.
	Remove(ctx context.Context, syncedIDs []int) error

	// Set atomically replaces the whole mapping table.
	Set(ctx context.Context, mappings []Mapping) error

	// List returns mappings created at or after since.
	List(ctx context.Context, since time.Time) ([]Mapping, error)

	Count(ctx context.Context) (int, error)
}

// SQLStore is a Store backed by the marksync database.
type SQLStore struct {
	db     *db.DB
	logger *zap.SugaredLogger
}

// New returns a Store over database. A nil logger is replaced by a no-op
// logger.
func New(database *db.DB, logger *zap.SugaredLogger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SQLStore{db: database, logger: logger}
}

func fromRow(r *db.MappingRow) *Mapping {
	if r == nil {
		return nil
	}
	return &Mapping{SyncedID: r.SyncedID, NativeID: r.NativeID, CreatedAt: r.CreatedAt}
}

// GetByNativeID implements Store.
func (s *SQLStore) GetByNativeID(ctx context.Context, nativeID string) (*Mapping, error) {
	r, err := s.db.GetMappingByNativeID(ctx, nativeID)
	if err != nil {
		return nil, err
	}
	return fromRow(r), nil
}

// GetBySyncedID implements Store.
func (s *SQLStore) GetBySyncedID(ctx context.Context, syncedID int) (*Mapping, error) {
	r, err := s.db.GetMappingBySyncedID(ctx, syncedID)
	if err != nil {
		return nil, err
	}
	return fromRow(r), nil
}

// Add implements Store.
func (s *SQLStore) Add(ctx context.Context, m Mapping) error {
	err := s.db.InsertMapping(ctx, db.MappingRow{SyncedID: m.SyncedID, NativeID: m.NativeID, CreatedAt: m.CreatedAt})
	if errors.Is(err, db.ErrMappingConflict) {
		return errors.Wrapf(ErrDuplicateMapping, "synced %d / native %s", m.SyncedID, m.NativeID)
	}
	if err != nil {
		return err
	}
	s.logger.Debugw("Added id mapping", "synced_id", m.SyncedID, "native_id", m.NativeID)
	return nil
}

// Remove implements Store.
func (s *SQLStore) Remove(ctx context.Context, syncedIDs []int) error {
	if len(syncedIDs) == 0 {
		return nil
	}
	n, err := s.db.DeleteMappings(ctx, syncedIDs)
	if err != nil {
		return err
	}
	s.logger.Debugw("Removed id mappings", "requested", len(syncedIDs), "deleted", n)
	return nil
}

// Set implements Store.
func (s *SQLStore) Set(ctx context.Context, mappings []Mapping) error {
	rows := make([]db.MappingRow, len(mappings))
	for i, m := range mappings {
		rows[i] = db.MappingRow{SyncedID: m.SyncedID, NativeID: m.NativeID, CreatedAt: m.CreatedAt}
	}
	if err := s.db.ReplaceMappings(ctx, rows); err != nil {
		if errors.Is(err, db.ErrMappingConflict) {
			return errors.Mark(err, ErrDuplicateMapping)
		}
		return err
	}
	s.logger.Infow("Replaced id mappings", "count", len(mappings))
	return nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, since time.Time) ([]Mapping, error) {
	rows, err := s.db.ListMappings(ctx, since)
	if err != nil {
		return nil, err
	}
	out := make([]Mapping, len(rows))
	for i := range rows {
		out[i] = *fromRow(&rows[i])
	}
	return out, nil
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	return s.db.GetMappingCountContext(ctx)
}
