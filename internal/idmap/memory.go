package idmap

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// MemoryStore is a Store kept in memory. The CLI uses it for dry runs of a
// mapping rebuild.
type MemoryStore struct {
	mu       sync.Mutex
	bySynced map[int]Mapping
	byNative map[string]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySynced: make(map[int]Mapping),
		byNative: make(map[string]int),
	}
}

// GetByNativeID implements Store.
func (s *MemoryStore) GetByNativeID(_ context.Context, nativeID string) (*Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byNative[nativeID]
	if !ok {
		return nil, nil
	}
	m := s.bySynced[id]
	return &m, nil
}

// GetBySyncedID implements Store.
func (s *MemoryStore) GetBySyncedID(_ context.Context, syncedID int) (*Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.bySynced[syncedID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// Add implements Store.
func (s *MemoryStore) Add(_ context.Context, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bySynced[m.SyncedID]; ok {
		return errors.Wrapf(ErrDuplicateMapping, "synced %d", m.SyncedID)
	}
	if _, ok := s.byNative[m.NativeID]; ok {
		return errors.Wrapf(ErrDuplicateMapping, "native %s", m.NativeID)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.bySynced[m.SyncedID] = m
	s.byNative[m.NativeID] = m.SyncedID
	return nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, syncedIDs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range syncedIDs {
		if m, ok := s.bySynced[id]; ok {
			delete(s.byNative, m.NativeID)
			delete(s.bySynced, id)
		}
	}
	return nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, mappings []Mapping) error {
	fresh := NewMemoryStore()
	for _, m := range mappings {
		if err := fresh.Add(ctx, m); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySynced = fresh.bySynced
	s.byNative = fresh.byNative
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, since time.Time) ([]Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Mapping
	for _, m := range s.bySynced {
		if !m.CreatedAt.Before(since) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SyncedID < out[j].SyncedID })
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bySynced), nil
}
