package syncq

import (
	"context"
	"time"
)

// Type says which side initiated a sync.
type Type string

const (
	// TypeLocal syncs remote changes down into the browser.
	TypeLocal Type = "local"
	// TypeRemote pushes local bookmark changes up to the service.
	TypeRemote Type = "remote"
)

// ChangeInfo describes the bookmark change that produced a sync.
type ChangeInfo struct {
	Type     string `json:"type"`
	NativeID string `json:"nativeId,omitempty"`
	SyncedID int    `json:"syncedId,omitempty"`
	OldIndex *int   `json:"oldIndex,omitempty"`
}

// Sync is one queued sync request.
type Sync struct {
	ID         string      `json:"id"`
	Type       Type        `json:"type"`
	ChangeInfo *ChangeInfo `json:"changeInfo,omitempty"`
	QueuedAt   time.Time   `json:"queuedAt"`
}

// Transport delivers syncs to the sync service.
type Transport interface {
	// Push sends syncs in order. Either every sync is delivered or an error
	// is returned and the batch is retried later.
	Push(ctx context.Context, syncs []Sync) error
}

// Executor queues sync requests and runs them.
//
// Queued syncs survive restarts. ExecuteSync delivers the whole pending
// batch through the Transport and removes it only after a successful push,
// so a failed push is retried by the next ExecuteSync.
type Executor interface {
	// QueueSync persists s. An empty ID is replaced with a fresh UUID and
	// a zero QueuedAt with the current time.
	QueueSync(ctx context.Context, s Sync) error

	// ExecuteSync pushes every pending sync. Concurrent calls are
	// serialized. It returns nil when nothing is pending.
	ExecuteSync(ctx context.Context) error

	// Pending returns the queued syncs in order.
	Pending(ctx context.Context) ([]Sync, error)
}
