package syncq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steveyegge/marksync/internal/db"
)

// executor implements the Executor interface.
type executor struct {
	db        *db.DB
	transport Transport
	logger    *zap.SugaredLogger
	mu        sync.Mutex
}

// New creates an Executor over an initialized database.
//
// If logger is nil, a no-op logger is used.
//
// Example:
//
//	database, err := db.Open(path)
//	if err != nil {
//	    return err
//	}
//	if err := database.InitSchema(); err != nil {
//	    return err
//	}
//	exec := syncq.New(database, syncq.NewLogTransport(logger), logger)
func New(database *db.DB, transport Transport, logger *zap.SugaredLogger) Executor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &executor{db: database, transport: transport, logger: logger}
}

// QueueSync implements Executor.QueueSync.
func (x *executor) QueueSync(ctx context.Context, s Sync) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.QueuedAt.IsZero() {
		s.QueuedAt = time.Now()
	}
	if s.Type == "" {
		return errors.New("sync type is required")
	}
	var info string
	if s.ChangeInfo != nil {
		data, err := json.Marshal(s.ChangeInfo)
		if err != nil {
			return errors.Wrap(err, "failed to marshal change info")
		}
		info = string(data)
	}
	if err := x.db.InsertSync(ctx, db.SyncRow{ID: s.ID, Type: string(s.Type), ChangeInfo: info, QueuedAt: s.QueuedAt}); err != nil {
		return err
	}
	x.logger.Debugw("Queued sync", "id", s.ID, "type", s.Type)
	return nil
}

// Pending implements Executor.Pending.
func (x *executor) Pending(ctx context.Context) ([]Sync, error) {
	rows, err := x.db.ListPendingSyncs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Sync, 0, len(rows))
	for _, r := range rows {
		s := Sync{ID: r.ID, Type: Type(r.Type), QueuedAt: r.QueuedAt}
		if r.ChangeInfo != "" {
			var info ChangeInfo
			if err := json.Unmarshal([]byte(r.ChangeInfo), &info); err != nil {
				x.logger.Warnw("Dropping unreadable change info", "id", r.ID, "error", err)
			} else {
				s.ChangeInfo = &info
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// ExecuteSync implements Executor.ExecuteSync.
func (x *executor) ExecuteSync(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	pending, err := x.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	if err := x.transport.Push(ctx, pending); err != nil {
		return errors.Wrapf(err, "failed to push %d syncs", len(pending))
	}

	ids := make([]string, len(pending))
	for i, s := range pending {
		ids[i] = s.ID
	}
	if err := x.db.DeleteSyncs(ctx, ids); err != nil {
		return err
	}
	x.logger.Infow("Sync complete", "count", len(pending))
	return nil
}

// LogTransport is a Transport that only logs what it would send. It stands
// in for the sync service when none is configured.
type LogTransport struct {
	logger *zap.SugaredLogger
}

// NewLogTransport returns a LogTransport.
func NewLogTransport(logger *zap.SugaredLogger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogTransport{logger: logger}
}

// Push implements Transport.
func (t *LogTransport) Push(_ context.Context, syncs []Sync) error {
	for _, s := range syncs {
		fields := []any{"id", s.ID, "type", s.Type}
		if s.ChangeInfo != nil {
			fields = append(fields, "change", s.ChangeInfo.Type, "synced_id", s.ChangeInfo.SyncedID)
		}
		t.logger.Infow("Pushing sync", fields...)
	}
	return nil
}
