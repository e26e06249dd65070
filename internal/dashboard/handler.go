package dashboard

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/marksync/internal/reconcile"
)

// ChangeData describes one processed native change.
type ChangeData struct {
	Seq      uint64 `json:"seq"`
	Type     string `json:"type"`
	NativeID string `json:"native_id"`
	SyncedID int    `json:"synced_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DrainData summarizes one drain of the event queue.
type DrainData struct {
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
	Corrected  int    `json:"corrected_moves"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// StatsData contains running totals since the handler was created.
type StatsData struct {
	Applied   int            `json:"applied"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Drains    int            `json:"drains"`
	Aborted   int            `json:"aborted"`
	ByType    map[string]int `json:"by_type"`
	LastDrain time.Time      `json:"last_drain,omitempty"`
}

// Handler turns engine notifications into dashboard messages. It implements
// reconcile.Observer.
type Handler struct {
	server *Server
	logger *zap.SugaredLogger

	mu    sync.Mutex
	stats StatsData
}

var _ reconcile.Observer = (*Handler)(nil)

// NewHandler creates a handler broadcasting through server. The server's
// /stats route reports the handler's statistics.
func NewHandler(server *Server, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &Handler{
		server: server,
		logger: logger,
		stats:  StatsData{ByType: make(map[string]int)},
	}
	server.stats = h.GetStats
	return h
}

// ChangeProcessed implements reconcile.Observer.
func (h *Handler) ChangeProcessed(ev reconcile.ChangeEvent, o reconcile.Outcome) {
	data := ChangeData{
		Seq:      ev.Seq,
		Type:     ev.Change.Type().String(),
		NativeID: ev.Change.NativeID(),
	}

	var typ MessageType
	h.mu.Lock()
	switch o.Kind {
	case reconcile.OutcomeApplied:
		typ = MessageTypeChangeApplied
		data.SyncedID = o.SyncedID
		h.stats.Applied++
	case reconcile.OutcomeSkipped:
		typ = MessageTypeChangeSkipped
		data.Reason = o.Reason
		h.stats.Skipped++
	default:
		typ = MessageTypeChangeFailed
		if o.Err != nil {
			data.Error = o.Err.Error()
		}
		h.stats.Failed++
	}
	h.stats.ByType[data.Type]++
	h.mu.Unlock()

	h.send(typ, data)
}

// DrainCompleted implements reconcile.Observer.
func (h *Handler) DrainCompleted(stats reconcile.DrainStats) {
	data := DrainData{
		Processed:  stats.Processed,
		Failed:     stats.Failed,
		Corrected:  stats.Corrected,
		DurationMs: stats.Duration.Milliseconds(),
	}
	if stats.Err != nil {
		data.Error = stats.Err.Error()
	}

	h.mu.Lock()
	h.stats.Drains++
	if stats.Err != nil {
		h.stats.Aborted++
	}
	h.stats.LastDrain = time.Now()
	h.mu.Unlock()

	h.send(MessageTypeDrainComplete, data)
	h.send(MessageTypeStats, h.GetStats())
}

func (h *Handler) send(typ MessageType, v any) {
	dataJSON, err := json.Marshal(v)
	if err != nil {
		h.logger.Warnw("Failed to marshal dashboard data", "type", typ, "error", err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: dataJSON})
}

// GetStats returns a copy of the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.stats
	out.ByType = make(map[string]int, len(h.stats.ByType))
	for k, v := range h.stats.ByType {
		out.ByType[k] = v
	}
	return out
}
