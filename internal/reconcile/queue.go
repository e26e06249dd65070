package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/marksync/internal/native"
)

// DefaultDebounce is how long the queue waits after the last event before
// draining.
const DefaultDebounce = 200 * time.Millisecond

// ChangeEvent is a queued native change.
type ChangeEvent struct {
	Seq      uint64
	Change   native.Change
	QueuedAt time.Time
}

// DrainStats summarizes one drain of the queue.
type DrainStats struct {
	Processed int
	Failed    int
	Corrected int
	Duration  time.Duration
	// Err is set when a fatal error aborted the drain. Events not yet
	// processed stay queued.
	Err error
}

// EventHandler processes one event. A returned error that IsFatal aborts the
// drain; other errors are logged and the drain continues.
type EventHandler func(ctx context.Context, ev ChangeEvent) error

// DrainHandler is called after each drain.
type DrainHandler func(ctx context.Context, stats DrainStats)

// QueueConfig configures an EventQueue.
type QueueConfig struct {
	Debounce time.Duration
	Clock    Clock
	Logger   *zap.SugaredLogger
}

// EventQueue buffers native change events and drains them in arrival order
// once no new event has arrived for the debounce interval. At most one drain
// runs at a time; events enqueued during a drain are picked up by it. A
// started drain is never cancelled.
type EventQueue struct {
	cfg     QueueConfig
	handle  EventHandler
	drained DrainHandler

	mu     sync.Mutex
	events []ChangeEvent
	seq    uint64
	timer  Timer
	closed bool
	// drainDone is non-nil while a drain runs and closed when it ends.
	drainDone chan struct{}
	// correctedSeq is the highest Seq already passed through
	// CorrectMoveBatches. Events left queued by an aborted drain are not
	// corrected again.
	correctedSeq uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEventQueue creates a queue. drained may be nil.
func NewEventQueue(cfg QueueConfig, handle EventHandler, drained DrainHandler) *EventQueue {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventQueue{
		cfg:     cfg,
		handle:  handle,
		drained: drained,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue appends c and restarts the debounce timer.
func (q *EventQueue) Enqueue(c native.Change) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.seq++
	q.events = append(q.events, ChangeEvent{Seq: q.seq, Change: c, QueuedAt: q.cfg.Clock.Now()})
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = q.cfg.Clock.AfterFunc(q.cfg.Debounce, q.fire)
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *EventQueue) fire() {
	q.mu.Lock()
	q.timer = nil
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()
	defer q.wg.Done()

	q.drain(q.ctx)
}

// Flush cancels a pending debounce and drains now. When a drain is already
// running it waits for that drain to finish first, then drains whatever it
// left behind. ctx only bounds the wait.
func (q *EventQueue) Flush(ctx context.Context) {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	running := q.drainDone
	q.mu.Unlock()

	if running != nil {
		select {
		case <-running:
		case <-ctx.Done():
			return
		}
	}
	q.drain(ctx)
}

// Close stops the timer and waits for a running drain to run to completion.
// Events still waiting for the debounce are not drained; call Flush first to
// process them.
func (q *EventQueue) Close() {
	q.mu.Lock()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.mu.Unlock()
	q.wg.Wait()

	// A drain started by Flush is not tracked by wg.
	q.mu.Lock()
	running := q.drainDone
	q.mu.Unlock()
	if running != nil {
		<-running
	}
	q.cancel()
}

func (q *EventQueue) drain(ctx context.Context) {
	q.mu.Lock()
	if q.drainDone != nil || len(q.events) == 0 {
		q.mu.Unlock()
		return
	}
	done := make(chan struct{})
	q.drainDone = done
	stats := DrainStats{Corrected: q.correctLocked()}
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.drainDone = nil
		q.mu.Unlock()
		close(done)
	}()

	start := q.cfg.Clock.Now()
	for {
		q.mu.Lock()
		if len(q.events) == 0 {
			q.mu.Unlock()
			break
		}
		// Events that arrived since the drain started are corrected on
		// pickup, once.
		stats.Corrected += q.correctLocked()
		ev := q.events[0]
		q.events[0] = ChangeEvent{}
		q.events = q.events[1:]
		q.mu.Unlock()

		err := q.handle(ctx, ev)
		if err == nil {
			stats.Processed++
			continue
		}
		if IsFatal(err) {
			q.cfg.Logger.Errorw("Aborting event processing", "seq", ev.Seq, "type", ev.Change.Type().String(), "error", err)
			stats.Err = err
			break
		}
		stats.Failed++
		q.cfg.Logger.Warnw("Failed to process bookmark event", "seq", ev.Seq, "type", ev.Change.Type().String(), "error", err)
	}
	stats.Duration = q.cfg.Clock.Now().Sub(start)

	if q.drained != nil {
		q.drained(ctx, stats)
	}
}

// correctLocked runs CorrectMoveBatches over the queued events it has not
// seen yet. Events are queued in Seq order.
func (q *EventQueue) correctLocked() int {
	i := len(q.events)
	for i > 0 && q.events[i-1].Seq > q.correctedSeq {
		i--
	}
	fresh := q.events[i:]
	if len(fresh) == 0 {
		return 0
	}
	q.correctedSeq = fresh[len(fresh)-1].Seq
	return CorrectMoveBatches(fresh)
}
