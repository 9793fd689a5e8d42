// Package buffer implements the priority-aware coalescing dispatcher that
// decouples a session's internal event stream from delivery to observers.
//
// Low-priority traffic is batched and flushed on a timer; messages at or
// above the configured threshold bypass the buffer and are dispatched
// synchronously. Delivery is at-least-once while the process is alive:
// buffered messages lost to a crash are an accepted limitation of the
// in-memory design.
package buffer

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ideaforge/bidtheater/domain"
	"github.com/ideaforge/bidtheater/logger"
)

// DeliverFunc sends a batch of events to all observers of the owning session.
// It is the only point where buffer code waits on external I/O.
type DeliverFunc func(events []domain.Event) error

// ErrorFunc reports a failed batch. Failed buffered batches are not retried.
type ErrorFunc func(events []domain.Event, err error)

// Config holds the buffer tuning knobs.
type Config struct {
	MaxBufferSize        int
	FlushInterval        time.Duration
	PriorityThreshold    domain.Priority
	BatchSize            int
	DedupWindowPerSource int
	MaxRetries           int
	RetryBackoff         time.Duration
}

// DefaultConfig returns the canonical buffer configuration.
func DefaultConfig() Config {
	return Config{
		MaxBufferSize:        50,
		FlushInterval:        time.Second,
		PriorityThreshold:    domain.PriorityHigh,
		BatchSize:            10,
		DedupWindowPerSource: 3,
		MaxRetries:           3,
		RetryBackoff:         100 * time.Millisecond,
	}
}

// Stats are the buffer's running delivery counters. AvgLatencyMs is an
// exponential moving average of buffered-message queue latency.
type Stats struct {
	Received     uint64  `json:"received"`
	Processed    uint64  `json:"processed"`
	Failed       uint64  `json:"failed"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// bufferedMessage is owned exclusively by the buffer and never escapes it.
type bufferedMessage struct {
	id         string
	event      domain.Event
	enqueuedAt time.Time
	seq        uint64
	priority   domain.Priority
	retryCount int
}

// Buffer is a coalescing dispatcher for one session's event stream.
type Buffer struct {
	cfg     Config
	deliver DeliverFunc
	onError ErrorFunc

	mu        sync.Mutex
	pending   []*bufferedMessage
	perSource map[string]int
	seq       uint64
	stats     Stats
	stopped   bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a buffer and starts its periodic flush timer.
func New(cfg Config, deliver DeliverFunc, onError ErrorFunc) *Buffer {
	def := DefaultConfig()
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = def.MaxBufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.DedupWindowPerSource <= 0 {
		cfg.DedupWindowPerSource = def.DedupWindowPerSource
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}

	b := &Buffer{
		cfg:       cfg,
		deliver:   deliver,
		onError:   onError,
		perSource: make(map[string]int),
		done:      make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushLoop()
	return b
}

// ClassifyPriority maps an event kind (and for speech, its emotion) to a
// delivery priority. The mapping is exhaustive over the event taxonomy.
func ClassifyPriority(ev domain.Event) domain.Priority {
	switch e := ev.(type) {
	case *domain.TimerUpdate:
		return domain.PriorityLow
	case *domain.PhaseStarted:
		return domain.PriorityNormal
	case *domain.PersonaSpeech:
		switch e.Emotion {
		case "excited", "aggressive", "confident":
			return domain.PriorityHigh
		default:
			return domain.PriorityNormal
		}
	case *domain.BidPlaced:
		return domain.PriorityCritical
	case *domain.SessionCompleted:
		return domain.PriorityCritical
	case *domain.ErrorEvent:
		return domain.PriorityHigh
	default:
		return domain.PriorityNormal
	}
}

// AddMessage accepts one event. Messages at or above the priority threshold
// are dispatched synchronously before AddMessage returns; everything else is
// buffered, subject to the size valve and the per-source dedup window.
// AddMessage never returns an error and never blocks the producer on a full
// buffer: overflow forces a flush instead of rejecting.
func (b *Buffer) AddMessage(ev domain.Event) {
	priority := ClassifyPriority(ev)

	b.mu.Lock()
	b.stats.Received++
	if b.stopped {
		b.mu.Unlock()
		logger.Warn("buffer stopped, dropping %s message", ev.Kind())
		return
	}

	if priority >= b.cfg.PriorityThreshold {
		b.mu.Unlock()
		b.dispatchImmediate(ev, priority)
		return
	}

	msg := &bufferedMessage{
		id:         "buf_" + uuid.New().String()[:8],
		event:      ev,
		enqueuedAt: time.Now(),
		seq:        b.seq,
		priority:   priority,
	}
	b.seq++
	b.pending = append(b.pending, msg)
	src := ev.Source()
	if src != "" {
		b.perSource[src]++
	}

	var toFlush []*bufferedMessage
	if len(b.pending) >= b.cfg.MaxBufferSize {
		toFlush = b.drainLocked()
	} else if src != "" && b.perSource[src] > b.cfg.DedupWindowPerSource {
		b.dedupLocked(src)
	}
	b.mu.Unlock()

	if len(toFlush) > 0 {
		b.deliverBatches(toFlush)
	}
}

// dedupLocked evicts the oldest buffered messages for src beyond the window.
func (b *Buffer) dedupLocked(src string) {
	excess := b.perSource[src] - b.cfg.DedupWindowPerSource
	if excess <= 0 {
		return
	}
	kept := b.pending[:0]
	for _, m := range b.pending {
		if excess > 0 && m.event.Source() == src {
			excess--
			b.perSource[src]--
			continue
		}
		kept = append(kept, m)
	}
	b.pending = kept
}

// drainLocked snapshots and clears the live buffer. Callers deliver the
// returned messages outside the critical section.
func (b *Buffer) drainLocked() []*bufferedMessage {
	msgs := b.pending
	b.pending = nil
	b.perSource = make(map[string]int)
	return msgs
}

// Flush delivers everything currently buffered.
func (b *Buffer) Flush() {
	b.mu.Lock()
	msgs := b.drainLocked()
	b.mu.Unlock()
	b.deliverBatches(msgs)
}

// deliverBatches sorts a drained snapshot by (priority desc, enqueue order
// asc), partitions it into fixed-size batches, and delivers each batch
// independently. A failed batch is reported and skipped, never retried.
func (b *Buffer) deliverBatches(msgs []*bufferedMessage) {
	if len(msgs) == 0 {
		return
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].priority != msgs[j].priority {
			return msgs[i].priority > msgs[j].priority
		}
		return msgs[i].seq < msgs[j].seq
	})

	for start := 0; start < len(msgs); start += b.cfg.BatchSize {
		end := start + b.cfg.BatchSize
		if end > len(msgs) {
			end = len(msgs)
		}
		batch := msgs[start:end]

		events := make([]domain.Event, len(batch))
		for i, m := range batch {
			events[i] = m.event
		}

		if err := b.deliver(events); err != nil {
			logger.Warn("batch delivery failed for %d messages: %v", len(batch), err)
			b.mu.Lock()
			b.stats.Failed += uint64(len(batch))
			b.mu.Unlock()
			if b.onError != nil {
				b.onError(events, err)
			}
			continue
		}

		now := time.Now()
		var latency float64
		for _, m := range batch {
			latency += float64(now.Sub(m.enqueuedAt).Milliseconds())
		}
		latency /= float64(len(batch))

		b.mu.Lock()
		b.stats.Processed += uint64(len(batch))
		if b.stats.AvgLatencyMs == 0 {
			b.stats.AvgLatencyMs = latency
		} else {
			b.stats.AvgLatencyMs = 0.8*b.stats.AvgLatencyMs + 0.2*latency
		}
		b.mu.Unlock()
	}
}

// dispatchImmediate delivers one high-priority event synchronously. On
// failure the event is retried in the background with increasing backoff, up
// to the configured retry count. The first attempt always happens before
// AddMessage returns.
func (b *Buffer) dispatchImmediate(ev domain.Event, priority domain.Priority) {
	err := b.deliver([]domain.Event{ev})
	if err == nil {
		b.mu.Lock()
		b.stats.Processed++
		b.mu.Unlock()
		return
	}

	logger.Warn("immediate dispatch of %s failed: %v", ev.Kind(), err)
	msg := &bufferedMessage{
		id:         "buf_" + uuid.New().String()[:8],
		event:      ev,
		enqueuedAt: time.Now(),
		priority:   priority,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		lastErr := err
		for msg.retryCount < b.cfg.MaxRetries {
			msg.retryCount++
			backoff := time.Duration(msg.retryCount) * b.cfg.RetryBackoff
			select {
			case <-time.After(backoff):
			case <-b.done:
				return
			}
			if lastErr = b.deliver([]domain.Event{msg.event}); lastErr == nil {
				b.mu.Lock()
				b.stats.Processed++
				b.mu.Unlock()
				return
			}
			logger.Warn("retry %d for %s failed: %v", msg.retryCount, msg.event.Kind(), lastErr)
		}
		b.mu.Lock()
		b.stats.Failed++
		b.mu.Unlock()
		if b.onError != nil {
			b.onError([]domain.Event{msg.event}, lastErr)
		}
	}()
}

// flushLoop runs the periodic flush timer until Stop.
func (b *Buffer) flushLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}

// Stop cancels the flush timer and drains remaining messages best-effort.
// It is safe to call more than once.
func (b *Buffer) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	b.Flush()
}

// Stats returns a copy of the running counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// PendingCount reports how many messages are currently buffered.
func (b *Buffer) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// PendingForSource reports how many buffered messages originate from src.
func (b *Buffer) PendingForSource(src string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.perSource[src]
}
