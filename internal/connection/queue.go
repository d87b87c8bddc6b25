package connection

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/internal/protocol"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
	"github.com/capitalize-ai/tutorchat/pkg/metrics"
)

// Frame is an encoded outbound frame and the thread it concerns.
type Frame struct {
	Kind    protocol.Kind
	Thread  model.ThreadKey
	Payload []byte
}

// Entry is a frame waiting in the outbound queue.
type Entry struct {
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Kind       protocol.Kind   `json:"kind"`
	Thread     model.ThreadKey `json:"thread"`
	Payload    []byte          `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Outbox persists queue entries.
type Outbox interface {
	// Load returns stored entries in enqueue order.
	Load() ([]Entry, error)
	Put(e Entry) error
	Delete(e Entry) error
	Close() error
}

// MemoryOutbox keeps nothing beyond the process lifetime.
type MemoryOutbox struct{}

func (MemoryOutbox) Load() ([]Entry, error) { return nil, nil }
func (MemoryOutbox) Put(Entry) error        { return nil }
func (MemoryOutbox) Delete(Entry) error     { return nil }
func (MemoryOutbox) Close() error           { return nil }

type queued struct {
	Entry
	inFlight bool
}

// Queue is the single FIFO of outbound frames shared by all threads. An entry
// leaves the queue only once the transport accepted it.
type Queue struct {
	items  []*queued
	seq    uint64
	outbox Outbox
	logger *logger.Logger
}

// NewQueue creates a queue, restoring any entries left in outbox.
func NewQueue(outbox Outbox, log *logger.Logger) (*Queue, error) {
	if outbox == nil {
		outbox = MemoryOutbox{}
	}
	q := &Queue{outbox: outbox, logger: logger.OrGlobal(log)}

	stored, err := outbox.Load()
	if err != nil {
		return nil, err
	}
	for _, e := range stored {
		q.items = append(q.items, &queued{Entry: e})
		if e.Seq > q.seq {
			q.seq = e.Seq
		}
	}
	if len(stored) > 0 {
		q.logger.Info("restored outbound queue", zap.Int("entries", len(stored)))
	}
	q.updateDepth()
	return q, nil
}

// Push appends a frame and returns its entry.
func (q *Queue) Push(f Frame, now time.Time) Entry {
	q.seq++
	e := Entry{
		ID:         uuid.NewString(),
		Seq:        q.seq,
		Kind:       f.Kind,
		Thread:     f.Thread,
		Payload:    f.Payload,
		EnqueuedAt: now,
	}
	if err := q.outbox.Put(e); err != nil {
		// The entry still goes out this session; it just won't survive a restart.
		q.logger.Error("failed to persist outbound entry", zap.String("entry_id", e.ID), zap.Error(err))
	}
	q.items = append(q.items, &queued{Entry: e})
	q.updateDepth()
	return e
}

// nextPending returns the oldest entry not yet handed to a writer.
func (q *Queue) nextPending() *queued {
	for _, it := range q.items {
		if !it.inFlight {
			return it
		}
	}
	return nil
}

// Remove drops an acknowledged entry. Unknown ids are ignored.
func (q *Queue) Remove(id string) bool {
	for i, it := range q.items {
		if it.ID != id {
			continue
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		if err := q.outbox.Delete(it.Entry); err != nil {
			q.logger.Error("failed to delete outbound entry", zap.String("entry_id", id), zap.Error(err))
		}
		q.updateDepth()
		return true
	}
	return false
}

// Revert returns every in-flight entry to pending, keeping queue order.
func (q *Queue) Revert() {
	for _, it := range q.items {
		it.inFlight = false
	}
}

// Len returns the number of entries not yet acknowledged.
func (q *Queue) Len() int {
	return len(q.items)
}

// Close releases the outbox.
func (q *Queue) Close() error {
	return q.outbox.Close()
}

func (q *Queue) updateDepth() {
	metrics.OutboundQueueDepth.Set(float64(len(q.items)))
}
