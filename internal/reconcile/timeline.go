// Package reconcile merges optimistic local messages with server-confirmed
// ones into a single ordered, de-duplicated view per thread.
package reconcile

import (
	"slices"
	"time"

	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/pkg/metrics"
)

// Outcome describes what Apply did with a confirmed message.
type Outcome string

const (
	// Appended: the message was new.
	Appended Outcome = "appended"
	// Matched: the message replaced an optimistic entry.
	Matched Outcome = "matched"
	// Duplicate: the message was already known; only its state was merged.
	Duplicate Outcome = "duplicate"
)

// Timeline is the ordered message view of one thread. Messages are kept
// sorted ascending by CreatedAt; equal timestamps keep insertion order.
type Timeline struct {
	key    model.ThreadKey
	self   string
	window time.Duration

	msgs []*model.Message
	// byID indexes messages by server id, or temporary id until confirmed.
	byID map[string]*model.Message
}

// NewTimeline creates an empty timeline for key as seen by self.
func NewTimeline(key model.ThreadKey, self string, window time.Duration) *Timeline {
	if window <= 0 {
		window = DefaultMatchWindow
	}
	return &Timeline{
		key:    key,
		self:   self,
		window: window,
		byID:   make(map[string]*model.Message),
	}
}

// Key returns the thread key.
func (t *Timeline) Key() model.ThreadKey {
	return t.key
}

// AddOptimistic inserts a locally sent message that has not been confirmed.
// It returns false if a message with the same id is already present.
func (t *Timeline) AddOptimistic(msg model.Message) bool {
	if _, ok := t.byID[msg.ID]; ok {
		return false
	}
	msg.State = model.StateSent
	t.insert(&msg)
	return true
}

// Apply folds a server-confirmed message into the view.
func (t *Timeline) Apply(msg model.Message) Outcome {
	if msg.State == "" {
		msg.State = model.StateSent
	}

	outcome := t.apply(msg)
	metrics.MessagesReconciledTotal.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (t *Timeline) apply(msg model.Message) Outcome {
	if existing, ok := t.byID[msg.ID]; ok {
		existing.State = existing.State.Advance(msg.State)
		return Duplicate
	}

	pending := t.pending()
	if i := MatchOptimistic(valuesOf(pending), msg, t.window); i >= 0 {
		opt := pending[i]
		delete(t.byID, opt.ID)

		if opt.ClientRef == "" {
			opt.ClientRef = opt.ID
		}
		opt.ID = msg.ID
		opt.CreatedAt = msg.CreatedAt
		opt.Body = msg.Body
		opt.State = opt.State.Advance(msg.State)
		if msg.Attachment != nil {
			opt.Attachment = msg.Attachment
		}
		t.byID[opt.ID] = opt
		t.sort()
		return Matched
	}

	t.insert(&msg)
	return Appended
}

// Merge applies a batch such as a history fetch.
func (t *Timeline) Merge(msgs []model.Message) {
	for _, m := range msgs {
		t.Apply(m)
	}
}

// PromoteRead marks the current user's messages up to and including upToID
// as read. It returns how many changed; an unknown id changes nothing.
func (t *Timeline) PromoteRead(upToID string) int {
	target, ok := t.byID[upToID]
	if !ok {
		return 0
	}
	changed := 0
	for _, m := range t.msgs {
		if m.SenderID == t.self && m.State.Before(model.StateRead) {
			m.State = model.StateRead
			changed++
		}
		if m == target {
			break
		}
	}
	return changed
}

// Messages returns a copy of the ordered view.
func (t *Timeline) Messages() []model.Message {
	return valuesOf(t.msgs)
}

// Get returns the message with id.
func (t *Timeline) Get(id string) (model.Message, bool) {
	m, ok := t.byID[id]
	if !ok {
		return model.Message{}, false
	}
	return *m, true
}

// Last returns the newest message.
func (t *Timeline) Last() (model.Message, bool) {
	if len(t.msgs) == 0 {
		return model.Message{}, false
	}
	return *t.msgs[len(t.msgs)-1], true
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	return len(t.msgs)
}

// Pending returns the optimistic messages still awaiting confirmation.
func (t *Timeline) Pending() []model.Message {
	return valuesOf(t.pending())
}

func (t *Timeline) pending() []*model.Message {
	var out []*model.Message
	for _, m := range t.msgs {
		if m.IsTemporary() {
			out = append(out, m)
		}
	}
	return out
}

func (t *Timeline) insert(m *model.Message) {
	t.byID[m.ID] = m
	// Common case: newest message goes at the tail.
	if n := len(t.msgs); n == 0 || !m.CreatedAt.Before(t.msgs[n-1].CreatedAt) {
		t.msgs = append(t.msgs, m)
		return
	}
	t.msgs = append(t.msgs, m)
	t.sort()
}

func (t *Timeline) sort() {
	slices.SortStableFunc(t.msgs, func(a, b *model.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func valuesOf(ptrs []*model.Message) []model.Message {
	out := make([]model.Message, len(ptrs))
	for i, m := range ptrs {
		out[i] = *m
	}
	return out
}
