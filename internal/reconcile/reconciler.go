package reconcile

import (
	"time"

	"github.com/capitalize-ai/tutorchat/internal/model"
)

// Reconciler holds the timelines of every thread loaded this session.
type Reconciler struct {
	self      string
	window    time.Duration
	timelines map[model.ThreadKey]*Timeline
}

// New creates a reconciler for the current user.
func New(self string, window time.Duration) *Reconciler {
	return &Reconciler{
		self:      self,
		window:    window,
		timelines: make(map[model.ThreadKey]*Timeline),
	}
}

// Timeline returns the timeline for key, creating it if needed.
func (r *Reconciler) Timeline(key model.ThreadKey) *Timeline {
	t, ok := r.timelines[key]
	if !ok {
		t = NewTimeline(key, r.self, r.window)
		r.timelines[key] = t
	}
	return t
}

// Lookup returns the timeline for key if one exists.
func (r *Reconciler) Lookup(key model.ThreadKey) (*Timeline, bool) {
	t, ok := r.timelines[key]
	return t, ok
}

// Apply routes a confirmed message to its thread.
func (r *Reconciler) Apply(msg model.Message) (model.ThreadKey, Outcome) {
	key := msg.Thread(r.self)
	return key, r.Timeline(key).Apply(msg)
}
