package eventloop

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler runs delayed callbacks on a loop.
type Scheduler struct {
	loop  *Loop
	clock clockwork.Clock
}

// NewScheduler creates a scheduler. A nil clock uses the real clock.
func NewScheduler(loop *Loop, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{loop: loop, clock: clock}
}

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Clock returns the underlying clock.
func (s *Scheduler) Clock() clockwork.Clock {
	return s.clock
}

// Loop returns the loop callbacks run on.
func (s *Scheduler) Loop() *Loop {
	return s.loop
}

// Timer is a handle to a scheduled callback. Its methods must be called on the
// loop goroutine.
type Timer struct {
	timer clockwork.Timer
	done  bool
}

// AfterFunc schedules fn to run on the loop after d. Must be called on the
// loop goroutine.
func (s *Scheduler) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = s.clock.AfterFunc(d, func() {
		s.loop.Post(func() {
			if t.done {
				return
			}
			t.done = true
			fn()
		})
	})
	return t
}

// Stop cancels the callback. After Stop returns the callback will not run,
// even if the clock already fired and the callback is waiting on the loop.
func (t *Timer) Stop() {
	if t == nil || t.done {
		return
	}
	t.done = true
	t.timer.Stop()
}

// Pending reports whether the callback has neither run nor been stopped.
func (t *Timer) Pending() bool {
	return t != nil && !t.done
}
