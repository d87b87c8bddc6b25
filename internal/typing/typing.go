// Package typing turns keystrokes into rate-limited typing signals and
// expires remote typing indicators.
package typing

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/capitalize-ai/tutorchat/internal/eventloop"
	"github.com/capitalize-ai/tutorchat/internal/model"
)

const (
	DefaultDebounce = 400 * time.Millisecond
	DefaultExpiry   = 4 * time.Second
)

// Coordinator must be used from the loop goroutine of its scheduler.
type Coordinator struct {
	sched    *eventloop.Scheduler
	debounce time.Duration
	expiry   time.Duration

	// emit sends a typing signal for a thread and reports whether it went out.
	emit func(model.ThreadKey) bool
	// changed is told when a thread's remote typing set changes.
	changed func(model.ThreadKey)

	local   model.ThreadKey
	limiter *rate.Limiter

	remote map[model.ThreadKey]map[string]*eventloop.Timer
}

// New creates a coordinator. Non-positive durations use the defaults.
func New(sched *eventloop.Scheduler, debounce, expiry time.Duration,
	emit func(model.ThreadKey) bool, changed func(model.ThreadKey)) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if emit == nil {
		emit = func(model.ThreadKey) bool { return false }
	}
	if changed == nil {
		changed = func(model.ThreadKey) {}
	}
	c := &Coordinator{
		sched:    sched,
		debounce: debounce,
		expiry:   expiry,
		emit:     emit,
		changed:  changed,
		remote:   make(map[model.ThreadKey]map[string]*eventloop.Timer),
	}
	c.resetLimiter()
	return c
}

func (c *Coordinator) resetLimiter() {
	c.limiter = rate.NewLimiter(rate.Every(c.debounce), 1)
}

// Input handles the current text of the composer for key. It returns true
// when a typing signal was emitted. Clearing the input stops emission until
// the user types again.
func (c *Coordinator) Input(key model.ThreadKey, text string) bool {
	if key != c.local {
		c.local = key
		c.resetLimiter()
	}
	if strings.TrimSpace(text) == "" {
		c.resetLimiter()
		return false
	}
	if !c.limiter.AllowN(c.sched.Now(), 1) {
		return false
	}
	if !c.emit(key) {
		// Dropped while offline; the next keystroke may try again.
		c.resetLimiter()
		return false
	}
	return true
}

// Remote records a typing signal from user in key. An active signal expires
// on its own after the expiry timeout.
func (c *Coordinator) Remote(key model.ThreadKey, userID string, active bool) {
	if !active {
		c.Clear(key, userID)
		return
	}

	users, ok := c.remote[key]
	if !ok {
		users = make(map[string]*eventloop.Timer)
		c.remote[key] = users
	}
	_, already := users[userID]
	users[userID].Stop()
	users[userID] = c.sched.AfterFunc(c.expiry, func() {
		c.Clear(key, userID)
	})
	if !already {
		c.changed(key)
	}
}

// Clear removes user's typing indicator from key, for example when a message
// from them arrives.
func (c *Coordinator) Clear(key model.ThreadKey, userID string) {
	users, ok := c.remote[key]
	if !ok {
		return
	}
	timer, ok := users[userID]
	if !ok {
		return
	}
	timer.Stop()
	delete(users, userID)
	if len(users) == 0 {
		delete(c.remote, key)
	}
	c.changed(key)
}

// Typing returns the users currently typing in key, sorted.
func (c *Coordinator) Typing(key model.ThreadKey) []string {
	users := c.remote[key]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close cancels every expiry timer.
func (c *Coordinator) Close() {
	for key, users := range c.remote {
		for _, timer := range users {
			timer.Stop()
		}
		delete(c.remote, key)
	}
}
