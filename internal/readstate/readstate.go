// Package readstate tracks, per thread, where the user stopped reading and
// decides between auto-scrolling and a "jump to latest" affordance.
package readstate

import (
	"github.com/capitalize-ai/tutorchat/internal/model"
)

// DefaultBottomThreshold is how close to the bottom, in pixels, the viewport
// must be to count as at the bottom.
const DefaultBottomThreshold = 80

// UnreadStart returns the index of the first unread message: the position
// right after lastReadID. It returns -1 when there is no divider, meaning
// lastReadID is empty, not in msgs, or the newest message.
func UnreadStart(msgs []model.Message, lastReadID string) int {
	if lastReadID == "" {
		return -1
	}
	for i, m := range msgs {
		if m.ID == lastReadID || (m.ClientRef != "" && m.ClientRef == lastReadID) {
			if i == len(msgs)-1 {
				return -1
			}
			return i + 1
		}
	}
	return -1
}

// Decision tells the view what to do after an input.
type Decision struct {
	// AutoScroll moves the viewport to the newest message.
	AutoScroll bool `json:"auto_scroll"`
	// ShowJumpToLatest surfaces the "new messages" affordance.
	ShowJumpToLatest bool `json:"show_jump_to_latest"`
	// MarkRead asks the caller to persist the read boundary remotely once.
	MarkRead bool `json:"mark_read"`
}

type threadState struct {
	lastReadID string
	// anchor is the last-read id captured when the thread was opened; the
	// divider stays there while the thread is open.
	anchor   string
	atBottom bool
	pill     bool
	// unreadAtOpen is the list's unread count when the thread was opened.
	unreadAtOpen int
}

// Tracker holds read boundaries for every thread and the viewport state of
// the open one. It is not safe for concurrent use.
type Tracker struct {
	threshold float64
	active    model.ThreadKey
	threads   map[model.ThreadKey]*threadState
}

// NewTracker creates a tracker. A non-positive threshold uses the default.
func NewTracker(threshold float64) *Tracker {
	if threshold <= 0 {
		threshold = DefaultBottomThreshold
	}
	return &Tracker{threshold: threshold, threads: make(map[model.ThreadKey]*threadState)}
}

func (t *Tracker) state(key model.ThreadKey) *threadState {
	st, ok := t.threads[key]
	if !ok {
		st = &threadState{atBottom: true}
		t.threads[key] = st
	}
	return st
}

// Active returns the open thread.
func (t *Tracker) Active() model.ThreadKey {
	return t.active
}

// Open makes key the open thread with the given view. unread is the count the
// thread list showed; it places the divider when no boundary is known yet.
// Switching into a thread always marks it read.
func (t *Tracker) Open(key model.ThreadKey, view []model.Message, unread int) Decision {
	t.active = key
	st := t.state(key)
	st.anchor = st.lastReadID
	st.unreadAtOpen = unread
	st.atBottom = true
	st.pill = false
	if st.anchor == "" {
		st.anchor = anchorFromCount(view, unread)
	}
	t.advance(st, view)
	return Decision{AutoScroll: true, MarkRead: true}
}

// Refresh applies a freshly loaded view of the open thread. The boundary
// follows the view only while the viewport is at the bottom.
func (t *Tracker) Refresh(key model.ThreadKey, view []model.Message) Decision {
	if key != t.active {
		return Decision{}
	}
	st := t.state(key)
	if st.anchor == "" {
		st.anchor = anchorFromCount(view, st.unreadAtOpen)
	}
	if !st.atBottom {
		if m, ok := last(view); ok && !st.isBoundary(m) {
			st.pill = true
		}
		return Decision{ShowJumpToLatest: st.pill}
	}
	return Decision{AutoScroll: true, MarkRead: t.advance(st, view)}
}

// Close forgets the open thread.
func (t *Tracker) Close() {
	t.active = model.ThreadKey{}
}

// Scroll records the viewport position of the open thread as its distance
// from the bottom in pixels.
func (t *Tracker) Scroll(key model.ThreadKey, distanceFromBottom float64, view []model.Message) Decision {
	if key != t.active {
		return Decision{}
	}
	st := t.state(key)
	st.atBottom = distanceFromBottom < t.threshold
	if !st.atBottom {
		return Decision{ShowJumpToLatest: st.pill}
	}
	st.pill = false
	return Decision{MarkRead: t.advance(st, view)}
}

// OnMessage decides how the open thread reacts to a message that was just
// added to view. Own sends always scroll to the bottom.
func (t *Tracker) OnMessage(key model.ThreadKey, fromSelf bool, view []model.Message) Decision {
	if key != t.active {
		return Decision{}
	}
	st := t.state(key)
	if fromSelf {
		st.atBottom = true
		st.pill = false
		st.lastReadID = newest(view)
		return Decision{AutoScroll: true}
	}
	if st.atBottom {
		return Decision{AutoScroll: true, MarkRead: t.advance(st, view)}
	}
	st.pill = true
	return Decision{ShowJumpToLatest: true}
}

// JumpToLatest handles the "jump to latest" affordance.
func (t *Tracker) JumpToLatest(key model.ThreadKey, view []model.Message) Decision {
	if key != t.active {
		return Decision{}
	}
	st := t.state(key)
	st.atBottom = true
	st.pill = false
	return Decision{AutoScroll: true, MarkRead: t.advance(st, view)}
}

// SetLastRead moves the boundary of key to id, for example when the user read
// the thread on another device.
func (t *Tracker) SetLastRead(key model.ThreadKey, id string) {
	t.state(key).lastReadID = id
}

// Rebind moves a boundary that points at a temporary id to the server id
// that replaced it.
func (t *Tracker) Rebind(key model.ThreadKey, tempID, serverID string) {
	st, ok := t.threads[key]
	if !ok || tempID == "" {
		return
	}
	if st.lastReadID == tempID {
		st.lastReadID = serverID
	}
	if st.anchor == tempID {
		st.anchor = serverID
	}
}

// LastRead returns the boundary of key.
func (t *Tracker) LastRead(key model.ThreadKey) string {
	if st, ok := t.threads[key]; ok {
		return st.lastReadID
	}
	return ""
}

// Divider returns the unread-start index for the open thread, or -1.
func (t *Tracker) Divider(key model.ThreadKey, view []model.Message) int {
	if key != t.active {
		return -1
	}
	st, ok := t.threads[key]
	if !ok {
		return -1
	}
	return UnreadStart(view, st.anchor)
}

// ShowingJumpToLatest reports whether the affordance is visible for key.
func (t *Tracker) ShowingJumpToLatest(key model.ThreadKey) bool {
	st, ok := t.threads[key]
	return ok && key == t.active && st.pill
}

// AtBottom reports whether the open thread's viewport is at the bottom.
func (t *Tracker) AtBottom(key model.ThreadKey) bool {
	st, ok := t.threads[key]
	return !ok || st.atBottom
}

// advance moves the boundary to the newest message and reports whether it
// moved. A boundary on a temporary id follows its confirmed message without
// counting as a move.
func (t *Tracker) advance(st *threadState, view []model.Message) bool {
	m, ok := last(view)
	if !ok {
		return false
	}
	if st.isBoundary(m) {
		st.lastReadID = m.ID
		return false
	}
	st.lastReadID = m.ID
	return true
}

// isBoundary reports whether m is the last-read message, by server id or by
// the temporary id it was sent under.
func (st *threadState) isBoundary(m model.Message) bool {
	if st.lastReadID == "" {
		return false
	}
	return m.ID == st.lastReadID || (m.ClientRef != "" && m.ClientRef == st.lastReadID)
}

// anchorFromCount returns the id of the message before the last unread ones.
func anchorFromCount(view []model.Message, unread int) string {
	if unread <= 0 || unread >= len(view) {
		return ""
	}
	return view[len(view)-unread-1].ID
}

func newest(view []model.Message) string {
	m, _ := last(view)
	return m.ID
}

func last(view []model.Message) (model.Message, bool) {
	if len(view) == 0 {
		return model.Message{}, false
	}
	return view[len(view)-1], true
}
