package readstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/tutorchat/internal/model"
)

var thread = model.ThreadKey{CounterpartID: "tutor"}

func view(ids ...string) []model.Message {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]model.Message, len(ids))
	for i, id := range ids {
		out[i] = model.Message{ID: id, SenderID: "tutor", CreatedAt: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestUnreadStart(t *testing.T) {
	msgs := view("m1", "m2", "m3", "m4", "m5")

	assert.Equal(t, 3, UnreadStart(msgs, "m3"))
	assert.Equal(t, "m4", msgs[UnreadStart(msgs, "m3")].ID)
	assert.Equal(t, -1, UnreadStart(msgs, "m5"))
	assert.Equal(t, -1, UnreadStart(msgs, ""))
	assert.Equal(t, -1, UnreadStart(msgs, "gone"))
	assert.Equal(t, -1, UnreadStart(nil, "m1"))
	assert.Equal(t, 1, UnreadStart(msgs, "m1"))
}

func TestUnreadStartMatchesTemporaryReference(t *testing.T) {
	msgs := view("m1", "srv-2", "m3")
	msgs[1].ClientRef = "tmp-2"
	assert.Equal(t, 2, UnreadStart(msgs, "tmp-2"))
}

func TestOpenAnchorsDividerAndMarksRead(t *testing.T) {
	tr := NewTracker(0)
	tr.SetLastRead(thread, "m3")

	d := tr.Open(thread, view("m1", "m2", "m3", "m4", "m5"), 2)
	assert.Equal(t, Decision{AutoScroll: true, MarkRead: true}, d)
	assert.Equal(t, "m5", tr.LastRead(thread))

	// The divider stays where the user left off while the thread is open.
	assert.Equal(t, 3, tr.Divider(thread, view("m1", "m2", "m3", "m4", "m5")))

	other := model.ThreadKey{CounterpartID: "other"}
	assert.Equal(t, -1, tr.Divider(other, view("m1")))
}

func TestOpenWithoutBoundaryUsesUnreadCount(t *testing.T) {
	tr := NewTracker(0)

	// History has not loaded yet.
	tr.Open(thread, nil, 2)
	assert.Equal(t, -1, tr.Divider(thread, nil))

	loaded := view("m1", "m2", "m3", "m4")
	d := tr.Refresh(thread, loaded)
	assert.Equal(t, Decision{AutoScroll: true, MarkRead: true}, d, "the loaded boundary must be persisted")
	assert.Equal(t, 2, tr.Divider(thread, loaded))
	assert.Equal(t, "m4", tr.LastRead(thread))

	// Reloading the same history moves nothing.
	assert.Equal(t, Decision{AutoScroll: true}, tr.Refresh(thread, loaded))

	// A newer message at the bottom moves the boundary again.
	d = tr.Refresh(thread, view("m1", "m2", "m3", "m4", "m5"))
	assert.True(t, d.MarkRead)
	assert.Equal(t, "m5", tr.LastRead(thread))
}

func TestNewMessageAtBottomAutoScrolls(t *testing.T) {
	tr := NewTracker(80)
	tr.Open(thread, view("m1", "m2"), 0)

	tr.Scroll(thread, 10, view("m1", "m2"))
	d := tr.OnMessage(thread, false, view("m1", "m2", "m3"))

	assert.Equal(t, Decision{AutoScroll: true, MarkRead: true}, d)
	assert.Equal(t, "m3", tr.LastRead(thread))
	assert.False(t, tr.ShowingJumpToLatest(thread))
}

func TestNewMessageWhileScrolledUpShowsPill(t *testing.T) {
	tr := NewTracker(80)
	tr.Open(thread, view("m1", "m2"), 0)

	assert.Equal(t, Decision{}, tr.Scroll(thread, 400, view("m1", "m2")))
	d := tr.OnMessage(thread, false, view("m1", "m2", "m3"))

	assert.Equal(t, Decision{ShowJumpToLatest: true}, d)
	assert.Equal(t, "m2", tr.LastRead(thread))
	assert.True(t, tr.ShowingJumpToLatest(thread))

	// Scrolling around without reaching the bottom keeps the boundary.
	d = tr.Scroll(thread, 120, view("m1", "m2", "m3"))
	assert.Equal(t, Decision{ShowJumpToLatest: true}, d)
	assert.Equal(t, "m2", tr.LastRead(thread))

	// Returning to the bottom advances it once.
	d = tr.Scroll(thread, 79, view("m1", "m2", "m3"))
	assert.Equal(t, Decision{MarkRead: true}, d)
	assert.Equal(t, "m3", tr.LastRead(thread))
	assert.False(t, tr.ShowingJumpToLatest(thread))

	d = tr.Scroll(thread, 0, view("m1", "m2", "m3"))
	assert.False(t, d.MarkRead)
}

func TestJumpToLatest(t *testing.T) {
	tr := NewTracker(80)
	tr.Open(thread, view("m1"), 0)
	tr.Scroll(thread, 500, view("m1"))
	tr.OnMessage(thread, false, view("m1", "m2"))

	d := tr.JumpToLatest(thread, view("m1", "m2"))
	assert.Equal(t, Decision{AutoScroll: true, MarkRead: true}, d)
	assert.True(t, tr.AtBottom(thread))
	assert.False(t, tr.ShowingJumpToLatest(thread))
}

func TestOwnSendAlwaysScrolls(t *testing.T) {
	tr := NewTracker(80)
	tr.Open(thread, view("m1"), 0)
	tr.Scroll(thread, 900, view("m1"))

	d := tr.OnMessage(thread, true, view("m1", "tmp-1"))
	assert.Equal(t, Decision{AutoScroll: true}, d)
	assert.True(t, tr.AtBottom(thread))
	assert.Equal(t, "tmp-1", tr.LastRead(thread))
}

func TestInactiveThreadIsIgnored(t *testing.T) {
	tr := NewTracker(80)
	tr.Open(thread, view("m1"), 0)

	other := model.ThreadKey{CounterpartID: "other"}
	assert.Equal(t, Decision{}, tr.OnMessage(other, false, view("x1")))
	assert.Equal(t, Decision{}, tr.Scroll(other, 0, view("x1")))
	assert.Equal(t, Decision{}, tr.JumpToLatest(other, view("x1")))
	assert.Equal(t, "", tr.LastRead(other))

	tr.Close()
	assert.True(t, tr.Active().IsZero())
}

func TestRefreshWhileScrolledUp(t *testing.T) {
	tr := NewTracker(80)
	tr.Open(thread, view("m1", "m2"), 0)
	tr.Scroll(thread, 300, view("m1", "m2"))

	d := tr.Refresh(thread, view("m1", "m2", "m3"))
	require.True(t, d.ShowJumpToLatest)
	assert.Equal(t, "m2", tr.LastRead(thread))
}

func confirmed(msgs []model.Message, tempID, serverID string) []model.Message {
	out := append([]model.Message(nil), msgs...)
	for i := range out {
		if out[i].ID == tempID {
			out[i].ID = serverID
			out[i].ClientRef = tempID
		}
	}
	return out
}

func TestConfirmedOwnSendKeepsBoundary(t *testing.T) {
	tr := NewTracker(80)
	tr.Open(thread, view("m1"), 0)
	tr.OnMessage(thread, true, view("m1", "tmp-1"))
	tr.Scroll(thread, 300, view("m1", "tmp-1"))

	acked := confirmed(view("m1", "tmp-1"), "tmp-1", "srv-1")
	d := tr.Refresh(thread, acked)
	assert.Equal(t, Decision{}, d, "an acknowledged send is not a new message")

	d = tr.Scroll(thread, 0, acked)
	assert.False(t, d.MarkRead)
	assert.Equal(t, "srv-1", tr.LastRead(thread))
}

func TestRebind(t *testing.T) {
	tr := NewTracker(80)
	tr.Open(thread, view("m1"), 0)
	tr.OnMessage(thread, true, view("m1", "tmp-1"))

	tr.Rebind(thread, "tmp-other", "srv-9")
	assert.Equal(t, "tmp-1", tr.LastRead(thread))

	tr.Rebind(thread, "tmp-1", "srv-1")
	assert.Equal(t, "srv-1", tr.LastRead(thread))

	// Unknown threads are left alone.
	other := model.ThreadKey{CounterpartID: "other"}
	tr.Rebind(other, "tmp-1", "srv-1")
	assert.Equal(t, "", tr.LastRead(other))
}
