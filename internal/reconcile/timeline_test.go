package reconcile

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/tutorchat/internal/model"
)

var (
	t0      = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tutor   = model.ThreadKey{CounterpartID: "tutor"}
	selfID  = "me"
	otherID = "tutor"
)

func inbound(id string, at time.Duration, body string) model.Message {
	return model.Message{ID: id, SenderID: otherID, RecipientID: selfID, Body: body, CreatedAt: t0.Add(at)}
}

func outbound(id string, at time.Duration, body string) model.Message {
	return model.Message{ID: id, SenderID: selfID, RecipientID: otherID, Body: body, CreatedAt: t0.Add(at)}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func assertSorted(t *testing.T, msgs []model.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "index %d out of order", i)
	}
}

func TestOutOfOrderArrivalIsSortedByCreation(t *testing.T) {
	tl := NewTimeline(tutor, selfID, 0)

	tl.Apply(inbound("m2", 2*time.Second, "two"))
	tl.Apply(inbound("m1", 1*time.Second, "one"))
	tl.Apply(inbound("m3", 3*time.Second, "three"))

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(tl.Messages()))
}

func TestAnyArrivalOrderYieldsSortedView(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 100; run++ {
		tl := NewTimeline(tutor, selfID, 0)
		var events []model.Message
		for i := 0; i < 12; i++ {
			at := time.Duration(rng.Intn(60)) * time.Second
			if i%3 == 0 {
				events = append(events, outbound("s"+string(rune('a'+i)), at, "x"))
			} else {
				events = append(events, inbound("r"+string(rune('a'+i)), at, "y"))
			}
		}
		rng.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })

		// Replays must not add entries either.
		for _, ev := range append(events, events[:4]...) {
			tl.Apply(ev)
		}
		msgs := tl.Messages()
		assert.Len(t, msgs, 12)
		assertSorted(t, msgs)
	}
}

func TestOptimisticSendIsReplacedNotDuplicated(t *testing.T) {
	tl := NewTimeline(tutor, selfID, 0)

	opt := outbound(model.TemporaryIDPrefix+"1", 0, "hello")
	opt.ClientRef = opt.ID
	require.True(t, tl.AddOptimistic(opt))
	assert.Equal(t, model.StateSent, tl.Messages()[0].State)

	confirmed := outbound("srv-1", 800*time.Millisecond, "hello")
	confirmed.ClientRef = opt.ID
	assert.Equal(t, Matched, tl.Apply(confirmed))

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
	assert.Equal(t, t0.Add(800*time.Millisecond), msgs[0].CreatedAt)
	assert.Equal(t, model.StateSent, msgs[0].State)
	assert.Equal(t, opt.ID, msgs[0].ClientRef)
	assert.Empty(t, tl.Pending())

	// The same server event again is a duplicate.
	assert.Equal(t, Duplicate, tl.Apply(confirmed))
	assert.Len(t, tl.Messages(), 1)
}

func TestOptimisticMatchedByContentWithoutClientRef(t *testing.T) {
	tl := NewTimeline(tutor, selfID, time.Minute)

	tl.AddOptimistic(outbound(model.TemporaryIDPrefix+"a", 0, "see you at 5"))
	assert.Equal(t, Matched, tl.Apply(outbound("srv-9", 2*time.Second, "  see you at 5 ")))
	assert.Equal(t, []string{"srv-9"}, ids(tl.Messages()))
}

func TestLateAckAfterNewerPushSelfCorrects(t *testing.T) {
	tl := NewTimeline(tutor, selfID, 0)

	tl.AddOptimistic(outbound(model.TemporaryIDPrefix+"a", 5*time.Second, "mine"))
	tl.Apply(inbound("srv-2", 6*time.Second, "reply"))

	// The server stamped the send earlier than the local clock did.
	confirmed := outbound("srv-1", 4*time.Second, "mine")
	assert.Equal(t, Matched, tl.Apply(confirmed))
	assert.Equal(t, []string{"srv-1", "srv-2"}, ids(tl.Messages()))
}

func TestInboundWithSameBodyIsNotMatchedToOwnSend(t *testing.T) {
	tl := NewTimeline(tutor, selfID, 0)

	tl.AddOptimistic(outbound(model.TemporaryIDPrefix+"a", 0, "ok"))
	assert.Equal(t, Appended, tl.Apply(inbound("srv-1", time.Second, "ok")))
	assert.Len(t, tl.Messages(), 2)
	assert.Len(t, tl.Pending(), 1)
}

func TestDeliveryStateIsMonotonic(t *testing.T) {
	tl := NewTimeline(tutor, selfID, 0)

	m := outbound("srv-1", 0, "hi")
	m.State = model.StateRead
	tl.Apply(m)

	for _, s := range []model.DeliveryState{model.StateSent, model.StateDelivered, ""} {
		replay := m
		replay.State = s
		assert.Equal(t, Duplicate, tl.Apply(replay))
		got, _ := tl.Get("srv-1")
		assert.Equal(t, model.StateRead, got.State)
	}

	opt := outbound(model.TemporaryIDPrefix+"x", time.Second, "later")
	tl.AddOptimistic(opt)
	confirmed := outbound("srv-2", time.Second, "later")
	confirmed.State = model.StateDelivered
	tl.Apply(confirmed)
	got, _ := tl.Get("srv-2")
	assert.Equal(t, model.StateDelivered, got.State)
}

func TestPromoteReadOnlyOwnMessagesUpToReference(t *testing.T) {
	tl := NewTimeline(tutor, selfID, 0)
	tl.Merge([]model.Message{
		outbound("o1", 1*time.Second, "a"),
		inbound("i1", 2*time.Second, "b"),
		outbound("o2", 3*time.Second, "c"),
		outbound("o3", 4*time.Second, "d"),
	})

	assert.Equal(t, 2, tl.PromoteRead("o2"))

	want := map[string]model.DeliveryState{
		"o1": model.StateRead,
		"i1": model.StateSent,
		"o2": model.StateRead,
		"o3": model.StateSent,
	}
	for _, m := range tl.Messages() {
		assert.Equal(t, want[m.ID], m.State, m.ID)
	}

	assert.Equal(t, 0, tl.PromoteRead("o2"))
	assert.Equal(t, 0, tl.PromoteRead("unknown"))
}

func TestReconcilerRoutesByThread(t *testing.T) {
	r := New(selfID, 0)

	booking := inbound("m1", 0, "hi")
	booking.ContextID = "b1"
	key, outcome := r.Apply(booking)
	assert.Equal(t, model.ThreadKey{CounterpartID: otherID, ContextID: "b1"}, key)
	assert.Equal(t, Appended, outcome)

	_, ok := r.Lookup(tutor)
	assert.False(t, ok)
	tl, ok := r.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, 1, tl.Len())
}
