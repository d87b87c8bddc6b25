package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/internal/protocol"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
)

func frame(body string) Frame {
	return Frame{
		Kind:    protocol.KindSendMessage,
		Thread:  model.ThreadKey{CounterpartID: "tutor"},
		Payload: []byte(body),
	}
}

func payloads(q *Queue) []string {
	out := make([]string, len(q.items))
	for i, it := range q.items {
		out[i] = string(it.Payload)
	}
	return out
}

func TestQueueOrderAndRevert(t *testing.T) {
	q, err := NewQueue(nil, logger.NewNop())
	require.NoError(t, err)

	now := time.Now()
	a := q.Push(frame("a"), now)
	q.Push(frame("b"), now)
	q.Push(frame("c"), now)
	assert.Equal(t, 3, q.Len())

	first := q.nextPending()
	require.NotNil(t, first)
	assert.Equal(t, a.ID, first.ID)
	first.inFlight = true
	assert.Equal(t, "b", string(q.nextPending().Payload))

	q.Revert()
	assert.Equal(t, "a", string(q.nextPending().Payload))

	assert.True(t, q.Remove(a.ID))
	assert.False(t, q.Remove(a.ID))
	assert.Equal(t, []string{"b", "c"}, payloads(q))
}

func TestBadgerOutboxSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	outbox, err := OpenBadgerOutbox(dir)
	require.NoError(t, err)
	q, err := NewQueue(outbox, logger.NewNop())
	require.NoError(t, err)

	now := time.Now()
	var ids []string
	for _, body := range []string{"one", "two", "three"} {
		ids = append(ids, q.Push(frame(body), now).ID)
	}
	require.True(t, q.Remove(ids[1]))
	require.NoError(t, q.Close())

	reopened, err := OpenBadgerOutbox(dir)
	require.NoError(t, err)
	restored, err := NewQueue(reopened, logger.NewNop())
	require.NoError(t, err)
	defer restored.Close()

	assert.Equal(t, []string{"one", "three"}, payloads(restored))

	next := restored.Push(frame("four"), now)
	assert.Equal(t, uint64(4), next.Seq)
	assert.Equal(t, []string{"one", "three", "four"}, payloads(restored))
}

func TestBadgerOutboxKeysSortBySequence(t *testing.T) {
	outbox, err := OpenBadgerOutbox("")
	require.NoError(t, err)
	defer outbox.Close()

	for _, seq := range []uint64{300, 2, 17} {
		require.NoError(t, outbox.Put(Entry{ID: "e", Seq: seq}))
	}
	entries, err := outbox.Load()
	require.NoError(t, err)

	var seqs []uint64
	for _, e := range entries {
		seqs = append(seqs, e.Seq)
	}
	assert.Equal(t, []uint64{2, 17, 300}, seqs)
}
