package typing

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/tutorchat/internal/eventloop"
	"github.com/capitalize-ai/tutorchat/internal/model"
	"github.com/capitalize-ai/tutorchat/pkg/logger"
)

var (
	tutor  = model.ThreadKey{CounterpartID: "tutor"}
	parent = model.ThreadKey{CounterpartID: "parent", ContextID: "b7"}
)

type fixture struct {
	t       *testing.T
	loop    *eventloop.Loop
	clock   *clockwork.FakeClock
	coord   *Coordinator
	emitted []model.ThreadKey
	changes []model.ThreadKey
	// offline makes emit report a dropped signal.
	offline bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loop := eventloop.New(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})

	f := &fixture{t: t, loop: loop, clock: clockwork.NewFakeClock()}
	sched := eventloop.NewScheduler(loop, f.clock)
	f.coord = New(sched, 500*time.Millisecond, 4*time.Second,
		func(k model.ThreadKey) bool {
			if f.offline {
				return false
			}
			f.emitted = append(f.emitted, k)
			return true
		},
		func(k model.ThreadKey) { f.changes = append(f.changes, k) },
	)
	return f
}

func (f *fixture) do(fn func()) {
	f.t.Helper()
	require.NoError(f.t, f.loop.Do(context.Background(), fn))
}

func (f *fixture) typing(key model.ThreadKey) []string {
	var out []string
	f.do(func() { out = f.coord.Typing(key) })
	return out
}

func TestInputIsRateLimited(t *testing.T) {
	f := newFixture(t)

	f.do(func() {
		assert.True(t, f.coord.Input(tutor, "h"))
		assert.False(t, f.coord.Input(tutor, "he"))
		assert.False(t, f.coord.Input(tutor, "hel"))
	})

	f.clock.Advance(399 * time.Millisecond)
	f.do(func() { assert.False(t, f.coord.Input(tutor, "hell")) })

	f.clock.Advance(101 * time.Millisecond)
	f.do(func() { assert.True(t, f.coord.Input(tutor, "hello")) })

	f.do(func() { assert.Equal(t, []model.ThreadKey{tutor, tutor}, f.emitted) })
}

func TestDroppedSignalIsNotReportedAsSent(t *testing.T) {
	f := newFixture(t)

	f.do(func() {
		f.offline = true
		assert.False(t, f.coord.Input(tutor, "h"))

		// Back online, the next keystroke is not throttled by the dropped one.
		f.offline = false
		assert.True(t, f.coord.Input(tutor, "he"))
		assert.Equal(t, []model.ThreadKey{tutor}, f.emitted)
	})
}

func TestClearedInputStopsAndResets(t *testing.T) {
	f := newFixture(t)

	f.do(func() {
		assert.True(t, f.coord.Input(tutor, "a"))
		assert.False(t, f.coord.Input(tutor, "   "))
		assert.False(t, f.coord.Input(tutor, ""))
		// Typing again right after clearing is a new burst.
		assert.True(t, f.coord.Input(tutor, "b"))
	})
}

func TestSwitchingThreadEmitsForNewThread(t *testing.T) {
	f := newFixture(t)

	f.do(func() {
		assert.True(t, f.coord.Input(tutor, "a"))
		assert.True(t, f.coord.Input(parent, "b"))
		assert.Equal(t, []model.ThreadKey{tutor, parent}, f.emitted)
	})
}

func TestRemoteTypingExpires(t *testing.T) {
	f := newFixture(t)

	f.do(func() { f.coord.Remote(tutor, "tutor", true) })
	assert.Equal(t, []string{"tutor"}, f.typing(tutor))

	f.clock.Advance(3 * time.Second)
	// A fresh signal pushes the expiry out.
	f.do(func() { f.coord.Remote(tutor, "tutor", true) })
	f.clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"tutor"}, f.typing(tutor))

	f.clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return len(f.typing(tutor)) == 0 }, time.Second, 5*time.Millisecond)

	f.do(func() { assert.Equal(t, []model.ThreadKey{tutor, tutor}, f.changes) })
}

func TestStopAndMessageClearTyping(t *testing.T) {
	f := newFixture(t)

	f.do(func() {
		f.coord.Remote(tutor, "tutor", true)
		f.coord.Remote(parent, "parent", true)
		f.coord.Remote(tutor, "tutor", false)
		f.coord.Clear(parent, "parent")
		f.coord.Clear(parent, "nobody")
	})
	assert.Empty(t, f.typing(tutor))
	assert.Empty(t, f.typing(parent))
}

func TestCloseCancelsTimers(t *testing.T) {
	f := newFixture(t)

	f.do(func() {
		f.coord.Remote(tutor, "tutor", true)
		f.coord.Close()
	})
	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)

	f.do(func() {
		assert.Empty(t, f.coord.Typing(tutor))
		// Only the start was reported; the cancelled expiry never fired.
		assert.Equal(t, []model.ThreadKey{tutor}, f.changes)
	})
}
