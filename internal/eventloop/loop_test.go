package eventloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/tutorchat/pkg/logger"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	loop := New(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	return loop
}

func TestLoopRunsInPostOrder(t *testing.T) {
	loop := startLoop(t)

	var got []int
	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, loop.Post(func() {
			got = append(got, i)
			wg.Done()
		}))
	}
	wg.Wait()

	var snapshot []int
	require.NoError(t, loop.Do(context.Background(), func() { snapshot = append(snapshot, got...) }))
	for i := range snapshot {
		assert.Equal(t, i, snapshot[i])
	}
}

func TestLoopSurvivesPanickingHandler(t *testing.T) {
	loop := startLoop(t)

	loop.Post(func() { panic("boom") })

	ran := false
	require.NoError(t, loop.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopRejectsAfterStop(t *testing.T) {
	loop := New(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	cancel()
	<-loop.Done()

	assert.False(t, loop.Post(func() {}))
	assert.ErrorIs(t, loop.Do(context.Background(), func() {}), ErrStopped)
}

func TestSchedulerFiresOnLoop(t *testing.T) {
	loop := startLoop(t)
	clock := clockwork.NewFakeClock()
	sched := NewScheduler(loop, clock)

	fired := make(chan struct{})
	var timer *Timer
	require.NoError(t, loop.Do(context.Background(), func() {
		timer = sched.AfterFunc(time.Second, func() { close(fired) })
	}))

	clock.Advance(999 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("timer fired early")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Millisecond)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	var pending bool
	require.NoError(t, loop.Do(context.Background(), func() { pending = timer.Pending() }))
	assert.False(t, pending)
}

func TestStoppedTimerNeverRuns(t *testing.T) {
	loop := startLoop(t)
	clock := clockwork.NewFakeClock()
	sched := NewScheduler(loop, clock)

	fired := false
	require.NoError(t, loop.Do(context.Background(), func() {
		timer := sched.AfterFunc(time.Second, func() { fired = true })
		timer.Stop()
		assert.False(t, timer.Pending())
	}))

	clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, loop.Do(context.Background(), func() {}))
	require.NoError(t, loop.Do(context.Background(), func() { assert.False(t, fired) }))
}

func TestStopAfterClockFiredButBeforeLoopRan(t *testing.T) {
	loop := startLoop(t)
	clock := clockwork.NewFakeClock()
	sched := NewScheduler(loop, clock)

	fired := false
	release := make(chan struct{})
	var timer *Timer
	require.NoError(t, loop.Do(context.Background(), func() {
		timer = sched.AfterFunc(time.Second, func() { fired = true })
	}))

	// Block the loop so the fired callback queues behind the Stop call.
	loop.Post(func() {
		<-release
		timer.Stop()
	})
	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, loop.Do(context.Background(), func() {}))
	require.NoError(t, loop.Do(context.Background(), func() {}))
	require.NoError(t, loop.Do(context.Background(), func() { assert.False(t, fired) }))
}
