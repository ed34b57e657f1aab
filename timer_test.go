package asyncwin_test

import (
	"testing"
	"time"

	"github.com/b97tsk/asyncwin"
	"github.com/b97tsk/asyncwin/native"
	"github.com/b97tsk/asyncwin/native/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSleep(t *testing.T) {
	t.Run("VirtualClock", func(t *testing.T) {
		b := headless.New(headless.WithVirtualClock(epoch))
		l := newTestLoop(t, b)

		var elapsed []time.Duration

		mark := asyncwin.Do[TS](func() { elapsed = append(elapsed, b.Now().Sub(epoch)) })

		err := l.BlockOn(asyncwin.Block(
			l.Sleep(2*time.Second),
			mark,
			l.SleepUntil(epoch.Add(time.Second)), // already due
			mark,
			l.Sleep(500*time.Millisecond),
			mark,
		))

		require.NoError(t, err)
		assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2500 * time.Millisecond}, elapsed)

		var deadlines []time.Time
		for _, f := range b.Flows() {
			if f.Mode == native.WaitUntil {
				deadlines = append(deadlines, f.Deadline)
			}
		}
		assert.Contains(t, deadlines, epoch.Add(2*time.Second))
	})
	t.Run("CancelledByRace", func(t *testing.T) {
		b := headless.New(headless.WithVirtualClock(epoch))
		l := newTestLoop(t, b)

		ev := asyncwin.NewEvent[int, TS]("wins")

		var got int

		err := l.BlockOn(asyncwin.Block(
			func(co *Coroutine) Result {
				if err := asyncwin.Post(l, ev, 7); err != nil {
					return co.Throw(err)
				}
				return co.Transition(asyncwin.Race(
					ev.WaitOnce(func(co *Coroutine, v int) Result {
						got = v
						return co.End()
					}),
					l.Sleep(time.Hour),
				))
			},
			nextDispatch(l),
		))

		require.NoError(t, err)
		assert.Equal(t, 7, got)
		assert.True(t, b.Now().Equal(epoch))

		for _, f := range b.Flows() {
			assert.NotEqual(t, native.WaitUntil, f.Mode)
		}
	})
	t.Run("RealClock", func(t *testing.T) {
		b := headless.New()
		l := newTestLoop(t, b)

		start := time.Now()

		require.NoError(t, l.BlockOn(l.Sleep(20*time.Millisecond)))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})
}

func TestInterval(t *testing.T) {
	b := headless.New(headless.WithVirtualClock(epoch))
	l := newTestLoop(t, b)

	var ticks []time.Duration
	var ticker *asyncwin.Stream[time.Time, TS]

	err := l.BlockOn(func(co *Coroutine) Result {
		ticker = l.Interval(time.Second)
		return co.Transition(ticker.ForEach(func(co *Coroutine, now time.Time) Result {
			ticks = append(ticks, now.Sub(epoch))
			if len(ticks) == 3 {
				return co.Break()
			}
			return co.End()
		}))
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, ticks)
	assert.True(t, ticker.Done())
	assert.Equal(t, 3*time.Second, b.Now().Sub(epoch))
}

func TestIntervalEndsWhenLoopExits(t *testing.T) {
	b := headless.New(headless.WithVirtualClock(epoch))
	l := newTestLoop(t, b)

	var ticker *asyncwin.Stream[time.Time, TS]
	var first time.Time

	err := l.BlockOn(func(co *Coroutine) Result {
		ticker = l.Interval(time.Second)
		return co.Transition(ticker.WaitNext(func(co *Coroutine, now time.Time, ok bool) Result {
			first = now
			return co.End()
		}))
	})

	require.NoError(t, err)
	assert.Equal(t, time.Second, first.Sub(epoch))

	for {
		if _, ok := ticker.Next(); !ok {
			break
		}
	}

	assert.True(t, ticker.Done())
	assert.NoError(t, ticker.Err())
}
