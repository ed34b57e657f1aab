package asyncwin_test

import (
	"testing"

	"github.com/b97tsk/asyncwin"
	"github.com/b97tsk/asyncwin/native/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestProxy(t *testing.T) {
	type TS = asyncwin.ThreadSafe

	b := headless.New()
	l, err := asyncwin.NewEventLoop[TS](b)
	require.NoError(t, err)

	p := asyncwin.NewProxy(l)
	numbers := asyncwin.NewEvent[int, TS]("numbers")
	s, err := numbers.Subscribe()
	require.NoError(t, err)

	var g errgroup.Group

	for i := 1; i <= 100; i++ {
		g.Go(func() error { return asyncwin.Send(p, numbers, i) })
	}

	var fromOutside *asyncwin.Handle[TS]
	var ran bool

	done := make(chan error, 1)
	go func() {
		err := g.Wait()
		if err == nil {
			fromOutside = p.Spawn(asyncwin.Do[TS](func() { ran = true }))
			err = asyncwin.Send(p, numbers, 0)
		}
		done <- err
	}()

	var sum, count int

	err = l.BlockOn(s.ForEach(func(co *asyncwin.Coroutine[TS], v int) asyncwin.Result[TS] {
		if v == 0 {
			return co.Break()
		}
		sum += v
		count++
		return co.End()
	}))

	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, 100, count)
	assert.Equal(t, 5050, sum)
	assert.Equal(t, asyncwin.StateExited, p.State())

	require.NotNil(t, fromOutside)
	assert.True(t, fromOutside.Done())
	if fromOutside.Err() == nil {
		assert.True(t, ran)
	}

	assert.ErrorIs(t, asyncwin.Send(p, numbers, 1), asyncwin.ErrClosed)
}

func TestProxyExit(t *testing.T) {
	type TS = asyncwin.ThreadSafe

	b := headless.New()
	l, err := asyncwin.NewEventLoop[TS](b)
	require.NoError(t, err)

	p := asyncwin.NewProxy(l)
	never := asyncwin.NewEvent[int, TS]("never")

	// Exit may land before the loop starts or while it waits; either way
	// the loop exits and the dropped root does not count as a failure.
	var g errgroup.Group
	g.Go(func() error {
		p.Exit()
		return nil
	})

	err = l.BlockOn(never.Await())

	assert.NoError(t, err)
	require.NoError(t, g.Wait())
	assert.Equal(t, asyncwin.StateExited, p.State())
}
