package asyncwin_test

import (
	"errors"
	"testing"

	"github.com/b97tsk/asyncwin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor(t *testing.T) {
	t.Run("RunBudget", func(t *testing.T) {
		var myExecutor asyncwin.Executor[TS]

		var spins int

		// busy resumes itself every time it runs.
		busy := func(co *Coroutine) Result {
			spins++
			co.Resume()
			return co.Yield()
		}

		var ended int

		myExecutor.Spawn(busy)
		for range 20 {
			myExecutor.Spawn(asyncwin.Do[TS](func() { ended++ }))
		}

		polled, pending := myExecutor.RunBudget(5)

		assert.Equal(t, 26, polled)
		assert.True(t, pending)
		assert.Equal(t, 20, ended)
		assert.Equal(t, 6, spins)

		polled, pending = myExecutor.RunBudget(3)

		assert.Equal(t, 4, polled)
		assert.True(t, pending)
		assert.Equal(t, 10, spins)
		assert.Equal(t, 1, myExecutor.Live())
	})
	t.Run("Close", func(t *testing.T) {
		var myExecutor asyncwin.Executor[TS]

		myExecutor.Autorun(myExecutor.Run)

		var sig asyncwin.Signal[TS]
		var cleaned, resumed bool

		h := myExecutor.Spawn(func(co *Coroutine) Result {
			co.CleanupFunc(func() { cleaned = true })
			return co.Await(&sig).Then(asyncwin.Do[TS](func() { resumed = true }))
		})

		require.False(t, h.Done())

		myExecutor.Close()
		myExecutor.Close()

		assert.True(t, h.Done())
		assert.ErrorIs(t, h.Err(), asyncwin.ErrCancelled)
		assert.True(t, cleaned)
		assert.Zero(t, myExecutor.Live())
		assert.True(t, myExecutor.Closed())

		sig.Notify()
		assert.False(t, resumed)

		h = myExecutor.Spawn(asyncwin.Do[TS](func() { resumed = true }))
		assert.ErrorIs(t, h.Err(), asyncwin.ErrClosed)
		assert.False(t, resumed)
	})
	t.Run("CloseDropsChildren", func(t *testing.T) {
		var myExecutor asyncwin.Executor[TS]

		myExecutor.Autorun(myExecutor.Run)

		var sig asyncwin.Signal[TS]
		var released []string

		branch := func(name string) Task {
			return func(co *Coroutine) Result {
				co.CleanupFunc(func() { released = append(released, name) })
				return co.Await(&sig).End()
			}
		}

		h := myExecutor.Spawn(asyncwin.Join(branch("a"), branch("b")))

		myExecutor.Close()

		assert.ErrorIs(t, h.Err(), asyncwin.ErrCancelled)
		assert.ElementsMatch(t, []string{"a", "b"}, released)
	})
	t.Run("OnFailure", func(t *testing.T) {
		var myExecutor asyncwin.Executor[TS]

		myExecutor.Autorun(myExecutor.Run)

		var failures []error

		myExecutor.OnFailure(func(err error) { failures = append(failures, err) })

		boom := errors.New("boom")

		h1 := myExecutor.Spawn(asyncwin.Throw[TS](boom))
		h2 := myExecutor.Spawn(asyncwin.Do[TS](func() {}))

		require.Len(t, failures, 1)
		assert.Same(t, h1.Err(), failures[0])
		assert.ErrorIs(t, h1.Err(), boom)
		assert.ErrorIs(t, h1.Err(), asyncwin.ErrTaskFailed)
		assert.Equal(t, "asyncwin: task failed: boom", h1.Err().Error())
		assert.NoError(t, h2.Err())

		var failure *asyncwin.TaskFailedError
		require.ErrorAs(t, h1.Err(), &failure)
		assert.Equal(t, boom, failure.Value())
	})
	t.Run("HandleWait", func(t *testing.T) {
		var myExecutor asyncwin.Executor[TS]

		myExecutor.Autorun(myExecutor.Run)

		var sig asyncwin.Signal[TS]
		var order []string

		worker := myExecutor.Spawn(asyncwin.Await[TS](&sig).Then(asyncwin.Do[TS](func() {
			order = append(order, "worker")
		})))

		waiter := myExecutor.Spawn(asyncwin.Block(
			worker.Wait(),
			asyncwin.Do[TS](func() { order = append(order, "waiter") }),
		))

		// Waiting on a handle that is already done ends right away.
		late := myExecutor.Spawn(asyncwin.Block(
			myExecutor.Spawn(asyncwin.End[TS]()).Wait(),
			asyncwin.Do[TS](func() { order = append(order, "late") }),
		))

		myExecutor.Spawn(asyncwin.Do[TS](sig.Notify))

		assert.Equal(t, []string{"late", "worker", "waiter"}, order)
		assert.NoError(t, waiter.Err())
		assert.NoError(t, late.Err())
	})
}

func TestTreeOrder(t *testing.T) {
	var myExecutor asyncwin.Executor[TS]

	myExecutor.Autorun(myExecutor.Run)

	var sig asyncwin.Signal[TS]
	var order []string

	branch := func(name string) Task {
		return asyncwin.Await[TS](&sig).Then(asyncwin.Do[TS](func() { order = append(order, name) }))
	}

	// Deeper branches on the left must still run first.
	myExecutor.Spawn(asyncwin.Join(
		asyncwin.Join(asyncwin.Join(branch("a"), branch("b")), branch("c")),
		branch("d"),
	))
	myExecutor.Spawn(branch("e"))

	myExecutor.Spawn(asyncwin.Do[TS](sig.Notify))

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, order)
	assert.Zero(t, myExecutor.Live())
}

func TestCoroutineRecover(t *testing.T) {
	run := func(task Task) (v any, stack []byte, err error) {
		var myExecutor asyncwin.Executor[TS]

		myExecutor.Autorun(myExecutor.Run)

		h := myExecutor.Spawn(asyncwin.Func(func(co *Coroutine) Result {
			co.Defer(func(co *Coroutine) Result {
				v, stack = co.Recover2()
				return co.End()
			})
			return co.Transition(task)
		}))

		return v, stack, h.Err()
	}

	t.Run("Panic", func(t *testing.T) {
		v, stack, err := run(func(co *Coroutine) Result {
			panic("boom")
		})

		assert.NoError(t, err)
		assert.Equal(t, "boom", v)
		assert.Contains(t, string(stack), "goroutine")
	})
	t.Run("Throw", func(t *testing.T) {
		errBoom := errors.New("boom")

		v, stack, err := run(asyncwin.Throw[TS](errBoom))

		assert.NoError(t, err)
		assert.Equal(t, errBoom, v)
		assert.Nil(t, stack)
	})
	t.Run("NotPanicking", func(t *testing.T) {
		v, stack, err := run(asyncwin.End[TS]())

		assert.NoError(t, err)
		assert.Nil(t, v)
		assert.Nil(t, stack)
	})
}

func TestCoroutineWatch(t *testing.T) {
	var myExecutor asyncwin.Executor[TS]

	var first, second asyncwin.Signal[TS]
	var runs int

	h := myExecutor.Spawn(func(co *Coroutine) Result {
		runs++
		if runs == 3 {
			return co.End()
		}
		co.Watch(&first)
		return co.Await(&second).Reiterate()
	})

	myExecutor.Run()
	assert.Equal(t, 1, runs)

	first.Notify()
	myExecutor.Run()
	assert.Equal(t, 2, runs)
	assert.False(t, h.Done())

	second.Notify()
	myExecutor.Run()
	assert.Equal(t, 3, runs)
	assert.True(t, h.Done())
	assert.Zero(t, myExecutor.Live())
}
