package asyncwin_test

import (
	"errors"
	"fmt"
	"time"

	"github.com/b97tsk/asyncwin"
	"github.com/b97tsk/asyncwin/native"
	"github.com/b97tsk/asyncwin/native/headless"
)

type TS = asyncwin.ThreadUnsafe

type (
	Coroutine = asyncwin.Coroutine[TS]
	Result    = asyncwin.Result[TS]
	Task      = asyncwin.Task[TS]
)

func Example() {
	backend := headless.New()

	loop, err := asyncwin.NewEventLoop[TS](backend)
	if err != nil {
		fmt.Println(err)
		return
	}

	attrs := native.WindowAttributes{Title: "demo", Size: native.Size{Width: 640, Height: 480}}

	err = loop.BlockOn(loop.CreateWindow(attrs, func(co *Coroutine, w *asyncwin.Window[TS]) Result {
		// Pretend the user resizes the window twice and then closes it.
		backend.Post(native.Event{Kind: native.Resized, Window: w.ID(), Size: native.Size{Width: 800, Height: 600}})
		backend.Post(native.Event{Kind: native.Resized, Window: w.ID(), Size: native.Size{Width: 1024, Height: 768}})
		backend.Post(native.Event{Kind: native.CloseRequested, Window: w.ID()})

		return co.Transition(asyncwin.Block(
			asyncwin.Race(
				w.CloseRequested().Await(),
				w.Resized().WaitMany().ForEach(func(co *Coroutine, size native.Size) Result {
					fmt.Println("resized to", size)
					return co.End()
				}),
			),
			asyncwin.Do[TS](func() { fmt.Println("close requested") }),
			asyncwin.Do[TS](w.Close),
		))
	}))

	fmt.Println("err:", err)

	// Output:
	// resized to 800x600
	// resized to 1024x768
	// close requested
	// err: <nil>
}

// This example demonstrates that when both operands of a race are woken by
// the same delivery, the leftmost one wins and the other is deregistered.
func ExampleRace() {
	loop, _ := asyncwin.NewEventLoop[TS](headless.New())

	ev := asyncwin.NewEvent[int, TS]("number")

	err := loop.BlockOn(asyncwin.Block(
		func(co *Coroutine) Result {
			if err := asyncwin.Post(loop, ev, 42); err != nil {
				return co.Throw(err)
			}
			return co.Transition(asyncwin.Race(
				ev.WaitOnce(func(co *Coroutine, v int) Result {
					fmt.Println("left", v)
					return co.End()
				}),
				ev.WaitOnce(func(co *Coroutine, v int) Result {
					fmt.Println("right", v)
					return co.End()
				}),
			))
		},
		asyncwin.Do[TS](func() { fmt.Println("waiters left:", ev.Waiters()) }),
	))

	fmt.Println("err:", err)

	// Output:
	// left 42
	// waiters left: 0
	// err: <nil>
}

// This example demonstrates how to build a timeout by racing a wait against
// a timer.
func ExampleEventLoop_Sleep() {
	start := time.Unix(0, 0)
	backend := headless.New(headless.WithVirtualClock(start))

	loop, _ := asyncwin.NewEventLoop[TS](backend)

	ev := asyncwin.NewEvent[string, TS]("greeting")

	err := loop.BlockOn(asyncwin.Race(
		ev.WaitOnce(func(co *Coroutine, s string) Result {
			fmt.Println("got", s)
			return co.End()
		}),
		asyncwin.Block(
			loop.Sleep(time.Second),
			asyncwin.Do[TS](func() { fmt.Println("timed out after", backend.Now().Sub(start)) }),
		),
	))

	fmt.Println("err:", err)

	// Output:
	// timed out after 1s
	// err: <nil>
}

func ExampleStream_ForEach() {
	loop, _ := asyncwin.NewEventLoop[TS](headless.New())

	ev := asyncwin.NewEvent[int, TS]("numbers")

	err := loop.BlockOn(func(co *Coroutine) Result {
		s := ev.WaitMany().Filter(func(v int) bool { return v%2 != 0 })

		for i := 1; i <= 9; i++ {
			if err := asyncwin.Post(loop, ev, i); err != nil {
				return co.Throw(err)
			}
		}

		return co.Transition(s.ForEach(func(co *Coroutine, v int) Result {
			fmt.Println(v)
			if v >= 7 {
				return co.Break()
			}
			return co.End()
		}))
	})

	fmt.Println("err:", err, "streams left:", ev.Streams())

	// Output:
	// 1
	// 3
	// 5
	// 7
	// err: <nil> streams left: 0
}

func ExampleLoop() {
	var myExecutor asyncwin.Executor[TS]

	myExecutor.Autorun(myExecutor.Run)

	var sig asyncwin.Signal[TS]

	var v int

	myExecutor.Spawn(asyncwin.Loop(asyncwin.Block(
		asyncwin.Await[TS](&sig),
		func(co *Coroutine) Result {
			if v%2 == 0 {
				return co.Continue()
			}
			return co.End()
		},
		asyncwin.Do[TS](func() {
			fmt.Println(v)
		}),
		func(co *Coroutine) Result {
			if v >= 7 {
				return co.Break()
			}
			return co.End()
		},
	)))

	for i := 1; i <= 9; i++ {
		myExecutor.Spawn(asyncwin.Do[TS](func() {
			v = i
			sig.Notify()
		}))
	}

	fmt.Println(v) // Prints 9.

	// Output:
	// 1
	// 3
	// 5
	// 7
	// 9
}

func ExampleLoopN() {
	var myExecutor asyncwin.Executor[TS]

	myExecutor.Autorun(myExecutor.Run)

	var sig asyncwin.Signal[TS]

	var v int

	myExecutor.Spawn(asyncwin.LoopN(4, asyncwin.Block(
		asyncwin.Await[TS](&sig),
		asyncwin.Do[TS](func() {
			fmt.Println(v)
		}),
	)))

	for i := 1; i <= 9; i++ {
		myExecutor.Spawn(asyncwin.Do[TS](func() {
			v = i
			sig.Notify()
		}))
	}

	// Output:
	// 1
	// 2
	// 3
	// 4
}

func ExampleFunc() {
	var myExecutor asyncwin.Executor[TS]

	myExecutor.Autorun(myExecutor.Run)

	var sig asyncwin.Signal[TS]

	var v int

	myExecutor.Spawn(asyncwin.Block(
		asyncwin.Defer( // Note that spawned tasks are considered surrounded by an invisible asyncwin.Func.
			asyncwin.Do[TS](func() { fmt.Println("defer 1") }),
		),
		asyncwin.Func(asyncwin.Block( // A block in a function scope.
			asyncwin.Defer(
				asyncwin.Do[TS](func() { fmt.Println("defer 2") }),
			),
			asyncwin.Loop(asyncwin.Block(
				asyncwin.Await[TS](&sig),
				asyncwin.Do[TS](func() {
					fmt.Println(v)
				}),
				func(co *Coroutine) Result {
					if v >= 3 {
						return co.Return() // Return here.
					}
					return co.End()
				},
			)),
			asyncwin.Do[TS](func() { fmt.Println("after Loop") }), // Didn't run due to early return.
		)),
		asyncwin.Do[TS](func() { fmt.Println("after Func") }),
	))

	for i := 1; i <= 5; i++ {
		myExecutor.Spawn(asyncwin.Do[TS](func() {
			v = i
			sig.Notify()
		}))
	}

	// Output:
	// 1
	// 2
	// 3
	// defer 2
	// after Func
	// defer 1
}

func ExampleSpawn() {
	var myExecutor asyncwin.Executor[TS]

	myExecutor.Autorun(myExecutor.Run)

	// Exit (asyncwin.Exit or (*asyncwin.Coroutine).Exit) causes the coroutine that runs it to exit.
	// Tasks after Exit do not run.
	myExecutor.Spawn(asyncwin.Exit[TS]().Then(asyncwin.Do[TS](func() { fmt.Println("after Exit") })))

	// With the help of asyncwin.Spawn, Exit only affects child coroutines.
	// The parent one continues to run tasks after asyncwin.Spawn.
	myExecutor.Spawn(asyncwin.Spawn(asyncwin.Exit[TS]()).Then(asyncwin.Do[TS](func() { fmt.Println("after Spawn") })))

	// Output:
	// after Spawn
}

func ExampleJoin() {
	var myExecutor asyncwin.Executor[TS]

	myExecutor.Autorun(myExecutor.Run)

	var sig1, sig2 asyncwin.Signal[TS]

	myExecutor.Spawn(asyncwin.Block(
		asyncwin.Join(
			asyncwin.Await[TS](&sig1).Then(asyncwin.Do[TS](func() { fmt.Println("sig1") })),
			asyncwin.Await[TS](&sig2).Then(asyncwin.Do[TS](func() { fmt.Println("sig2") })),
		),
		asyncwin.Do[TS](func() { fmt.Println("joined") }),
	))

	myExecutor.Spawn(asyncwin.Do[TS](sig2.Notify))
	myExecutor.Spawn(asyncwin.Do[TS](sig1.Notify))

	// Output:
	// sig2
	// sig1
	// joined
}

func ExampleHandle_Wait() {
	var myExecutor asyncwin.Executor[TS]

	myExecutor.Autorun(myExecutor.Run)

	var sig asyncwin.Signal[TS]

	worker := myExecutor.Spawn(asyncwin.Await[TS](&sig).Then(asyncwin.Throw[TS](errors.New("worker gave up"))))

	myExecutor.Spawn(asyncwin.Block(
		asyncwin.Defer(func(co *Coroutine) Result {
			if v := co.Recover(); v != nil {
				err := v.(error)
				fmt.Println("task failed:", errors.Is(err, asyncwin.ErrTaskFailed))
				fmt.Println(err)
			}
			return co.End()
		}),
		worker.Wait(),
	))

	myExecutor.Spawn(asyncwin.Do[TS](sig.Notify))

	// Output:
	// task failed: true
	// asyncwin: task failed: worker gave up
}

// This example demonstrates how asyncwin handles panics.
func Example_panicAndRecover() {
	var myExecutor asyncwin.Executor[TS]

	myExecutor.Autorun(myExecutor.Run)

	recover := func(co *Coroutine) Result {
		if v := co.Recover(); v != nil {
			fmt.Println(v)
		}
		return co.End()
	}

	myExecutor.Spawn(func(co *Coroutine) Result {
		co.Defer(recover)
		panic("A")
	})

	fmt.Println("--- SEPARATOR ---")

	myExecutor.Spawn(func(co *Coroutine) Result {
		// Cleanups are Task-scoped, while defers are Func-scoped.
		co.CleanupFunc(func() { panic("A") }) // Goes out of scope first.
		co.Defer(recover)
		return co.End()
	})

	fmt.Println("--- SEPARATOR ---")

	myExecutor.Spawn(asyncwin.Join(
		asyncwin.Block(
			asyncwin.Defer(recover), // Recovers the whole panic stack (but only given the latest one).
			asyncwin.Defer(func(_ *Coroutine) Result {
				panic("B") // Panics stack up.
			}),
			asyncwin.Do[TS](func() { panic("A") }),
		),
		asyncwin.Block(
			asyncwin.Defer(recover),
			asyncwin.Break[TS](), // Break without a loop.
		),
		asyncwin.Block(
			asyncwin.Defer(recover),
			asyncwin.Throw[TS]("C"), // Throw is like panic but leaves no stack trace behind.
		),
	))

	fmt.Println("--- SEPARATOR ---")

	h := myExecutor.Spawn(func(_ *Coroutine) Result {
		panic("D") // Unrecovered panics fail the task's handle, nothing else.
	})

	var failure *asyncwin.TaskFailedError
	if errors.As(h.Err(), &failure) {
		fmt.Println("task failed with", failure.Value())
	}

	// Output:
	// A
	// --- SEPARATOR ---
	// A
	// --- SEPARATOR ---
	// B
	// asyncwin: unhandled break action
	// C
	// --- SEPARATOR ---
	// task failed with D
}
