// Package asyncwin bridges a native windowing event loop and stackless
// coroutines, so that code reacting to window events reads like sequential
// code.
//
// # The Reactor
//
// An [EventLoop] owns a [native.Backend] and an [Executor].
// [EventLoop.BlockOn] hands control to the native loop, and the EventLoop
// answers every native event the same way: it executes queued requests,
// delivers the event to whoever waits on it, fires due timers, runs one
// bounded scheduler pass, and tells the native loop whether to poll, wait,
// wait until a deadline, or exit.
//
// Tasks never run on another goroutine. With the [ThreadSafe] tag, other
// goroutines reach the loop through a [Proxy].
//
// # Events
//
// An [Event] is a typed broadcast point. A delivery resolves every single
// wait registered before it and is appended to every [Stream] subscribed
// before it. Registrations are served in the order they were made, each
// delivery carries a sequence number (see [Occurrence]), and waits that are
// dropped deregister themselves.
//
// Windows expose one Event per kind of window event (see
// [Window.CloseRequested], [Window.Resized] and the like); the loop exposes
// [EventLoop.Resumed], [EventLoop.Suspended] and [EventLoop.StateChanged].
// Events of one's own are created with [NewEvent] and fed with [Post] or
// [Send].
//
// # Tasks and Coroutines
//
// A [Task] is a function run by a [Coroutine]. It returns a [Result] telling
// the coroutine what to do next: await something and re-run, transition to
// another Task, end, break out of a loop, or throw.
//
// Tasks compose. [Block] runs tasks in sequence, [Loop] repeats one,
// [Func] gives [Coroutine.Defer] and [Coroutine.Return] a scope, [Join]
// awaits every branch and [Race] (or [Or]) the first one, canceling the
// others. Canceling a coroutine runs its cleanups, and cleanups are how
// registrations on Events are released, so a lost Race branch never leaves
// a stale waiter behind.
//
//	l.Spawn(asyncwin.Race(
//		w.CloseRequested().WaitOnce(func(co *Coroutine, _ struct{}) Result {
//			return co.Transition(asyncwin.Do[TS](l.Exit))
//		}),
//		w.Resized().WaitMany().ForEach(func(co *Coroutine, size native.Size) Result {
//			fmt.Println("resized to", size)
//			return co.End()
//		}),
//	))
//
// # Root/Child Coroutines
//
// Coroutines spawned by an [Executor] or an [EventLoop] are root
// coroutines. Each has a [Handle] reporting how it ended.
// Coroutines spawned by the [Coroutine.Spawn] method, in a [Task] function,
// are child coroutines.
//
// Child coroutines are Task-scoped and, therefore, cancelable.
// When a [Task] completes, all child coroutines spawned in it are canceled.
//
// Conversely, root coroutines are not cancelable.
// One must cooperatively tell a root coroutine to exit, or shut the loop
// down, which drops every live coroutine without polling it again.
//
// # Failure Propagation
//
// Child coroutines propagate unrecovered panics and throws to their parent
// coroutines. A root coroutine that fails records a [*TaskFailedError] in
// its [Handle]; the failure is logged and counted, and the loop keeps
// running. Only BlockOn's own task decides what BlockOn returns.
package asyncwin
