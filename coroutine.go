package asyncwin

import "slices"

type action int

const (
	_ action = iota
	doYield
	doTransition
	doTailTransition // Do transition and remove controller.
	doEnd
	doBreak
	doContinue
	doReturn
	doRaise // Exit or panic.
)

const (
	flagResumed = 1 << iota
	flagEnqueued
	flagEnded
	flagExiting
	flagPanicking
	flagCanceled
	flagRecyclable
	flagRecycled
)

// A Coroutine is an execution of code, similar to a goroutine but cooperative
// and stackless.
//
// A coroutine is created with a function called [Task].
// A coroutine's job is to end the task.
// When an [Executor] spawns a coroutine with a task, it runs the coroutine by
// calling the task function with the coroutine as the argument.
// The return value determines whether to end the coroutine or to yield it
// so that it could resume later.
//
// In order for a coroutine to resume, the coroutine must watch at least one
// [Awaitable] (e.g. a [Waiter], a [Stream] or a [Handle]) when calling the
// task function.
// A notification of such an Awaitable resumes the coroutine.
// When a coroutine is resumed, the executor runs the coroutine again.
//
// A coroutine can also make a transition to work on another task according to
// the return value of the task function.
// A coroutine can transition from one task to another until a task ends it.
type Coroutine[TS ThreadSafety] struct {
	flag        uint16
	epoch       uint64
	path        []uint64
	children    uint64
	parent      *Coroutine[TS]
	executor    *Executor[TS]
	handle      *Handle[TS]
	ps          panicstack
	guard       func() bool
	task        Task[TS]
	deps        map[Awaitable[TS]]struct{}
	cleanups    []Cleanup
	defers      []Task[TS]
	controllers []controller[TS]
}

func (e *Executor[TS]) newCoroutine() *Coroutine[TS] {
	if co := e.coroutinePool().Get(); co != nil {
		return co.(*Coroutine[TS])
	}
	return new(Coroutine[TS])
}

func (e *Executor[TS]) freeCoroutine(co *Coroutine[TS]) {
	if co.flag&(flagRecyclable|flagRecycled) == flagRecyclable {
		co.flag |= flagRecycled
		co.parent = nil
		co.executor = nil
		co.handle = nil
		clear(co.ps)
		co.ps = co.ps[:0]
		co.task = nil
		e.coroutinePool().Put(co)
	}
}

func (co *Coroutine[TS]) init(e *Executor[TS], t Task[TS]) *Coroutine[TS] {
	co.flag = flagResumed
	co.epoch = 0
	co.path = co.path[:0]
	co.children = 0
	co.executor = e
	co.task = t
	return co
}

func (co *Coroutine[TS]) recyclable() *Coroutine[TS] {
	co.flag |= flagRecyclable
	return co
}

// childOf places co in the tree right after the children parent already
// has.
func (co *Coroutine[TS]) childOf(parent *Coroutine[TS]) *Coroutine[TS] {
	co.parent = parent
	co.epoch = parent.epoch
	co.path = append(append(co.path[:0], parent.path...), parent.children)
	parent.children++
	return co
}

// less orders coroutines by wave first and by tree position second: a
// parent precedes its children, and a child precedes its younger siblings
// and everything spawned under them.
func (co *Coroutine[TS]) less(other *Coroutine[TS]) bool {
	if co.epoch != other.epoch {
		return co.epoch < other.epoch
	}
	a, b := co.path, other.path
	for i := range min(len(a), len(b)) {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// isAncestorOf reports whether co is a strict ancestor of other.
func (co *Coroutine[TS]) isAncestorOf(other *Coroutine[TS]) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == co {
			return true
		}
	}
	return false
}

// Resume resumes co.
//
// Resume must be called on the goroutine that runs co's [Executor].
func (co *Coroutine[TS]) Resume() {
	co.executor.resumeCoroutine(co, true)
}

func (co *Coroutine[TS]) run() (yielded bool) {
	e := co.executor
	e.mu.Lock()
	outer := e.current
	e.current = co
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.current = outer
		e.mu.Unlock()
	}()

	var res Result[TS]

	ps := &co.ps
	guard := co.guard

	for {
		if guard != nil {
			var ok bool

			co.flag &^= flagResumed

			if !ps.Try(func() { ok = guard() }) {
				co.task = (*Coroutine[TS]).panic
				ok = true
			}

			if !ok {
				return true
			}

			guard = nil
			co.guard = nil
		}

		co.clearDeps()
		co.clearCleanups()

		co.flag &^= flagResumed

		if !ps.Try(func() { res = co.task(co) }) {
			res = co.panic()
		}

		if res.action == doYield && co.flag&flagCanceled != 0 {
			res = co.cancel()
		}

		if res.action != doYield && res.action != doTransition {
			co.clearDeps()
			co.clearCleanups()
			if co.Panicking() {
				res = co.panic()
			}
			controllers := co.controllers
			for len(controllers) != 0 {
				i := len(controllers) - 1
				c := &controllers[i]
				if !ps.Try(func() { res = c.negotiate(co, res) }) {
					res = c.negotiate(co, co.panic())
				}
				if res.action != doTransition {
					controllers[i] = controller[TS]{}
					controllers = controllers[:i]
					co.controllers = controllers
				}
				if res.action == doTransition || res.action == doTailTransition {
					break
				}
			}
			if res.action != doTransition && res.action != doTailTransition {
				rootController := &controller[TS]{kind: funcController}
				if !ps.Try(func() { res = rootController.negotiate(co, res) }) {
					res = rootController.negotiate(co, co.panic())
				}
			}
			if res.action == doTailTransition {
				res.action = doTransition
			}
		}

		if res.task != nil {
			co.task = res.task
		}

		if res.guard != nil {
			guard = res.guard
			co.guard = guard
			continue // For calling guard immediately.
		}

		if res.action != doTransition {
			break
		}

		if res.controller.kind != 0 {
			addController := true
			if res.controller.kind == funcController && !res.controller.wasExiting && !res.controller.wasPanicking {
				lastController := &controller[TS]{kind: funcController}
				if n := len(co.controllers); n != 0 {
					lastController = &co.controllers[n-1]
				}
				if lastController.kind == funcController && lastController.numDefer == res.controller.numDefer {
					// Tail-call optimization:
					// If the last controller is also a funcController, do not add another one.
					// (doTailTransition also pays tribute to this optimization.)
					addController = false
				}
			}
			if addController {
				co.controllers = append(co.controllers, res.controller)
				if capSizeLimit := 1000000; cap(co.controllers) > capSizeLimit {
					co.flag &^= flagRecyclable
					co.task = func(co *Coroutine[TS]) Result[TS] {
						panic("asyncwin: too many controllers or recursions")
					}
				}
			}
		}
	}

	if res.action == doYield {
		return true
	}

	co.flag |= flagEnded

	co.clearDeps()
	co.clearCleanups()
	co.removeFromParent()

	if co.Panicking() {
		if parent := co.parent; parent != nil {
			parent.flag |= flagPanicking
			parent.guard = nil
			parent.task = (*Coroutine[TS]).panic
			parent.ps = append(parent.ps, co.ps...)
			parent.Resume()
		}
	}

	if len(co.defers) != 0 {
		panic("asyncwin: internal error: not all deferred tasks are handled")
	}

	if len(co.controllers) != 0 {
		panic("asyncwin: internal error: not all controllers are handled")
	}

	if h := co.handle; h != nil {
		co.settle(h)
	}

	if co.flag&flagEnqueued == 0 {
		co.executor.freeCoroutine(co)
	}

	return false
}

// settle reports the outcome of an ended root coroutine to its handle.
func (co *Coroutine[TS]) settle(h *Handle[TS]) {
	e := co.executor
	e.forgetRoot(co)
	co.handle = nil

	if !co.Panicking() {
		h.complete(nil)
		return
	}

	err := &TaskFailedError{pv: co.ps.failure()}
	h.complete(err)

	if e.onFailure != nil {
		e.onFailure(err)
	}
}

// drop ends co without running any more of its tasks.
func (co *Coroutine[TS]) drop() {
	if co.flag&flagEnded != 0 {
		return
	}

	co.flag |= flagEnded | flagExiting | flagCanceled
	co.guard = nil

	co.clearDeps()
	co.clearCleanups()

	clear(co.defers)
	co.defers = co.defers[:0]
	clear(co.controllers)
	co.controllers = co.controllers[:0]

	if h := co.handle; h != nil {
		co.handle = nil
		h.complete(ErrCancelled)
	}
}

func (co *Coroutine[TS]) clearDeps() {
	deps := co.deps
	for d := range deps {
		delete(deps, d)
		d.removeListener(co)
	}
}

func (co *Coroutine[TS]) clearCleanups() {
	ok := true
	cleanups := co.cleanups
	for len(co.cleanups) != 0 {
		cleanups := co.cleanups
		co.cleanups = nil
		for _, c := range slices.Backward(cleanups) {
			ok = co.ps.Try(c.Cleanup) && ok
		}
	}
	clear(cleanups)
	co.cleanups = cleanups[:0]
	if !ok {
		co.flag |= flagPanicking
		co.task = (*Coroutine[TS]).panic
	}
}

func (co *Coroutine[TS]) removeFromParent() {
	parent := co.parent
	if parent == nil {
		return
	}
	for i, c := range parent.cleanups {
		if c == (*childCoroutineCleanup[TS])(co) {
			parent.cleanups = slices.Delete(parent.cleanups, i, i+1)
			break
		}
	}
}

type childCoroutineCleanup[TS ThreadSafety] Coroutine[TS]

func (child *childCoroutineCleanup[TS]) Cleanup() {
	co := (*Coroutine[TS])(child)
	if co.executor.Closed() {
		co.drop()
		return
	}
	co.guard = nil
	co.task = (*Coroutine[TS]).cancel
	if yielded := co.run(); yielded {
		panic("asyncwin: internal error: child coroutine did not end")
	}
}

// Parent returns the parent coroutine of co.
func (co *Coroutine[TS]) Parent() *Coroutine[TS] {
	return co.parent
}

// Executor returns the executor that spawned co.
func (co *Coroutine[TS]) Executor() *Executor[TS] {
	return co.executor
}

// Ended reports whether co has already ended (or exited).
func (co *Coroutine[TS]) Ended() bool {
	return co.flag&flagEnded != 0
}

// Exiting reports whether co is exiting.
//
// When exiting, entering a [Func], in a deferred task, would temporarily
// reset Exiting to false until that [Func] ends or exits again.
func (co *Coroutine[TS]) Exiting() bool {
	return co.flag&flagExiting != 0
}

// Panicking reports whether co is panicking.
//
// When panicking, entering a [Func], in a deferred task, would temporarily
// reset Panicking to false until that [Func] ends or panics again.
func (co *Coroutine[TS]) Panicking() bool {
	return co.flag&flagPanicking != 0
}

// Canceled reports whether co is a child coroutine that has been canceled.
func (co *Coroutine[TS]) Canceled() bool {
	return co.flag&flagCanceled != 0
}

// Resumed reports whether co has been resumed.
func (co *Coroutine[TS]) Resumed() bool {
	return co.flag&flagResumed != 0
}

// Watch watches some awaitables so that, when any of them notifies,
// co resumes.
func (co *Coroutine[TS]) Watch(ev ...Awaitable[TS]) {
	if co.flag&(flagEnded|flagCanceled) != 0 {
		return
	}
	for _, d := range ev {
		deps := co.deps
		if deps == nil {
			deps = make(map[Awaitable[TS]]struct{})
			co.deps = deps
		}
		deps[d] = struct{}{}
		d.addListener(co)
	}
}

// Cleanup represents any type that carries a Cleanup method.
// A Cleanup can be added to a coroutine in a [Task] function for making
// an effect some time later when the coroutine resumes or ends or exits, or
// when the coroutine is making a transition to work on another [Task].
//
// [Waiter] and [Stream] are Cleanups that deregister themselves.
type Cleanup interface {
	Cleanup()
}

// A CleanupFunc is a func() that implements the [Cleanup] interface.
type CleanupFunc func()

// Cleanup implements the [Cleanup] interface.
func (f CleanupFunc) Cleanup() { f() }

// Cleanup adds something to clean up when co resumes or ends or exits, or when
// co is making a transition to work on another [Task].
func (co *Coroutine[TS]) Cleanup(c Cleanup) {
	if co.Ended() {
		panic("asyncwin: coroutine has already ended")
	}
	if c == nil {
		return
	}
	co.cleanups = append(co.cleanups, c)
}

// CleanupFunc adds a function call when co resumes or ends or exits, or when
// co is making a transition to work on another [Task].
func (co *Coroutine[TS]) CleanupFunc(f func()) {
	if co.Ended() {
		panic("asyncwin: coroutine has already ended")
	}
	if f == nil {
		return
	}
	co.cleanups = append(co.cleanups, CleanupFunc(f))
}

// Defer adds a [Task] for execution when returning from a [Func].
// Deferred tasks are executed in last-in-first-out (LIFO) order.
func (co *Coroutine[TS]) Defer(t Task[TS]) {
	if co.Ended() {
		panic("asyncwin: coroutine has already ended")
	}
	if t == nil {
		return
	}
	co.defers = append(co.defers, t)
}

// Recover returns the latest value in the panic stack and stops co from
// panicking.
// If co isn't panicking, Recover returns nil.
//
// Errors thrown by waits (e.g. [ErrCancelled]) are recovered the same way.
func (co *Coroutine[TS]) Recover() (v any) {
	v, _ = co.Recover2()
	return v
}

// Recover2 is like [Coroutine.Recover] but also returns the stack trace.
func (co *Coroutine[TS]) Recover2() (v any, stacktrace []byte) {
	if !co.Panicking() {
		return nil, nil
	}
	p := &co.ps[len(co.ps)-1]
	p.recovered = true
	co.flag &^= flagPanicking
	return p.value, p.stack
}

// Spawn creates a child coroutine to work on t.
//
// Spawn runs t immediately. If t panics immediately, Spawn panics too.
//
// Child coroutines, if not yet ended, are canceled when the parent one resumes
// or ends or exits, or when the parent one is making a transition to work on
// another [Task].
// When a coroutine is canceled, it runs to completion with all yield points
// treated like exit points.
func (co *Coroutine[TS]) Spawn(t Task[TS]) {
	if co.Ended() {
		panic("asyncwin: coroutine has already ended")
	}

	child := co.executor.newCoroutine().init(co.executor, t).recyclable().childOf(co)

	switch yielded := child.run(); {
	case yielded:
		co.cleanups = append(co.cleanups, (*childCoroutineCleanup[TS])(child))
	case co.Panicking():
		// child panics.
		panic(dummy{}) // Stop current task.
	}
}

// Result is the type of the return value of a [Task] function.
// A Result determines what next for a coroutine to do after running a task.
//
// A Result can be created by calling one of the following methods:
//   - [Coroutine.Await]: for creating a [PendingResult] that can be transformed
//     into a [Result] with one of its methods, which will then cause
//     the running coroutine to yield;
//   - [Coroutine.Yield]: for yielding a coroutine with additional awaitables
//     to watch and, when resumed, reiterating the running task;
//   - [Coroutine.Transition]: for making a transition to work on another task;
//   - [Coroutine.End]: for ending the running task of a coroutine;
//   - [Coroutine.Break]: for breaking a [Loop] (or [LoopN]);
//   - [Coroutine.Continue]: for continuing a [Loop] (or [LoopN]);
//   - [Coroutine.Return]: for returning from a [Func];
//   - [Coroutine.Exit]: for exiting a coroutine;
//   - [Coroutine.Throw]: for simulating a panic.
//
// These methods may have side effects. One should just return a Result right
// after it is created.
type Result[TS ThreadSafety] struct {
	action     action
	guard      func() bool    // used by doYield only
	task       Task[TS]       // used by doYield, doTransition and doTailTransition
	controller controller[TS] // used by doTransition only
}

// PendingResult is the return type of the [Coroutine.Await] method.
// A PendingResult is an intermediate value that must be transformed into
// a [Result] with one of its methods before returning from a [Task].
type PendingResult[TS ThreadSafety] struct {
	res Result[TS]
}

// Reiterate returns a [Result] that will cause the running coroutine to yield
// and, when resumed, reiterate the running task.
func (pr PendingResult[TS]) Reiterate() Result[TS] {
	return pr.res
}

// Then returns a [Result] that will cause the running coroutine to yield and,
// when resumed, make a transition to work on another [Task].
func (pr PendingResult[TS]) Then(t Task[TS]) Result[TS] {
	pr.res.task = must(t)
	return pr.res
}

// End returns a [Result] that will cause the running coroutine to yield and,
// when resumed, end the running task.
func (pr PendingResult[TS]) End() Result[TS] {
	return pr.Then(End[TS]())
}

// Break returns a [Result] that will cause the running coroutine to yield and,
// when resumed, break a [Loop] (or [LoopN]).
func (pr PendingResult[TS]) Break() Result[TS] {
	return pr.Then(Break[TS]())
}

// Continue returns a [Result] that will cause the running coroutine to yield
// and, when resumed, continue a [Loop] (or [LoopN]).
func (pr PendingResult[TS]) Continue() Result[TS] {
	return pr.Then(Continue[TS]())
}

// Return returns a [Result] that will cause the running coroutine to yield and,
// when resumed, return from a [Func].
func (pr PendingResult[TS]) Return() Result[TS] {
	return pr.Then(Return[TS]())
}

// Exit returns a [Result] that will cause the running coroutine to yield and,
// when resumed, cause the running coroutine to exit.
func (pr PendingResult[TS]) Exit() Result[TS] {
	return pr.Then(Exit[TS]())
}

// Throw returns a [Result] that will cause the running coroutine to yield and,
// when resumed, cause the running coroutine to behave like there's a panic.
func (pr PendingResult[TS]) Throw(v any) Result[TS] {
	return pr.Then(Throw[TS](v))
}

// Until transforms pr into one with a condition.
// Affected coroutines remain yielded until the condition is met.
//
// The condition runs before the coroutine's cleanups, so it is the place to
// take a value out of something that a cleanup would release.
// A resume that finds the condition unmet keeps every watch and cleanup in
// place.
func (pr PendingResult[TS]) Until(f func() bool) PendingResult[TS] {
	pr.res.guard = f
	return pr
}

// Await returns a [PendingResult] that can be transformed into a [Result]
// with one of its methods, which will then cause co to yield.
// Await also accepts additional awaitables to watch.
func (co *Coroutine[TS]) Await(ev ...Awaitable[TS]) PendingResult[TS] {
	if len(ev) != 0 {
		co.Watch(ev...)
	}
	return PendingResult[TS]{res: Result[TS]{action: doYield}}
}

// Yield returns a [Result] that will cause co to yield and, when co is resumed,
// reiterate the running task.
// Yield also accepts additional awaitables to watch.
func (co *Coroutine[TS]) Yield(ev ...Awaitable[TS]) Result[TS] {
	return co.Await(ev...).Reiterate()
}

// Transition returns a [Result] that will cause co to make a transition to
// work on t.
func (co *Coroutine[TS]) Transition(t Task[TS]) Result[TS] {
	return Result[TS]{action: doTransition, task: must(t)}
}

// End returns a [Result] that will cause co to end its current running task.
func (co *Coroutine[TS]) End() Result[TS] {
	return Result[TS]{action: doEnd}
}

// Break returns a [Result] that will cause co to break a [Loop] (or [LoopN]).
func (co *Coroutine[TS]) Break() Result[TS] {
	return Result[TS]{action: doBreak}
}

// Continue returns a [Result] that will cause co to continue a [Loop]
// (or [LoopN]).
func (co *Coroutine[TS]) Continue() Result[TS] {
	return Result[TS]{action: doContinue}
}

// Return returns a [Result] that will cause co to return from a [Func].
func (co *Coroutine[TS]) Return() Result[TS] {
	return Result[TS]{action: doReturn}
}

// Exit returns a [Result] that will cause co to exit.
// All deferred tasks will be run before co exits.
func (co *Coroutine[TS]) Exit() Result[TS] {
	co.flag |= flagExiting
	return Result[TS]{action: doRaise}
}

func (co *Coroutine[TS]) cancel() Result[TS] {
	co.flag |= flagExiting | flagCanceled
	return Result[TS]{action: doRaise}
}

func (co *Coroutine[TS]) panic() Result[TS] {
	co.flag |= flagPanicking
	return Result[TS]{action: doRaise}
}

// Throw returns a [Result] that will cause co to behave like there's a panic.
// Unlike the built-in panic function, Throw leaves no stack trace behind.
func (co *Coroutine[TS]) Throw(v any) Result[TS] {
	if v == nil {
		panic("asyncwin: Throw called with nil argument")
	}
	co.ps.push(v, nil)
	co.flag |= flagPanicking
	return Result[TS]{action: doRaise}
}

type controllerKind int8

const (
	_ controllerKind = iota
	funcController
	thenController
	blockController
	loopController
)

type controller[TS ThreadSafety] struct {
	kind         controllerKind
	wasExiting   bool       // used by funcController only
	wasPanicking bool       // used by funcController only
	numPanic     int        // used by funcController only
	numDefer     int        // used by funcController only
	task         Task[TS]   // used by thenController and loopController
	tasks        []Task[TS] // used by blockController only
}

func (c *controller[TS]) negotiate(co *Coroutine[TS], res Result[TS]) Result[TS] {
	switch c.kind {
	case funcController:
		switch res.action {
		case doEnd, doReturn, doRaise:
			if !co.Panicking() && len(co.ps) > c.numPanic {
				// Discard recovered panic values.
				clear(co.ps[c.numPanic:])
				co.ps = co.ps[:c.numPanic]
			}
			if len(co.defers) > c.numDefer {
				i := len(co.defers) - 1
				t := co.defers[i]
				co.defers[i] = nil
				co.defers = co.defers[:i]
				return co.Transition(t)
			}
			raise := co.flag&(flagExiting|flagPanicking) != 0
			if c.wasExiting {
				co.flag |= flagExiting
			}
			if c.wasPanicking {
				co.flag |= flagPanicking
			}
			if raise {
				return Result[TS]{action: doRaise}
			}
			return co.End()
		case doBreak:
			panic("asyncwin: unhandled break action")
		case doContinue:
			panic("asyncwin: unhandled continue action")
		default:
			panic("asyncwin: internal error: unknown action")
		}
	case thenController:
		if res.action != doEnd {
			return res
		}
		return Result[TS]{action: doTailTransition, task: c.task}
	case blockController:
		if res.action != doEnd || len(c.tasks) == 0 {
			return res
		}
		t := c.tasks[0]
		c.tasks = c.tasks[1:]
		action := doTransition
		if len(c.tasks) == 0 {
			action = doTailTransition
		}
		return Result[TS]{action: action, task: must(t)}
	case loopController:
		switch res.action {
		case doEnd:
			return co.Transition(c.task)
		case doBreak:
			return co.End()
		case doContinue:
			return co.Transition(c.task)
		default:
			return res
		}
	default:
		panic("asyncwin: internal error: unknown controller")
	}
}

// A Task is a piece of work that a coroutine is given to do when it is spawned.
// The return value of a task, a [Result], determines what next for a coroutine
// to do.
//
// co must not be retained after the coroutine ends, because it may be put
// into a pool for recycling.
type Task[TS ThreadSafety] func(co *Coroutine[TS]) Result[TS]

// Then returns a [Task] that first works on t, then next after t ends.
//
// To chain multiple tasks, use [Block] function.
func (t Task[TS]) Then(next Task[TS]) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		return Result[TS]{
			action:     doTransition,
			task:       must(t),
			controller: controller[TS]{kind: thenController, task: must(next)},
		}
	}
}

// Do returns a [Task] that calls f, and then ends.
func Do[TS ThreadSafety](f func()) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		f()
		return co.End()
	}
}

// End returns a [Task] that ends without doing anything.
func End[TS ThreadSafety]() Task[TS] {
	return (*Coroutine[TS]).End
}

// Await returns a [Task] that awaits some awaitables until any of them
// notifies, and then ends.
// If ev is empty, Await returns a [Task] that never ends.
func Await[TS ThreadSafety](ev ...Awaitable[TS]) Task[TS] {
	if len(ev) == 0 {
		// Return a pure function instead.
		return func(co *Coroutine[TS]) Result[TS] {
			return co.Await().End()
		}
	}
	return func(co *Coroutine[TS]) Result[TS] {
		return co.Await(ev...).End()
	}
}

// Block returns a [Task] that runs each of the given tasks in sequence.
// When one task ends, Block runs another.
func Block[TS ThreadSafety](s ...Task[TS]) Task[TS] {
	switch len(s) {
	case 0:
		return End[TS]()
	case 1:
		return s[0]
	case 2:
		return s[0].Then(s[1])
	}
	return func(co *Coroutine[TS]) Result[TS] {
		return Result[TS]{
			action:     doTransition,
			task:       must(s[0]),
			controller: controller[TS]{kind: blockController, tasks: s[1:]},
		}
	}
}

// Break returns a [Task] that breaks a [Loop] (or [LoopN]).
func Break[TS ThreadSafety]() Task[TS] {
	return (*Coroutine[TS]).Break
}

// Continue returns a [Task] that continues a [Loop] (or [LoopN]).
func Continue[TS ThreadSafety]() Task[TS] {
	return (*Coroutine[TS]).Continue
}

// Loop returns a [Task] that forms a loop, which would run t repeatedly.
// Both [Coroutine.Break] and [Break] can break this loop early.
// Both [Coroutine.Continue] and [Continue] can continue this loop early.
func Loop[TS ThreadSafety](t Task[TS]) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		return Result[TS]{
			action:     doTransition,
			task:       must(t),
			controller: controller[TS]{kind: loopController, task: t},
		}
	}
}

// LoopN returns a [Task] that forms a loop, which would run t repeatedly
// for n times.
// Both [Coroutine.Break] and [Break] can break this loop early.
// Both [Coroutine.Continue] and [Continue] can continue this loop early.
func LoopN[TS ThreadSafety, Int intType](n Int, t Task[TS]) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		i := Int(0)
		f := func(co *Coroutine[TS]) Result[TS] {
			if i < n {
				i++
				return co.Transition(t)
			}
			return co.Break()
		}
		return Result[TS]{
			action:     doTransition,
			task:       f,
			controller: controller[TS]{kind: loopController, task: f},
		}
	}
}

type intType interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Defer returns a [Task] that adds t for execution when returning from
// a [Func].
// Deferred tasks are executed in last-in-first-out (LIFO) order.
func Defer[TS ThreadSafety](t Task[TS]) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		co.Defer(t)
		return co.End()
	}
}

// Return returns a [Task] that returns from a surrounding [Func].
func Return[TS ThreadSafety]() Task[TS] {
	return (*Coroutine[TS]).Return
}

// Exit returns a [Task] that causes the coroutine that runs it to exit.
// All deferred tasks are run before the coroutine exits.
func Exit[TS ThreadSafety]() Task[TS] {
	return (*Coroutine[TS]).Exit
}

// Throw returns a [Task] that causes the coroutine that runs it to behave
// like there's a panic.
// Unlike the built-in panic function, Throw leaves no stack trace behind.
func Throw[TS ThreadSafety](v any) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		return co.Throw(v)
	}
}

// Func returns a [Task] that runs t in a function scope.
// Spawned tasks are considered surrounded by an invisible [Func].
func Func[TS ThreadSafety](t Task[TS]) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		res := Result[TS]{
			action: doTransition,
			task:   must(t),
			controller: controller[TS]{
				kind:         funcController,
				wasExiting:   co.Exiting(),
				wasPanicking: co.Panicking(),
				numPanic:     len(co.ps),
				numDefer:     len(co.defers),
			},
		}
		co.flag &^= flagExiting | flagPanicking
		return res
	}
}

func must[TS ThreadSafety](t Task[TS]) Task[TS] {
	if t == nil {
		panic("asyncwin: nil Task")
	}
	return t
}

func resumeParent[TS ThreadSafety](co *Coroutine[TS]) Result[TS] {
	co.Parent().Resume()
	return co.End()
}

// Join returns a [Task] that runs each of the given tasks in its own
// child coroutine and awaits until all of them complete, and then ends.
//
// When passed no arguments, Join returns a [Task] that never ends.
func Join[TS ThreadSafety](s ...Task[TS]) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		n := len(s)
		done := func(co *Coroutine[TS]) Result[TS] {
			if n--; n == 0 {
				co.Parent().Resume()
			}
			return co.End()
		}
		for _, t := range s {
			co.Spawn(func(co *Coroutine[TS]) Result[TS] {
				co.Defer(done)
				return co.Transition(t)
			})
		}
		return co.Await().End()
	}
}

// Race returns a [Task] that runs each of the given tasks in its own
// child coroutine and awaits until any of them completes, and then ends.
// When Race ends, tasks other than the one that completes are canceled
// (see [Coroutine.Spawn]), which releases every registration they hold.
//
// When several branches are woken at the same time, however deeply nested,
// the leftmost one wins: it runs first, and the Race coroutine, resumed by
// it, runs next and cancels the others before they run.
//
// When passed no arguments, Race returns a [Task] that never ends.
func Race[TS ThreadSafety](s ...Task[TS]) Task[TS] {
	z := slices.Clone(s)
	for i, t := range z {
		z[i] = func(co *Coroutine[TS]) Result[TS] {
			co.Defer(resumeParent[TS])
			return co.Transition(t)
		}
	}
	return func(co *Coroutine[TS]) Result[TS] {
		for _, t := range z {
			co.Spawn(t)
			if co.Resumed() {
				break
			}
		}
		return co.Await().End()
	}
}

// Or is Race(a, b).
func Or[TS ThreadSafety](a, b Task[TS]) Task[TS] {
	return Race(a, b)
}

// Spawn returns a [Task] that runs t in a child coroutine and awaits until
// t completes, and then ends.
//
// Spawn(t) is equivalent to Join(t) or Race(t), but cheaper and clearer.
func Spawn[TS ThreadSafety](t Task[TS]) Task[TS] {
	f := func(co *Coroutine[TS]) Result[TS] {
		co.Defer(resumeParent[TS])
		return co.Transition(t)
	}
	return func(co *Coroutine[TS]) Result[TS] {
		co.Spawn(f)
		return co.Await().End()
	}
}
