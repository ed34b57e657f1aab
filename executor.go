package asyncwin

import "sync"

// An Executor is a [Task] spawner, and a [Coroutine] runner.
//
// When a coroutine is spawned or resumed, it is added into an internal
// queue. The Run and RunBudget methods then pop and run each of them from
// the queue. It is done in a single-threaded manner.
// If one coroutine blocks, no other coroutines can run.
//
// The internal queue is a priority queue ordered by wave, then by position
// in the coroutine tree. Coroutines resumed from outside the Executor at the
// same time form a wave; coroutines they resume form the next one, except
// that a coroutine resumed by one of its descendants joins the descendant's
// wave. Within a wave a parent runs before its children, and an older
// sibling, with everything under it, before a younger one.
//
// Inside an [EventLoop] the reactor owns the Executor and runs one bounded
// pass per native event. A standalone Executor is driven by hand, or by
// installing an autorun function.
//
// With the [ThreadSafe] tag, Spawn is safe for concurrent use.
// Everything else must happen on the goroutine that runs the Executor.
type Executor[TS ThreadSafety] struct {
	mu        mutex[TS]
	pq        priorityqueue[*Coroutine[TS]]
	running   bool
	closed    bool
	autorun   func()
	onFailure func(err error)
	roots     map[*Coroutine[TS]]struct{}
	pool      sync.Pool

	epoch   uint64 // latest wave run so far
	rootSeq uint64
	current *Coroutine[TS]
}

// Autorun sets up an autorun function that is called whenever a coroutine
// is spawned or resumed while the Executor is idle.
//
// The Executor never calls the autorun function twice before the next Run
// or RunBudget call returns. f must either run the Executor or arrange for
// it to run.
func (e *Executor[TS]) Autorun(f func()) {
	e.autorun = f
}

// OnFailure installs a function that observes every root coroutine failure
// after it has been recorded in the coroutine's [Handle].
func (e *Executor[TS]) OnFailure(f func(err error)) {
	e.onFailure = f
}

// Run pops and runs every coroutine in the queue until the queue is emptied.
//
// Run must not be called twice at the same time.
func (e *Executor[TS]) Run() {
	e.mu.Lock()
	e.running = true

	for !e.pq.Empty() {
		co := e.pq.Pop()
		e.runCoroutine(co)
	}

	e.running = false
	e.mu.Unlock()
}

// RunBudget runs one bounded pass, which polls at most budget coroutines
// beyond those queued when the pass starts. It reports how many coroutines
// were polled and whether any remain queued.
func (e *Executor[TS]) RunBudget(budget int) (polled int, pending bool) {
	e.mu.Lock()
	e.running = true

	limit := e.pq.Len() + max(budget, 0)

	for polled < limit && !e.pq.Empty() {
		co := e.pq.Pop()
		if e.runCoroutine(co) {
			polled++
		}
	}

	pending = !e.pq.Empty()
	e.running = false
	e.mu.Unlock()

	return polled, pending
}

// Pending reports whether any coroutine is waiting to run.
func (e *Executor[TS]) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.pq.Empty()
}

// Live reports the number of root coroutines that have not ended.
func (e *Executor[TS]) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.roots)
}

// Spawn creates a root coroutine to work on t and returns its [Handle].
//
// The coroutine is added in a queue. To run it, either call the Run method,
// or call the Autorun method to set up an autorun function beforehand.
//
// After Close, Spawn returns a Handle that has already failed with
// [ErrClosed].
func (e *Executor[TS]) Spawn(t Task[TS]) *Handle[TS] {
	h := new(Handle[TS])

	co := e.newCoroutine().init(e, must(t)).recyclable()
	co.handle = h

	var autorun func()

	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		e.freeCoroutine(co)
		h.complete(ErrClosed)
		return h
	}

	if e.roots == nil {
		e.roots = make(map[*Coroutine[TS]]struct{})
	}
	e.roots[co] = struct{}{}

	co.epoch = e.epoch + 1
	co.path = append(co.path[:0], e.rootSeq)
	e.rootSeq++

	co.flag |= flagEnqueued
	e.pq.Push(co)

	if !e.running && e.autorun != nil {
		e.running = true
		autorun = e.autorun
	}

	e.mu.Unlock()

	if autorun != nil {
		autorun()
	}

	return h
}

// Close drops every queued and live coroutine without running any more of
// their tasks. Cleanups still run, so registrations held by the dropped
// coroutines are released. The handles of dropped root coroutines fail
// with [ErrCancelled].
//
// Close must be called on the goroutine that runs the Executor, and not
// from within a Task.
func (e *Executor[TS]) Close() {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		return
	}

	e.closed = true

	for !e.pq.Empty() {
		co := e.pq.Pop()
		co.flag &^= flagEnqueued
	}

	roots := e.roots
	e.roots = nil

	e.mu.Unlock()

	for co := range roots {
		co.drop()
	}
}

// Closed reports whether Close has been called.
func (e *Executor[TS]) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Executor[TS]) coroutinePool() *sync.Pool {
	return &e.pool
}

func (e *Executor[TS]) forgetRoot(co *Coroutine[TS]) {
	e.mu.Lock()
	delete(e.roots, co)
	e.mu.Unlock()
}

func (e *Executor[TS]) resumeCoroutine(co *Coroutine[TS], lock bool) {
	switch flag := co.flag; {
	case flag&flagRecycled != 0:
		panic("asyncwin: coroutine has been recycled")
	case flag&flagEnded != 0:
		return
	case flag&flagEnqueued != 0:
		co.flag = flag | flagResumed
	default:
		co.flag = flag | flagResumed | flagEnqueued

		var autorun func()

		if lock {
			e.mu.Lock()
		}

		if e.closed {
			co.flag &^= flagEnqueued
			if lock {
				e.mu.Unlock()
			}
			return
		}

		switch cur := e.current; {
		case cur == nil:
			co.epoch = e.epoch + 1
		case co.isAncestorOf(cur):
			co.epoch = cur.epoch
		default:
			co.epoch = cur.epoch + 1
		}

		e.pq.Push(co)

		if !e.running && e.autorun != nil {
			e.running = true
			autorun = e.autorun
		}

		if lock {
			e.mu.Unlock()
		}

		if autorun != nil {
			autorun()
		}
	}
}

// runCoroutine is called with e.mu held. It reports whether co's task ran.
func (e *Executor[TS]) runCoroutine(co *Coroutine[TS]) bool {
	flag := co.flag
	flag &^= flagEnqueued
	co.flag = flag
	switch {
	case flag&flagEnded != 0:
		e.freeCoroutine(co)
	case flag&flagResumed != 0:
		e.epoch = max(e.epoch, co.epoch)
		e.mu.Unlock()
		co.run()
		e.mu.Lock()
		return true
	}
	return false
}
