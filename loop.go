package asyncwin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/b97tsk/asyncwin/native"
	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/joeycumines/logiface"
	"go.opentelemetry.io/otel/trace"
)

// An EventLoop is the reactor that bridges a native windowing loop and an
// [Executor].
//
// BlockOn hands control to the native loop. For every native event the
// EventLoop executes queued requests (window construction, posted events,
// property queries), delivers the event to the matching [Event]s, fires due
// timers, and then runs one bounded scheduler pass. It answers the native
// loop with Poll while work is pending, WaitUntil while a timer is armed,
// and Wait otherwise.
//
// Tasks always run on the goroutine that called BlockOn. With the
// [ThreadSafe] tag, other goroutines may feed the loop through a [Proxy].
type EventLoop[TS ThreadSafety] struct {
	id      string
	backend native.Backend
	opts    *loopOptions
	log     *logiface.Logger[logiface.Event]
	metrics MetricsRecorder
	tracer  trace.Tracer
	ctx     context.Context

	exec     Executor[TS]
	state    counter[TS]
	started  counter[TS]
	notified counter[TS]

	mu            mutex[TS]
	ops           *queue.Queue
	closed        bool
	exitRequested bool

	windows   map[native.WindowID]*windowRegistration[TS]
	timers    priorityqueue[*timer[TS]]
	intervals map[*Event[time.Time, TS]]struct{}

	resumed      *Event[struct{}, TS]
	suspended    *Event[struct{}, TS]
	stateChanged *Event[LoopState, TS]

	root *Handle[TS]
}

// NewEventLoop creates an EventLoop driving backend.
func NewEventLoop[TS ThreadSafety](backend native.Backend, opts ...LoopOption) (*EventLoop[TS], error) {
	if backend == nil {
		return nil, errors.New("asyncwin: nil backend")
	}

	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &EventLoop[TS]{
		id:           uuid.New().String(),
		backend:      backend,
		opts:         cfg,
		log:          cfg.log,
		metrics:      cfg.metrics,
		tracer:       cfg.tracerProvider.Tracer(instrumentationName),
		ctx:          context.Background(),
		ops:          queue.New(),
		windows:      make(map[native.WindowID]*windowRegistration[TS]),
		intervals:    make(map[*Event[time.Time, TS]]struct{}),
		resumed:      NewEvent[struct{}, TS]("loop.resumed"),
		suspended:    NewEvent[struct{}, TS]("loop.suspended"),
		stateChanged: NewEvent[LoopState, TS]("loop.state_changed"),
	}

	l.exec.Autorun(l.wake)
	l.exec.OnFailure(func(err error) {
		l.metrics.RecordTaskFailure(l.ctx)
		l.log.Err().Err(err).Str("loop_id", l.id).Log("task failed")
	})

	return l, nil
}

// ID returns the loop's unique id.
func (l *EventLoop[TS]) ID() string { return l.id }

// Name returns the name set with [WithName].
func (l *EventLoop[TS]) Name() string { return l.opts.name }

// State returns the loop's current state. It may be called from any
// goroutine under the [ThreadSafe] tag.
func (l *EventLoop[TS]) State() LoopState {
	return LoopState(l.state.Load())
}

// Resumed returns the Event delivered when the native loop resumes.
func (l *EventLoop[TS]) Resumed() *Event[struct{}, TS] { return l.resumed }

// Suspended returns the Event delivered when the native loop suspends.
func (l *EventLoop[TS]) Suspended() *Event[struct{}, TS] { return l.suspended }

// StateChanged returns the Event delivered on every state transition
// except the final one to [StateExited], which closes it instead.
func (l *EventLoop[TS]) StateChanged() *Event[LoopState, TS] { return l.stateChanged }

// Spawn spawns a root task on the loop and returns its [Handle].
// Failures of spawned tasks are reported to their handles and logged; they
// never stop the loop. After the loop has exited, the returned Handle has
// failed with [ErrClosed].
func (l *EventLoop[TS]) Spawn(t Task[TS]) *Handle[TS] {
	return l.exec.Spawn(t)
}

// Exit asks the loop to exit after the current dispatch.
func (l *EventLoop[TS]) Exit() {
	l.mu.Lock()
	l.exitRequested = true
	l.mu.Unlock()
	l.wake()
}

// BlockOn runs the native loop until t completes, [EventLoop.Exit] is
// called, or the native loop exits on its own.
//
// It returns nil when t ended normally or the loop was asked to exit, the
// failure of t (a [*TaskFailedError]), [ErrCancelled] when the native loop
// exited before t completed, or a wrapped loop-level error. BlockOn can be
// called only once.
func (l *EventLoop[TS]) BlockOn(t Task[TS]) (err error) {
	if l.started.Swap(1) != 0 {
		return ErrLoopStarted
	}

	ctx, span := l.startSpan(context.Background(), "asyncwin.block_on")
	l.ctx = ctx
	defer func() { endSpan(span, err) }()

	var ts TS
	l.log.Info().
		Str("loop_id", l.id).
		Str("name", l.opts.name).
		Str("thread_safety", ts.String()).
		Log("event loop starting")

	l.root = l.exec.Spawn(t)

	if runErr := l.backend.Run(l); runErr != nil {
		l.shutdown()
		l.log.Err().Err(runErr).Str("loop_id", l.id).Log("event loop failed")
		return fmt.Errorf("asyncwin: event loop failed: %w", runErr)
	}

	l.shutdown()

	l.log.Info().Str("loop_id", l.id).Log("event loop exited")

	if err := l.root.Err(); err != nil {
		l.mu.Lock()
		requested := l.exitRequested
		l.mu.Unlock()
		if requested && errors.Is(err, ErrCancelled) {
			return nil
		}
		return err
	}

	return nil
}

// HandleEvent implements [native.Handler]. It is called by the backend, on
// the goroutine running BlockOn, once per native event.
func (l *EventLoop[TS]) HandleEvent(ev native.Event) native.ControlFlow {
	if l.State() == StateExited {
		return native.ControlFlow{Mode: native.Exit}
	}

	l.notified.Store(0)
	l.metrics.RecordDispatch(l.ctx, ev.Kind.String())

	switch ev.Kind {
	case native.Init:
		l.setState(StateRunning)
	case native.Resumed:
		l.setState(StateRunning)
		emit(l, l.resumed, struct{}{})
	case native.Suspended:
		l.setState(StateSuspended)
		emit(l, l.suspended, struct{}{})
	case native.LoopExiting:
		l.shutdown()
		return native.ControlFlow{Mode: native.Exit}
	}

	l.drainOps()

	if ev.Kind.IsWindowEvent() {
		l.dispatchWindowEvent(ev)
	}

	l.fireTimers(l.backend.Now())
	l.runPass()

	return l.controlFlow()
}

func (l *EventLoop[TS]) setState(next LoopState) {
	cur := l.State()
	if cur == next || !cur.canTransition(next) {
		return
	}
	l.state.Store(int64(next))
	l.log.Debug().
		Str("loop_id", l.id).
		Stringer("from", cur).
		Stringer("to", next).
		Log("state changed")
	if next != StateExited {
		emit(l, l.stateChanged, next)
	}
}

// wake makes sure the backend dispatches again. Wakes are coalesced until
// the next dispatch.
func (l *EventLoop[TS]) wake() {
	if l.notified.Swap(1) == 0 {
		l.backend.Wake()
	}
}

// enqueue adds op to the request queue. It reports false once the loop has
// exited.
func (l *EventLoop[TS]) enqueue(op func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.ops.Add(op)
	l.mu.Unlock()
	l.wake()
	return true
}

// drainOps executes the requests queued before it was called.
func (l *EventLoop[TS]) drainOps() {
	l.mu.Lock()
	n := l.ops.Length()
	l.mu.Unlock()

	for range n {
		l.mu.Lock()
		if l.closed || l.ops.Length() == 0 {
			l.mu.Unlock()
			return
		}
		op := l.ops.Remove().(func())
		l.mu.Unlock()
		op()
	}
}

func (l *EventLoop[TS]) runPass() {
	start := time.Now()
	polled, _ := l.exec.RunBudget(l.opts.passBudget)
	if polled != 0 {
		l.metrics.RecordPass(l.ctx, polled, time.Since(start))
	}
}

func (l *EventLoop[TS]) controlFlow() native.ControlFlow {
	l.mu.Lock()
	exit := l.exitRequested
	ops := l.ops.Length()
	l.mu.Unlock()

	switch {
	case exit, l.root != nil && l.root.Done():
		return native.ControlFlow{Mode: native.Exit}
	case ops != 0, l.exec.Pending():
		return native.ControlFlow{Mode: native.Poll}
	}

	if deadline, ok := l.nextDeadline(); ok {
		return native.ControlFlow{Mode: native.WaitUntil, Deadline: deadline}
	}

	return native.ControlFlow{Mode: native.Wait}
}

// shutdown moves the loop to Exited: live tasks are dropped without further
// polling, then every Event the loop owns is closed.
func (l *EventLoop[TS]) shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	for l.ops.Length() != 0 {
		l.ops.Remove()
	}
	l.mu.Unlock()

	l.setState(StateExited)

	l.exec.Close()
	l.timers.Clear()

	for id, reg := range l.windows {
		delete(l.windows, id)
		reg.closeEvents()
		if !reg.gone {
			reg.gone = true
			if err := l.backend.DestroyWindow(id); err != nil {
				l.log.Warning().Err(err).Uint64("window", uint64(id)).Log("destroy window failed")
			}
		}
	}

	for e := range l.intervals {
		delete(l.intervals, e)
		e.Close()
	}

	l.resumed.Close()
	l.suspended.Close()
	l.stateChanged.Close()

	l.log.Debug().Str("loop_id", l.id).Log("event loop shut down")
}

// emit delivers v to e on behalf of the loop.
func emit[T any, TS ThreadSafety](l *EventLoop[TS], e *Event[T, TS], v T) {
	reached := e.deliver(v)
	l.metrics.RecordDelivery(l.ctx, e.name, reached)
	l.log.Trace().Str("event", e.name).Int("reached", reached).Log("delivered")
}

// Post queues a delivery of v to e. The delivery happens on the loop's
// goroutine at the start of its next dispatch, in the order Post was
// called. Post fails with [ErrClosed] once the loop has exited.
//
// Post must be called on the loop's goroutine (typically from a task);
// other goroutines use [Send].
func Post[T any, TS ThreadSafety](l *EventLoop[TS], e *Event[T, TS], v T) error {
	if !l.enqueue(func() { emit(l, e, v) }) {
		return ErrClosed
	}
	return nil
}

// call returns a [Task] that runs op on the loop at its next dispatch and
// then transitions to f with the result. Errors from op are thrown.
// If the requesting coroutine leaves first, a result that has not been
// taken is handed to discard, when not nil.
func call[T any, TS ThreadSafety](l *EventLoop[TS], op func() (T, error), discard func(v T), f func(co *Coroutine[TS], v T) Result[TS]) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		fut := &future[T, TS]{onDiscard: discard}
		ok := l.enqueue(func() {
			if !fut.pending() {
				return
			}
			fut.resolve(op())
		})
		if !ok {
			return co.Throw(ErrClosed)
		}
		co.Cleanup(fut)
		return co.Await(fut).Until(fut.take).Then(func(co *Coroutine[TS]) Result[TS] {
			if fut.err != nil {
				return co.Throw(fut.err)
			}
			if f == nil {
				return co.End()
			}
			return f(co, fut.value)
		})
	}
}
