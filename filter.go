package asyncwin

import "github.com/eapache/queue"

// WaitOnce returns a [Task] that registers a single wait on e, awaits the
// next delivery, and then transitions to f with the delivered value.
// If f is nil, the Task just ends.
//
// The registration is made when the Task first runs, and is released when
// the running coroutine ends, exits, or is canceled before the delivery.
// If e is closed at that point, [ErrClosed] is thrown into the coroutine;
// if e closes while waiting, [ErrCancelled] is.
func (e *Event[T, TS]) WaitOnce(f func(co *Coroutine[TS], v T) Result[TS]) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		w, err := e.Register()
		if err != nil {
			return co.Throw(err)
		}
		co.Cleanup(w)
		return co.Await(w).Until(w.Ready).Then(func(co *Coroutine[TS]) Result[TS] {
			occ, _, err := w.Result()
			if err != nil {
				return co.Throw(err)
			}
			if f == nil {
				return co.End()
			}
			return f(co, occ.Value)
		})
	}
}

// Await returns a [Task] that awaits the next delivery of e and ends.
func (e *Event[T, TS]) Await() Task[TS] {
	return e.WaitOnce(nil)
}

// WaitUntil returns a [Task] that awaits the first delivery of e whose value
// satisfies pred, and then transitions to f with that value.
// If e closes first, [ErrCancelled] is thrown.
func (e *Event[T, TS]) WaitUntil(pred func(v T) bool, f func(co *Coroutine[TS], v T) Result[TS]) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		s, err := e.Subscribe()
		if err != nil {
			return co.Throw(err)
		}
		s.Filter(pred)
		co.Cleanup(s)
		var occ Occurrence[T]
		var ok bool
		poll := func() bool {
			occ, ok = s.Next()
			return ok || s.Done()
		}
		return co.Await(s).Until(poll).Then(func(co *Coroutine[TS]) Result[TS] {
			if !ok {
				return co.Throw(ErrCancelled)
			}
			if f == nil {
				return co.End()
			}
			return f(co, occ.Value)
		})
	}
}

// WaitMany returns a [Stream] of e that subscribes on first use: when a
// [Stream.ForEach] or [Stream.WaitNext] Task over it first runs, or when one
// of its methods other than Filter and Release is called. A Stream whose
// Task never runs, like a Race branch that is never started, never
// registers. Use [Event.Subscribe] to register at a precise point instead.
//
// If e is closed when the Stream subscribes, the Stream has ended and its
// Err method reports [ErrClosed]; [Stream.ForEach] throws that error.
func (e *Event[T, TS]) WaitMany() *Stream[T, TS] {
	return &Stream[T, TS]{event: e, fifo: queue.New(), deferred: true}
}

// ForEach returns a [Task] that awaits every occurrence of s in order and
// transitions to f with each value.
//
// f ending continues with the next occurrence; f breaking ([Coroutine.Break])
// stops early. The Task ends when s has ended and everything queued before
// that has been handled. s is released when the Task returns, and also when
// the running coroutine is dropped by [Executor.Close].
func (s *Stream[T, TS]) ForEach(f func(co *Coroutine[TS], v T) Result[TS]) Task[TS] {
	return Func[TS](func(co *Coroutine[TS]) Result[TS] {
		if err := s.Err(); err != nil {
			return co.Throw(err)
		}

		co.Defer(Do[TS](s.Release))

		// Dropped coroutines skip their deferred tasks but not their
		// cleanups.
		releaseIfDropped := func() {
			if co.Ended() {
				s.Release()
			}
		}

		var occ Occurrence[T]
		var ok bool

		poll := func() bool {
			occ, ok = s.Next()
			return ok || s.Done()
		}

		body := func(co *Coroutine[TS]) Result[TS] {
			if !ok {
				return co.Break()
			}
			ok = false
			return f(co, occ.Value)
		}

		step := func(co *Coroutine[TS]) Result[TS] {
			if poll() {
				return co.Transition(body)
			}
			co.CleanupFunc(releaseIfDropped)
			return co.Await(s).Until(poll).Then(body)
		}

		return co.Transition(Loop[TS](step))
	})
}

// WaitNext returns a [Task] that pops the next occurrence of s, awaiting one
// if none is queued, and then transitions to f. ok is false when s has ended.
func (s *Stream[T, TS]) WaitNext(f func(co *Coroutine[TS], v T, ok bool) Result[TS]) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		if err := s.Err(); err != nil {
			return co.Throw(err)
		}

		var occ Occurrence[T]
		var ok bool

		poll := func() bool {
			occ, ok = s.Next()
			return ok || s.Done()
		}

		next := func(co *Coroutine[TS]) Result[TS] {
			return f(co, occ.Value, ok)
		}

		if poll() {
			return co.Transition(next)
		}

		return co.Await(s).Until(poll).Then(next)
	}
}

// Pipe returns a [Task] that forwards every occurrence of src to dst,
// mapped through f. Values for which f reports false are dropped.
// The Task ends when src ends, leaving dst open.
func Pipe[T, U any, TS ThreadSafety](src *Stream[T, TS], dst *Event[U, TS], f func(v T) (U, bool)) Task[TS] {
	return src.ForEach(func(co *Coroutine[TS], v T) Result[TS] {
		if u, ok := f(v); ok {
			dst.deliver(u)
		}
		return co.End()
	})
}
