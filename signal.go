package asyncwin

// Awaitable is the interface of any type that can be watched by a
// [Coroutine].
//
// [Signal], [Handle], [Waiter] and [Stream] implement Awaitable, as does any
// type embedding Signal.
type Awaitable[TS ThreadSafety] interface {
	addListener(co *Coroutine[TS])
	removeListener(co *Coroutine[TS])
}

// Signal is a type that implements [Awaitable].
//
// Calling the Notify method of a Signal, in a [Task] function, resumes
// any [Coroutine] that is watching the Signal.
//
// A Signal must not be shared by more than one [Executor], and is only
// touched from the goroutine running that Executor.
type Signal[TS ThreadSafety] struct {
	listeners map[*Coroutine[TS]]struct{}
}

func (s *Signal[TS]) addListener(co *Coroutine[TS]) {
	listeners := s.listeners
	if listeners == nil {
		listeners = make(map[*Coroutine[TS]]struct{})
		s.listeners = listeners
	}
	listeners[co] = struct{}{}
}

func (s *Signal[TS]) removeListener(co *Coroutine[TS]) {
	delete(s.listeners, co)
}

// Notify resumes any [Coroutine] that is watching s.
//
// One should only call this method on the goroutine running the Executor.
func (s *Signal[TS]) Notify() {
	for co := range s.listeners {
		co.Resume()
	}
}

func (s *Signal[TS]) listening() int {
	return len(s.listeners)
}
