package asyncwin

// A future is a one-shot result slot filled by the reactor and taken by the
// coroutine that requested it.
type future[T any, TS ThreadSafety] struct {
	Signal[TS]
	mu        mutex[TS]
	done      bool
	taken     bool
	abandoned bool
	value     T
	err       error
	onDiscard func(v T)
}

// resolve fills f and wakes the requester. If the requester has already
// gone, the value is discarded right away.
func (f *future[T, TS]) resolve(v T, err error) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return
	}
	f.done = true
	f.value = v
	f.err = err
	abandoned := f.abandoned
	f.mu.Unlock()

	if abandoned {
		f.discard()
		return
	}

	f.Notify()
}

// ready reports whether f has been resolved.
func (f *future[T, TS]) ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// take hands the result to the requester. It is used as an Until condition
// so that the value is claimed before cleanups run.
func (f *future[T, TS]) take() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.done {
		return false
	}
	f.taken = true
	return true
}

// pending reports whether the reactor should still execute the request.
func (f *future[T, TS]) pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.abandoned && !f.done
}

// Cleanup marks f abandoned when the requester leaves without taking the
// result, discarding a result that was already produced.
func (f *future[T, TS]) Cleanup() {
	f.mu.Lock()
	if f.taken || f.abandoned {
		f.mu.Unlock()
		return
	}
	f.abandoned = true
	done := f.done
	f.mu.Unlock()

	if done {
		f.discard()
	}
}

func (f *future[T, TS]) discard() {
	if f.err == nil && f.onDiscard != nil {
		f.onDiscard(f.value)
	}
}
