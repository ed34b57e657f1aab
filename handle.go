package asyncwin

// A Handle tracks the completion of a root coroutine spawned by
// [Executor.Spawn] or [EventLoop.Spawn].
//
// A Handle is an [Awaitable]: it notifies once, when the coroutine ends.
// Done and Err may be called from any goroutine under the [ThreadSafe] tag.
type Handle[TS ThreadSafety] struct {
	Signal[TS]
	mu   mutex[TS]
	done bool
	err  error
}

func (h *Handle[TS]) complete(err error) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	h.err = err
	h.mu.Unlock()
	h.Notify()
}

// Done reports whether the coroutine has ended.
func (h *Handle[TS]) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Err returns nil while the coroutine runs or after it ended normally,
// a [*TaskFailedError] if it ended with an unrecovered panic or Throw,
// [ErrCancelled] if it was dropped by shutdown, or [ErrClosed] if it was
// spawned after shutdown.
func (h *Handle[TS]) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait returns a [Task] that awaits the coroutine's completion.
// If the coroutine did not end normally, its error is thrown into the
// awaiting coroutine.
func (h *Handle[TS]) Wait() Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		if h.Done() {
			if err := h.Err(); err != nil {
				return co.Throw(err)
			}
			return co.End()
		}
		return co.Await(h).Until(h.Done).Then(func(co *Coroutine[TS]) Result[TS] {
			if err := h.Err(); err != nil {
				return co.Throw(err)
			}
			return co.End()
		})
	}
}
