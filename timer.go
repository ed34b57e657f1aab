package asyncwin

import "time"

// A timer is an armed deadline in the loop's timer queue. Cancelled timers
// stay queued and are skipped when they come due.
type timer[TS ThreadSafety] struct {
	Signal[TS]
	deadline  time.Time
	fired     bool
	cancelled bool
	onFire    func(now time.Time)
}

func (t *timer[TS]) less(other *timer[TS]) bool {
	return t.deadline.Before(other.deadline)
}

func (t *timer[TS]) isFired() bool { return t.fired }

// Cleanup cancels t.
func (t *timer[TS]) Cleanup() { t.cancelled = true }

func (l *EventLoop[TS]) addTimer(t *timer[TS]) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.timers.Push(t)
	return true
}

func (l *EventLoop[TS]) nextDeadline() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for !l.timers.Empty() {
		t := l.timers.Peek()
		if !t.cancelled {
			return t.deadline, true
		}
		l.timers.Pop()
	}
	return time.Time{}, false
}

// fireTimers fires every timer due at now, in deadline order.
func (l *EventLoop[TS]) fireTimers(now time.Time) {
	for {
		l.mu.Lock()
		if l.timers.Empty() || l.timers.Peek().deadline.After(now) {
			l.mu.Unlock()
			return
		}
		t := l.timers.Pop()
		l.mu.Unlock()

		if t.cancelled {
			continue
		}

		t.fired = true
		if t.onFire != nil {
			t.onFire(now)
		}
		t.Notify()
	}
}

// SleepUntil returns a [Task] that ends at deadline, by the backend's clock.
// It throws [ErrClosed] if the loop has exited.
func (l *EventLoop[TS]) SleepUntil(deadline time.Time) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		t := &timer[TS]{deadline: deadline}
		if !l.addTimer(t) {
			return co.Throw(ErrClosed)
		}
		co.Cleanup(t)
		return co.Await(t).Until(t.isFired).End()
	}
}

// Sleep returns a [Task] that ends after d has passed.
//
// Racing Sleep against a wait builds a timeout:
//
//	Race(w.CloseRequested().Await(), l.Sleep(time.Second))
func (l *EventLoop[TS]) Sleep(d time.Duration) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		return co.Transition(l.SleepUntil(l.backend.Now().Add(d)))
	}
}

// Interval returns a [Stream] of tick times, one every period, starting one
// period from now. Ticks missed while the loop was busy are skipped.
// Releasing the Stream stops the ticker. The Stream ends when the loop
// exits.
//
// Interval must be called on the loop's goroutine.
func (l *EventLoop[TS]) Interval(period time.Duration) *Stream[time.Time, TS] {
	if period <= 0 {
		panic("asyncwin: non-positive Interval period")
	}

	e := NewEvent[time.Time, TS]("interval")
	s, _ := e.Subscribe() // e is new, so this cannot fail.

	var t *timer[TS]
	var arm func(deadline time.Time)

	arm = func(deadline time.Time) {
		t = &timer[TS]{deadline: deadline}
		t.onFire = func(now time.Time) {
			emit(l, e, now)
			next := deadline.Add(period)
			if !next.After(now) {
				next = now.Add(period)
			}
			arm(next)
		}
		if !l.addTimer(t) {
			e.Close()
		}
	}

	arm(l.backend.Now().Add(period))
	l.wake()

	if !e.Closed() {
		l.intervals[e] = struct{}{}
	}

	s.onRelease = func() {
		t.cancelled = true
		delete(l.intervals, e)
		e.Close()
	}

	return s
}
