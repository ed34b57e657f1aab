package asyncwin

import (
	"github.com/eapache/queue"
)

// An Occurrence is one firing of an [Event]: its payload paired with the
// Event's generation at delivery time. Generations start at 1.
type Occurrence[T any] struct {
	Seq   uint64
	Value T
}

// An Event is a typed broadcast point.
//
// Every delivery resolves all single waits registered before it (broadcast,
// not consume-one) and is appended to every stream registered before it.
// Registrations are served in the order they were made.
//
// Events of windows and of the loop are delivered by the reactor. Events
// created with [NewEvent] are delivered with [Post] or [Send].
type Event[T any, TS ThreadSafety] struct {
	name    string
	mu      mutex[TS]
	seq     uint64
	closed  bool
	waiters list[*Waiter[T, TS]]
	streams list[*Stream[T, TS]]
	scratch []*Stream[T, TS]
}

// NewEvent creates an open Event named name. The caller owns it: an
// [EventLoop] does not close it on exit.
func NewEvent[T any, TS ThreadSafety](name string) *Event[T, TS] {
	return &Event[T, TS]{name: name}
}

// Name returns the name e was created with.
func (e *Event[T, TS]) Name() string { return e.name }

// Generation returns the sequence number of the latest delivery, or 0.
func (e *Event[T, TS]) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// Closed reports whether e has been closed.
func (e *Event[T, TS]) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Waiters returns the number of pending single waits.
func (e *Event[T, TS]) Waiters() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waiters.len
}

// Streams returns the number of open streams.
func (e *Event[T, TS]) Streams() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streams.len
}

// Register adds a pending single wait that resolves with the next delivery.
// It fails with [ErrClosed] once e is closed.
func (e *Event[T, TS]) Register() (*Waiter[T, TS], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	w := &Waiter[T, TS]{event: e}
	e.waiters.pushBack(&w.node, w)
	return w, nil
}

// Subscribe adds a stream that receives every later delivery.
// It fails with [ErrClosed] once e is closed.
func (e *Event[T, TS]) Subscribe() (*Stream[T, TS], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	s := &Stream[T, TS]{event: e, fifo: queue.New(), start: e.seq}
	e.streams.pushBack(&s.node, s)
	return s, nil
}

// deliver publishes v as the newest occurrence and reports how many
// registrations it reached. Deliveries to a closed Event are dropped.
//
// Waiters are detached and streams filled under the lock; listeners are
// woken after it is released, so a woken task may register again at once.
func (e *Event[T, TS]) deliver(v T) int {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		return 0
	}

	e.seq++
	occ := Occurrence[T]{Seq: e.seq, Value: v}

	waiters := e.waiters.detach()

	for n := waiters; n != nil; n = n.next {
		w := n.value
		w.occ = occ
		w.state = waiterResolved
	}

	streams := e.scratch[:0]
	for n := e.streams.head; n != nil; n = n.next {
		s := n.value
		s.fifo.Add(occ)
		streams = append(streams, s)
	}
	e.scratch = nil

	e.mu.Unlock()

	reached := len(streams)

	for n := waiters; n != nil; {
		next := n.next
		n.next, n.prev = nil, nil
		n.value.Notify()
		n = next
		reached++
	}

	for _, s := range streams {
		s.Notify()
	}

	clear(streams)
	e.mu.Lock()
	if e.scratch == nil {
		e.scratch = streams[:0]
	}
	e.mu.Unlock()

	return reached
}

// Close cancels every pending single wait with [ErrCancelled], ends every
// stream once its queued occurrences are consumed, and makes later
// registrations fail with [ErrClosed]. Close is idempotent.
//
// Close wakes tasks, so it must be called on the goroutine that runs the
// tasks (use [Proxy] to reach it from elsewhere).
func (e *Event[T, TS]) Close() {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		return
	}

	e.closed = true

	waiters := e.waiters.detach()

	for n := waiters; n != nil; n = n.next {
		w := n.value
		w.err = ErrCancelled
		w.state = waiterCancelled
	}

	var streams []*Stream[T, TS]
	for n := e.streams.detach(); n != nil; {
		next := n.next
		n.next, n.prev = nil, nil
		s := n.value
		s.ended = true
		streams = append(streams, s)
		n = next
	}

	e.mu.Unlock()

	for n := waiters; n != nil; {
		next := n.next
		n.next, n.prev = nil, nil
		n.value.Notify()
		n = next
	}

	for _, s := range streams {
		s.Notify()
	}
}

type waiterState uint8

const (
	waiterPending waiterState = iota
	waiterResolved
	waiterCancelled
	waiterReleased
)

// A Waiter is a single wait registered on an [Event].
//
// It is an [Awaitable] that notifies once, when it resolves or is cancelled,
// and a [Cleanup] that deregisters it if it is still pending.
type Waiter[T any, TS ThreadSafety] struct {
	Signal[TS]
	event *Event[T, TS]
	node  node[*Waiter[T, TS]]
	state waiterState
	occ   Occurrence[T]
	err   error
}

// Ready reports whether w has resolved or been cancelled.
func (w *Waiter[T, TS]) Ready() bool {
	w.event.mu.Lock()
	defer w.event.mu.Unlock()
	return w.state == waiterResolved || w.state == waiterCancelled
}

// Result returns the occurrence w resolved with. ok is false while w is
// pending or after it was released unresolved. err is [ErrCancelled] when
// the Event closed first.
func (w *Waiter[T, TS]) Result() (occ Occurrence[T], ok bool, err error) {
	w.event.mu.Lock()
	defer w.event.mu.Unlock()
	switch w.state {
	case waiterResolved:
		return w.occ, true, nil
	case waiterCancelled:
		return occ, true, w.err
	}
	return occ, false, nil
}

// Release deregisters w if it is still pending. A released Waiter never
// resolves.
func (w *Waiter[T, TS]) Release() {
	e := w.event
	e.mu.Lock()
	if w.state == waiterPending {
		e.waiters.remove(&w.node)
		w.state = waiterReleased
	}
	e.mu.Unlock()
}

// Cleanup implements [Cleanup] by calling Release.
func (w *Waiter[T, TS]) Cleanup() { w.Release() }

// A Stream is a multi-wait registration on an [Event]: a FIFO of every
// occurrence delivered after it was subscribed.
//
// It is an [Awaitable] that notifies on every delivery and when it ends,
// and a [Cleanup] that releases it.
type Stream[T any, TS ThreadSafety] struct {
	Signal[TS]
	event *Event[T, TS]
	node  node[*Stream[T, TS]]
	fifo  *queue.Queue
	start uint64
	ended bool
	err   error
	keep  func(v T) bool

	// deferred is set while a Stream made by WaitMany has not subscribed yet.
	deferred bool

	onRelease func()
}

// Start returns the Event's generation when s was subscribed. s observes
// exactly the occurrences with a greater sequence number.
func (s *Stream[T, TS]) Start() uint64 {
	if s.event == nil {
		return 0
	}
	s.event.mu.Lock()
	defer s.event.mu.Unlock()
	s.subscribeLocked()
	return s.start
}

// Err returns the registration error of a stream created by
// [Event.WaitMany] on a closed Event.
func (s *Stream[T, TS]) Err() error {
	if s.event == nil {
		return s.err
	}
	s.event.mu.Lock()
	defer s.event.mu.Unlock()
	s.subscribeLocked()
	return s.err
}

// subscribeLocked registers a deferred s on its Event. It is called with
// the Event's lock held.
func (s *Stream[T, TS]) subscribeLocked() {
	if !s.deferred {
		return
	}
	s.deferred = false
	e := s.event
	if e.closed {
		s.ended = true
		s.err = ErrClosed
		return
	}
	s.start = e.seq
	e.streams.pushBack(&s.node, s)
}

// Filter makes Next skip occurrences whose value keep rejects.
// It returns s.
func (s *Stream[T, TS]) Filter(keep func(v T) bool) *Stream[T, TS] {
	s.keep = keep
	return s
}

// Next pops the oldest queued occurrence that passes the filter.
// The filter runs without the Event's lock held, so it may call back into
// the Event.
func (s *Stream[T, TS]) Next() (Occurrence[T], bool) {
	if s.event == nil {
		return Occurrence[T]{}, false
	}
	e := s.event
	for {
		e.mu.Lock()
		s.subscribeLocked()
		if s.fifo.Length() == 0 {
			e.mu.Unlock()
			return Occurrence[T]{}, false
		}
		occ := s.fifo.Remove().(Occurrence[T])
		keep := s.keep
		e.mu.Unlock()

		if keep == nil || keep(occ.Value) {
			return occ, true
		}
	}
}

// Pending returns the number of queued occurrences, before filtering.
func (s *Stream[T, TS]) Pending() int {
	if s.event == nil {
		return 0
	}
	s.event.mu.Lock()
	defer s.event.mu.Unlock()
	s.subscribeLocked()
	return s.fifo.Length()
}

// Ready reports whether Next has something to pop or s has ended.
func (s *Stream[T, TS]) Ready() bool {
	if s.event == nil {
		return true
	}
	s.event.mu.Lock()
	defer s.event.mu.Unlock()
	s.subscribeLocked()
	return s.ended || s.fifo.Length() != 0
}

// Done reports whether s has ended and everything queued has been popped.
func (s *Stream[T, TS]) Done() bool {
	if s.event == nil {
		return true
	}
	s.event.mu.Lock()
	defer s.event.mu.Unlock()
	s.subscribeLocked()
	return s.ended && s.fifo.Length() == 0
}

// Release deregisters s and discards anything still queued.
// A Stream released before its first use never subscribes.
func (s *Stream[T, TS]) Release() {
	e := s.event
	if e == nil {
		return
	}
	e.mu.Lock()
	s.deferred = false
	if !s.ended {
		e.streams.remove(&s.node)
		s.ended = true
	}
	for s.fifo.Length() != 0 {
		s.fifo.Remove()
	}
	onRelease := s.onRelease
	s.onRelease = nil
	e.mu.Unlock()

	if onRelease != nil {
		onRelease()
	}
}

// Cleanup implements [Cleanup] by calling Release.
func (s *Stream[T, TS]) Cleanup() { s.Release() }

// node and list form an intrusive doubly linked list that keeps
// registrations in arrival order with O(1) removal.
type node[V any] struct {
	prev, next *node[V]
	value      V
	linked     bool
}

type list[V any] struct {
	head, tail *node[V]
	len        int
}

func (l *list[V]) pushBack(n *node[V], v V) {
	n.value = v
	n.prev = l.tail
	n.next = nil
	n.linked = true
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.len++
}

func (l *list[V]) remove(n *node[V]) {
	if !n.linked {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	n.linked = false
	l.len--
}

// detach empties l and returns its former head. The returned chain keeps
// its next links, but no node is linked into l anymore.
func (l *list[V]) detach() *node[V] {
	head := l.head
	for n := head; n != nil; n = n.next {
		n.linked = false
	}
	l.head, l.tail, l.len = nil, nil, 0
	return head
}
