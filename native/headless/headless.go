// Package headless is an in-memory [native.Backend].
//
// Native events are posted into a FIFO and dispatched one per Run iteration.
// Windows are records in a map. With a virtual clock, WaitUntil deadlines are
// reached instantly, which makes timer-driven code deterministic.
package headless

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/b97tsk/asyncwin/native"
	"github.com/eapache/queue"
	"github.com/joeycumines/logiface"
)

var (
	// ErrStalled is returned by Run when the handler asks to wait but no
	// input can arrive anymore: input is closed, the event queue is empty,
	// and no wake is pending.
	ErrStalled = errors.New("headless: stalled waiting for input")

	// ErrUnknownWindow is returned by window operations on an id that was
	// never created or has been destroyed.
	ErrUnknownWindow = errors.New("headless: unknown window")

	// ErrRunning is returned by Run when the backend is already running.
	ErrRunning = errors.New("headless: already running")
)

// Option configures a Backend.
type Option func(*Backend)

// WithVirtualClock makes the backend's clock start at start and advance only
// when a WaitUntil deadline is reached.
func WithVirtualClock(start time.Time) Option {
	return func(b *Backend) {
		b.virtual = true
		b.now = start
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return func(b *Backend) {
		b.log = log
	}
}

type window struct {
	attrs   native.WindowAttributes
	redraws int
}

// Backend is an in-memory [native.Backend]. Post, CloseInput, Wake and the
// inspection methods are safe for concurrent use.
type Backend struct {
	mu          sync.Mutex
	events      *queue.Queue
	inputClosed bool
	woken       bool
	running     bool
	wakeCh      chan struct{}

	windows   map[native.WindowID]*window
	nextID    native.WindowID
	createErr error

	virtual bool
	now     time.Time

	flows []native.ControlFlow
	log   *logiface.Logger[logiface.Event]
}

var _ native.Backend = (*Backend)(nil)

// New creates a Backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		events:  queue.New(),
		wakeCh:  make(chan struct{}, 1),
		windows: make(map[native.WindowID]*window),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Post queues a native event. A zero Time is stamped with the backend's
// clock.
func (b *Backend) Post(ev native.Event) {
	b.mu.Lock()
	if ev.Time.IsZero() {
		ev.Time = b.nowLocked()
	}
	b.events.Add(ev)
	b.mu.Unlock()
	b.signal()
}

// CloseInput declares that no other goroutine will post events. Once the
// queue drains, a handler that asks to wait makes Run fail with
// [ErrStalled] instead of blocking forever. Post keeps working.
func (b *Backend) CloseInput() {
	b.mu.Lock()
	b.inputClosed = true
	b.mu.Unlock()
	b.signal()
}

// FailNextCreate makes the next CreateWindow call fail with err.
func (b *Backend) FailNextCreate(err error) {
	b.mu.Lock()
	b.createErr = err
	b.mu.Unlock()
}

// Flows returns every control flow the handler has answered with.
func (b *Backend) Flows() []native.ControlFlow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]native.ControlFlow(nil), b.flows...)
}

// Windows returns the number of live windows.
func (b *Backend) Windows() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.windows)
}

// Redraws returns how many redraws were requested for id.
func (b *Backend) Redraws(id native.WindowID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w := b.windows[id]; w != nil {
		return w.redraws
	}
	return 0
}

// Wake implements [native.Backend].
func (b *Backend) Wake() {
	b.mu.Lock()
	b.woken = true
	b.mu.Unlock()
	b.signal()
}

func (b *Backend) signal() {
	select {
	case b.wakeCh <- struct{}{}:
	default:
	}
}

// Now implements [native.Backend].
func (b *Backend) Now() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nowLocked()
}

func (b *Backend) nowLocked() time.Time {
	if b.virtual {
		return b.now
	}
	return time.Now()
}

// Run implements [native.Backend].
func (b *Backend) Run(h native.Handler) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrRunning
	}
	b.running = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	b.log.Debug().Log("headless backend running")

	flow := b.dispatch(h, native.Event{Kind: native.Init})

	for flow.Mode != native.Exit {
		ev, err := b.next(flow)
		if err != nil {
			b.log.Warning().Err(err).Log("headless backend stopped")
			return err
		}
		flow = b.dispatch(h, ev)
	}

	b.dispatch(h, native.Event{Kind: native.LoopExiting})

	b.log.Debug().Log("headless backend exited")

	return nil
}

func (b *Backend) dispatch(h native.Handler, ev native.Event) native.ControlFlow {
	if ev.Time.IsZero() {
		ev.Time = b.Now()
	}
	b.log.Trace().Stringer("kind", ev.Kind).Uint64("window", uint64(ev.Window)).Log("dispatch")
	flow := h.HandleEvent(ev)
	b.mu.Lock()
	b.flows = append(b.flows, flow)
	b.mu.Unlock()
	return flow
}

// next returns the event to dispatch after the handler answered flow.
func (b *Backend) next(flow native.ControlFlow) (native.Event, error) {
	for {
		b.mu.Lock()

		if b.events.Length() != 0 {
			ev := b.events.Remove().(native.Event)
			b.mu.Unlock()
			return ev, nil
		}

		if b.woken {
			b.woken = false
			b.mu.Unlock()
			return native.Event{Kind: native.Wakeup}, nil
		}

		switch flow.Mode {
		case native.Poll:
			b.mu.Unlock()
			return native.Event{Kind: native.AboutToWait}, nil

		case native.WaitUntil:
			if b.virtual {
				if flow.Deadline.After(b.now) {
					b.now = flow.Deadline
				}
				b.mu.Unlock()
				return native.Event{Kind: native.NewEvents}, nil
			}
			b.mu.Unlock()
			d := time.Until(flow.Deadline)
			if d <= 0 {
				return native.Event{Kind: native.NewEvents}, nil
			}
			t := time.NewTimer(d)
			select {
			case <-b.wakeCh:
				t.Stop()
			case <-t.C:
				return native.Event{Kind: native.NewEvents}, nil
			}

		case native.Wait:
			closed := b.inputClosed
			b.mu.Unlock()
			if closed {
				select {
				case <-b.wakeCh:
				default:
					return native.Event{}, ErrStalled
				}
				continue
			}
			<-b.wakeCh

		default:
			b.mu.Unlock()
			return native.Event{}, fmt.Errorf("headless: unexpected control flow %v", flow.Mode)
		}
	}
}

// CreateWindow implements [native.Backend]. Ids are assigned from 1 in
// creation order.
func (b *Backend) CreateWindow(attrs native.WindowAttributes) (native.WindowID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.createErr; err != nil {
		b.createErr = nil
		return 0, err
	}
	b.nextID++
	b.windows[b.nextID] = &window{attrs: attrs}
	b.log.Debug().Uint64("window", uint64(b.nextID)).Str("title", attrs.Title).Log("headless window created")
	return b.nextID, nil
}

// DestroyWindow implements [native.Backend].
func (b *Backend) DestroyWindow(id native.WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.windows[id] == nil {
		return ErrUnknownWindow
	}
	delete(b.windows, id)
	return nil
}

// InnerSize implements [native.Backend].
func (b *Backend) InnerSize(id native.WindowID) (native.Size, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.windows[id]
	if w == nil {
		return native.Size{}, ErrUnknownWindow
	}
	return w.attrs.Size, nil
}

// SetInnerSize implements [native.Backend]. It posts a Resized event.
func (b *Backend) SetInnerSize(id native.WindowID, size native.Size) error {
	b.mu.Lock()
	w := b.windows[id]
	if w == nil {
		b.mu.Unlock()
		return ErrUnknownWindow
	}
	w.attrs.Size = size
	b.mu.Unlock()
	b.Post(native.Event{Kind: native.Resized, Window: id, Size: size})
	return nil
}

// Title implements [native.Backend].
func (b *Backend) Title(id native.WindowID) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.windows[id]
	if w == nil {
		return "", ErrUnknownWindow
	}
	return w.attrs.Title, nil
}

// SetTitle implements [native.Backend].
func (b *Backend) SetTitle(id native.WindowID, title string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.windows[id]
	if w == nil {
		return ErrUnknownWindow
	}
	w.attrs.Title = title
	return nil
}

// RequestRedraw implements [native.Backend]. It posts a RedrawRequested
// event.
func (b *Backend) RequestRedraw(id native.WindowID) error {
	b.mu.Lock()
	w := b.windows[id]
	if w == nil {
		b.mu.Unlock()
		return ErrUnknownWindow
	}
	w.redraws++
	b.mu.Unlock()
	b.Post(native.Event{Kind: native.RedrawRequested, Window: id})
	return nil
}
