package asyncwin

import (
	"fmt"
	"weak"

	"github.com/b97tsk/asyncwin/native"
	"go.opentelemetry.io/otel/attribute"
)

// windowRegistration is the loop's record of a live native window and the
// Events that the window's handles expose.
type windowRegistration[TS ThreadSafety] struct {
	id   native.WindowID
	refs counter[TS]
	gone bool // native window destroyed

	closeRequested     *Event[struct{}, TS]
	resized            *Event[native.Size, TS]
	moved              *Event[native.Position, TS]
	destroyed          *Event[struct{}, TS]
	focused            *Event[bool, TS]
	redrawRequested    *Event[struct{}, TS]
	receivedCharacter  *Event[rune, TS]
	keyboardInput      *Event[native.KeyboardInput, TS]
	cursorMoved        *Event[native.CursorPosition, TS]
	cursorEntered      *Event[struct{}, TS]
	cursorLeft         *Event[struct{}, TS]
	mouseInput         *Event[native.MouseInput, TS]
	scaleFactorChanged *Event[float64, TS]
	themeChanged       *Event[native.Theme, TS]
	occluded           *Event[bool, TS]
}

func newWindowRegistration[TS ThreadSafety](id native.WindowID) *windowRegistration[TS] {
	name := func(kind string) string { return fmt.Sprintf("window.%d.%s", id, kind) }
	reg := &windowRegistration[TS]{
		id:                 id,
		closeRequested:     NewEvent[struct{}, TS](name("close_requested")),
		resized:            NewEvent[native.Size, TS](name("resized")),
		moved:              NewEvent[native.Position, TS](name("moved")),
		destroyed:          NewEvent[struct{}, TS](name("destroyed")),
		focused:            NewEvent[bool, TS](name("focused")),
		redrawRequested:    NewEvent[struct{}, TS](name("redraw_requested")),
		receivedCharacter:  NewEvent[rune, TS](name("received_character")),
		keyboardInput:      NewEvent[native.KeyboardInput, TS](name("keyboard_input")),
		cursorMoved:        NewEvent[native.CursorPosition, TS](name("cursor_moved")),
		cursorEntered:      NewEvent[struct{}, TS](name("cursor_entered")),
		cursorLeft:         NewEvent[struct{}, TS](name("cursor_left")),
		mouseInput:         NewEvent[native.MouseInput, TS](name("mouse_input")),
		scaleFactorChanged: NewEvent[float64, TS](name("scale_factor_changed")),
		themeChanged:       NewEvent[native.Theme, TS](name("theme_changed")),
		occluded:           NewEvent[bool, TS](name("occluded")),
	}
	reg.refs.Store(1)
	return reg
}

func (r *windowRegistration[TS]) closeEvents() {
	r.closeRequested.Close()
	r.resized.Close()
	r.moved.Close()
	r.destroyed.Close()
	r.focused.Close()
	r.redrawRequested.Close()
	r.receivedCharacter.Close()
	r.keyboardInput.Close()
	r.cursorMoved.Close()
	r.cursorEntered.Close()
	r.cursorLeft.Close()
	r.mouseInput.Close()
	r.scaleFactorChanged.Close()
	r.themeChanged.Close()
	r.occluded.Close()
}

// A Window is a handle to a native window created by
// [EventLoop.CreateWindow].
//
// A Window holds only a weak reference to its loop. Handles are reference
// counted: Clone makes another, Close releases one, and releasing the last
// closes the window's Events and then destroys the native window at the
// loop's next dispatch.
type Window[TS ThreadSafety] struct {
	id       native.WindowID
	reg      *windowRegistration[TS]
	loop     weak.Pointer[EventLoop[TS]]
	released counter[TS]
}

// CreateWindow returns a [Task] that asks the loop to create a native window
// and transitions to f with its handle once the loop confirms it exists.
//
// Nothing happens until the Task runs. If the native library fails, a
// [*ConstructionError] is thrown into the coroutine that runs the Task. If
// that coroutine leaves before taking the handle, the window is destroyed.
func (l *EventLoop[TS]) CreateWindow(attrs native.WindowAttributes, f func(co *Coroutine[TS], w *Window[TS]) Result[TS]) Task[TS] {
	op := func() (*Window[TS], error) { return l.createWindow(attrs) }
	discard := func(w *Window[TS]) { w.Close() }
	return call(l, op, discard, f)
}

func (l *EventLoop[TS]) createWindow(attrs native.WindowAttributes) (*Window[TS], error) {
	_, span := l.startSpan(l.ctx, "asyncwin.create_window", attribute.String("window.title", attrs.Title))

	id, err := l.backend.CreateWindow(attrs)
	l.metrics.RecordWindowCreated(l.ctx, err == nil)

	if err != nil {
		err = &ConstructionError{Resource: "window", Err: err}
		endSpan(span, err)
		l.log.Warning().Err(err).Str("title", attrs.Title).Log("window construction failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int64("window.id", int64(id)))
	endSpan(span, nil)

	reg := newWindowRegistration[TS](id)
	l.windows[id] = reg

	l.log.Debug().Uint64("window", uint64(id)).Str("title", attrs.Title).Log("window created")

	return &Window[TS]{id: id, reg: reg, loop: weak.Make(l)}, nil
}

// ID returns the native window id.
func (w *Window[TS]) ID() native.WindowID { return w.id }

// Clone returns another handle to the same window.
func (w *Window[TS]) Clone() *Window[TS] {
	w.reg.refs.Add(1)
	return &Window[TS]{id: w.id, reg: w.reg, loop: w.loop}
}

// Close releases w. Calling Close more than once is a no-op.
//
// Close must be called on the loop's goroutine.
func (w *Window[TS]) Close() {
	if w.released.Swap(1) != 0 {
		return
	}
	if w.reg.refs.Add(-1) != 0 {
		return
	}

	reg := w.reg
	reg.closeEvents()

	l := w.loop.Value()
	if l == nil {
		return
	}

	l.enqueue(func() { l.destroyWindow(reg) })
}

func (l *EventLoop[TS]) destroyWindow(reg *windowRegistration[TS]) {
	if l.windows[reg.id] == reg {
		delete(l.windows, reg.id)
	}
	if reg.gone {
		return
	}
	reg.gone = true
	if err := l.backend.DestroyWindow(reg.id); err != nil {
		l.log.Warning().Err(err).Uint64("window", uint64(reg.id)).Log("destroy window failed")
		return
	}
	l.log.Debug().Uint64("window", uint64(reg.id)).Log("window destroyed")
}

// windowOp returns a [Task] running op against w's native window on the
// loop. It throws [ErrClosed] when w has been closed, the window is gone, or
// the loop has exited.
func windowOp[T any, TS ThreadSafety](w *Window[TS], op func(l *EventLoop[TS], id native.WindowID) (T, error), f func(co *Coroutine[TS], v T) Result[TS]) Task[TS] {
	return func(co *Coroutine[TS]) Result[TS] {
		l := w.loop.Value()
		if l == nil || w.released.Load() != 0 || w.reg.gone {
			return co.Throw(ErrClosed)
		}
		reg := w.reg
		run := func() (v T, err error) {
			if reg.gone || l.windows[reg.id] != reg {
				return v, ErrClosed
			}
			return op(l, reg.id)
		}
		return co.Transition(call(l, run, nil, f))
	}
}

// InnerSize returns a [Task] that queries the window's inner size and
// transitions to f with it.
func (w *Window[TS]) InnerSize(f func(co *Coroutine[TS], size native.Size) Result[TS]) Task[TS] {
	return windowOp(w, func(l *EventLoop[TS], id native.WindowID) (native.Size, error) {
		return l.backend.InnerSize(id)
	}, f)
}

// SetInnerSize returns a [Task] that resizes the window.
func (w *Window[TS]) SetInnerSize(size native.Size) Task[TS] {
	return windowOp(w, func(l *EventLoop[TS], id native.WindowID) (struct{}, error) {
		return struct{}{}, l.backend.SetInnerSize(id, size)
	}, nil)
}

// Title returns a [Task] that queries the window's title and transitions to
// f with it.
func (w *Window[TS]) Title(f func(co *Coroutine[TS], title string) Result[TS]) Task[TS] {
	return windowOp(w, func(l *EventLoop[TS], id native.WindowID) (string, error) {
		return l.backend.Title(id)
	}, f)
}

// SetTitle returns a [Task] that retitles the window.
func (w *Window[TS]) SetTitle(title string) Task[TS] {
	return windowOp(w, func(l *EventLoop[TS], id native.WindowID) (struct{}, error) {
		return struct{}{}, l.backend.SetTitle(id, title)
	}, nil)
}

// RequestRedraw returns a [Task] that asks for a RedrawRequested event.
func (w *Window[TS]) RequestRedraw() Task[TS] {
	return windowOp(w, func(l *EventLoop[TS], id native.WindowID) (struct{}, error) {
		return struct{}{}, l.backend.RequestRedraw(id)
	}, nil)
}

// CloseRequested is delivered when the user asks to close the window.
func (w *Window[TS]) CloseRequested() *Event[struct{}, TS] { return w.reg.closeRequested }

// Resized is delivered with the new inner size.
func (w *Window[TS]) Resized() *Event[native.Size, TS] { return w.reg.resized }

// Moved is delivered with the new position.
func (w *Window[TS]) Moved() *Event[native.Position, TS] { return w.reg.moved }

// Destroyed is delivered when the native window has been destroyed, right
// before the window's Events close.
func (w *Window[TS]) Destroyed() *Event[struct{}, TS] { return w.reg.destroyed }

// Focused is delivered with true when the window gains focus and false when
// it loses it.
func (w *Window[TS]) Focused() *Event[bool, TS] { return w.reg.focused }

// RedrawRequested is delivered when the window should repaint its contents.
func (w *Window[TS]) RedrawRequested() *Event[struct{}, TS] { return w.reg.redrawRequested }

// ReceivedCharacter is delivered with each character typed into the window.
func (w *Window[TS]) ReceivedCharacter() *Event[rune, TS] { return w.reg.receivedCharacter }

// KeyboardInput is delivered with every key press and release.
func (w *Window[TS]) KeyboardInput() *Event[native.KeyboardInput, TS] { return w.reg.keyboardInput }

// CursorMoved is delivered with the cursor position inside the window.
func (w *Window[TS]) CursorMoved() *Event[native.CursorPosition, TS] { return w.reg.cursorMoved }

// CursorEntered is delivered when the cursor enters the window.
func (w *Window[TS]) CursorEntered() *Event[struct{}, TS] { return w.reg.cursorEntered }

// CursorLeft is delivered when the cursor leaves the window.
func (w *Window[TS]) CursorLeft() *Event[struct{}, TS] { return w.reg.cursorLeft }

// MouseInput is delivered with every mouse button press and release.
func (w *Window[TS]) MouseInput() *Event[native.MouseInput, TS] { return w.reg.mouseInput }

// ScaleFactorChanged is delivered with the window's new scale factor.
func (w *Window[TS]) ScaleFactorChanged() *Event[float64, TS] { return w.reg.scaleFactorChanged }

// ThemeChanged is delivered with the window's new theme.
func (w *Window[TS]) ThemeChanged() *Event[native.Theme, TS] { return w.reg.themeChanged }

// Occluded is delivered with true when the window becomes fully hidden.
func (w *Window[TS]) Occluded() *Event[bool, TS] { return w.reg.occluded }

func (l *EventLoop[TS]) dispatchWindowEvent(ev native.Event) {
	reg := l.windows[ev.Window]
	if reg == nil {
		l.log.Debug().
			Uint64("window", uint64(ev.Window)).
			Stringer("kind", ev.Kind).
			Log("event for unknown window dropped")
		return
	}

	switch ev.Kind {
	case native.CloseRequested:
		emit(l, reg.closeRequested, struct{}{})
	case native.Resized:
		emit(l, reg.resized, ev.Size)
	case native.Moved:
		emit(l, reg.moved, ev.Position)
	case native.Destroyed:
		delete(l.windows, reg.id)
		reg.gone = true
		emit(l, reg.destroyed, struct{}{})
		reg.closeEvents()
		l.log.Debug().Uint64("window", uint64(reg.id)).Log("window destroyed natively")
	case native.Focused:
		emit(l, reg.focused, ev.Focused)
	case native.RedrawRequested:
		emit(l, reg.redrawRequested, struct{}{})
	case native.ReceivedCharacter:
		emit(l, reg.receivedCharacter, ev.Char)
	case native.KeyboardInputEvent:
		emit(l, reg.keyboardInput, ev.Key)
	case native.CursorMoved:
		emit(l, reg.cursorMoved, ev.Cursor)
	case native.CursorEntered:
		emit(l, reg.cursorEntered, struct{}{})
	case native.CursorLeft:
		emit(l, reg.cursorLeft, struct{}{})
	case native.MouseInputEvent:
		emit(l, reg.mouseInput, ev.Mouse)
	case native.ScaleFactorChanged:
		emit(l, reg.scaleFactorChanged, ev.ScaleFactor)
	case native.ThemeChanged:
		emit(l, reg.themeChanged, ev.Theme)
	case native.Occluded:
		emit(l, reg.occluded, ev.Occluded)
	}
}
