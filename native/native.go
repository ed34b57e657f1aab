// Package native describes the windowing library that an asyncwin
// [github.com/b97tsk/asyncwin.EventLoop] drives.
//
// A Backend owns the native run loop. It calls a [Handler] once per native
// event, on the goroutine that called Run, and follows the [ControlFlow] the
// handler returns.
package native

import (
	"fmt"
	"time"
)

// WindowID identifies a native window. Zero is never a valid id.
type WindowID uint64

// Size is a size in physical pixels.
type Size struct {
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Position is a window position in physical pixels.
type Position struct {
	X int32 `yaml:"x"`
	Y int32 `yaml:"y"`
}

// CursorPosition is a cursor position in physical pixels, relative to the
// window's top-left corner.
type CursorPosition struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// ElementState tells whether a key or button was pressed or released.
type ElementState uint8

const (
	Pressed ElementState = iota
	Released
)

func (s ElementState) String() string {
	if s == Released {
		return "released"
	}
	return "pressed"
}

// KeyboardInput describes a key press or release.
type KeyboardInput struct {
	ScanCode uint32       `yaml:"scancode"`
	Key      string       `yaml:"key"`
	State    ElementState `yaml:"state"`
}

// MouseButton names a mouse button.
type MouseButton uint8

const (
	LeftButton MouseButton = iota
	RightButton
	MiddleButton
)

// MouseInput describes a mouse button press or release.
type MouseInput struct {
	Button MouseButton  `yaml:"button"`
	State  ElementState `yaml:"state"`
}

// Theme is a window's color theme.
type Theme uint8

const (
	Light Theme = iota
	Dark
)

func (t Theme) String() string {
	if t == Dark {
		return "dark"
	}
	return "light"
}

// WindowAttributes is what a window is created with.
type WindowAttributes struct {
	Title string `yaml:"title"`
	Size  Size   `yaml:"size"`
}

// EventKind classifies an [Event].
type EventKind uint8

const (
	// Loop lifecycle.
	Init EventKind = iota + 1
	NewEvents
	Resumed
	Suspended
	Wakeup
	AboutToWait
	LoopExiting

	// Window events. Event.Window names the window.
	CloseRequested
	Resized
	Moved
	Destroyed
	Focused
	RedrawRequested
	ReceivedCharacter
	KeyboardInputEvent
	CursorMoved
	CursorEntered
	CursorLeft
	MouseInputEvent
	ScaleFactorChanged
	ThemeChanged
	Occluded
)

var kindNames = [...]string{
	Init:               "Init",
	NewEvents:          "NewEvents",
	Resumed:            "Resumed",
	Suspended:          "Suspended",
	Wakeup:             "Wakeup",
	AboutToWait:        "AboutToWait",
	LoopExiting:        "LoopExiting",
	CloseRequested:     "CloseRequested",
	Resized:            "Resized",
	Moved:              "Moved",
	Destroyed:          "Destroyed",
	Focused:            "Focused",
	RedrawRequested:    "RedrawRequested",
	ReceivedCharacter:  "ReceivedCharacter",
	KeyboardInputEvent: "KeyboardInput",
	CursorMoved:        "CursorMoved",
	CursorEntered:      "CursorEntered",
	CursorLeft:         "CursorLeft",
	MouseInputEvent:    "MouseInput",
	ScaleFactorChanged: "ScaleFactorChanged",
	ThemeChanged:       "ThemeChanged",
	Occluded:           "Occluded",
}

func (k EventKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// IsWindowEvent reports whether k targets a window.
func (k EventKind) IsWindowEvent() bool {
	return k >= CloseRequested && k <= Occluded
}

// ParseEventKind returns the kind named s.
func ParseEventKind(s string) (EventKind, error) {
	for k, name := range kindNames {
		if name != "" && name == s {
			return EventKind(k), nil
		}
	}
	return 0, fmt.Errorf("native: unknown event kind %q", s)
}

// An Event is one native notification. Only the payload field matching Kind
// is meaningful.
type Event struct {
	Kind        EventKind
	Time        time.Time
	Window      WindowID
	Size        Size
	Position    Position
	Cursor      CursorPosition
	Focused     bool
	Char        rune
	Key         KeyboardInput
	Mouse       MouseInput
	ScaleFactor float64
	Theme       Theme
	Occluded    bool
}

// ControlMode tells a Backend what to do after an event has been handled.
type ControlMode uint8

const (
	// Wait blocks until the next native event or wake.
	Wait ControlMode = iota
	// Poll dispatches AboutToWait right away if nothing else is pending.
	Poll
	// WaitUntil blocks until the next event, a wake, or the deadline.
	WaitUntil
	// Exit stops the run loop after dispatching LoopExiting.
	Exit
)

func (m ControlMode) String() string {
	switch m {
	case Wait:
		return "Wait"
	case Poll:
		return "Poll"
	case WaitUntil:
		return "WaitUntil"
	case Exit:
		return "Exit"
	}
	return fmt.Sprintf("ControlMode(%d)", uint8(m))
}

// ControlFlow is a handler's answer to an event.
type ControlFlow struct {
	Mode     ControlMode
	Deadline time.Time
}

// A Handler receives native events.
type Handler interface {
	HandleEvent(ev Event) ControlFlow
}

// A Backend is a native windowing library.
//
// Run and the window methods are called only on the goroutine that runs
// the loop. Wake may be called from any goroutine.
type Backend interface {
	// Run blocks, dispatching Init first and LoopExiting last.
	// A non-nil error is a loop-level failure.
	Run(h Handler) error

	// Wake makes a waiting Run dispatch Wakeup.
	Wake()

	// Now returns the backend's clock.
	Now() time.Time

	CreateWindow(attrs WindowAttributes) (WindowID, error)
	DestroyWindow(id WindowID) error
	InnerSize(id WindowID) (Size, error)
	SetInnerSize(id WindowID, size Size) error
	Title(id WindowID) (string, error)
	SetTitle(id WindowID, title string) error
	RequestRedraw(id WindowID) error
}
