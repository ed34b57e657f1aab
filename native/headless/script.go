package headless

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/b97tsk/asyncwin/native"
	"gopkg.in/yaml.v3"
)

// A Script describes windows to create and native events to replay.
//
//	windows:
//	  - title: main
//	    size: {width: 800, height: 600}
//	events:
//	  - {kind: Resized, window: 1, size: {width: 100, height: 100}}
//	  - {kind: ReceivedCharacter, window: 1, char: "a"}
//	  - {kind: CloseRequested, window: 1}
//
// Windows get ids from 1 in the order they are listed, provided they are
// created in that order on a fresh Backend.
type Script struct {
	Windows []native.WindowAttributes `yaml:"windows"`
	Events  []ScriptEvent             `yaml:"events"`
}

// A ScriptEvent is the YAML form of a [native.Event].
type ScriptEvent struct {
	Kind        string                `yaml:"kind"`
	Window      uint64                `yaml:"window"`
	Size        native.Size           `yaml:"size"`
	Position    native.Position       `yaml:"position"`
	Cursor      native.CursorPosition `yaml:"cursor"`
	Focused     bool                  `yaml:"focused"`
	Char        string                `yaml:"char"`
	Key         native.KeyboardInput  `yaml:"key"`
	Mouse       native.MouseInput     `yaml:"mouse"`
	ScaleFactor float64               `yaml:"scale_factor"`
	Theme       string                `yaml:"theme"`
	Occluded    bool                  `yaml:"occluded"`
}

// Event converts e.
func (e ScriptEvent) Event() (native.Event, error) {
	kind, err := native.ParseEventKind(e.Kind)
	if err != nil {
		return native.Event{}, err
	}

	ev := native.Event{
		Kind:        kind,
		Window:      native.WindowID(e.Window),
		Size:        e.Size,
		Position:    e.Position,
		Cursor:      e.Cursor,
		Focused:     e.Focused,
		Key:         e.Key,
		Mouse:       e.Mouse,
		ScaleFactor: e.ScaleFactor,
		Occluded:    e.Occluded,
	}

	if kind.IsWindowEvent() && ev.Window == 0 {
		return native.Event{}, fmt.Errorf("headless: %s event without a window", kind)
	}

	if kind == native.ReceivedCharacter {
		r, n := utf8.DecodeRuneInString(e.Char)
		if r == utf8.RuneError || n != len(e.Char) {
			return native.Event{}, fmt.Errorf("headless: char must be exactly one character, got %q", e.Char)
		}
		ev.Char = r
	}

	switch e.Theme {
	case "", "light":
		ev.Theme = native.Light
	case "dark":
		ev.Theme = native.Dark
	default:
		return native.Event{}, fmt.Errorf("headless: unknown theme %q", e.Theme)
	}

	return ev, nil
}

// LoadScript decodes and validates a YAML script.
func LoadScript(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("headless: decoding script: %w", err)
	}
	for i, e := range s.Events {
		ev, err := e.Event()
		if err != nil {
			return nil, fmt.Errorf("headless: event %d: %w", i, err)
		}
		if id := ev.Window; id != 0 && int(id) > len(s.Windows) {
			return nil, fmt.Errorf("headless: event %d: window %d is not declared", i, id)
		}
	}
	return &s, nil
}

// PostEvents posts every scripted event to b in order.
func (s *Script) PostEvents(b *Backend) error {
	for i, e := range s.Events {
		ev, err := e.Event()
		if err != nil {
			return fmt.Errorf("headless: event %d: %w", i, err)
		}
		b.Post(ev)
	}
	return nil
}
