// Command winscript replays a YAML script of native window events through an
// asyncwin event loop on the headless backend and prints what the windows
// observe.
//
//	winscript -script demo.yaml [-log-level debug]
//
// It exits once every scripted window has been closed.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/b97tsk/asyncwin"
	"github.com/b97tsk/asyncwin/native"
	"github.com/b97tsk/asyncwin/native/headless"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

type (
	ts        = asyncwin.ThreadUnsafe
	coroutine = asyncwin.Coroutine[ts]
	result    = asyncwin.Result[ts]
	task      = asyncwin.Task[ts]
	window    = asyncwin.Window[ts]
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "winscript:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("winscript", flag.ContinueOnError)
	fs.SetOutput(stderr)
	scriptPath := fs.String("script", "", "YAML script to replay")
	levelName := fs.String("log-level", "warning", "log level: emerg, alert, crit, err, warning, notice, info, debug or trace")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *scriptPath == "" {
		return errors.New("-script is required")
	}

	level, err := parseLevel(*levelName)
	if err != nil {
		return err
	}

	f, err := os.Open(*scriptPath)
	if err != nil {
		return err
	}
	defer f.Close()

	script, err := headless.LoadScript(f)
	if err != nil {
		return err
	}

	log := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	backend := headless.New(headless.WithLogger(log))

	loop, err := asyncwin.NewEventLoop[ts](backend,
		asyncwin.WithLogger(log),
		asyncwin.WithName("winscript"),
	)
	if err != nil {
		return err
	}

	err = loop.BlockOn(replay(loop, backend, script, stdout))
	if errors.Is(err, headless.ErrStalled) {
		log.Info().Log("script exhausted with windows still open")
		return nil
	}
	return err
}

func parseLevel(s string) (logiface.Level, error) {
	for level := logiface.LevelEmergency; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", s)
}

// replay creates the scripted windows one after another, posts the scripted
// events, and then watches every window until it is closed.
func replay(l *asyncwin.EventLoop[ts], b *headless.Backend, s *headless.Script, out io.Writer) task {
	windows := make([]*window, len(s.Windows))

	create := make([]task, len(s.Windows))
	for i, attrs := range s.Windows {
		create[i] = l.CreateWindow(attrs, func(co *coroutine, w *window) result {
			windows[i] = w
			return co.Transition(w.Title(func(co *coroutine, title string) result {
				fmt.Fprintf(out, "window %d: created %q\n", w.ID(), title)
				return co.End()
			}))
		})
	}

	return asyncwin.Block(
		asyncwin.Block(create...),
		func(co *coroutine) result {
			if err := s.PostEvents(b); err != nil {
				return co.Throw(err)
			}
			b.CloseInput()

			if len(windows) == 0 {
				return co.End()
			}

			watchers := make([]task, len(windows))
			for i, w := range windows {
				watchers[i] = watch(w, out)
			}
			return co.Transition(asyncwin.Join(watchers...))
		},
	)
}

// watch prints what w observes until its close is requested, then closes w.
func watch(w *window, out io.Writer) task {
	printf := func(format string, args ...any) {
		fmt.Fprintf(out, "window %d: "+format+"\n", append([]any{w.ID()}, args...)...)
	}

	return asyncwin.Block(
		asyncwin.Race(
			w.CloseRequested().WaitOnce(func(co *coroutine, _ struct{}) result {
				printf("close requested")
				return co.End()
			}),
			asyncwin.Join(
				w.Resized().WaitMany().ForEach(func(co *coroutine, size native.Size) result {
					printf("resized to %v", size)
					return co.End()
				}),
				w.Moved().WaitMany().ForEach(func(co *coroutine, pos native.Position) result {
					printf("moved to %d,%d", pos.X, pos.Y)
					return co.End()
				}),
				w.Focused().WaitMany().ForEach(func(co *coroutine, focused bool) result {
					printf("focused %t", focused)
					return co.End()
				}),
				w.ReceivedCharacter().WaitMany().ForEach(func(co *coroutine, r rune) result {
					printf("received %q", r)
					return co.End()
				}),
			),
		),
		asyncwin.Do[ts](w.Close),
	)
}
