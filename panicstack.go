package asyncwin

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
)

type panicstack []panicitem

type dummy struct{}

func (ps *panicstack) Try(f func()) (ok bool) {
	defer func() {
		if !ok {
			v := recover()
			if v == nil {
				panic("asyncwin: runtime.Goexit() called from a task")
			}
			if _, ok := v.(dummy); ok {
				return // Ignore dummy values.
			}
			ps.push(v, debug.Stack())
		}
	}()
	f()
	return true
}

func (ps *panicstack) push(v any, stack []byte) {
	s := *ps
	n := len(s)
	repanicked := n != 0 && equal(v, s[n-1].value)
	s = append(s, panicitem{v, stack, repanicked, false})
	*ps = s
}

// failure snapshots the unrecovered part of ps.
func (ps panicstack) failure() *panicvalue {
	items := make([]panicitem, 0, len(ps))
	for _, p := range ps {
		if !p.recovered {
			items = append(items, p)
		}
	}
	if len(items) == 0 {
		items = append(items, ps...)
	}
	return &panicvalue{items: items}
}

func equal(a, b any) bool {
	defer func() { _ = recover() }()
	return a == b
}

type panicitem struct {
	value      any
	stack      []byte
	repanicked bool
	recovered  bool
}

type panicvalue struct {
	items []panicitem
	errs  atomic.Pointer[[]error]
}

func (pv *panicvalue) last() any {
	if n := len(pv.items); n != 0 {
		return pv.items[n-1].value
	}
	return nil
}

func (pv *panicvalue) Error() string {
	if len(pv.items) == 1 && pv.items[0].stack == nil {
		return fmt.Sprint(pv.items[0].value)
	}
	var b strings.Builder
	b.WriteString("as follows:")
	for i, p := range pv.items {
		fmt.Fprintf(&b, "\n(%d/%d) panic: %v", i+1, len(pv.items), p.value)
		switch {
		case p.repanicked && p.recovered:
			b.WriteString(" (repanicked, recovered)")
		case p.repanicked:
			b.WriteString(" (repanicked)")
		case p.recovered:
			b.WriteString(" (recovered)")
		}
		if p.stack != nil {
			b.WriteString("\n\n")
			b.Write(p.stack)
		}
	}
	return b.String()
}

func (pv *panicvalue) Unwrap() []error {
	if p := pv.errs.Load(); p != nil {
		return *p
	}
	var errs []error
	for _, p := range pv.items {
		if err, ok := p.value.(error); ok {
			errs = append(errs, err)
		}
	}
	pv.errs.Store(&errs)
	return errs
}
