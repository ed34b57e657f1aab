package asyncwin

import (
	"sync"
	"sync/atomic"
)

// ThreadUnsafe selects single-goroutine synchronization: locks are no-ops and
// counters are plain integers.
//
// Values tagged ThreadUnsafe must only be touched by the goroutine that runs
// the [EventLoop] (or calls [Executor.Run]).
type ThreadUnsafe struct{}

// ThreadSafe selects mutex-guarded registries and atomic counters.
//
// Tasks still run on a single goroutine. What ThreadSafe buys is the ability
// to feed that goroutine from others, see [Proxy].
type ThreadSafe struct{}

// ThreadSafety is the type-level selector carried by every type in this
// package. It cannot be implemented outside this package.
type ThreadSafety interface {
	ThreadUnsafe | ThreadSafe
	lock(mu *sync.Mutex)
	unlock(mu *sync.Mutex)
	add(p *int64, delta int64) int64
	load(p *int64) int64
	swap(p *int64, v int64) int64
	String() string
}

func (ThreadUnsafe) lock(*sync.Mutex)   {}
func (ThreadUnsafe) unlock(*sync.Mutex) {}

func (ThreadUnsafe) add(p *int64, delta int64) int64 {
	*p += delta
	return *p
}

func (ThreadUnsafe) load(p *int64) int64 { return *p }

func (ThreadUnsafe) swap(p *int64, v int64) int64 {
	old := *p
	*p = v
	return old
}

func (ThreadUnsafe) String() string { return "thread-unsafe" }

func (ThreadSafe) lock(mu *sync.Mutex)   { mu.Lock() }
func (ThreadSafe) unlock(mu *sync.Mutex) { mu.Unlock() }

func (ThreadSafe) add(p *int64, delta int64) int64 { return atomic.AddInt64(p, delta) }
func (ThreadSafe) load(p *int64) int64             { return atomic.LoadInt64(p) }
func (ThreadSafe) swap(p *int64, v int64) int64    { return atomic.SwapInt64(p, v) }

func (ThreadSafe) String() string { return "thread-safe" }

type mutex[TS ThreadSafety] struct {
	mu sync.Mutex
}

func (m *mutex[TS]) Lock() {
	var ts TS
	ts.lock(&m.mu)
}

func (m *mutex[TS]) Unlock() {
	var ts TS
	ts.unlock(&m.mu)
}

type counter[TS ThreadSafety] struct {
	n int64
}

func (c *counter[TS]) Add(delta int64) int64 {
	var ts TS
	return ts.add(&c.n, delta)
}

func (c *counter[TS]) Load() int64 {
	var ts TS
	return ts.load(&c.n)
}

func (c *counter[TS]) Swap(v int64) int64 {
	var ts TS
	return ts.swap(&c.n, v)
}

func (c *counter[TS]) Store(v int64) {
	c.Swap(v)
}
