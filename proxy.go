package asyncwin

// A Proxy lets other goroutines feed a [ThreadSafe] [EventLoop].
//
// Every Proxy method may be called from any goroutine. The work itself
// still happens on the goroutine running the loop.
type Proxy struct {
	loop *EventLoop[ThreadSafe]
}

// NewProxy creates a Proxy for l. There is no Proxy for a [ThreadUnsafe]
// loop.
func NewProxy(l *EventLoop[ThreadSafe]) *Proxy {
	return &Proxy{loop: l}
}

// Spawn spawns a root task on the loop.
func (p *Proxy) Spawn(t Task[ThreadSafe]) *Handle[ThreadSafe] {
	return p.loop.Spawn(t)
}

// Exit asks the loop to exit.
func (p *Proxy) Exit() {
	p.loop.Exit()
}

// State returns the loop's current state.
func (p *Proxy) State() LoopState {
	return p.loop.State()
}

// Send queues a delivery of v to e on the loop, like [Post].
// It fails with [ErrClosed] once the loop has exited.
func Send[T any](p *Proxy, e *Event[T, ThreadSafe], v T) error {
	return Post(p.loop, e, v)
}
