// Package duplex joins a write-side and a read-side channel endpoint into one
// bidirectional handle with unified close semantics.
package duplex

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Channel is a duplex handle over two distinct endpoints: sends go to the
// sink, receives come from the source. The handle assumes a single owner; it
// becomes the sink's only writer, and Close must not race Send.
//
// Close closes the sink exactly once. The source belongs to the runtime on
// the far side and closes on its own once that runtime finishes teardown —
// a receiver cannot close a channel — so Closed reports true only after
// Close was called and a receive has observed the source closed.
type Channel[S, R any] struct {
	sink   chan<- S
	source <-chan R
	done   <-chan struct{}

	once       sync.Once
	sinkClosed atomic.Bool
	sourceDone atomic.Bool
}

// Join wraps sink and source into one handle. done may be nil; when set,
// Send stops blocking once it closes (runtimes hand their Done channel in).
func Join[S, R any](sink chan<- S, source <-chan R, done <-chan struct{}) *Channel[S, R] {
	return &Channel[S, R]{sink: sink, source: source, done: done}
}

// Send writes v to the sink, blocking while it is full. It reports false
// after Close or once done has closed.
func (c *Channel[S, R]) Send(v S) bool {
	if c.sinkClosed.Load() {
		return false
	}
	select {
	case c.sink <- v:
		return true
	case <-c.done:
		return false
	}
}

// Recv reads from the source, blocking until a value arrives or the source
// closes (ok=false).
func (c *Channel[S, R]) Recv() (R, bool) {
	v, ok := <-c.source
	if !ok {
		c.sourceDone.Store(true)
	}
	return v, ok
}

// Sink exposes the write endpoint.
func (c *Channel[S, R]) Sink() chan<- S { return c.sink }

// Source exposes the read endpoint for use in select loops. Receives taken
// directly from it do not update Closed; prefer Recv when that matters.
func (c *Channel[S, R]) Source() <-chan R { return c.source }

// Close closes the sink. Idempotent: the second and later calls are no-ops.
func (c *Channel[S, R]) Close() {
	c.once.Do(func() {
		c.sinkClosed.Store(true)
		close(c.sink)
	})
}

// Closed reports whether both endpoints are closed: the sink via Close, the
// source by an observed end of stream.
func (c *Channel[S, R]) Closed() bool {
	return c.sinkClosed.Load() && c.sourceDone.Load()
}

func (c *Channel[S, R]) String() string {
	state := func(closed bool) string {
		if closed {
			return "closed"
		}
		return "open"
	}
	return fmt.Sprintf("duplex(sink=%s source=%s)",
		state(c.sinkClosed.Load()), state(c.sourceDone.Load()))
}
