// Package bus implements the control bus: a single bounded input queue fanned
// out to a fixed set of independent bounded subscriber queues. Every published
// value reaches every subscriber in publish order; a full subscriber queue
// blocks publication, so the slowest subscriber gates the bus.
package bus

import "sync"

// Bus fans one input channel out to N subscriber channels. It owns the
// subscriber channels: they close, along with Done, when the fan-out loop
// exits. The loop exits when the input channel is closed by its writer
// (buffered values drain first) or when Close abandons undelivered input.
// A value caught mid-fan-out by Close may reach only a prefix of subscribers.
type Bus[T any] struct {
	in   chan T
	subs []chan T
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New starts a bus with the given queue capacity (input and each subscriber)
// and subscriber count.
func New[T any](buffer, subscribers int) *Bus[T] {
	b := &Bus[T]{
		in:   make(chan T, buffer),
		subs: make([]chan T, subscribers),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for i := range b.subs {
		b.subs[i] = make(chan T, buffer)
	}
	go b.run()
	return b
}

func (b *Bus[T]) run() {
	defer func() {
		for _, s := range b.subs {
			close(s)
		}
		close(b.done)
	}()
	for {
		select {
		case <-b.stop:
			return
		case v, ok := <-b.in:
			if !ok {
				return
			}
			for _, s := range b.subs {
				select {
				case s <- v:
				case <-b.stop:
					return
				}
			}
		}
	}
}

// In exposes the write side. Callers may close it to shut the bus down; the
// fan-out loop delivers whatever was already buffered before exiting.
func (b *Bus[T]) In() chan<- T { return b.in }

// Sub returns subscriber queue i. Values are delivered to lower-numbered
// subscribers first.
func (b *Bus[T]) Sub(i int) <-chan T { return b.subs[i] }

// Done closes once the fan-out loop has exited and all subscriber queues are
// closed.
func (b *Bus[T]) Done() <-chan struct{} { return b.done }

// Publish enqueues v, blocking while the input queue is full. It reports
// false once the bus has shut down.
func (b *Bus[T]) Publish(v T) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.in <- v:
		return true
	case <-b.done:
		return false
	}
}

// Close shuts the bus down without touching the caller-writable input
// channel. Idempotent; undelivered input is abandoned.
func (b *Bus[T]) Close() {
	b.once.Do(func() { close(b.stop) })
}
