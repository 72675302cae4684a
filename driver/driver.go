// Package driver defines the capability surface kanal runtimes expect from a
// broker client. Implementations wrap a real client (see driver/kafka); the
// runtimes in the consumer and producer packages own a handle exclusively and
// are the only callers of its blocking operations.
package driver

import "time"

// Consumer is the blocking consumer-side capability. A handle is owned by a
// single poll loop: no method other than Wakeup may be called concurrently.
//
// Wakeup schedules exactly one poll abort: it interrupts an in-flight Poll,
// or the next Poll if none is in flight. Pending aborts accumulate; they do
// not collapse. Wakeup is safe from any goroutine and after Close.
type Consumer interface {
	// Poll blocks until records arrive, the timeout elapses (nil, nil), or a
	// pending wakeup aborts it (nil, ErrWokenUp).
	Poll(timeout time.Duration) ([]Record, error)

	// Subscribe replaces the current subscription. The listener is invoked
	// synchronously from inside Poll on the owning goroutine.
	Subscribe(topic string, l RebalanceListener) error
	Unsubscribe() error

	// Commit flushes the given offsets, or the current consumed positions
	// when offsets is nil.
	Commit(offsets []TopicOffset) error

	Pause(parts []TopicPartition) error
	Resume(parts []TopicPartition) error
	PartitionsFor(topic string) ([]PartitionInfo, error)

	Wakeup()
	Close() error
}

// Producer is the blocking producer-side capability, owned by a single send
// loop. Operations are expected to complete on their own; there is no wakeup.
type Producer interface {
	Send(rec Record) error
	Flush() error
	PartitionsFor(topic string) ([]PartitionInfo, error)

	// Close releases the handle, waiting up to timeout for buffered sends.
	// A zero timeout means no bound.
	Close(timeout time.Duration) error
}
