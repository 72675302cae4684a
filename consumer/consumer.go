// Package consumer runs the queue-based control surface over a blocking
// driver.Consumer. Two goroutines cooperate around the exclusively-owned
// driver: the poll loop blocks in Poll and turns batches into record events,
// and the wakeup loop turns every published command into a driver interrupt
// so a command never waits out a full poll. Interrupted polls hand control
// to the dispatcher, which applies at most one command and decides whether
// the loop continues. Teardown runs exactly once, whatever the trigger
// (stop command, external close, unrecoverable poll fault): eof event,
// control bus closed, driver closed, output closed, in that order.
package consumer

import (
	"fmt"
	"sync"
	"time"

	"kanal/api"
	"kanal/driver"
	"kanal/duplex"
	"kanal/internal/bus"
	"kanal/internal/logging"
	"kanal/internal/telemetry"
)

// Op selects the action a Command performs. The zero value is OpNop:
// commands with an unknown op dispatch as a no-op continue.
type Op uint8

const (
	OpNop Op = iota
	OpSubscribe
	OpUnsubscribe
	OpPartitionsFor
	OpCommit
	OpPause
	OpResume
	OpCallback
	OpStop
)

func (o Op) String() string {
	switch o {
	case OpNop:
		return "nop"
	case OpSubscribe:
		return "subscribe"
	case OpUnsubscribe:
		return "unsubscribe"
	case OpPartitionsFor:
		return "partitions-for"
	case OpCommit:
		return "commit"
	case OpPause:
		return "pause"
	case OpResume:
		return "resume"
	case OpCallback:
		return "callback"
	case OpStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Decision tells the poll loop whether to keep running after a dispatch.
type Decision uint8

const (
	Continue Decision = iota
	Stop
)

// Callback runs on the poll loop goroutine with exclusive, non-reentrant
// access to the driver handle for the duration of the call. It must not
// retain d, and writes to out block until the caller drains the output.
type Callback func(d driver.Consumer, out chan<- api.Event) Decision

// Command steers the consumer runtime. Only the fields its Op reads are
// consulted. A Command is immutable once enqueued.
type Command struct {
	Op Op

	// Topic names the target of subscribe and partitions-for.
	Topic string

	// TopicOffsets carries explicit positions for commit. Nil commits the
	// currently consumed positions.
	TopicOffsets []driver.TopicOffset

	// TopicPartitions carries the partition set for pause and resume.
	TopicPartitions []driver.TopicPartition

	// Callback is invoked for OpCallback.
	Callback Callback

	// Response, when set, receives the partitions-for result (or fault)
	// instead of the default output. The runtime never closes it.
	Response chan<- api.Event
}

// Options configures a consumer runtime. Zero values take the defaults.
type Options struct {
	// InputBuffer is the capacity of the control queue and of each of its
	// subscriber queues.
	InputBuffer int
	// OutputBuffer is the capacity of the event output queue.
	OutputBuffer int
	// PollTimeout bounds each blocking poll and the dispatcher's wait for
	// a pending command.
	PollTimeout time.Duration
	// Topic, when non-empty, is subscribed at construction.
	Topic string
}

const (
	DefaultInputBuffer  = 10
	DefaultOutputBuffer = 100
	DefaultPollTimeout  = 100 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.InputBuffer <= 0 {
		o.InputBuffer = DefaultInputBuffer
	}
	if o.OutputBuffer <= 0 {
		o.OutputBuffer = DefaultOutputBuffer
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	return o
}

// Bus subscription slots. The dispatcher subscribes first so a command is
// already queued for dispatch when its wakeup fires.
const (
	subDispatch = iota
	subWakeup
)

// Pair is the raw consumer surface: Commands in, Events out.
type Pair struct {
	control *bus.Bus[Command]
	output  <-chan api.Event
	once    sync.Once
}

// Send publishes cmd, blocking while the control queue is full. It reports
// false once the runtime has shut down. Send must not race Close.
func (p *Pair) Send(cmd Command) bool { return p.control.Publish(cmd) }

// In exposes the control queue's write side for select-based senders.
// Callers who close it directly must not also call Close.
func (p *Pair) In() chan<- Command { return p.control.In() }

// Output is the event stream. It closes after the final eof event.
func (p *Pair) Output() <-chan api.Event { return p.output }

// Close closes the control queue, which triggers the same teardown as a
// stop command once already-buffered commands have been dispatched.
// Idempotent; must not race Send.
func (p *Pair) Close() {
	p.once.Do(func() { close(p.control.In()) })
}

// Done closes once the control bus has shut down and no further commands
// will be accepted. Output may still be draining at that point.
func (p *Pair) Done() <-chan struct{} { return p.control.Done() }

// runtime is the per-consumer state shared by the two loops. The poll loop
// is the only goroutine that touches the driver (Wakeup excepted) and the
// only writer to out.
type runtime struct {
	driver  driver.Consumer
	bus     *bus.Bus[Command]
	out     chan api.Event
	timeout time.Duration
}

// Run starts the consumer runtime over d and returns its channel pair. On
// success the runtime owns d: all further driver access must travel through
// the control queue. On error ownership stays with the caller.
func Run(d driver.Consumer, opts Options) (*Pair, error) {
	opts = opts.withDefaults()

	r := &runtime{
		driver:  d,
		bus:     bus.New[Command](opts.InputBuffer, 2),
		out:     make(chan api.Event, opts.OutputBuffer),
		timeout: opts.PollTimeout,
	}
	if opts.Topic != "" {
		if err := d.Subscribe(opts.Topic, r.forwardRebalance); err != nil {
			r.bus.Close()
			return nil, fmt.Errorf("consumer: subscribe %q: %w", opts.Topic, err)
		}
	}
	go r.pollLoop()
	go r.wakeupLoop()

	logging.L().Debug("consumer: started",
		"topic", opts.Topic,
		"poll_timeout", opts.PollTimeout,
		"input_buffer", opts.InputBuffer,
		"output_buffer", opts.OutputBuffer)
	return &Pair{control: r.bus, output: r.out}, nil
}

// RunDuplex is Run with the pair folded into a single duplex handle.
func RunDuplex(d driver.Consumer, opts Options) (*duplex.Channel[Command, api.Event], error) {
	p, err := Run(d, opts)
	if err != nil {
		return nil, err
	}
	return duplex.Join(p.control.In(), p.output, p.control.Done()), nil
}

// pollLoop owns the blocking poll cycle. Every exit path runs teardown,
// exactly once.
func (r *runtime) pollLoop() {
	defer r.teardown()

	for {
		recs, err := r.driver.Poll(r.timeout)
		if err == nil {
			for i := range recs {
				r.emit(api.Event{Type: api.EventRecord, Record: &recs[i]})
			}
			continue
		}
		if !driver.Recoverable(err) {
			logging.L().Warn("consumer: poll fault", "err", err)
			r.emit(api.Exception(err))
			return
		}
		dec, dispatched := r.dispatchNext()
		if dec == Stop {
			return
		}
		if !dispatched && driver.IsWakeup(err) {
			r.emit(api.Event{Type: api.EventWokenUp})
		}
	}
}

// wakeupLoop calls Wakeup once per published command so the in-flight (or
// next) poll aborts promptly. When the subscription closes it issues one
// final Wakeup: an externally closed control queue must interrupt a poll
// already in flight.
func (r *runtime) wakeupLoop() {
	for range r.bus.Sub(subWakeup) {
		telemetry.Wakeups.Inc()
		r.driver.Wakeup()
	}
	telemetry.Wakeups.Inc()
	r.driver.Wakeup()
}

// teardown runs the shutdown sequence: eof event, control bus, driver,
// output queue. The order flushes queued output before closure and makes
// the wakeup loop observe bus closure and exit.
func (r *runtime) teardown() {
	r.emit(api.Event{Type: api.EventEOF})
	r.bus.Close()
	if err := r.driver.Close(); err != nil {
		logging.L().Warn("consumer: driver close", "err", err)
	}
	close(r.out)
	logging.L().Debug("consumer: stopped")
}

// emit pushes ev onto the default output, blocking until the caller drains.
func (r *runtime) emit(ev api.Event) {
	telemetry.ConsumerEvents.WithLabelValues(ev.Type.String()).Inc()
	r.out <- ev
}

// forwardRebalance adapts driver rebalance notices into output events.
// Drivers invoke listeners synchronously inside Poll, on the loop goroutine,
// so the output keeps a single writer.
func (r *runtime) forwardRebalance(ev driver.RebalanceEvent) {
	r.emit(api.Event{Type: api.EventRebalance, Rebalance: &ev})
}
