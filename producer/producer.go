// Package producer runs the command loop over a blocking driver.Producer.
// A single goroutine consumes the input queue in FIFO order; there is no
// wakeup coordination because producer operations are short or explicitly
// bounded. Send and flush faults surface as exception events and the loop
// keeps running; only a close command or an external close of the input
// queue end it.
package producer

import (
	"sync"
	"time"

	"kanal/api"
	"kanal/driver"
	"kanal/duplex"
	"kanal/internal/logging"
	"kanal/internal/telemetry"
)

// Op selects the action a Command performs. The zero value is OpRecord, so
// a bare {Topic, Key, Value} command sends a record.
type Op uint8

const (
	OpRecord Op = iota
	OpFlush
	OpPartitionsFor
	OpCallback
	OpClose
)

func (o Op) String() string {
	switch o {
	case OpRecord:
		return "record"
	case OpFlush:
		return "flush"
	case OpPartitionsFor:
		return "partitions-for"
	case OpCallback:
		return "callback"
	case OpClose:
		return "close"
	default:
		return "unknown"
	}
}

// Callback runs on the loop goroutine with exclusive, non-reentrant access
// to the driver handle. It must not retain d.
type Callback func(d driver.Producer)

// Command drives the producer loop. Only the fields its Op reads are
// consulted. A Command is immutable once enqueued.
type Command struct {
	Op    Op
	Topic string
	Key   []byte
	Value []byte

	// Timeout bounds the driver close for OpClose. Zero means no bound.
	Timeout time.Duration

	// Callback is invoked for OpCallback.
	Callback Callback

	// Response, when set, receives the partitions-for result (or fault)
	// instead of the default output. The runtime never closes it.
	Response chan<- api.Event
}

// Options configures a producer runtime. Zero values take the defaults.
type Options struct {
	// InputBuffer is the capacity of the command queue.
	InputBuffer int
	// OutputBuffer is the capacity of the event output queue.
	OutputBuffer int
}

const (
	DefaultInputBuffer  = 10
	DefaultOutputBuffer = 100
)

func (o Options) withDefaults() Options {
	if o.InputBuffer <= 0 {
		o.InputBuffer = DefaultInputBuffer
	}
	if o.OutputBuffer <= 0 {
		o.OutputBuffer = DefaultOutputBuffer
	}
	return o
}

// Pair is the raw producer surface: Commands in, Events out.
type Pair struct {
	input  chan Command
	output <-chan api.Event
	done   <-chan struct{}
	once   sync.Once
}

// Send publishes cmd, blocking while the input queue is full. It reports
// false once the runtime has shut down. Send must not race Close.
func (p *Pair) Send(cmd Command) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.input <- cmd:
		return true
	case <-p.done:
		return false
	}
}

// In exposes the input queue's write side for select-based senders. Callers
// who close it directly must not also call Close.
func (p *Pair) In() chan<- Command { return p.input }

// Output is the event stream. It closes after the final eof event.
func (p *Pair) Output() <-chan api.Event { return p.output }

// Close closes the input queue; buffered commands are still applied before
// teardown. Idempotent; must not race Send.
func (p *Pair) Close() {
	p.once.Do(func() { close(p.input) })
}

// Done closes once the loop has stopped reading commands.
func (p *Pair) Done() <-chan struct{} { return p.done }

type runtime struct {
	driver driver.Producer
	in     chan Command
	out    chan api.Event
	done   chan struct{}
}

// Run starts the producer runtime over d and returns its channel pair. The
// runtime owns d from here on; all further driver access must travel
// through the input queue.
func Run(d driver.Producer, opts Options) *Pair {
	opts = opts.withDefaults()

	r := &runtime{
		driver: d,
		in:     make(chan Command, opts.InputBuffer),
		out:    make(chan api.Event, opts.OutputBuffer),
		done:   make(chan struct{}),
	}
	go r.loop()

	logging.L().Debug("producer: started",
		"input_buffer", opts.InputBuffer,
		"output_buffer", opts.OutputBuffer)
	return &Pair{input: r.in, output: r.out, done: r.done}
}

// RunDuplex is Run with the pair folded into a single duplex handle.
func RunDuplex(d driver.Producer, opts Options) *duplex.Channel[Command, api.Event] {
	p := Run(d, opts)
	return duplex.Join[Command, api.Event](p.input, p.output, p.done)
}

func (r *runtime) loop() {
	for cmd := range r.in {
		telemetry.ProducerCommands.WithLabelValues(cmd.Op.String()).Inc()

		switch cmd.Op {
		case OpRecord:
			rec := driver.Record{Topic: cmd.Topic, Key: cmd.Key, Value: cmd.Value}
			if err := r.driver.Send(rec); err != nil {
				r.fault(cmd, err)
			}

		case OpFlush:
			if err := r.driver.Flush(); err != nil {
				r.fault(cmd, err)
			}

		case OpPartitionsFor:
			parts, err := r.driver.PartitionsFor(cmd.Topic)
			if err != nil {
				r.fault(cmd, err)
				break
			}
			r.deliver(api.Event{Type: api.EventPartitions, Partitions: parts}, cmd.Response)

		case OpCallback:
			if cmd.Callback != nil {
				cmd.Callback(r.driver)
			}

		case OpClose:
			r.teardown(cmd.Timeout)
			return
		}
	}
	// Input queue closed externally; all buffered commands were applied.
	r.teardown(0)
}

// teardown emits the final eof, closes the driver, then the output queue.
// Runs exactly once per lifecycle: both exit paths of loop funnel here and
// return. Commands still buffered after a close command are abandoned.
func (r *runtime) teardown(timeout time.Duration) {
	r.emit(api.Event{Type: api.EventEOF})
	close(r.done)
	if err := r.driver.Close(timeout); err != nil {
		logging.L().Warn("producer: driver close", "err", err)
	}
	close(r.out)
	logging.L().Debug("producer: stopped")
}

// fault surfaces a driver error as an exception event. The loop keeps
// running: an error return is the driver's fault-reporting mechanism, not a
// loop-fatal condition. partitions-for faults route to the command's
// Response so a waiting caller is not stranded.
func (r *runtime) fault(cmd Command, err error) {
	telemetry.ProducerErrors.Inc()
	logging.L().Warn("producer: command failed", "op", cmd.Op.String(), "err", err)
	if cmd.Op == OpPartitionsFor {
		r.deliver(api.Exception(err), cmd.Response)
		return
	}
	r.emit(api.Exception(err))
}

func (r *runtime) emit(ev api.Event) { r.out <- ev }

// deliver routes ev to response when one is given, else to the default
// output.
func (r *runtime) deliver(ev api.Event, response chan<- api.Event) {
	if response == nil {
		r.emit(ev)
		return
	}
	response <- ev
}
