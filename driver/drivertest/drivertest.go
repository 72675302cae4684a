// Package drivertest provides scriptable in-memory drivers for exercising
// the consumer and producer runtimes without a broker. The fake consumer
// honors the wakeup contract: each Wakeup schedules exactly one poll abort,
// and pending aborts accumulate instead of collapsing.
package drivertest

import (
	"sync"
	"time"

	"kanal/driver"
)

// Consumer is a fake driver.Consumer. Tests script it by queuing record
// batches, fatal poll errors, rebalance notices, and per-op admin faults,
// then inspect the recorded call log and wakeup count.
type Consumer struct {
	mu        sync.Mutex
	pending   int // un-taken poll aborts
	wakeups   int // total Wakeup calls
	listener  driver.RebalanceListener
	rebalance []driver.RebalanceEvent
	calls     []string
	closed    bool
	parts     map[string][]driver.PartitionInfo
	opErr     map[string]error

	signal  chan struct{}
	records chan []driver.Record
	pollErr chan error
}

func NewConsumer() *Consumer {
	return &Consumer{
		parts:   map[string][]driver.PartitionInfo{},
		opErr:   map[string]error{},
		signal:  make(chan struct{}, 1),
		records: make(chan []driver.Record, 64),
		pollErr: make(chan error, 8),
	}
}

/*──────────────────────────── scripting side ───────────────────────────*/

// AddRecords queues one batch for a future Poll to return.
func (c *Consumer) AddRecords(recs ...driver.Record) { c.records <- recs }

// FailPoll makes a future Poll return err.
func (c *Consumer) FailPoll(err error) { c.pollErr <- err }

// SetPartitions scripts the PartitionsFor result for topic.
func (c *Consumer) SetPartitions(topic string, parts []driver.PartitionInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parts[topic] = parts
}

// FailOp makes the named admin op (subscribe, commit, …) return err.
func (c *Consumer) FailOp(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opErr[op] = err
}

// QueueRebalance queues ev for replay to the listener at the next Poll.
func (c *Consumer) QueueRebalance(ev driver.RebalanceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebalance = append(c.rebalance, ev)
}

// Wakeups reports the total number of Wakeup calls so far.
func (c *Consumer) Wakeups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakeups
}

// Calls returns the recorded admin call log.
func (c *Consumer) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// Closed reports whether Close has run.
func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Consumer) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.opErr[call]
}

/*──────────────────────────── capability side ──────────────────────────*/

// Poll replays queued rebalance notices, then blocks on scripted input, a
// pending wakeup, or the timeout.
func (c *Consumer) Poll(timeout time.Duration) ([]driver.Record, error) {
	c.replayRebalance()
	if c.take() {
		return nil, driver.ErrWokenUp
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case recs := <-c.records:
			return recs, nil
		case err := <-c.pollErr:
			return nil, err
		case <-c.signal:
			if c.take() {
				return nil, driver.ErrWokenUp
			}
		case <-timer.C:
			return nil, nil
		}
	}
}

func (c *Consumer) Subscribe(topic string, l driver.RebalanceListener) error {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
	return c.record("subscribe " + topic)
}

func (c *Consumer) Unsubscribe() error {
	c.mu.Lock()
	c.listener = nil
	c.mu.Unlock()
	return c.record("unsubscribe")
}

func (c *Consumer) Commit(offsets []driver.TopicOffset) error {
	if offsets == nil {
		return c.record("commit")
	}
	return c.record("commit explicit")
}

func (c *Consumer) Pause(parts []driver.TopicPartition) error {
	return c.record("pause")
}

func (c *Consumer) Resume(parts []driver.TopicPartition) error {
	return c.record("resume")
}

func (c *Consumer) PartitionsFor(topic string) ([]driver.PartitionInfo, error) {
	if err := c.record("partitions-for " + topic); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parts[topic], nil
}

// Wakeup schedules one poll abort. Safe from any goroutine and after Close.
func (c *Consumer) Wakeup() {
	c.mu.Lock()
	c.wakeups++
	c.pending++
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// take consumes one pending abort. It re-arms the signal when more aborts
// remain so queued wakeups cannot collapse into one interrupt.
func (c *Consumer) take() bool {
	c.mu.Lock()
	ok := c.pending > 0
	if ok {
		c.pending--
	}
	rearm := c.pending > 0
	c.mu.Unlock()
	if rearm {
		select {
		case c.signal <- struct{}{}:
		default:
		}
	}
	return ok
}

func (c *Consumer) replayRebalance() {
	c.mu.Lock()
	evs, l := c.rebalance, c.listener
	c.rebalance = nil
	c.mu.Unlock()
	if l == nil {
		return
	}
	for _, ev := range evs {
		l(ev)
	}
}

/*─────────────────────────────── producer ──────────────────────────────*/

// Producer is a fake driver.Producer recording every call.
type Producer struct {
	mu           sync.Mutex
	sent         []driver.Record
	flushes      int
	closed       bool
	closeTimeout time.Duration
	parts        map[string][]driver.PartitionInfo
	opErr        map[string]error
}

func NewProducer() *Producer {
	return &Producer{
		parts: map[string][]driver.PartitionInfo{},
		opErr: map[string]error{},
	}
}

// SetPartitions scripts the PartitionsFor result for topic.
func (p *Producer) SetPartitions(topic string, parts []driver.PartitionInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parts[topic] = parts
}

// FailOp makes the named op (send, flush, partitions-for) return err.
func (p *Producer) FailOp(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opErr[op] = err
}

// Sent returns every record passed to Send so far.
func (p *Producer) Sent() []driver.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]driver.Record, len(p.sent))
	copy(out, p.sent)
	return out
}

// Flushes reports the number of Flush calls.
func (p *Producer) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

// Closed reports whether Close has run, and the timeout it was given.
func (p *Producer) Closed() (bool, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.closeTimeout
}

func (p *Producer) Send(rec driver.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.opErr["send"]; err != nil {
		return err
	}
	p.sent = append(p.sent, rec)
	return nil
}

func (p *Producer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return p.opErr["flush"]
}

func (p *Producer) PartitionsFor(topic string) ([]driver.PartitionInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.opErr["partitions-for"]; err != nil {
		return nil, err
	}
	return p.parts[topic], nil
}

func (p *Producer) Close(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed, p.closeTimeout = true, timeout
	return nil
}
