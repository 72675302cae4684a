package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"kanal/driver"
	"kanal/internal/logging"
)

// Consumer adapts a sarama consumer group to the blocking-poll capability.
// A background session goroutine feeds claimed messages into a bounded
// record queue; Poll drains that queue, a pending-wakeup counter, rebalance
// notices and the timeout. Each Wakeup schedules exactly one poll abort;
// pending aborts accumulate.
type Consumer struct {
	cfg   Config
	cl    sarama.Client
	group sarama.ConsumerGroup

	records chan *sarama.ConsumerMessage
	errs    chan error
	notices chan driver.RebalanceEvent
	offsets *offsetTracker

	wakeMu  sync.Mutex
	pending int
	signal  chan struct{}

	mu       sync.Mutex
	topic    string
	listener driver.RebalanceListener
	session  sarama.ConsumerGroupSession
	cancel   context.CancelFunc
	sessDone chan struct{}
}

// NewConsumer connects to the cluster and returns an idle consumer driver.
// Poll blocks on the wakeup signal and timeout alone until Subscribe starts
// a group session.
func NewConsumer(cfg Config) (*Consumer, error) {
	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	cl, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka: client: %w", err)
	}
	group, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, cl)
	if err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("kafka: consumer group %q: %w", cfg.GroupID, err)
	}
	d := &Consumer{
		cfg:     cfg,
		cl:      cl,
		group:   group,
		records: make(chan *sarama.ConsumerMessage, cfg.MaxPollRecords),
		errs:    make(chan error, 8),
		notices: make(chan driver.RebalanceEvent, 16),
		offsets: newOffsetTracker(),
		signal:  make(chan struct{}, 1),
	}
	go d.forwardErrors()
	return d, nil
}

func (d *Consumer) forwardErrors() {
	for err := range d.group.Errors() {
		select {
		case d.errs <- err:
		default:
			logging.L().Warn("kafka: error queue full, dropping", "err", err)
		}
	}
}

// Poll replays queued rebalance notices to the listener, then blocks until
// records arrive, a session error surfaces, a pending wakeup aborts it
// (nil, ErrWokenUp), or the timeout elapses (nil, nil).
func (d *Consumer) Poll(timeout time.Duration) ([]driver.Record, error) {
	d.replayNotices()
	if d.takeAbort() {
		return nil, driver.ErrWokenUp
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case msg := <-d.records:
			return d.batch(msg), nil
		case err := <-d.errs:
			return nil, fmt.Errorf("kafka: session: %w", err)
		case <-d.signal:
			if d.takeAbort() {
				return nil, driver.ErrWokenUp
			}
		case <-timer.C:
			return nil, nil
		}
	}
}

// batch returns first plus whatever else is already queued, up to the
// configured cap, tracking every delivered offset for Commit(nil).
func (d *Consumer) batch(first *sarama.ConsumerMessage) []driver.Record {
	out := []driver.Record{toRecord(first)}
	for len(out) < d.cfg.MaxPollRecords {
		select {
		case msg := <-d.records:
			out = append(out, toRecord(msg))
		default:
			for i := range out {
				d.offsets.observe(out[i])
			}
			return out
		}
	}
	for i := range out {
		d.offsets.observe(out[i])
	}
	return out
}

func (d *Consumer) replayNotices() {
	d.mu.Lock()
	l := d.listener
	d.mu.Unlock()
	for {
		select {
		case ev := <-d.notices:
			if ev.Op == driver.PartitionsRevoked {
				d.offsets.drop(ev.Partitions)
			}
			if l != nil {
				l(ev)
			}
		default:
			return
		}
	}
}

// Subscribe replaces the current subscription: any running session is
// cancelled and a new consume loop starts for topic.
func (d *Consumer) Subscribe(topic string, l driver.RebalanceListener) error {
	d.stopSession()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	d.mu.Lock()
	d.topic, d.listener = topic, l
	d.cancel, d.sessDone = cancel, done
	d.mu.Unlock()
	d.offsets.clear()

	go func() {
		defer close(done)
		handler := &groupHandler{driver: d}
		for {
			if err := d.group.Consume(ctx, []string{topic}, handler); err != nil {
				if ctx.Err() == nil {
					select {
					case d.errs <- err:
					default:
					}
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return nil
}

// Unsubscribe cancels the running session, if any.
func (d *Consumer) Unsubscribe() error {
	d.stopSession()
	d.mu.Lock()
	d.topic, d.listener = "", nil
	d.mu.Unlock()
	d.offsets.clear()
	return nil
}

func (d *Consumer) stopSession() {
	d.mu.Lock()
	cancel, done := d.cancel, d.sessDone
	d.cancel, d.sessDone = nil, nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Commit flushes the given offsets, or the positions of every record already
// handed out by Poll when offsets is nil. Requires an active group session.
func (d *Consumer) Commit(offsets []driver.TopicOffset) error {
	d.mu.Lock()
	sess := d.session
	d.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("kafka: commit without active session: %w", driver.ErrInvalidState)
	}
	if offsets == nil {
		offsets = d.offsets.snapshot()
	}
	for _, o := range offsets {
		sess.MarkOffset(o.Topic, o.Partition, o.Offset, "")
	}
	sess.Commit()
	return nil
}

func (d *Consumer) Pause(parts []driver.TopicPartition) error {
	d.group.Pause(toPartitionMap(parts))
	return nil
}

func (d *Consumer) Resume(parts []driver.TopicPartition) error {
	d.group.Resume(toPartitionMap(parts))
	return nil
}

func (d *Consumer) PartitionsFor(topic string) ([]driver.PartitionInfo, error) {
	return partitionsFor(d.cl, topic)
}

// Wakeup schedules exactly one poll abort. Safe from any goroutine, safe
// after Close.
func (d *Consumer) Wakeup() {
	d.wakeMu.Lock()
	d.pending++
	d.wakeMu.Unlock()
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// takeAbort consumes one pending abort, re-arming the signal when more
// remain so queued wakeups cannot collapse into a single interrupt.
func (d *Consumer) takeAbort() bool {
	d.wakeMu.Lock()
	ok := d.pending > 0
	if ok {
		d.pending--
	}
	rearm := d.pending > 0
	d.wakeMu.Unlock()
	if rearm {
		select {
		case d.signal <- struct{}{}:
		default:
		}
	}
	return ok
}

func (d *Consumer) Close() error {
	d.stopSession()
	gerr := d.group.Close()
	cerr := d.cl.Close()
	if gerr != nil {
		return gerr
	}
	return cerr
}

/*──────────────────────────── group handler ────────────────────────────*/

type groupHandler struct {
	driver *Consumer
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.driver.mu.Lock()
	h.driver.session = sess
	h.driver.mu.Unlock()
	h.notify(sess, driver.RebalanceEvent{
		Op:         driver.PartitionsAssigned,
		Partitions: claimedPartitions(sess),
	})
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.driver.mu.Lock()
	h.driver.session = nil
	h.driver.mu.Unlock()
	h.notify(sess, driver.RebalanceEvent{
		Op:         driver.PartitionsRevoked,
		Partitions: claimedPartitions(sess),
	})
	return nil
}

// notify queues a rebalance notice for replay at the next Poll.
func (h *groupHandler) notify(sess sarama.ConsumerGroupSession, ev driver.RebalanceEvent) {
	select {
	case h.driver.notices <- ev:
	case <-sess.Context().Done():
	}
}

func (h *groupHandler) ConsumeClaim(
	sess sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.driver.records <- msg:
			case <-sess.Context().Done():
				return nil
			}
		case <-sess.Context().Done():
			return nil
		}
	}
}

/*──────────────────────────── conversions ──────────────────────────────*/

func toRecord(msg *sarama.ConsumerMessage) driver.Record {
	return driver.Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   toHeaderMap(msg.Headers),
		Timestamp: msg.Timestamp,
	}
}

func toHeaderMap(src []*sarama.RecordHeader) map[string][]byte {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(src))
	for _, h := range src {
		out[string(h.Key)] = h.Value
	}
	return out
}

func toPartitionMap(parts []driver.TopicPartition) map[string][]int32 {
	out := make(map[string][]int32, len(parts))
	for _, tp := range parts {
		out[tp.Topic] = append(out[tp.Topic], tp.Partition)
	}
	return out
}

func claimedPartitions(sess sarama.ConsumerGroupSession) []driver.TopicPartition {
	var out []driver.TopicPartition
	for topic, parts := range sess.Claims() {
		for _, p := range parts {
			out = append(out, driver.TopicPartition{Topic: topic, Partition: p})
		}
	}
	return out
}

func partitionsFor(cl sarama.Client, topic string) ([]driver.PartitionInfo, error) {
	if err := cl.RefreshMetadata(topic); err != nil {
		return nil, fmt.Errorf("kafka: metadata %q: %w", topic, err)
	}
	parts, err := cl.Partitions(topic)
	if err != nil {
		return nil, fmt.Errorf("kafka: partitions %q: %w", topic, err)
	}
	out := make([]driver.PartitionInfo, 0, len(parts))
	for _, p := range parts {
		info := driver.PartitionInfo{Topic: topic, Partition: p, Leader: -1}
		if b, err := cl.Leader(topic, p); err == nil {
			info.Leader = b.ID()
		}
		if reps, err := cl.Replicas(topic, p); err == nil {
			info.Replicas = reps
		}
		out = append(out, info)
	}
	return out, nil
}
