package kafka

import (
	"sync"

	"kanal/driver"
)

// offsetTracker remembers, per partition, the next offset after the records
// already handed out by Poll. Commit with nil offsets flushes this snapshot.
// Delivery through Poll is sequential per partition, so a plain high-water
// map suffices. Revoked partitions are dropped on rebalance: their position
// belongs to the new owner.
type offsetTracker struct {
	mu   sync.Mutex
	next map[driver.TopicPartition]int64
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{next: map[driver.TopicPartition]int64{}}
}

func (t *offsetTracker) observe(rec driver.Record) {
	t.mu.Lock()
	t.next[driver.TopicPartition{Topic: rec.Topic, Partition: rec.Partition}] = rec.Offset + 1
	t.mu.Unlock()
}

func (t *offsetTracker) snapshot() []driver.TopicOffset {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.next) == 0 {
		return nil
	}
	out := make([]driver.TopicOffset, 0, len(t.next))
	for tp, off := range t.next {
		out = append(out, driver.TopicOffset{Topic: tp.Topic, Partition: tp.Partition, Offset: off})
	}
	return out
}

func (t *offsetTracker) drop(parts []driver.TopicPartition) {
	t.mu.Lock()
	for _, tp := range parts {
		delete(t.next, tp)
	}
	t.mu.Unlock()
}

func (t *offsetTracker) clear() {
	t.mu.Lock()
	t.next = map[driver.TopicPartition]int64{}
	t.mu.Unlock()
}
