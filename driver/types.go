package driver

import (
	"fmt"
	"time"
)

// Record is one message as handed across the driver boundary. Key and Value
// stay raw bytes; payload codecs live above the driver (see package codec).
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

// TopicPartition names one partition of one topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s[%d]", tp.Topic, tp.Partition)
}

// TopicOffset is a commit target: the next offset to consume from.
type TopicOffset struct {
	Topic     string
	Partition int32
	Offset    int64
}

// PartitionInfo describes one partition as reported by cluster metadata.
type PartitionInfo struct {
	Topic     string
	Partition int32
	Leader    int32
	Replicas  []int32
}

// RebalanceOp tags a rebalance notification.
type RebalanceOp uint8

const (
	PartitionsAssigned RebalanceOp = iota + 1
	PartitionsRevoked
)

func (op RebalanceOp) String() string {
	switch op {
	case PartitionsAssigned:
		return "assigned"
	case PartitionsRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// RebalanceEvent reports a partition assignment change for the current
// subscription.
type RebalanceEvent struct {
	Op         RebalanceOp
	Partitions []TopicPartition
}

// RebalanceListener receives rebalance events. Drivers call it synchronously
// from inside Poll, on the goroutine that owns the handle.
type RebalanceListener func(RebalanceEvent)
