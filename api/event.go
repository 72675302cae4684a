// Package api holds the event vocabulary shared by the consumer and producer
// surfaces. Events are the only way faults and driver results reach callers:
// loops never return errors across the queue boundary.
package api

import "kanal/driver"

// EventType tags an Event.
type EventType uint8

const (
	// EventRecord carries one consumed record.
	EventRecord EventType = iota + 1
	// EventException carries a driver fault. A fault that tears the loop
	// down is reported exactly once, before EOF.
	EventException
	// EventRebalance carries a partition assignment change.
	EventRebalance
	// EventEOF is the final event of a lifecycle, emitted exactly once,
	// strictly before the output queue closes.
	EventEOF
	// EventPartitions carries a partitions-for result.
	EventPartitions
	// EventWokenUp marks a poll interruption that found no pending command.
	EventWokenUp
)

func (t EventType) String() string {
	switch t {
	case EventRecord:
		return "record"
	case EventException:
		return "exception"
	case EventRebalance:
		return "rebalance"
	case EventEOF:
		return "eof"
	case EventPartitions:
		return "partitions"
	case EventWokenUp:
		return "woken-up"
	default:
		return "unknown"
	}
}

// Event is the tagged union flowing out of a runtime. Exactly one payload
// field is set, matching Type.
type Event struct {
	Type       EventType
	Record     *driver.Record
	Err        error
	Rebalance  *driver.RebalanceEvent
	Partitions []driver.PartitionInfo
}

// Exception wraps a fault into an event.
func Exception(err error) Event { return Event{Type: EventException, Err: err} }
