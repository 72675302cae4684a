package consumer

import (
	"time"

	"kanal/api"
	"kanal/internal/logging"
	"kanal/internal/telemetry"
)

// dispatchNext waits up to the poll timeout for one pending command and
// applies it. dispatched reports whether a command was consumed. A closed
// subscription means the control queue was closed externally and yields
// Stop.
func (r *runtime) dispatchNext() (dec Decision, dispatched bool) {
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case cmd, ok := <-r.bus.Sub(subDispatch):
		if !ok {
			return Stop, false
		}
		return r.apply(cmd), true
	case <-timer.C:
		return Continue, false
	}
}

// apply interprets one command against the driver. Administrative faults
// become exception events and the loop keeps running; only stop, a stopping
// callback, or a closed control queue end it.
func (r *runtime) apply(cmd Command) Decision {
	telemetry.ConsumerCommands.WithLabelValues(cmd.Op.String()).Inc()

	switch cmd.Op {
	case OpStop:
		logging.L().Debug("consumer: stop command")
		return Stop

	case OpCallback:
		if cmd.Callback != nil {
			return cmd.Callback(r.driver, r.out)
		}

	case OpSubscribe:
		r.fault(cmd, r.driver.Subscribe(cmd.Topic, r.forwardRebalance))

	case OpUnsubscribe:
		r.fault(cmd, r.driver.Unsubscribe())

	case OpCommit:
		r.fault(cmd, r.driver.Commit(cmd.TopicOffsets))

	case OpPause:
		r.fault(cmd, r.driver.Pause(cmd.TopicPartitions))

	case OpResume:
		r.fault(cmd, r.driver.Resume(cmd.TopicPartitions))

	case OpPartitionsFor:
		parts, err := r.driver.PartitionsFor(cmd.Topic)
		if err != nil {
			r.fault(cmd, err)
			break
		}
		r.deliver(api.Event{Type: api.EventPartitions, Partitions: parts}, cmd.Response)

	case OpNop:
		// nothing
	}
	return Continue
}

// fault reports a failed administrative call. partitions-for faults route
// to the command's Response so a waiting caller is not stranded; everything
// else lands on the default output.
func (r *runtime) fault(cmd Command, err error) {
	if err == nil {
		return
	}
	logging.L().Warn("consumer: command failed", "op", cmd.Op.String(), "err", err)
	if cmd.Op == OpPartitionsFor {
		r.deliver(api.Exception(err), cmd.Response)
		return
	}
	r.emit(api.Exception(err))
}

// deliver routes ev to response when one is given, else to the default
// output.
func (r *runtime) deliver(ev api.Event, response chan<- api.Event) {
	if response == nil {
		r.emit(ev)
		return
	}
	telemetry.ConsumerEvents.WithLabelValues(ev.Type.String()).Inc()
	response <- ev
}
