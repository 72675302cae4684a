// Package telemetry registers kanal's prometheus metrics and serves the
// exposition endpoint.
package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kanal"

var (
	// ConsumerCommands counts control commands dispatched, by op.
	ConsumerCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "commands_total",
		Help:      "Control commands dispatched by the consumer runtime.",
	}, []string{"op"})

	// ConsumerEvents counts output events emitted, by type.
	ConsumerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "events_total",
		Help:      "Events emitted on the consumer output queue.",
	}, []string{"type"})

	// Wakeups counts driver wakeup calls issued by the wakeup loop.
	Wakeups = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "wakeups_total",
		Help:      "Driver wakeups issued to interrupt blocking polls.",
	})

	// ProducerCommands counts producer input commands, by op.
	ProducerCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "producer",
		Name:      "commands_total",
		Help:      "Commands consumed by the producer runtime.",
	}, []string{"op"})

	// ProducerErrors counts send/flush faults surfaced as exception events.
	ProducerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "producer",
		Name:      "errors_total",
		Help:      "Producer driver faults surfaced on the output queue.",
	})
)

// Expose serves /metrics on the given port in the background.
func Expose(port int) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
	}()
}
