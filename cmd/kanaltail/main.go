// kanaltail tails a topic through the queue-based consumer surface: it
// builds a registered driver from a profile, runs the consumer runtime,
// prints events until interrupted, then issues a stop command and drains
// the output to its eof.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"kanal/api"
	"kanal/codec"
	"kanal/consumer"
	"kanal/driver"
	"kanal/driver/kafka"
	"kanal/internal/config"
	"kanal/internal/logging"
	"kanal/internal/telemetry"
)

func main() {
	profilePath := flag.String("profile", "kanaltail.yml", "profile file")
	flag.Parse()

	logging.InitFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prof, err := config.LoadProfile(*profilePath)
	if err != nil {
		log.Fatalf("profile: %v", err)
	}
	cod, err := codec.Lookup(prof.Codec)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}
	kcfg, err := kafka.LoadConfig(prof.DriverConfig)
	if err != nil {
		log.Fatalf("driver config: %v", err)
	}
	d, err := driver.NewConsumer(prof.Driver, kcfg)
	if err != nil {
		log.Fatalf("driver: %v", err)
	}

	if prof.MetricsPort != 0 {
		telemetry.Expose(prof.MetricsPort)
	}

	pair, err := consumer.Run(d, consumer.Options{
		InputBuffer:  prof.InputBuffer,
		OutputBuffer: prof.OutputBuffer,
		PollTimeout:  time.Duration(prof.PollTimeoutMS) * time.Millisecond,
		Topic:        prof.Topic,
	})
	if err != nil {
		log.Fatalf("consumer: %v", err)
	}

	go func() {
		<-ctx.Done()
		pair.Send(consumer.Command{Op: consumer.OpStop})
	}()

	for ev := range pair.Output() {
		printEvent(ev, cod)
	}
}

func printEvent(ev api.Event, cod codec.Codec) {
	switch ev.Type {
	case api.EventRecord:
		r := ev.Record
		fmt.Printf("%s[%d]@%d %s\n", r.Topic, r.Partition, r.Offset, renderValue(cod, r.Value))
	case api.EventException:
		fmt.Printf("exception: %v\n", ev.Err)
	case api.EventRebalance:
		fmt.Printf("rebalance: %s %v\n", ev.Rebalance.Op, ev.Rebalance.Partitions)
	case api.EventPartitions:
		fmt.Printf("partitions: %v\n", ev.Partitions)
	case api.EventEOF:
		fmt.Println("eof")
	}
}

func renderValue(cod codec.Codec, data []byte) string {
	switch cod {
	case codec.String:
		var s string
		if err := cod.Unmarshal(data, &s); err == nil {
			return s
		}
	case codec.JSON:
		var v any
		if err := cod.Unmarshal(data, &v); err == nil {
			return fmt.Sprintf("%v", v)
		}
	}
	return fmt.Sprintf("%x", data)
}
