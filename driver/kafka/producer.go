package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"kanal/driver"
)

// Producer wraps a synchronous sarama producer. Sends complete before
// returning, so Flush has nothing buffered to wait for and the only timed
// operation is Close.
type Producer struct {
	cl sarama.Client
	p  sarama.SyncProducer
}

func NewProducer(cfg Config) (*Producer, error) {
	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	cl, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka: client: %w", err)
	}
	p, err := sarama.NewSyncProducerFromClient(cl)
	if err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("kafka: producer: %w", err)
	}
	return &Producer{cl: cl, p: p}, nil
}

func (d *Producer) Send(rec driver.Record) error {
	msg := &sarama.ProducerMessage{
		Topic: rec.Topic,
		Key:   sarama.ByteEncoder(rec.Key),
		Value: sarama.ByteEncoder(rec.Value),
	}
	for k, v := range rec.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: v})
	}
	if _, _, err := d.p.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka: send %q: %w", rec.Topic, err)
	}
	return nil
}

// Flush is a no-op: SendMessage returns only after the broker acks.
func (d *Producer) Flush() error { return nil }

func (d *Producer) PartitionsFor(topic string) ([]driver.PartitionInfo, error) {
	return partitionsFor(d.cl, topic)
}

// Close releases the producer, waiting up to timeout. Zero means no bound.
func (d *Producer) Close(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		perr := d.p.Close()
		cerr := d.cl.Close()
		if perr != nil {
			done <- perr
			return
		}
		done <- cerr
	}()
	if timeout <= 0 {
		return <-done
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("kafka: close timed out after %v", timeout)
	}
}
