package ingest

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer writes job envelopes to the ingest topic. Messages are keyed by
// athlete id, so one athlete's jobs always land on the same partition and
// stay ordered.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer constructs a Producer for the given brokers and topic.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		},
	}
}

// WriteMessages delivers messages, blocking until acknowledged.
func (p *Producer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close releases the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
