package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
}

// Dispatcher drains pending ledger jobs and delivers them to Kafka. Jobs it
// claims but fails to deliver stay claimed; the janitor releases them back
// to pending after the claim goes stale.
type Dispatcher struct {
	store            JobStore
	producer         messageWriter
	pollInterval     time.Duration
	batchSize        int
	logger           *zap.Logger
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store JobStore, producer messageWriter, pollInterval time.Duration, batchSize int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:            store,
		producer:         producer,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		logger:           logger,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("dispatch batch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the dispatcher has stopped.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	jobs, err := d.store.ClaimForDispatch(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("claiming jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}
	defer func() { dispatchBatchDuration.Observe(time.Since(start).Seconds()) }()

	messages := make([]kafka.Message, 0, len(jobs))
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		payload, err := EncodeEnvelope(job)
		if err != nil {
			return fmt.Errorf("encoding job %s: %w", job.ID, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(strconv.FormatInt(job.AthleteExternalID, 10)),
			Value: payload,
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "job_id", Value: []byte(job.ID)},
				{Key: "kind", Value: []byte(job.Kind)},
				{Key: "schema_version", Value: []byte(strconv.Itoa(SchemaVersion))},
			},
		})
		ids = append(ids, job.ID)
	}

	if err := d.producer.WriteMessages(ctx, messages...); err != nil {
		dispatchFailedCounter.Add(float64(len(messages)))
		return fmt.Errorf("delivering batch: %w", err)
	}

	dispatchedCounter.Add(float64(len(messages)))
	return d.store.MarkDispatched(ctx, ids)
}
