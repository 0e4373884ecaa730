package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler executes one job.
type Handler interface {
	Handle(context.Context, JobEnvelope) error
}

// RetryPolicy bounds how a processor retries a failing job before parking it.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

// Delay returns the exponential backoff before the given retry (attempt is
// 1-based; the delay applies after it fails).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt-1)
}

// Processor pulls job envelopes from Kafka, executes them with bounded
// retries, and records the terminal outcome in the ledger. Every message is
// committed exactly once, whether the job succeeded, was parked, or was
// malformed; redelivery is never used as a retry mechanism.
type Processor struct {
	reader  Reader
	handler Handler
	store   JobStore
	policy  RetryPolicy
	logger  *zap.Logger

	// sleep is swappable so tests do not wait out real backoff.
	sleep func(context.Context, time.Duration) error
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, store JobStore, policy RetryPolicy, logger *zap.Logger) *Processor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	return &Processor{
		reader:  reader,
		handler: handler,
		store:   store,
		policy:  policy,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Run starts a blocking loop that processes messages until the context is
// cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Error("fetch failed", zap.Error(err))
			continue
		}

		env, decodeErr := DecodeEnvelope(msg.Value)
		if decodeErr != nil {
			p.parkMalformed(ctx, msg, decodeErr)
			p.commit(ctx, msg)
			continue
		}

		if jobErr := p.runJob(ctx, env); jobErr != nil {
			if errors.Is(jobErr, context.Canceled) {
				return jobErr
			}
			p.park(ctx, env, jobErr)
		} else {
			p.complete(ctx, env)
		}
		p.commit(ctx, msg)
	}
}

// runJob executes the handler with bounded retries and per-attempt timeouts.
func (p *Processor) runJob(ctx context.Context, env JobEnvelope) error {
	var lastErr error
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		lastErr = p.attempt(ctx, env)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) {
			return lastErr
		}

		p.logger.Warn("job attempt failed",
			zap.String("job_id", env.JobID),
			zap.String("kind", string(env.Kind)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < p.policy.MaxAttempts {
			retryCounter.WithLabelValues(string(env.Kind)).Inc()
			if err := p.sleep(ctx, p.policy.Delay(attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func (p *Processor) attempt(ctx context.Context, env JobEnvelope) error {
	if p.policy.AttemptTimeout <= 0 {
		return p.handler.Handle(ctx, env)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.policy.AttemptTimeout)
	defer cancel()
	return p.handler.Handle(attemptCtx, env)
}

func (p *Processor) complete(ctx context.Context, env JobEnvelope) {
	if err := p.store.MarkCompleted(ctx, env.JobID); err != nil {
		p.logger.Error("marking job completed failed", zap.String("job_id", env.JobID), zap.Error(err))
		return
	}
	processedCounter.WithLabelValues(string(env.Kind)).Inc()
}

func (p *Processor) park(ctx context.Context, env JobEnvelope, jobErr error) {
	p.logger.Error("job exhausted retries, parking",
		zap.String("job_id", env.JobID),
		zap.String("kind", string(env.Kind)),
		zap.Error(jobErr))
	if err := p.store.MarkFailed(ctx, env.JobID, jobErr.Error()); err != nil {
		p.logger.Error("marking job failed errored", zap.String("job_id", env.JobID), zap.Error(err))
		return
	}
	parkedCounter.WithLabelValues(string(env.Kind)).Inc()
}

// parkMalformed handles messages that cannot be decoded. When the job_id
// header survived we can still park the ledger row; otherwise logging is all
// that is left.
func (p *Processor) parkMalformed(ctx context.Context, msg kafka.Message, decodeErr error) {
	decodeErrorCounter.Inc()
	jobID := headerValue(msg, "job_id")
	if jobID == "" {
		p.logger.Error("dropping undecodable message without job_id header",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(decodeErr))
		return
	}

	p.logger.Error("parking undecodable job", zap.String("job_id", jobID), zap.Error(decodeErr))
	if err := p.store.MarkFailed(ctx, jobID, decodeErr.Error()); err != nil {
		p.logger.Error("marking malformed job failed errored", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Error("commit failed",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, header := range msg.Headers {
		if header.Key == key {
			return string(header.Value)
		}
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
