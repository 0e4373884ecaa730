package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// JanitorConfig bounds ledger retention. Completed jobs are kept briefly for
// debugging, failed jobs longer so a parked job can be investigated. The
// keep counts always preserve the most recent rows even past the cutoff.
type JanitorConfig struct {
	Interval           time.Duration
	CompletedRetention time.Duration
	CompletedKeep      int
	FailedRetention    time.Duration
	FailedKeep         int
	// StuckClaimAfter is how long a dispatch claim may sit before the row
	// is returned to pending.
	StuckClaimAfter time.Duration
}

// Janitor prunes the ingestion ledger and frees stuck dispatch claims.
type Janitor struct {
	store            JobStore
	cfg              JanitorConfig
	logger           *zap.Logger
	shutdownComplete chan struct{}
}

// NewJanitor constructs a Janitor.
func NewJanitor(store JobStore, cfg JanitorConfig, logger *zap.Logger) *Janitor {
	return &Janitor{
		store:            store,
		cfg:              cfg,
		logger:           logger,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the sweep loop. It should be called in a goroutine.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer func() {
		ticker.Stop()
		close(j.shutdownComplete)
	}()

	for {
		if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			j.logger.Error("janitor sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the janitor has stopped.
func (j *Janitor) Wait() {
	<-j.shutdownComplete
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce(ctx context.Context) error {
	now := time.Now()

	released, err := j.store.ReleaseStuck(ctx, now.Add(-j.cfg.StuckClaimAfter))
	if err != nil {
		return err
	}
	if released > 0 {
		releasedCounter.Add(float64(released))
		j.logger.Warn("released stuck dispatch claims", zap.Int64("count", released))
	}

	prunedCompleted, err := j.store.PruneCompleted(ctx, now.Add(-j.cfg.CompletedRetention), j.cfg.CompletedKeep)
	if err != nil {
		return err
	}
	prunedFailed, err := j.store.PruneFailed(ctx, now.Add(-j.cfg.FailedRetention), j.cfg.FailedKeep)
	if err != nil {
		return err
	}

	if prunedCompleted > 0 || prunedFailed > 0 {
		prunedCounter.WithLabelValues("completed").Add(float64(prunedCompleted))
		prunedCounter.WithLabelValues("failed").Add(float64(prunedFailed))
		j.logger.Info("pruned ledger",
			zap.Int64("completed", prunedCompleted),
			zap.Int64("failed", prunedFailed))
	}
	return nil
}
