package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"example.com/trainload/internal/domain"
)

// Synchronizer is the slice of the sync service the handler uses.
type Synchronizer interface {
	SyncOne(ctx context.Context, profile *domain.AthleteProfile, externalID int64) (*domain.Activity, error)
	DeleteActivity(ctx context.Context, athleteExternalID, externalID int64) (bool, error)
}

// ProgressUpdater refreshes weekly goal progress after an activity changes.
type ProgressUpdater interface {
	UpdateProgress(ctx context.Context, athleteExternalID int64) error
}

// JobHandler executes ingestion jobs against the sync service. It is the
// Handler the worker processors run.
type JobHandler struct {
	athletes domain.AthleteRepository
	syncer   Synchronizer
	goals    ProgressUpdater
	logger   *zap.Logger
}

// NewJobHandler constructs a JobHandler.
func NewJobHandler(athletes domain.AthleteRepository, syncer Synchronizer, goals ProgressUpdater, logger *zap.Logger) *JobHandler {
	return &JobHandler{athletes: athletes, syncer: syncer, goals: goals, logger: logger}
}

// Handle runs one job. Jobs for athletes we do not track succeed as no-ops:
// the provider sends events for every connected athlete, not just ours.
func (h *JobHandler) Handle(ctx context.Context, env JobEnvelope) error {
	profile, err := h.athletes.FindByExternalID(ctx, env.AthleteID)
	if err != nil {
		if errors.Is(err, domain.ErrAthleteNotFound) {
			h.logger.Info("skipping job for untracked athlete",
				zap.String("job_id", env.JobID),
				zap.Int64("athlete_id", env.AthleteID))
			return nil
		}
		return fmt.Errorf("looking up athlete %d: %w", env.AthleteID, err)
	}

	switch env.Kind {
	case KindCreate, KindUpdate:
		if _, err := h.syncer.SyncOne(ctx, profile, env.ActivityID); err != nil {
			return fmt.Errorf("syncing activity %d: %w", env.ActivityID, err)
		}
	case KindDelete:
		removed, err := h.syncer.DeleteActivity(ctx, env.AthleteID, env.ActivityID)
		if err != nil {
			return fmt.Errorf("deleting activity %d: %w", env.ActivityID, err)
		}
		if !removed {
			h.logger.Info("delete for activity we never stored",
				zap.String("job_id", env.JobID),
				zap.Int64("activity_id", env.ActivityID))
		}
	default:
		return fmt.Errorf("unknown job kind %q", env.Kind)
	}

	if err := h.goals.UpdateProgress(ctx, env.AthleteID); err != nil {
		return fmt.Errorf("updating goal progress: %w", err)
	}
	return nil
}
