// Package sync pulls activity records from the upstream provider and
// reconciles them into local storage.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/trainload/internal/domain"
	"example.com/trainload/internal/observability"
	"example.com/trainload/internal/strava"
	"example.com/trainload/internal/stress"
)

// Source is the slice of the provider client the synchronizer needs.
type Source interface {
	ListActivities(ctx context.Context, after time.Time, page, perPage int) ([]strava.Activity, error)
	FetchActivity(ctx context.Context, activityID int64) (*strava.Activity, error)
	FetchZoneTimes(ctx context.Context, activityID int64) ([]int, error)
}

// SourceFactory yields a Source bound to one athlete's credential.
type SourceFactory func(ctx context.Context, profile *domain.AthleteProfile) (Source, error)

// Locker serializes summary recomputation per athlete.
type Locker interface {
	AcquireWait(ctx context.Context, key string, wait time.Duration) (func(), error)
}

// leaseWait bounds how long a recompute waits for a competing sync to
// finish before giving up (the job retry will pick it up again).
const leaseWait = 30 * time.Second

// Result reports what a bulk sync did.
type Result struct {
	Created int
	Updated int
}

// Service is the Activity Synchronizer.
type Service struct {
	activities domain.ActivityRepository
	summaries  domain.WeeklySummaryRepository
	source     SourceFactory
	locker     Locker
	logger     *zap.Logger
	pageSize   int
	now        func() time.Time
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithPageSize overrides the provider pagination size, capped at the
// provider maximum.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 && size <= strava.MaxPerPage {
			s.pageSize = size
		}
	}
}

// NewService constructs the synchronizer.
func NewService(
	activities domain.ActivityRepository,
	summaries domain.WeeklySummaryRepository,
	source SourceFactory,
	locker Locker,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		activities: activities,
		summaries:  summaries,
		source:     source,
		locker:     locker,
		logger:     logger,
		pageSize:   strava.MaxPerPage,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncActivities fetches every activity started within the trailing daysBack
// window, upserts them, and recomputes the weekly summaries the window
// touches. Partial progress is retained on failure; the idempotent upsert
// makes a retry safe.
func (s *Service) SyncActivities(ctx context.Context, profile *domain.AthleteProfile, daysBack int) (Result, error) {
	src, err := s.source(ctx, profile)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	after := now.AddDate(0, 0, -daysBack)

	s.logger.Info("starting bulk sync",
		zap.Int64("athlete_id", profile.ExternalID),
		zap.Int("days_back", daysBack))

	var result Result
	for page := 1; ; page++ {
		batch, err := src.ListActivities(ctx, after, page, s.pageSize)
		if err != nil {
			return result, fmt.Errorf("fetching page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, record := range batch {
			inserted, err := s.upsertRecord(ctx, profile, record)
			if err != nil {
				return result, err
			}
			if inserted {
				result.Created++
			} else {
				result.Updated++
			}
		}

		if len(batch) < s.pageSize {
			break
		}
	}

	if err := s.RecomputeWeeklySummaries(ctx, profile.ExternalID, after, now); err != nil {
		return result, err
	}

	s.logger.Info("bulk sync complete",
		zap.Int64("athlete_id", profile.ExternalID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated))
	return result, nil
}

// SyncOne re-fetches a single activity from the provider and upserts it,
// along with its heart-rate zone buckets when available. It returns nil when
// the provider reports the activity no longer exists.
func (s *Service) SyncOne(ctx context.Context, profile *domain.AthleteProfile, externalID int64) (*domain.Activity, error) {
	src, err := s.source(ctx, profile)
	if err != nil {
		return nil, err
	}

	record, err := src.FetchActivity(ctx, externalID)
	if err != nil {
		if errors.Is(err, strava.ErrNotFound) {
			s.logger.Info("activity gone upstream", zap.Int64("activity_id", externalID))
			return nil, nil
		}
		return nil, err
	}

	if _, err := s.upsertRecord(ctx, profile, *record); err != nil {
		return nil, err
	}

	if record.HasHeartrate {
		zones, err := src.FetchZoneTimes(ctx, externalID)
		if err != nil {
			// Zone analysis is enrichment; its absence must not fail the sync.
			s.logger.Warn("fetching zone times failed",
				zap.Int64("activity_id", externalID), zap.Error(err))
		} else if len(zones) > 0 {
			if err := s.activities.SetZoneTimes(ctx, externalID, zones); err != nil {
				return nil, err
			}
		}
	}

	startDate := record.StartTime()
	if err := s.RecomputeWeeklySummaries(ctx, profile.ExternalID, startDate, startDate); err != nil {
		return nil, err
	}

	return s.activities.Find(ctx, profile.ExternalID, externalID)
}

// DeleteActivity removes the matching record and recomputes the summary for
// the week it was in. It reports whether a row was actually removed.
func (s *Service) DeleteActivity(ctx context.Context, athleteExternalID, externalID int64) (bool, error) {
	existing, err := s.activities.Find(ctx, athleteExternalID, externalID)
	if err != nil && !errors.Is(err, domain.ErrActivityNotFound) {
		return false, err
	}

	removed, err := s.activities.Delete(ctx, athleteExternalID, externalID)
	if err != nil || !removed {
		return removed, err
	}

	if existing != nil {
		if err := s.RecomputeWeeklySummaries(ctx, athleteExternalID, existing.StartDate, existing.StartDate); err != nil {
			return true, err
		}
	}
	return true, nil
}

// RecomputeWeeklySummaries rebuilds, from scratch, every weekly summary
// whose window intersects [from, to]. A per-athlete lease serializes
// competing recomputations so concurrent syncs cannot lose updates.
func (s *Service) RecomputeWeeklySummaries(ctx context.Context, athleteExternalID int64, from, to time.Time) error {
	release, err := s.locker.AcquireWait(ctx, fmt.Sprintf("summaries:%d", athleteExternalID), leaseWait)
	if err != nil {
		return fmt.Errorf("acquiring summary lease for athlete %d: %w", athleteExternalID, err)
	}
	defer release()

	for _, week := range domain.WeeksInRange(from, to) {
		activities, err := s.activities.FindInRange(ctx, athleteExternalID, week.Start, week.End)
		if err != nil {
			return err
		}

		summary := domain.AggregateWeek(athleteExternalID, week.Start, week.End, activities)
		summary.CalculatedAt = s.now()
		if err := s.summaries.Upsert(ctx, summary); err != nil {
			return err
		}
	}
	observability.RecordSummariesRecalculated(s.now())
	return nil
}

func (s *Service) upsertRecord(ctx context.Context, profile *domain.AthleteProfile, record strava.Activity) (bool, error) {
	activity := mapRecord(record, profile.ExternalID)

	// Fill the stress value up front; the upsert keeps an already stored
	// value, so re-syncing never recomputes an existing score.
	if activity.HasHeartrate && activity.AvgHeartrate != nil {
		result := stress.Compute(activity, *profile)
		activity.StressScore = &result.Stress
	}

	inserted, err := s.activities.Upsert(ctx, activity)
	if err != nil {
		return false, fmt.Errorf("upserting activity %d: %w", record.ID, err)
	}
	observability.RecordActivityUpserted(s.now())
	return inserted, nil
}

func mapRecord(record strava.Activity, athleteExternalID int64) domain.Activity {
	return domain.Activity{
		ExternalID:        record.ID,
		AthleteExternalID: athleteExternalID,
		Name:              record.Name,
		Type:              record.Type,
		SportType:         record.SportType,
		DistanceMeters:    record.Distance,
		MovingTimeSec:     record.MovingTime,
		ElapsedTimeSec:    record.ElapsedTime,
		ElevationGain:     record.TotalElevationGain,
		SufferScore:       record.SufferScore,
		AvgHeartrate:      record.AverageHeartrate,
		MaxHeartrate:      record.MaxHeartrate,
		AvgSpeed:          record.AverageSpeed,
		MaxSpeed:          record.MaxSpeed,
		StartDate:         record.StartTime(),
		StartDateLocal:    record.LocalStartTime(),
		Timezone:          record.Timezone,
		HasHeartrate:      record.HasHeartrate,
	}
}
