package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/trainload/internal/domain"
)

// SummaryRepo persists the weekly summary cache.
type SummaryRepo struct {
	pool *pgxpool.Pool
}

// Upsert replaces the cached summary for an athlete's week.
func (r *SummaryRepo) Upsert(ctx context.Context, summary domain.WeeklySummary) error {
	types, err := json.Marshal(summary.ActivityTypes)
	if err != nil {
		return fmt.Errorf("encoding activity_types: %w", err)
	}

	const stmt = `INSERT INTO weekly_summaries
        (athlete_external_id, week_start, week_end, total_distance, total_duration_sec, total_elevation,
         total_activities, total_suffer_score, avg_suffer_score, activity_types, calculated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (athlete_external_id, week_start) DO UPDATE SET
            week_end=EXCLUDED.week_end,
            total_distance=EXCLUDED.total_distance,
            total_duration_sec=EXCLUDED.total_duration_sec,
            total_elevation=EXCLUDED.total_elevation,
            total_activities=EXCLUDED.total_activities,
            total_suffer_score=EXCLUDED.total_suffer_score,
            avg_suffer_score=EXCLUDED.avg_suffer_score,
            activity_types=EXCLUDED.activity_types,
            calculated_at=EXCLUDED.calculated_at`

	_, err = r.pool.Exec(ctx, stmt,
		summary.AthleteExternalID,
		summary.WeekStart,
		summary.WeekEnd,
		summary.TotalDistance,
		summary.TotalDuration,
		summary.TotalElevation,
		summary.TotalActivities,
		summary.TotalSufferScore,
		summary.AvgSufferScore,
		types,
		summary.CalculatedAt,
	)
	return err
}

// Find returns the cached summary for a week, or nil when the week
// was never summarized.
func (r *SummaryRepo) Find(ctx context.Context, athleteExternalID int64, weekStart time.Time) (*domain.WeeklySummary, error) {
	const query = `SELECT athlete_external_id, week_start, week_end, total_distance, total_duration_sec, total_elevation,
            total_activities, total_suffer_score, avg_suffer_score, activity_types, calculated_at
        FROM weekly_summaries
        WHERE athlete_external_id=$1 AND week_start=$2`

	var s domain.WeeklySummary
	var types []byte
	err := r.pool.QueryRow(ctx, query, athleteExternalID, weekStart).Scan(
		&s.AthleteExternalID, &s.WeekStart, &s.WeekEnd,
		&s.TotalDistance, &s.TotalDuration, &s.TotalElevation,
		&s.TotalActivities, &s.TotalSufferScore, &s.AvgSufferScore,
		&types, &s.CalculatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if len(types) > 0 {
		if err := json.Unmarshal(types, &s.ActivityTypes); err != nil {
			return nil, fmt.Errorf("decoding activity_types: %w", err)
		}
	}
	return &s, nil
}
