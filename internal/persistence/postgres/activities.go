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

// ActivityRepo persists activity records.
type ActivityRepo struct {
	pool *pgxpool.Pool
}

const activityColumns = `external_id, athlete_external_id, name, type, sport_type,
        distance_m, moving_time_sec, elapsed_time_sec, elevation_gain,
        suffer_score, avg_heartrate, max_heartrate, avg_speed, max_speed,
        start_date, start_date_local, timezone, has_heartrate,
        stress_score, zone_times_sec, created_at, updated_at`

// Upsert inserts or replaces an activity, keyed on its external id, and
// reports whether a new row was created. Stress and zone times survive a
// replace when the incoming record does not carry them, so a re-sync never
// wipes computed enrichment.
func (r *ActivityRepo) Upsert(ctx context.Context, activity domain.Activity) (bool, error) {
	zones, err := encodeZoneTimes(activity.ZoneTimesSec)
	if err != nil {
		return false, err
	}

	const stmt = `INSERT INTO activities (` + activityColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,NOW(),NOW())
        ON CONFLICT (external_id) DO UPDATE SET
            athlete_external_id=EXCLUDED.athlete_external_id,
            name=EXCLUDED.name,
            type=EXCLUDED.type,
            sport_type=EXCLUDED.sport_type,
            distance_m=EXCLUDED.distance_m,
            moving_time_sec=EXCLUDED.moving_time_sec,
            elapsed_time_sec=EXCLUDED.elapsed_time_sec,
            elevation_gain=EXCLUDED.elevation_gain,
            suffer_score=EXCLUDED.suffer_score,
            avg_heartrate=EXCLUDED.avg_heartrate,
            max_heartrate=EXCLUDED.max_heartrate,
            avg_speed=EXCLUDED.avg_speed,
            max_speed=EXCLUDED.max_speed,
            start_date=EXCLUDED.start_date,
            start_date_local=EXCLUDED.start_date_local,
            timezone=EXCLUDED.timezone,
            has_heartrate=EXCLUDED.has_heartrate,
            stress_score=COALESCE(EXCLUDED.stress_score, activities.stress_score),
            zone_times_sec=COALESCE(EXCLUDED.zone_times_sec, activities.zone_times_sec),
            updated_at=NOW()
        RETURNING (xmax = 0)`

	var inserted bool
	err = r.pool.QueryRow(ctx, stmt,
		activity.ExternalID,
		activity.AthleteExternalID,
		activity.Name,
		activity.Type,
		activity.SportType,
		activity.DistanceMeters,
		activity.MovingTimeSec,
		activity.ElapsedTimeSec,
		activity.ElevationGain,
		activity.SufferScore,
		activity.AvgHeartrate,
		activity.MaxHeartrate,
		activity.AvgSpeed,
		activity.MaxSpeed,
		activity.StartDate,
		activity.StartDateLocal,
		activity.Timezone,
		activity.HasHeartrate,
		activity.StressScore,
		zones,
	).Scan(&inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// SetStress stores a computed stress score.
func (r *ActivityRepo) SetStress(ctx context.Context, externalID int64, stress float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE activities SET stress_score=$2, updated_at=NOW() WHERE external_id=$1`,
		externalID, stress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

// SetZoneTimes stores per-zone seconds for an activity.
func (r *ActivityRepo) SetZoneTimes(ctx context.Context, externalID int64, zoneTimesSec []int) error {
	zones, err := encodeZoneTimes(zoneTimesSec)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE activities SET zone_times_sec=$2, updated_at=NOW() WHERE external_id=$1`,
		externalID, zones)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

// Find loads one activity scoped to an athlete.
func (r *ActivityRepo) Find(ctx context.Context, athleteExternalID, externalID int64) (*domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities
        WHERE athlete_external_id=$1 AND external_id=$2`

	activity, err := scanActivity(r.pool.QueryRow(ctx, query, athleteExternalID, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrActivityNotFound
		}
		return nil, err
	}
	return activity, nil
}

// Delete removes one activity and reports whether a row was deleted.
func (r *ActivityRepo) Delete(ctx context.Context, athleteExternalID, externalID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM activities WHERE athlete_external_id=$1 AND external_id=$2`,
		athleteExternalID, externalID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FindInRange returns activities started inside [from, to], oldest first.
func (r *ActivityRepo) FindInRange(ctx context.Context, athleteExternalID int64, from, to time.Time) ([]domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities
        WHERE athlete_external_id=$1 AND start_date BETWEEN $2 AND $3
        ORDER BY start_date`

	rows, err := r.pool.Query(ctx, query, athleteExternalID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivities(rows)
}

// ListRecent returns a page of activities, newest first.
func (r *ActivityRepo) ListRecent(ctx context.Context, athleteExternalID int64, limit, skip int) ([]domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities
        WHERE athlete_external_id=$1
        ORDER BY start_date DESC
        LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, athleteExternalID, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivities(rows)
}

// MostRecent returns the latest activity.
func (r *ActivityRepo) MostRecent(ctx context.Context, athleteExternalID int64) (*domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities
        WHERE athlete_external_id=$1
        ORDER BY start_date DESC
        LIMIT 1`

	activity, err := scanActivity(r.pool.QueryRow(ctx, query, athleteExternalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrActivityNotFound
		}
		return nil, err
	}
	return activity, nil
}

// Count returns the athlete's total stored activities.
func (r *ActivityRepo) Count(ctx context.Context, athleteExternalID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM activities WHERE athlete_external_id=$1`,
		athleteExternalID).Scan(&count)
	return count, err
}

// CountSince returns the number of activities started at or after since.
func (r *ActivityRepo) CountSince(ctx context.Context, athleteExternalID int64, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM activities WHERE athlete_external_id=$1 AND start_date >= $2`,
		athleteExternalID, since).Scan(&count)
	return count, err
}

// Totals returns all-time activity count and distance.
func (r *ActivityRepo) Totals(ctx context.Context, athleteExternalID int64) (int, float64, error) {
	var count int
	var distance float64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(distance_m), 0) FROM activities WHERE athlete_external_id=$1`,
		athleteExternalID).Scan(&count, &distance)
	return count, distance, err
}

func collectActivities(rows pgx.Rows) ([]domain.Activity, error) {
	var out []domain.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *activity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanActivity(row rowScanner) (*domain.Activity, error) {
	var a domain.Activity
	var zones []byte
	err := row.Scan(
		&a.ExternalID, &a.AthleteExternalID, &a.Name, &a.Type, &a.SportType,
		&a.DistanceMeters, &a.MovingTimeSec, &a.ElapsedTimeSec, &a.ElevationGain,
		&a.SufferScore, &a.AvgHeartrate, &a.MaxHeartrate, &a.AvgSpeed, &a.MaxSpeed,
		&a.StartDate, &a.StartDateLocal, &a.Timezone, &a.HasHeartrate,
		&a.StressScore, &zones, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(zones) > 0 {
		if err := json.Unmarshal(zones, &a.ZoneTimesSec); err != nil {
			return nil, fmt.Errorf("decoding zone_times_sec for activity %d: %w", a.ExternalID, err)
		}
	}
	return &a, nil
}

// encodeZoneTimes serializes zone seconds for the jsonb column, keeping NULL
// for "never fetched" so COALESCE can distinguish it from an empty result.
func encodeZoneTimes(zoneTimesSec []int) ([]byte, error) {
	if zoneTimesSec == nil {
		return nil, nil
	}
	return json.Marshal(zoneTimesSec)
}
