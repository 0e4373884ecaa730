// Package domain defines the core types and storage contracts for the
// training-load pipeline.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located locally.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrAthleteNotFound is returned when no athlete matches the given identity.
	ErrAthleteNotFound = errors.New("athlete not found")
	// ErrNoGoal indicates the athlete has no goal for the requested week.
	ErrNoGoal = errors.New("no goal set")
	// ErrUpstreamUnavailable marks provider failures that are worth
	// retrying (5xx, quota). Callers wrap it with the concrete cause.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// AthleteRepository captures athlete persistence operations.
type AthleteRepository interface {
	FindByExternalID(ctx context.Context, externalID int64) (*AthleteProfile, error)
	UpdateCredential(ctx context.Context, externalID int64, accessToken, refreshToken string, expiry time.Time) error
}

// ActivityRepository captures activity persistence operations. Upsert is
// keyed on the external activity id and reports whether a row was inserted
// (as opposed to replaced), so callers never have to infer that from
// timestamps.
type ActivityRepository interface {
	Upsert(ctx context.Context, activity Activity) (inserted bool, err error)
	SetStress(ctx context.Context, externalID int64, stress float64) error
	SetZoneTimes(ctx context.Context, externalID int64, zoneTimesSec []int) error
	Find(ctx context.Context, athleteExternalID, externalID int64) (*Activity, error)
	Delete(ctx context.Context, athleteExternalID, externalID int64) (bool, error)
	FindInRange(ctx context.Context, athleteExternalID int64, from, to time.Time) ([]Activity, error)
	ListRecent(ctx context.Context, athleteExternalID int64, limit, skip int) ([]Activity, error)
	MostRecent(ctx context.Context, athleteExternalID int64) (*Activity, error)
	Count(ctx context.Context, athleteExternalID int64) (int, error)
	CountSince(ctx context.Context, athleteExternalID int64, since time.Time) (int, error)
	Totals(ctx context.Context, athleteExternalID int64) (count int, distanceMeters float64, err error)
}

// WeeklySummaryRepository captures the derived weekly-aggregate cache.
type WeeklySummaryRepository interface {
	Upsert(ctx context.Context, summary WeeklySummary) error
	Find(ctx context.Context, athleteExternalID int64, weekStart time.Time) (*WeeklySummary, error)
}

// GoalRepository captures weekly-goal persistence operations.
type GoalRepository interface {
	FindActive(ctx context.Context, athleteExternalID int64, weekStart time.Time) (*Goal, error)
	Create(ctx context.Context, goal Goal) error
	DeactivateWeek(ctx context.Context, athleteExternalID int64, weekStart time.Time) error
	UpdateProgress(ctx context.Context, goalID string, progress float64) error
	History(ctx context.Context, athleteExternalID int64, limit int) ([]Goal, error)
}
