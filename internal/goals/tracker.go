// Package goals manages weekly training goals: setting them, tracking
// progress against matching activities, and flagging overreaching streaks.
package goals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/trainload/internal/domain"
)

const (
	// overachievePercent marks a week as well past its target.
	overachievePercent = 130
	// onTrackSlackPercent is how far behind the expected pace still counts
	// as on track.
	onTrackSlackPercent = 10

	// burnoutStreakThreshold is how many consecutive overachieved weeks
	// trigger a warning.
	burnoutStreakThreshold = 2
	burnoutLookbackWeeks   = 4

	DefaultHistoryWeeks = 8
	MaxHistoryWeeks     = 52
)

// ErrInvalidGoal reports a goal request that failed validation.
var ErrInvalidGoal = errors.New("invalid goal")

// Pace compares actual progress against where the week should be by now.
type Pace string

const (
	PaceOverachieving Pace = "overachieving"
	PaceOnTrack       Pace = "on_track"
	PaceBehind        Pace = "behind"
)

// Status is a goal annotated with live progress tracking.
type Status struct {
	Goal            domain.Goal
	PercentComplete int
	ExpectedPercent int
	Pace            Pace
	Completed       bool
	Message         string
}

// Record is a past goal annotated with its final completion.
type Record struct {
	Goal            domain.Goal
	PercentComplete int
	Completed       bool
}

// BurnoutWarning flags a streak of heavily overachieved weeks.
type BurnoutWarning struct {
	StreakWeeks int
	Message     string
}

// Tracker is the weekly goal service.
type Tracker struct {
	goals      domain.GoalRepository
	activities domain.ActivityRepository
	logger     *zap.Logger
	now        func() time.Time
}

// NewTracker constructs a Tracker.
func NewTracker(goals domain.GoalRepository, activities domain.ActivityRepository, logger *zap.Logger) *Tracker {
	return &Tracker{
		goals:      goals,
		activities: activities,
		logger:     logger,
		now:        time.Now,
	}
}

// CurrentGoal returns this week's goal with fresh progress. When no goal is
// set for the running week, the most recent prior goal is carried over into
// it. domain.ErrNoGoal is returned when the athlete never set one.
func (t *Tracker) CurrentGoal(ctx context.Context, athleteExternalID int64) (Status, error) {
	now := t.now()
	weekStart := domain.WeekStart(now)

	goal, err := t.goals.FindActive(ctx, athleteExternalID, weekStart)
	if err != nil {
		if !errors.Is(err, domain.ErrNoGoal) {
			return Status{}, err
		}
		goal, err = t.carryOver(ctx, athleteExternalID, weekStart)
		if err != nil {
			return Status{}, err
		}
	}

	progress, err := t.progressFor(ctx, *goal)
	if err != nil {
		return Status{}, err
	}
	if progress != goal.Progress {
		if err := t.goals.UpdateProgress(ctx, goal.ID, progress); err != nil {
			return Status{}, err
		}
		goal.Progress = progress
	}

	return t.status(*goal, now), nil
}

// SetGoal replaces this week's goal. The prior goal for the week, if any,
// is deactivated and kept for history.
func (t *Tracker) SetGoal(ctx context.Context, athleteExternalID int64, goalType domain.GoalType, target float64, filter domain.ActivityFilter) (Status, error) {
	if !goalType.Valid() {
		return Status{}, fmt.Errorf("%w: unknown type %q", ErrInvalidGoal, goalType)
	}
	if target <= 0 {
		return Status{}, fmt.Errorf("%w: target must be positive", ErrInvalidGoal)
	}
	if !filter.Valid() {
		return Status{}, fmt.Errorf("%w: unknown filter %q", ErrInvalidGoal, filter)
	}
	if filter == "" {
		filter = domain.FilterAll
	}

	now := t.now()
	weekStart := domain.WeekStart(now)

	if err := t.goals.DeactivateWeek(ctx, athleteExternalID, weekStart); err != nil {
		return Status{}, err
	}

	goal := domain.Goal{
		ID:                uuid.NewString(),
		AthleteExternalID: athleteExternalID,
		Type:              goalType,
		Target:            target,
		Unit:              goalType.Unit(),
		Filter:            filter,
		WeekStart:         weekStart,
		Active:            true,
	}

	progress, err := t.progressFor(ctx, goal)
	if err != nil {
		return Status{}, err
	}
	goal.Progress = progress

	if err := t.goals.Create(ctx, goal); err != nil {
		return Status{}, err
	}

	t.logger.Info("weekly goal set",
		zap.Int64("athlete_id", athleteExternalID),
		zap.String("type", string(goalType)),
		zap.Float64("target", target))

	return t.status(goal, now), nil
}

// History returns the athlete's past goals, newest first, annotated with
// their completion. weeks is clamped to [1, MaxHistoryWeeks]; zero or
// negative means the default.
func (t *Tracker) History(ctx context.Context, athleteExternalID int64, weeks int) ([]Record, error) {
	if weeks <= 0 {
		weeks = DefaultHistoryWeeks
	}
	if weeks > MaxHistoryWeeks {
		weeks = MaxHistoryWeeks
	}

	goals, err := t.goals.History(ctx, athleteExternalID, weeks)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(goals))
	for _, goal := range goals {
		percent := percentComplete(goal)
		records = append(records, Record{
			Goal:            goal,
			PercentComplete: percent,
			Completed:       percent >= 100,
		})
	}
	return records, nil
}

// UpdateProgress recomputes and persists progress for the current week's
// goal. It is a no-op when the athlete has no goal.
func (t *Tracker) UpdateProgress(ctx context.Context, athleteExternalID int64) error {
	weekStart := domain.WeekStart(t.now())

	goal, err := t.goals.FindActive(ctx, athleteExternalID, weekStart)
	if err != nil {
		if errors.Is(err, domain.ErrNoGoal) {
			return nil
		}
		return err
	}

	progress, err := t.progressFor(ctx, *goal)
	if err != nil {
		return err
	}
	if progress == goal.Progress {
		return nil
	}
	return t.goals.UpdateProgress(ctx, goal.ID, progress)
}

// CheckBurnout inspects the latest weeks for a streak of heavily
// overachieved goals. It returns nil when there is nothing to warn about.
func (t *Tracker) CheckBurnout(ctx context.Context, athleteExternalID int64) (*BurnoutWarning, error) {
	goals, err := t.goals.History(ctx, athleteExternalID, burnoutLookbackWeeks)
	if err != nil {
		return nil, err
	}

	streak := 0
	for _, goal := range goals {
		if percentComplete(goal) < overachievePercent {
			break
		}
		streak++
	}
	if streak < burnoutStreakThreshold {
		return nil, nil
	}

	return &BurnoutWarning{
		StreakWeeks: streak,
		Message:     fmt.Sprintf("Goal exceeded %d%% for %d weeks in a row. Consider an easier week.", overachievePercent, streak),
	}, nil
}

// carryOver clones last week's active goal into the new week. Only the
// directly preceding week counts: an athlete whose last goal is older, or
// was deactivated, starts the week with no goal.
func (t *Tracker) carryOver(ctx context.Context, athleteExternalID int64, weekStart time.Time) (*domain.Goal, error) {
	prior, err := t.goals.FindActive(ctx, athleteExternalID, weekStart.AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}

	goal := domain.Goal{
		ID:                uuid.NewString(),
		AthleteExternalID: athleteExternalID,
		Type:              prior.Type,
		Target:            prior.Target,
		Unit:              prior.Unit,
		Filter:            prior.Filter,
		WeekStart:         weekStart,
		Active:            true,
	}
	if err := t.goals.Create(ctx, goal); err != nil {
		return nil, err
	}

	t.logger.Info("goal carried over into new week",
		zap.Int64("athlete_id", athleteExternalID),
		zap.Time("week_start", weekStart))
	return &goal, nil
}

// progressFor sums the matching activities inside the goal's week window.
func (t *Tracker) progressFor(ctx context.Context, goal domain.Goal) (float64, error) {
	activities, err := t.activities.FindInRange(ctx, goal.AthleteExternalID, goal.WeekStart, domain.WeekEnd(goal.WeekStart))
	if err != nil {
		return 0, err
	}

	var total float64
	for _, act := range activities {
		if !goal.Filter.Matches(act.Type) {
			continue
		}
		switch goal.Type {
		case domain.GoalTypeDuration:
			total += float64(act.MovingTimeSec) / 3600
		case domain.GoalTypeDistance:
			total += act.DistanceMeters / 1000
		}
	}
	return round2(total), nil
}

func (t *Tracker) status(goal domain.Goal, now time.Time) Status {
	percent := percentComplete(goal)
	expected := expectedPercent(now)
	pace := paceFor(percent, expected)

	return Status{
		Goal:            goal,
		PercentComplete: percent,
		ExpectedPercent: int(math.Round(expected)),
		Pace:            pace,
		Completed:       percent >= 100,
		Message:         paceMessage(pace),
	}
}

func percentComplete(goal domain.Goal) int {
	if goal.Target <= 0 {
		return 0
	}
	return int(math.Round(goal.Progress / goal.Target * 100))
}

// expectedPercent is how far through the week we are, with Monday=1 and
// Sunday=7. Unrounded, so the on-track boundary is not shifted by the
// display rounding.
func expectedPercent(now time.Time) float64 {
	return float64(domain.ISOWeekday(now)) / 7 * 100
}

func paceFor(percent int, expected float64) Pace {
	switch {
	case percent >= overachievePercent:
		return PaceOverachieving
	case float64(percent) >= expected-onTrackSlackPercent:
		return PaceOnTrack
	default:
		return PaceBehind
	}
}

func paceMessage(pace Pace) string {
	switch pace {
	case PaceOverachieving:
		return "Well ahead of target. Mind your recovery."
	case PaceOnTrack:
		return "On track for the week."
	default:
		return "Behind pace for the week. A solid session would catch you up."
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
