// Package load derives acute and chronic training-load metrics from stored
// activities.
package load

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"example.com/trainload/internal/domain"
)

const (
	// chronicWindowDays is the fitness (CTL) lookback.
	chronicWindowDays = 42
	// acuteWindowDays is the fatigue (ATL) lookback.
	acuteWindowDays = 7

	recentActivityLimit = 10
)

// Trend weeks outside this range are rejected rather than clamped so the
// caller can report the bad input.
const (
	MinTrendWeeks     = 2
	MaxTrendWeeks     = 12
	DefaultTrendWeeks = 6
)

// ErrWeeksOutOfRange reports a trend request outside [MinTrendWeeks, MaxTrendWeeks].
var ErrWeeksOutOfRange = errors.New("weeks out of range")

// Fatigue is the qualitative read of the stress balance.
type Fatigue string

const (
	FatigueFresh      Fatigue = "fresh"
	FatigueModerate   Fatigue = "moderate"
	FatigueFatigued   Fatigue = "fatigued"
	FatigueOverloaded Fatigue = "overloaded"
)

// Trend compares the current weekly load against the chronic average.
type Trend string

const (
	TrendBuilding   Trend = "building"
	TrendMaintain   Trend = "maintaining"
	TrendRecovering Trend = "recovering"
)

// Balance is the acute/chronic stress picture for one athlete.
//
// ATL and CTL are simple trailing daily averages over 7 and 42 days; TSB
// (training stress balance) is their exact difference, not a difference of
// rounded values.
type Balance struct {
	ATL                 float64
	CTL                 float64
	TSB                 float64
	Fatigue             Fatigue
	Trend               Trend
	WeeklyLoad          float64
	AvgWeeklyLoad       float64
	PercentOfAverage    int
	ActivitiesLast7Days int
}

// WeekVolume is one point of the weekly volume trend.
type WeekVolume struct {
	WeekStart       time.Time
	WeekEnd         time.Time
	DistanceMeters  float64
	DurationSec     int
	ElevationGain   float64
	TotalActivities int
	Current         bool
}

// WeekComparison puts the running week next to the completed one before it.
// Change percentages are nil when both weeks are zero for that metric.
type WeekComparison struct {
	Current           domain.WeeklySummary
	Previous          *domain.WeeklySummary
	DistanceChangePct *int
	DurationChangePct *int
	ActivityChangePct *int
}

// Dashboard is the combined overview served on the landing endpoint.
type Dashboard struct {
	Week                WeekComparison
	RecentActivities    []domain.Activity
	TotalActivities     int
	TotalDistanceMeters float64
}

// Aggregator computes load metrics on demand. The current week is always
// computed live from activity rows; only completed weeks come from the
// summary cache.
type Aggregator struct {
	activities domain.ActivityRepository
	summaries  domain.WeeklySummaryRepository
	logger     *zap.Logger
}

// NewAggregator constructs an Aggregator.
func NewAggregator(activities domain.ActivityRepository, summaries domain.WeeklySummaryRepository, logger *zap.Logger) *Aggregator {
	return &Aggregator{activities: activities, summaries: summaries, logger: logger}
}

// Balance computes the stress balance as of now. Days with no activity count
// as zero load, so a long gap pushes both averages down instead of being
// skipped.
func (a *Aggregator) Balance(ctx context.Context, athleteExternalID int64, now time.Time) (Balance, error) {
	from := midnight(now.AddDate(0, 0, -(chronicWindowDays - 1)))

	activities, err := a.activities.FindInRange(ctx, athleteExternalID, from, now)
	if err != nil {
		return Balance{}, err
	}

	daily := make([]float64, chronicWindowDays)
	acuteFrom := midnight(now.AddDate(0, 0, -(acuteWindowDays - 1)))
	var acuteCount int
	for _, act := range activities {
		idx := dayIndex(from, act.StartDate.In(now.Location()))
		if idx < 0 || idx >= chronicWindowDays {
			continue
		}
		daily[idx] += act.Stress()
		if !act.StartDate.Before(acuteFrom) {
			acuteCount++
		}
	}

	var chronicSum, acuteSum float64
	for i, load := range daily {
		chronicSum += load
		if i >= chronicWindowDays-acuteWindowDays {
			acuteSum += load
		}
	}

	atl := acuteSum / acuteWindowDays
	ctl := chronicSum / chronicWindowDays
	tsb := ctl - atl

	weeklyLoad := math.Round(acuteSum)
	avgWeeklyLoad := ctl * acuteWindowDays

	percent := 100
	if avgWeeklyLoad > 0 {
		percent = int(math.Round(weeklyLoad / avgWeeklyLoad * 100))
	}

	return Balance{
		ATL:                 atl,
		CTL:                 ctl,
		TSB:                 tsb,
		Fatigue:             fatigueFor(tsb),
		Trend:               trendFor(percent),
		WeeklyLoad:          weeklyLoad,
		AvgWeeklyLoad:       avgWeeklyLoad,
		PercentOfAverage:    percent,
		ActivitiesLast7Days: acuteCount,
	}, nil
}

// WeeklyTrend returns per-week volume for the trailing weeks, oldest first,
// ending with the running week. Completed weeks come from the summary cache
// when present and are computed live otherwise.
func (a *Aggregator) WeeklyTrend(ctx context.Context, athleteExternalID int64, now time.Time, weeks int) ([]WeekVolume, error) {
	if weeks < MinTrendWeeks || weeks > MaxTrendWeeks {
		return nil, ErrWeeksOutOfRange
	}

	currentStart := domain.WeekStart(now)
	out := make([]WeekVolume, 0, weeks)
	for i := weeks - 1; i >= 0; i-- {
		weekStart := currentStart.AddDate(0, 0, -7*i)
		current := i == 0

		summary, err := a.weekSummary(ctx, athleteExternalID, weekStart, current)
		if err != nil {
			return nil, err
		}

		out = append(out, WeekVolume{
			WeekStart:       summary.WeekStart,
			WeekEnd:         summary.WeekEnd,
			DistanceMeters:  summary.TotalDistance,
			DurationSec:     summary.TotalDuration,
			ElevationGain:   summary.TotalElevation,
			TotalActivities: summary.TotalActivities,
			Current:         current,
		})
	}
	return out, nil
}

// Dashboard assembles the overview: this week against last, the most recent
// activities, and all-time totals.
func (a *Aggregator) Dashboard(ctx context.Context, athleteExternalID int64, now time.Time) (Dashboard, error) {
	currentStart := domain.WeekStart(now)

	currentWeek, err := a.weekSummary(ctx, athleteExternalID, currentStart, true)
	if err != nil {
		return Dashboard{}, err
	}

	previousWeek, err := a.weekSummary(ctx, athleteExternalID, currentStart.AddDate(0, 0, -7), false)
	if err != nil {
		return Dashboard{}, err
	}

	recent, err := a.activities.ListRecent(ctx, athleteExternalID, recentActivityLimit, 0)
	if err != nil {
		return Dashboard{}, err
	}

	totalCount, totalDistance, err := a.activities.Totals(ctx, athleteExternalID)
	if err != nil {
		return Dashboard{}, err
	}

	comparison := WeekComparison{
		Current:           currentWeek,
		Previous:          &previousWeek,
		DistanceChangePct: percentChange(currentWeek.TotalDistance, previousWeek.TotalDistance),
		DurationChangePct: percentChange(float64(currentWeek.TotalDuration), float64(previousWeek.TotalDuration)),
		ActivityChangePct: percentChange(float64(currentWeek.TotalActivities), float64(previousWeek.TotalActivities)),
	}

	return Dashboard{
		Week:                comparison,
		RecentActivities:    recent,
		TotalActivities:     totalCount,
		TotalDistanceMeters: totalDistance,
	}, nil
}

// Recent returns stored activities newest first, paged by limit and skip,
// along with the athlete's total activity count.
func (a *Aggregator) Recent(ctx context.Context, athleteExternalID int64, limit, skip int) ([]domain.Activity, int, error) {
	items, err := a.activities.ListRecent(ctx, athleteExternalID, limit, skip)
	if err != nil {
		return nil, 0, err
	}
	total, err := a.activities.Count(ctx, athleteExternalID)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// weekSummary resolves one week's aggregates. The running week and cache
// misses are computed from activity rows directly.
func (a *Aggregator) weekSummary(ctx context.Context, athleteExternalID int64, weekStart time.Time, live bool) (domain.WeeklySummary, error) {
	if !live {
		cached, err := a.summaries.Find(ctx, athleteExternalID, weekStart)
		if err != nil {
			return domain.WeeklySummary{}, err
		}
		if cached != nil {
			return *cached, nil
		}
	}

	weekEnd := domain.WeekEnd(weekStart)
	activities, err := a.activities.FindInRange(ctx, athleteExternalID, weekStart, weekEnd)
	if err != nil {
		return domain.WeeklySummary{}, err
	}
	return domain.AggregateWeek(athleteExternalID, weekStart, weekEnd, activities), nil
}

func fatigueFor(tsb float64) Fatigue {
	switch {
	case tsb > 15:
		return FatigueFresh
	case tsb > -10:
		return FatigueModerate
	case tsb > -30:
		return FatigueFatigued
	default:
		return FatigueOverloaded
	}
}

func trendFor(percentOfAverage int) Trend {
	switch {
	case percentOfAverage > 110:
		return TrendBuilding
	case percentOfAverage < 90:
		return TrendRecovering
	default:
		return TrendMaintain
	}
}

func percentChange(current, previous float64) *int {
	if previous == 0 {
		if current > 0 {
			v := 100
			return &v
		}
		return nil
	}
	v := int(math.Round((current - previous) / previous * 100))
	return &v
}

// midnight truncates t to 00:00 in its own location.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dayIndex counts calendar days from the day of `from` to the day of `t`.
// It compares civil dates so a DST shift cannot move an activity into the
// wrong bucket.
func dayIndex(from, t time.Time) int {
	return int(civilDate(t).Sub(civilDate(from)).Hours() / 24)
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
