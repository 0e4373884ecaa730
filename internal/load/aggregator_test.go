package load

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/trainload/internal/domain"
)

type stubActivities struct {
	domain.ActivityRepository
	activities []domain.Activity
	recent     []domain.Activity
	totalCount int
	totalDist  float64
}

func (s *stubActivities) FindInRange(_ context.Context, _ int64, from, to time.Time) ([]domain.Activity, error) {
	var out []domain.Activity
	for _, a := range s.activities {
		if a.StartDate.Before(from) || a.StartDate.After(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *stubActivities) ListRecent(_ context.Context, _ int64, limit, _ int) ([]domain.Activity, error) {
	if len(s.recent) > limit {
		return s.recent[:limit], nil
	}
	return s.recent, nil
}

func (s *stubActivities) Totals(_ context.Context, _ int64) (int, float64, error) {
	return s.totalCount, s.totalDist, nil
}

type stubSummaries struct {
	rows map[time.Time]domain.WeeklySummary
}

func (s *stubSummaries) Upsert(_ context.Context, summary domain.WeeklySummary) error {
	if s.rows == nil {
		s.rows = make(map[time.Time]domain.WeeklySummary)
	}
	s.rows[summary.WeekStart] = summary
	return nil
}

func (s *stubSummaries) Find(_ context.Context, _ int64, weekStart time.Time) (*domain.WeeklySummary, error) {
	summary, ok := s.rows[weekStart]
	if !ok {
		return nil, nil
	}
	return &summary, nil
}

func stressActivity(start time.Time, stress float64) domain.Activity {
	return domain.Activity{
		ExternalID:        start.UnixNano(),
		AthleteExternalID: 42,
		Type:              "Run",
		DistanceMeters:    10000,
		MovingTimeSec:     3600,
		StartDate:         start,
		StressScore:       &stress,
	}
}

// One activity every day: 50 stress for the 35 older days, 100 for the last
// 7. The acute average lands at 100, the chronic at 2450/42.
func rampWeek(now time.Time) []domain.Activity {
	var acts []domain.Activity
	for i := 0; i < 42; i++ {
		day := now.AddDate(0, 0, -i)
		stress := 50.0
		if i < 7 {
			stress = 100.0
		}
		acts = append(acts, stressActivity(day, stress))
	}
	return acts
}

func TestBalanceOverloadedRamp(t *testing.T) {
	now := time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC)
	agg := NewAggregator(&stubActivities{activities: rampWeek(now)}, &stubSummaries{}, zap.NewNop())

	balance, err := agg.Balance(context.Background(), 42, now)
	require.NoError(t, err)

	require.InDelta(t, 100.0, balance.ATL, 0.001)
	require.InDelta(t, 2450.0/42, balance.CTL, 0.001)
	require.InDelta(t, -41.667, balance.TSB, 0.001)
	require.Equal(t, FatigueOverloaded, balance.Fatigue)
	require.Equal(t, TrendBuilding, balance.Trend)
	require.Equal(t, 700.0, balance.WeeklyLoad)
	require.Equal(t, 171, balance.PercentOfAverage)
	require.Equal(t, 7, balance.ActivitiesLast7Days)
}

func TestBalanceNoActivities(t *testing.T) {
	now := time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC)
	agg := NewAggregator(&stubActivities{}, &stubSummaries{}, zap.NewNop())

	balance, err := agg.Balance(context.Background(), 42, now)
	require.NoError(t, err)

	require.Zero(t, balance.ATL)
	require.Zero(t, balance.CTL)
	require.Zero(t, balance.TSB)
	require.Equal(t, FatigueModerate, balance.Fatigue)
	require.Equal(t, 100, balance.PercentOfAverage)
	require.Equal(t, TrendMaintain, balance.Trend)
}

func TestBalanceFreshAfterTaper(t *testing.T) {
	now := time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC)
	// Heavy block 8..42 days ago, nothing in the last week.
	var acts []domain.Activity
	for i := 7; i < 42; i++ {
		acts = append(acts, stressActivity(now.AddDate(0, 0, -i), 80))
	}
	agg := NewAggregator(&stubActivities{activities: acts}, &stubSummaries{}, zap.NewNop())

	balance, err := agg.Balance(context.Background(), 42, now)
	require.NoError(t, err)

	require.Zero(t, balance.ATL)
	require.Greater(t, balance.TSB, 15.0)
	require.Equal(t, FatigueFresh, balance.Fatigue)
	require.Equal(t, TrendRecovering, balance.Trend)
	require.Equal(t, 0, balance.ActivitiesLast7Days)
}

func TestWeeklyTrendUsesCacheForCompletedWeeks(t *testing.T) {
	now := time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC) // Thursday
	currentStart := domain.WeekStart(now)
	prevStart := currentStart.AddDate(0, 0, -7)

	summaries := &stubSummaries{}
	require.NoError(t, summaries.Upsert(context.Background(), domain.WeeklySummary{
		AthleteExternalID: 42,
		WeekStart:         prevStart,
		WeekEnd:           domain.WeekEnd(prevStart),
		TotalDistance:     30000,
		TotalDuration:     10800,
		TotalActivities:   3,
	}))

	activities := &stubActivities{activities: []domain.Activity{
		stressActivity(currentStart.Add(10*time.Hour), 60),
	}}
	agg := NewAggregator(activities, summaries, zap.NewNop())

	trend, err := agg.WeeklyTrend(context.Background(), 42, now, 2)
	require.NoError(t, err)
	require.Len(t, trend, 2)

	require.Equal(t, prevStart, trend[0].WeekStart)
	require.Equal(t, 30000.0, trend[0].DistanceMeters)
	require.Equal(t, 3, trend[0].TotalActivities)
	require.False(t, trend[0].Current)

	require.Equal(t, currentStart, trend[1].WeekStart)
	require.Equal(t, 1, trend[1].TotalActivities)
	require.True(t, trend[1].Current)
}

func TestWeeklyTrendRejectsBadRange(t *testing.T) {
	agg := NewAggregator(&stubActivities{}, &stubSummaries{}, zap.NewNop())

	_, err := agg.WeeklyTrend(context.Background(), 42, time.Now(), 1)
	require.ErrorIs(t, err, ErrWeeksOutOfRange)

	_, err = agg.WeeklyTrend(context.Background(), 42, time.Now(), 13)
	require.ErrorIs(t, err, ErrWeeksOutOfRange)
}

func TestDashboardComparesWeeks(t *testing.T) {
	now := time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC)
	currentStart := domain.WeekStart(now)
	prevStart := currentStart.AddDate(0, 0, -7)

	activities := &stubActivities{
		activities: []domain.Activity{
			stressActivity(currentStart.Add(10*time.Hour), 60),
			stressActivity(currentStart.Add(34*time.Hour), 60),
			stressActivity(prevStart.Add(10*time.Hour), 60),
		},
		recent:     []domain.Activity{{ExternalID: 1}, {ExternalID: 2}},
		totalCount: 120,
		totalDist:  1.2e6,
	}
	agg := NewAggregator(activities, &stubSummaries{}, zap.NewNop())

	dash, err := agg.Dashboard(context.Background(), 42, now)
	require.NoError(t, err)

	require.Equal(t, 2, dash.Week.Current.TotalActivities)
	require.NotNil(t, dash.Week.Previous)
	require.Equal(t, 1, dash.Week.Previous.TotalActivities)
	require.NotNil(t, dash.Week.ActivityChangePct)
	require.Equal(t, 100, *dash.Week.ActivityChangePct)
	require.Len(t, dash.RecentActivities, 2)
	require.Equal(t, 120, dash.TotalActivities)
	require.Equal(t, 1.2e6, dash.TotalDistanceMeters)
}

func TestPercentChangeEdgeCases(t *testing.T) {
	require.Nil(t, percentChange(0, 0))

	up := percentChange(10, 0)
	require.NotNil(t, up)
	require.Equal(t, 100, *up)

	down := percentChange(5, 10)
	require.NotNil(t, down)
	require.Equal(t, -50, *down)
}
