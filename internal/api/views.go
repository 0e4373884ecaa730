package api

import (
	"time"

	"example.com/trainload/internal/domain"
	"example.com/trainload/internal/goals"
	"example.com/trainload/internal/load"
	"example.com/trainload/internal/recovery"
)

// SyncResponse reports what a bulk sync did.
type SyncResponse struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	DaysBack int `json:"days_back"`
}

// ActivityView exposes one stored activity.
type ActivityView struct {
	ActivityID     int64     `json:"activity_id"`
	AthleteID      int64     `json:"athlete_id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	SportType      string    `json:"sport_type"`
	DistanceMeters float64   `json:"distance_meters"`
	MovingTimeSec  int       `json:"moving_time_sec"`
	ElapsedTimeSec int       `json:"elapsed_time_sec"`
	ElevationGain  float64   `json:"elevation_gain"`
	SufferScore    *float64  `json:"suffer_score,omitempty"`
	AvgHeartrate   *float64  `json:"avg_heartrate,omitempty"`
	MaxHeartrate   *float64  `json:"max_heartrate,omitempty"`
	AvgSpeed       float64   `json:"avg_speed"`
	MaxSpeed       float64   `json:"max_speed"`
	StartDate      time.Time `json:"start_date"`
	StartDateLocal time.Time `json:"start_date_local"`
	Timezone       string    `json:"timezone"`
	HasHeartrate   bool      `json:"has_heartrate"`
	StressScore    *float64  `json:"stress_score,omitempty"`
	ZoneTimesSec   []int     `json:"zone_times_sec,omitempty"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items   []ActivityView `json:"items"`
	Limit   int            `json:"limit"`
	Skip    int            `json:"skip"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

// BalanceView is the acute/chronic load picture.
type BalanceView struct {
	ATL                 float64 `json:"atl"`
	CTL                 float64 `json:"ctl"`
	TSB                 float64 `json:"tsb"`
	Fatigue             string  `json:"fatigue"`
	Trend               string  `json:"trend"`
	WeeklyLoad          float64 `json:"weekly_load"`
	AvgWeeklyLoad       float64 `json:"avg_weekly_load"`
	PercentOfAverage    int     `json:"percent_of_average"`
	ActivitiesLast7Days int     `json:"activities_last_7_days"`
}

// RecoveryView reports the rest recommendation.
type RecoveryView struct {
	Recommendation       string            `json:"recommendation"`
	Message              string            `json:"message"`
	RequiredRestHours    float64           `json:"required_rest_hours"`
	ElapsedHours         float64           `json:"elapsed_hours"`
	RemainingRestHours   float64           `json:"remaining_rest_hours"`
	HighIntensityPercent float64           `json:"high_intensity_percent"`
	ZoneDistribution     []float64         `json:"zone_distribution,omitempty"`
	LastActivity         *LastActivityView `json:"last_activity,omitempty"`
}

// LastActivityView is the session a recovery read is based on.
type LastActivityView struct {
	ActivityID int64     `json:"activity_id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	StartDate  time.Time `json:"start_date"`
	Stress     float64   `json:"stress"`
}

// WeekVolumeView is one point of the weekly volume trend.
type WeekVolumeView struct {
	WeekStart       time.Time `json:"week_start"`
	WeekEnd         time.Time `json:"week_end"`
	DistanceMeters  float64   `json:"distance_meters"`
	DurationSec     int       `json:"duration_sec"`
	ElevationGain   float64   `json:"elevation_gain"`
	TotalActivities int       `json:"total_activities"`
	Current         bool      `json:"current"`
}

// WeeklyTrendResponse packages the trend points, oldest first.
type WeeklyTrendResponse struct {
	Weeks []WeekVolumeView `json:"weeks"`
}

// SummaryView exposes one weekly aggregate.
type SummaryView struct {
	WeekStart        time.Time      `json:"week_start"`
	WeekEnd          time.Time      `json:"week_end"`
	TotalDistance    float64        `json:"total_distance_meters"`
	TotalDuration    int            `json:"total_duration_sec"`
	TotalElevation   float64        `json:"total_elevation_gain"`
	TotalActivities  int            `json:"total_activities"`
	TotalSufferScore *float64       `json:"total_suffer_score,omitempty"`
	AvgSufferScore   *float64       `json:"avg_suffer_score,omitempty"`
	ActivityTypes    map[string]int `json:"activity_types"`
}

// WeekComparisonView puts the running week next to the one before it.
type WeekComparisonView struct {
	Current           SummaryView  `json:"current"`
	Previous          *SummaryView `json:"previous,omitempty"`
	DistanceChangePct *int         `json:"distance_change_pct,omitempty"`
	DurationChangePct *int         `json:"duration_change_pct,omitempty"`
	ActivityChangePct *int         `json:"activity_change_pct,omitempty"`
}

// DashboardView is the combined landing overview.
type DashboardView struct {
	Week                WeekComparisonView `json:"week"`
	RecentActivities    []ActivityView     `json:"recent_activities"`
	TotalActivities     int                `json:"total_activities"`
	TotalDistanceMeters float64            `json:"total_distance_meters"`
}

// SetGoalRequest is the payload for POST /v1/goals.
type SetGoalRequest struct {
	Type   string  `json:"type"`
	Target float64 `json:"target"`
	Filter string  `json:"filter"`
}

// GoalView is a goal annotated with live progress.
type GoalView struct {
	GoalID          string    `json:"goal_id"`
	Type            string    `json:"type"`
	Target          float64   `json:"target"`
	Unit            string    `json:"unit"`
	Filter          string    `json:"filter"`
	WeekStart       time.Time `json:"week_start"`
	Progress        float64   `json:"progress"`
	PercentComplete int       `json:"percent_complete"`
	ExpectedPercent int       `json:"expected_percent"`
	Pace            string    `json:"pace"`
	Completed       bool      `json:"completed"`
	Message         string    `json:"message"`
}

// BurnoutView flags a streak of heavily overachieved weeks.
type BurnoutView struct {
	StreakWeeks int    `json:"streak_weeks"`
	Message     string `json:"message"`
}

// GoalStatusResponse packages the current goal with an optional warning.
type GoalStatusResponse struct {
	Goal    GoalView     `json:"goal"`
	Burnout *BurnoutView `json:"burnout,omitempty"`
}

// GoalRecordView is one past goal with its final completion.
type GoalRecordView struct {
	GoalID          string    `json:"goal_id"`
	Type            string    `json:"type"`
	Target          float64   `json:"target"`
	Unit            string    `json:"unit"`
	Filter          string    `json:"filter"`
	WeekStart       time.Time `json:"week_start"`
	Progress        float64   `json:"progress"`
	PercentComplete int       `json:"percent_complete"`
	Completed       bool      `json:"completed"`
}

// GoalHistoryResponse packages history entries, newest first.
type GoalHistoryResponse struct {
	Items []GoalRecordView `json:"items"`
}

func toActivityView(act domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:     act.ExternalID,
		AthleteID:      act.AthleteExternalID,
		Name:           act.Name,
		Type:           act.Type,
		SportType:      act.SportType,
		DistanceMeters: act.DistanceMeters,
		MovingTimeSec:  act.MovingTimeSec,
		ElapsedTimeSec: act.ElapsedTimeSec,
		ElevationGain:  act.ElevationGain,
		SufferScore:    act.SufferScore,
		AvgHeartrate:   act.AvgHeartrate,
		MaxHeartrate:   act.MaxHeartrate,
		AvgSpeed:       act.AvgSpeed,
		MaxSpeed:       act.MaxSpeed,
		StartDate:      act.StartDate,
		StartDateLocal: act.StartDateLocal,
		Timezone:       act.Timezone,
		HasHeartrate:   act.HasHeartrate,
		StressScore:    act.StressScore,
		ZoneTimesSec:   act.ZoneTimesSec,
	}
}

func toBalanceView(b load.Balance) BalanceView {
	return BalanceView{
		ATL:                 b.ATL,
		CTL:                 b.CTL,
		TSB:                 b.TSB,
		Fatigue:             string(b.Fatigue),
		Trend:               string(b.Trend),
		WeeklyLoad:          b.WeeklyLoad,
		AvgWeeklyLoad:       b.AvgWeeklyLoad,
		PercentOfAverage:    b.PercentOfAverage,
		ActivitiesLast7Days: b.ActivitiesLast7Days,
	}
}

func toRecoveryView(a recovery.Assessment) RecoveryView {
	view := RecoveryView{
		Recommendation:       string(a.Recommendation),
		Message:              a.Message,
		RequiredRestHours:    a.RequiredRestHours,
		ElapsedHours:         a.ElapsedHours,
		RemainingRestHours:   a.RemainingRestHours,
		HighIntensityPercent: a.HighIntensityPercent,
	}
	if a.ZoneDistribution != nil {
		view.ZoneDistribution = a.ZoneDistribution[:]
	}
	if a.LastActivity != nil {
		view.LastActivity = &LastActivityView{
			ActivityID: a.LastActivity.ExternalID,
			Name:       a.LastActivity.Name,
			Type:       a.LastActivity.Type,
			StartDate:  a.LastActivity.StartDate,
			Stress:     a.LastActivity.Stress,
		}
	}
	return view
}

func toWeekVolumeView(week load.WeekVolume) WeekVolumeView {
	return WeekVolumeView{
		WeekStart:       week.WeekStart,
		WeekEnd:         week.WeekEnd,
		DistanceMeters:  week.DistanceMeters,
		DurationSec:     week.DurationSec,
		ElevationGain:   week.ElevationGain,
		TotalActivities: week.TotalActivities,
		Current:         week.Current,
	}
}

func toSummaryView(s domain.WeeklySummary) SummaryView {
	return SummaryView{
		WeekStart:        s.WeekStart,
		WeekEnd:          s.WeekEnd,
		TotalDistance:    s.TotalDistance,
		TotalDuration:    s.TotalDuration,
		TotalElevation:   s.TotalElevation,
		TotalActivities:  s.TotalActivities,
		TotalSufferScore: s.TotalSufferScore,
		AvgSufferScore:   s.AvgSufferScore,
		ActivityTypes:    s.ActivityTypes,
	}
}

func toDashboardView(d load.Dashboard) DashboardView {
	week := WeekComparisonView{
		Current:           toSummaryView(d.Week.Current),
		DistanceChangePct: d.Week.DistanceChangePct,
		DurationChangePct: d.Week.DurationChangePct,
		ActivityChangePct: d.Week.ActivityChangePct,
	}
	if d.Week.Previous != nil {
		prev := toSummaryView(*d.Week.Previous)
		week.Previous = &prev
	}

	recent := make([]ActivityView, 0, len(d.RecentActivities))
	for _, act := range d.RecentActivities {
		recent = append(recent, toActivityView(act))
	}
	return DashboardView{
		Week:                week,
		RecentActivities:    recent,
		TotalActivities:     d.TotalActivities,
		TotalDistanceMeters: d.TotalDistanceMeters,
	}
}

func toGoalView(s goals.Status) GoalView {
	return GoalView{
		GoalID:          s.Goal.ID,
		Type:            string(s.Goal.Type),
		Target:          s.Goal.Target,
		Unit:            s.Goal.Unit,
		Filter:          string(s.Goal.Filter),
		WeekStart:       s.Goal.WeekStart,
		Progress:        s.Goal.Progress,
		PercentComplete: s.PercentComplete,
		ExpectedPercent: s.ExpectedPercent,
		Pace:            string(s.Pace),
		Completed:       s.Completed,
		Message:         s.Message,
	}
}

func toGoalRecordView(r goals.Record) GoalRecordView {
	return GoalRecordView{
		GoalID:          r.Goal.ID,
		Type:            string(r.Goal.Type),
		Target:          r.Goal.Target,
		Unit:            r.Goal.Unit,
		Filter:          string(r.Goal.Filter),
		WeekStart:       r.Goal.WeekStart,
		Progress:        r.Goal.Progress,
		PercentComplete: r.PercentComplete,
		Completed:       r.Completed,
	}
}
