package domain

import "time"

// Activity is the canonical record of one upstream workout stored in PostgreSQL.
// Identity is the externally assigned activity id; re-syncing the same id
// replaces the stored row in place.
type Activity struct {
	ExternalID        int64
	AthleteExternalID int64
	Name              string
	Type              string
	SportType         string
	DistanceMeters    float64
	MovingTimeSec     int
	ElapsedTimeSec    int
	ElevationGain     float64
	SufferScore       *float64
	AvgHeartrate      *float64
	MaxHeartrate      *float64
	AvgSpeed          float64
	MaxSpeed          float64
	StartDate         time.Time
	StartDateLocal    time.Time
	Timezone          string
	HasHeartrate      bool
	StressScore       *float64
	ZoneTimesSec      []int // seconds per HR zone, index 0..4 = zone 1..5
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Stress returns the cached stress value, or 0 when not yet computed.
func (a Activity) Stress() float64 {
	if a.StressScore == nil {
		return 0
	}
	return *a.StressScore
}

// WeeklySummary is a derived cache of per-week aggregates. It is always
// recomputed wholesale from Activity rows, never patched incrementally.
type WeeklySummary struct {
	AthleteExternalID int64
	WeekStart         time.Time
	WeekEnd           time.Time
	TotalDistance     float64 // meters
	TotalDuration     int     // seconds of moving time
	TotalElevation    float64 // meters
	TotalActivities   int
	TotalSufferScore  *float64
	AvgSufferScore    *float64
	ActivityTypes     map[string]int
	CalculatedAt      time.Time
}

// AggregateWeek folds activities into a WeeklySummary for the given window.
// The caller is responsible for only passing activities inside the window.
func AggregateWeek(athleteExternalID int64, weekStart, weekEnd time.Time, activities []Activity) WeeklySummary {
	summary := WeeklySummary{
		AthleteExternalID: athleteExternalID,
		WeekStart:         weekStart,
		WeekEnd:           weekEnd,
		TotalActivities:   len(activities),
		ActivityTypes:     make(map[string]int),
	}

	var sufferSum float64
	var sufferCount int
	for _, act := range activities {
		summary.TotalDistance += act.DistanceMeters
		summary.TotalDuration += act.MovingTimeSec
		summary.TotalElevation += act.ElevationGain
		summary.ActivityTypes[act.Type]++

		if act.SufferScore != nil && *act.SufferScore > 0 {
			sufferSum += *act.SufferScore
			sufferCount++
		}
	}

	if sufferCount > 0 {
		avg := float64(int(sufferSum/float64(sufferCount) + 0.5))
		summary.TotalSufferScore = &sufferSum
		summary.AvgSufferScore = &avg
	}
	return summary
}
