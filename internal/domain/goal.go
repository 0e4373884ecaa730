package domain

import "time"

// GoalType selects what a weekly goal measures.
type GoalType string

const (
	GoalTypeDuration GoalType = "duration"
	GoalTypeDistance GoalType = "distance"
)

// Valid reports whether the goal type is a known value.
func (t GoalType) Valid() bool {
	return t == GoalTypeDuration || t == GoalTypeDistance
}

// Unit returns the display unit for the goal type.
func (t GoalType) Unit() string {
	if t == GoalTypeDuration {
		return "hours"
	}
	return "km"
}

// ActivityFilter narrows which activity types count toward a goal.
type ActivityFilter string

const (
	FilterAll  ActivityFilter = "all"
	FilterRun  ActivityFilter = "run"
	FilterRide ActivityFilter = "ride"
	FilterSwim ActivityFilter = "swim"
)

// filterTypes maps a filter to the upstream activity type tags it matches.
var filterTypes = map[ActivityFilter][]string{
	FilterRun:  {"Run", "TrailRun", "VirtualRun", "Treadmill"},
	FilterRide: {"Ride", "VirtualRide", "MountainBikeRide", "GravelRide", "EBikeRide"},
	FilterSwim: {"Swim", "OpenWaterSwim"},
}

// Valid reports whether the filter is a known value. Empty means all.
func (f ActivityFilter) Valid() bool {
	if f == FilterAll || f == "" {
		return true
	}
	_, ok := filterTypes[f]
	return ok
}

// Matches reports whether an activity type tag counts under this filter.
func (f ActivityFilter) Matches(activityType string) bool {
	if f == FilterAll || f == "" {
		return true
	}
	for _, t := range filterTypes[f] {
		if t == activityType {
			return true
		}
	}
	return false
}

// Goal is one weekly training goal. At most one Goal per (athlete, week)
// is active; setting a new goal deactivates the prior one rather than
// deleting it.
type Goal struct {
	ID                string
	AthleteExternalID int64
	Type              GoalType
	Target            float64
	Unit              string
	Filter            ActivityFilter
	WeekStart         time.Time
	Progress          float64
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
