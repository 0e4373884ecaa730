// Package recovery recommends rest based on the most recent session's
// stress and heart-rate zone distribution.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"example.com/trainload/internal/domain"
)

// Recommendation is the advised next step.
type Recommendation string

const (
	Ready Recommendation = "ready"
	Light Recommendation = "light"
	Rest  Recommendation = "rest"
)

// Zone intensity thresholds: the share of time in zones 4 and 5 that marks a
// session as hard or very hard.
const (
	highIntensityHard     = 50.0
	highIntensityElevated = 30.0
)

// ZoneDistribution is percentage of session time per heart-rate zone,
// zone 1 first.
type ZoneDistribution [5]float64

// HighIntensityPercent is the combined share of zones 4 and 5.
func (z ZoneDistribution) HighIntensityPercent() float64 {
	return z[3] + z[4]
}

// LastActivity is the session the assessment is based on.
type LastActivity struct {
	ExternalID int64
	Name       string
	Type       string
	StartDate  time.Time
	Stress     float64
}

// Assessment is the full recovery read for one athlete.
type Assessment struct {
	Recommendation       Recommendation
	Message              string
	RequiredRestHours    float64
	ElapsedHours         float64
	RemainingRestHours   float64
	HighIntensityPercent float64
	ZoneDistribution     *ZoneDistribution
	LastActivity         *LastActivity
}

// Advisor assesses recovery state from stored activities.
type Advisor struct {
	activities domain.ActivityRepository
	logger     *zap.Logger
}

// NewAdvisor constructs an Advisor.
func NewAdvisor(activities domain.ActivityRepository, logger *zap.Logger) *Advisor {
	return &Advisor{activities: activities, logger: logger}
}

// Assess computes the recovery recommendation as of now. An athlete with no
// recorded activity is simply ready.
func (a *Advisor) Assess(ctx context.Context, athleteExternalID int64, now time.Time) (Assessment, error) {
	last, err := a.activities.MostRecent(ctx, athleteExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			return Assessment{
				Recommendation: Ready,
				Message:        "No recent activity on record. Train as planned.",
			}, nil
		}
		return Assessment{}, err
	}

	elapsed := now.Sub(last.StartDate).Hours()
	if elapsed < 0 {
		elapsed = 0
	}

	var zones *ZoneDistribution
	var highIntensity float64
	if dist, ok := AnalyzeZones(last.ZoneTimesSec); ok {
		zones = &dist
		highIntensity = dist.HighIntensityPercent()
	}

	required := RequiredRestHours(last.Stress(), highIntensity)
	remaining := required - elapsed
	if remaining < 0 {
		remaining = 0
	}

	rec := decide(elapsed, required, highIntensity)

	return Assessment{
		Recommendation:       rec,
		Message:              message(rec, remaining),
		RequiredRestHours:    required,
		ElapsedHours:         round1(elapsed),
		RemainingRestHours:   round1(remaining),
		HighIntensityPercent: highIntensity,
		ZoneDistribution:     zones,
		LastActivity: &LastActivity{
			ExternalID: last.ExternalID,
			Name:       last.Name,
			Type:       last.Type,
			StartDate:  last.StartDate,
			Stress:     last.Stress(),
		},
	}, nil
}

// AnalyzeZones converts per-zone seconds into percentages. It reports false
// when there is no usable zone data.
func AnalyzeZones(zoneTimesSec []int) (ZoneDistribution, bool) {
	var dist ZoneDistribution
	if len(zoneTimesSec) == 0 {
		return dist, false
	}

	var total int
	for _, sec := range zoneTimesSec {
		total += sec
	}
	if total <= 0 {
		return dist, false
	}

	for i, sec := range zoneTimesSec {
		if i >= len(dist) {
			break
		}
		dist[i] = round1(float64(sec) / float64(total) * 100)
	}
	return dist, true
}

// RequiredRestHours maps session stress to a rest requirement. Sessions with
// a heavy share of zone 4-5 time get extra hours on top of the stress tier.
func RequiredRestHours(stress, highIntensityPercent float64) float64 {
	// Tier bounds are exclusive: a session at exactly 300 needs 48 hours,
	// not 72.
	var hours float64
	switch {
	case stress > 300:
		hours = 72
	case stress > 200:
		hours = 48
	case stress > 150:
		hours = 36
	case stress > 100:
		hours = 24
	case stress > 50:
		hours = 12
	default:
		hours = 8
	}

	switch {
	case highIntensityPercent > highIntensityHard:
		hours += 12
	case highIntensityPercent > highIntensityElevated:
		hours += 6
	}
	return hours
}

func decide(elapsed, required, highIntensityPercent float64) Recommendation {
	switch {
	case elapsed >= required:
		return Ready
	case highIntensityPercent > highIntensityHard:
		return Rest
	case highIntensityPercent > highIntensityElevated:
		return Light
	case elapsed >= required/2:
		return Light
	default:
		return Rest
	}
}

func message(rec Recommendation, remainingHours float64) string {
	switch rec {
	case Ready:
		return "Fully recovered. Train as planned."
	case Light:
		return "Partially recovered. Keep the next session easy."
	default:
		return fmt.Sprintf("Still recovering from the last session. About %.0f more hours of rest advised.", remainingHours)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
