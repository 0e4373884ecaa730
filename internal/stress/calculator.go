// Package stress converts one activity into a single training-stress value.
//
// The heart-rate formula is the standard hrTSS:
//
//	hrTSS = (duration × HRavg × IF) / (LTHR × 3600) × 100
//
// where IF = HRavg / LTHR and LTHR is the lactate threshold heart rate,
// estimated as 85% of max HR when the athlete has no configured zones.
package stress

import (
	"math"

	"example.com/trainload/internal/domain"
)

const (
	// defaultMaxHR is used to estimate LTHR when neither the athlete nor
	// the activity carries a max heart rate.
	defaultMaxHR = 190
	// sufferScoreFactor maps the provider's relative-effort scale onto the
	// stress scale. Approximate by nature; tuned against observed data.
	sufferScoreFactor = 0.9
	// assumedIF is the moderate intensity factor assumed when an activity
	// has neither heart-rate data nor a provider effort score.
	assumedIF = 0.75
)

// Result carries the computed stress value and how it was derived.
type Result struct {
	Stress          float64
	IntensityFactor float64
	LTHR            int
	Method          Method
}

// Method identifies which fallback tier produced the value.
type Method string

const (
	MethodHeartrate   Method = "heartrate"
	MethodSufferScore Method = "suffer_score"
	MethodDuration    Method = "duration"
)

// EstimateLTHR estimates lactate threshold heart rate as 85% of max HR.
func EstimateLTHR(maxHR float64) int {
	return int(math.Round(maxHR * 0.85))
}

// AthleteLTHR resolves the LTHR for an athlete: the configured zone-4 lower
// bound when zones are present, otherwise an estimate from the activity's
// max heart rate (or a default when that is missing too).
func AthleteLTHR(profile domain.AthleteProfile, activityMaxHR *float64) int {
	if z4 := profile.Zone4Min(); z4 > 0 {
		return z4
	}
	maxHR := float64(defaultMaxHR)
	if activityMaxHR != nil && *activityMaxHR > 0 {
		maxHR = *activityMaxHR
	}
	return EstimateLTHR(maxHR)
}

// Compute derives the stress value for an activity. It is total: it never
// fails, and the result is always >= 0, rounded to one decimal.
//
// Tiers, in priority order: heart-rate data, provider effort score, duration
// at an assumed moderate intensity.
func Compute(activity domain.Activity, profile domain.AthleteProfile) Result {
	if activity.HasHeartrate && activity.AvgHeartrate != nil && *activity.AvgHeartrate > 0 {
		lthr := AthleteLTHR(profile, activity.MaxHeartrate)
		if lthr > 0 {
			return fromHeartrate(activity.MovingTimeSec, *activity.AvgHeartrate, lthr)
		}
		// An unusable LTHR falls through to the next tier rather than
		// dividing by zero.
	}

	if activity.SufferScore != nil && *activity.SufferScore > 0 {
		return fromSufferScore(*activity.SufferScore)
	}

	return fromDuration(activity.MovingTimeSec)
}

func fromHeartrate(durationSec int, avgHR float64, lthr int) Result {
	if durationSec <= 0 {
		return Result{LTHR: lthr, Method: MethodHeartrate}
	}

	intensity := avgHR / float64(lthr)
	tss := (float64(durationSec) * avgHR * intensity) / (float64(lthr) * 3600) * 100

	return Result{
		Stress:          round1(tss),
		IntensityFactor: math.Round(intensity*100) / 100,
		LTHR:            lthr,
		Method:          MethodHeartrate,
	}
}

func fromSufferScore(sufferScore float64) Result {
	return Result{
		Stress: round1(sufferScore * sufferScoreFactor),
		Method: MethodSufferScore,
	}
}

func fromDuration(durationSec int) Result {
	if durationSec <= 0 {
		return Result{IntensityFactor: assumedIF, Method: MethodDuration}
	}
	hours := float64(durationSec) / 3600
	return Result{
		Stress:          round1(hours * assumedIF * assumedIF * 100),
		IntensityFactor: assumedIF,
		Method:          MethodDuration,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
