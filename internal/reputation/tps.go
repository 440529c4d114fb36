package reputation

import (
	"math"
	"time"

	"ms-bookings/internal/models"
)

// Band edges for the punctuality half of the score, in minutes of start delay.
const (
	onTimeDelayMinutes = 5
	minorDelayMinutes  = 15
	majorDelayMinutes  = 30
	earlyArrivalMargin = -5
)

// OnTimeVarianceLimit is the duration variance under which a completion is
// treated as on time for event recording.
const OnTimeVarianceLimit = 0.10

// CalculateTPS computes the Time Performance Score for one booking. Missing
// telemetry is never penalized: if either actual timestamp is absent the
// score defaults to a perfect 100.
//
// Punctuality rewards showing up close to schedule; arriving more than five
// minutes early is mildly penalized rather than rewarded, since it tends to
// mean the previous booking was rushed. Accuracy measures how far the actual
// duration strayed from the quoted one. The composite weighs both halves
// equally.
func CalculateTPS(scheduledStart time.Time, actualStart *time.Time, scheduledEnd time.Time, actualEnd *time.Time) models.TPSBreakdown {
	if actualStart == nil || actualEnd == nil {
		return models.TPSBreakdown{Score: 100, Punctuality: 100, Accuracy: 100}
	}

	delay := actualStart.Sub(scheduledStart).Minutes()

	var punctuality int
	switch {
	case delay < earlyArrivalMargin:
		punctuality = 95
	case delay <= onTimeDelayMinutes:
		punctuality = 100
	case delay <= minorDelayMinutes:
		punctuality = 90
	case delay <= majorDelayMinutes:
		punctuality = 75
	default:
		punctuality = 50
	}

	scheduledDuration := scheduledEnd.Sub(scheduledStart).Minutes()
	actualDuration := actualEnd.Sub(*actualStart).Minutes()

	variance := 0.0
	if scheduledDuration > 0 {
		variance = math.Abs(actualDuration-scheduledDuration) / scheduledDuration
	}

	var accuracy int
	switch {
	case variance <= OnTimeVarianceLimit:
		accuracy = 100
	case variance <= 0.20:
		accuracy = 90
	case variance <= 0.30:
		accuracy = 80
	default:
		accuracy = 60
	}

	score := int(math.Round(float64(punctuality)*0.5 + float64(accuracy)*0.5))

	return models.TPSBreakdown{
		Score:             score,
		Punctuality:       punctuality,
		Accuracy:          accuracy,
		StartDelayMinutes: delay,
		DurationVariance:  variance,
	}
}

// arrivedOnTime reports whether the start delay stays inside the on-time band
// used for arrival event recording. Early arrivals count as on time here even
// though the punctuality band dings them slightly.
func arrivedOnTime(delayMinutes float64) bool {
	return delayMinutes <= onTimeDelayMinutes
}
