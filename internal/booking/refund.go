package booking

import (
	"time"

	"ms-bookings/internal/models"
)

// FullRefundWindow is the cutoff before the scheduled start under which a
// cancellation still refunds everything.
const FullRefundWindow = 24 * time.Hour

// RefundFraction maps a cancellation context to the fraction of the quote
// that gets refunded. Pure: deterministic given the two timestamps.
//
//   - AWAITING_PAYMENT: nothing was ever charged, the fraction is unused by
//     the coordinator; 1.0 is returned for symmetry.
//   - CONFIRMED, >= 24h before start: 1.0
//   - CONFIRMED, inside 24h up to and including the scheduled start: 0.5
//   - CONFIRMED, strictly past the scheduled start: 0.0 (no-show territory,
//     see IsNoShow)
func RefundFraction(status models.BookingStatus, scheduledStart, now time.Time) float64 {
	if status == models.StatusAwaitingPayment {
		return 1.0
	}
	until := scheduledStart.Sub(now)
	switch {
	case until >= FullRefundWindow:
		return 1.0
	case until >= 0:
		return 0.5
	default:
		return 0.0
	}
}

// IsNoShow reports whether a cancellation attempt should be treated as a
// no-show instead: the scheduled start plus the grace period has elapsed and
// no actual start was ever recorded. The grace period is a product constant
// the source system left undefined; it is configurable via
// NO_SHOW_GRACE_MINUTES and defaults to 15 minutes.
func IsNoShow(b *models.Booking, grace time.Duration, now time.Time) bool {
	if b.ActualStartTime != nil {
		return false
	}
	return !now.Before(b.ScheduledStartTime.Add(grace))
}

// RefundAmount applies a fraction to the quoted amount in minor units,
// truncating toward zero so the platform never over-refunds by rounding.
func RefundAmount(quote int64, fraction float64) int64 {
	return int64(float64(quote) * fraction)
}
