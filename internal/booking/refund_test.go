package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-bookings/internal/booking"
	"ms-bookings/internal/models"
)

func TestRefundFraction(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		status   models.BookingStatus
		now      time.Time
		expected float64
	}{
		{"awaiting payment is always full", models.StatusAwaitingPayment, start.Add(-time.Minute), 1.0},
		{"exactly 24h before start", models.StatusConfirmed, start.Add(-24 * time.Hour), 1.0},
		{"well before the window", models.StatusConfirmed, start.Add(-72 * time.Hour), 1.0},
		{"one minute inside the window", models.StatusConfirmed, start.Add(-24*time.Hour + time.Minute), 0.5},
		{"one minute before start", models.StatusConfirmed, start.Add(-time.Minute), 0.5},
		{"exactly at start still inside the window", models.StatusConfirmed, start, 0.5},
		{"one second past start", models.StatusConfirmed, start.Add(time.Second), 0.0},
		{"after start", models.StatusConfirmed, start.Add(time.Hour), 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := booking.RefundFraction(tt.status, start, tt.now)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIsNoShow(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	grace := 15 * time.Minute

	b := &models.Booking{ScheduledStartTime: start}

	assert.False(t, booking.IsNoShow(b, grace, start.Add(-time.Hour)), "before start")
	assert.False(t, booking.IsNoShow(b, grace, start.Add(14*time.Minute)), "inside grace")
	assert.True(t, booking.IsNoShow(b, grace, start.Add(15*time.Minute)), "grace boundary counts as no-show")
	assert.True(t, booking.IsNoShow(b, grace, start.Add(time.Hour)), "well past grace")

	started := start.Add(5 * time.Minute)
	b.ActualStartTime = &started
	assert.False(t, booking.IsNoShow(b, grace, start.Add(time.Hour)), "recorded start is never a no-show")
}

func TestRefundAmountTruncatesTowardZero(t *testing.T) {
	assert.Equal(t, int64(5000), booking.RefundAmount(10000, 0.5))
	assert.Equal(t, int64(10000), booking.RefundAmount(10000, 1.0))
	assert.Equal(t, int64(0), booking.RefundAmount(10000, 0.0))
	// 0.5 of an odd amount rounds down, never up.
	assert.Equal(t, int64(50), booking.RefundAmount(101, 0.5))
}
