package bookings_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-bookings/internal/booking"
	booking_db "ms-bookings/internal/booking/db"
	"ms-bookings/internal/logger"
	"ms-bookings/internal/models"
	"ms-bookings/internal/reputation"
	reputation_db "ms-bookings/internal/reputation/db"
)

// FakeEscrow stands in for the escrow provider across the full lifecycle. It
// tracks held and released funds so settlement accounting can be asserted.
type FakeEscrow struct {
	mu       sync.Mutex
	held     map[string]int64
	released map[string]bool
	refunded map[string]int64
}

func NewFakeEscrow() *FakeEscrow {
	return &FakeEscrow{
		held:     make(map[string]int64),
		released: make(map[string]bool),
		refunded: make(map[string]int64),
	}
}

func (f *FakeEscrow) CreateEscrow(ctx context.Context, bookingID string, amount int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	escrowID := "esc_" + bookingID
	f.held[escrowID] = amount
	return escrowID, nil
}

func (f *FakeEscrow) ReleaseEscrow(ctx context.Context, escrowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.held[escrowID]; !exists {
		return errors.New("unknown escrow")
	}
	f.released[escrowID] = true
	return nil
}

func (f *FakeEscrow) RefundEscrow(ctx context.Context, escrowID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.held[escrowID]; !exists {
		return errors.New("unknown escrow")
	}
	f.refunded[escrowID] += amount
	return nil
}

type env struct {
	bookingService    *booking.Service
	reputationService *reputation.Service
	escrow            *FakeEscrow
	db                *booking_db.DB
}

func setupEnv(t *testing.T) *env {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()
	for _, m := range []interface{}{
		(*models.Booking)(nil),
		(*models.BookingStatusHistory)(nil),
		(*models.ReputationEvent)(nil),
		(*models.ReputationScore)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, m))
	}
	t.Cleanup(func() { bunDB.Close() })

	log := logger.NewNop()
	escrow := NewFakeEscrow()
	reputationService := reputation.NewService(&reputation_db.DB{Bun: bunDB}, nil, log)
	d := &booking_db.DB{Bun: bunDB}
	bookingService := booking.NewService(d, escrow, reputationService, nil, 15*time.Minute, log)

	return &env{
		bookingService:    bookingService,
		reputationService: reputationService,
		escrow:            escrow,
		db:                d,
	}
}

func (e *env) createBooking(t *testing.T, startIn time.Duration) *models.Booking {
	t.Helper()
	start := time.Now().Add(startIn)
	b, err := e.bookingService.CreateBooking(context.Background(), models.BookingRequest{
		CustomerID:         "customer1",
		StylistID:          "stylist1",
		QuoteAmount:        10000,
		PlatformFee:        1500,
		StylistPayout:      8500,
		ScheduledStartTime: start,
		ScheduledEndTime:   start.Add(time.Hour),
	})
	require.NoError(t, err)
	return b
}

func TestFullLifecycleThroughSettlement(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	b := e.createBooking(t, -2*time.Hour) // started in the past so actuals land near schedule

	steps := []struct {
		actorID    string
		role       models.ActorRole
		transition booking.Transition
		expected   models.BookingStatus
	}{
		{"stylist1", models.RoleStylist, booking.TransitionApprove, models.StatusAwaitingPayment},
		{"customer1", models.RoleCustomer, booking.TransitionPay, models.StatusConfirmed},
		{"stylist1", models.RoleStylist, booking.TransitionStart, models.StatusInProgress},
		{"stylist1", models.RoleStylist, booking.TransitionComplete, models.StatusAwaitingConfirmation},
		{"customer1", models.RoleCustomer, booking.TransitionConfirm, models.StatusSettled},
	}

	for _, step := range steps {
		updated, err := e.bookingService.ApplyTransition(ctx, b.BookingID, step.actorID, step.role, step.transition, "")
		require.NoError(t, err, "transition %s", step.transition)
		assert.Equal(t, step.expected, updated.Status)
	}

	// Funds were held once and released once.
	escrowID := "esc_" + b.BookingID
	assert.Equal(t, int64(10000), e.escrow.held[escrowID])
	assert.True(t, e.escrow.released[escrowID])
	assert.Empty(t, e.escrow.refunded[escrowID])

	// The ledger has one row per accepted transition plus the initial one.
	history, err := e.bookingService.GetHistory(ctx, b.BookingID)
	require.NoError(t, err)
	assert.Len(t, history, 6)
	assert.Equal(t, models.StatusSettled, history[len(history)-1].ToStatus)

	// Settlement fed the reputation engine for both parties.
	stylistScore, err := e.reputationService.GetReputationSummary(ctx, "stylist1")
	require.NoError(t, err)
	require.NotNil(t, stylistScore)
	assert.Equal(t, 1, stylistScore.CompletedBookings)

	customerScore, err := e.reputationService.GetReputationSummary(ctx, "customer1")
	require.NoError(t, err)
	require.NotNil(t, customerScore)
	assert.Equal(t, 1, customerScore.CompletedBookings)
}

func TestLifecycleWithLateCancellation(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	b := e.createBooking(t, 2*time.Hour) // inside the 24h window

	_, err := e.bookingService.ApplyTransition(ctx, b.BookingID, "stylist1", models.RoleStylist, booking.TransitionApprove, "")
	require.NoError(t, err)
	_, err = e.bookingService.ApplyTransition(ctx, b.BookingID, "customer1", models.RoleCustomer, booking.TransitionPay, "")
	require.NoError(t, err)

	cancelled, err := e.bookingService.ApplyTransition(ctx, b.BookingID, "customer1", models.RoleCustomer, booking.TransitionCancel, "emergency")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	escrowID := "esc_" + b.BookingID
	assert.Equal(t, int64(5000), e.escrow.refunded[escrowID], "late cancellation refunds half")
	assert.False(t, e.escrow.released[escrowID])

	// The cancelling customer took the late-cancellation hit.
	score, err := e.reputationService.GetReputationSummary(ctx, "customer1")
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Equal(t, 1, score.CancelledBookings)
	assert.Equal(t, 0, score.CompletedBookings)
}

func TestLifecycleDeclineIsTerminal(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	b := e.createBooking(t, 48*time.Hour)
	declined, err := e.bookingService.ApplyTransition(ctx, b.BookingID, "stylist1", models.RoleStylist, booking.TransitionDecline, "fully booked")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, declined.Status)

	// Nothing moves out of a terminal status.
	_, err = e.bookingService.ApplyTransition(ctx, b.BookingID, "customer1", models.RoleCustomer, booking.TransitionPay, "")
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	assert.Empty(t, e.escrow.held, "no funds ever held for a declined booking")
}

func TestSettledTransitionReplayKeepsOneLedgerRow(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	b := e.createBooking(t, -2*time.Hour)
	for _, step := range []struct {
		actorID    string
		role       models.ActorRole
		transition booking.Transition
	}{
		{"stylist1", models.RoleStylist, booking.TransitionApprove},
		{"customer1", models.RoleCustomer, booking.TransitionPay},
		{"stylist1", models.RoleStylist, booking.TransitionStart},
		{"stylist1", models.RoleStylist, booking.TransitionComplete},
	} {
		_, err := e.bookingService.ApplyTransition(ctx, b.BookingID, step.actorID, step.role, step.transition, "")
		require.NoError(t, err)
	}

	// Customer confirms, then the scheduler fires late: the replay is a
	// no-op and the completion events are not duplicated.
	_, err := e.bookingService.ApplyTransition(ctx, b.BookingID, "customer1", models.RoleCustomer, booking.TransitionConfirm, "")
	require.NoError(t, err)
	settled, err := e.bookingService.AutoConfirm(ctx, b.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSettled, settled.Status)

	history, err := e.bookingService.GetHistory(ctx, b.BookingID)
	require.NoError(t, err)
	assert.Len(t, history, 6)

	score, err := e.reputationService.GetReputationSummary(ctx, "stylist1")
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Equal(t, 1, score.CompletedBookings)
}
