package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-bookings/internal/logger"
	"ms-bookings/internal/models"
)

type DBLayer interface {
	CreateBooking(ctx context.Context, b *models.Booking, initial models.BookingStatusHistory) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	// TransitionStatus performs the compare-and-swap status write and appends
	// the history row in one transaction. It returns ErrInvalidTransition when
	// the booking is no longer at the expected prior status.
	TransitionStatus(ctx context.Context, from, to models.BookingStatus, hist models.BookingStatusHistory, upd models.BookingUpdate) error
	// RevertTransition undoes a just-committed status write whose money side
	// effect failed: the status goes back from current to prev and the history
	// row is removed.
	RevertTransition(ctx context.Context, bookingID string, current, prev models.BookingStatus, historyID string) error
	GetHistory(ctx context.Context, bookingID string) ([]models.BookingStatusHistory, error)
}

type EscrowGateway interface {
	CreateEscrow(ctx context.Context, bookingID string, amount int64) (string, error)
	ReleaseEscrow(ctx context.Context, escrowID string) error
	RefundEscrow(ctx context.Context, escrowID string, amount int64) error
}

type ReputationRecorder interface {
	RecordBookingCompletion(ctx context.Context, b *models.Booking) error
	RecordCancellation(ctx context.Context, actorID string, actorType models.ActorType, bookingID string, eventType models.ReputationEventType, impact int) error
}

type EventPublisher interface {
	PublishBookingStatusChanged(evt models.BookingStatusEvent) error
}

// Service is the settlement coordinator: it runs the transition engine and
// fires escrow and reputation side effects around the status write.
type Service struct {
	DB         DBLayer
	Escrow     EscrowGateway
	Reputation ReputationRecorder
	Events     EventPublisher

	// NoShowGrace is how long past the scheduled start a booking with no
	// recorded actual start stays a late cancellation before it flips to a
	// no-show.
	NoShowGrace time.Duration

	logger *logger.Logger
	now    func() time.Time
}

func NewService(db DBLayer, escrow EscrowGateway, reputation ReputationRecorder, events EventPublisher, noShowGrace time.Duration, log *logger.Logger) *Service {
	return &Service{
		DB:          db,
		Escrow:      escrow,
		Reputation:  reputation,
		Events:      events,
		NoShowGrace: noShowGrace,
		logger:      log,
		now:         time.Now,
	}
}

// CreateBooking inserts a new booking in PENDING_APPROVAL together with its
// initial history row. The money invariant is enforced here and the amounts
// are never mutated afterward.
func (s *Service) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	b := &models.Booking{
		BookingID:          uuid.NewString(),
		CustomerID:         req.CustomerID,
		StylistID:          req.StylistID,
		QuoteAmount:        req.QuoteAmount,
		PlatformFee:        req.PlatformFee,
		StylistPayout:      req.StylistPayout,
		ScheduledStartTime: req.ScheduledStartTime,
		ScheduledEndTime:   req.ScheduledEndTime,
		Status:             models.StatusPendingApproval,
		CreatedAt:          s.now(),
	}
	if err := b.ValidateAmounts(); err != nil {
		return nil, err
	}
	if !b.ScheduledEndTime.After(b.ScheduledStartTime) {
		return nil, errors.New("scheduled end must be after scheduled start")
	}
	if b.CustomerID == "" || b.StylistID == "" {
		return nil, errors.New("customer and stylist ids are required")
	}

	initial := models.BookingStatusHistory{
		HistoryID: uuid.NewString(),
		BookingID: b.BookingID,
		ToStatus:  models.StatusPendingApproval,
		ActorID:   req.CustomerID,
		Reason:    "booking requested",
		CreatedAt: b.CreatedAt,
	}
	if err := s.DB.CreateBooking(ctx, b, initial); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	s.logger.LogBooking("CREATE", b.BookingID, "booking created in PENDING_APPROVAL")
	return b, nil
}

func (s *Service) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *Service) GetHistory(ctx context.Context, id string) ([]models.BookingStatusHistory, error) {
	if _, err := s.GetBooking(ctx, id); err != nil {
		return nil, err
	}
	return s.DB.GetHistory(ctx, id)
}

// AutoConfirm is the entry point the external scheduler calls after the
// post-completion grace period. It is the customer's confirm transition with
// the system role.
func (s *Service) AutoConfirm(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.ApplyTransition(ctx, bookingID, "auto-confirm-scheduler", models.RoleSystem, TransitionConfirm, "auto-confirmed after grace period")
}

// ApplyTransition validates and applies a single state change. The status
// write is a compare-and-swap: of N concurrent conflicting attempts exactly
// one succeeds and the rest observe ErrInvalidTransition.
//
// Money ordering around the compare-and-swap keeps the escrow released or
// refunded exactly once: a hold is created before the write and handed back
// if the write loses the race; the escrow release runs before the write and
// is idempotent per escrow reference; the cancellation refund runs only after
// the write commits, and a failed refund reverts the status row. Reputation
// side effects run last and never roll settlement back.
func (s *Service) ApplyTransition(ctx context.Context, bookingID, actorID string, role models.ActorRole, transition Transition, reason string) (*models.Booking, error) {
	r, err := LookupTransition(transition)
	if err != nil {
		return nil, err
	}

	b, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if !r.allowsRole(role) || !actorMatches(b, actorID, role) {
		s.logger.LogSecurity("TRANSITION_DENIED", fmt.Sprintf("actor %s (%s) attempted %s on booking %s", actorID, role, transition, bookingID))
		return nil, ErrForbidden
	}

	if !r.allowsFrom(b.Status) {
		// A retried call for a booking already at the target status is a
		// no-op, not a failure: side effects are idempotent per booking.
		if b.Status == r.To {
			return b, nil
		}
		return nil, fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, transition, b.Status)
	}

	now := s.now()
	upd := models.BookingUpdate{}
	var cancelType models.ReputationEventType
	var cancelImpact int
	var refundAmount int64
	freshEscrow := false

	switch transition {
	case TransitionPay:
		escrowID := b.EscrowID
		if escrowID == "" {
			escrowID, err = s.Escrow.CreateEscrow(ctx, b.BookingID, b.QuoteAmount)
			if err != nil {
				s.logger.LogEscrow("CREATE_FAILED", b.BookingID, err.Error())
				return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
			}
			s.logger.LogEscrow("CREATED", b.BookingID, fmt.Sprintf("escrow %s holds %d", escrowID, b.QuoteAmount))
			freshEscrow = true
		}
		upd.EscrowID = escrowID

	case TransitionStart:
		upd.ActualStart = &now

	case TransitionComplete:
		upd.ActualEnd = &now

	case TransitionConfirm:
		// Release must succeed before SETTLED is reachable. Release is
		// idempotent by escrow reference, so losing the CAS race afterwards
		// cannot double-pay the stylist.
		if b.EscrowID == "" {
			return nil, fmt.Errorf("%w: booking %s has no escrow reference", ErrSettlementFailed, b.BookingID)
		}
		if err := s.Escrow.ReleaseEscrow(ctx, b.EscrowID); err != nil {
			s.logger.LogEscrow("RELEASE_FAILED", b.BookingID, err.Error())
			return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
		s.logger.LogEscrow("RELEASED", b.BookingID, "escrow "+b.EscrowID)

	case TransitionCancel:
		noShow := IsNoShow(b, s.NoShowGrace, now)
		fraction := 0.0
		if !noShow {
			fraction = RefundFraction(b.Status, b.ScheduledStartTime, now)
		}
		// The penalty tier follows time-to-start, not the refund fraction:
		// an unpaid cancellation minutes before start still burns the slot.
		switch {
		case noShow:
			cancelType, cancelImpact = models.EventNoShow, models.ImpactNoShow
		case b.ScheduledStartTime.Sub(now) < FullRefundWindow:
			cancelType, cancelImpact = models.EventBookingCancelled, models.ImpactLateCancellation
		default:
			cancelType, cancelImpact = models.EventBookingCancelled, models.ImpactCancellation
		}
		if b.EscrowID != "" && b.Status == models.StatusConfirmed && fraction > 0 {
			refundAmount = RefundAmount(b.QuoteAmount, fraction)
		}
	}

	hist := models.BookingStatusHistory{
		HistoryID:  uuid.NewString(),
		BookingID:  b.BookingID,
		FromStatus: b.Status,
		ToStatus:   r.To,
		ActorID:    actorID,
		Reason:     reason,
		CreatedAt:  now,
	}
	if err := s.DB.TransitionStatus(ctx, b.Status, r.To, hist, upd); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Lost a race. A hold created on this attempt was never recorded
			// on the booking row, so hand the money back before deciding what
			// the loss means for the caller.
			if freshEscrow {
				if refundErr := s.Escrow.RefundEscrow(ctx, upd.EscrowID, b.QuoteAmount); refundErr != nil {
					s.logger.LogEscrow("ORPHANED_HOLD_REFUND_FAILED", b.BookingID, fmt.Sprintf("escrow %s: %s", upd.EscrowID, refundErr.Error()))
				} else {
					s.logger.LogEscrow("ORPHANED_HOLD_REFUNDED", b.BookingID, fmt.Sprintf("escrow %s returned %d after lost race", upd.EscrowID, b.QuoteAmount))
				}
			}
			// If the winner applied the same transition the retry already
			// succeeded from the caller's point of view.
			current, loadErr := s.GetBooking(ctx, bookingID)
			if loadErr == nil && current.Status == r.To {
				return current, nil
			}
		}
		return nil, err
	}

	if transition == TransitionCancel && refundAmount > 0 {
		// CANCELLED is terminal, so nothing can advance the booking between
		// the committed write and this refund. If the gateway fails, the
		// write is reverted and the caller retries the whole cancel.
		if err := s.Escrow.RefundEscrow(ctx, b.EscrowID, refundAmount); err != nil {
			s.logger.LogEscrow("REFUND_FAILED", b.BookingID, err.Error())
			if revertErr := s.DB.RevertTransition(ctx, b.BookingID, r.To, b.Status, hist.HistoryID); revertErr != nil {
				s.logger.LogEscrow("REVERT_FAILED", b.BookingID, revertErr.Error())
			}
			return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
		s.logger.LogEscrow("REFUNDED", b.BookingID, fmt.Sprintf("escrow %s refunded %d", b.EscrowID, refundAmount))
	}
	s.logger.LogBooking(string(transition), b.BookingID, fmt.Sprintf("%s -> %s by %s", b.Status, r.To, actorID))

	updated, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	// Reputation is best-effort relative to money movement: failures here are
	// logged and never unwind an already-settled escrow.
	switch transition {
	case TransitionConfirm:
		if err := s.Reputation.RecordBookingCompletion(ctx, updated); err != nil {
			s.logger.LogReputation("COMPLETION_RECORD_FAILED", b.BookingID, err.Error())
		}
	case TransitionCancel:
		actorType := models.ActorCustomer
		if role == models.RoleStylist {
			actorType = models.ActorStylist
		}
		if err := s.Reputation.RecordCancellation(ctx, actorID, actorType, b.BookingID, cancelType, cancelImpact); err != nil {
			s.logger.LogReputation("CANCELLATION_RECORD_FAILED", b.BookingID, err.Error())
		}
	}

	if s.Events != nil {
		evt := models.BookingStatusEvent{
			BookingID:  b.BookingID,
			FromStatus: b.Status,
			ToStatus:   r.To,
			Transition: string(transition),
			ActorID:    actorID,
			Timestamp:  now,
		}
		if err := s.Events.PublishBookingStatusChanged(evt); err != nil {
			s.logger.LogKafka("PUBLISH_FAILED", "bookings.status", err.Error())
		}
	}

	return updated, nil
}
