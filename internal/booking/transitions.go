package booking

import (
	"fmt"

	"ms-bookings/internal/models"
)

// Transition names accepted by ApplyTransition.
type Transition string

const (
	TransitionApprove  Transition = "approve"
	TransitionDecline  Transition = "decline"
	TransitionPay      Transition = "pay"
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionConfirm  Transition = "confirm"
	TransitionCancel   Transition = "cancel"
)

// Rule describes one row of the transition table: which statuses it may start
// from, which roles may trigger it, and where it lands. Terminal statuses
// appear in no From list, so the DAG is closed by construction.
type Rule struct {
	From  []models.BookingStatus
	Roles []models.ActorRole
	To    models.BookingStatus
}

var transitionTable = map[Transition]Rule{
	TransitionApprove: {
		From:  []models.BookingStatus{models.StatusPendingApproval},
		Roles: []models.ActorRole{models.RoleStylist},
		To:    models.StatusAwaitingPayment,
	},
	TransitionDecline: {
		From:  []models.BookingStatus{models.StatusPendingApproval},
		Roles: []models.ActorRole{models.RoleStylist},
		To:    models.StatusDeclined,
	},
	TransitionPay: {
		From:  []models.BookingStatus{models.StatusAwaitingPayment},
		Roles: []models.ActorRole{models.RoleCustomer},
		To:    models.StatusConfirmed,
	},
	TransitionStart: {
		From:  []models.BookingStatus{models.StatusConfirmed},
		Roles: []models.ActorRole{models.RoleStylist},
		To:    models.StatusInProgress,
	},
	TransitionComplete: {
		From:  []models.BookingStatus{models.StatusInProgress},
		Roles: []models.ActorRole{models.RoleStylist},
		To:    models.StatusAwaitingConfirmation,
	},
	TransitionConfirm: {
		// The external auto-confirm scheduler calls this with RoleSystem; it
		// is the same row the customer uses.
		From:  []models.BookingStatus{models.StatusAwaitingConfirmation},
		Roles: []models.ActorRole{models.RoleCustomer, models.RoleSystem},
		To:    models.StatusSettled,
	},
	TransitionCancel: {
		From:  []models.BookingStatus{models.StatusAwaitingPayment, models.StatusConfirmed},
		Roles: []models.ActorRole{models.RoleCustomer, models.RoleStylist},
		To:    models.StatusCancelled,
	},
}

// LookupTransition resolves a transition name to its table row.
func LookupTransition(name Transition) (Rule, error) {
	r, ok := transitionTable[name]
	if !ok {
		return Rule{}, fmt.Errorf("%w: unknown transition %q", ErrInvalidTransition, name)
	}
	return r, nil
}

func (r Rule) allowsFrom(status models.BookingStatus) bool {
	for _, s := range r.From {
		if s == status {
			return true
		}
	}
	return false
}

func (r Rule) allowsRole(role models.ActorRole) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// actorMatches verifies ownership: a customer must be the booking's customer,
// a stylist the booking's stylist. RoleSystem is the auto-confirm scheduler
// and is not tied to either party.
func actorMatches(b *models.Booking, actorID string, role models.ActorRole) bool {
	switch role {
	case models.RoleCustomer:
		return actorID == b.CustomerID
	case models.RoleStylist:
		return actorID == b.StylistID
	case models.RoleSystem:
		return true
	default:
		return false
	}
}
