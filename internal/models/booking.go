package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// BookingStatus is the closed set of lifecycle states. The transition table in
// internal/booking is the only place allowed to move a booking between them.
type BookingStatus string

const (
	StatusPendingApproval      BookingStatus = "PENDING_APPROVAL"
	StatusAwaitingPayment      BookingStatus = "AWAITING_PAYMENT"
	StatusConfirmed            BookingStatus = "CONFIRMED"
	StatusInProgress           BookingStatus = "IN_PROGRESS"
	StatusAwaitingConfirmation BookingStatus = "AWAITING_CONFIRMATION"
	StatusSettled              BookingStatus = "SETTLED"
	StatusDeclined             BookingStatus = "DECLINED"
	StatusCancelled            BookingStatus = "CANCELLED"
)

// IsTerminal reports whether the status has no outgoing transitions.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusSettled || s == StatusDeclined || s == StatusCancelled
}

// ActorRole identifies who is attempting a transition.
type ActorRole string

const (
	RoleCustomer ActorRole = "customer"
	RoleStylist  ActorRole = "stylist"
	// RoleSystem is used by the external auto-confirm scheduler. It is allowed
	// the same confirm transition as the customer.
	RoleSystem ActorRole = "system"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	BookingID  string `bun:"booking_id,pk" json:"booking_id"`
	CustomerID string `bun:"customer_id,notnull" json:"customer_id"`
	StylistID  string `bun:"stylist_id,notnull" json:"stylist_id"`

	// Amounts are integer minor currency units. QuoteAmount must equal
	// PlatformFee + StylistPayout at creation and is never mutated afterward.
	QuoteAmount   int64 `bun:"quote_amount,notnull" json:"quote_amount"`
	PlatformFee   int64 `bun:"platform_fee,notnull" json:"platform_fee"`
	StylistPayout int64 `bun:"stylist_payout,notnull" json:"stylist_payout"`

	ScheduledStartTime time.Time  `bun:"scheduled_start_time,notnull" json:"scheduled_start_time"`
	ScheduledEndTime   time.Time  `bun:"scheduled_end_time,notnull" json:"scheduled_end_time"`
	ActualStartTime    *time.Time `bun:"actual_start_time,nullzero" json:"actual_start_time,omitempty"`
	ActualEndTime      *time.Time `bun:"actual_end_time,nullzero" json:"actual_end_time,omitempty"`

	Status   BookingStatus `bun:"status,notnull" json:"status"`
	EscrowID string        `bun:"escrow_id,nullzero" json:"escrow_id,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// ValidateAmounts checks the money invariant enforced at creation.
func (b *Booking) ValidateAmounts() error {
	if b.QuoteAmount != b.PlatformFee+b.StylistPayout {
		return errors.New("quote amount must equal platform fee plus stylist payout")
	}
	if b.QuoteAmount < 0 || b.PlatformFee < 0 || b.StylistPayout < 0 {
		return errors.New("amounts must not be negative")
	}
	return nil
}

// BookingStatusHistory is an append-only ledger, one immutable row per accepted
// transition. Rows are never updated or deleted.
type BookingStatusHistory struct {
	bun.BaseModel `bun:"table:booking_status_history"`

	HistoryID  string        `bun:"history_id,pk" json:"history_id"`
	BookingID  string        `bun:"booking_id,notnull" json:"booking_id"`
	FromStatus BookingStatus `bun:"from_status,nullzero" json:"from_status,omitempty"`
	ToStatus   BookingStatus `bun:"to_status,notnull" json:"to_status"`
	ActorID    string        `bun:"actor_id,notnull" json:"actor_id"`
	Reason     string        `bun:"reason,nullzero" json:"reason,omitempty"`
	CreatedAt  time.Time     `bun:"created_at,notnull" json:"created_at"`
}

type BookingRequest struct {
	CustomerID         string    `json:"customer_id"`
	StylistID          string    `json:"stylist_id"`
	QuoteAmount        int64     `json:"quote_amount"`
	PlatformFee        int64     `json:"platform_fee"`
	StylistPayout      int64     `json:"stylist_payout"`
	ScheduledStartTime time.Time `json:"scheduled_start_time"`
	ScheduledEndTime   time.Time `json:"scheduled_end_time"`
}

// BookingUpdate carries the column writes that ride along with a status
// transition: the escrow reference captured by pay, and the actual timestamps
// captured by start and complete. Zero-valued fields are left untouched.
type BookingUpdate struct {
	EscrowID    string
	ActualStart *time.Time
	ActualEnd   *time.Time
}

type TransitionRequest struct {
	Transition string `json:"transition"`
	Reason     string `json:"reason,omitempty"`
}

// BookingStatusEvent is the Kafka payload published after every accepted
// transition. Consumed by the notification collaborator; delivery is out of
// scope here.
type BookingStatusEvent struct {
	BookingID  string        `json:"booking_id"`
	FromStatus BookingStatus `json:"from_status"`
	ToStatus   BookingStatus `json:"to_status"`
	Transition string        `json:"transition"`
	ActorID    string        `json:"actor_id"`
	Timestamp  time.Time     `json:"timestamp"`
}
