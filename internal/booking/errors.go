package booking

import "errors"

// Sentinel errors returned by the transition engine and settlement
// coordinator. Callers match them with errors.Is; the API layer maps each to
// an HTTP status.
var (
	// ErrNotFound means the booking id is unknown.
	ErrNotFound = errors.New("booking not found")

	// ErrForbidden means the actor or role does not match what the attempted
	// transition requires.
	ErrForbidden = errors.New("actor not permitted for this transition")

	// ErrInvalidTransition means the precondition status did not match. This
	// covers both client bugs and legitimate races: of N concurrent
	// conflicting attempts exactly one wins, the rest get this error.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPaymentFailed means escrow creation failed and the transition was
	// rolled back. The booking never advances without a confirmed hold.
	ErrPaymentFailed = errors.New("escrow creation failed")

	// ErrSettlementFailed means an escrow release or refund failed. The
	// booking stays pre-terminal so the caller can retry.
	ErrSettlementFailed = errors.New("escrow settlement failed")
)
