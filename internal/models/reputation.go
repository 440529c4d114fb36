package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ActorType classifies the party a reputation event belongs to.
type ActorType string

const (
	ActorCustomer ActorType = "customer"
	ActorStylist  ActorType = "stylist"
	ActorOther    ActorType = "other"
)

// ReputationEventType is the closed set of event kinds the engine appends.
type ReputationEventType string

const (
	EventOnTimeArrival    ReputationEventType = "ON_TIME_ARRIVAL"
	EventLateArrival      ReputationEventType = "LATE_ARRIVAL"
	EventOnTimeCompletion ReputationEventType = "ON_TIME_COMPLETION"
	EventLateCompletion   ReputationEventType = "LATE_COMPLETION"
	EventBookingCompleted ReputationEventType = "BOOKING_COMPLETED"
	EventBookingCancelled ReputationEventType = "BOOKING_CANCELLED"
	EventNoShow           ReputationEventType = "NO_SHOW"
)

// Score impacts per event, signed. The BOOKING_COMPLETED customer credit is
// smaller than the stylist one since the stylist carries the delivery risk.
const (
	ImpactOnTimeArrival     = 5
	ImpactLateArrival       = -10
	ImpactOnTimeCompletion  = 5
	ImpactLateCompletion    = -5
	ImpactCompletedStylist  = 10
	ImpactCompletedCustomer = 5
	ImpactCancellation      = -5
	ImpactLateCancellation  = -15
	ImpactNoShow            = -25
)

// ReputationEvent is an append-only fact. The aggregate score is a derived
// projection over these rows; events themselves are never mutated.
type ReputationEvent struct {
	bun.BaseModel `bun:"table:reputation_events"`

	EventID     string              `bun:"event_id,pk" json:"event_id"`
	ActorID     string              `bun:"actor_id,notnull" json:"actor_id"`
	ActorType   ActorType           `bun:"actor_type,notnull" json:"actor_type"`
	BookingID   string              `bun:"booking_id,notnull" json:"booking_id"`
	EventType   ReputationEventType `bun:"event_type,notnull" json:"event_type"`
	ScoreImpact int                 `bun:"score_impact,notnull" json:"score_impact"`
	Metadata    map[string]string   `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time           `bun:"created_at,notnull" json:"created_at"`
}

// ReputationScore holds one row per user. All score fields are 0-10000
// fixed-point percentages. FeedbackScore and DisputeScore are written by the
// reviews/disputes collaborators and only read here.
type ReputationScore struct {
	bun.BaseModel `bun:"table:reputation_scores"`

	UserID            string     `bun:"user_id,pk" json:"user_id"`
	TpsScore          int        `bun:"tps_score,notnull" json:"tps_score"`
	ReliabilityScore  int        `bun:"reliability_score,notnull" json:"reliability_score"`
	FeedbackScore     int        `bun:"feedback_score,notnull" json:"feedback_score"`
	DisputeScore      int        `bun:"dispute_score,notnull" json:"dispute_score"`
	TotalScore        int        `bun:"total_score,notnull" json:"total_score"`
	CompletedBookings int        `bun:"completed_bookings,notnull" json:"completed_bookings"`
	CancelledBookings int        `bun:"cancelled_bookings,notnull" json:"cancelled_bookings"`
	IsVerified        bool       `bun:"is_verified,notnull" json:"is_verified"`
	VerifiedAt        *time.Time `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	LastCalculatedAt  time.Time  `bun:"last_calculated_at,nullzero" json:"last_calculated_at"`
}

// TPSBreakdown is returned alongside the composite score so callers can see
// which band each input fell into.
type TPSBreakdown struct {
	Score             int     `json:"score"`
	Punctuality       int     `json:"punctuality"`
	Accuracy          int     `json:"accuracy"`
	StartDelayMinutes float64 `json:"start_delay_minutes"`
	DurationVariance  float64 `json:"duration_variance"`
}

// RecalculationResult summarizes a batch run of the maintenance entry point.
type RecalculationResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}
