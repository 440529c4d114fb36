package reputation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ms-bookings/internal/logger"
	"ms-bookings/internal/models"
)

// Weights of the composite total score, in percent.
const (
	tpsWeight         = 30
	reliabilityWeight = 30
	feedbackWeight    = 30
	disputeWeight     = 10
)

// defaultScore is the neutral 0-10000 midpoint used before a user has any
// qualifying history.
const defaultScore = 5000

// completionWindow is how many recent BOOKING_COMPLETED events feed the TPS
// aggregate.
const completionWindow = 50

// Verification thresholds: totalScore and completed bookings a user needs
// before the verified badge is granted. Once granted it is never revoked here.
const (
	verifiedTotalThreshold     = 7000
	verifiedCompletedThreshold = 5
)

type DBLayer interface {
	// InsertEvents appends the batch in a single transaction; either every
	// event becomes visible or none does.
	InsertEvents(ctx context.Context, events []models.ReputationEvent) error
	HasCompletionEvent(ctx context.Context, bookingID string) (bool, error)
	RecentCompletionEvents(ctx context.Context, userID string, limit int) ([]models.ReputationEvent, error)
	// ActorEventCounts counts the user's completion and cancellation events
	// over the whole ledger. The counters on the score row are a projection
	// of these counts, never an independent source of truth.
	ActorEventCounts(ctx context.Context, userID string) (completed, cancelled int, err error)
	GetScore(ctx context.Context, userID string) (*models.ReputationScore, error)
	UpsertScore(ctx context.Context, score *models.ReputationScore) error
	ListReputationUserIDs(ctx context.Context) ([]string, error)
}

type EventPublisher interface {
	PublishReputationEvents(events []models.ReputationEvent) error
}

// Service owns reputation event recording and aggregate recalculation. It is
// best-effort relative to money movement: the settlement coordinator logs its
// failures instead of unwinding escrow.
type Service struct {
	DB     DBLayer
	Events EventPublisher

	logger *logger.Logger
	now    func() time.Time
}

func NewService(db DBLayer, events EventPublisher, log *logger.Logger) *Service {
	return &Service{DB: db, Events: events, logger: log, now: time.Now}
}

// RecordBookingCompletion appends the completion event set for a settled
// booking and refreshes both parties' aggregates. It is idempotent per
// booking: a replay after a crash finds the BOOKING_COMPLETED event already
// present and does nothing.
func (s *Service) RecordBookingCompletion(ctx context.Context, b *models.Booking) error {
	done, err := s.DB.HasCompletionEvent(ctx, b.BookingID)
	if err != nil {
		return fmt.Errorf("check completion events for booking %s: %w", b.BookingID, err)
	}
	if done {
		s.logger.LogReputation("SKIP", b.BookingID, "completion already recorded")
		return nil
	}

	tps := CalculateTPS(b.ScheduledStartTime, b.ActualStartTime, b.ScheduledEndTime, b.ActualEndTime)
	now := s.now()
	tpsMeta := map[string]string{"tps_score": strconv.Itoa(tps.Score)}

	arrivalType, arrivalImpact := models.EventOnTimeArrival, models.ImpactOnTimeArrival
	if b.ActualStartTime != nil && !arrivedOnTime(tps.StartDelayMinutes) {
		arrivalType, arrivalImpact = models.EventLateArrival, models.ImpactLateArrival
	}
	completionType, completionImpact := models.EventOnTimeCompletion, models.ImpactOnTimeCompletion
	if b.ActualEndTime != nil && tps.DurationVariance > OnTimeVarianceLimit {
		completionType, completionImpact = models.EventLateCompletion, models.ImpactLateCompletion
	}

	events := []models.ReputationEvent{
		{
			EventID:     uuid.NewString(),
			ActorID:     b.StylistID,
			ActorType:   models.ActorStylist,
			BookingID:   b.BookingID,
			EventType:   arrivalType,
			ScoreImpact: arrivalImpact,
			CreatedAt:   now,
		},
		{
			EventID:     uuid.NewString(),
			ActorID:     b.StylistID,
			ActorType:   models.ActorStylist,
			BookingID:   b.BookingID,
			EventType:   completionType,
			ScoreImpact: completionImpact,
			CreatedAt:   now,
		},
		{
			EventID:     uuid.NewString(),
			ActorID:     b.StylistID,
			ActorType:   models.ActorStylist,
			BookingID:   b.BookingID,
			EventType:   models.EventBookingCompleted,
			ScoreImpact: models.ImpactCompletedStylist,
			Metadata:    tpsMeta,
			CreatedAt:   now,
		},
		{
			EventID:     uuid.NewString(),
			ActorID:     b.CustomerID,
			ActorType:   models.ActorCustomer,
			BookingID:   b.BookingID,
			EventType:   models.EventBookingCompleted,
			ScoreImpact: models.ImpactCompletedCustomer,
			Metadata:    tpsMeta,
			CreatedAt:   now,
		},
	}

	if err := s.DB.InsertEvents(ctx, events); err != nil {
		return fmt.Errorf("append completion events for booking %s: %w", b.BookingID, err)
	}
	s.logger.LogReputation("COMPLETION", b.BookingID, fmt.Sprintf("tps=%d punctuality=%d accuracy=%d", tps.Score, tps.Punctuality, tps.Accuracy))

	for _, userID := range []string{b.StylistID, b.CustomerID} {
		score, err := s.getOrCreateScore(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.recalculate(ctx, score); err != nil {
			return err
		}
	}

	s.publish(events)
	return nil
}

// RecordCancellation appends a single cancellation (or no-show) event for the
// cancelling actor and refreshes their aggregate.
func (s *Service) RecordCancellation(ctx context.Context, actorID string, actorType models.ActorType, bookingID string, eventType models.ReputationEventType, impact int) error {
	evt := models.ReputationEvent{
		EventID:     uuid.NewString(),
		ActorID:     actorID,
		ActorType:   actorType,
		BookingID:   bookingID,
		EventType:   eventType,
		ScoreImpact: impact,
		CreatedAt:   s.now(),
	}
	if err := s.DB.InsertEvents(ctx, []models.ReputationEvent{evt}); err != nil {
		return fmt.Errorf("append cancellation event for booking %s: %w", bookingID, err)
	}

	score, err := s.getOrCreateScore(ctx, actorID)
	if err != nil {
		return err
	}
	if err := s.recalculate(ctx, score); err != nil {
		return err
	}

	s.logger.LogReputation(string(eventType), bookingID, fmt.Sprintf("actor %s impact %d", actorID, impact))
	s.publish([]models.ReputationEvent{evt})
	return nil
}

// GetReputationSummary returns the user's aggregate, or nil when the user has
// no reputation row yet.
func (s *Service) GetReputationSummary(ctx context.Context, userID string) (*models.ReputationScore, error) {
	score, err := s.DB.GetScore(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return score, nil
}

// RecalculateScore re-derives one user's aggregate from the event history and
// counters. Running it twice with no new events yields identical output.
func (s *Service) RecalculateScore(ctx context.Context, userID string) (*models.ReputationScore, error) {
	score, err := s.getOrCreateScore(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.recalculate(ctx, score); err != nil {
		return nil, err
	}
	return score, nil
}

// RecalculateAllScores is the maintenance entry point: it re-derives every
// known user's aggregate from scratch to correct drift from missed
// incremental updates. Invoked by infrastructure outside this core.
func (s *Service) RecalculateAllScores(ctx context.Context) (models.RecalculationResult, error) {
	userIDs, err := s.DB.ListReputationUserIDs(ctx)
	if err != nil {
		return models.RecalculationResult{}, fmt.Errorf("list reputation users: %w", err)
	}

	result := models.RecalculationResult{}
	for _, userID := range userIDs {
		if _, err := s.RecalculateScore(ctx, userID); err != nil {
			s.logger.LogReputation("RECALC_FAILED", userID, err.Error())
			result.Errors++
			continue
		}
		result.Processed++
	}
	s.logger.LogReputation("RECALC_ALL", "batch", fmt.Sprintf("processed=%d errors=%d", result.Processed, result.Errors))
	return result, nil
}

func (s *Service) getOrCreateScore(ctx context.Context, userID string) (*models.ReputationScore, error) {
	score, err := s.DB.GetScore(ctx, userID)
	if err == nil {
		return score, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load score for %s: %w", userID, err)
	}
	// Lazily created on first event. Feedback and dispute scores belong to
	// the reviews/disputes collaborators; they start at the neutral midpoint.
	return &models.ReputationScore{
		UserID:           userID,
		TpsScore:         defaultScore,
		ReliabilityScore: defaultScore,
		FeedbackScore:    defaultScore,
		DisputeScore:     defaultScore,
		TotalScore:       defaultScore,
	}, nil
}

// recalculate re-derives every field on the score row from the event ledger
// and persists it. The booking counters are rebuilt from the events rather
// than read off the row, so a crash that lost a counter bump is repaired by
// the next recalculation instead of sticking forever.
func (s *Service) recalculate(ctx context.Context, score *models.ReputationScore) error {
	events, err := s.DB.RecentCompletionEvents(ctx, score.UserID, completionWindow)
	if err != nil {
		return fmt.Errorf("load completion events for %s: %w", score.UserID, err)
	}
	completed, cancelled, err := s.DB.ActorEventCounts(ctx, score.UserID)
	if err != nil {
		return fmt.Errorf("count events for %s: %w", score.UserID, err)
	}
	score.CompletedBookings = completed
	score.CancelledBookings = cancelled

	score.TpsScore = tpsAggregate(events)
	score.ReliabilityScore = reliabilityAggregate(score.CompletedBookings, score.CancelledBookings)
	score.TotalScore = int(math.Round(float64(score.TpsScore*tpsWeight+
		score.ReliabilityScore*reliabilityWeight+
		score.FeedbackScore*feedbackWeight+
		score.DisputeScore*disputeWeight) / 100.0))

	if !score.IsVerified &&
		score.TotalScore >= verifiedTotalThreshold &&
		score.CompletedBookings >= verifiedCompletedThreshold {
		now := s.now()
		score.IsVerified = true
		score.VerifiedAt = &now
		s.logger.LogReputation("VERIFIED", score.UserID, fmt.Sprintf("total=%d completed=%d", score.TotalScore, score.CompletedBookings))
	}

	score.LastCalculatedAt = s.now()
	if err := s.DB.UpsertScore(ctx, score); err != nil {
		return fmt.Errorf("save score for %s: %w", score.UserID, err)
	}
	return nil
}

// tpsAggregate averages the raw TPS scores carried in the metadata of the
// most recent completion events, expressed on the 0-10000 scale.
func tpsAggregate(events []models.ReputationEvent) int {
	sum, count := 0, 0
	for _, evt := range events {
		raw, ok := evt.Metadata["tps_score"]
		if !ok {
			continue
		}
		tps, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		sum += tps
		count++
	}
	if count == 0 {
		return defaultScore
	}
	return int(math.Round(float64(sum) / float64(count) * 100))
}

func reliabilityAggregate(completed, cancelled int) int {
	denominator := completed + cancelled
	if denominator == 0 {
		return defaultScore
	}
	return int(math.Round(float64(completed) / float64(denominator) * 10000))
}

func (s *Service) publish(events []models.ReputationEvent) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishReputationEvents(events); err != nil {
		s.logger.LogKafka("PUBLISH_FAILED", "reputation.events", err.Error())
	}
}
