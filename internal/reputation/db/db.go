package db

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"

	"ms-bookings/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// InsertEvents appends a batch of reputation events in one transaction.
// Partial event sets must never become visible, so a single failed insert
// rolls back the whole batch.
func (d *DB) InsertEvents(ctx context.Context, events []models.ReputationEvent) error {
	if len(events) == 0 {
		return nil
	}
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for i := range events {
			if _, err := tx.NewInsert().Model(&events[i]).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// HasCompletionEvent reports whether a BOOKING_COMPLETED event already exists
// for the booking. The settlement coordinator uses it to keep completion
// recording idempotent across retries.
func (d *DB) HasCompletionEvent(ctx context.Context, bookingID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.ReputationEvent)(nil)).
		Where("booking_id = ?", bookingID).
		Where("event_type = ?", models.EventBookingCompleted).
		Exists(ctx)
}

// RecentCompletionEvents returns the user's most recent BOOKING_COMPLETED
// events, newest first, capped at limit.
func (d *DB) RecentCompletionEvents(ctx context.Context, userID string, limit int) ([]models.ReputationEvent, error) {
	var events []models.ReputationEvent
	err := d.Bun.NewSelect().
		Model(&events).
		Where("actor_id = ?", userID).
		Where("event_type = ?", models.EventBookingCompleted).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ActorEventCounts rebuilds the user's completion and cancellation counters
// from the full event ledger.
func (d *DB) ActorEventCounts(ctx context.Context, userID string) (int, int, error) {
	completed, err := d.Bun.NewSelect().
		Model((*models.ReputationEvent)(nil)).
		Where("actor_id = ?", userID).
		Where("event_type = ?", models.EventBookingCompleted).
		Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	cancelled, err := d.Bun.NewSelect().
		Model((*models.ReputationEvent)(nil)).
		Where("actor_id = ?", userID).
		Where("event_type IN (?)", bun.In([]models.ReputationEventType{models.EventBookingCancelled, models.EventNoShow})).
		Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	return completed, cancelled, nil
}

func (d *DB) GetScore(ctx context.Context, userID string) (*models.ReputationScore, error) {
	var score models.ReputationScore
	err := d.Bun.NewSelect().
		Model(&score).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &score, nil
}

func (d *DB) UpsertScore(ctx context.Context, score *models.ReputationScore) error {
	_, err := d.Bun.NewInsert().
		Model(score).
		On("CONFLICT (user_id) DO UPDATE").
		Set("tps_score = EXCLUDED.tps_score").
		Set("reliability_score = EXCLUDED.reliability_score").
		Set("feedback_score = EXCLUDED.feedback_score").
		Set("dispute_score = EXCLUDED.dispute_score").
		Set("total_score = EXCLUDED.total_score").
		Set("completed_bookings = EXCLUDED.completed_bookings").
		Set("cancelled_bookings = EXCLUDED.cancelled_bookings").
		Set("is_verified = EXCLUDED.is_verified").
		Set("verified_at = EXCLUDED.verified_at").
		Set("last_calculated_at = EXCLUDED.last_calculated_at").
		Exec(ctx)
	return err
}

// ListReputationUserIDs returns every user known to the reputation engine:
// anyone with an event or an existing score row. Feeds the batch
// recalculation entry point.
func (d *DB) ListReputationUserIDs(ctx context.Context) ([]string, error) {
	var fromEvents []string
	err := d.Bun.NewSelect().
		ColumnExpr("DISTINCT actor_id").
		Table("reputation_events").
		Scan(ctx, &fromEvents)
	if err != nil {
		return nil, err
	}

	var fromScores []string
	err = d.Bun.NewSelect().
		Column("user_id").
		Table("reputation_scores").
		Scan(ctx, &fromScores)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(fromEvents)+len(fromScores))
	var userIDs []string
	for _, id := range append(fromEvents, fromScores...) {
		if !seen[id] {
			seen[id] = true
			userIDs = append(userIDs, id)
		}
	}
	return userIDs, nil
}
