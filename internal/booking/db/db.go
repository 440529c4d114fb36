package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-bookings/internal/booking"
	"ms-bookings/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreateBooking inserts the booking together with its initial history row so
// a booking can never exist without a ledger entry.
func (d *DB) CreateBooking(ctx context.Context, b *models.Booking, initial models.BookingStatusHistory) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(b).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&initial).Exec(ctx)
		return err
	})
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Where("booking_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// TransitionStatus is the single concurrency-control point of the engine: the
// UPDATE carries the expected prior status in its WHERE clause, so of N
// concurrent conflicting writers exactly one affects a row. The history append
// rides in the same transaction; no other writer can interleave between the
// check and the write.
func (d *DB) TransitionStatus(ctx context.Context, from, to models.BookingStatus, hist models.BookingStatusHistory, upd models.BookingUpdate) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("status = ?", to).
			Set("updated_at = ?", time.Now())
		if upd.EscrowID != "" {
			q = q.Set("escrow_id = ?", upd.EscrowID)
		}
		if upd.ActualStart != nil {
			q = q.Set("actual_start_time = ?", upd.ActualStart)
		}
		if upd.ActualEnd != nil {
			q = q.Set("actual_end_time = ?", upd.ActualEnd)
		}
		res, err := q.
			Where("booking_id = ?", hist.BookingID).
			Where("status = ?", from).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: booking %s no longer at %s", booking.ErrInvalidTransition, hist.BookingID, from)
		}
		_, err = tx.NewInsert().Model(&hist).Exec(ctx)
		return err
	})
}

// RevertTransition undoes a committed status write whose money side effect
// failed afterwards: the status is swapped back and the history row removed,
// both guarded by the same compare-and-swap shape as TransitionStatus.
func (d *DB) RevertTransition(ctx context.Context, bookingID string, current, prev models.BookingStatus, historyID string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("status = ?", prev).
			Set("updated_at = ?", time.Now()).
			Where("booking_id = ?", bookingID).
			Where("status = ?", current).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: booking %s no longer at %s", booking.ErrInvalidTransition, bookingID, current)
		}
		_, err = tx.NewDelete().
			Model((*models.BookingStatusHistory)(nil)).
			Where("history_id = ?", historyID).
			Exec(ctx)
		return err
	})
}

func (d *DB) GetHistory(ctx context.Context, bookingID string) ([]models.BookingStatusHistory, error) {
	var rows []models.BookingStatusHistory
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
