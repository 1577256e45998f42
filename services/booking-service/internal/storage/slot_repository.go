package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yawo-koffi/voyago/libs/db"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/model"
)

type SlotRepository struct {
	pool *db.Pool
}

func NewSlotRepository(pool *db.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

func (r *SlotRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const slotColumns = `id::text, slot_date, start_at, end_at, available, capacity, booked_count, created_at`

func scanSlot(row pgx.Row) (model.Slot, error) {
	var s model.Slot
	err := row.Scan(&s.ID, &s.Date, &s.StartAt, &s.EndAt, &s.Available, &s.Capacity, &s.BookedCount, &s.CreatedAt)
	return s, err
}

// GetForUpdate loads a slot under a row lock. Callers must hold the lock for
// the whole read-check-increment critical section.
func (r *SlotRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, slotID string) (model.Slot, error) {
	return scanSlot(tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
		FOR UPDATE
	`, slotID))
}

// InsertIfAbsent creates the slot unless one already exists for the same
// (slot_date, start_at) pair. Returns true when a row was created.
func (r *SlotRepository) InsertIfAbsent(ctx context.Context, s model.Slot) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO slots (slot_date, start_at, end_at, available, capacity, booked_count)
		VALUES ($1, $2, $3, true, $4, 0)
		ON CONFLICT (slot_date, start_at) DO NOTHING
	`, s.Date, s.StartAt, s.EndAt, s.Capacity)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SlotRepository) IncrementBooked(ctx context.Context, tx pgx.Tx, slotID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE slots
		SET booked_count = booked_count + 1
		WHERE id = $1
	`, slotID)
	return err
}

// DecrementBooked lowers the counter, flooring at zero.
func (r *SlotRepository) DecrementBooked(ctx context.Context, tx pgx.Tx, slotID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE slots
		SET booked_count = GREATEST(booked_count - 1, 0)
		WHERE id = $1
	`, slotID)
	return err
}

// ListForDate returns the day's slots ordered by start time.
func (r *SlotRepository) ListForDate(ctx context.Context, day time.Time) ([]model.Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE slot_date = $1
		ORDER BY start_at
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return slots, nil
}

// SetAvailability toggles the administrative availability flag.
func (r *SlotRepository) SetAvailability(ctx context.Context, slotID string, available bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET available = $2
		WHERE id = $1
	`, slotID, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ClearUnbooked bulk-deletes slots for a day that have no bookings, the only
// sanctioned slot deletion path.
func (r *SlotRepository) ClearUnbooked(ctx context.Context, day time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE slot_date = $1 AND booked_count = 0
	`, day)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
