package storage

import (
	"context"
	"time"

	"github.com/yawo-koffi/voyago/libs/db"
	"github.com/yawo-koffi/voyago/services/reminder-service/internal/scan"
)

// UpcomingRepository maintains the local projection of bookings built from
// booking lifecycle events, and the reminder send log the scanner claims
// against.
type UpcomingRepository struct {
	pool *db.Pool
}

func NewUpcomingRepository(pool *db.Pool) *UpcomingRepository {
	return &UpcomingRepository{pool: pool}
}

// UpcomingBooking mirrors the fields of a booking the reminder flow needs.
type UpcomingBooking struct {
	BookingID    string
	SubjectName  string
	ContactEmail string
	ContactPhone string
	SlotStart    time.Time
	SlotEnd      time.Time
	Status       string
}

// Upsert applies a lifecycle event to the projection. Events can arrive out
// of order across partitions, so the row always takes the latest payload.
func (r *UpcomingRepository) Upsert(ctx context.Context, b UpcomingBooking) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO upcoming_bookings (booking_id, subject_name, contact_email, contact_phone, slot_start, slot_end, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (booking_id) DO UPDATE SET
			subject_name = EXCLUDED.subject_name,
			contact_email = EXCLUDED.contact_email,
			contact_phone = EXCLUDED.contact_phone,
			slot_start = EXCLUDED.slot_start,
			slot_end = EXCLUDED.slot_end,
			status = EXCLUDED.status,
			updated_at = now()
	`, b.BookingID, b.SubjectName, b.ContactEmail, b.ContactPhone, b.SlotStart, b.SlotEnd, b.Status)
	return err
}

// SetStatus updates just the lifecycle status of a projected booking.
func (r *UpcomingRepository) SetStatus(ctx context.Context, bookingID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE upcoming_bookings
		SET status = $2, updated_at = now()
		WHERE booking_id = $1
	`, bookingID, status)
	return err
}

// DueCandidates returns scheduled and confirmed bookings starting inside the
// window. Cancelled and completed bookings never get reminders.
func (r *UpcomingRepository) DueCandidates(ctx context.Context, from, to time.Time) ([]scan.Candidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT booking_id::text, subject_name, contact_email, contact_phone, slot_start, slot_end, status
		FROM upcoming_bookings
		WHERE status IN ('scheduled', 'confirmed')
		  AND slot_start BETWEEN $1 AND $2
		ORDER BY slot_start
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scan.Candidate
	for rows.Next() {
		var c scan.Candidate
		if err := rows.Scan(&c.BookingID, &c.SubjectName, &c.ContactEmail, &c.ContactPhone, &c.SlotStart, &c.SlotEnd, &c.Status); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ClaimSend inserts into the send log; the unique (booking_id, lead_hours)
// constraint makes the second claim a no-op returning false.
func (r *UpcomingRepository) ClaimSend(ctx context.Context, bookingID string, leadHours int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO reminder_sends (booking_id, lead_hours)
		VALUES ($1, $2)
		ON CONFLICT (booking_id, lead_hours) DO NOTHING
	`, bookingID, leadHours)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UpcomingRepository) ReleaseSend(ctx context.Context, bookingID string, leadHours int) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM reminder_sends
		WHERE booking_id = $1 AND lead_hours = $2
	`, bookingID, leadHours)
	return err
}
