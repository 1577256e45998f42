package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yawo-koffi/voyago/libs/db"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/model"
)

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const bookingColumns = `
	b.id::text, b.slot_id::text, b.subject_type, COALESCE(b.user_id::text, ''),
	COALESCE(b.guest_name, ''), COALESCE(b.guest_email, ''),
	COALESCE(b.service_id::text, ''), COALESCE(b.order_id::text, ''),
	b.status, COALESCE(b.notes, ''), COALESCE(b.contact_email, ''), COALESCE(b.contact_phone, ''),
	s.start_at, s.end_at, b.last_reminder_at, b.cancelled_at, b.created_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var kind, status string
	err := row.Scan(
		&b.ID, &b.SlotID, &kind, &b.Subject.UserID,
		&b.Subject.Name, &b.Subject.Email,
		&b.ServiceID, &b.OrderID,
		&status, &b.Notes, &b.ContactEmail, &b.ContactPhone,
		&b.SlotStart, &b.SlotEnd, &b.LastReminderAt, &b.CancelledAt, &b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Subject.Kind = model.SubjectKind(kind)
	b.Status = model.Status(status)
	return b, nil
}

func (r *BookingRepository) Insert(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings
			(slot_id, subject_type, user_id, guest_name, guest_email, service_id, order_id, status, notes, contact_email, contact_phone)
		VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, '')::uuid, NULLIF($7, '')::uuid, $8, $9, $10, $11)
		RETURNING id::text
	`, b.SlotID, string(b.Subject.Kind), b.Subject.UserID, b.Subject.Name, b.Subject.Email,
		b.ServiceID, b.OrderID, string(b.Status), b.Notes, b.ContactEmail, b.ContactPhone).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetForUpdate loads a booking under a row lock for a status transition.
func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (model.Booking, error) {
	return scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.id = $1
		FOR UPDATE OF b
	`, bookingID))
}

func (r *BookingRepository) Get(ctx context.Context, bookingID string) (model.Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.id = $1
	`, bookingID))
}

func (r *BookingRepository) SetStatus(ctx context.Context, tx pgx.Tx, bookingID string, status model.Status) error {
	_, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			cancelled_at = CASE WHEN $2 = 'cancelled' THEN now() ELSE cancelled_at END
		WHERE id = $1
	`, bookingID, string(status))
	return err
}

func (r *BookingRepository) StampReminder(ctx context.Context, bookingID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET last_reminder_at = $2
		WHERE id = $1
	`, bookingID, at)
	return err
}

func (r *BookingRepository) List(ctx context.Context, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		ORDER BY s.start_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type IdempotencyRecord struct {
	Key             string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

// LockIdempotencyKey claims or re-reads an idempotency key under a row lock.
// When two requests race on the same fresh key, the loser's insert affects
// no rows and its reselect blocks on the winner's row lock; the record it
// gets back then already carries the winner's finalized response. Callers
// must replay any record with a status code, however it was obtained.
func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key)
		VALUES ($1)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key)
	if err != nil {
		return IdempotencyRecord{}, err
	}

	return r.selectIdempotencyForUpdate(ctx, tx, key)
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key, bookingID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = NULLIF($2, '')::uuid,
			status_code = $3,
			response_payload = $4,
			updated_at = now()
		WHERE idempotency_key = $1
	`, key, bookingID, statusCode, response)
	return err
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT idempotency_key,
			COALESCE(booking_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, key).Scan(&rec.Key, &rec.BookingID, &rec.StatusCode, &responseText)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
