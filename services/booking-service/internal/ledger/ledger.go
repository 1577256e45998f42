// Package ledger owns every mutation of a slot's booking counter. All writes
// go through a transaction that locks the slot row first, so concurrent
// attempts on the same slot are linearized and the capacity invariant
// (0 <= booked_count <= capacity) holds under contention.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yawo-koffi/voyago/libs/db"
	"github.com/yawo-koffi/voyago/libs/outbox"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/model"
)

const maxRetries = 3

// TxBeginner opens the transaction a booking mutation runs in.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SlotStore is the slot rows the ledger locks and counts against.
type SlotStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, slotID string) (model.Slot, error)
	IncrementBooked(ctx context.Context, tx pgx.Tx, slotID string) error
	DecrementBooked(ctx context.Context, tx pgx.Tx, slotID string) error
}

// BookingStore is the booking rows the ledger creates and transitions.
type BookingStore interface {
	Insert(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (model.Booking, error)
	SetStatus(ctx context.Context, tx pgx.Tx, bookingID string, status model.Status) error
}

// EventSink records lifecycle events in the same transaction as the write
// they describe.
type EventSink interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type Ledger struct {
	pool     TxBeginner
	slots    SlotStore
	bookings BookingStore
	outbox   EventSink
	logger   *slog.Logger
}

func New(pool TxBeginner, slots SlotStore, bookings BookingStore, outboxRepo EventSink, logger *slog.Logger) *Ledger {
	return &Ledger{
		pool:     pool,
		slots:    slots,
		bookings: bookings,
		outbox:   outboxRepo,
		logger:   logger,
	}
}

type BookRequest struct {
	SlotID       string
	Subject      model.Subject
	ServiceID    string
	OrderID      string
	Notes        string
	ContactEmail string
	ContactPhone string
}

func (r BookRequest) validate() error {
	if strings.TrimSpace(r.SlotID) == "" {
		return fmt.Errorf("%w: slot id required", ErrValidation)
	}
	if uuid.Validate(r.SlotID) != nil {
		return fmt.Errorf("%w: slot id must be a uuid", ErrValidation)
	}
	if !r.Subject.Valid() {
		return fmt.Errorf("%w: subject must be a registered user id or a guest name and email", ErrValidation)
	}
	if r.Subject.Kind == model.SubjectRegistered && uuid.Validate(r.Subject.UserID) != nil {
		return fmt.Errorf("%w: user id must be a uuid", ErrValidation)
	}
	return nil
}

// Book reserves one unit of the slot's capacity and creates a scheduled
// booking, atomically. Serialization failures are retried a bounded number
// of times before surfacing as ErrConflict.
func (l *Ledger) Book(ctx context.Context, req BookRequest) (*model.Booking, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		b, err := l.bookOnce(ctx, req)
		if err == nil {
			return b, nil
		}
		if !db.IsSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
		l.logger.Warn("booking serialization conflict, retrying", "slot_id", req.SlotID, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

func (l *Ledger) bookOnce(ctx context.Context, req BookRequest) (*model.Booking, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := l.BookInTx(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return booking, nil
}

// BookInTx performs the booking inside the caller's transaction so callers
// can bundle their own writes (idempotency records) with the reservation.
// The caller owns commit and rollback.
func (l *Ledger) BookInTx(ctx context.Context, tx pgx.Tx, req BookRequest) (*model.Booking, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	slot, err := l.slots.GetForUpdate(ctx, tx, req.SlotID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("%w: slot %s", ErrNotFound, req.SlotID)
		}
		return nil, err
	}
	if !slot.Bookable() {
		return nil, ErrSlotUnavailable
	}

	booking := &model.Booking{
		SlotID:       slot.ID,
		Subject:      req.Subject,
		ServiceID:    req.ServiceID,
		OrderID:      req.OrderID,
		Status:       model.StatusScheduled,
		Notes:        req.Notes,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		SlotStart:    slot.StartAt,
		SlotEnd:      slot.EndAt,
	}
	if booking.ContactEmail == "" {
		booking.ContactEmail = req.Subject.Email
	}

	id, err := l.bookings.Insert(ctx, tx, booking)
	if err != nil {
		return nil, err
	}
	booking.ID = id

	if err := l.slots.IncrementBooked(ctx, tx, slot.ID); err != nil {
		// The booked_count <= capacity constraint backstops the in-tx
		// Bookable check.
		if db.IsCheckViolation(err) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	if err := l.emitLifecycleEvent(ctx, tx, "booking.scheduled.v1", booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// Cancel moves a booking to cancelled and releases its slot capacity.
// Cancelling an already-cancelled booking is a no-op returning current state.
func (l *Ledger) Cancel(ctx context.Context, bookingID string) (*model.Booking, error) {
	return l.transition(ctx, bookingID, model.StatusCancelled, "booking.cancelled.v1")
}

// Confirm moves scheduled -> confirmed. Confirming an already-confirmed
// booking is a no-op; cancelled and completed bookings cannot be confirmed.
func (l *Ledger) Confirm(ctx context.Context, bookingID string) (*model.Booking, error) {
	return l.transition(ctx, bookingID, model.StatusConfirmed, "booking.confirmed.v1")
}

// Complete moves confirmed -> completed.
func (l *Ledger) Complete(ctx context.Context, bookingID string) (*model.Booking, error) {
	return l.transition(ctx, bookingID, model.StatusCompleted, "booking.completed.v1")
}

func (l *Ledger) transition(ctx context.Context, bookingID string, to model.Status, eventType string) (*model.Booking, error) {
	if uuid.Validate(strings.TrimSpace(bookingID)) != nil {
		return nil, fmt.Errorf("%w: booking id must be a uuid", ErrValidation)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := l.bookings.GetForUpdate(ctx, tx, bookingID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
		}
		return nil, err
	}

	if booking.Status == to {
		// Idempotent no-op; nothing to write.
		return &booking, nil
	}
	if !model.CanTransition(booking.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, booking.Status, to)
	}

	if err := l.bookings.SetStatus(ctx, tx, booking.ID, to); err != nil {
		return nil, err
	}
	if to == model.StatusCancelled {
		if err := l.slots.DecrementBooked(ctx, tx, booking.SlotID); err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		booking.CancelledAt = &now
	}
	booking.Status = to

	if err := l.emitLifecycleEvent(ctx, tx, eventType, &booking); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (l *Ledger) emitLifecycleEvent(ctx context.Context, tx pgx.Tx, eventType string, b *model.Booking) error {
	payload, err := json.Marshal(map[string]any{
		"booking_id":    b.ID,
		"slot_id":       b.SlotID,
		"status":        string(b.Status),
		"subject_type":  string(b.Subject.Kind),
		"subject_name":  b.Subject.Name,
		"service_id":    b.ServiceID,
		"order_id":      b.OrderID,
		"contact_email": b.ContactEmail,
		"contact_phone": b.ContactPhone,
		"slot_start":    b.SlotStart.UTC().Format(time.RFC3339),
		"slot_end":      b.SlotEnd.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return l.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}
