package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yawo-koffi/voyago/libs/db"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/ledger"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/model"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/storage"
)

// BookingStore is what the handler needs from the booking repository: the
// idempotency-key flow runs inside a transaction of its own.
type BookingStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (storage.IdempotencyRecord, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key, bookingID string, statusCode int, response []byte) error
	List(ctx context.Context, limit int) ([]model.Booking, error)
}

// SlotReader serves the public slot listing.
type SlotReader interface {
	ListForDate(ctx context.Context, day time.Time) ([]model.Slot, error)
}

type BookingHandler struct {
	ledger   *ledger.Ledger
	bookings BookingStore
	slots    SlotReader
	logger   *slog.Logger
}

func NewBookingHandler(lg *ledger.Ledger, bookings BookingStore, slots SlotReader, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		ledger:   lg,
		bookings: bookings,
		slots:    slots,
		logger:   logger,
	}
}

type bookRequest struct {
	SlotID       string `json:"slot_id"`
	UserID       string `json:"user_id"`
	GuestName    string `json:"guest_name"`
	GuestEmail   string `json:"guest_email"`
	ServiceID    string `json:"service_id"`
	OrderID      string `json:"order_id"`
	Notes        string `json:"notes"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

type bookingItem struct {
	BookingID    string `json:"booking_id"`
	SlotID       string `json:"slot_id"`
	Status       string `json:"status"`
	SubjectType  string `json:"subject_type"`
	SubjectName  string `json:"subject_name,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	ServiceID    string `json:"service_id,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	SlotStart    string `json:"slot_start"`
	SlotEnd      string `json:"slot_end"`
	CancelledAt  string `json:"cancelled_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type slotItem struct {
	SlotID      string `json:"slot_id"`
	Date        string `json:"date"`
	StartAt     string `json:"start_at"`
	EndAt       string `json:"end_at"`
	Capacity    int    `json:"capacity"`
	BookedCount int    `json:"booked_count"`
	Remaining   int    `json:"remaining"`
	Available   bool   `json:"available"`
}

func toBookingItem(b model.Booking) bookingItem {
	item := bookingItem{
		BookingID:    b.ID,
		SlotID:       b.SlotID,
		Status:       string(b.Status),
		SubjectType:  string(b.Subject.Kind),
		SubjectName:  b.Subject.Name,
		UserID:       b.Subject.UserID,
		ServiceID:    b.ServiceID,
		OrderID:      b.OrderID,
		ContactEmail: b.ContactEmail,
		ContactPhone: b.ContactPhone,
		SlotStart:    b.SlotStart.UTC().Format(time.RFC3339),
		SlotEnd:      b.SlotEnd.UTC().Format(time.RFC3339),
		CreatedAt:    b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeLedgerError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrSlotUnavailable):
		http.Error(w, "slot is full or unavailable", http.StatusConflict)
	case errors.Is(err, ledger.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrConflict):
		http.Error(w, "temporary contention, retry the request", http.StatusServiceUnavailable)
	default:
		logger.Error("booking request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// Slots lists the slots for a given day, including full ones so clients can
// render capacity.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	slots, err := h.slots.ListForDate(r.Context(), day)
	if err != nil {
		h.logger.Error("slot listing failed", "date", dateStr, "err", err)
		http.Error(w, "failed to list slots", http.StatusInternalServerError)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			SlotID:      s.ID,
			Date:        s.Date.Format("2006-01-02"),
			StartAt:     s.StartAt.UTC().Format(time.RFC3339),
			EndAt:       s.EndAt.UTC().Format(time.RFC3339),
			Capacity:    s.Capacity,
			BookedCount: s.BookedCount,
			Remaining:   s.Remaining(),
			Available:   s.Bookable(),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// Book reserves a slot for a registered user or a guest. An Idempotency-Key
// header makes retries safe: replays return the originally recorded response.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	subject := model.Subject{Kind: model.SubjectGuest, Name: strings.TrimSpace(req.GuestName), Email: strings.TrimSpace(req.GuestEmail)}
	if userID := strings.TrimSpace(req.UserID); userID != "" {
		subject = model.Subject{Kind: model.SubjectRegistered, UserID: userID}
	}

	bookReq := ledger.BookRequest{
		SlotID:       strings.TrimSpace(req.SlotID),
		Subject:      subject,
		ServiceID:    strings.TrimSpace(req.ServiceID),
		OrderID:      strings.TrimSpace(req.OrderID),
		Notes:        strings.TrimSpace(req.Notes),
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		ContactPhone: strings.TrimSpace(req.ContactPhone),
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		booking, err := h.ledger.Book(r.Context(), bookReq)
		if err != nil {
			writeLedgerError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBookingItem(*booking))
		return
	}

	h.bookIdempotent(w, r, idempotencyKey, bookReq)
}

// bookIdempotent claims the key, books, and records the response in one
// transaction. Concurrent requests with the same key serialize on the key's
// row lock and the loser replays the winner's stored response.
func (h *BookingHandler) bookIdempotent(w http.ResponseWriter, r *http.Request, key string, bookReq ledger.BookRequest) {
	ctx := r.Context()
	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := h.bookings.LockIdempotencyKey(ctx, tx, key)
	if err != nil {
		http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
		return
	}
	// A finalized record replays no matter how the lock was obtained. A
	// request that lost the insert race reselects the winner's committed
	// row, and booking again here would double-book the key.
	if rec.StatusCode > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.ResponsePayload)
		return
	}

	booking, err := h.ledger.BookInTx(ctx, tx, bookReq)
	if err != nil {
		if db.IsSerializationFailure(err) {
			writeLedgerError(w, h.logger, ledger.ErrConflict)
			return
		}
		// Record terminal client errors so replays see the same outcome.
		if status, terminal := terminalStatus(err); terminal {
			if ferr := h.bookings.FinalizeIdempotency(ctx, tx, key, "", status, []byte(err.Error())); ferr == nil {
				_ = tx.Commit(ctx)
			}
		}
		writeLedgerError(w, h.logger, err)
		return
	}

	respBody, err := json.Marshal(toBookingItem(*booking))
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if err := h.bookings.FinalizeIdempotency(ctx, tx, key, booking.ID, http.StatusCreated, respBody); err != nil {
		http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

func terminalStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest, true
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, true
	default:
		return 0, false
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.Cancel)
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.Confirm)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ledger.Complete)
}

type transitionRequest struct {
	BookingID string `json:"booking_id"`
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, bookingID string) (*model.Booking, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	booking, err := op(r.Context(), req.BookingID)
	if err != nil {
		writeLedgerError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(*booking))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.bookings.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("booking listing failed", "err", err)
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}

	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingItem(b))
	}
	writeJSON(w, http.StatusOK, items)
}
