package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yawo-koffi/voyago/libs/outbox"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/ledger"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/model"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/storage"
)

type stubTx struct {
	pgx.Tx
	committed bool
}

func (t *stubTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *stubTx) Rollback(context.Context) error { return nil }

// stubBookingStore scripts the idempotency-key flow.
type stubBookingStore struct {
	record    storage.IdempotencyRecord
	finalized int
}

func (s *stubBookingStore) Begin(context.Context) (pgx.Tx, error) { return &stubTx{}, nil }

func (s *stubBookingStore) LockIdempotencyKey(context.Context, pgx.Tx, string) (storage.IdempotencyRecord, error) {
	return s.record, nil
}

func (s *stubBookingStore) FinalizeIdempotency(context.Context, pgx.Tx, string, string, int, []byte) error {
	s.finalized++
	return nil
}

func (s *stubBookingStore) List(context.Context, int) ([]model.Booking, error) { return nil, nil }

type stubSlotReader struct{}

func (stubSlotReader) ListForDate(context.Context, time.Time) ([]model.Slot, error) { return nil, nil }

// stubLedgerSlots backs a real ledger so the test can tell whether a booking
// was actually attempted.
type stubLedgerSlots struct {
	slot       model.Slot
	increments int
}

func (s *stubLedgerSlots) GetForUpdate(context.Context, pgx.Tx, string) (model.Slot, error) {
	return s.slot, nil
}

func (s *stubLedgerSlots) IncrementBooked(context.Context, pgx.Tx, string) error {
	s.increments++
	return nil
}

func (s *stubLedgerSlots) DecrementBooked(context.Context, pgx.Tx, string) error { return nil }

type stubLedgerBookings struct {
	inserts int
}

func (s *stubLedgerBookings) Insert(context.Context, pgx.Tx, *model.Booking) (string, error) {
	s.inserts++
	return "9b6f5c2e-74d1-4c5a-9f3e-0a1b2c3d4e5f", nil
}

func (s *stubLedgerBookings) GetForUpdate(context.Context, pgx.Tx, string) (model.Booking, error) {
	return model.Booking{}, pgx.ErrNoRows
}

func (s *stubLedgerBookings) SetStatus(context.Context, pgx.Tx, string, model.Status) error {
	return nil
}

type stubEventSink struct{}

func (stubEventSink) Insert(context.Context, pgx.Tx, outbox.Event) error { return nil }

type stubTxBeginner struct{}

func (stubTxBeginner) Begin(context.Context) (pgx.Tx, error) { return &stubTx{}, nil }

func bookBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"slot_id":     "3f1f7a80-0e3e-4cbb-9e6d-14f5ab6cf001",
		"guest_name":  "Ama",
		"guest_email": "ama@example.com",
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewBuffer(body)
}

func testBookingHandler(store *stubBookingStore, slots *stubLedgerSlots, bookings *stubLedgerBookings) *BookingHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lg := ledger.New(stubTxBeginner{}, slots, bookings, stubEventSink{}, logger)
	return NewBookingHandler(lg, store, stubSlotReader{}, logger)
}

// A request that lost the insert race on a fresh key reselects the winner's
// committed, finalized record. That record must replay; booking again would
// create a second booking under the same key.
func TestBookReplaysFinalizedKeyRecord(t *testing.T) {
	stored := []byte(`{"booking_id":"11111111-2222-3333-4444-555555555555","status":"scheduled"}`)
	store := &stubBookingStore{
		record: storage.IdempotencyRecord{
			Key:             "k-1",
			BookingID:       "11111111-2222-3333-4444-555555555555",
			StatusCode:      http.StatusCreated,
			ResponsePayload: stored,
		},
	}
	slots := &stubLedgerSlots{slot: model.Slot{ID: "3f1f7a80-0e3e-4cbb-9e6d-14f5ab6cf001", Available: true, Capacity: 5}}
	bookings := &stubLedgerBookings{}
	h := testBookingHandler(store, slots, bookings)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bookBody(t))
	req.Header.Set("Idempotency-Key", "k-1")
	rec := httptest.NewRecorder()
	h.Book(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want replayed 201", rec.Code)
	}
	if !bytes.Equal(bytes.TrimSpace(rec.Body.Bytes()), stored) {
		t.Fatalf("body = %s, want the stored response", rec.Body.String())
	}
	if bookings.inserts != 0 || slots.increments != 0 {
		t.Fatalf("a replayed key must not book again, inserts=%d increments=%d", bookings.inserts, slots.increments)
	}
	if store.finalized != 0 {
		t.Fatalf("a replayed key must not be finalized again")
	}
}

func TestBookFreshKeyBooksAndFinalizes(t *testing.T) {
	store := &stubBookingStore{record: storage.IdempotencyRecord{Key: "k-2"}}
	slots := &stubLedgerSlots{slot: model.Slot{ID: "3f1f7a80-0e3e-4cbb-9e6d-14f5ab6cf001", Available: true, Capacity: 5}}
	bookings := &stubLedgerBookings{}
	h := testBookingHandler(store, slots, bookings)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bookBody(t))
	req.Header.Set("Idempotency-Key", "k-2")
	rec := httptest.NewRecorder()
	h.Book(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	if bookings.inserts != 1 || slots.increments != 1 {
		t.Fatalf("fresh key must book once, inserts=%d increments=%d", bookings.inserts, slots.increments)
	}
	if store.finalized != 1 {
		t.Fatalf("fresh key must be finalized, got %d", store.finalized)
	}
}
