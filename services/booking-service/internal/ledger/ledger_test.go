package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yawo-koffi/voyago/libs/outbox"
	"github.com/yawo-koffi/voyago/services/booking-service/internal/model"
)

// fakeTx stands in for a database transaction. The embedded interface covers
// the methods the ledger never calls; Commit and Rollback run the cleanup
// hooks the fake stores register, which is how the slot row lock gets
// released at transaction end.
type fakeTx struct {
	pgx.Tx
	done    bool
	cleanup []func()
}

func (t *fakeTx) Commit(context.Context) error   { t.finish(); return nil }
func (t *fakeTx) Rollback(context.Context) error { t.finish(); return nil }

func (t *fakeTx) finish() {
	if t.done {
		return
	}
	t.done = true
	for i := len(t.cleanup) - 1; i >= 0; i-- {
		t.cleanup[i]()
	}
}

type fakeDB struct{}

func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

// fakeSlots mimics row locking: GetForUpdate takes a per-slot mutex that is
// held until the transaction commits or rolls back, so concurrent bookings
// on the same slot serialize exactly as they do against Postgres.
type fakeSlots struct {
	mu    sync.Mutex
	slots map[string]*model.Slot
	locks map[string]*sync.Mutex
}

func newFakeSlots(slots ...model.Slot) *fakeSlots {
	f := &fakeSlots{slots: map[string]*model.Slot{}, locks: map[string]*sync.Mutex{}}
	for i := range slots {
		s := slots[i]
		f.slots[s.ID] = &s
		f.locks[s.ID] = &sync.Mutex{}
	}
	return f
}

func (f *fakeSlots) GetForUpdate(_ context.Context, tx pgx.Tx, slotID string) (model.Slot, error) {
	f.mu.Lock()
	slot, ok := f.slots[slotID]
	lock := f.locks[slotID]
	f.mu.Unlock()
	if !ok {
		return model.Slot{}, pgx.ErrNoRows
	}

	lock.Lock()
	if ft, ok := tx.(*fakeTx); ok {
		ft.cleanup = append(ft.cleanup, lock.Unlock)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return *slot, nil
}

func (f *fakeSlots) IncrementBooked(_ context.Context, _ pgx.Tx, slotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots[slotID].BookedCount++
	return nil
}

func (f *fakeSlots) DecrementBooked(_ context.Context, _ pgx.Tx, slotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slots[slotID].BookedCount > 0 {
		f.slots[slotID].BookedCount--
	}
	return nil
}

func (f *fakeSlots) booked(slotID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots[slotID].BookedCount
}

type fakeBookings struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{bookings: map[string]*model.Booking{}}
}

func (f *fakeBookings) Insert(_ context.Context, _ pgx.Tx, b *model.Booking) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	stored := *b
	stored.ID = id
	f.bookings[id] = &stored
	return id, nil
}

func (f *fakeBookings) GetForUpdate(_ context.Context, _ pgx.Tx, bookingID string) (model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return model.Booking{}, pgx.ErrNoRows
	}
	return *b, nil
}

func (f *fakeBookings) SetStatus(_ context.Context, _ pgx.Tx, bookingID string, status model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings[bookingID].Status = status
	return nil
}

func (f *fakeBookings) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookings)
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeOutbox) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt.EventType)
	return nil
}

func (f *fakeOutbox) countOf(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == eventType {
			n++
		}
	}
	return n
}

const testSlotID = "3f1f7a80-0e3e-4cbb-9e6d-14f5ab6cf001"

func guestRequest(name string) BookRequest {
	return BookRequest{
		SlotID:  testSlotID,
		Subject: model.Subject{Kind: model.SubjectGuest, Name: name, Email: name + "@example.com"},
	}
}

func testLedger(slots *fakeSlots, bookings *fakeBookings, events *fakeOutbox) *Ledger {
	return New(fakeDB{}, slots, bookings, events, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Validation runs before any storage access, so a zero-value ledger is safe.
func TestBookValidation(t *testing.T) {
	l := &Ledger{}

	_, err := l.Book(context.Background(), BookRequest{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing slot id, got %v", err)
	}

	_, err = l.Book(context.Background(), BookRequest{
		SlotID:  "3f1f7a80-0e3e-4cbb-9e6d-14f5ab6cf001",
		Subject: model.Subject{Kind: model.SubjectGuest, Name: "Ama"},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for incomplete guest subject, got %v", err)
	}

	_, err = l.Book(context.Background(), BookRequest{
		SlotID:  "not-a-uuid",
		Subject: model.Subject{Kind: model.SubjectRegistered, UserID: "3f1f7a80-0e3e-4cbb-9e6d-14f5ab6cf002"},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for malformed slot id, got %v", err)
	}

	_, err = l.Cancel(context.Background(), "  ")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank booking id, got %v", err)
	}
}

func TestBookFullSlotRejected(t *testing.T) {
	slots := newFakeSlots(model.Slot{ID: testSlotID, Available: true, Capacity: 2, BookedCount: 2})
	bookings := newFakeBookings()
	events := &fakeOutbox{}
	l := testLedger(slots, bookings, events)

	_, err := l.Book(context.Background(), guestRequest("ama"))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable for a full slot, got %v", err)
	}
	if got := slots.booked(testSlotID); got != 2 {
		t.Fatalf("a rejected booking must not move the counter, got %d", got)
	}
	if bookings.count() != 0 {
		t.Fatalf("a rejected booking must not create a row")
	}
	if len(events.events) != 0 {
		t.Fatalf("a rejected booking must not emit events, got %v", events.events)
	}
}

func TestBookUnknownSlot(t *testing.T) {
	l := testLedger(newFakeSlots(), newFakeBookings(), &fakeOutbox{})

	_, err := l.Book(context.Background(), guestRequest("ama"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentBookingsRespectCapacity(t *testing.T) {
	slots := newFakeSlots(model.Slot{ID: testSlotID, Available: true, Capacity: 1})
	bookings := newFakeBookings()
	events := &fakeOutbox{}
	l := testLedger(slots, bookings, events)

	const attempts = 4
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := l.Book(context.Background(), guestRequest("guest"+string(rune('a'+n))))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var succeeded, unavailable int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrSlotUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || unavailable != attempts-1 {
		t.Fatalf("capacity 1 must admit exactly one of %d attempts, got %d succeeded %d unavailable", attempts, succeeded, unavailable)
	}
	if got := slots.booked(testSlotID); got != 1 {
		t.Fatalf("booked_count = %d, want 1", got)
	}
	if bookings.count() != 1 {
		t.Fatalf("bookings = %d, want 1", bookings.count())
	}
	if events.countOf("booking.scheduled.v1") != 1 {
		t.Fatalf("scheduled events = %d, want 1", events.countOf("booking.scheduled.v1"))
	}
}

func TestCancelReleasesCapacityOnce(t *testing.T) {
	slots := newFakeSlots(model.Slot{ID: testSlotID, Available: true, Capacity: 1})
	bookings := newFakeBookings()
	events := &fakeOutbox{}
	l := testLedger(slots, bookings, events)

	booked, err := l.Book(context.Background(), guestRequest("ama"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if got := slots.booked(testSlotID); got != 1 {
		t.Fatalf("booked_count = %d after booking, want 1", got)
	}

	cancelled, err := l.Cancel(context.Background(), booked.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if got := slots.booked(testSlotID); got != 0 {
		t.Fatalf("cancel must release the slot, booked_count = %d", got)
	}

	// A second cancel is a no-op: no counter movement, no second event.
	again, err := l.Cancel(context.Background(), booked.ID)
	if err != nil {
		t.Fatalf("repeat Cancel: %v", err)
	}
	if again.Status != model.StatusCancelled {
		t.Fatalf("repeat cancel status = %s", again.Status)
	}
	if got := slots.booked(testSlotID); got != 0 {
		t.Fatalf("repeat cancel moved the counter to %d", got)
	}
	if events.countOf("booking.cancelled.v1") != 1 {
		t.Fatalf("cancelled events = %d, want 1", events.countOf("booking.cancelled.v1"))
	}
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	slots := newFakeSlots(model.Slot{ID: testSlotID, Available: true, Capacity: 1})
	bookings := newFakeBookings()
	l := testLedger(slots, bookings, &fakeOutbox{})

	booked, err := l.Book(context.Background(), guestRequest("ama"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	if _, err := l.Complete(context.Background(), booked.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completing a scheduled booking must fail, got %v", err)
	}

	if _, err := l.Confirm(context.Background(), booked.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	done, err := l.Complete(context.Background(), booked.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
}
