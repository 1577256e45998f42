package model

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusScheduled, StatusConfirmed},
		{StatusScheduled, StatusCancelled},
		{StatusConfirmed, StatusCancelled},
		{StatusConfirmed, StatusCompleted},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusScheduled, StatusCompleted},
		{StatusCancelled, StatusConfirmed},
		{StatusCancelled, StatusScheduled},
		{StatusCompleted, StatusCancelled},
		{StatusCompleted, StatusConfirmed},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestSubjectValid(t *testing.T) {
	if (Subject{Kind: SubjectRegistered}).Valid() {
		t.Fatal("registered subject without user id should be invalid")
	}
	if !(Subject{Kind: SubjectRegistered, UserID: "u-1"}).Valid() {
		t.Fatal("registered subject with user id should be valid")
	}
	if (Subject{Kind: SubjectGuest, Name: "Ama"}).Valid() {
		t.Fatal("guest subject without email should be invalid")
	}
	if !(Subject{Kind: SubjectGuest, Name: "Ama", Email: "ama@example.com"}).Valid() {
		t.Fatal("guest subject with name and email should be valid")
	}
	if (Subject{Kind: "other", UserID: "u-1"}).Valid() {
		t.Fatal("unknown subject kind should be invalid")
	}
}

func TestSlotBookable(t *testing.T) {
	s := Slot{Available: true, Capacity: 2, BookedCount: 0}
	if !s.Bookable() || s.Remaining() != 2 {
		t.Fatalf("expected bookable with 2 remaining, got remaining=%d", s.Remaining())
	}

	s.BookedCount = 2
	if s.Bookable() {
		t.Fatal("slot at capacity must not be bookable")
	}
	if s.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", s.Remaining())
	}

	s.BookedCount = 1
	s.Available = false
	if s.Bookable() || s.Remaining() != 0 {
		t.Fatal("unavailable slot must not be bookable")
	}
}
