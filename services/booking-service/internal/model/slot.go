package model

import "time"

// Slot is a bookable time window on a calendar day with a capacity counter.
// BookedCount is owned by the booking ledger; nothing else mutates it.
type Slot struct {
	ID          string
	Date        time.Time
	StartAt     time.Time
	EndAt       time.Time
	Available   bool
	Capacity    int
	BookedCount int
	CreatedAt   time.Time
}

// Bookable reports whether the slot can accept one more booking.
func (s Slot) Bookable() bool {
	return s.Available && s.BookedCount < s.Capacity
}

// Remaining returns the number of bookings the slot can still take.
func (s Slot) Remaining() int {
	if !s.Available {
		return 0
	}
	if n := s.Capacity - s.BookedCount; n > 0 {
		return n
	}
	return 0
}
