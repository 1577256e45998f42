package model

import (
	"strings"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// CanTransition reports whether a booking may move from one status to
// another. Cancelled and completed are terminal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusScheduled:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCancelled || to == StatusCompleted
	default:
		return false
	}
}

type SubjectKind string

const (
	SubjectRegistered SubjectKind = "registered"
	SubjectGuest      SubjectKind = "guest"
)

// Subject is the person the booking is for: either a registered user id or
// a guest identified by name and email.
type Subject struct {
	Kind   SubjectKind
	UserID string
	Name   string
	Email  string
}

// Valid reports whether the subject variant carries its required fields.
func (s Subject) Valid() bool {
	switch s.Kind {
	case SubjectRegistered:
		return strings.TrimSpace(s.UserID) != ""
	case SubjectGuest:
		return strings.TrimSpace(s.Name) != "" && strings.TrimSpace(s.Email) != ""
	default:
		return false
	}
}

type Booking struct {
	ID             string
	SlotID         string
	Subject        Subject
	ServiceID      string
	OrderID        string
	Status         Status
	Notes          string
	ContactEmail   string
	ContactPhone   string
	SlotStart      time.Time
	SlotEnd        time.Time
	LastReminderAt *time.Time
	CancelledAt    *time.Time
	CreatedAt      time.Time
}
