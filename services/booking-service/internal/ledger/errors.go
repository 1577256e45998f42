package ledger

import "errors"

var (
	// ErrValidation marks malformed input (bad reference, invalid subject).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown slot or booking id.
	ErrNotFound = errors.New("not found")

	// ErrSlotUnavailable is returned when the slot is full or switched off
	// at booking time. Callers should offer another slot, not retry.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrInvalidTransition marks an illegal booking status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConflict is a transient lock/serialization failure that survived
	// the bounded retry; the same request is safe to retry.
	ErrConflict = errors.New("concurrency conflict")
)
