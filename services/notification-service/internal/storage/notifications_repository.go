package storage

import (
	"context"
	"encoding/json"

	"github.com/yawo-koffi/voyago/libs/db"
)

// Notification is one delivery attempt, kept for auditing and support.
type Notification struct {
	BookingID string
	Channel   string
	Recipient string
	LeadHours int
	Payload   map[string]any
	Status    string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (booking_id, channel, recipient, lead_hours, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.BookingID, n.Channel, n.Recipient, n.LeadHours, payload, n.Status)
	return err
}
