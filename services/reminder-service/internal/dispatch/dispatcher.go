// Package dispatch turns due reminders into reminder.due.v1 events for the
// notification service.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yawo-koffi/voyago/libs/db"
	"github.com/yawo-koffi/voyago/libs/outbox"
	"github.com/yawo-koffi/voyago/services/reminder-service/internal/scan"
	"github.com/yawo-koffi/voyago/services/reminder-service/internal/settings"
)

type OutboxDispatcher struct {
	pool *db.Pool
	repo *outbox.Repository
}

func NewOutboxDispatcher(pool *db.Pool, repo *outbox.Repository) *OutboxDispatcher {
	return &OutboxDispatcher{pool: pool, repo: repo}
}

func (d *OutboxDispatcher) Dispatch(ctx context.Context, c scan.Candidate, leadHours int, cfg settings.Settings) error {
	payload, err := json.Marshal(map[string]any{
		"booking_id":     c.BookingID,
		"subject_name":   c.SubjectName,
		"contact_email":  c.ContactEmail,
		"contact_phone":  c.ContactPhone,
		"slot_start":     c.SlotStart.UTC().Format(time.RFC3339),
		"slot_end":       c.SlotEnd.UTC().Format(time.RFC3339),
		"lead_hours":     leadHours,
		"email_enabled":  cfg.EmailEnabled,
		"sms_enabled":    cfg.SMSEnabled,
		"email_template": cfg.EmailTemplate,
		"sms_template":   cfg.SMSTemplate,
	})
	if err != nil {
		return err
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := d.repo.Insert(ctx, tx, outbox.Event{
		AggregateType: "reminder",
		AggregateID:   c.BookingID,
		EventType:     "reminder.due.v1",
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
