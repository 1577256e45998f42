package storage

import (
	"context"

	"github.com/yawo-koffi/voyago/libs/db"
	"github.com/yawo-koffi/voyago/services/reminder-service/internal/settings"
)

// SettingsRepository persists the single reminder_settings row (id = 1).
type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Current returns the stored settings, inserting the defaults on first read.
func (r *SettingsRepository) Current(ctx context.Context) (settings.Settings, error) {
	def := settings.Default()
	var s settings.Settings
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reminder_settings (id, enabled, email_enabled, sms_enabled, lead_hours, email_template, sms_template)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET id = reminder_settings.id
		RETURNING enabled, email_enabled, sms_enabled, lead_hours, email_template, sms_template
	`, def.Enabled, def.EmailEnabled, def.SMSEnabled, def.LeadHours, def.EmailTemplate, def.SMSTemplate).
		Scan(&s.Enabled, &s.EmailEnabled, &s.SMSEnabled, &s.LeadHours, &s.EmailTemplate, &s.SMSTemplate)
	if err != nil {
		return settings.Settings{}, err
	}
	return s.Normalize(), nil
}

// Save normalizes and overwrites the singleton row, returning what was stored.
func (r *SettingsRepository) Save(ctx context.Context, s settings.Settings) (settings.Settings, error) {
	s = s.Normalize()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reminder_settings (id, enabled, email_enabled, sms_enabled, lead_hours, email_template, sms_template, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			email_enabled = EXCLUDED.email_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			lead_hours = EXCLUDED.lead_hours,
			email_template = EXCLUDED.email_template,
			sms_template = EXCLUDED.sms_template,
			updated_at = now()
	`, s.Enabled, s.EmailEnabled, s.SMSEnabled, s.LeadHours, s.EmailTemplate, s.SMSTemplate)
	if err != nil {
		return settings.Settings{}, err
	}
	return s, nil
}
