// Command migrate applies the schema for one service database. Statements
// are idempotent, so re-running against an existing database is safe.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yawo-koffi/voyago/libs/config"
	"github.com/yawo-koffi/voyago/libs/db"
	"github.com/yawo-koffi/voyago/libs/runtime"
)

const sharedEventTables = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS outbox_events (
	id BIGSERIAL PRIMARY KEY,
	event_id UUID NOT NULL DEFAULT gen_random_uuid(),
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	traceparent TEXT NOT NULL DEFAULT '',
	tracestate TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox_events (id) WHERE published_at IS NULL;

CREATE TABLE IF NOT EXISTS inbox_events (
	event_id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const bookingSchema = `
CREATE TABLE IF NOT EXISTS agency_hours (
	weekday SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	start_time TIME NOT NULL,
	end_time TIME NOT NULL,
	capacity INT NOT NULL DEFAULT 1 CHECK (capacity >= 1),
	PRIMARY KEY (weekday, start_time),
	CHECK (end_time > start_time)
);

CREATE TABLE IF NOT EXISTS slots (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	slot_date DATE NOT NULL,
	start_at TIMESTAMPTZ NOT NULL,
	end_at TIMESTAMPTZ NOT NULL,
	available BOOLEAN NOT NULL DEFAULT TRUE,
	capacity INT NOT NULL DEFAULT 1 CHECK (capacity >= 1),
	booked_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (slot_date, start_at),
	CHECK (booked_count >= 0 AND booked_count <= capacity),
	CHECK (end_at > start_at)
);
CREATE INDEX IF NOT EXISTS idx_slots_date ON slots (slot_date);

CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	slot_id UUID NOT NULL REFERENCES slots (id),
	subject_type TEXT NOT NULL CHECK (subject_type IN ('registered', 'guest')),
	user_id UUID,
	guest_name TEXT,
	guest_email TEXT,
	service_id UUID,
	order_id UUID,
	status TEXT NOT NULL DEFAULT 'scheduled'
		CHECK (status IN ('scheduled', 'confirmed', 'cancelled', 'completed')),
	notes TEXT,
	contact_email TEXT,
	contact_phone TEXT,
	CHECK (
		(subject_type = 'registered' AND user_id IS NOT NULL)
		OR (subject_type = 'guest' AND guest_name IS NOT NULL AND guest_email IS NOT NULL)
	),
	last_reminder_at TIMESTAMPTZ,
	cancelled_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_bookings_slot ON bookings (slot_id);
CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings (status);

CREATE TABLE IF NOT EXISTS booking_idempotency_keys (
	idempotency_key TEXT PRIMARY KEY,
	booking_id UUID,
	status_code INT,
	response_payload JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const reminderSchema = `
CREATE TABLE IF NOT EXISTS reminder_settings (
	id SMALLINT PRIMARY KEY CHECK (id = 1),
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	email_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	sms_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	lead_hours INT[] NOT NULL DEFAULT '{24,2}',
	email_template TEXT NOT NULL DEFAULT '',
	sms_template TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS upcoming_bookings (
	booking_id UUID PRIMARY KEY,
	subject_name TEXT NOT NULL DEFAULT '',
	contact_email TEXT NOT NULL DEFAULT '',
	contact_phone TEXT NOT NULL DEFAULT '',
	slot_start TIMESTAMPTZ NOT NULL,
	slot_end TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_upcoming_start ON upcoming_bookings (slot_start) WHERE status IN ('scheduled', 'confirmed');

CREATE TABLE IF NOT EXISTS reminder_sends (
	booking_id UUID NOT NULL,
	lead_hours INT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (booking_id, lead_hours)
);
`

const notificationSchema = `
CREATE TABLE IF NOT EXISTS notifications (
	id BIGSERIAL PRIMARY KEY,
	booking_id UUID NOT NULL,
	channel TEXT NOT NULL,
	recipient TEXT NOT NULL,
	lead_hours INT NOT NULL DEFAULT 0,
	payload JSONB NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_notifications_booking ON notifications (booking_id);
`

var schemas = map[string]string{
	"booking":      sharedEventTables + bookingSchema,
	"reminder":     sharedEventTables + reminderSchema,
	"notification": sharedEventTables + notificationSchema,
}

func main() {
	logger := runtime.NewLogger("migrate")

	target := config.String("MIGRATE_TARGET", "")
	if len(os.Args) > 1 {
		target = os.Args[1]
	}
	schema, ok := schemas[target]
	if !ok {
		fmt.Fprintf(os.Stderr, "usage: migrate <booking|reminder|notification>\n")
		os.Exit(2)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("missing configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		logger.Error("migration failed", "target", target, "err", err)
		os.Exit(1)
	}
	logger.Info("migration applied", "target", target)
}
