package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is idempotent and applied at startup. The partial unique index
// appointments_active_slot is the authoritative guard for the booking
// invariant: at most one non-terminal appointment per (facility, date,
// time). Application-level checks in front of it are optimizations only.
const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id          uuid PRIMARY KEY,
	name        text NOT NULL,
	email       text,
	created_at  timestamptz NOT NULL DEFAULT now(),
	updated_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS facilities (
	id             uuid PRIMARY KEY,
	name           text NOT NULL,
	address        text NOT NULL DEFAULT '',
	phone          text NOT NULL DEFAULT '',
	working_hours  jsonb NOT NULL DEFAULT '{}',
	slot_minutes   int NOT NULL DEFAULT 30,
	created_at     timestamptz NOT NULL DEFAULT now(),
	updated_at     timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS appointments (
	id                    uuid PRIMARY KEY,
	patient_id            uuid NOT NULL REFERENCES patients (id),
	facility_id           uuid NOT NULL REFERENCES facilities (id),
	date                  date NOT NULL,
	time_minutes          int NOT NULL,
	kind                  text NOT NULL,
	reason                text NOT NULL DEFAULT '',
	duration_minutes      int NOT NULL DEFAULT 30,
	status                text NOT NULL DEFAULT 'pending',
	notes                 text NOT NULL DEFAULT '',
	cancellation_reason   text NOT NULL DEFAULT '',
	cancelled_by          uuid,
	cancelled_at          timestamptz,
	confirmed_by          uuid,
	confirmed_at          timestamptz,
	completed_by          uuid,
	completed_at          timestamptz,
	reminder_sent         bool NOT NULL DEFAULT false,
	last_reminder_sent_at timestamptz,
	created_at            timestamptz NOT NULL DEFAULT now(),
	updated_at            timestamptz NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot
	ON appointments (facility_id, date, time_minutes)
	WHERE status IN ('pending', 'confirmed', 'rescheduled');

CREATE INDEX IF NOT EXISTS appointments_patient_idx ON appointments (patient_id);
CREATE INDEX IF NOT EXISTS appointments_facility_date_idx ON appointments (facility_id, date);
CREATE INDEX IF NOT EXISTS appointments_status_idx ON appointments (status);

CREATE TABLE IF NOT EXISTS sequence_counters (
	kind        text NOT NULL,
	period      text NOT NULL,
	last_value  bigint NOT NULL DEFAULT 0,
	PRIMARY KEY (kind, period)
);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
