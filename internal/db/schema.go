package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies the schema. Statements are idempotent so the seed tool and
// test harnesses can call this repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS doctors (
			id          uuid PRIMARY KEY,
			account_id  uuid NOT NULL UNIQUE,
			name        text NOT NULL,
			specialty   text,
			verified    boolean NOT NULL DEFAULT false,
			created_at  timestamptz NOT NULL DEFAULT now(),
			updated_at  timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS patients (
			id          uuid PRIMARY KEY,
			account_id  uuid NOT NULL UNIQUE,
			name        text NOT NULL,
			email       text,
			created_at  timestamptz NOT NULL DEFAULT now(),
			updated_at  timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS availability_rules (
			id            uuid PRIMARY KEY,
			doctor_id     uuid NOT NULL REFERENCES doctors(id),
			kind          text NOT NULL,
			weekdays      text[],
			specific_date date,
			discipline    text NOT NULL,
			slot_minutes  int NOT NULL DEFAULT 0,
			start_time    varchar(5) NOT NULL,
			end_time      varchar(5) NOT NULL,
			capacity      int NOT NULL,
			is_active     boolean NOT NULL DEFAULT true,
			created_at    timestamptz NOT NULL DEFAULT now(),
			updated_at    timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS availability_rules_doctor_idx
			ON availability_rules (doctor_id) WHERE is_active`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id               uuid PRIMARY KEY,
			patient_id       uuid NOT NULL REFERENCES patients(id),
			doctor_id        uuid NOT NULL REFERENCES doctors(id),
			availability_id  uuid NOT NULL REFERENCES availability_rules(id),
			appointment_date date NOT NULL,
			slot_start       varchar(5) NOT NULL,
			slot_end         varchar(5) NOT NULL,
			token_number     varchar(50) NOT NULL,
			patient_name     varchar(255) NOT NULL,
			patient_relation varchar(100) NOT NULL DEFAULT 'self',
			complaint        text,
			visit_type       varchar(50) NOT NULL,
			status           varchar(50) NOT NULL DEFAULT 'waiting',
			created_at       timestamptz NOT NULL DEFAULT now(),
			updated_at       timestamptz NOT NULL DEFAULT now()
		)`,
		// Occupancy counts hit this key on every admission.
		`CREATE INDEX IF NOT EXISTS appointments_slot_key_idx
			ON appointments (availability_id, appointment_date, slot_start, slot_end)`,
		`CREATE INDEX IF NOT EXISTS appointments_patient_idx ON appointments (patient_id)`,
		`CREATE INDEX IF NOT EXISTS appointments_doctor_idx ON appointments (doctor_id, appointment_date)`,
		`CREATE TABLE IF NOT EXISTS booking_events (
			id             bigserial PRIMARY KEY,
			event_type     text NOT NULL,
			appointment_id uuid,
			payload        jsonb,
			created_at     timestamptz NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}
