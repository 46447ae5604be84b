package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, doctor_id, availability_id, appointment_date, slot_start, slot_end, token_number, patient_name, patient_relation, complaint, visit_type, status, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a         Appointment
		date      time.Time
		slotStart string
		slotEnd   string
		complaint *string
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.AvailabilityID,
		&date,
		&slotStart,
		&slotEnd,
		&a.TokenNumber,
		&a.PatientName,
		&a.PatientRelation,
		&complaint,
		&a.VisitType,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = schedule.DateOf(date)
	a.Complaint = complaint
	if a.SlotStart, err = schedule.ParseTimeOfDay(slotStart); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	if a.SlotEnd, err = schedule.ParseTimeOfDay(slotEnd); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
	}

	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) AppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CountWaiting(ctx context.Context, key SlotKey) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE availability_id = $1
		  AND appointment_date = $2
		  AND slot_start = $3
		  AND slot_end = $4
		  AND status = 'waiting'
	`, key.AvailabilityID, key.Date.Time(), key.Start.String(), key.End.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count waiting appointments: %w", err)
	}
	return count, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments
			(id, patient_id, doctor_id, availability_id, appointment_date, slot_start, slot_end, token_number, patient_name, patient_relation, complaint, visit_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
	`,
		appt.ID, appt.PatientID, appt.DoctorID, appt.AvailabilityID, appt.Date.Time(),
		appt.SlotStart.String(), appt.SlotEnd.String(), appt.TokenNumber,
		appt.PatientName, appt.PatientRelation, appt.Complaint, appt.VisitType, appt.Status,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, slot_start DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, date *schedule.Date) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY appointment_date ASC, slot_start ASC
	`
	args := []any{doctorID}
	if date != nil {
		query = `
			SELECT ` + appointmentColumns + `
			FROM appointments
			WHERE doctor_id = $1
			  AND appointment_date = $2
			ORDER BY appointment_date ASC, slot_start ASC
		`
		args = append(args, date.Time())
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO booking_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
