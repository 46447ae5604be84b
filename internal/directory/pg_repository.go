package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.AccountID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.AccountID,
		&d.Name,
		&specialty,
		&d.Verified,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

// Interface methods

func (r *PgRepository) PatientByAccount(ctx context.Context, accountID uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, account_id, name, email, created_at, updated_at
		FROM patients
		WHERE account_id = $1
	`, accountID)
	return scanPatient(row)
}

func (r *PgRepository) DoctorByAccount(ctx context.Context, accountID uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, account_id, name, specialty, verified, created_at, updated_at
		FROM doctors
		WHERE account_id = $1
	`, accountID)
	return scanDoctor(row)
}

func (r *PgRepository) DoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, account_id, name, specialty, verified, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) SetDoctorVerified(ctx context.Context, id uuid.UUID, verified bool) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET verified = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, account_id, name, specialty, verified, created_at, updated_at
	`, id, verified)
	return scanDoctor(row)
}

func (r *PgRepository) SearchDoctorsBySpecialty(ctx context.Context, specialty string) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, name, specialty, verified, created_at, updated_at
		FROM doctors
		WHERE verified
		  AND specialty ILIKE '%' || $1 || '%'
		ORDER BY name
	`, specialty)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListSpecialties(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT specialty
		FROM doctors
		WHERE verified AND specialty IS NOT NULL
		ORDER BY specialty
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}

	return result, nil
}
