package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound = errors.New("patient profile not found")
	ErrDoctorNotFound  = errors.New("doctor profile not found")
)

// Patient is the booking-relevant slice of a patient profile. AccountID ties
// the profile to the identity service's user record.
type Patient struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Name      string
	Specialty *string
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository exposes the profile lookups the scheduling core depends on.
// Profile CRUD itself belongs to the identity service; this side only reads,
// except for the admin verification flip.
type Repository interface {
	PatientByAccount(ctx context.Context, accountID uuid.UUID) (*Patient, error)
	DoctorByAccount(ctx context.Context, accountID uuid.UUID) (*Doctor, error)
	DoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	SetDoctorVerified(ctx context.Context, id uuid.UUID, verified bool) (*Doctor, error)
	SearchDoctorsBySpecialty(ctx context.Context, specialty string) ([]Doctor, error)
	ListSpecialties(ctx context.Context) ([]string, error)
}
