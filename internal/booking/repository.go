package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the booking service.
type Repository interface {
	AppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CountWaiting is the occupancy read of the admission check: the number
	// of appointments holding the slot key with status waiting.
	CountWaiting(ctx context.Context, key SlotKey) (int, error)

	CreateAppointment(ctx context.Context, appt *Appointment) error

	// UpdateStatus is a compare-and-set: the row changes only if it still
	// holds the expected from status. ErrAppointmentNotFound means either no
	// such row or a lost race on the status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, date *schedule.Date) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev Event) error
}
