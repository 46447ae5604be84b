package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusInConsultation Status = "in_consultation"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusWaiting, StatusInConsultation, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// transitions is the appointment state machine. Completed and cancelled are
// terminal.
var transitions = map[Status][]Status{
	StatusWaiting:        {StatusInConsultation, StatusCancelled},
	StatusInConsultation: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// SlotKey is the capacity-accounting identity of one concrete slot. A wave
// rule spawns many slots under one availability id, so the full
// (availability, date, start, end) tuple is the key, never the id alone.
type SlotKey struct {
	AvailabilityID uuid.UUID
	Date           schedule.Date
	Start          schedule.TimeOfDay
	End            schedule.TimeOfDay
}

// LockString names the admission lock for this key.
func (k SlotKey) LockString() string {
	return fmt.Sprintf("%s:%s:%s-%s", k.AvailabilityID, k.Date, k.Start, k.End)
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	AvailabilityID  uuid.UUID
	Date            schedule.Date
	SlotStart       schedule.TimeOfDay
	SlotEnd         schedule.TimeOfDay
	TokenNumber     string
	PatientName     string // may be a family member, snapshotted at booking time
	PatientRelation string // self, spouse, child, parent
	Complaint       *string
	VisitType       string // first_time, follow_up, report
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a *Appointment) SlotKey() SlotKey {
	return SlotKey{
		AvailabilityID: a.AvailabilityID,
		Date:           a.Date,
		Start:          a.SlotStart,
		End:            a.SlotEnd,
	}
}

// Event is an audit-trail row appended on admissions and lifecycle changes.
type Event struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
