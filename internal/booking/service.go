package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cliniqly/clinic-scheduling/internal/directory"
	redisclient "github.com/cliniqly/clinic-scheduling/internal/redis"
	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

const (
	EventBookingAdmitted  = "BOOKING_ADMITTED"
	EventBookingCancelled = "BOOKING_CANCELLED"
	EventStatusTransition = "STATUS_TRANSITION"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

var (
	ErrSlotBusy          = errors.New("slot is currently being booked, please retry")
	ErrNotAuthorized     = errors.New("not authorized to modify this appointment")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown appointment status")
)

// CapacityError reports a full slot, carrying the occupancy figures callers
// show to the user.
type CapacityError struct {
	Booked   int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("slot is fully booked (%d/%d patients)", e.Booked, e.Capacity)
}

// PatientDirectory resolves the requesting account to a patient profile.
type PatientDirectory interface {
	PatientByAccount(ctx context.Context, accountID uuid.UUID) (*directory.Patient, error)
}

// RuleSource loads the availability rule a booking targets.
type RuleSource interface {
	RuleByID(ctx context.Context, id uuid.UUID) (*schedule.AvailabilityRule, error)
}

// BookingRequest identifies the target slot plus the descriptive fields
// snapshotted onto the appointment.
type BookingRequest struct {
	DoctorID        uuid.UUID
	AvailabilityID  uuid.UUID
	Date            schedule.Date
	SlotStart       schedule.TimeOfDay
	SlotEnd         schedule.TimeOfDay
	PatientName     string
	PatientRelation string
	Complaint       *string
	VisitType       string
}

// Admission is a successful booking plus the remaining-capacity figure for
// immediate client feedback.
type Admission struct {
	Appointment    *Appointment
	SlotsRemaining int
}

type Service struct {
	repo     Repository
	rules    RuleSource
	patients PatientDirectory
	locker   redisclient.Locker
	logger   *zap.Logger
}

func NewService(repo Repository, rules RuleSource, patients PatientDirectory, locker redisclient.Locker, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		rules:    rules,
		patients: patients,
		locker:   locker,
		logger:   logger,
	}
}

// Book admits a booking against one slot key. The occupancy check and the
// insert run under a per-slot-key lock, so for any key the number of rows
// that ever reach waiting status never exceeds the rule's capacity, whatever
// the interleaving of concurrent attempts.
func (s *Service) Book(ctx context.Context, accountID uuid.UUID, req BookingRequest) (*Admission, error) {
	patient, err := s.patients.PatientByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, directory.ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	rule, err := s.rules.RuleByID(ctx, req.AvailabilityID)
	if err != nil {
		if errors.Is(err, schedule.ErrRuleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load availability rule: %w", err)
	}

	key := SlotKey{
		AvailabilityID: req.AvailabilityID,
		Date:           req.Date,
		Start:          req.SlotStart,
		End:            req.SlotEnd,
	}

	var admission *Admission

	err = s.locker.WithSlotLock(ctx, key.LockString(), func(lockCtx context.Context) error {
		booked, err := s.repo.CountWaiting(lockCtx, key)
		if err != nil {
			return fmt.Errorf("check slot occupancy: %w", err)
		}
		if booked >= rule.Capacity {
			return &CapacityError{Booked: booked, Capacity: rule.Capacity}
		}

		appt := &Appointment{
			ID:              uuid.New(),
			PatientID:       patient.ID,
			DoctorID:        req.DoctorID,
			AvailabilityID:  req.AvailabilityID,
			Date:            req.Date,
			SlotStart:       req.SlotStart,
			SlotEnd:         req.SlotEnd,
			TokenNumber:     GenerateToken(req.DoctorID, req.Date),
			PatientName:     req.PatientName,
			PatientRelation: req.PatientRelation,
			Complaint:       req.Complaint,
			VisitType:       req.VisitType,
			Status:          StatusWaiting,
		}

		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		admission = &Admission{
			Appointment:    appt,
			SlotsRemaining: rule.Capacity - booked - 1,
		}

		s.logEvent(lockCtx, appt.ID, EventBookingAdmitted, map[string]any{
			"slot_key": key.LockString(),
			"token":    appt.TokenNumber,
			"booked":   booked + 1,
			"capacity": rule.Capacity,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	s.logger.Info("booking admitted",
		zap.String("appointment_id", admission.Appointment.ID.String()),
		zap.String("token", admission.Appointment.TokenNumber),
		zap.Int("slots_remaining", admission.SlotsRemaining),
	)

	return admission, nil
}

// UpdateStatus moves an appointment through the lifecycle state machine.
// Only the doctor the appointment belongs to may drive it.
func (s *Service) UpdateStatus(ctx context.Context, doctorID, appointmentID uuid.UUID, to Status) (*Appointment, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}

	appt, err := s.repo.AppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if appt.DoctorID != doctorID {
		return nil, ErrNotAuthorized
	}
	if !CanTransition(appt.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, appointmentID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race on the status; the row moved under us.
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventStatusTransition, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})

	return updated, nil
}

// Cancel sets an appointment to cancelled. Patients may only cancel their
// own; doctors may cancel any appointment (documented behavior). Cancelled
// rows stop counting against the slot's capacity for future admissions.
func (s *Service) Cancel(ctx context.Context, accountID uuid.UUID, role string, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.AppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if role == RolePatient {
		patient, err := s.patients.PatientByAccount(ctx, accountID)
		if err != nil {
			if errors.Is(err, directory.ErrPatientNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load patient: %w", err)
		}
		if appt.PatientID != patient.ID {
			return nil, ErrNotAuthorized
		}
	}

	if appt.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusCancelled)
	}

	updated, err := s.repo.UpdateStatus(ctx, appointmentID, appt.Status, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusCancelled)
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventBookingCancelled, map[string]any{
		"role": role,
		"from": string(appt.Status),
	})

	return updated, nil
}

// PatientAppointments lists the requesting account's bookings, most recent
// slot first.
func (s *Service) PatientAppointments(ctx context.Context, accountID uuid.UUID) ([]Appointment, error) {
	patient, err := s.patients.PatientByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, directory.ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	appts, err := s.repo.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return appts, nil
}

// DoctorAppointments lists a doctor's bookings in ascending slot order,
// optionally filtered to one date.
func (s *Service) DoctorAppointments(ctx context.Context, doctorID uuid.UUID, date *schedule.Date) ([]Appointment, error) {
	appts, err := s.repo.ListByDoctor(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := Event{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("insert booking event",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
