package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/cliniqly/clinic-scheduling/internal/booking"
	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

type CreateAvailabilityRequest struct {
	AvailabilityType string   `json:"availability_type" validate:"required,oneof=recurring custom"`
	DaysOfWeek       []string `json:"days_of_week,omitempty"`
	SpecificDate     string   `json:"specific_date,omitempty"`
	StartTime        string   `json:"start_time" validate:"required"`
	EndTime          string   `json:"end_time" validate:"required"`
	SchedulingType   string   `json:"scheduling_type" validate:"required,oneof=wave stream"`
	DurationMinutes  int      `json:"duration_minutes,omitempty" validate:"omitempty,gt=0"`
	Capacity         int      `json:"capacity" validate:"required,gt=0"`
}

type UpdateAvailabilityRequest struct {
	DaysOfWeek      []string `json:"days_of_week,omitempty"`
	SpecificDate    *string  `json:"specific_date,omitempty"`
	SchedulingType  *string  `json:"scheduling_type,omitempty" validate:"omitempty,oneof=wave stream"`
	DurationMinutes *int     `json:"duration_minutes,omitempty" validate:"omitempty,gt=0"`
	StartTime       *string  `json:"start_time,omitempty"`
	EndTime         *string  `json:"end_time,omitempty"`
	Capacity        *int     `json:"capacity,omitempty" validate:"omitempty,gt=0"`
}

type BookAppointmentRequest struct {
	DoctorID        string  `json:"doctor_id" validate:"required,uuid"`
	AvailabilityID  string  `json:"availability_id" validate:"required,uuid"`
	AppointmentDate string  `json:"appointment_date" validate:"required"`
	SlotStartTime   string  `json:"slot_start_time" validate:"required"`
	SlotEndTime     string  `json:"slot_end_time" validate:"required"`
	PatientName     string  `json:"patient_name" validate:"required"`
	PatientRelation string  `json:"patient_relation,omitempty" validate:"omitempty,oneof=self spouse child parent"`
	Complaint       *string `json:"complaint,omitempty"`
	VisitType       string  `json:"visit_type" validate:"required,oneof=first_time follow_up report"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type VerifyDoctorRequest struct {
	Status string `json:"status" validate:"required,oneof=active rejected"`
}

type AvailabilityResponse struct {
	AvailabilityID   uuid.UUID `json:"availability_id"`
	DoctorID         uuid.UUID `json:"doctor_id"`
	AvailabilityType string    `json:"availability_type"`
	DaysOfWeek       []string  `json:"days_of_week,omitempty"`
	SpecificDate     string    `json:"specific_date,omitempty"`
	SchedulingType   string    `json:"scheduling_type"`
	DurationMinutes  int       `json:"duration_minutes,omitempty"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	Capacity         int       `json:"capacity"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toAvailabilityResponse(r *schedule.AvailabilityRule) AvailabilityResponse {
	resp := AvailabilityResponse{
		AvailabilityID:   r.ID,
		DoctorID:         r.DoctorID,
		AvailabilityType: string(r.Kind),
		SchedulingType:   string(r.Discipline),
		DurationMinutes:  r.SlotMinutes,
		StartTime:        r.Start.String(),
		EndTime:          r.End.String(),
		Capacity:         r.Capacity,
		IsActive:         r.IsActive,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	for _, w := range r.Weekdays {
		resp.DaysOfWeek = append(resp.DaysOfWeek, string(w))
	}
	if !r.Date.IsZero() {
		resp.SpecificDate = r.Date.String()
	}
	return resp
}

type AppointmentResponse struct {
	AppointmentID   uuid.UUID `json:"appointment_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	AvailabilityID  uuid.UUID `json:"availability_id"`
	AppointmentDate string    `json:"appointment_date"`
	SlotStartTime   string    `json:"slot_start_time"`
	SlotEndTime     string    `json:"slot_end_time"`
	TokenNumber     string    `json:"token_number"`
	PatientName     string    `json:"patient_name"`
	PatientRelation string    `json:"patient_relation"`
	Complaint       *string   `json:"complaint,omitempty"`
	VisitType       string    `json:"visit_type"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		AppointmentID:   a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		AvailabilityID:  a.AvailabilityID,
		AppointmentDate: a.Date.String(),
		SlotStartTime:   a.SlotStart.String(),
		SlotEndTime:     a.SlotEnd.String(),
		TokenNumber:     a.TokenNumber,
		PatientName:     a.PatientName,
		PatientRelation: a.PatientRelation,
		Complaint:       a.Complaint,
		VisitType:       a.VisitType,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []booking.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(appts))
	for i := range appts {
		out[i] = toAppointmentResponse(&appts[i])
	}
	return out
}

type AdmissionResponse struct {
	Message        string              `json:"message"`
	Appointment    AppointmentResponse `json:"appointment"`
	SlotsRemaining int                 `json:"slots_remaining"`
}

type DoctorResponse struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Name      string    `json:"name"`
	Specialty *string   `json:"specialization,omitempty"`
	Verified  bool      `json:"verified"`
}
