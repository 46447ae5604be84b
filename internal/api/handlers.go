package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cliniqly/clinic-scheduling/internal/booking"
	"github.com/cliniqly/clinic-scheduling/internal/directory"
	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

var validate = validator.New()

type Handlers struct {
	schedule *schedule.Service
	booking  *booking.Service
	dir      directory.Repository
	logger   *zap.Logger
}

func NewHandlers(scheduleSvc *schedule.Service, bookingSvc *booking.Service, dir directory.Repository, logger *zap.Logger) *Handlers {
	return &Handlers{
		schedule: scheduleSvc,
		booking:  bookingSvc,
		dir:      dir,
		logger:   logger,
	}
}

// decodeAndValidate parses the JSON body and runs struct validation,
// writing the 4xx response itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

// Availability management (doctor)

func (h *Handlers) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	doctor, ok := h.requireDoctor(w, r)
	if !ok {
		return
	}

	var req CreateAvailabilityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	spec, ok := h.ruleSpecFromRequest(w, req)
	if !ok {
		return
	}

	rule, err := h.schedule.CreateRule(r.Context(), doctor.ID, spec)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAvailabilityResponse(rule))
}

func (h *Handlers) ListMyAvailability(w http.ResponseWriter, r *http.Request) {
	doctor, ok := h.requireDoctor(w, r)
	if !ok {
		return
	}

	rules, err := h.schedule.RulesForDoctor(r.Context(), doctor.ID)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	resp := make([]AvailabilityResponse, len(rules))
	for i := range rules {
		resp[i] = toAvailabilityResponse(&rules[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "availabilityID")
	if !ok {
		return
	}

	var req UpdateAvailabilityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	patch, ok := h.rulePatchFromRequest(w, req)
	if !ok {
		return
	}

	rule, err := h.schedule.UpdateRule(r.Context(), id, patch)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAvailabilityResponse(rule))
}

func (h *Handlers) DeactivateAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "availabilityID")
	if !ok {
		return
	}

	if err := h.schedule.DeactivateRule(r.Context(), id); err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Availability deactivated"})
}

func (h *Handlers) PreviewSlots(w http.ResponseWriter, r *http.Request) {
	doctor, ok := h.requireDoctor(w, r)
	if !ok {
		return
	}

	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	day, err := h.schedule.SlotsByDate(r.Context(), doctor.ID, date)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, day)
}

// Public read paths

func (h *Handlers) DoctorSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseUUIDParam(w, r, "doctorID")
	if !ok {
		return
	}
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	doctor, err := h.dir.DoctorByID(r.Context(), doctorID)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	// Unverified doctors never surface slots to patients.
	if !doctor.Verified {
		writeJSON(w, http.StatusOK, schedule.DaySchedule{Date: date, Message: schedule.NoAvailabilityMessage})
		return
	}

	day, err := h.schedule.SlotsByDate(r.Context(), doctorID, date)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, day)
}

func (h *Handlers) SearchDoctors(w http.ResponseWriter, r *http.Request) {
	specialty := r.URL.Query().Get("specialization")
	if specialty == "" {
		writeError(w, http.StatusBadRequest, "missing_specialization", "specialization query parameter is required")
		return
	}

	doctors, err := h.dir.SearchDoctorsBySpecialty(r.Context(), specialty)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	resp := make([]DoctorResponse, len(doctors))
	for i, d := range doctors {
		resp[i] = DoctorResponse{DoctorID: d.ID, Name: d.Name, Specialty: d.Specialty, Verified: d.Verified}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListSpecialties(w http.ResponseWriter, r *http.Request) {
	specialties, err := h.dir.ListSpecialties(r.Context())
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, specialties)
}

// Admin

func (h *Handlers) VerifyDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseUUIDParam(w, r, "doctorID")
	if !ok {
		return
	}

	var req VerifyDoctorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	doctor, err := h.dir.SetDoctorVerified(r.Context(), doctorID, req.Status == "active")
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DoctorResponse{DoctorID: doctor.ID, Name: doctor.Name, Specialty: doctor.Specialty, Verified: doctor.Verified})
}

// Appointments

func (h *Handlers) BookAppointment(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	var req BookAppointmentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	bookingReq, ok := h.bookingRequestFrom(w, req)
	if !ok {
		return
	}

	admission, err := h.booking.Book(r.Context(), identity.AccountID, bookingReq)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AdmissionResponse{
		Message:        "Appointment booked successfully",
		Appointment:    toAppointmentResponse(admission.Appointment),
		SlotsRemaining: admission.SlotsRemaining,
	})
}

func (h *Handlers) MyAppointments(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	appts, err := h.booking.PatientAppointments(r.Context(), identity.AccountID)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
}

func (h *Handlers) DoctorAppointments(w http.ResponseWriter, r *http.Request) {
	doctor, ok := h.requireDoctor(w, r)
	if !ok {
		return
	}

	var date *schedule.Date
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := schedule.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		date = &parsed
	}

	appts, err := h.booking.DoctorAppointments(r.Context(), doctor.ID, date)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
}

func (h *Handlers) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	doctor, ok := h.requireDoctor(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "appointmentID")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	appt, err := h.booking.UpdateStatus(r.Context(), doctor.ID, id, booking.Status(req.Status))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	id, ok := parseUUIDParam(w, r, "appointmentID")
	if !ok {
		return
	}

	appt, err := h.booking.Cancel(r.Context(), identity.AccountID, identity.Role, id)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Appointment cancelled successfully",
		"appointment": toAppointmentResponse(appt),
	})
}

// Helpers

func (h *Handlers) requireDoctor(w http.ResponseWriter, r *http.Request) (*directory.Doctor, bool) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "authentication required")
		return nil, false
	}

	doctor, err := h.dir.DoctorByAccount(r.Context(), identity.AccountID)
	if err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			writeError(w, http.StatusNotFound, "doctor_profile_not_found", "no doctor profile for this account")
			return nil, false
		}
		h.handleDomainError(w, err)
		return nil, false
	}

	return doctor, true
}

func (h *Handlers) ruleSpecFromRequest(w http.ResponseWriter, req CreateAvailabilityRequest) (schedule.RuleSpec, bool) {
	spec := schedule.RuleSpec{
		Kind:        schedule.RuleKind(req.AvailabilityType),
		Discipline:  schedule.Discipline(req.SchedulingType),
		SlotMinutes: req.DurationMinutes,
		Capacity:    req.Capacity,
	}

	var err error
	if spec.Start, err = schedule.ParseTimeOfDay(req.StartTime); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
		return schedule.RuleSpec{}, false
	}
	if spec.End, err = schedule.ParseTimeOfDay(req.EndTime); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
		return schedule.RuleSpec{}, false
	}

	for _, d := range req.DaysOfWeek {
		spec.Weekdays = append(spec.Weekdays, schedule.Weekday(d))
	}
	if req.SpecificDate != "" {
		if spec.Date, err = schedule.ParseDate(req.SpecificDate); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "specific_date must be YYYY-MM-DD")
			return schedule.RuleSpec{}, false
		}
	}

	return spec, true
}

func (h *Handlers) rulePatchFromRequest(w http.ResponseWriter, req UpdateAvailabilityRequest) (schedule.RulePatch, bool) {
	var patch schedule.RulePatch

	for _, d := range req.DaysOfWeek {
		patch.Weekdays = append(patch.Weekdays, schedule.Weekday(d))
	}
	if req.SpecificDate != nil {
		parsed, err := schedule.ParseDate(*req.SpecificDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "specific_date must be YYYY-MM-DD")
			return schedule.RulePatch{}, false
		}
		patch.Date = &parsed
	}
	if req.SchedulingType != nil {
		d := schedule.Discipline(*req.SchedulingType)
		patch.Discipline = &d
	}
	patch.SlotMinutes = req.DurationMinutes
	if req.StartTime != nil {
		parsed, err := schedule.ParseTimeOfDay(*req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return schedule.RulePatch{}, false
		}
		patch.Start = &parsed
	}
	if req.EndTime != nil {
		parsed, err := schedule.ParseTimeOfDay(*req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
			return schedule.RulePatch{}, false
		}
		patch.End = &parsed
	}
	patch.Capacity = req.Capacity

	return patch, true
}

func (h *Handlers) bookingRequestFrom(w http.ResponseWriter, req BookAppointmentRequest) (booking.BookingRequest, bool) {
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return booking.BookingRequest{}, false
	}
	availabilityID, err := uuid.Parse(req.AvailabilityID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_availability_id", "availability_id must be a valid UUID")
		return booking.BookingRequest{}, false
	}
	date, err := schedule.ParseDate(req.AppointmentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "appointment_date must be YYYY-MM-DD")
		return booking.BookingRequest{}, false
	}
	start, err := schedule.ParseTimeOfDay(req.SlotStartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time", "slot_start_time must be HH:MM")
		return booking.BookingRequest{}, false
	}
	end, err := schedule.ParseTimeOfDay(req.SlotEndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_time", "slot_end_time must be HH:MM")
		return booking.BookingRequest{}, false
	}

	relation := req.PatientRelation
	if relation == "" {
		relation = "self"
	}

	return booking.BookingRequest{
		DoctorID:        doctorID,
		AvailabilityID:  availabilityID,
		Date:            date,
		SlotStart:       start,
		SlotEnd:         end,
		PatientName:     req.PatientName,
		PatientRelation: relation,
		Complaint:       req.Complaint,
		VisitType:       req.VisitType,
	}, true
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDateParam(w http.ResponseWriter, r *http.Request) (schedule.Date, bool) {
	date, err := schedule.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return schedule.Date{}, false
	}
	return date, true
}

func (h *Handlers) handleDomainError(w http.ResponseWriter, err error) {
	var capErr *booking.CapacityError

	switch {
	case errors.Is(err, directory.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_profile_not_found", err.Error())
	case errors.Is(err, directory.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, schedule.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, "availability_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrInvalidRule):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.As(err, &capErr):
		writeError(w, http.StatusConflict, "slot_full", capErr.Error())
	case errors.Is(err, booking.ErrSlotBusy):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not_authorized", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrUnknownStatus):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		h.logger.Error("unhandled request error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
