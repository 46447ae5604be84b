package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cliniqly/clinic-scheduling/internal/booking"
	"github.com/cliniqly/clinic-scheduling/internal/directory"
	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

func TestHandleDomainErrorMapping(t *testing.T) {
	h := &Handlers{logger: zap.NewNop()}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"patient missing", directory.ErrPatientNotFound, http.StatusNotFound, "patient_profile_not_found"},
		{"doctor missing", directory.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{"rule missing", schedule.ErrRuleNotFound, http.StatusNotFound, "availability_not_found"},
		{"appointment missing", booking.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{"invalid rule", fmt.Errorf("%w: start after end", schedule.ErrInvalidRule), http.StatusBadRequest, "validation_failed"},
		{"slot full", &booking.CapacityError{Booked: 3, Capacity: 3}, http.StatusConflict, "slot_full"},
		{"slot being booked", booking.ErrSlotBusy, http.StatusConflict, "slot_being_booked"},
		{"not authorized", booking.ErrNotAuthorized, http.StatusForbidden, "not_authorized"},
		{"bad transition", fmt.Errorf("%w: completed -> waiting", booking.ErrInvalidTransition), http.StatusConflict, "invalid_status_transition"},
		{"unknown status", booking.ErrUnknownStatus, http.StatusConflict, "invalid_status_transition"},
		{"unexpected", fmt.Errorf("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.handleDomainError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantCode, resp.Error)
		})
	}
}

func TestDecodeAndValidate(t *testing.T) {
	newReq := func(body string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(body))
	}

	t.Run("malformed json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		var req UpdateStatusRequest
		ok := decodeAndValidate(rec, newReq("{not json"), &req)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("fails struct validation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		var req UpdateStatusRequest
		ok := decodeAndValidate(rec, newReq(`{}`), &req)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("valid payload", func(t *testing.T) {
		rec := httptest.NewRecorder()
		var req UpdateStatusRequest
		ok := decodeAndValidate(rec, newReq(`{"status":"in_consultation"}`), &req)
		assert.True(t, ok)
		assert.Equal(t, "in_consultation", req.Status)
	})
}

// Fakes for the public slot read path

type fakeDirectory struct {
	doctors map[uuid.UUID]*directory.Doctor
}

func (f *fakeDirectory) PatientByAccount(context.Context, uuid.UUID) (*directory.Patient, error) {
	return nil, directory.ErrPatientNotFound
}

func (f *fakeDirectory) DoctorByAccount(context.Context, uuid.UUID) (*directory.Doctor, error) {
	return nil, directory.ErrDoctorNotFound
}

func (f *fakeDirectory) DoctorByID(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, directory.ErrDoctorNotFound
	}
	return d, nil
}

func (f *fakeDirectory) SetDoctorVerified(_ context.Context, id uuid.UUID, verified bool) (*directory.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, directory.ErrDoctorNotFound
	}
	d.Verified = verified
	return d, nil
}

func (f *fakeDirectory) SearchDoctorsBySpecialty(context.Context, string) ([]directory.Doctor, error) {
	return nil, nil
}

func (f *fakeDirectory) ListSpecialties(context.Context) ([]string, error) {
	return nil, nil
}

type fakeRuleRepo struct {
	rules []schedule.AvailabilityRule
}

func (f *fakeRuleRepo) CreateRule(context.Context, *schedule.AvailabilityRule) error { return nil }

func (f *fakeRuleRepo) RuleByID(context.Context, uuid.UUID) (*schedule.AvailabilityRule, error) {
	return nil, schedule.ErrRuleNotFound
}

func (f *fakeRuleRepo) UpdateRule(context.Context, *schedule.AvailabilityRule) error { return nil }

func (f *fakeRuleRepo) ActiveCustomRules(context.Context, uuid.UUID, schedule.Date) ([]schedule.AvailabilityRule, error) {
	return nil, nil
}

func (f *fakeRuleRepo) ActiveRecurringRules(_ context.Context, doctorID uuid.UUID) ([]schedule.AvailabilityRule, error) {
	var out []schedule.AvailabilityRule
	for _, r := range f.rules {
		if r.DoctorID == doctorID && r.Kind == schedule.KindRecurring && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleRepo) RulesByDoctor(_ context.Context, doctorID uuid.UUID) ([]schedule.AvailabilityRule, error) {
	var out []schedule.AvailabilityRule
	for _, r := range f.rules {
		if r.DoctorID == doctorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func mondayWaveRule(t *testing.T, doctorID uuid.UUID) schedule.AvailabilityRule {
	t.Helper()
	start, err := schedule.ParseTimeOfDay("10:00")
	require.NoError(t, err)
	end, err := schedule.ParseTimeOfDay("11:00")
	require.NoError(t, err)

	return schedule.AvailabilityRule{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Kind:        schedule.KindRecurring,
		Weekdays:    []schedule.Weekday{schedule.Monday},
		Discipline:  schedule.DisciplineWave,
		SlotMinutes: 30,
		Start:       start,
		End:         end,
		Capacity:    2,
		IsActive:    true,
	}
}

func TestDoctorSlotsVerificationGate(t *testing.T) {
	verified := &directory.Doctor{ID: uuid.New(), AccountID: uuid.New(), Name: "Dr. Adams", Verified: true}
	unverified := &directory.Doctor{ID: uuid.New(), AccountID: uuid.New(), Name: "Dr. Baker", Verified: false}

	// Both doctors declare identical Monday availability; only verification
	// decides what patients see.
	repo := &fakeRuleRepo{rules: []schedule.AvailabilityRule{
		mondayWaveRule(t, verified.ID),
		mondayWaveRule(t, unverified.ID),
	}}
	dir := &fakeDirectory{doctors: map[uuid.UUID]*directory.Doctor{
		verified.ID:   verified,
		unverified.ID: unverified,
	}}

	h := NewHandlers(schedule.NewService(repo, zap.NewNop()), nil, dir, zap.NewNop())

	router := chi.NewRouter()
	router.Get("/doctors/{doctorID}/slots/{date}", h.DoctorSlots)

	// 2026-09-07 is a Monday.
	get := func(doctorID uuid.UUID) (int, schedule.DaySchedule) {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/doctors/%s/slots/2026-09-07", doctorID), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var day schedule.DaySchedule
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &day))
		}
		return rec.Code, day
	}

	code, day := get(verified.ID)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, day.Slots, 2)
	assert.Empty(t, day.Message)

	code, day = get(unverified.ID)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, day.Slots, "unverified doctors must not surface slots")
	assert.Equal(t, schedule.NoAvailabilityMessage, day.Message)

	code, _ = get(uuid.New())
	assert.Equal(t, http.StatusNotFound, code)
}
