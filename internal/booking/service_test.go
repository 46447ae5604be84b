package booking

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cliniqly/clinic-scheduling/internal/directory"
	redisclient "github.com/cliniqly/clinic-scheduling/internal/redis"
	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

// In-memory fakes

type memRepo struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]Appointment
	events []Event
}

func newMemRepo() *memRepo {
	return &memRepo{appts: make(map[uuid.UUID]Appointment)}
}

func (m *memRepo) AppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) CountWaiting(_ context.Context, key SlotKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.appts {
		if a.SlotKey() == key && a.Status == StatusWaiting {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) CreateAppointment(_ context.Context, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appts[appt.ID] = *appt
	return nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	m.appts[id] = a
	return &a, nil
}

func (m *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[j].Date.Before(out[i].Date)
		}
		return out[j].SlotStart.Before(out[i].SlotStart)
	})
	return out, nil
}

func (m *memRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, date *schedule.Date) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.DoctorID != doctorID {
			continue
		}
		if date != nil && a.Date != *date {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].SlotStart.Before(out[j].SlotStart)
	})
	return out, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

type stubRules struct {
	rules map[uuid.UUID]*schedule.AvailabilityRule
}

func (s *stubRules) RuleByID(_ context.Context, id uuid.UUID) (*schedule.AvailabilityRule, error) {
	rule, ok := s.rules[id]
	if !ok {
		return nil, schedule.ErrRuleNotFound
	}
	return rule, nil
}

type stubPatients struct {
	byAccount map[uuid.UUID]*directory.Patient
}

func (s *stubPatients) PatientByAccount(_ context.Context, accountID uuid.UUID) (*directory.Patient, error) {
	p, ok := s.byAccount[accountID]
	if !ok {
		return nil, directory.ErrPatientNotFound
	}
	return p, nil
}

// Fixture

type fixture struct {
	svc      *Service
	repo     *memRepo
	rule     *schedule.AvailabilityRule
	doctorID uuid.UUID
	accounts []uuid.UUID
	patients *stubPatients
}

func newFixture(t *testing.T, capacity, patientCount int) *fixture {
	t.Helper()

	doctorID := uuid.New()
	start, err := schedule.ParseTimeOfDay("10:00")
	require.NoError(t, err)
	end, err := schedule.ParseTimeOfDay("10:30")
	require.NoError(t, err)

	rule := &schedule.AvailabilityRule{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Kind:        schedule.KindRecurring,
		Weekdays:    []schedule.Weekday{schedule.Monday},
		Discipline:  schedule.DisciplineWave,
		SlotMinutes: 30,
		Start:       start,
		End:         end,
		Capacity:    capacity,
		IsActive:    true,
	}

	patients := &stubPatients{byAccount: make(map[uuid.UUID]*directory.Patient)}
	accounts := make([]uuid.UUID, patientCount)
	for i := range accounts {
		accountID := uuid.New()
		accounts[i] = accountID
		patients.byAccount[accountID] = &directory.Patient{
			ID:        uuid.New(),
			AccountID: accountID,
			Name:      "Test Patient",
		}
	}

	repo := newMemRepo()
	svc := NewService(
		repo,
		&stubRules{rules: map[uuid.UUID]*schedule.AvailabilityRule{rule.ID: rule}},
		patients,
		redisclient.NewMutexLocker(),
		zap.NewNop(),
	)

	return &fixture{
		svc:      svc,
		repo:     repo,
		rule:     rule,
		doctorID: doctorID,
		accounts: accounts,
		patients: patients,
	}
}

func (f *fixture) request(t *testing.T) BookingRequest {
	t.Helper()
	date, err := schedule.ParseDate("2026-09-07")
	require.NoError(t, err)
	return BookingRequest{
		DoctorID:        f.doctorID,
		AvailabilityID:  f.rule.ID,
		Date:            date,
		SlotStart:       f.rule.Start,
		SlotEnd:         f.rule.End,
		PatientName:     "Test Patient",
		PatientRelation: "self",
		VisitType:       "first_time",
	}
}

// Tests

func TestBookAdmits(t *testing.T) {
	f := newFixture(t, 3, 1)

	admission, err := f.svc.Book(context.Background(), f.accounts[0], f.request(t))
	require.NoError(t, err)

	assert.Equal(t, StatusWaiting, admission.Appointment.Status)
	assert.Equal(t, 2, admission.SlotsRemaining)
	assert.Regexp(t, regexp.MustCompile(`^DOC-[0-9a-f]{8}-20260907-\d{3}$`), admission.Appointment.TokenNumber)
	assert.Equal(t, f.patients.byAccount[f.accounts[0]].ID, admission.Appointment.PatientID)
}

func TestBookUnknownAccount(t *testing.T) {
	f := newFixture(t, 3, 1)

	_, err := f.svc.Book(context.Background(), uuid.New(), f.request(t))
	assert.ErrorIs(t, err, directory.ErrPatientNotFound)
}

func TestBookUnknownRule(t *testing.T) {
	f := newFixture(t, 3, 1)

	req := f.request(t)
	req.AvailabilityID = uuid.New()

	_, err := f.svc.Book(context.Background(), f.accounts[0], req)
	assert.ErrorIs(t, err, schedule.ErrRuleNotFound)
}

func TestBookCapacityExhausted(t *testing.T) {
	f := newFixture(t, 3, 4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Book(ctx, f.accounts[i], f.request(t))
		require.NoError(t, err)
	}

	_, err := f.svc.Book(ctx, f.accounts[3], f.request(t))

	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 3, capErr.Booked)
	assert.Equal(t, 3, capErr.Capacity)

	// A rejected admission leaves no trace.
	count, err := f.repo.CountWaiting(ctx, f.request(t).toSlotKey())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func (r BookingRequest) toSlotKey() SlotKey {
	return SlotKey{AvailabilityID: r.AvailabilityID, Date: r.Date, Start: r.SlotStart, End: r.SlotEnd}
}

func TestConcurrentBookingHoldsCapacityBound(t *testing.T) {
	const capacity = 3
	const attempts = capacity + 5

	f := newFixture(t, capacity, attempts)
	ctx := context.Background()
	req := f.request(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(account uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.Book(ctx, account, req)

			mu.Lock()
			defer mu.Unlock()
			var capErr *CapacityError
			switch {
			case err == nil:
				admitted++
			case errors.As(err, &capErr):
				rejected++
			default:
				t.Errorf("unexpected booking error: %v", err)
			}
		}(f.accounts[i])
	}
	wg.Wait()

	assert.Equal(t, capacity, admitted, "exactly capacity admissions")
	assert.Equal(t, attempts-capacity, rejected, "the rest fail with CapacityError")

	count, err := f.repo.CountWaiting(ctx, req.toSlotKey())
	require.NoError(t, err)
	assert.Equal(t, capacity, count)
}

func TestCancellationFreesCapacity(t *testing.T) {
	f := newFixture(t, 3, 5)
	ctx := context.Background()

	var first *Admission
	for i := 0; i < 3; i++ {
		admission, err := f.svc.Book(ctx, f.accounts[i], f.request(t))
		require.NoError(t, err)
		if i == 0 {
			first = admission
		}
	}

	// Slot is full now.
	_, err := f.svc.Book(ctx, f.accounts[3], f.request(t))
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)

	// The owner cancels; the key frees up for the next admission.
	_, err = f.svc.Cancel(ctx, f.accounts[0], RolePatient, first.Appointment.ID)
	require.NoError(t, err)

	admission, err := f.svc.Book(ctx, f.accounts[4], f.request(t))
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, admission.Appointment.Status)
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture(t, 3, 2)
	ctx := context.Background()

	admission, err := f.svc.Book(ctx, f.accounts[0], f.request(t))
	require.NoError(t, err)
	apptID := admission.Appointment.ID

	// Another patient may not cancel it.
	_, err = f.svc.Cancel(ctx, f.accounts[1], RolePatient, apptID)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// And the appointment is untouched.
	appt, err := f.repo.AppointmentByID(ctx, apptID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, appt.Status)

	// Any doctor account may cancel any appointment; there is no ownership
	// check on the doctor side.
	_, err = f.svc.Cancel(ctx, uuid.New(), RoleDoctor, apptID)
	assert.NoError(t, err)

	appt, err = f.repo.AppointmentByID(ctx, apptID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, appt.Status)
}

func TestCancelTerminalRejected(t *testing.T) {
	f := newFixture(t, 3, 1)
	ctx := context.Background()

	admission, err := f.svc.Book(ctx, f.accounts[0], f.request(t))
	require.NoError(t, err)
	apptID := admission.Appointment.ID

	_, err = f.svc.Cancel(ctx, f.accounts[0], RolePatient, apptID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, f.accounts[0], RolePatient, apptID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Cancel(ctx, f.accounts[0], RolePatient, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	f := newFixture(t, 3, 1)
	ctx := context.Background()

	admission, err := f.svc.Book(ctx, f.accounts[0], f.request(t))
	require.NoError(t, err)
	apptID := admission.Appointment.ID

	// Only the owning doctor may drive the lifecycle.
	_, err = f.svc.UpdateStatus(ctx, uuid.New(), apptID, StatusInConsultation)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// waiting -> completed skips a state.
	_, err = f.svc.UpdateStatus(ctx, f.doctorID, apptID, StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, f.doctorID, apptID, "triaged")
	assert.ErrorIs(t, err, ErrUnknownStatus)

	appt, err := f.svc.UpdateStatus(ctx, f.doctorID, apptID, StatusInConsultation)
	require.NoError(t, err)
	assert.Equal(t, StatusInConsultation, appt.Status)

	appt, err = f.svc.UpdateStatus(ctx, f.doctorID, apptID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, appt.Status)

	// Terminal states accept nothing further.
	_, err = f.svc.UpdateStatus(ctx, f.doctorID, apptID, StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListOrdering(t *testing.T) {
	f := newFixture(t, 10, 1)
	ctx := context.Background()

	dates := []string{"2026-09-07", "2026-09-14", "2026-09-21"}
	for _, d := range dates {
		req := f.request(t)
		parsed, err := schedule.ParseDate(d)
		require.NoError(t, err)
		req.Date = parsed
		_, err = f.svc.Book(ctx, f.accounts[0], req)
		require.NoError(t, err)
	}

	mine, err := f.svc.PatientAppointments(ctx, f.accounts[0])
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, "2026-09-21", mine[0].Date.String(), "patient listing is most recent first")

	theirs, err := f.svc.DoctorAppointments(ctx, f.doctorID, nil)
	require.NoError(t, err)
	require.Len(t, theirs, 3)
	assert.Equal(t, "2026-09-07", theirs[0].Date.String(), "doctor listing is ascending")

	filter, err := schedule.ParseDate("2026-09-14")
	require.NoError(t, err)
	filtered, err := f.svc.DoctorAppointments(ctx, f.doctorID, &filter)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "2026-09-14", filtered[0].Date.String())
}

func TestBookingEventsRecorded(t *testing.T) {
	f := newFixture(t, 3, 1)
	ctx := context.Background()

	admission, err := f.svc.Book(ctx, f.accounts[0], f.request(t))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, f.accounts[0], RolePatient, admission.Appointment.ID)
	require.NoError(t, err)

	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	require.Len(t, f.repo.events, 2)
	assert.Equal(t, EventBookingAdmitted, f.repo.events[0].EventType)
	assert.Equal(t, EventBookingCancelled, f.repo.events[1].EventType)
}
