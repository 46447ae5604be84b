package schedule

import (
	"time"

	"github.com/google/uuid"
)

type RuleKind string

const (
	KindRecurring RuleKind = "recurring"
	KindCustom    RuleKind = "custom"
)

type Discipline string

const (
	// DisciplineStream pools the rule's capacity across the whole window.
	DisciplineStream Discipline = "stream"
	// DisciplineWave cuts the window into fixed-duration sub-slots, each
	// with its own capacity.
	DisciplineWave Discipline = "wave"
)

// AvailabilityRule is a doctor's declared willingness to see patients.
// Kind selects which payload is meaningful: recurring rules carry Weekdays,
// custom rules carry Date. SlotMinutes is only meaningful for wave rules.
type AvailabilityRule struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	Kind        RuleKind
	Weekdays    []Weekday // recurring only
	Date        Date      // custom only
	Discipline  Discipline
	SlotMinutes int // wave only
	Start       TimeOfDay
	End         TimeOfDay
	Capacity    int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AppliesTo reports whether an active rule governs the given date. Custom
// rules match their exact date; recurring rules match by weekday.
func (r *AvailabilityRule) AppliesTo(date Date) bool {
	if !r.IsActive {
		return false
	}
	if r.Kind == KindCustom {
		return r.Date == date
	}
	wd := date.Weekday()
	for _, w := range r.Weekdays {
		if w == wd {
			return true
		}
	}
	return false
}

// Slot is a concrete bookable time unit derived from a rule. Slots are
// recomputed on every query and never persisted; occupancy lives in the
// appointment rows keyed by (availability, date, start, end).
type Slot struct {
	AvailabilityID uuid.UUID  `json:"availability_id"`
	Discipline     Discipline `json:"scheduling_type"`
	Start          TimeOfDay  `json:"slot_start_time"`
	End            TimeOfDay  `json:"slot_end_time"`
	Capacity       int        `json:"capacity"`
	Session        string     `json:"session,omitempty"`
}

// DaySchedule is the read-path result for one doctor and date. Message is set
// instead of Slots when nothing is bookable.
type DaySchedule struct {
	Date    Date   `json:"date"`
	Slots   []Slot `json:"slots"`
	Message string `json:"message,omitempty"`
}

// RuleSpec is the creation payload for an availability rule.
type RuleSpec struct {
	Kind        RuleKind
	Weekdays    []Weekday
	Date        Date
	Discipline  Discipline
	SlotMinutes int
	Start       TimeOfDay
	End         TimeOfDay
	Capacity    int
}

// RulePatch is a field-level partial update; nil fields are left untouched.
type RulePatch struct {
	Weekdays    []Weekday
	Date        *Date
	Discipline  *Discipline
	SlotMinutes *int
	Start       *TimeOfDay
	End         *TimeOfDay
	Capacity    *int
}
