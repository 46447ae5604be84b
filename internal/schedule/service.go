package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRule marks validation failures; wrapped errors carry the
	// specific field complaint.
	ErrInvalidRule = errors.New("invalid availability rule")
)

// NoAvailabilityMessage fills DaySchedule.Message whenever a date resolves to
// zero bookable slots, whatever the reason.
const NoAvailabilityMessage = "No availability for this date"

type Service struct {
	repo   Repository
	logger *zap.Logger
	today  func() Date
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		today:  Today,
	}
}

// CreateRule validates and stores a new availability rule for the doctor.
func (s *Service) CreateRule(ctx context.Context, doctorID uuid.UUID, spec RuleSpec) (*AvailabilityRule, error) {
	if err := s.validateSpec(spec); err != nil {
		return nil, err
	}

	rule := &AvailabilityRule{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Kind:        spec.Kind,
		Discipline:  spec.Discipline,
		SlotMinutes: spec.SlotMinutes,
		Start:       spec.Start,
		End:         spec.End,
		Capacity:    spec.Capacity,
		IsActive:    true,
	}
	switch spec.Kind {
	case KindRecurring:
		rule.Weekdays = spec.Weekdays
	case KindCustom:
		rule.Date = spec.Date
	}

	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}

	s.logger.Info("availability rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("doctor_id", doctorID.String()),
		zap.String("kind", string(rule.Kind)),
		zap.String("discipline", string(rule.Discipline)),
	)

	return rule, nil
}

// UpdateRule applies a field-level partial update. The rule's kind is fixed
// at creation; payload fields belonging to the other kind are rejected.
func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, patch RulePatch) (*AvailabilityRule, error) {
	rule, err := s.repo.RuleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Weekdays != nil {
		if rule.Kind != KindRecurring {
			return nil, fmt.Errorf("%w: weekdays only apply to recurring rules", ErrInvalidRule)
		}
		for _, w := range patch.Weekdays {
			if !ValidWeekday(w) {
				return nil, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRule, w)
			}
		}
		rule.Weekdays = patch.Weekdays
	}
	if patch.Date != nil {
		if rule.Kind != KindCustom {
			return nil, fmt.Errorf("%w: specific date only applies to custom rules", ErrInvalidRule)
		}
		if patch.Date.Before(s.today()) {
			return nil, fmt.Errorf("%w: specific date must not be in the past", ErrInvalidRule)
		}
		rule.Date = *patch.Date
	}
	if patch.Discipline != nil {
		rule.Discipline = *patch.Discipline
	}
	if patch.SlotMinutes != nil {
		rule.SlotMinutes = *patch.SlotMinutes
	}
	if patch.Start != nil {
		rule.Start = *patch.Start
	}
	if patch.End != nil {
		rule.End = *patch.End
	}
	if patch.Capacity != nil {
		rule.Capacity = *patch.Capacity
	}

	if err := s.validateWindow(rule.Discipline, rule.SlotMinutes, rule.Start, rule.End, rule.Capacity); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}

	return rule, nil
}

// DeactivateRule soft-deletes a rule. The row stays behind because historical
// appointments reference it.
func (s *Service) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	rule, err := s.repo.RuleByID(ctx, id)
	if err != nil {
		return err
	}

	rule.IsActive = false
	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}

	s.logger.Info("availability rule deactivated", zap.String("rule_id", id.String()))
	return nil
}

func (s *Service) RulesForDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error) {
	rules, err := s.repo.RulesByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

func (s *Service) RuleByID(ctx context.Context, id uuid.UUID) (*AvailabilityRule, error) {
	return s.repo.RuleByID(ctx, id)
}

// Resolve selects the rules governing one doctor and date. Active custom
// rules for the exact date override recurring rules entirely; otherwise
// recurring rules matching the date's weekday apply. Zero rules means "no
// availability", not an error.
func (s *Service) Resolve(ctx context.Context, doctorID uuid.UUID, date Date) ([]AvailabilityRule, error) {
	custom, err := s.repo.ActiveCustomRules(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load custom rules: %w", err)
	}
	if len(custom) > 0 {
		return custom, nil
	}

	recurring, err := s.repo.ActiveRecurringRules(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load recurring rules: %w", err)
	}

	wd := date.Weekday()
	var applicable []AvailabilityRule
	for _, rule := range recurring {
		for _, w := range rule.Weekdays {
			if w == wd {
				applicable = append(applicable, rule)
				break
			}
		}
	}
	return applicable, nil
}

// SlotsByDate is the read path behind slot previews. It carries no occupancy
// information: capacity is only checked at admission time, so the preview can
// be stale relative to concurrent bookings.
func (s *Service) SlotsByDate(ctx context.Context, doctorID uuid.UUID, date Date) (*DaySchedule, error) {
	rules, err := s.Resolve(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	var slots []Slot
	for i := range rules {
		slots = append(slots, Expand(&rules[i], date)...)
	}

	day := &DaySchedule{Date: date, Slots: slots}
	if len(slots) == 0 {
		day.Message = NoAvailabilityMessage
	}
	return day, nil
}

func (s *Service) validateSpec(spec RuleSpec) error {
	switch spec.Kind {
	case KindRecurring:
		if len(spec.Weekdays) == 0 {
			return fmt.Errorf("%w: recurring rules need at least one weekday", ErrInvalidRule)
		}
		for _, w := range spec.Weekdays {
			if !ValidWeekday(w) {
				return fmt.Errorf("%w: unknown weekday %q", ErrInvalidRule, w)
			}
		}
	case KindCustom:
		if spec.Date.IsZero() {
			return fmt.Errorf("%w: custom rules need a specific date", ErrInvalidRule)
		}
		if spec.Date.Before(s.today()) {
			return fmt.Errorf("%w: specific date must not be in the past", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, spec.Kind)
	}

	return s.validateWindow(spec.Discipline, spec.SlotMinutes, spec.Start, spec.End, spec.Capacity)
}

func (s *Service) validateWindow(discipline Discipline, slotMinutes int, start, end TimeOfDay, capacity int) error {
	switch discipline {
	case DisciplineStream:
	case DisciplineWave:
		if slotMinutes <= 0 {
			return fmt.Errorf("%w: wave rules need a positive slot duration", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown scheduling type %q", ErrInvalidRule, discipline)
	}

	if !start.Before(end) {
		return fmt.Errorf("%w: start time must be before end time", ErrInvalidRule)
	}
	if capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidRule)
	}
	return nil
}
