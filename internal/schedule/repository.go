package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrRuleNotFound = errors.New("availability rule not found")
)

// Repository contains all DB interactions needed by the schedule service.
type Repository interface {
	CreateRule(ctx context.Context, rule *AvailabilityRule) error
	RuleByID(ctx context.Context, id uuid.UUID) (*AvailabilityRule, error)
	UpdateRule(ctx context.Context, rule *AvailabilityRule) error

	// Resolution paths. Both return active rules only.
	ActiveCustomRules(ctx context.Context, doctorID uuid.UUID, date Date) ([]AvailabilityRule, error)
	ActiveRecurringRules(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error)

	// Doctor-facing listing, active and inactive alike.
	RulesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error)
}
