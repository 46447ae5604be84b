package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const ruleColumns = `id, doctor_id, kind, weekdays, specific_date, discipline, slot_minutes, start_time, end_time, capacity, is_active, created_at, updated_at`

// Helpers

func scanRule(row pgx.Row) (*AvailabilityRule, error) {
	var (
		r        AvailabilityRule
		weekdays []string
		date     *time.Time
		start    string
		end      string
	)

	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&r.Kind,
		&weekdays,
		&date,
		&r.Discipline,
		&r.SlotMinutes,
		&start,
		&end,
		&r.Capacity,
		&r.IsActive,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	for _, w := range weekdays {
		r.Weekdays = append(r.Weekdays, Weekday(w))
	}
	if date != nil {
		r.Date = DateOf(*date)
	}
	if r.Start, err = ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	if r.End, err = ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}

	return &r, nil
}

func scanRules(rows pgx.Rows) ([]AvailabilityRule, error) {
	defer rows.Close()

	var result []AvailabilityRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func weekdayStrings(weekdays []Weekday) []string {
	if weekdays == nil {
		return nil
	}
	out := make([]string, len(weekdays))
	for i, w := range weekdays {
		out[i] = string(w)
	}
	return out
}

func nullableDate(d Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time()
	return &t
}

// Interface methods

func (r *PgRepository) CreateRule(ctx context.Context, rule *AvailabilityRule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_rules
			(id, doctor_id, kind, weekdays, specific_date, discipline, slot_minutes, start_time, end_time, capacity, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
	`,
		rule.ID, rule.DoctorID, rule.Kind, weekdayStrings(rule.Weekdays), nullableDate(rule.Date),
		rule.Discipline, rule.SlotMinutes, rule.Start.String(), rule.End.String(), rule.Capacity, rule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("insert availability rule: %w", err)
	}
	return nil
}

func (r *PgRepository) RuleByID(ctx context.Context, id uuid.UUID) (*AvailabilityRule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE id = $1
	`, id)
	return scanRule(row)
}

func (r *PgRepository) UpdateRule(ctx context.Context, rule *AvailabilityRule) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_rules
		SET weekdays = $2,
		    specific_date = $3,
		    discipline = $4,
		    slot_minutes = $5,
		    start_time = $6,
		    end_time = $7,
		    capacity = $8,
		    is_active = $9,
		    updated_at = now()
		WHERE id = $1
	`,
		rule.ID, weekdayStrings(rule.Weekdays), nullableDate(rule.Date), rule.Discipline,
		rule.SlotMinutes, rule.Start.String(), rule.End.String(), rule.Capacity, rule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update availability rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *PgRepository) ActiveCustomRules(ctx context.Context, doctorID uuid.UUID, date Date) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE doctor_id = $1
		  AND kind = 'custom'
		  AND specific_date = $2
		  AND is_active
		ORDER BY start_time
	`, doctorID, date.Time())
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (r *PgRepository) ActiveRecurringRules(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE doctor_id = $1
		  AND kind = 'recurring'
		  AND is_active
		ORDER BY start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (r *PgRepository) RulesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE doctor_id = $1
		ORDER BY created_at
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}
