package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"salonbook/internal/models"
)

// GetRuleForDay returns the active weekly rule for a provider and weekday,
// breaks included. Returns ErrNotFound when no active rule exists; the
// caller decides whether to fall back to the salon-wide rule.
func (db *DB) GetRuleForDay(ctx context.Context, providerID int64, dayOfWeek int) (*models.WorkingHoursRule, error) {
	var r models.WorkingHoursRule
	err := db.QueryRowContext(ctx, `
		SELECT id, provider_id, day_of_week, start_time, end_time,
		       slot_duration, is_active, created_at, updated_at
		FROM working_hours
		WHERE provider_id = ? AND day_of_week = ? AND is_active = 1
		LIMIT 1`,
		providerID, dayOfWeek,
	).Scan(
		&r.ID, &r.ProviderID, &r.DayOfWeek, &r.StartTime, &r.EndTime,
		&r.SlotDuration, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}

	breaks, err := db.getBreaks(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Breaks = breaks
	return &r, nil
}

func (db *DB) getBreaks(ctx context.Context, ruleID int64) ([]models.BreakInterval, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, rule_id, start_time, end_time
		FROM break_intervals WHERE rule_id = ? ORDER BY start_time`,
		ruleID,
	)
	if err != nil {
		return nil, fmt.Errorf("get breaks: %w", err)
	}
	defer rows.Close()

	var breaks []models.BreakInterval
	for rows.Next() {
		var b models.BreakInterval
		if err := rows.Scan(&b.ID, &b.RuleID, &b.StartTime, &b.EndTime); err != nil {
			return nil, err
		}
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}

// UpsertRule creates or replaces the weekly rule for (provider, weekday)
// and rewrites its breaks.
func (db *DB) UpsertRule(ctx context.Context, r *models.WorkingHoursRule) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO working_hours (
			provider_id, day_of_week, start_time, end_time,
			slot_duration, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_id, day_of_week) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			slot_duration = excluded.slot_duration,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		r.ProviderID, r.DayOfWeek, r.StartTime, r.EndTime,
		r.SlotDuration, r.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}

	// The upsert may have updated an existing row; resolve the id by key.
	var ruleID int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM working_hours WHERE provider_id = ? AND day_of_week = ?",
		r.ProviderID, r.DayOfWeek,
	).Scan(&ruleID)
	if err != nil {
		return fmt.Errorf("resolve rule id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM break_intervals WHERE rule_id = ?", ruleID); err != nil {
		return fmt.Errorf("clear breaks: %w", err)
	}
	for _, b := range r.Breaks {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO break_intervals (rule_id, start_time, end_time) VALUES (?, ?, ?)",
			ruleID, b.StartTime, b.EndTime,
		); err != nil {
			return fmt.Errorf("insert break: %w", err)
		}
	}

	r.ID = ruleID
	return tx.Commit()
}

// ConstraintsForDate returns closures applying to a provider on a date:
// the provider's own plus salon-wide ones.
func (db *DB) ConstraintsForDate(ctx context.Context, date string, providerID int64) ([]models.DateConstraint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, provider_id, date, start_time, end_time,
		       COALESCE(reason, ''), created_at
		FROM date_constraints
		WHERE date = ? AND provider_id IN (?, ?)
		ORDER BY start_time`,
		date, providerID, models.SalonWide,
	)
	if err != nil {
		return nil, fmt.Errorf("get constraints: %w", err)
	}
	defer rows.Close()

	var constraints []models.DateConstraint
	for rows.Next() {
		var c models.DateConstraint
		if err := rows.Scan(&c.ID, &c.ProviderID, &c.Date, &c.StartTime, &c.EndTime, &c.Reason, &c.CreatedAt); err != nil {
			return nil, err
		}
		constraints = append(constraints, c)
	}
	return constraints, rows.Err()
}

// CreateConstraint records a forced closure for a date.
func (db *DB) CreateConstraint(ctx context.Context, c *models.DateConstraint) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO date_constraints (provider_id, date, start_time, end_time, reason)
		VALUES (?, ?, ?, ?, ?)`,
		c.ProviderID, c.Date, c.StartTime, c.EndTime, c.Reason,
	)
	if err != nil {
		return fmt.Errorf("create constraint: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

// DeleteConstraint removes a closure by id.
func (db *DB) DeleteConstraint(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, "DELETE FROM date_constraints WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecurringRulesForWeekday returns active recurring assignments for a weekday.
func (db *DB) RecurringRulesForWeekday(ctx context.Context, dayOfWeek int) ([]models.RecurringRule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, provider_id, day_of_week, time, service_name,
		       client_name, client_phone,
		       COALESCE(valid_from, ''), COALESCE(valid_until, ''),
		       is_active, created_at
		FROM recurring_rules
		WHERE day_of_week = ? AND is_active = 1
		ORDER BY time`,
		dayOfWeek,
	)
	if err != nil {
		return nil, fmt.Errorf("get recurring rules: %w", err)
	}
	defer rows.Close()

	var rules []models.RecurringRule
	for rows.Next() {
		var r models.RecurringRule
		if err := rows.Scan(
			&r.ID, &r.ProviderID, &r.DayOfWeek, &r.Time, &r.ServiceName,
			&r.ClientName, &r.ClientPhone, &r.ValidFrom, &r.ValidUntil,
			&r.IsActive, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// CreateRecurringRule registers a standing weekly assignment.
func (db *DB) CreateRecurringRule(ctx context.Context, r *models.RecurringRule) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO recurring_rules (
			provider_id, day_of_week, time, service_name,
			client_name, client_phone, valid_from, valid_until, is_active
		) VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)`,
		r.ProviderID, r.DayOfWeek, r.Time, r.ServiceName,
		r.ClientName, r.ClientPhone, r.ValidFrom, r.ValidUntil, r.IsActive,
	)
	if err != nil {
		return fmt.Errorf("create recurring rule: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}
