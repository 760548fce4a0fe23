// Package schedule resolves a date and provider into the open time windows
// left after weekly hours, breaks and date constraints are reconciled.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"salonbook/internal/database"
	"salonbook/internal/interval"
	"salonbook/internal/models"
)

// RuleStore is the slice of storage the resolver reads from.
type RuleStore interface {
	GetRuleForDay(ctx context.Context, providerID int64, dayOfWeek int) (*models.WorkingHoursRule, error)
	ConstraintsForDate(ctx context.Context, date string, providerID int64) ([]models.DateConstraint, error)
}

// DayWindows is a resolved day: its open windows plus the slot duration
// configured on the rule that produced them.
type DayWindows struct {
	Windows      []interval.Interval `json:"windows"`
	SlotDuration int                 `json:"slot_duration"`
}

// Resolver computes open windows for a (date, provider) pair.
type Resolver struct {
	store  RuleStore
	cache  *WindowCache
	logger *zerolog.Logger
}

func NewResolver(store RuleStore, logger *zerolog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// UseCache configures optional read-through caching of resolved days.
func (r *Resolver) UseCache(cache *WindowCache) {
	r.cache = cache
}

// Resolve returns the sorted, disjoint open windows for a date. A missing
// or malformed rule yields no windows rather than an error.
func (r *Resolver) Resolve(ctx context.Context, date time.Time, providerID int64) ([]interval.Interval, error) {
	day, err := r.ResolveDay(ctx, date, providerID)
	if err != nil || day == nil {
		return nil, err
	}
	return day.Windows, nil
}

// ResolveDay is Resolve plus the effective slot duration; the seeder needs
// both. Returns nil when the day is closed.
func (r *Resolver) ResolveDay(ctx context.Context, date time.Time, providerID int64) (*DayWindows, error) {
	dateStr := date.Format(models.DateLayout)

	if r.cache != nil {
		if day, ok := r.cache.Get(ctx, dateStr, providerID); ok {
			return day, nil
		}
	}

	rule, err := r.lookupRule(ctx, date, providerID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		// No active rule for that weekday: the day is simply closed.
		return nil, nil
	}

	window, err := interval.Parse(rule.StartTime, rule.EndTime)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn().Err(err).Int("day_of_week", rule.DayOfWeek).
				Int64("provider_id", rule.ProviderID).Msg("malformed working hours rule, treating day as closed")
		}
		return nil, nil
	}

	holes, err := r.collectHoles(ctx, rule, dateStr, providerID)
	if err != nil {
		return nil, err
	}

	day := &DayWindows{
		Windows:      interval.Subtract([]interval.Interval{window}, holes),
		SlotDuration: rule.SlotDuration,
	}
	if len(day.Windows) == 0 {
		return nil, nil
	}

	if r.cache != nil {
		r.cache.Put(ctx, dateStr, providerID, day)
	}
	return day, nil
}

// lookupRule finds the provider's rule for the weekday, falling back to the
// salon-wide rule. A nil return means the day is closed.
func (r *Resolver) lookupRule(ctx context.Context, date time.Time, providerID int64) (*models.WorkingHoursRule, error) {
	dayOfWeek := int(date.Weekday())

	rule, err := r.store.GetRuleForDay(ctx, providerID, dayOfWeek)
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("lookup provider rule: %w", err)
	}
	if providerID == models.SalonWide {
		return nil, nil
	}

	rule, err = r.store.GetRuleForDay(ctx, models.SalonWide, dayOfWeek)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup fallback rule: %w", err)
	}
	return rule, nil
}

func (r *Resolver) collectHoles(ctx context.Context, rule *models.WorkingHoursRule, dateStr string, providerID int64) ([]interval.Interval, error) {
	var holes []interval.Interval

	for _, b := range rule.Breaks {
		iv, err := interval.Parse(b.StartTime, b.EndTime)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn().Err(err).Int64("rule_id", rule.ID).Msg("skipping malformed break")
			}
			continue
		}
		holes = append(holes, iv)
	}

	constraints, err := r.store.ConstraintsForDate(ctx, dateStr, providerID)
	if err != nil {
		return nil, fmt.Errorf("constraints for %s: %w", dateStr, err)
	}
	for _, c := range constraints {
		iv, err := interval.Parse(c.StartTime, c.EndTime)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn().Err(err).Int64("constraint_id", c.ID).Msg("skipping malformed constraint")
			}
			continue
		}
		holes = append(holes, iv)
	}

	return holes, nil
}
