package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"salonbook/internal/events"
	"salonbook/internal/interval"
	"salonbook/internal/models"
)

// RuleWriter is the storage slice the editor writes through. The read
// method is needed to diff an edit against the prior rule.
type RuleWriter interface {
	GetRuleForDay(ctx context.Context, providerID int64, dayOfWeek int) (*models.WorkingHoursRule, error)
	UpsertRule(ctx context.Context, r *models.WorkingHoursRule) error
	CreateConstraint(ctx context.Context, c *models.DateConstraint) error
	DeleteConstraint(ctx context.Context, id int64) error
}

// Editor applies schedule edits: it persists the change, drops stale
// cached windows and announces new capacity so the waitlist can react.
type Editor struct {
	store  RuleWriter
	cache  *WindowCache
	bus    *events.EventBus
	logger *zerolog.Logger
}

func NewEditor(store RuleWriter, logger *zerolog.Logger) *Editor {
	return &Editor{store: store, logger: logger}
}

func (e *Editor) UseCache(cache *WindowCache) {
	e.cache = cache
}

func (e *Editor) UseBus(bus *events.EventBus) {
	e.bus = bus
}

// SetWeeklyHours upserts a weekly rule and publishes the windows that were
// closed before the edit and are open after it. Re-saving identical hours,
// or shrinking them, opens nothing and publishes nothing.
func (e *Editor) SetWeeklyHours(ctx context.Context, rule *models.WorkingHoursRule) error {
	var oldWindows []interval.Interval
	prior, err := e.store.GetRuleForDay(ctx, rule.ProviderID, rule.DayOfWeek)
	if err == nil && prior.IsActive {
		if w, err := ruleWindows(prior); err == nil {
			oldWindows = w
		}
	}

	if err := e.store.UpsertRule(ctx, rule); err != nil {
		return fmt.Errorf("set weekly hours: %w", err)
	}
	if e.cache != nil {
		e.cache.InvalidateProvider(ctx, rule.ProviderID)
	}
	e.logger.Info().
		Int64("provider_id", rule.ProviderID).
		Int("day_of_week", rule.DayOfWeek).
		Str("hours", rule.StartTime+"-"+rule.EndTime).
		Msg("weekly hours updated")

	if e.bus != nil && rule.IsActive {
		windows, err := ruleWindows(rule)
		if err != nil {
			e.logger.Warn().Err(err).Msg("skipping hours-changed event")
			return nil
		}
		opened := interval.Subtract(windows, oldWindows)
		if len(opened) == 0 {
			return nil
		}
		e.bus.Publish(events.NewHoursChanged(events.HoursChangedPayload{
			DayOfWeek:  rule.DayOfWeek,
			ProviderID: rule.ProviderID,
			NewWindows: opened,
		}))
	}
	return nil
}

// AddConstraint blocks part of a specific date and drops its cached
// windows.
func (e *Editor) AddConstraint(ctx context.Context, c *models.DateConstraint) error {
	if err := e.store.CreateConstraint(ctx, c); err != nil {
		return fmt.Errorf("add constraint: %w", err)
	}
	if e.cache != nil {
		e.cache.InvalidateDate(ctx, c.Date)
	}
	return nil
}

// RemoveConstraint lifts a date constraint, invalidates the date and
// announces the re-opened windows.
func (e *Editor) RemoveConstraint(ctx context.Context, c *models.DateConstraint) error {
	if err := e.store.DeleteConstraint(ctx, c.ID); err != nil {
		return fmt.Errorf("remove constraint: %w", err)
	}
	if e.cache != nil {
		e.cache.InvalidateDate(ctx, c.Date)
	}
	if e.bus != nil {
		day, err := time.Parse(models.DateLayout, c.Date)
		if err != nil {
			return nil
		}
		reopened, err := interval.Parse(c.StartTime, c.EndTime)
		if err != nil {
			return nil
		}
		e.bus.Publish(events.NewHoursChanged(events.HoursChangedPayload{
			DayOfWeek:  int(day.Weekday()),
			ProviderID: c.ProviderID,
			NewWindows: []interval.Interval{reopened},
		}))
	}
	return nil
}

// ruleWindows computes the open windows a rule yields on its weekday.
func ruleWindows(rule *models.WorkingHoursRule) ([]interval.Interval, error) {
	span, err := interval.Parse(rule.StartTime, rule.EndTime)
	if err != nil {
		return nil, err
	}
	var holes []interval.Interval
	for _, b := range rule.Breaks {
		h, err := interval.Parse(b.StartTime, b.EndTime)
		if err != nil {
			continue
		}
		holes = append(holes, h)
	}
	return interval.Subtract([]interval.Interval{span}, holes), nil
}
