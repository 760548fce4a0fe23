// Package seeder materializes the weekly schedule into concrete slot rows
// ahead of time and claims the standing recurring appointments, so client
// flows can book against real rows instead of computing availability on
// every request.
package seeder

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"salonbook/internal/booking"
	"salonbook/internal/database"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
	"salonbook/internal/schedule"
	"salonbook/internal/slots"
)

// Store is the storage slice the seeder writes through.
type Store interface {
	SeedAvailable(ctx context.Context, date string, providerID int64, durationMin int, times []string) (int64, error)
	RecurringRulesForWeekday(ctx context.Context, dayOfWeek int) ([]models.RecurringRule, error)
}

// Seeder fills the booking horizon day by day. Both the slot grid and the
// recurring claims are idempotent; running the seeder twice over the same
// horizon is a no-op.
type Seeder struct {
	store       Store
	resolver    *schedule.Resolver
	arbiter     *booking.Arbiter
	providers   []int64
	horizonDays int
	defaultDur  int
	logger      *zerolog.Logger
}

func New(store Store, resolver *schedule.Resolver, arbiter *booking.Arbiter, providers []int64, horizonDays, defaultDur int, logger *zerolog.Logger) *Seeder {
	if horizonDays <= 0 {
		horizonDays = 14
	}
	if defaultDur <= 0 {
		defaultDur = 30
	}
	return &Seeder{
		store:       store,
		resolver:    resolver,
		arbiter:     arbiter,
		providers:   providers,
		horizonDays: horizonDays,
		defaultDur:  defaultDur,
		logger:      logger,
	}
}

// SeedHorizon seeds every provider for each day from today through the
// configured horizon.
func (s *Seeder) SeedHorizon(ctx context.Context, from time.Time) error {
	for d := 0; d < s.horizonDays; d++ {
		date := from.AddDate(0, 0, d)
		for _, provider := range s.providers {
			if err := s.SeedDay(ctx, date, provider); err != nil {
				s.logger.Error().Err(err).
					Str("date", date.Format(models.DateLayout)).
					Int64("provider_id", provider).
					Msg("seeding day failed")
			}
		}
		if err := s.claimRecurring(ctx, date); err != nil {
			s.logger.Error().Err(err).
				Str("date", date.Format(models.DateLayout)).
				Msg("recurring claims failed")
		}
	}
	return ctx.Err()
}

// SeedDay inserts the available-slot grid for one provider on one date.
// Existing rows, booked or not, are left untouched.
func (s *Seeder) SeedDay(ctx context.Context, date time.Time, providerID int64) error {
	day, err := s.resolver.ResolveDay(ctx, date, providerID)
	if err != nil {
		return err
	}
	if day == nil || len(day.Windows) == 0 {
		return nil
	}

	dur := day.SlotDuration
	if dur <= 0 {
		dur = s.defaultDur
	}
	grid := slots.Generate(day.Windows, dur, 0, nil, slots.NoCutoff)
	if len(grid) == 0 {
		return nil
	}

	inserted, err := s.store.SeedAvailable(ctx, date.Format(models.DateLayout), providerID, dur, slots.Clocks(grid))
	if err != nil {
		return err
	}
	if inserted > 0 {
		metrics.AddSlotsSeeded(inserted)
		s.logger.Info().
			Str("date", date.Format(models.DateLayout)).
			Int64("provider_id", providerID).
			Int64("inserted", inserted).
			Msg("seeded slot grid")
	}
	return nil
}

// claimRecurring books the standing weekly appointments that apply on the
// date. A slot already held, by an earlier run or by anyone else, is not
// an error.
func (s *Seeder) claimRecurring(ctx context.Context, date time.Time) error {
	rules, err := s.store.RecurringRulesForWeekday(ctx, int(date.Weekday()))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return err
	}

	dateStr := date.Format(models.DateLayout)
	for i := range rules {
		rule := &rules[i]
		if !rule.AppliesOn(date) {
			continue
		}
		_, err := s.arbiter.BookSlot(ctx, booking.Request{
			Date:         dateStr,
			Time:         rule.Time,
			ProviderID:   rule.ProviderID,
			DurationMin:  s.defaultDur,
			ClientName:   rule.ClientName,
			ClientPhone:  rule.ClientPhone,
			ServiceName:  rule.ServiceName,
			OnDuplicate:  booking.DuplicateBookAdditional,
			ExistingOnly: true,
		})
		switch {
		case err == nil:
			metrics.IncRecurringClaim("claimed")
		case errors.Is(err, booking.ErrSlotTaken):
			// Already claimed by an earlier run.
			metrics.IncRecurringClaim("held")
		case errors.Is(err, booking.ErrNotFound):
			// No row at that time on the seeded grid: skip, the rule
			// does not align with the day's windows.
			metrics.IncRecurringClaim("skipped")
		default:
			metrics.IncRecurringClaim("error")
			s.logger.Warn().Err(err).
				Str("date", dateStr).Str("time", rule.Time).
				Int64("provider_id", rule.ProviderID).
				Msg("recurring claim failed")
		}
	}
	return nil
}

// Run re-seeds the horizon on a fixed interval until the context ends.
func (s *Seeder) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	if err := s.SeedHorizon(ctx, time.Now()); err != nil {
		s.logger.Error().Err(err).Msg("initial horizon seed failed")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SeedHorizon(ctx, time.Now()); err != nil {
				s.logger.Error().Err(err).Msg("horizon seed failed")
			}
		}
	}
}
