// Package waitlist matches freed capacity against clients waiting for it.
// Two things free capacity: a cancellation frees one concrete slot, and a
// working-hours change can open whole new windows on future dates.
package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"salonbook/internal/events"
	"salonbook/internal/interval"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
)

// Store is the storage slice the matcher works against.
type Store interface {
	WaitingEntriesForDate(ctx context.Context, date string) ([]models.WaitlistEntry, error)
	WaitingEntriesFromDate(ctx context.Context, fromDate string) ([]models.WaitlistEntry, error)
	MarkContacted(ctx context.Context, id int64) (bool, error)
	EnqueueNotification(ctx context.Context, n *models.Notification) error
}

// Matcher notifies waiting clients when a slot they want opens up. Each
// entry is contacted at most once: the waiting-to-contacted status flip is
// a conditional update, and only its winner enqueues the notification.
type Matcher struct {
	store  Store
	logger *zerolog.Logger
	now    func() time.Time
}

func NewMatcher(store Store, logger *zerolog.Logger) *Matcher {
	return &Matcher{store: store, logger: logger, now: time.Now}
}

// Subscribe wires the matcher to the cancellation and hours-change events.
func (m *Matcher) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.TypeBookingCanceled, func(e events.Event) error {
		appt, err := events.DecodeBookingCanceled(e)
		if err != nil {
			m.logger.Error().Err(err).Msg("bad cancellation event")
			return err
		}
		if _, err := m.MatchOnCancel(context.Background(), appt); err != nil {
			m.logger.Error().Err(err).Msg("waitlist match on cancel failed")
			return err
		}
		return nil
	})
	bus.Subscribe(events.TypeHoursChanged, func(e events.Event) error {
		p, err := events.DecodeHoursChanged(e)
		if err != nil {
			m.logger.Error().Err(err).Msg("bad hours-change event")
			return err
		}
		if _, err := m.MatchOnHoursChange(context.Background(), *p); err != nil {
			m.logger.Error().Err(err).Msg("waitlist match on hours change failed")
			return err
		}
		return nil
	})
}

// MatchOnCancel runs when a booked slot reverts to available. Every
// waiting entry whose date, period, service and provider preferences all
// admit the freed slot gets notified. Returns the number contacted.
func (m *Matcher) MatchOnCancel(ctx context.Context, freed *models.Appointment) (int, error) {
	if m.isPast(freed.Date) {
		return 0, nil
	}
	start, err := interval.ParseClock(freed.Time)
	if err != nil {
		return 0, fmt.Errorf("freed slot time: %w", err)
	}

	entries, err := m.store.WaitingEntriesForDate(ctx, freed.Date)
	if err != nil {
		return 0, err
	}
	notified := 0
	for i := range entries {
		e := &entries[i]
		if !entryAdmitsSlot(e, freed, start) {
			continue
		}
		msg := fmt.Sprintf("A slot opened up on %s at %s. Reply to claim it.", freed.Date, freed.Time)
		won, err := m.notify(ctx, e, msg, "cancel")
		if err != nil {
			m.logger.Error().Err(err).Int64("waitlist_id", e.ID).Msg("waitlist notification failed")
			continue
		}
		if won {
			notified++
		}
	}
	return notified, nil
}

// MatchOnHoursChange runs when weekly working hours are edited. Waiting
// entries on future dates falling on the changed weekday are notified if
// the new windows intersect their preferred period. Returns the number
// contacted.
func (m *Matcher) MatchOnHoursChange(ctx context.Context, p events.HoursChangedPayload) (int, error) {
	today := m.now().Format(models.DateLayout)
	entries, err := m.store.WaitingEntriesFromDate(ctx, today)
	if err != nil {
		return 0, err
	}
	notified := 0
	for i := range entries {
		e := &entries[i]
		day, err := time.Parse(models.DateLayout, e.RequestedDate)
		if err != nil {
			continue
		}
		if int(day.Weekday()) != p.DayOfWeek {
			continue
		}
		if e.ProviderID != models.SalonWide && p.ProviderID != models.SalonWide && e.ProviderID != p.ProviderID {
			continue
		}
		if !windowsTouchPeriod(p.NewWindows, e.TimePeriod) {
			continue
		}
		msg := fmt.Sprintf("New openings may be available on %s. Reply to book.", e.RequestedDate)
		won, err := m.notify(ctx, e, msg, "hours_change")
		if err != nil {
			m.logger.Error().Err(err).Int64("waitlist_id", e.ID).Msg("waitlist notification failed")
			continue
		}
		if won {
			notified++
		}
	}
	return notified, nil
}

// notify flips the entry to contacted and enqueues the outbox row. Losing
// the flip means another trigger got there first; nothing is enqueued.
func (m *Matcher) notify(ctx context.Context, e *models.WaitlistEntry, message, trigger string) (bool, error) {
	won, err := m.store.MarkContacted(ctx, e.ID)
	if err != nil {
		return false, fmt.Errorf("mark contacted: %w", err)
	}
	if !won {
		return false, nil
	}
	if err := m.store.EnqueueNotification(ctx, &models.Notification{
		WaitlistID:  e.ID,
		ClientName:  e.ClientName,
		ClientPhone: e.ClientPhone,
		Message:     message,
	}); err != nil {
		return false, fmt.Errorf("enqueue notification: %w", err)
	}
	metrics.IncWaitlistNotified(trigger)
	m.logger.Info().
		Int64("waitlist_id", e.ID).
		Str("trigger", trigger).
		Str("date", e.RequestedDate).
		Msg("waitlist client contacted")
	return true, nil
}

func (m *Matcher) isPast(date string) bool {
	return date < m.now().Format(models.DateLayout)
}

// entryAdmitsSlot checks the freed slot against one entry's preferences.
// A period-bucket match and a service match each suffice on their own: a
// client waiting for "afternoon" wants the 14:00 opening whatever service
// it held, and a client waiting for "Haircut" wants any haircut opening.
func entryAdmitsSlot(e *models.WaitlistEntry, freed *models.Appointment, startMin int) bool {
	if e.ProviderID != models.SalonWide && e.ProviderID != freed.ProviderID {
		return false
	}
	if e.TimePeriod == models.PeriodAny || e.TimePeriod == models.PeriodForMinute(startMin) {
		return true
	}
	return e.ServiceName != "" && e.ServiceName == freed.ServiceName
}

// windowsTouchPeriod reports whether any new window overlaps the period.
func windowsTouchPeriod(windows []interval.Interval, period models.TimePeriod) bool {
	r := period.Range()
	for _, w := range windows {
		if interval.Overlaps(w, r) {
			return true
		}
	}
	return false
}
