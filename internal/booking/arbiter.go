// Package booking owns the transactional slot-claim protocol. Every entry
// point that books a slot (client flow, admin flow, recurring seeding) goes
// through the one Arbiter so the at-most-one-booking invariant has exactly
// one implementation.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"salonbook/internal/database"
	"salonbook/internal/events"
	"salonbook/internal/interval"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
)

var (
	// ErrSlotTaken means the slot was claimed by a concurrent caller.
	// Recoverable: re-fetch availability and pick another time.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrNotFound means the appointment does not exist or is not booked.
	ErrNotFound = errors.New("appointment not found")
	// ErrPastDate rejects booking attempts behind the minimum advance.
	ErrPastDate = errors.New("cannot book in the past")
	// ErrDateTooFar rejects booking attempts beyond the maximum advance.
	ErrDateTooFar = errors.New("date is too far in the future")
)

// ErrConstraintConflict means the requested slot falls outside the open
// windows for that day. It unwraps to ErrSlotTaken so callers can treat
// both the same way: pick another time.
var ErrConstraintConflict = fmt.Errorf("%w: outside working hours", ErrSlotTaken)

// DuplicatePolicy tells the arbiter what to do when the client already has
// an appointment on the requested date.
type DuplicatePolicy int

const (
	// DuplicateAsk surfaces the existing appointment and books nothing;
	// the caller must come back with an explicit choice.
	DuplicateAsk DuplicatePolicy = iota
	// DuplicateReplace cancels the existing appointment, then books.
	DuplicateReplace
	// DuplicateBookAdditional books alongside the existing appointment.
	DuplicateBookAdditional
)

// Outcome classifies the result of a booking attempt.
type Outcome string

const (
	OutcomeBooked           Outcome = "booked"
	OutcomeDuplicateSameDay Outcome = "duplicate_same_day"
)

// Request describes one booking attempt.
type Request struct {
	Date        string // "2006-01-02"
	Time        string // "10:30"
	ProviderID  int64
	DurationMin int
	ClientName  string
	ClientPhone string
	ServiceName string
	OnDuplicate DuplicatePolicy

	// ExistingOnly claims an available placeholder or fails with
	// ErrNotFound; it never inserts a new row. Recurring-rule claims use
	// this so an off-grid rule is skipped instead of materialized.
	ExistingOnly bool
}

// Result is the outcome of a successful BookSlot call. When Outcome is
// OutcomeDuplicateSameDay nothing was booked and Existing carries the
// appointment the client already holds that day.
type Result struct {
	Outcome     Outcome
	Appointment *models.Appointment
	Existing    *models.Appointment
}

// Store is the slice of storage the arbiter drives.
type Store interface {
	ClaimSlot(ctx context.Context, date, slotTime string, providerID int64, durationMin int, clientName, clientPhone, serviceName string) (int64, error)
	FindSlot(ctx context.Context, date, slotTime string, providerID int64) (*models.Appointment, error)
	InsertBooked(ctx context.Context, a *models.Appointment) error
	ReleaseSlot(ctx context.Context, id int64) (*models.Appointment, error)
	ClientAppointmentOnDate(ctx context.Context, date, clientPhone string) (*models.Appointment, error)
}

// Rules bound how far ahead a booking may land.
type Rules struct {
	MinAdvance time.Duration
	MaxAdvance time.Duration
}

// WindowSource reports the open windows for a date. Optional; when set,
// bookings landing outside every window are rejected.
type WindowSource interface {
	Resolve(ctx context.Context, date time.Time, providerID int64) ([]interval.Interval, error)
}

// Arbiter serializes slot claims through the storage layer's conditional
// update and unique constraint; it holds no locks of its own.
type Arbiter struct {
	store   Store
	rules   Rules
	windows WindowSource
	bus     *events.EventBus
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewArbiter(store Store, rules Rules, logger *zerolog.Logger) *Arbiter {
	return &Arbiter{
		store:  store,
		rules:  rules,
		logger: logger,
		now:    time.Now,
	}
}

// UseBus makes the arbiter publish cancellation events for the waitlist.
func (a *Arbiter) UseBus(bus *events.EventBus) {
	a.bus = bus
}

// UseWindows enables the outside-working-hours check on bookings.
func (a *Arbiter) UseWindows(src WindowSource) {
	a.windows = src
}

// BookSlot claims (date, time, provider) for the client. The protocol is a
// conditional update of the available placeholder; if no placeholder
// exists, a guarded insert. Losing either step to a concurrent caller
// surfaces as ErrSlotTaken, never as silent data loss.
func (a *Arbiter) BookSlot(ctx context.Context, req Request) (*Result, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}
	if err := a.checkWindows(ctx, req); err != nil {
		return nil, err
	}

	if req.OnDuplicate != DuplicateBookAdditional && req.ClientPhone != "" {
		existing, err := a.store.ClientAppointmentOnDate(ctx, req.Date, req.ClientPhone)
		switch {
		case err == nil:
			if req.OnDuplicate == DuplicateAsk {
				return &Result{Outcome: OutcomeDuplicateSameDay, Existing: existing}, nil
			}
			// DuplicateReplace: free the old slot first.
			if err := a.CancelSlot(ctx, existing.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("replace existing appointment: %w", err)
			}
		case errors.Is(err, database.ErrNotFound):
			// No duplicate; proceed.
		default:
			return nil, fmt.Errorf("same-day duplicate check: %w", err)
		}
	}

	booked, err := a.claim(ctx, req)
	if err != nil {
		metrics.IncBookingOutcome("conflict")
		return nil, err
	}

	metrics.IncBookingOutcome(string(OutcomeBooked))
	if a.logger != nil {
		a.logger.Info().
			Str("date", req.Date).Str("time", req.Time).
			Int64("provider_id", req.ProviderID).
			Str("service", req.ServiceName).
			Msg("slot booked")
	}
	return &Result{Outcome: OutcomeBooked, Appointment: booked}, nil
}

func (a *Arbiter) claim(ctx context.Context, req Request) (*models.Appointment, error) {
	// Two passes cover the small window where another caller releases the
	// row between our failed claim and the key lookup.
	for attempt := 0; attempt < 2; attempt++ {
		n, err := a.store.ClaimSlot(ctx, req.Date, req.Time, req.ProviderID,
			req.DurationMin, req.ClientName, req.ClientPhone, req.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("claim slot: %w", err)
		}
		if n > 0 {
			return a.store.FindSlot(ctx, req.Date, req.Time, req.ProviderID)
		}

		existing, err := a.store.FindSlot(ctx, req.Date, req.Time, req.ProviderID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			if req.ExistingOnly {
				return nil, ErrNotFound
			}
			booked := &models.Appointment{
				ProviderID:  req.ProviderID,
				Date:        req.Date,
				Time:        req.Time,
				DurationMin: req.DurationMin,
				ClientName:  req.ClientName,
				ClientPhone: req.ClientPhone,
				ServiceName: req.ServiceName,
			}
			if err := a.store.InsertBooked(ctx, booked); err != nil {
				if errors.Is(err, database.ErrDuplicateKey) {
					// A conflicting row appeared between check and insert.
					return nil, ErrSlotTaken
				}
				return nil, fmt.Errorf("insert booked: %w", err)
			}
			return booked, nil
		case err != nil:
			return nil, fmt.Errorf("re-check slot: %w", err)
		case !existing.IsAvailable:
			return nil, ErrSlotTaken
		}
		// Row exists and is available again: retry the claim.
	}
	return nil, ErrSlotTaken
}

// CancelSlot releases a booked appointment back to an available
// placeholder and notifies waitlist listeners.
func (a *Arbiter) CancelSlot(ctx context.Context, id int64) error {
	released, err := a.store.ReleaseSlot(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("release slot: %w", err)
	}

	metrics.IncSlotsReleased()
	if a.logger != nil {
		a.logger.Info().
			Str("date", released.Date).Str("time", released.Time).
			Int64("provider_id", released.ProviderID).
			Msg("slot released")
	}
	if a.bus != nil {
		a.bus.Publish(events.NewBookingCanceled(released))
	}
	return nil
}

// checkWindows rejects a slot that does not fit inside any open window.
func (a *Arbiter) checkWindows(ctx context.Context, req Request) error {
	if a.windows == nil {
		return nil
	}
	day, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	open, err := a.windows.Resolve(ctx, day, req.ProviderID)
	if err != nil {
		return fmt.Errorf("resolve windows: %w", err)
	}
	start, _ := interval.ParseClock(req.Time)
	slot := interval.Interval{Start: start, End: start + req.DurationMin}
	for _, w := range open {
		if slot.Start >= w.Start && slot.End <= w.End {
			return nil
		}
	}
	return ErrConstraintConflict
}

func (a *Arbiter) validate(req Request) error {
	if _, err := interval.ParseClock(req.Time); err != nil {
		return fmt.Errorf("invalid slot time: %w", err)
	}
	day, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	if req.DurationMin <= 0 {
		return fmt.Errorf("invalid duration: %d", req.DurationMin)
	}

	if a.rules.MinAdvance > 0 || a.rules.MaxAdvance > 0 {
		startMin, _ := interval.ParseClock(req.Time)
		start := day.Add(time.Duration(startMin) * time.Minute)
		now := a.now()
		if a.rules.MinAdvance > 0 && start.Before(now.Add(a.rules.MinAdvance)) {
			return ErrPastDate
		}
		if a.rules.MaxAdvance > 0 && start.After(now.Add(a.rules.MaxAdvance)) {
			return ErrDateTooFar
		}
	}
	return nil
}
