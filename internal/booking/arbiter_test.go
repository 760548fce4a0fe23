package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonbook/internal/database"
	"salonbook/internal/events"
	"salonbook/internal/interval"
	"salonbook/internal/models"
)

func newTestArbiter(t *testing.T) (*Arbiter, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(t.TempDir()+"/booking.db", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewArbiter(db, Rules{}, &logger), db
}

func seedOne(t *testing.T, db *database.DB, date, slot string, provider int64) {
	t.Helper()
	n, err := db.SeedAvailable(context.Background(), date, provider, 30, []string{slot})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestBookSlotClaimsPlaceholder(t *testing.T) {
	arb, db := newTestArbiter(t)
	ctx := context.Background()
	seedOne(t, db, "2026-09-07", "10:00", 1)

	res, err := arb.BookSlot(ctx, Request{
		Date: "2026-09-07", Time: "10:00", ProviderID: 1, DurationMin: 30,
		ClientName: "Dana", ClientPhone: "+100", ServiceName: "Haircut",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBooked, res.Outcome)
	require.NotNil(t, res.Appointment)
	assert.False(t, res.Appointment.IsAvailable)
	assert.Equal(t, "Dana", res.Appointment.ClientName)

	_, err = arb.BookSlot(ctx, Request{
		Date: "2026-09-07", Time: "10:00", ProviderID: 1, DurationMin: 30,
		ClientName: "Erin", ClientPhone: "+200",
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookSlotInsertsWhenNoPlaceholder(t *testing.T) {
	arb, _ := newTestArbiter(t)
	ctx := context.Background()

	res, err := arb.BookSlot(ctx, Request{
		Date: "2026-09-07", Time: "11:00", ProviderID: 2, DurationMin: 45,
		ClientName: "Finn", ClientPhone: "+300", ServiceName: "Color",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBooked, res.Outcome)
	assert.Equal(t, models.StatusBooked, res.Appointment.Status)

	_, err = arb.BookSlot(ctx, Request{
		Date: "2026-09-07", Time: "11:00", ProviderID: 2, DurationMin: 45,
		ClientName: "Gil", ClientPhone: "+400",
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookSlotConcurrentExactlyOneWins(t *testing.T) {
	arb, db := newTestArbiter(t)
	ctx := context.Background()
	seedOne(t, db, "2026-09-08", "09:00", 1)

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := arb.BookSlot(ctx, Request{
				Date: "2026-09-08", Time: "09:00", ProviderID: 1, DurationMin: 30,
				ClientName: "Racer", ClientPhone: "+5",
				OnDuplicate: DuplicateBookAdditional,
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, ErrSlotTaken)
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)
}

func TestBookSlotExistingOnly(t *testing.T) {
	arb, db := newTestArbiter(t)
	ctx := context.Background()

	req := Request{
		Date: "2026-09-07", Time: "10:00", ProviderID: 1, DurationMin: 30,
		ClientName: "Gwen", ClientPhone: "+600",
		OnDuplicate: DuplicateBookAdditional, ExistingOnly: true,
	}

	// No placeholder: nothing to claim, and no row may be created.
	_, err := arb.BookSlot(ctx, req)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.FindSlot(ctx, "2026-09-07", "10:00", 1)
	assert.ErrorIs(t, err, database.ErrNotFound)

	// With a placeholder the claim proceeds as usual.
	seedOne(t, db, "2026-09-07", "10:00", 1)
	res, err := arb.BookSlot(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBooked, res.Outcome)

	_, err = arb.BookSlot(ctx, req)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookSlotDuplicateSameDayAsk(t *testing.T) {
	arb, db := newTestArbiter(t)
	ctx := context.Background()
	seedOne(t, db, "2026-09-07", "10:00", 1)
	seedOne(t, db, "2026-09-07", "14:00", 1)

	first, err := arb.BookSlot(ctx, Request{
		Date: "2026-09-07", Time: "10:00", ProviderID: 1, DurationMin: 30,
		ClientName: "Hana", ClientPhone: "+700",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeBooked, first.Outcome)

	second, err := arb.BookSlot(ctx, Request{
		Date: "2026-09-07", Time: "14:00", ProviderID: 1, DurationMin: 30,
		ClientName: "Hana", ClientPhone: "+700",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicateSameDay, second.Outcome)
	require.NotNil(t, second.Existing)
	assert.Equal(t, "10:00", second.Existing.Time)
	assert.Nil(t, second.Appointment)

	// Nothing was booked: the 14:00 placeholder stays available.
	slot, err := db.FindSlot(ctx, "2026-09-07", "14:00", 1)
	require.NoError(t, err)
	assert.True(t, slot.IsAvailable)
}

func TestBookSlotDuplicateReplace(t *testing.T) {
	arb, db := newTestArbiter(t)
	ctx := context.Background()
	seedOne(t, db, "2026-09-07", "10:00", 1)
	seedOne(t, db, "2026-09-07", "14:00", 1)

	_, err := arb.BookSlot(ctx, Request{
		Date: "2026-09-07", Time: "10:00", ProviderID: 1, DurationMin: 30,
		ClientName: "Iris", ClientPhone: "+800",
	})
	require.NoError(t, err)

	res, err := arb.BookSlot(ctx, Request{
		Date: "2026-09-07", Time: "14:00", ProviderID: 1, DurationMin: 30,
		ClientName: "Iris", ClientPhone: "+800",
		OnDuplicate: DuplicateReplace,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBooked, res.Outcome)
	assert.Equal(t, "14:00", res.Appointment.Time)

	// The old slot became a free placeholder again.
	old, err := db.FindSlot(ctx, "2026-09-07", "10:00", 1)
	require.NoError(t, err)
	assert.True(t, old.IsAvailable)
	assert.Empty(t, old.ClientName)
}

func TestBookSlotDuplicateBookAdditional(t *testing.T) {
	arb, db := newTestArbiter(t)
	ctx := context.Background()
	seedOne(t, db, "2026-09-07", "10:00", 1)
	seedOne(t, db, "2026-09-07", "14:00", 1)

	for _, slot := range []string{"10:00", "14:00"} {
		res, err := arb.BookSlot(ctx, Request{
			Date: "2026-09-07", Time: slot, ProviderID: 1, DurationMin: 30,
			ClientName: "Jo", ClientPhone: "+900",
			OnDuplicate: DuplicateBookAdditional,
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeBooked, res.Outcome)
	}

	available, booked, err := db.CountSlots(ctx, "2026-09-07", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, available)
	assert.EqualValues(t, 2, booked)
}

func TestCancelSlotPublishesEvent(t *testing.T) {
	arb, db := newTestArbiter(t)
	ctx := context.Background()
	seedOne(t, db, "2026-09-07", "10:00", 1)

	bus := events.NewEventBus()
	arb.UseBus(bus)
	var mu sync.Mutex
	var canceled []*models.Appointment
	bus.Subscribe(events.TypeBookingCanceled, func(e events.Event) error {
		a, err := events.DecodeBookingCanceled(e)
		require.NoError(t, err)
		mu.Lock()
		canceled = append(canceled, a)
		mu.Unlock()
		return nil
	})

	res, err := arb.BookSlot(ctx, Request{
		Date: "2026-09-07", Time: "10:00", ProviderID: 1, DurationMin: 30,
		ClientName: "Kim", ClientPhone: "+110",
	})
	require.NoError(t, err)

	require.NoError(t, arb.CancelSlot(ctx, res.Appointment.ID))

	mu.Lock()
	require.Len(t, canceled, 1)
	assert.Equal(t, "10:00", canceled[0].Time)
	assert.Equal(t, int64(1), canceled[0].ProviderID)
	mu.Unlock()

	assert.ErrorIs(t, arb.CancelSlot(ctx, res.Appointment.ID), ErrNotFound)
}

func TestBookSlotAdvanceRules(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(t.TempDir()+"/rules.db", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	arb := NewArbiter(db, Rules{
		MinAdvance: 30 * time.Minute,
		MaxAdvance: 90 * 24 * time.Hour,
	}, &logger)
	arb.now = func() time.Time {
		return time.Date(2026, 9, 7, 9, 45, 0, 0, time.UTC)
	}

	ctx := context.Background()
	base := Request{ProviderID: 1, DurationMin: 30, ClientName: "Lee", ClientPhone: "+120"}

	tooSoon := base
	tooSoon.Date, tooSoon.Time = "2026-09-07", "10:00"
	_, err = arb.BookSlot(ctx, tooSoon)
	assert.ErrorIs(t, err, ErrPastDate)

	tooFar := base
	tooFar.Date, tooFar.Time = "2027-01-15", "10:00"
	_, err = arb.BookSlot(ctx, tooFar)
	assert.ErrorIs(t, err, ErrDateTooFar)

	ok := base
	ok.Date, ok.Time = "2026-09-07", "11:00"
	res, err := arb.BookSlot(ctx, ok)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBooked, res.Outcome)
}

type fixedWindows struct {
	open []interval.Interval
}

func (f fixedWindows) Resolve(_ context.Context, _ time.Time, _ int64) ([]interval.Interval, error) {
	return f.open, nil
}

func TestBookSlotOutsideWorkingHours(t *testing.T) {
	arb, _ := newTestArbiter(t)
	ctx := context.Background()
	arb.UseWindows(fixedWindows{open: []interval.Interval{{Start: 9 * 60, End: 12 * 60}}})

	_, err := arb.BookSlot(ctx, Request{
		Date: "2026-09-07", Time: "13:00", ProviderID: 1, DurationMin: 30,
		ClientName: "Max", ClientPhone: "+130",
	})
	assert.ErrorIs(t, err, ErrConstraintConflict)
	assert.ErrorIs(t, err, ErrSlotTaken)

	// A slot that ends exactly at close still fits.
	res, err := arb.BookSlot(ctx, Request{
		Date: "2026-09-07", Time: "11:30", ProviderID: 1, DurationMin: 30,
		ClientName: "Max", ClientPhone: "+130",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBooked, res.Outcome)
}

func TestBookSlotValidation(t *testing.T) {
	arb, _ := newTestArbiter(t)
	ctx := context.Background()

	_, err := arb.BookSlot(ctx, Request{Date: "2026-09-07", Time: "25:00", ProviderID: 1, DurationMin: 30})
	assert.Error(t, err)

	_, err = arb.BookSlot(ctx, Request{Date: "07.09.2026", Time: "10:00", ProviderID: 1, DurationMin: 30})
	assert.Error(t, err)

	_, err = arb.BookSlot(ctx, Request{Date: "2026-09-07", Time: "10:00", ProviderID: 1, DurationMin: 0})
	assert.Error(t, err)
}
