package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonbook/internal/database"
	"salonbook/internal/events"
	"salonbook/internal/interval"
	"salonbook/internal/models"
)

func newTestEditor(t *testing.T) (*Editor, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(t.TempDir()+"/editor.db", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewEditor(db, &logger), db
}

func TestSetWeeklyHoursPublishesWindows(t *testing.T) {
	e, _ := newTestEditor(t)
	ctx := context.Background()

	bus := events.NewEventBus()
	e.UseBus(bus)
	var got []events.HoursChangedPayload
	bus.Subscribe(events.TypeHoursChanged, func(ev events.Event) error {
		p, err := events.DecodeHoursChanged(ev)
		require.NoError(t, err)
		got = append(got, *p)
		return nil
	})

	require.NoError(t, e.SetWeeklyHours(ctx, &models.WorkingHoursRule{
		ProviderID:   1,
		DayOfWeek:    1,
		StartTime:    "09:00",
		EndTime:      "18:00",
		SlotDuration: 30,
		IsActive:     true,
		Breaks:       []models.BreakInterval{{StartTime: "13:00", EndTime: "14:00"}},
	}))

	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].DayOfWeek)
	assert.Equal(t, []interval.Interval{
		{Start: 9 * 60, End: 13 * 60},
		{Start: 14 * 60, End: 18 * 60},
	}, got[0].NewWindows)
}

func TestSetWeeklyHoursPublishesOnlyOpenedWindows(t *testing.T) {
	e, _ := newTestEditor(t)
	ctx := context.Background()

	bus := events.NewEventBus()
	e.UseBus(bus)
	var got []events.HoursChangedPayload
	bus.Subscribe(events.TypeHoursChanged, func(ev events.Event) error {
		p, err := events.DecodeHoursChanged(ev)
		require.NoError(t, err)
		got = append(got, *p)
		return nil
	})

	base := &models.WorkingHoursRule{
		ProviderID: 1, DayOfWeek: 1, StartTime: "09:00", EndTime: "15:00",
		SlotDuration: 30, IsActive: true,
	}
	require.NoError(t, e.SetWeeklyHours(ctx, base))
	require.Len(t, got, 1)

	// Re-saving identical hours opens nothing.
	require.NoError(t, e.SetWeeklyHours(ctx, base))
	assert.Len(t, got, 1)

	// Shrinking hours opens nothing either.
	require.NoError(t, e.SetWeeklyHours(ctx, &models.WorkingHoursRule{
		ProviderID: 1, DayOfWeek: 1, StartTime: "10:00", EndTime: "14:00",
		SlotDuration: 30, IsActive: true,
	}))
	assert.Len(t, got, 1)

	// Extending into the evening publishes only the newly opened span.
	require.NoError(t, e.SetWeeklyHours(ctx, &models.WorkingHoursRule{
		ProviderID: 1, DayOfWeek: 1, StartTime: "10:00", EndTime: "18:00",
		SlotDuration: 30, IsActive: true,
	}))
	require.Len(t, got, 2)
	assert.Equal(t, []interval.Interval{{Start: 14 * 60, End: 18 * 60}}, got[1].NewWindows)
}

func TestSetWeeklyHoursInvalidatesCachedWindows(t *testing.T) {
	e, db := newTestEditor(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewWindowCache(rdb, time.Minute)
	e.UseCache(cache)

	resolver := NewResolver(db, &logger)
	resolver.UseCache(cache)

	require.NoError(t, e.SetWeeklyHours(ctx, &models.WorkingHoursRule{
		ProviderID: 1, DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00",
		SlotDuration: 30, IsActive: true,
	}))

	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	windows, err := resolver.Resolve(ctx, monday, 1)
	require.NoError(t, err)
	require.Equal(t, []interval.Interval{{Start: 9 * 60, End: 12 * 60}}, windows)

	// The edit drops the cached day, so the next read sees the new span.
	require.NoError(t, e.SetWeeklyHours(ctx, &models.WorkingHoursRule{
		ProviderID: 1, DayOfWeek: 1, StartTime: "10:00", EndTime: "15:00",
		SlotDuration: 30, IsActive: true,
	}))
	windows, err = resolver.Resolve(ctx, monday, 1)
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{{Start: 10 * 60, End: 15 * 60}}, windows)
}

func TestConstraintRoundTripInvalidatesDate(t *testing.T) {
	e, db := newTestEditor(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewWindowCache(rdb, time.Minute)
	e.UseCache(cache)

	resolver := NewResolver(db, &logger)
	resolver.UseCache(cache)

	require.NoError(t, e.SetWeeklyHours(ctx, &models.WorkingHoursRule{
		ProviderID: 1, DayOfWeek: 1, StartTime: "09:00", EndTime: "18:00",
		SlotDuration: 30, IsActive: true,
	}))

	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	windows, err := resolver.Resolve(ctx, monday, 1)
	require.NoError(t, err)
	require.Len(t, windows, 1)

	c := &models.DateConstraint{
		ProviderID: 1,
		Date:       "2026-09-07",
		StartTime:  "09:00",
		EndTime:    "12:00",
		Reason:     "training",
	}
	require.NoError(t, e.AddConstraint(ctx, c))

	windows, err = resolver.Resolve(ctx, monday, 1)
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{{Start: 12 * 60, End: 18 * 60}}, windows)

	bus := events.NewEventBus()
	e.UseBus(bus)
	var reopened []interval.Interval
	bus.Subscribe(events.TypeHoursChanged, func(ev events.Event) error {
		p, err := events.DecodeHoursChanged(ev)
		require.NoError(t, err)
		reopened = p.NewWindows
		return nil
	})

	require.NoError(t, e.RemoveConstraint(ctx, c))
	assert.Equal(t, []interval.Interval{{Start: 9 * 60, End: 12 * 60}}, reopened)

	windows, err = resolver.Resolve(ctx, monday, 1)
	require.NoError(t, err)
	assert.Equal(t, []interval.Interval{{Start: 9 * 60, End: 18 * 60}}, windows)
}
