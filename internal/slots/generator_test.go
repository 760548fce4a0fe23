package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"salonbook/internal/interval"
)

func mins(clock string) int {
	m, err := interval.ParseClock(clock)
	if err != nil {
		panic(err)
	}
	return m
}

func clocks(starts []int) []string {
	if len(starts) == 0 {
		return nil
	}
	return Clocks(starts)
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name      string
		windows   []interval.Interval
		duration  int
		buffer    int
		busy      []interval.Interval
		nowCutoff int
		want      []string
	}{
		{
			name: "hourly slots around a lunch break",
			windows: []interval.Interval{
				{Start: mins("09:00"), End: mins("12:00")},
				{Start: mins("13:00"), End: mins("17:00")},
			},
			duration:  60,
			nowCutoff: NoCutoff,
			want:      []string{"09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00"},
		},
		{
			name:      "buffer after booking leaves no room before window end",
			windows:   []interval.Interval{{Start: mins("09:00"), End: mins("12:00")}},
			duration:  60,
			buffer:    15,
			busy:      []interval.Interval{{Start: mins("10:00"), End: mins("11:00")}},
			nowCutoff: NoCutoff,
			want:      []string{"09:00"},
		},
		{
			name: "half-hour slots around a mid-day closure",
			windows: []interval.Interval{
				{Start: mins("09:00"), End: mins("14:00")},
				{Start: mins("15:00"), End: mins("17:00")},
			},
			duration:  30,
			nowCutoff: NoCutoff,
			want: []string{
				"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
				"12:00", "12:30", "13:00", "13:30",
				"15:00", "15:30", "16:00", "16:30",
			},
		},
		{
			name:      "busy interval is stepped over",
			windows:   []interval.Interval{{Start: mins("09:00"), End: mins("12:00")}},
			duration:  30,
			busy:      []interval.Interval{{Start: mins("09:45"), End: mins("10:15")}},
			nowCutoff: NoCutoff,
			want:      []string{"09:00", "10:15", "10:45", "11:15"},
		},
		{
			name:      "buffer pushes cursor past busy end",
			windows:   []interval.Interval{{Start: mins("09:00"), End: mins("13:00")}},
			duration:  30,
			buffer:    10,
			busy:      []interval.Interval{{Start: mins("09:30"), End: mins("10:00")}},
			nowCutoff: NoCutoff,
			want:      []string{"09:00", "10:10", "10:40", "11:10", "11:40", "12:10"},
		},
		{
			name:      "now cutoff drops past starts without re-anchoring",
			windows:   []interval.Interval{{Start: mins("09:00"), End: mins("12:00")}},
			duration:  45,
			nowCutoff: mins("10:00"),
			want:      []string{"10:30", "11:15"},
		},
		{
			name:      "midnight cutoff is a real cutoff, not disabled",
			windows:   []interval.Interval{{Start: mins("00:00"), End: mins("01:00")}},
			duration:  30,
			nowCutoff: 0,
			want:      []string{"00:00", "00:30"},
		},
		{
			name:      "cutoff keeps a start landing exactly on it",
			windows:   []interval.Interval{{Start: mins("09:00"), End: mins("11:00")}},
			duration:  60,
			nowCutoff: mins("10:00"),
			want:      []string{"10:00"},
		},
		{
			name:      "slot longer than window yields nothing",
			windows:   []interval.Interval{{Start: mins("09:00"), End: mins("09:30")}},
			duration:  45,
			nowCutoff: NoCutoff,
			want:      nil,
		},
		{
			name:      "zero duration yields nothing",
			windows:   []interval.Interval{{Start: mins("09:00"), End: mins("12:00")}},
			duration:  0,
			nowCutoff: NoCutoff,
			want:      nil,
		},
		{
			name:      "fully booked window yields nothing",
			windows:   []interval.Interval{{Start: mins("09:00"), End: mins("10:00")}},
			duration:  30,
			busy:      []interval.Interval{{Start: mins("09:00"), End: mins("10:00")}},
			nowCutoff: NoCutoff,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Generate(tt.windows, tt.duration, tt.buffer, tt.busy, tt.nowCutoff)
			assert.Equal(t, tt.want, clocks(got))
		})
	}
}

func TestGenerateNeverOverlapsBusy(t *testing.T) {
	windows := []interval.Interval{{Start: mins("08:00"), End: mins("20:00")}}
	busySets := [][]interval.Interval{
		{{Start: mins("09:10"), End: mins("09:50")}},
		{{Start: mins("08:00"), End: mins("08:30")}, {Start: mins("12:00"), End: mins("13:30")}},
		{{Start: mins("10:00"), End: mins("10:01")}, {Start: mins("10:05"), End: mins("11:00")}},
	}

	for _, busy := range busySets {
		for _, duration := range []int{15, 30, 45, 60} {
			for _, buffer := range []int{0, 5, 15} {
				got := Generate(windows, duration, buffer, busy, NoCutoff)
				for _, start := range got {
					slot := interval.Interval{Start: start, End: start + duration}
					for _, b := range busy {
						assert.False(t, interval.Overlaps(slot, b),
							"slot %s overlaps busy %s (duration=%d buffer=%d)", slot, b, duration, buffer)
					}
					// The buffer invariant binds against the adjacent busy
					// intervals: the nearest one ending before the slot and
					// the nearest one starting after it.
					if b, ok := lastEndingAtOrBefore(busy, start); ok {
						assert.GreaterOrEqual(t, start, b.End+buffer,
							"slot %s starts inside the buffer after busy %s", slot, b)
					}
					if b, ok := firstStartingAtOrAfter(busy, slot.End); ok {
						if gap := b.Start - slot.End; gap > 0 {
							assert.GreaterOrEqual(t, gap, buffer,
								"slot %s leaves an undersized gap before busy %s", slot, b)
						}
					}
				}
			}
		}
	}
}

func TestGenerateAnchorsToWindowStart(t *testing.T) {
	// A window opening at 09:20 tiles 45-minute slots from 09:20, not from
	// the wall-clock quarter grid.
	got := Generate([]interval.Interval{{Start: mins("09:20"), End: mins("12:00")}}, 45, 0, nil, NoCutoff)
	assert.Equal(t, []string{"09:20", "10:05", "10:50"}, clocks(got))
}

func TestClocks(t *testing.T) {
	assert.Equal(t, []string{"09:00", "13:05"}, Clocks([]int{540, 785}))
	assert.Empty(t, Clocks(nil))
}
