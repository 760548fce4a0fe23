// Package slots turns resolved open windows into discrete offerable start
// times. Generation is pure: callers supply the busy intervals and cutoff.
package slots

import (
	"sort"

	"salonbook/internal/interval"
)

// NoCutoff disables the same-day "now" filter.
const NoCutoff = -1

// Generate emits offerable start times (minutes since midnight) for the
// given windows. Slots are anchored to each window's start rather than a
// wall-clock grid, so arbitrary durations tile a window exactly.
//
// Within a window the cursor advances by durationMin per emitted slot, and
// around busy intervals as follows: a slot may end exactly where a booking
// begins, but any non-zero idle gap adjacent to a booking must be at least
// bufferMin. nowCutoff (use NoCutoff to disable) drops already-past starts
// when generating for the current date, after grid anchoring.
func Generate(windows []interval.Interval, durationMin, bufferMin int, busy []interval.Interval, nowCutoff int) []int {
	if durationMin <= 0 {
		return nil
	}
	if bufferMin < 0 {
		bufferMin = 0
	}

	busy = append([]interval.Interval(nil), busy...)
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start < busy[j].Start })

	var out []int
	for _, w := range interval.Normalize(windows) {
		out = append(out, generateWindow(w, durationMin, bufferMin, busy)...)
	}

	if nowCutoff == NoCutoff {
		return out
	}
	filtered := out[:0]
	for _, t := range out {
		if t >= nowCutoff {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func generateWindow(w interval.Interval, durationMin, bufferMin int, busy []interval.Interval) []int {
	var out []int
	t := w.Start
	for {
		if t+durationMin > w.End {
			return out
		}

		// Keep the post-booking buffer: a slot may not start inside the
		// idle margin that follows a busy interval.
		if b, ok := lastEndingAtOrBefore(busy, t); ok && t < b.End+bufferMin {
			t = b.End + bufferMin
			continue
		}

		slot := interval.Interval{Start: t, End: t + durationMin}
		if b, ok := firstOverlapping(busy, slot); ok {
			t = b.End
			continue
		}

		// Keep the pre-booking buffer: ending exactly at a busy start is
		// fine, but a shorter-than-buffer idle gap before one is not.
		if b, ok := firstStartingAtOrAfter(busy, slot.End); ok {
			if gap := b.Start - slot.End; gap > 0 && gap < bufferMin {
				t = b.Start + bufferMin
				continue
			}
		}

		out = append(out, t)
		t += durationMin
	}
}

func lastEndingAtOrBefore(busy []interval.Interval, t int) (interval.Interval, bool) {
	var found interval.Interval
	ok := false
	for _, b := range busy {
		if b.End <= t && (!ok || b.End > found.End) {
			found, ok = b, true
		}
	}
	return found, ok
}

func firstOverlapping(busy []interval.Interval, slot interval.Interval) (interval.Interval, bool) {
	for _, b := range busy {
		if interval.Overlaps(slot, b) {
			return b, true
		}
	}
	return interval.Interval{}, false
}

func firstStartingAtOrAfter(busy []interval.Interval, t int) (interval.Interval, bool) {
	for _, b := range busy {
		if b.Start >= t {
			return b, true
		}
	}
	return interval.Interval{}, false
}

// Clocks renders slot starts as "15:04" strings for storage and display.
func Clocks(starts []int) []string {
	out := make([]string, len(starts))
	for i, t := range starts {
		out[i] = interval.FormatClock(t)
	}
	return out
}
