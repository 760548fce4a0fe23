// Package interval provides minute-of-day interval arithmetic shared by
// the schedule resolver, slot generator and day seeder.
package interval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Interval is a half-open range [Start, End) of minutes since midnight.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// IsValid reports whether the interval is non-degenerate.
func (iv Interval) IsValid() bool {
	return iv.Start < iv.End
}

// Duration returns the interval length in minutes.
func (iv Interval) Duration() int {
	return iv.End - iv.Start
}

// Contains reports whether minute m falls inside the interval.
func (iv Interval) Contains(m int) bool {
	return m >= iv.Start && m < iv.End
}

func (iv Interval) String() string {
	return FormatClock(iv.Start) + "-" + FormatClock(iv.End)
}

// Overlaps reports whether two half-open intervals share any minute.
func Overlaps(a, b Interval) bool {
	return max(a.Start, b.Start) < min(a.End, b.End)
}

// ParseClock parses a "15:04" time-of-day string into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time out of range: %s", s)
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes since midnight as "15:04".
func FormatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Parse builds an interval from two "15:04" strings.
func Parse(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	iv := Interval{Start: s, End: e}
	if !iv.IsValid() {
		return Interval{}, fmt.Errorf("inverted interval: %s-%s", start, end)
	}
	return iv, nil
}

// Normalize sorts intervals, drops degenerate ones and merges overlapping
// or touching neighbours. The input slice is not modified.
func Normalize(ivs []Interval) []Interval {
	var valid []Interval
	for _, iv := range ivs {
		if iv.IsValid() {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Start < valid[j].Start })

	merged := []Interval{valid[0]}
	for _, iv := range valid[1:] {
		last := &merged[len(merged)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Subtract removes every hole from every window. A hole outside a window
// leaves it untouched; one covering it removes it; one straddling an edge
// shrinks it; one strictly inside splits it in two. The result is sorted,
// disjoint and free of degenerate intervals.
func Subtract(windows, holes []Interval) []Interval {
	out := Normalize(windows)
	for _, hole := range Normalize(holes) {
		var next []Interval
		for _, w := range out {
			if !Overlaps(w, hole) {
				next = append(next, w)
				continue
			}
			if left := (Interval{Start: w.Start, End: hole.Start}); left.IsValid() {
				next = append(next, left)
			}
			if right := (Interval{Start: hole.End, End: w.End}); right.IsValid() {
				next = append(next, right)
			}
		}
		out = next
	}
	return out
}
