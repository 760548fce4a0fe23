package models

import (
	"time"

	"salonbook/internal/interval"
)

// SalonWide is the provider id of the salon-wide fallback schedule.
// Provider-specific rows carry a positive provider id.
const SalonWide int64 = 0

// Appointment status values.
const (
	StatusAvailable = "available"
	StatusBooked    = "booked"
	StatusCanceled  = "canceled"
)

// BreakInterval is a pause inside a working day, e.g. lunch.
type BreakInterval struct {
	ID        int64  `json:"id"`
	RuleID    int64  `json:"rule_id"`
	StartTime string `json:"start_time"` // "13:00"
	EndTime   string `json:"end_time"`   // "14:00"
}

// WorkingHoursRule describes the weekly opening hours for one weekday,
// either for a specific provider or salon-wide (ProviderID == SalonWide).
type WorkingHoursRule struct {
	ID           int64           `json:"id"`
	ProviderID   int64           `json:"provider_id"`
	DayOfWeek    int             `json:"day_of_week"` // 0-6, Sunday = 0
	StartTime    string          `json:"start_time"`  // "09:00"
	EndTime      string          `json:"end_time"`    // "18:00"
	SlotDuration int             `json:"slot_duration"` // minutes
	IsActive     bool            `json:"is_active"`
	Breaks       []BreakInterval `json:"breaks,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DateConstraint forcibly closes part or all of a specific date.
// ProviderID == SalonWide applies the closure to every provider.
type DateConstraint struct {
	ID         int64     `json:"id"`
	ProviderID int64     `json:"provider_id"`
	Date       string    `json:"date"` // "2006-01-02"
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Appointment is one slot row: either an available placeholder or a booking.
// At most one row exists per (date, time, provider_id).
type Appointment struct {
	ID          int64     `json:"id"`
	UID         string    `json:"uid"`
	ProviderID  int64     `json:"provider_id"`
	Date        string    `json:"date"` // "2006-01-02"
	Time        string    `json:"time"` // "10:30"
	DurationMin int       `json:"duration_minutes"`
	IsAvailable bool      `json:"is_available"`
	Status      string    `json:"status"`
	ClientName  string    `json:"client_name,omitempty"`
	ClientPhone string    `json:"client_phone,omitempty"`
	ServiceName string    `json:"service_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BusyInterval returns the occupied minute range of a booked appointment.
func (a *Appointment) BusyInterval() (interval.Interval, error) {
	start, err := interval.ParseClock(a.Time)
	if err != nil {
		return interval.Interval{}, err
	}
	return interval.Interval{Start: start, End: start + a.DurationMin}, nil
}

// TimePeriod is the coarse preference bucket used by waitlist matching.
type TimePeriod string

const (
	PeriodMorning   TimePeriod = "morning"
	PeriodAfternoon TimePeriod = "afternoon"
	PeriodEvening   TimePeriod = "evening"
	PeriodAny       TimePeriod = "any"
)

// Range maps a preference bucket onto a minute-of-day interval.
func (p TimePeriod) Range() interval.Interval {
	switch p {
	case PeriodMorning:
		return interval.Interval{Start: 7 * 60, End: 12 * 60}
	case PeriodAfternoon:
		return interval.Interval{Start: 12 * 60, End: 16 * 60}
	case PeriodEvening:
		return interval.Interval{Start: 16 * 60, End: 20 * 60}
	default:
		return interval.Interval{Start: 7 * 60, End: 20 * 60}
	}
}

// PeriodForMinute buckets a start time into morning/afternoon/evening.
// Times outside every bucket fall through to PeriodAny.
func PeriodForMinute(m int) TimePeriod {
	for _, p := range []TimePeriod{PeriodMorning, PeriodAfternoon, PeriodEvening} {
		if p.Range().Contains(m) {
			return p
		}
	}
	return PeriodAny
}

// Waitlist entry status values.
const (
	WaitlistWaiting   = "waiting"
	WaitlistContacted = "contacted"
	WaitlistBooked    = "booked"
	WaitlistCancelled = "cancelled"
)

// WaitlistEntry is a client waiting for an opening on a specific date.
type WaitlistEntry struct {
	ID            int64      `json:"id"`
	RequestedDate string     `json:"requested_date"` // "2006-01-02"
	TimePeriod    TimePeriod `json:"time_period"`
	ServiceName   string     `json:"service_name"`
	Status        string     `json:"status"`
	ProviderID    int64      `json:"provider_id"`
	ClientName    string     `json:"client_name"`
	ClientPhone   string     `json:"client_phone"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RecurringRule books a standing client into a weekly slot after seeding.
type RecurringRule struct {
	ID          int64     `json:"id"`
	ProviderID  int64     `json:"provider_id"`
	DayOfWeek   int       `json:"day_of_week"`
	Time        string    `json:"time"` // "10:00"
	ServiceName string    `json:"service_name"`
	ClientName  string    `json:"client_name"`
	ClientPhone string    `json:"client_phone"`
	ValidFrom   string    `json:"valid_from,omitempty"`  // "2006-01-02", empty = open
	ValidUntil  string    `json:"valid_until,omitempty"` // "2006-01-02", empty = open
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// AppliesOn reports whether the rule is in force on the given date.
func (r *RecurringRule) AppliesOn(date time.Time) bool {
	if !r.IsActive || int(date.Weekday()) != r.DayOfWeek {
		return false
	}
	day := date.Format(DateLayout)
	if r.ValidFrom != "" && day < r.ValidFrom {
		return false
	}
	if r.ValidUntil != "" && day > r.ValidUntil {
		return false
	}
	return true
}

// Notification status values.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification is an outbox record; delivery transport is pluggable.
type Notification struct {
	ID          int64      `json:"id"`
	UID         string     `json:"uid"`
	WaitlistID  int64      `json:"waitlist_id"`
	ClientName  string     `json:"client_name"`
	ClientPhone string     `json:"client_phone"`
	Message     string     `json:"message"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// DateLayout is the canonical date format used across storage.
const DateLayout = "2006-01-02"
