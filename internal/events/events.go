package events

import (
	"encoding/json"
	"sync"
	"time"

	"salonbook/internal/interval"
	"salonbook/internal/models"
)

// Event types published by the booking engine.
const (
	TypeBookingCanceled = "booking.canceled"
	TypeHoursChanged    = "schedule.hours_changed"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// HoursChangedPayload describes a weekly-hours edit: the weekday and the
// windows that were closed before the edit and are open after it.
type HoursChangedPayload struct {
	DayOfWeek  int                 `json:"day_of_week"`
	ProviderID int64               `json:"provider_id"`
	NewWindows []interval.Interval `json:"new_windows"`
}

// NewBookingCanceled wraps a released appointment into an event.
func NewBookingCanceled(a *models.Appointment) Event {
	payload, _ := json.Marshal(a)
	return Event{Type: TypeBookingCanceled, Payload: payload, CreatedAt: time.Now()}
}

// NewHoursChanged wraps a weekly-hours edit into an event.
func NewHoursChanged(p HoursChangedPayload) Event {
	payload, _ := json.Marshal(p)
	return Event{Type: TypeHoursChanged, Payload: payload, CreatedAt: time.Now()}
}

// DecodeBookingCanceled unmarshals a TypeBookingCanceled payload.
func DecodeBookingCanceled(e Event) (*models.Appointment, error) {
	var a models.Appointment
	if err := json.Unmarshal(e.Payload, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DecodeHoursChanged unmarshals a TypeHoursChanged payload.
func DecodeHoursChanged(e Event) (*HoursChangedPayload, error) {
	var p HoursChangedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}
