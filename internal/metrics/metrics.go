package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbook",
			Name:      "booking_outcome_total",
			Help:      "Count of booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	slotsReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salonbook",
			Name:      "slots_released_total",
			Help:      "Count of booked slots released back to available.",
		},
	)

	slotsSeeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salonbook",
			Name:      "slots_seeded_total",
			Help:      "Count of available placeholder rows created by the seeder.",
		},
	)

	recurringClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbook",
			Name:      "recurring_claims_total",
			Help:      "Count of recurring-rule claim attempts by result.",
		},
		[]string{"result"},
	)

	waitlistNotified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbook",
			Name:      "waitlist_notified_total",
			Help:      "Count of waitlist entries notified by trigger.",
		},
		[]string{"trigger"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbook",
			Name:      "notifications_sent_total",
			Help:      "Count of outbox dispatch attempts by status.",
		},
		[]string{"status"},
	)

	outboxDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "salonbook",
			Name:      "notification_outbox_depth",
			Help:      "Current number of pending outbox records.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingOutcome, slotsReleased, slotsSeeded,
			recurringClaims, waitlistNotified, notificationsSent, outboxDepth,
		)
	})
}

func IncBookingOutcome(outcome string) {
	bookingOutcome.WithLabelValues(outcome).Inc()
}

func IncSlotsReleased() {
	slotsReleased.Inc()
}

func AddSlotsSeeded(n int64) {
	slotsSeeded.Add(float64(n))
}

func IncRecurringClaim(result string) {
	recurringClaims.WithLabelValues(result).Inc()
}

func IncWaitlistNotified(trigger string) {
	waitlistNotified.WithLabelValues(trigger).Inc()
}

func IncNotificationSent(status string) {
	notificationsSent.WithLabelValues(status).Inc()
}

func SetOutboxDepth(depth int64) {
	outboxDepth.Set(float64(depth))
}
