// Package metrics provides Prometheus metrics for the booking engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Bookings              *prometheus.CounterVec
	BookingDuration       prometheus.Histogram
	SlotResolutions       *prometheus.CounterVec
	LeaveReassigned       prometheus.Counter
	LeaveSkipped          prometheus.Counter
	Prescriptions         *prometheus.CounterVec
	Notifications         *prometheus.CounterVec
	RemindersScheduled    *prometheus.CounterVec
	OutboxPublished       prometheus.Counter
	OutboxPublishFailures prometheus.Counter

	registry *prometheus.Registry
}

// New creates the metrics and registers them on reg. When reg is nil a fresh
// registry is used, which keeps tests independent of the global one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_bookings_total",
			Help: "Booking attempts by outcome",
		}, []string{"outcome"}),
		BookingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinic_booking_duration_seconds",
			Help:    "Time spent committing a booking",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		SlotResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_slot_resolutions_total",
			Help: "Availability lookups by result",
		}, []string{"result"}),
		LeaveReassigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_leave_reassigned_appointments_total",
			Help: "Appointments moved to a substitute on leave approval",
		}),
		LeaveSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_leave_skipped_appointments_total",
			Help: "Appointments left with the original doctor because the substitute was booked",
		}),
		Prescriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_prescriptions_total",
			Help: "Prescription issuance attempts by outcome",
		}, []string{"outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_notifications_total",
			Help: "Notification deliveries by outcome",
		}, []string{"outcome"}),
		RemindersScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_reminders_scheduled_total",
			Help: "Reminder tasks enqueued by outcome",
		}, []string{"outcome"}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_outbox_published_total",
			Help: "Outbox events published to the broker",
		}),
		OutboxPublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_outbox_publish_failures_total",
			Help: "Outbox events that failed to publish",
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.Bookings,
		m.BookingDuration,
		m.SlotResolutions,
		m.LeaveReassigned,
		m.LeaveSkipped,
		m.Prescriptions,
		m.Notifications,
		m.RemindersScheduled,
		m.OutboxPublished,
		m.OutboxPublishFailures,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveBooking(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(outcome).Inc()
	m.BookingDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveResolution(result string) {
	if m == nil {
		return
	}
	m.SlotResolutions.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLeave(reassigned, skipped int) {
	if m == nil {
		return
	}
	m.LeaveReassigned.Add(float64(reassigned))
	m.LeaveSkipped.Add(float64(skipped))
}

func (m *Metrics) ObservePrescription(outcome string) {
	if m == nil {
		return
	}
	m.Prescriptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveNotification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReminder(outcome string) {
	if m == nil {
		return
	}
	m.RemindersScheduled.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOutbox(published, failed int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(published))
	m.OutboxPublishFailures.Add(float64(failed))
}
