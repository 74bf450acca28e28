package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/identity"
	"github.com/hackgods/clinic-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventLeaveRequested       = "LEAVE_REQUESTED"
	EventLeaveApproved        = "LEAVE_APPROVED"
	EventLeaveRejected        = "LEAVE_REJECTED"
	EventPrescriptionIssued   = "PRESCRIPTION_ISSUED"
	EventTemplateAdded        = "TEMPLATE_ADDED"
	EventTemplateDeleted      = "TEMPLATE_DELETED"
	EventMedicineAdded        = "MEDICINE_ADDED"
	EventMedicineRestocked    = "MEDICINE_RESTOCKED"
)

const (
	aggregateAppointment  = "appointment"
	aggregateLeave        = "leave"
	aggregatePrescription = "prescription"
	aggregateDoctor       = "doctor"
	aggregateMedicine     = "medicine"
)

// ReassignPolicy decides what happens when a leave's substitute already
// holds a slot that a reassigned appointment needs.
type ReassignPolicy string

const (
	// ReassignUnchecked moves everything and lets the slot uniqueness
	// constraint reject the approval on a clash.
	ReassignUnchecked ReassignPolicy = "unchecked"
	// ReassignSkip keeps clashing appointments with the original doctor.
	ReassignSkip ReassignPolicy = "skip"
	// ReassignReject refuses the approval when any appointment clashes.
	ReassignReject ReassignPolicy = "reject"
)

// Notifier delivers messages without blocking the caller. Delivery failures
// are the notifier's problem and never reach the service.
type Notifier interface {
	Notify(ctx context.Context, to, subject, body string)
}

// ReminderScheduler queues a reminder for an upcoming appointment.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, appt Appointment) error
}

type Service struct {
	store     Store
	locker    redisclient.Locker
	notifier  Notifier
	reminders ReminderScheduler
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
	policy    ReassignPolicy
	location  *time.Location
	now       func() time.Time
}

type Option func(*Service)

// WithLocker fronts bookings with a per slot lock. Without one the
// database constraint alone arbitrates concurrent bookers.
func WithLocker(l redisclient.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithReminders(r ReminderScheduler) Option {
	return func(s *Service) { s.reminders = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithReassignPolicy(p ReassignPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLocation sets the clinic time zone used to decide what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    store,
		logger:   logger,
		tracer:   otel.Tracer("appointment"),
		policy:   ReassignUnchecked,
		location: time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	return calendar.Day(s.now().In(s.location))
}

func (s *Service) notify(ctx context.Context, to, subject, body string) {
	if s.notifier == nil || to == "" {
		return
	}
	s.notifier.Notify(ctx, to, subject, body)
}

// writeEvent appends an outbox row inside the caller's transaction, so the
// event commits or rolls back with the change it describes.
func writeEvent(ctx context.Context, tx Repository, eventType, aggregateType string, aggregateID int64, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return tx.InsertEvent(ctx, EventLog{
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   strconv.FormatInt(aggregateID, 10),
		Payload:       data,
	})
}

// outcome labels an error for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSlotConflict):
		return "conflict"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

func forbidden(what string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, what)
}

func requireActor(actor identity.Actor) error {
	if actor == nil {
		return forbidden("no authenticated actor")
	}
	return nil
}

func requireAdmin(actor identity.Actor) error {
	if _, ok := actor.(identity.Admin); ok {
		return nil
	}
	return forbidden("admin only")
}

// authorizeDoctorScope allows admins and the doctor themselves.
func authorizeDoctorScope(actor identity.Actor, doctorID int64) error {
	switch a := actor.(type) {
	case identity.Admin:
		return nil
	case identity.Doctor:
		if a.ID == doctorID {
			return nil
		}
		return forbidden("doctors may only manage their own calendar")
	default:
		return forbidden("doctor or admin only")
	}
}

// authorizeBooking lets patient actors book for themselves. Doctors and
// admins book on behalf of any patient.
func authorizeBooking(actor identity.Actor, patientID int64) error {
	switch a := actor.(type) {
	case identity.Admin, identity.Doctor:
		return nil
	case identity.Resident, identity.Faculty, identity.Staff, identity.Student:
		if a.UserID() == patientID {
			return nil
		}
		return forbidden("patients may only book for themselves")
	default:
		return forbidden("unknown actor")
	}
}

// authorizeAppointment allows the patient, the treating doctor and admins.
func authorizeAppointment(actor identity.Actor, appt *Appointment) error {
	switch a := actor.(type) {
	case identity.Admin:
		return nil
	case identity.Doctor:
		if a.ID == appt.DoctorID {
			return nil
		}
	case identity.Resident, identity.Faculty, identity.Staff, identity.Student:
		if a.UserID() == appt.PatientID {
			return nil
		}
	}
	return forbidden("not a party to this appointment")
}
