// Package reminder queues and delivers appointment reminders through asynq.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/notify"
)

const TypeAppointmentReminder = "appointment:reminder"

type Payload struct {
	AppointmentID int64 `json:"appointment_id"`
}

// NewTask builds the reminder task for an appointment. The task id is
// derived from the appointment so a reminder is queued at most once.
func NewTask(appointmentID int64, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(Payload{AppointmentID: appointmentID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeAppointmentReminder, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID("reminder-" + strconv.FormatInt(appointmentID, 10)),
		asynq.MaxRetry(5),
	}
	return task, opts, nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Scheduler struct {
	client Enqueuer
	lead   time.Duration
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

func NewScheduler(client Enqueuer, lead time.Duration, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{client: client, lead: lead, loc: loc, logger: logger, now: time.Now}
}

// ScheduleReminder queues a reminder lead before the slot starts. When that
// moment has passed but the slot has not started, it fires right away;
// reminders for slots already under way are skipped.
func (s *Scheduler) ScheduleReminder(ctx context.Context, appt appointment.Appointment) error {
	start, err := calendar.SlotStart(appt.Date, appt.TimeSlot, s.loc)
	if err != nil {
		return fmt.Errorf("reminder slot start: %w", err)
	}

	now := s.now()
	if !start.After(now) {
		s.logger.Debug("slot already started, no reminder", zap.Int64("appointment_id", appt.ID))
		return nil
	}
	fireAt := start.Add(-s.lead)
	if fireAt.Before(now) {
		fireAt = now
	}

	task, opts, err := NewTask(appt.ID, fireAt)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue reminder: %w", err)
	}
	return nil
}

// Ledger is the read side the handler needs.
type Ledger interface {
	GetAppointment(ctx context.Context, id int64) (*appointment.Appointment, error)
	GetPatient(ctx context.Context, id int64) (*appointment.Patient, error)
	GetDoctor(ctx context.Context, id int64) (*appointment.Doctor, error)
}

type Handler struct {
	ledger  Ledger
	sender  notify.Sender
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHandler(ledger Ledger, sender notify.Sender, logger *zap.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: ledger, sender: sender, logger: logger, metrics: m}
}

// ProcessTask sends the reminder if the appointment is still upcoming. The
// doctor is read at delivery time, so a leave reassignment is reflected.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode reminder payload: %v: %w", err, asynq.SkipRetry)
	}

	appt, err := h.ledger.GetAppointment(ctx, p.AppointmentID)
	if errors.Is(err, appointment.ErrNotFound) {
		h.metrics.ObserveReminder("skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load appointment %d: %w", p.AppointmentID, err)
	}
	if appt.Status != appointment.StatusUpcoming {
		h.logger.Info("reminder skipped",
			zap.Int64("appointment_id", appt.ID),
			zap.String("status", string(appt.Status)))
		h.metrics.ObserveReminder("skipped")
		return nil
	}

	patient, err := h.ledger.GetPatient(ctx, appt.PatientID)
	if err != nil {
		return fmt.Errorf("load patient %d: %w", appt.PatientID, err)
	}
	doctor, err := h.ledger.GetDoctor(ctx, appt.DoctorID)
	if err != nil {
		return fmt.Errorf("load doctor %d: %w", appt.DoctorID, err)
	}

	body := fmt.Sprintf("Hello %s,\n\nReminder: you see %s on %s at %s (reference #%d).\n",
		patient.Name, doctor.Name, calendar.FormatDate(appt.Date), appt.TimeSlot, appt.ID)
	if err := h.sender.Send(ctx, patient.Email, "Appointment reminder", body); err != nil {
		h.metrics.ObserveReminder("failed")
		return fmt.Errorf("send reminder: %w", err)
	}

	h.metrics.ObserveReminder("delivered")
	h.logger.Info("reminder delivered", zap.Int64("appointment_id", appt.ID))
	return nil
}

// RedisOpt builds the asynq connection for the reminder queue database.
func RedisOpt(addr, username, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	}
}
