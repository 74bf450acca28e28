package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/identity"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

// Book commits a new appointment for the requested slot.
//
// Availability is resolved again inside the transaction, against the same
// state the insert runs on; slot lists held by the client are never trusted.
// The partial unique index on active slots is the final arbiter between
// concurrent bookers. The Redis slot lock only turns most races into an
// early conflict.
func (s *Service) Book(ctx context.Context, actor identity.Actor, req BookingRequest) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.book", trace.WithAttributes(
		attribute.Int64("doctor_id", req.DoctorID),
		attribute.String("time_slot", req.TimeSlot),
	))
	defer span.End()

	start := time.Now()
	appt, patient, err := s.book(ctx, actor, req)
	s.metrics.ObserveBooking(outcome(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment booked",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("doctor_id", appt.DoctorID),
		zap.String("date", calendar.FormatDate(appt.Date)),
		zap.String("time_slot", appt.TimeSlot),
	)

	s.afterBooking(ctx, appt, patient)
	return appt, nil
}

// validateBooking checks the request and returns the slot in its canonical
// "HH:00" form, the form stored in the ledger and used for lock keys.
func validateBooking(req BookingRequest) (string, error) {
	if req.DoctorID <= 0 {
		return "", invalid("doctor_id is required")
	}
	if req.PatientID <= 0 {
		return "", invalid("patient_id is required")
	}
	if req.Date.IsZero() {
		return "", invalid("date is required")
	}
	slot, err := calendar.ParseSlot(req.TimeSlot)
	if err != nil {
		return "", invalid("time_slot must look like 09:00")
	}
	return slot.String(), nil
}

func (s *Service) book(ctx context.Context, actor identity.Actor, req BookingRequest) (*Appointment, *Patient, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	slot, err := validateBooking(req)
	if err != nil {
		return nil, nil, err
	}
	req.TimeSlot = slot
	if err := authorizeBooking(actor, req.PatientID); err != nil {
		return nil, nil, err
	}

	day := calendar.Day(req.Date)
	if day.Before(s.today()) {
		return nil, nil, ErrPastDate
	}

	var (
		created *Appointment
		patient *Patient
	)

	commit := func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(tx Repository) error {
			if _, err := tx.GetDoctor(ctx, req.DoctorID); err != nil {
				if errors.Is(err, ErrDoctorNotFound) {
					return err
				}
				return fmt.Errorf("load doctor: %w", err)
			}

			p, err := tx.GetPatient(ctx, req.PatientID)
			if err != nil {
				if errors.Is(err, ErrPatientNotFound) {
					return err
				}
				return fmt.Errorf("load patient: %w", err)
			}

			plan, err := planDay(ctx, tx, req.DoctorID, day)
			if err != nil {
				return err
			}
			if plan.isTaken(req.TimeSlot) {
				return ErrSlotTaken
			}
			if !plan.offers(req.TimeSlot) {
				if plan.reason != "" {
					return fmt.Errorf("%w: doctor has %s on %s", ErrInvalidSlot, plan.reason, calendar.FormatDate(day))
				}
				return ErrInvalidSlot
			}

			appt, err := tx.InsertAppointment(ctx, Appointment{
				DoctorID:    req.DoctorID,
				PatientID:   req.PatientID,
				Date:        day,
				TimeSlot:    req.TimeSlot,
				Status:      StatusUpcoming,
				Description: strings.TrimSpace(req.Description),
			})
			if err != nil {
				if errors.Is(err, ErrSlotConflict) {
					return err
				}
				return fmt.Errorf("insert appointment: %w", err)
			}

			if err := writeEvent(ctx, tx, EventAppointmentBooked, aggregateAppointment, appt.ID, map[string]any{
				"doctor_id":  appt.DoctorID,
				"patient_id": appt.PatientID,
				"date":       calendar.FormatDate(appt.Date),
				"time_slot":  appt.TimeSlot,
				"booked_by":  actor.UserID(),
				"role":       actor.Role(),
			}); err != nil {
				return err
			}

			created = appt
			patient = p
			return nil
		})
	}

	if s.locker == nil {
		if err := commit(ctx); err != nil {
			return nil, nil, err
		}
		return created, patient, nil
	}

	key := redisclient.SlotKey(req.DoctorID, calendar.FormatDate(day), req.TimeSlot)
	err = s.locker.WithSlotLock(ctx, key, commit)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return nil, nil, ErrSlotBeingBooked
	case errors.Is(err, redisclient.ErrLockUnavailable):
		s.logger.Warn("slot lock unavailable, booking without it", zap.String("slot", key), zap.Error(err))
		err = commit(ctx)
	}
	if err != nil {
		return nil, nil, err
	}

	return created, patient, nil
}

// afterBooking runs the post-commit side effects. None of them can undo or
// fail the booking.
func (s *Service) afterBooking(ctx context.Context, appt *Appointment, patient *Patient) {
	if patient != nil {
		s.notify(ctx, patient.Email, "Appointment confirmed", fmt.Sprintf(
			"Hello %s,\n\nYour appointment on %s at %s is confirmed (reference #%d).\n",
			patient.Name, calendar.FormatDate(appt.Date), appt.TimeSlot, appt.ID))
	}

	if s.reminders == nil {
		return
	}
	if err := s.reminders.ScheduleReminder(ctx, *appt); err != nil {
		s.metrics.ObserveReminder("error")
		s.logger.Warn("failed to schedule reminder",
			zap.Int64("appointment_id", appt.ID),
			zap.Error(err))
		return
	}
	s.metrics.ObserveReminder("scheduled")
}

// CancelAppointment frees the slot. Patients, the treating doctor and admins may cancel.
func (s *Service) CancelAppointment(ctx context.Context, actor identity.Actor, id int64) (*Appointment, error) {
	appt, err := s.transition(ctx, actor, id, StatusUpcoming, StatusCancelled, EventAppointmentCancelled, authorizeAppointment)
	if err != nil {
		return nil, err
	}

	if patient, err := s.store.GetPatient(ctx, appt.PatientID); err == nil {
		s.notify(ctx, patient.Email, "Appointment cancelled", fmt.Sprintf(
			"Hello %s,\n\nYour appointment on %s at %s has been cancelled.\n",
			patient.Name, calendar.FormatDate(appt.Date), appt.TimeSlot))
	}
	return appt, nil
}

// CompleteAppointment marks a visit as done. Only the treating doctor or an admin may.
func (s *Service) CompleteAppointment(ctx context.Context, actor identity.Actor, id int64) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusUpcoming, StatusCompleted, EventAppointmentCompleted,
		func(actor identity.Actor, appt *Appointment) error {
			return authorizeDoctorScope(actor, appt.DoctorID)
		})
}

func (s *Service) transition(
	ctx context.Context,
	actor identity.Actor,
	id int64,
	from, to AppointmentStatus,
	eventType string,
	authorize func(identity.Actor, *Appointment) error,
) (*Appointment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var updated *Appointment
	err := s.store.WithTx(ctx, func(tx Repository) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, appt); err != nil {
			return err
		}
		if appt.Status != from {
			return fmt.Errorf("%w: appointment is %s", ErrInvalidStatusTransition, appt.Status)
		}

		updated, err = tx.UpdateAppointmentStatus(ctx, id, from, to)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// status changed under us
				return ErrInvalidStatusTransition
			}
			return fmt.Errorf("update appointment status: %w", err)
		}

		return writeEvent(ctx, tx, eventType, aggregateAppointment, id, map[string]any{
			"from":     from,
			"to":       to,
			"actor_id": actor.UserID(),
			"role":     actor.Role(),
		})
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, actor identity.Actor, id int64) (*Appointment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeAppointment(actor, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// ListAppointmentsByPatient pages through a patient's appointments, newest first.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, actor identity.Actor, patientID int64, limit, offset int) ([]Appointment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if identity.IsPatient(actor) && actor.UserID() != patientID {
		return nil, forbidden("patients may only list their own appointments")
	}

	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.store.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListAppointmentsByDoctorDate returns a doctor's schedule for one day.
func (s *Service) ListAppointmentsByDoctorDate(ctx context.Context, actor identity.Actor, doctorID int64, day time.Time) ([]Appointment, error) {
	if err := authorizeDoctorScope(actor, doctorID); err != nil {
		return nil, err
	}
	appointments, err := s.store.ListAppointmentsByDoctorDate(ctx, doctorID, calendar.Day(day))
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}
