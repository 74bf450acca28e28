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
)

// RequestLeave records a pending leave. Doctors request their own leave;
// admins may file one for any doctor.
func (s *Service) RequestLeave(ctx context.Context, actor identity.Actor, req LeaveRequest) (*Leave, error) {
	if req.DoctorID == 0 {
		if d, ok := actor.(identity.Doctor); ok {
			req.DoctorID = d.ID
		}
	}
	if err := authorizeDoctorScope(actor, req.DoctorID); err != nil {
		return nil, err
	}
	if req.FromDate.IsZero() || req.ToDate.IsZero() {
		return nil, invalid("from_date and to_date are required")
	}
	from, to := calendar.Day(req.FromDate), calendar.Day(req.ToDate)
	if to.Before(from) {
		return nil, invalid("from_date must not be after to_date")
	}
	if req.SubstituteID != nil && *req.SubstituteID == req.DoctorID {
		return nil, invalid("substitute must be a different doctor")
	}

	var created *Leave
	err := s.store.WithTx(ctx, func(tx Repository) error {
		if _, err := tx.GetDoctor(ctx, req.DoctorID); err != nil {
			return err
		}
		if req.SubstituteID != nil {
			if _, err := tx.GetDoctor(ctx, *req.SubstituteID); err != nil {
				if errors.Is(err, ErrDoctorNotFound) {
					return fmt.Errorf("substitute %w", ErrDoctorNotFound)
				}
				return err
			}
		}

		l, err := tx.InsertLeave(ctx, Leave{
			DoctorID:     req.DoctorID,
			SubstituteID: req.SubstituteID,
			FromDate:     from,
			ToDate:       to,
			Status:       LeavePending,
			Reason:       strings.TrimSpace(req.Reason),
		})
		if err != nil {
			return fmt.Errorf("insert leave: %w", err)
		}
		created = l

		return writeEvent(ctx, tx, EventLeaveRequested, aggregateLeave, l.ID, map[string]any{
			"doctor_id":     l.DoctorID,
			"substitute_id": l.SubstituteID,
			"from_date":     calendar.FormatDate(l.FromDate),
			"to_date":       calendar.FormatDate(l.ToDate),
		})
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// ApproveLeave approves a pending leave and hands the doctor's upcoming
// appointments in the leave range to the substitute, all in one
// transaction. The returned count is the number of appointments moved.
func (s *Service) ApproveLeave(ctx context.Context, actor identity.Actor, leaveID int64) (*LeaveApproval, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.approve_leave", trace.WithAttributes(
		attribute.Int64("leave_id", leaveID),
		attribute.String("policy", string(s.policy)),
	))
	defer span.End()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var (
		result     LeaveApproval
		doctor     *Doctor
		substitute *Doctor
	)

	err := s.store.WithTx(ctx, func(tx Repository) error {
		leave, err := tx.GetLeaveForUpdate(ctx, leaveID)
		if err != nil {
			return err
		}
		if leave.Status != LeavePending {
			return fmt.Errorf("%w (status %s)", ErrLeaveNotPending, leave.Status)
		}
		if leave.SubstituteID == nil {
			return ErrNoSubstitute
		}
		subID := *leave.SubstituteID

		if doctor, err = tx.GetDoctor(ctx, leave.DoctorID); err != nil {
			return err
		}
		if substitute, err = tx.GetDoctor(ctx, subID); err != nil {
			return err
		}

		affected, err := tx.UpcomingInRangeForUpdate(ctx, leave.DoctorID, leave.FromDate, leave.ToDate)
		if err != nil {
			return err
		}

		move, skipped, err := s.partitionForSubstitute(ctx, tx, affected, subID)
		if err != nil {
			return err
		}

		n, err := tx.ReassignAppointments(ctx, move, subID)
		if err != nil {
			if errors.Is(err, ErrSlotConflict) {
				return fmt.Errorf("reassign to substitute %d: %w", subID, err)
			}
			return err
		}

		approved, err := tx.SetLeaveStatus(ctx, leave.ID, LeaveApproved)
		if err != nil {
			return fmt.Errorf("approve leave: %w", err)
		}

		result = LeaveApproval{Leave: approved, Reassigned: n, Skipped: skipped}

		return writeEvent(ctx, tx, EventLeaveApproved, aggregateLeave, leave.ID, map[string]any{
			"doctor_id":      leave.DoctorID,
			"substitute_id":  subID,
			"from_date":      calendar.FormatDate(leave.FromDate),
			"to_date":        calendar.FormatDate(leave.ToDate),
			"reassigned":     move,
			"skipped":        skipped,
			"reassign_count": n,
			"policy":         s.policy,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.ObserveLeave(result.Reassigned, len(result.Skipped))
	s.logger.Info("leave approved",
		zap.Int64("leave_id", leaveID),
		zap.Int("reassigned", result.Reassigned),
		zap.Int("skipped", len(result.Skipped)),
	)

	l := result.Leave
	s.notify(ctx, doctor.Email, "Leave approved", fmt.Sprintf(
		"Hello %s,\n\nYour leave from %s to %s is approved. %d appointment(s) were handed to %s.\n",
		doctor.Name, calendar.FormatDate(l.FromDate), calendar.FormatDate(l.ToDate), result.Reassigned, substitute.Name))
	if result.Reassigned > 0 {
		s.notify(ctx, substitute.Email, "Appointments reassigned to you", fmt.Sprintf(
			"Hello %s,\n\n%d appointment(s) of %s between %s and %s are now yours.\n",
			substitute.Name, result.Reassigned, doctor.Name, calendar.FormatDate(l.FromDate), calendar.FormatDate(l.ToDate)))
	}

	return &result, nil
}

// partitionForSubstitute applies the reassignment policy and returns the ids
// to move and the ids left with the original doctor.
func (s *Service) partitionForSubstitute(ctx context.Context, tx Repository, appts []Appointment, substituteID int64) ([]int64, []int64, error) {
	move := make([]int64, 0, len(appts))
	skipped := []int64{}

	if s.policy == ReassignUnchecked {
		for _, a := range appts {
			move = append(move, a.ID)
		}
		return move, skipped, nil
	}

	busy := make(map[time.Time]map[string]struct{})
	for _, a := range appts {
		day := calendar.Day(a.Date)
		slots, ok := busy[day]
		if !ok {
			taken, err := tx.TakenSlots(ctx, substituteID, day)
			if err != nil {
				return nil, nil, fmt.Errorf("load substitute schedule: %w", err)
			}
			slots = make(map[string]struct{}, len(taken))
			for _, t := range taken {
				slots[t] = struct{}{}
			}
			busy[day] = slots
		}

		if _, clash := slots[a.TimeSlot]; clash {
			if s.policy == ReassignReject {
				return nil, nil, fmt.Errorf("%w: %s %s", ErrSubstituteBusy, calendar.FormatDate(day), a.TimeSlot)
			}
			skipped = append(skipped, a.ID)
			continue
		}
		move = append(move, a.ID)
	}

	return move, skipped, nil
}

// RejectLeave deletes a pending leave. Appointments are untouched.
func (s *Service) RejectLeave(ctx context.Context, actor identity.Actor, leaveID int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	var doctor *Doctor
	var rejected *Leave
	err := s.store.WithTx(ctx, func(tx Repository) error {
		leave, err := tx.GetLeaveForUpdate(ctx, leaveID)
		if err != nil {
			return err
		}
		if leave.Status != LeavePending {
			return fmt.Errorf("%w (status %s)", ErrLeaveNotPending, leave.Status)
		}
		if doctor, err = tx.GetDoctor(ctx, leave.DoctorID); err != nil {
			return err
		}
		if err := tx.DeleteLeave(ctx, leave.ID); err != nil {
			return err
		}
		rejected = leave

		return writeEvent(ctx, tx, EventLeaveRejected, aggregateLeave, leave.ID, map[string]any{
			"doctor_id": leave.DoctorID,
			"status":    LeaveRejected,
			"from_date": calendar.FormatDate(leave.FromDate),
			"to_date":   calendar.FormatDate(leave.ToDate),
		})
	})
	if err != nil {
		return err
	}

	s.notify(ctx, doctor.Email, "Leave rejected", fmt.Sprintf(
		"Hello %s,\n\nYour leave request from %s to %s was rejected.\n",
		doctor.Name, calendar.FormatDate(rejected.FromDate), calendar.FormatDate(rejected.ToDate)))
	return nil
}

func (s *Service) GetLeave(ctx context.Context, actor identity.Actor, id int64) (*Leave, error) {
	l, err := s.store.GetLeave(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeDoctorScope(actor, l.DoctorID); err != nil {
		return nil, err
	}
	return l, nil
}

// ListLeaves lists leaves, optionally filtered by status. Doctors only see their own.
func (s *Service) ListLeaves(ctx context.Context, actor identity.Actor, status LeaveStatus) ([]Leave, error) {
	switch status {
	case "", LeavePending, LeaveApproved:
	default:
		return nil, invalid("unknown leave status %q", status)
	}

	var doctorID int64
	switch a := actor.(type) {
	case identity.Admin:
	case identity.Doctor:
		doctorID = a.ID
	default:
		return nil, forbidden("doctor or admin only")
	}

	leaves, err := s.store.ListLeaves(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list leaves: %w", err)
	}
	if doctorID == 0 {
		return leaves, nil
	}

	own := leaves[:0]
	for _, l := range leaves {
		if l.DoctorID == doctorID {
			own = append(own, l)
		}
	}
	return own, nil
}
