package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-booking/internal/calendar"
)

// dayPlan is a doctor's day as derived from templates, leave and the ledger.
type dayPlan struct {
	offered []string
	taken   map[string]struct{}
	reason  string
}

func (p *dayPlan) offers(slot string) bool {
	for _, s := range p.offered {
		if s == slot {
			return true
		}
	}
	return false
}

func (p *dayPlan) isTaken(slot string) bool {
	_, ok := p.taken[slot]
	return ok
}

// free returns offered minus taken, keeping ascending order.
func (p *dayPlan) free() []string {
	out := make([]string, 0, len(p.offered))
	for _, s := range p.offered {
		if !p.isTaken(s) {
			out = append(out, s)
		}
	}
	return out
}

// planDay reads the doctor's state through repo; inside a transaction this
// sees the same snapshot the booking insert runs against.
func planDay(ctx context.Context, repo Repository, doctorID int64, day time.Time) (*dayPlan, error) {
	leaves, err := repo.LeavesCovering(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load leaves: %w", err)
	}
	if len(leaves) > 0 {
		return &dayPlan{reason: ReasonOnLeave}, nil
	}

	templates, err := repo.ListTemplatesForDay(ctx, doctorID, calendar.WeekdayOf(day))
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if len(templates) == 0 {
		return &dayPlan{reason: ReasonNoAvailability}, nil
	}

	windows := make([]calendar.Window, 0, len(templates))
	for _, t := range templates {
		windows = append(windows, t.Window())
	}

	taken, err := repo.TakenSlots(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load taken slots: %w", err)
	}

	plan := &dayPlan{
		offered: calendar.EnumerateSlots(windows),
		taken:   make(map[string]struct{}, len(taken)),
	}
	for _, s := range taken {
		plan.taken[s] = struct{}{}
	}
	return plan, nil
}

// ResolveSlots returns the doctor's free hour slots on day in ascending
// order. Past dates are not rejected here; callers decide whether that
// matters.
func (s *Service) ResolveSlots(ctx context.Context, doctorID int64, day time.Time) (*Availability, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.resolve_slots", trace.WithAttributes(
		attribute.Int64("doctor_id", doctorID),
		attribute.String("date", calendar.FormatDate(day)),
	))
	defer span.End()

	if doctorID <= 0 {
		return nil, invalid("doctor_id is required")
	}
	if day.IsZero() {
		return nil, invalid("date is required")
	}
	day = calendar.Day(day)

	if _, err := s.store.GetDoctor(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	plan, err := planDay(ctx, s.store, doctorID, day)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveResolution("error")
		return nil, err
	}

	avail := &Availability{
		DoctorID: doctorID,
		Date:     day,
		Slots:    plan.free(),
		Reason:   plan.reason,
	}

	switch {
	case plan.reason != "":
		s.metrics.ObserveResolution("unavailable")
	case len(avail.Slots) == 0:
		s.metrics.ObserveResolution("fully_booked")
	default:
		s.metrics.ObserveResolution("open")
	}

	return avail, nil
}
