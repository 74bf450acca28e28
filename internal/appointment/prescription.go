package appointment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/identity"
)

// maxLineQuantity matches the int4 quantity columns.
const maxLineQuantity = math.MaxInt32

// mergeLines sums quantities of repeated medicines and orders the result by
// medicine id, which is also the row lock order. Lines must already be
// validated so each quantity is in range.
func mergeLines(lines []LineRequest) ([]LineRequest, error) {
	totals := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.Quantity > maxLineQuantity-totals[l.MedicineID] {
			return nil, invalid("medicine %d: total quantity exceeds %d", l.MedicineID, maxLineQuantity)
		}
		totals[l.MedicineID] += l.Quantity
	}

	merged := make([]LineRequest, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, LineRequest{MedicineID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].MedicineID < merged[j].MedicineID })
	return merged, nil
}

func validatePrescription(req PrescriptionRequest) error {
	if req.AppointmentID <= 0 {
		return invalid("appointment_id is required")
	}
	if len(req.Lines) == 0 {
		return invalid("at least one medicine line is required")
	}
	for i, l := range req.Lines {
		if l.MedicineID <= 0 {
			return invalid("line %d: medicine_id is required", i)
		}
		if l.Quantity <= 0 {
			return invalid("line %d: quantity must be positive", i)
		}
		if l.Quantity > maxLineQuantity {
			return invalid("line %d: quantity exceeds %d", i, maxLineQuantity)
		}
	}
	return nil
}

// IssuePrescription creates a prescription against an appointment and takes
// the requested quantities out of stock. Either every line is covered and
// everything commits, or nothing is written.
func (s *Service) IssuePrescription(ctx context.Context, actor identity.Actor, req PrescriptionRequest) (*Prescription, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.issue_prescription", trace.WithAttributes(
		attribute.Int64("appointment_id", req.AppointmentID),
		attribute.Int("lines", len(req.Lines)),
	))
	defer span.End()

	p, patient, err := s.issuePrescription(ctx, actor, req)
	s.metrics.ObservePrescription(outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("prescription issued",
		zap.Int64("prescription_id", p.ID),
		zap.Int64("appointment_id", p.AppointmentID),
		zap.Int("lines", len(p.Lines)),
	)

	s.notify(ctx, patient.Email, "New prescription", fmt.Sprintf(
		"Hello %s,\n\nA prescription (#%d) with %d medicine(s) was issued for your appointment #%d.\n",
		patient.Name, p.ID, len(p.Lines), p.AppointmentID))

	return p, nil
}

func (s *Service) issuePrescription(ctx context.Context, actor identity.Actor, req PrescriptionRequest) (*Prescription, *Patient, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	if err := validatePrescription(req); err != nil {
		return nil, nil, err
	}

	lines, err := mergeLines(req.Lines)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.MedicineID
	}

	var (
		created *Prescription
		patient *Patient
	)

	err = s.store.WithTx(ctx, func(tx Repository) error {
		appt, err := tx.GetAppointment(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if err := authorizeDoctorScope(actor, appt.DoctorID); err != nil {
			return err
		}
		if appt.Status == StatusCancelled {
			return ErrAppointmentCancelled
		}

		if patient, err = tx.GetPatient(ctx, appt.PatientID); err != nil {
			return err
		}

		meds, err := tx.LockMedicines(ctx, ids)
		if err != nil {
			return err
		}
		stock := make(map[int64]Medicine, len(meds))
		for _, m := range meds {
			stock[m.ID] = m
		}

		for _, l := range lines {
			m, ok := stock[l.MedicineID]
			if !ok {
				return fmt.Errorf("%w: id %d", ErrMedicineNotFound, l.MedicineID)
			}
			if m.Quantity < l.Quantity {
				return &StockShortage{MedicineID: m.ID, Name: m.Name, Requested: l.Quantity, Available: m.Quantity}
			}
		}

		rx := Prescription{
			AppointmentID: appt.ID,
			DoctorID:      appt.DoctorID,
			PatientID:     appt.PatientID,
			Description:   strings.TrimSpace(req.Description),
			Lines:         make([]PrescriptionLine, 0, len(lines)),
		}
		for _, l := range lines {
			rx.Lines = append(rx.Lines, PrescriptionLine{
				MedicineID: l.MedicineID,
				Quantity:   l.Quantity,
				Dosage:     req.Dosage,
				Duration:   req.Duration,
				Frequency:  req.Frequency,
			})
		}

		created, err = tx.InsertPrescription(ctx, rx)
		if err != nil {
			return err
		}

		for _, l := range lines {
			if _, err := tx.AdjustMedicine(ctx, l.MedicineID, -l.Quantity); err != nil {
				if errors.Is(err, ErrInsufficientStock) {
					return err
				}
				return fmt.Errorf("decrement medicine %d: %w", l.MedicineID, err)
			}
		}

		deducted := make(map[string]int, len(lines))
		for _, l := range lines {
			deducted[fmt.Sprint(l.MedicineID)] = l.Quantity
		}
		return writeEvent(ctx, tx, EventPrescriptionIssued, aggregatePrescription, created.ID, map[string]any{
			"appointment_id": appt.ID,
			"doctor_id":      appt.DoctorID,
			"patient_id":     appt.PatientID,
			"deducted":       deducted,
		})
	})
	if err != nil {
		return nil, nil, err
	}

	return created, patient, nil
}

func (s *Service) GetPrescription(ctx context.Context, actor identity.Actor, id int64) (*Prescription, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	p, err := s.store.GetPrescription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeAppointment(actor, &Appointment{DoctorID: p.DoctorID, PatientID: p.PatientID}); err != nil {
		return nil, err
	}
	return p, nil
}
