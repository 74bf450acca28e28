package appointment

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service that is not an internal
// failure wraps exactly one of these, so callers classify with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSlotConflict      = errors.New("slot conflict")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrForbidden         = errors.New("forbidden")
)

var (
	ErrDoctorNotFound       = fmt.Errorf("doctor %w", ErrNotFound)
	ErrPatientNotFound      = fmt.Errorf("patient %w", ErrNotFound)
	ErrAppointmentNotFound  = fmt.Errorf("appointment %w", ErrNotFound)
	ErrLeaveNotFound        = fmt.Errorf("leave %w", ErrNotFound)
	ErrTemplateNotFound     = fmt.Errorf("template %w", ErrNotFound)
	ErrMedicineNotFound     = fmt.Errorf("medicine %w", ErrNotFound)
	ErrPrescriptionNotFound = fmt.Errorf("prescription %w", ErrNotFound)

	ErrSlotTaken       = fmt.Errorf("%w: slot already booked", ErrSlotConflict)
	ErrSlotBeingBooked = fmt.Errorf("%w: slot is currently being booked, please retry", ErrSlotConflict)
	ErrSubstituteBusy  = fmt.Errorf("%w: substitute already booked for a reassigned slot", ErrSlotConflict)

	ErrInvalidSlot             = fmt.Errorf("%w: slot not offered by the doctor's availability", ErrInvalidInput)
	ErrPastDate                = fmt.Errorf("%w: date is in the past", ErrInvalidInput)
	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid status transition", ErrInvalidInput)
	ErrLeaveNotPending         = fmt.Errorf("%w: leave is not pending", ErrInvalidInput)
	ErrNoSubstitute            = fmt.Errorf("%w: leave has no substitute", ErrInvalidInput)
	ErrAppointmentCancelled    = fmt.Errorf("%w: appointment is cancelled", ErrInvalidInput)

	ErrStockExhausted = fmt.Errorf("%w: medicine quantity would go negative", ErrInsufficientStock)
)

// invalid wraps a validation message as ErrInvalidInput.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// StockShortage reports which medicine could not cover the request.
type StockShortage struct {
	MedicineID int64
	Name       string
	Requested  int
	Available  int
}

func (e *StockShortage) Error() string {
	return fmt.Sprintf("insufficient stock for %s (id %d): requested %d, available %d",
		e.Name, e.MedicineID, e.Requested, e.Available)
}

func (e *StockShortage) Unwrap() error { return ErrInsufficientStock }
