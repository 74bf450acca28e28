package appointment

import (
	"context"
	"time"

	"github.com/hackgods/clinic-booking/internal/calendar"
)

// Repository contains all DB interactions needed by the service.
// Lookups return the matching *NotFound sentinel when no row exists.
type Repository interface {
	GetDoctor(ctx context.Context, id int64) (*Doctor, error)
	GetPatient(ctx context.Context, id int64) (*Patient, error)

	// Calendar templates
	InsertTemplate(ctx context.Context, t AvailabilityTemplate) (*AvailabilityTemplate, error)
	ListTemplates(ctx context.Context, doctorID int64) ([]AvailabilityTemplate, error)
	ListTemplatesForDay(ctx context.Context, doctorID int64, day calendar.Weekday) ([]AvailabilityTemplate, error)
	DeleteTemplate(ctx context.Context, doctorID, templateID int64) error

	// Leave register
	InsertLeave(ctx context.Context, l Leave) (*Leave, error)
	GetLeave(ctx context.Context, id int64) (*Leave, error)
	// GetLeaveForUpdate row-locks the leave until the transaction ends.
	GetLeaveForUpdate(ctx context.Context, id int64) (*Leave, error)
	ListLeaves(ctx context.Context, status LeaveStatus) ([]Leave, error)
	LeavesCovering(ctx context.Context, doctorID int64, day time.Time) ([]Leave, error)
	SetLeaveStatus(ctx context.Context, id int64, status LeaveStatus) (*Leave, error)
	DeleteLeave(ctx context.Context, id int64) error

	// Booking ledger
	TakenSlots(ctx context.Context, doctorID int64, day time.Time) ([]string, error)
	// InsertAppointment returns ErrSlotTaken when an active booking already
	// holds the (doctor, date, slot) triple.
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	GetAppointment(ctx context.Context, id int64) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID int64, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctorDate(ctx context.Context, doctorID int64, day time.Time) ([]Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus) (*Appointment, error)
	// UpcomingInRangeForUpdate row-locks the doctor's upcoming appointments in [from, to].
	UpcomingInRangeForUpdate(ctx context.Context, doctorID int64, from, to time.Time) ([]Appointment, error)
	// ReassignAppointments moves the given appointments to doctorID in one
	// statement. A uniqueness clash fails the whole statement with ErrSlotTaken.
	ReassignAppointments(ctx context.Context, ids []int64, doctorID int64) (int, error)

	// Medicine inventory
	InsertMedicine(ctx context.Context, m Medicine) (*Medicine, error)
	ListMedicines(ctx context.Context) ([]Medicine, error)
	// LockMedicines row-locks the medicines in ascending id order. Missing
	// ids are simply absent from the result.
	LockMedicines(ctx context.Context, ids []int64) ([]Medicine, error)
	// AdjustMedicine adds delta to the quantity. Going below zero fails with ErrStockExhausted.
	AdjustMedicine(ctx context.Context, id int64, delta int) (*Medicine, error)

	// Prescriptions
	InsertPrescription(ctx context.Context, p Prescription) (*Prescription, error)
	GetPrescription(ctx context.Context, id int64) (*Prescription, error)

	// Outbox
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Store is a Repository that can also run a unit of work atomically. The
// Repository handed to fn is bound to the transaction; any error from fn
// rolls everything back.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}
