package appointment

import (
	"time"

	"github.com/hackgods/clinic-booking/internal/calendar"
)

type AppointmentStatus string

const (
	StatusUpcoming  AppointmentStatus = "upcoming"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	// LeaveRejected is never stored; rejected leaves are deleted and the
	// status only travels on the event and the notification.
	LeaveRejected LeaveStatus = "rejected"
)

// Unavailability reasons reported with an empty slot list.
const (
	ReasonOnLeave        = "on leave"
	ReasonNoAvailability = "no weekly availability"
)

type Doctor struct {
	ID             int64
	Name           string
	Email          string
	Specialization string
	CreatedAt      time.Time
}

type Patient struct {
	ID        int64
	Name      string
	Email     string
	Category  string
	CreatedAt time.Time
}

// AvailabilityTemplate is a recurring weekly window for one doctor.
type AvailabilityTemplate struct {
	ID        int64
	DoctorID  int64
	Day       calendar.Weekday
	Start     calendar.Clock
	End       calendar.Clock
	CreatedAt time.Time
}

func (t AvailabilityTemplate) Window() calendar.Window {
	return calendar.Window{Start: t.Start, End: t.End}
}

type Leave struct {
	ID           int64
	DoctorID     int64
	SubstituteID *int64
	FromDate     time.Time
	ToDate       time.Time
	Status       LeaveStatus
	Reason       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Covers reports whether day falls in [FromDate, ToDate].
func (l Leave) Covers(day time.Time) bool {
	day = calendar.Day(day)
	return !day.Before(calendar.Day(l.FromDate)) && !day.After(calendar.Day(l.ToDate))
}

type Appointment struct {
	ID          int64
	DoctorID    int64
	PatientID   int64
	Date        time.Time
	TimeSlot    string
	Status      AppointmentStatus
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Medicine struct {
	ID        int64
	Name      string
	Quantity  int
	Unit      string
	UpdatedAt time.Time
}

type Prescription struct {
	ID            int64
	AppointmentID int64
	DoctorID      int64
	PatientID     int64
	Description   string
	Lines         []PrescriptionLine
	CreatedAt     time.Time
}

type PrescriptionLine struct {
	MedicineID int64
	Quantity   int
	Dosage     string
	Duration   string
	Frequency  string
}

// EventLog is an outbox row written in the same transaction as the change
// it describes.
type EventLog struct {
	ID            int64
	EventType     string
	AggregateType string
	AggregateID   string
	Payload       []byte
	CreatedAt     time.Time
}

// Availability is the result of resolving a doctor's day.
type Availability struct {
	DoctorID int64
	Date     time.Time
	Slots    []string
	// Reason is set only when Slots is empty because of leave or a missing template.
	Reason string
}

type BookingRequest struct {
	DoctorID    int64
	PatientID   int64
	Date        time.Time
	TimeSlot    string
	Description string
}

type LeaveRequest struct {
	DoctorID     int64
	SubstituteID *int64
	FromDate     time.Time
	ToDate       time.Time
	Reason       string
}

type LeaveApproval struct {
	Leave      *Leave
	Reassigned int
	// Skipped lists appointments kept by the original doctor under the skip policy.
	Skipped []int64
}

type PrescriptionRequest struct {
	AppointmentID int64
	Lines         []LineRequest
	Dosage        string
	Duration      string
	Frequency     string
	Description   string
}

type LineRequest struct {
	MedicineID int64
	Quantity   int
}
