package api

import (
	"time"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/calendar"
)

type ErrorResponse struct {
	Error    string                 `json:"error"`
	Details  string                 `json:"details,omitempty"`
	Medicine *StockShortageResponse `json:"medicine,omitempty"`
}

type StockShortageResponse struct {
	MedicineID int64  `json:"medicine_id"`
	Name       string `json:"name"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
}

type AvailabilityResponse struct {
	DoctorID          int64    `json:"doctor_id"`
	Date              string   `json:"date"`
	Slots             []string `json:"slots"`
	UnavailableReason string   `json:"unavailable_reason,omitempty"`
}

type TemplateRequest struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type TemplateResponse struct {
	ID       int64  `json:"id"`
	DoctorID int64  `json:"doctor_id"`
	Day      string `json:"day"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

type CreateAppointmentRequest struct {
	DoctorID    int64  `json:"doctor_id"`
	PatientID   int64  `json:"patient_id"`
	Date        string `json:"date"`
	TimeSlot    string `json:"time_slot"`
	Description string `json:"description,omitempty"`
}

type AppointmentResponse struct {
	ID          int64     `json:"appointment_id"`
	DoctorID    int64     `json:"doctor_id"`
	PatientID   int64     `json:"patient_id"`
	Date        string    `json:"date"`
	TimeSlot    string    `json:"time_slot"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type LeaveRequestBody struct {
	DoctorID     int64  `json:"doctor_id,omitempty"`
	SubstituteID *int64 `json:"substitute_id,omitempty"`
	FromDate     string `json:"from_date"`
	ToDate       string `json:"to_date"`
	Reason       string `json:"reason,omitempty"`
}

type LeaveResponse struct {
	ID           int64  `json:"id"`
	DoctorID     int64  `json:"doctor_id"`
	SubstituteID *int64 `json:"substitute_id,omitempty"`
	FromDate     string `json:"from_date"`
	ToDate       string `json:"to_date"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

type LeaveApprovalResponse struct {
	Leave           LeaveResponse `json:"leave"`
	ReassignedCount int           `json:"reassigned_count"`
	Skipped         []int64       `json:"skipped"`
}

type PrescriptionLineRequest struct {
	MedicineID int64 `json:"medicine_id"`
	Quantity   int   `json:"quantity"`
}

type CreatePrescriptionRequest struct {
	AppointmentID int64                     `json:"appointment_id"`
	Medicines     []PrescriptionLineRequest `json:"medicines"`
	Dosage        string                    `json:"dosage,omitempty"`
	Duration      string                    `json:"duration,omitempty"`
	Frequency     string                    `json:"frequency,omitempty"`
	Description   string                    `json:"description,omitempty"`
}

type PrescriptionLineResponse struct {
	MedicineID int64  `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
	Dosage     string `json:"dosage,omitempty"`
	Duration   string `json:"duration,omitempty"`
	Frequency  string `json:"frequency,omitempty"`
}

type PrescriptionResponse struct {
	ID            int64                      `json:"prescription_id"`
	AppointmentID int64                      `json:"appointment_id"`
	DoctorID      int64                      `json:"doctor_id"`
	PatientID     int64                      `json:"patient_id"`
	Description   string                     `json:"description,omitempty"`
	Medicines     []PrescriptionLineResponse `json:"medicines"`
	CreatedAt     time.Time                  `json:"created_at"`
}

type MedicineRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Unit     string `json:"unit,omitempty"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

type MedicineResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Unit     string `json:"unit,omitempty"`
}

func toAvailabilityResponse(a *appointment.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		DoctorID:          a.DoctorID,
		Date:              calendar.FormatDate(a.Date),
		Slots:             a.Slots,
		UnavailableReason: a.Reason,
	}
}

func toTemplateResponse(t appointment.AvailabilityTemplate) TemplateResponse {
	return TemplateResponse{
		ID:       t.ID,
		DoctorID: t.DoctorID,
		Day:      t.Day.String(),
		Start:    t.Start.String(),
		End:      t.End.String(),
	}
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		Date:        calendar.FormatDate(a.Date),
		TimeSlot:    a.TimeSlot,
		Status:      string(a.Status),
		Description: a.Description,
		CreatedAt:   a.CreatedAt,
	}
}

func toLeaveResponse(l *appointment.Leave) LeaveResponse {
	return LeaveResponse{
		ID:           l.ID,
		DoctorID:     l.DoctorID,
		SubstituteID: l.SubstituteID,
		FromDate:     calendar.FormatDate(l.FromDate),
		ToDate:       calendar.FormatDate(l.ToDate),
		Status:       string(l.Status),
		Reason:       l.Reason,
	}
}

func toPrescriptionResponse(p *appointment.Prescription) PrescriptionResponse {
	lines := make([]PrescriptionLineResponse, len(p.Lines))
	for i, l := range p.Lines {
		lines[i] = PrescriptionLineResponse{
			MedicineID: l.MedicineID,
			Quantity:   l.Quantity,
			Dosage:     l.Dosage,
			Duration:   l.Duration,
			Frequency:  l.Frequency,
		}
	}
	return PrescriptionResponse{
		ID:            p.ID,
		AppointmentID: p.AppointmentID,
		DoctorID:      p.DoctorID,
		PatientID:     p.PatientID,
		Description:   p.Description,
		Medicines:     lines,
		CreatedAt:     p.CreatedAt,
	}
}

func toMedicineResponse(m *appointment.Medicine) MedicineResponse {
	return MedicineResponse{ID: m.ID, Name: m.Name, Quantity: m.Quantity, Unit: m.Unit}
}
