package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/identity"
)

// Service is the booking engine as seen by the HTTP layer.
type Service interface {
	ResolveSlots(ctx context.Context, doctorID int64, day time.Time) (*appointment.Availability, error)

	AddTemplate(ctx context.Context, actor identity.Actor, t appointment.AvailabilityTemplate) (*appointment.AvailabilityTemplate, error)
	ListTemplates(ctx context.Context, doctorID int64) ([]appointment.AvailabilityTemplate, error)
	DeleteTemplate(ctx context.Context, actor identity.Actor, doctorID, templateID int64) error

	Book(ctx context.Context, actor identity.Actor, req appointment.BookingRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, actor identity.Actor, id int64) (*appointment.Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, actor identity.Actor, patientID int64, limit, offset int) ([]appointment.Appointment, error)
	ListAppointmentsByDoctorDate(ctx context.Context, actor identity.Actor, doctorID int64, day time.Time) ([]appointment.Appointment, error)
	CancelAppointment(ctx context.Context, actor identity.Actor, id int64) (*appointment.Appointment, error)
	CompleteAppointment(ctx context.Context, actor identity.Actor, id int64) (*appointment.Appointment, error)

	RequestLeave(ctx context.Context, actor identity.Actor, req appointment.LeaveRequest) (*appointment.Leave, error)
	GetLeave(ctx context.Context, actor identity.Actor, id int64) (*appointment.Leave, error)
	ListLeaves(ctx context.Context, actor identity.Actor, status appointment.LeaveStatus) ([]appointment.Leave, error)
	ApproveLeave(ctx context.Context, actor identity.Actor, id int64) (*appointment.LeaveApproval, error)
	RejectLeave(ctx context.Context, actor identity.Actor, id int64) error

	IssuePrescription(ctx context.Context, actor identity.Actor, req appointment.PrescriptionRequest) (*appointment.Prescription, error)
	GetPrescription(ctx context.Context, actor identity.Actor, id int64) (*appointment.Prescription, error)

	AddMedicine(ctx context.Context, actor identity.Actor, m appointment.Medicine) (*appointment.Medicine, error)
	RestockMedicine(ctx context.Context, actor identity.Actor, id int64, quantity int) (*appointment.Medicine, error)
	ListMedicines(ctx context.Context, actor identity.Actor) ([]appointment.Medicine, error)
}

type Handlers struct {
	svc    Service
	logger *zap.Logger
}

func NewHandlers(svc Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{svc: svc, logger: logger}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string) (int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func parseDateField(w http.ResponseWriter, name, value string) (time.Time, bool) {
	d, err := calendar.ParseDate(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must look like 2024-06-10")
		return time.Time{}, false
	}
	return d, true
}

func (h *Handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	day, ok := parseDateField(w, "date", req.Date)
	if !ok {
		return
	}

	actor := auth.FromContext(r.Context())
	if req.PatientID == 0 && identity.IsPatient(actor) {
		req.PatientID = actor.UserID()
	}

	appt, err := h.svc.Book(r.Context(), actor, appointment.BookingRequest{
		DoctorID:    req.DoctorID,
		PatientID:   req.PatientID,
		Date:        day,
		TimeSlot:    req.TimeSlot,
		Description: req.Description,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.GetAppointment(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// listAppointments serves either ?patient_id= (paged) or ?doctor_id=&date=.
func (h *Handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor := auth.FromContext(r.Context())
	q := r.URL.Query()

	doctorID, err := queryInt(r, "doctor_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
		return
	}

	var appts []appointment.Appointment
	if doctorID > 0 {
		day, ok := parseDateField(w, "date", q.Get("date"))
		if !ok {
			return
		}
		appts, err = h.svc.ListAppointmentsByDoctorDate(r.Context(), actor, doctorID, day)
	} else {
		patientID, perr := queryInt(r, "patient_id")
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", perr.Error())
			return
		}
		if patientID == 0 && identity.IsPatient(actor) {
			patientID = actor.UserID()
		}
		if patientID <= 0 {
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or doctor_id and date are required")
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		appts, err = h.svc.ListAppointmentsByPatient(r.Context(), actor, patientID, limit, offset)
	}
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := make([]AppointmentResponse, len(appts))
	for i := range appts {
		resp[i] = toAppointmentResponse(&appts[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	h.appointmentTransition(w, r, h.svc.CancelAppointment)
}

func (h *Handlers) completeAppointment(w http.ResponseWriter, r *http.Request) {
	h.appointmentTransition(w, r, h.svc.CompleteAppointment)
}

func (h *Handlers) appointmentTransition(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, identity.Actor, int64) (*appointment.Appointment, error),
) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	appt, err := op(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}
