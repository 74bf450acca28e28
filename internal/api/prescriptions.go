package api

import (
	"net/http"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
)

func (h *Handlers) createPrescription(w http.ResponseWriter, r *http.Request) {
	var req CreatePrescriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lines := make([]appointment.LineRequest, len(req.Medicines))
	for i, m := range req.Medicines {
		lines[i] = appointment.LineRequest{MedicineID: m.MedicineID, Quantity: m.Quantity}
	}

	p, err := h.svc.IssuePrescription(r.Context(), auth.FromContext(r.Context()), appointment.PrescriptionRequest{
		AppointmentID: req.AppointmentID,
		Lines:         lines,
		Dosage:        req.Dosage,
		Duration:      req.Duration,
		Frequency:     req.Frequency,
		Description:   req.Description,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPrescriptionResponse(p))
}

func (h *Handlers) getPrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetPrescription(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrescriptionResponse(p))
}

func (h *Handlers) listMedicines(w http.ResponseWriter, r *http.Request) {
	meds, err := h.svc.ListMedicines(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	resp := make([]MedicineResponse, len(meds))
	for i := range meds {
		resp[i] = toMedicineResponse(&meds[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) createMedicine(w http.ResponseWriter, r *http.Request) {
	var req MedicineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.svc.AddMedicine(r.Context(), auth.FromContext(r.Context()), appointment.Medicine{
		Name:     req.Name,
		Quantity: req.Quantity,
		Unit:     req.Unit,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMedicineResponse(m))
}

func (h *Handlers) restockMedicine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req RestockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.svc.RestockMedicine(r.Context(), auth.FromContext(r.Context()), id, req.Quantity)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicineResponse(m))
}
