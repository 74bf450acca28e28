package api

import (
	"net/http"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/calendar"
)

func (h *Handlers) getAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(w, r, "doctorID")
	if !ok {
		return
	}
	day, ok := parseDateField(w, "date", r.URL.Query().Get("date"))
	if !ok {
		return
	}

	avail, err := h.svc.ResolveSlots(r.Context(), doctorID, day)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(avail))
}

func (h *Handlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(w, r, "doctorID")
	if !ok {
		return
	}
	templates, err := h.svc.ListTemplates(r.Context(), doctorID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := make([]TemplateResponse, len(templates))
	for i, t := range templates {
		resp[i] = toTemplateResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) createTemplate(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(w, r, "doctorID")
	if !ok {
		return
	}
	var req TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	day, err := calendar.ParseWeekday(req.Day)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_day", err.Error())
		return
	}
	start, err := calendar.ParseClock(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", err.Error())
		return
	}
	end, err := calendar.ParseClock(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end", err.Error())
		return
	}

	t, err := h.svc.AddTemplate(r.Context(), auth.FromContext(r.Context()), appointment.AvailabilityTemplate{
		DoctorID: doctorID,
		Day:      day,
		Start:    start,
		End:      end,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateResponse(*t))
}

func (h *Handlers) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(w, r, "doctorID")
	if !ok {
		return
	}
	templateID, ok := pathID(w, r, "templateID")
	if !ok {
		return
	}
	if err := h.svc.DeleteTemplate(r.Context(), auth.FromContext(r.Context()), doctorID, templateID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
