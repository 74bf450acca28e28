package api

import (
	"net/http"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
)

func (h *Handlers) createLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequestBody
	if !decodeJSON(w, r, &req) {
		return
	}
	from, ok := parseDateField(w, "from_date", req.FromDate)
	if !ok {
		return
	}
	to, ok := parseDateField(w, "to_date", req.ToDate)
	if !ok {
		return
	}

	l, err := h.svc.RequestLeave(r.Context(), auth.FromContext(r.Context()), appointment.LeaveRequest{
		DoctorID:     req.DoctorID,
		SubstituteID: req.SubstituteID,
		FromDate:     from,
		ToDate:       to,
		Reason:       req.Reason,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveResponse(l))
}

func (h *Handlers) listLeaves(w http.ResponseWriter, r *http.Request) {
	status := appointment.LeaveStatus(r.URL.Query().Get("status"))
	leaves, err := h.svc.ListLeaves(r.Context(), auth.FromContext(r.Context()), status)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := make([]LeaveResponse, len(leaves))
	for i := range leaves {
		resp[i] = toLeaveResponse(&leaves[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) getLeave(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	l, err := h.svc.GetLeave(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveResponse(l))
}

func (h *Handlers) approveLeave(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.ApproveLeave(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	skipped := res.Skipped
	if skipped == nil {
		skipped = []int64{}
	}
	writeJSON(w, http.StatusOK, LeaveApprovalResponse{
		Leave:           toLeaveResponse(res.Leave),
		ReassignedCount: res.Reassigned,
		Skipped:         skipped,
	})
}

func (h *Handlers) rejectLeave(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.RejectLeave(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
