package api

import (
	"net/http"
	"strconv"

	"github.com/iammorganparry/clive/apps/recall/internal/memory"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

// RecordHandler serves the write paths for domain records.
type RecordHandler struct {
	svc *memory.Service
}

func NewRecordHandler(svc *memory.Service) *RecordHandler {
	return &RecordHandler{svc: svc}
}

// StoreMessage handles POST /messages
func (h *RecordHandler) StoreMessage(w http.ResponseWriter, r *http.Request) {
	var req models.StoreMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	msg, err := h.svc.StoreMessage(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// RecentMessages handles GET /messages?limit=
func (h *RecordHandler) RecentMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.svc.RecentMessages(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// DeleteMessage handles DELETE /messages/{id}
func (h *RecordHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.DeleteMessage(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// TrackFile handles POST /files/active
func (h *RecordHandler) TrackFile(w http.ResponseWriter, r *http.Request) {
	var req models.TrackFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	f, err := h.svc.TrackActiveFile(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// AddMilestone handles POST /milestones
func (h *RecordHandler) AddMilestone(w http.ResponseWriter, r *http.Request) {
	var req models.MilestoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := h.svc.AddMilestone(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// AddDecision handles POST /decisions
func (h *RecordHandler) AddDecision(w http.ResponseWriter, r *http.Request) {
	var req models.DecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	d, err := h.svc.AddDecision(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// AddRequirement handles POST /requirements
func (h *RecordHandler) AddRequirement(w http.ResponseWriter, r *http.Request) {
	var req models.RequirementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rq, err := h.svc.AddRequirement(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rq)
}

// RecordEpisode handles POST /episodes
func (h *RecordHandler) RecordEpisode(w http.ResponseWriter, r *http.Request) {
	var req models.EpisodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	e, err := h.svc.RecordEpisode(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}
