package api

import (
	"net/http"

	"github.com/iammorganparry/clive/apps/recall/internal/memory"
)

type ContextHandler struct {
	svc *memory.Service
}

func NewContextHandler(svc *memory.Service) *ContextHandler {
	return &ContextHandler{svc: svc}
}

// Context handles GET /context?query=
func (h *ContextHandler) Context(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.GetComprehensiveContext(r.Context(), r.URL.Query().Get("query")))
}

type indexRequest struct {
	Path string `json:"path"`
}

// IndexFile handles POST /index
func (h *ContextHandler) IndexFile(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.IndexFile(r.Context(), req.Path)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// Maintenance handles POST /maintenance
func (h *ContextHandler) Maintenance(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.RunMaintenance(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
