package api

import (
	"net/http"

	"github.com/iammorganparry/clive/apps/recall/internal/memory"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

type HealthHandler struct {
	svc      *memory.Service
	embedder HealthChecker
}

func NewHealthHandler(svc *memory.Service, embedder HealthChecker) *HealthHandler {
	return &HealthHandler{svc: svc, embedder: embedder}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := h.svc.Health(r.Context())

	resp.Embedding = models.ServiceCheck{Status: "ok", Message: "builtin"}
	if h.embedder != nil {
		if err := h.embedder.HealthCheck(r.Context()); err != nil {
			resp.Embedding = models.ServiceCheck{Status: "error", Message: err.Error()}
			resp.Status = "degraded"
		} else {
			resp.Embedding.Message = "ollama"
		}
	}

	status := http.StatusOK
	if resp.DB.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
