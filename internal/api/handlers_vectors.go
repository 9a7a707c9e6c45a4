package api

import (
	"net/http"

	"github.com/iammorganparry/clive/apps/recall/internal/memory"
	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

type VectorHandler struct {
	svc *memory.Service
}

func NewVectorHandler(svc *memory.Service) *VectorHandler {
	return &VectorHandler{svc: svc}
}

// Store handles POST /vectors
func (h *VectorHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req models.StoreVectorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.StoreVector(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Search handles POST /vectors/search
func (h *VectorHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req models.SearchVectorsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	matches, err := h.svc.SearchVectors(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": matches, "count": len(matches)})
}

// Update handles PATCH /vectors/{id}
func (h *VectorHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req models.UpdateVectorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.UpdateVector(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /vectors/{id}
func (h *VectorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.svc.DeleteVector(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
