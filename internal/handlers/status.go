package handlers

import (
	"context"
	"net/http"

	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/services"
)

type modelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

type StatusHandler struct {
	models modelLister
	log    *logger.Logger
}

func NewStatusHandler(models modelLister, log *logger.Logger) *StatusHandler {
	return &StatusHandler{models: models, log: log}
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status never fails; a broken model listing is reported as an empty list.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	available := []string{}
	if h.models != nil {
		names, err := h.models.ListModels(r.Context())
		if err != nil {
			h.log.Warn("failed to list Gemini models", "error", err)
		} else {
			available = names
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "OK",
		"gemini_configured": h.models != nil,
		"available_models":  available,
	})
}

func (h *StatusHandler) Models(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		handleServiceError(w, r, h.log, &services.UpstreamError{Message: "Gemini is not configured"})
		return
	}

	names, err := h.models.ListModels(r.Context())
	if err != nil {
		handleServiceError(w, r, h.log, &services.UpstreamError{Message: "Failed to list models", Err: err})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"available_models": names,
		"total":            len(names),
	})
}
