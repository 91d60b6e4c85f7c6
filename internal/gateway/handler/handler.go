// Package handler adapts the studio command surface to HTTP. Commands are
// plain JSON endpoints; state flows back to clients over the /ws snapshot
// stream.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"atelier/internal/edit"
	"atelier/internal/pipeline"
	"atelier/internal/provider"
	"atelier/internal/registry"
	"atelier/internal/runway"
	"atelier/internal/status"
	"atelier/internal/studio"
	"atelier/internal/techpack"
)

type Handler struct {
	s   *studio.Studio
	log *log.Logger
}

func New(s *studio.Studio, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{s: s, log: logger}
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, msg string, details map[string]any) {
	writeJSON(w, code, map[string]errorBody{"error": {Code: kind, Message: msg, Details: details}})
}

// fail maps a command error onto a status code and error envelope.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var ro *edit.ReadOnlyError
	switch {
	case errors.As(err, &ro):
		writeError(w, http.StatusConflict, "read_only_image", err.Error(), map[string]any{"primaryImageId": ro.PrimaryImageID})
	case errors.Is(err, status.ErrBusy):
		writeError(w, http.StatusConflict, "busy", err.Error(), nil)
	case errors.Is(err, studio.ErrNotFound), errors.Is(err, registry.ErrNotFound),
		errors.Is(err, edit.ErrConceptNotFound), errors.Is(err, edit.ErrImageNotFound),
		errors.Is(err, runway.ErrNotFound), errors.Is(err, techpack.ErrConceptNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, studio.ErrEmptyMessage), errors.Is(err, edit.ErrEmptyInstruction),
		errors.Is(err, registry.ErrEmptyPayload), errors.Is(err, runway.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error(), nil)
	case errors.Is(err, pipeline.ErrNoPrimary), errors.Is(err, runway.ErrNoPrimary):
		writeError(w, http.StatusUnprocessableEntity, "no_primary_image", err.Error(), nil)
	case errors.Is(err, provider.ErrMissingCredentials):
		writeError(w, http.StatusServiceUnavailable, "unconfigured", err.Error(), nil)
	case errors.Is(err, studio.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err.Error(), nil)
	default:
		h.log.Printf("handler: %v", err)
		writeError(w, http.StatusBadGateway, "provider_failure", err.Error(), nil)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json body", nil)
		return false
	}
	return true
}

const (
	maxJSONBody   = 32 << 20
	maxUploadBody = 64 << 20
)
