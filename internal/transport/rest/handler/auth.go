package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"masbaha/internal/service"
	"net/http"

	"github.com/rs/zerolog/log"
)

// DeviceHandler issues device credentials
type DeviceHandler struct {
	authSvc *service.AuthService
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(authSvc *service.AuthService) *DeviceHandler {
	return &DeviceHandler{authSvc: authSvc}
}

// Register handles POST /v1/devices
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	resp, err := h.authSvc.IssueDeviceToken()
	if err != nil {
		log.Error().Err(err).Msg("failed to issue device token")
		writeError(w, http.StatusInternalServerError, "failed to issue device token")
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeServiceError maps engine errors onto status codes. Storage failures
// get a generic message; the detail goes to the log.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room not found")
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "action failed")
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: invalid request body", service.ErrInvalidRequest)
}
