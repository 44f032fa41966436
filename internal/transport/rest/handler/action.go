package handler

import (
	"encoding/json"
	"fmt"
	"masbaha/internal/service"
	"masbaha/internal/transport/rest/middleware"
	"net/http"
	"strings"
)

// Legacy action names accepted by POST /v1/action
const (
	ActionJoin         = "JOIN"
	ActionTap          = "TAP"
	ActionReset        = "RESET"
	ActionUpdateTarget = "UPDATE_TARGET"
	ActionBulkAdd      = "BULK_ADD"
	ActionLeave        = "LEAVE"
)

// ActionRequest is the single-endpoint envelope older clients send
type ActionRequest struct {
	Action   string          `json:"action"`
	RoomCode string          `json:"roomCode"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type actionPayload struct {
	Participant *struct {
		Name string `json:"name"`
	} `json:"participant,omitempty"`
	Name          string `json:"name"`
	ParticipantID string `json:"participantId"`
	NewTarget     *int   `json:"newTarget"`
	Amount        int    `json:"amount"`
}

// ActionHandler dispatches legacy actions onto the room engine
type ActionHandler struct {
	roomSvc *service.RoomService
}

// NewActionHandler creates a new action handler
func NewActionHandler(roomSvc *service.RoomService) *ActionHandler {
	return &ActionHandler{roomSvc: roomSvc}
}

// Dispatch handles POST /v1/action
func (h *ActionHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.RoomCode == "" {
		writeError(w, http.StatusBadRequest, "room code required")
		return
	}

	var p actionPayload
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}

	ctx := r.Context()
	deviceID := middleware.GetDeviceID(ctx)

	switch strings.ToUpper(req.Action) {
	case ActionJoin:
		name := p.Name
		if p.Participant != nil && name == "" {
			name = p.Participant.Name
		}
		participant, err := h.roomSvc.Join(ctx, req.RoomCode, name)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "participant": participant})

	case ActionTap:
		room, err := h.roomSvc.Tap(ctx, req.RoomCode, p.ParticipantID)
		writeRoomResult(w, r, room, err)

	case ActionReset:
		room, err := h.roomSvc.Reset(ctx, deviceID, req.RoomCode)
		writeRoomResult(w, r, room, err)

	case ActionUpdateTarget:
		if p.NewTarget == nil {
			writeError(w, http.StatusBadRequest, "newTarget required")
			return
		}
		room, err := h.roomSvc.UpdateTarget(ctx, deviceID, req.RoomCode, *p.NewTarget)
		writeRoomResult(w, r, room, err)

	case ActionBulkAdd:
		room, err := h.roomSvc.BulkAdjust(ctx, deviceID, req.RoomCode, p.ParticipantID, p.Amount)
		writeRoomResult(w, r, room, err)

	case ActionLeave:
		if err := h.roomSvc.Leave(ctx, req.RoomCode, p.ParticipantID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, &ActionResponse{Success: true})

	default:
		writeServiceError(w, r, fmt.Errorf("%w: unknown action %q", service.ErrInvalidRequest, req.Action))
	}
}
