package handler

import (
	"errors"
	"masbaha/internal/model"
	"masbaha/internal/service"
	"masbaha/internal/transport/rest/middleware"
	"net/http"

	"github.com/gorilla/mux"
)

// RoomHandler handles room endpoints
type RoomHandler struct {
	roomSvc *service.RoomService
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(roomSvc *service.RoomService) *RoomHandler {
	return &RoomHandler{roomSvc: roomSvc}
}

// JoinRequest is the request body for joining a room
type JoinRequest struct {
	Name string `json:"name"`
}

// TapRequest is the request body for a tap
type TapRequest struct {
	ParticipantID string `json:"participantId"`
}

// BulkRequest is the request body for a bulk adjustment
type BulkRequest struct {
	ParticipantID string `json:"participantId"`
	Amount        int    `json:"amount"`
}

// TargetRequest is the request body for a target change
type TargetRequest struct {
	Target *int `json:"target"`
}

// AlertRequest is the request body for an owner broadcast
type AlertRequest struct {
	Message string `json:"message"`
}

// ActionResponse mirrors the success marker clients already understand
type ActionResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Room    *model.Room `json:"room,omitempty"`
}

// Create handles POST /v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRoomInput
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	room, err := h.roomSvc.Create(r.Context(), middleware.GetDeviceID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

// Get handles GET /v1/rooms/{code}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	state, err := h.roomSvc.Get(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// Join handles POST /v1/rooms/{code}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	participant, err := h.roomSvc.Join(r.Context(), mux.Vars(r)["code"], req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, participant)
}

// Tap handles POST /v1/rooms/{code}/tap
func (h *RoomHandler) Tap(w http.ResponseWriter, r *http.Request) {
	var req TapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	room, err := h.roomSvc.Tap(r.Context(), mux.Vars(r)["code"], req.ParticipantID)
	writeRoomResult(w, r, room, err)
}

// Bulk handles POST /v1/rooms/{code}/bulk
func (h *RoomHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	room, err := h.roomSvc.BulkAdjust(r.Context(), middleware.GetDeviceID(r.Context()), mux.Vars(r)["code"], req.ParticipantID, req.Amount)
	writeRoomResult(w, r, room, err)
}

// Reset handles POST /v1/rooms/{code}/reset
func (h *RoomHandler) Reset(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.Reset(r.Context(), middleware.GetDeviceID(r.Context()), mux.Vars(r)["code"])
	writeRoomResult(w, r, room, err)
}

// UpdateTarget handles PUT /v1/rooms/{code}/target
func (h *RoomHandler) UpdateTarget(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Target == nil {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	room, err := h.roomSvc.UpdateTarget(r.Context(), middleware.GetDeviceID(r.Context()), mux.Vars(r)["code"], *req.Target)
	writeRoomResult(w, r, room, err)
}

// Leave handles DELETE /v1/rooms/{code}/participants/{id}
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.roomSvc.Leave(r.Context(), vars["code"], vars["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &ActionResponse{Success: true})
}

// Alert handles POST /v1/rooms/{code}/alerts
func (h *RoomHandler) Alert(w http.ResponseWriter, r *http.Request) {
	var req AlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.roomSvc.SendAlert(r.Context(), middleware.GetDeviceID(r.Context()), mux.Vars(r)["code"], req.Message); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// writeRoomResult answers a mutation. A declined tap is a normal response.
func writeRoomResult(w http.ResponseWriter, r *http.Request, room *model.Room, err error) {
	if errors.Is(err, service.ErrAlreadyCompleted) {
		writeJSON(w, http.StatusOK, &ActionResponse{Success: false, Message: "Completed", Room: room})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &ActionResponse{Success: true, Room: room})
}
