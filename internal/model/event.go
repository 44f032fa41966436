package model

import (
	"encoding/json"
	"time"
)

// EventType is the kind of a room-scoped notification
type EventType string

const (
	EventRoomUpdated EventType = "room_updated"
	EventAlert       EventType = "alert"
	EventRoomClosed  EventType = "room_closed"
)

// Event is published on a room channel after a mutation or as an owner alert
type Event struct {
	Type     EventType `json:"type"`
	RoomCode string    `json:"roomCode"`
	Version  int64     `json:"version,omitempty"`
	Origin   string    `json:"origin,omitempty"` // device that caused the event
	Message  string    `json:"message,omitempty"`
	SentAt   time.Time `json:"sentAt"`
}

// Envelope is the wire format delivered to observers
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal wraps the event in its envelope
func (e *Event) Marshal() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Envelope{Type: e.Type, Payload: payload})
}

// DecodeEvent unwraps an envelope
func DecodeEvent(data []byte) (*Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return nil, err
	}
	ev.Type = env.Type
	return &ev, nil
}
