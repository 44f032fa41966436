package model

import "time"

// DefaultPhrase is used when a room is created without a phrase
const DefaultPhrase = "سبحان الله"

// Room is one counting session with a shared total and an optional target
type Room struct {
	ID          string     `json:"id" bson:"id"`
	Code        string     `json:"code" bson:"code"`
	Name        string     `json:"name" bson:"name"`
	Phrase      string     `json:"phrase" bson:"phrase"`
	PhraseImage string     `json:"phraseImage,omitempty" bson:"phraseImage,omitempty"` // base64 payload
	TargetCount int        `json:"targetCount" bson:"targetCount"`                     // 0 means open ended
	TotalCount  int        `json:"totalCount" bson:"totalCount"`
	IsCompleted bool       `json:"isCompleted" bson:"isCompleted"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	LastActive  *time.Time `json:"lastActiveAt,omitempty" bson:"lastActiveAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	OwnerID     string     `json:"ownerId" bson:"ownerId"`
	Version     int64      `json:"version" bson:"version"`
}

// LastActiveAt returns the last interaction time, falling back to CreatedAt
// for records written before the field existed.
func (r *Room) LastActiveAt() time.Time {
	if r.LastActive == nil || r.LastActive.IsZero() {
		return r.CreatedAt
	}
	return *r.LastActive
}

// IsOwner reports whether deviceID created the room
func (r *Room) IsOwner(deviceID string) bool {
	return deviceID != "" && r.OwnerID == deviceID
}

// Clone returns a deep copy so observers can hold a prediction without
// aliasing the authoritative value.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	if r.LastActive != nil {
		t := *r.LastActive
		c.LastActive = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// CreateRoomInput describes a room creation request
type CreateRoomInput struct {
	ID          string    `json:"id,omitempty"`
	Code        string    `json:"code,omitempty"`
	Name        string    `json:"name"`
	Phrase      string    `json:"phrase"`
	PhraseImage string    `json:"phraseImage,omitempty"`
	TargetCount int       `json:"targetCount"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// RoomState is a room together with its roster, as returned by GetRoom
type RoomState struct {
	Room         *Room          `json:"room"`
	Participants []*Participant `json:"participants"`
}

// Clone deep-copies the state
func (s *RoomState) Clone() *RoomState {
	if s == nil {
		return nil
	}
	out := &RoomState{Room: s.Room.Clone(), Participants: make([]*Participant, len(s.Participants))}
	for i, p := range s.Participants {
		cp := *p
		out.Participants[i] = &cp
	}
	return out
}

// Participant looks up a roster entry by id
func (s *RoomState) Participant(id string) *Participant {
	for _, p := range s.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}
