package model

import (
	"sort"
	"time"
)

// Participant represents one joined device within a room
type Participant struct {
	ID            string    `json:"id" bson:"id"`
	RoomCode      string    `json:"roomCode" bson:"roomCode"`
	Name          string    `json:"name" bson:"name"`
	PersonalCount int       `json:"personalCount" bson:"personalCount"`
	JoinedAt      time.Time `json:"joinedAt" bson:"joinedAt"`
}

// SortParticipants orders a roster by personal count, highest first.
// Ties keep join order.
func SortParticipants(ps []*Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].PersonalCount != ps[j].PersonalCount {
			return ps[i].PersonalCount > ps[j].PersonalCount
		}
		return ps[i].JoinedAt.Before(ps[j].JoinedAt)
	})
}
