package service

import (
	"masbaha/internal/model"
	"time"
)

const (
	DefaultInactivityWindow = 48 * time.Hour
	DefaultCompletionWindow = 10 * time.Hour
)

// ReclaimReason says why a room was reclaimed
type ReclaimReason string

const (
	ReclaimInactive  ReclaimReason = "inactive"
	ReclaimCompleted ReclaimReason = "completed"
)

// Reclaimer is the retention policy evaluated lazily whenever a room is
// loaded. Storage expiry is only a coarse backstop behind it.
type Reclaimer struct {
	Inactivity time.Duration
	Completion time.Duration
}

// NewReclaimer returns the policy with the default windows
func NewReclaimer() *Reclaimer {
	return &Reclaimer{
		Inactivity: DefaultInactivityWindow,
		Completion: DefaultCompletionWindow,
	}
}

// Evaluate reports whether room has outlived a retention window at now
func (r *Reclaimer) Evaluate(room *model.Room, now time.Time) (ReclaimReason, bool) {
	if now.Sub(room.LastActiveAt()) > r.Inactivity {
		return ReclaimInactive, true
	}
	if room.IsCompleted && room.CompletedAt != nil && now.Sub(*room.CompletedAt) > r.Completion {
		return ReclaimCompleted, true
	}
	return "", false
}
