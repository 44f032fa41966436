package repository

import (
	"context"
	"errors"
	"masbaha/internal/model"
	"time"
)

// DefaultTTL is the coarse storage backstop; the reclaimer enforces the
// precise retention windows.
const DefaultTTL = 30 * 24 * time.Hour

var (
	// ErrNotFound means no live room record exists for the code
	ErrNotFound = errors.New("room not found")
	// ErrConflict means optimistic concurrency retries were exhausted
	ErrConflict = errors.New("concurrent modification")
)

// RoomMutator mutates a room and, when one was requested and exists, a single
// participant. p is nil when no participant was requested or it is missing.
// Returning an error aborts the write and is passed through unchanged.
type RoomMutator func(room *model.Room, p *model.Participant) error

// RoomStore is the storage adapter for rooms and their keyed rosters.
// Every write refreshes the coarse storage expiry of the room's records.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, code string) (*model.Room, error)
	Exists(ctx context.Context, code string) (bool, error)
	ListParticipants(ctx context.Context, code string) ([]*model.Participant, error)

	// UpdateRoom applies fn under compare-and-swap and persists the room and
	// participant together.
	UpdateRoom(ctx context.Context, code, participantID string, fn RoomMutator) (*model.Room, *model.Participant, error)
	// ResetRoom applies fn to the room and zeroes every personal count in one write.
	ResetRoom(ctx context.Context, code string, fn func(room *model.Room)) (*model.Room, error)

	// AddParticipant writes p and applies fn to its room in one write
	AddParticipant(ctx context.Context, p *model.Participant, fn func(room *model.Room)) (*model.Room, error)
	// RemoveParticipant deletes a roster entry; fn is applied to the room in
	// the same write only when the entry existed
	RemoveParticipant(ctx context.Context, code, participantID string, fn func(room *model.Room)) (*model.Room, bool, error)

	// DeleteRoom removes the room and its roster
	DeleteRoom(ctx context.Context, code string) error
}

// MaxCASRetries bounds optimistic concurrency retries per mutation
const MaxCASRetries = 64
