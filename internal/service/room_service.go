package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"masbaha/internal/model"
	"masbaha/internal/repository"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultStorageTimeout bounds each storage round trip
	DefaultStorageTimeout = 5 * time.Second
	maxAlertLength        = 500
)

// RoomService is the authoritative room state engine. Every mutation is a
// compare-and-swap against the store; the result is published afterwards.
type RoomService struct {
	store       repository.RoomStore
	reclaimer   *Reclaimer
	clock       clockwork.Clock
	broadcaster Broadcaster
	timeout     time.Duration
}

// NewRoomService creates a new room service
func NewRoomService(store repository.RoomStore, reclaimer *Reclaimer, clock clockwork.Clock) *RoomService {
	if reclaimer == nil {
		reclaimer = NewReclaimer()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoomService{
		store:     store,
		reclaimer: reclaimer,
		clock:     clock,
		timeout:   DefaultStorageTimeout,
	}
}

// SetBroadcaster sets the broadcaster for room events
func (s *RoomService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetStorageTimeout overrides the per-call storage timeout
func (s *RoomService) SetStorageTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Create stores a new open room owned by ownerID. A caller supplied code is
// trusted to be unique; otherwise one is generated.
func (s *RoomService) Create(ctx context.Context, ownerID string, in *model.CreateRoomInput) (*model.Room, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	if in == nil || strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if in.TargetCount < 0 {
		return nil, fmt.Errorf("%w: targetCount must not be negative", ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	code := in.Code
	if code == "" {
		var err error
		if code, err = s.generateRoomCode(ctx); err != nil {
			return nil, err
		}
	}
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}
	phrase := strings.TrimSpace(in.Phrase)
	if phrase == "" {
		phrase = model.DefaultPhrase
	}

	room := &model.Room{
		ID:          id,
		Code:        code,
		Name:        strings.TrimSpace(in.Name),
		Phrase:      phrase,
		PhraseImage: in.PhraseImage,
		TargetCount: in.TargetCount,
		CreatedAt:   createdAt,
		OwnerID:     ownerID,
	}
	room.Touch(createdAt)

	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, storageError("create room", err)
	}

	log.Info().Str("room_code", code).Str("device_id", ownerID).Int("target", room.TargetCount).Msg("room created")
	return room, nil
}

// Get returns the room and its roster ordered by personal count
func (s *RoomService) Get(ctx context.Context, code string) (*model.RoomState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	room, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, code)
	if err != nil {
		return nil, storageError("list participants", err)
	}
	return &model.RoomState{Room: room, Participants: participants}, nil
}

// Join appends a participant with a zero personal count
func (s *RoomService) Join(ctx context.Context, code, name string) (*model.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.load(ctx, code); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	participant := &model.Participant{
		ID:       "p_" + uuid.New().String()[:8],
		RoomCode: code,
		Name:     name,
		JoinedAt: now,
	}
	room, err := s.store.AddParticipant(ctx, participant, func(r *model.Room) {
		r.Touch(now)
		r.Version++
	})
	if err != nil {
		return nil, storageError("add participant", err)
	}

	log.Info().Str("room_code", code).Str("participant_id", participant.ID).Msg("participant joined")
	s.publishUpdate(ctx, room, "")
	return participant, nil
}

// Tap adds one to the room and to the participant's personal count. A tap
// on a completed room returns the room with ErrAlreadyCompleted. An unknown
// participant still counts towards the room.
func (s *RoomService) Tap(ctx context.Context, code, participantID string) (*model.Room, error) {
	if participantID == "" {
		return nil, fmt.Errorf("%w: participantId is required", ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if current.IsCompleted {
		return current, ErrAlreadyCompleted
	}

	now := s.clock.Now()
	room, p, err := s.store.UpdateRoom(ctx, code, participantID, func(r *model.Room, p *model.Participant) error {
		if !r.ApplyTap(now) {
			return ErrAlreadyCompleted
		}
		if p != nil {
			p.AddCount(1)
		}
		r.Version++
		return nil
	})
	if errors.Is(err, ErrAlreadyCompleted) {
		latest, loadErr := s.store.GetRoom(ctx, code)
		if loadErr != nil {
			return nil, storageError("get room", loadErr)
		}
		return latest, ErrAlreadyCompleted
	}
	if err != nil {
		return nil, storageError("tap", err)
	}

	evt := log.Debug().Str("room_code", code).Int("total", room.TotalCount)
	if p == nil {
		evt = evt.Str("participant_id", participantID).Bool("participant_missing", true)
	}
	evt.Msg("tap")
	if room.IsCompleted {
		log.Info().Str("room_code", code).Int("total", room.TotalCount).Msg("room completed")
	}

	s.publishUpdate(ctx, room, "")
	return room, nil
}

// BulkAdjust applies a signed amount to the room total and, independently,
// to one participant's personal count. Both are floored at zero.
func (s *RoomService) BulkAdjust(ctx context.Context, deviceID, code, participantID string, amount int) (*model.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.loadOwned(ctx, deviceID, code)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return current, nil
	}

	now := s.clock.Now()
	room, _, err := s.store.UpdateRoom(ctx, code, participantID, func(r *model.Room, p *model.Participant) error {
		r.ApplyBulkAdjust(amount, now)
		if p != nil {
			p.AddCount(amount)
		}
		r.Version++
		return nil
	})
	if err != nil {
		return nil, storageError("bulk adjust", err)
	}

	log.Info().Str("room_code", code).Int("amount", amount).Int("total", room.TotalCount).Msg("bulk adjust")
	s.publishUpdate(ctx, room, deviceID)
	return room, nil
}

// Reset zeroes the room and every participant in one write
func (s *RoomService) Reset(ctx context.Context, deviceID, code string) (*model.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.loadOwned(ctx, deviceID, code); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	room, err := s.store.ResetRoom(ctx, code, func(r *model.Room) {
		r.ApplyReset(now)
		r.Version++
	})
	if err != nil {
		return nil, storageError("reset", err)
	}

	log.Info().Str("room_code", code).Msg("room reset")
	s.publishUpdate(ctx, room, deviceID)
	return room, nil
}

// UpdateTarget replaces the target and re-evaluates completion against the
// current total
func (s *RoomService) UpdateTarget(ctx context.Context, deviceID, code string, target int) (*model.Room, error) {
	if target < 0 {
		return nil, fmt.Errorf("%w: target must not be negative", ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.loadOwned(ctx, deviceID, code); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	room, _, err := s.store.UpdateRoom(ctx, code, "", func(r *model.Room, _ *model.Participant) error {
		r.ApplyTarget(target, now)
		r.Version++
		return nil
	})
	if err != nil {
		return nil, storageError("update target", err)
	}

	log.Info().Str("room_code", code).Int("target", target).Bool("completed", room.IsCompleted).Msg("target updated")
	s.publishUpdate(ctx, room, deviceID)
	return room, nil
}

// Leave removes a participant. Contributions already in the total stay.
func (s *RoomService) Leave(ctx context.Context, code, participantID string) error {
	if participantID == "" {
		return fmt.Errorf("%w: participantId is required", ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.load(ctx, code); err != nil {
		return err
	}
	room, removed, err := s.store.RemoveParticipant(ctx, code, participantID, func(r *model.Room) {
		r.Version++
	})
	if err != nil {
		return storageError("remove participant", err)
	}
	if removed {
		log.Info().Str("room_code", code).Str("participant_id", participantID).Msg("participant left")
		s.publishUpdate(ctx, room, "")
	}
	return nil
}

// SendAlert broadcasts a free-text owner message. Delivery is best effort and
// nothing is stored.
func (s *RoomService) SendAlert(ctx context.Context, deviceID, code, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(message) > maxAlertLength {
		return fmt.Errorf("%w: message longer than %d characters", ErrInvalidRequest, maxAlertLength)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.loadOwned(ctx, deviceID, code); err != nil {
		return err
	}
	s.publish(ctx, &model.Event{
		Type:     model.EventAlert,
		RoomCode: code,
		Origin:   deviceID,
		Message:  message,
		SentAt:   s.clock.Now(),
	})
	return nil
}

// load fetches a live room, reclaiming it first if a retention window lapsed
func (s *RoomService) load(ctx context.Context, code string) (*model.Room, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: room code is required", ErrInvalidRequest)
	}
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return nil, storageError("get room", err)
	}

	reason, expired := s.reclaimer.Evaluate(room, s.clock.Now())
	if !expired {
		return room, nil
	}
	if err := s.store.DeleteRoom(ctx, code); err != nil {
		// Lazy reclamation; the next load tries again
		log.Error().Err(err).Str("room_code", code).Msg("failed to reclaim room")
	} else {
		log.Info().Str("room_code", code).Str("reason", string(reason)).Msg("room reclaimed")
		s.publish(ctx, &model.Event{Type: model.EventRoomClosed, RoomCode: code, SentAt: s.clock.Now()})
	}
	return nil, ErrRoomNotFound
}

func (s *RoomService) loadOwned(ctx context.Context, deviceID, code string) (*model.Room, error) {
	room, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if !room.IsOwner(deviceID) {
		return nil, ErrNotOwner
	}
	return room, nil
}

func (s *RoomService) publishUpdate(ctx context.Context, room *model.Room, origin string) {
	s.publish(ctx, &model.Event{
		Type:     model.EventRoomUpdated,
		RoomCode: room.Code,
		Version:  room.Version,
		Origin:   origin,
		SentAt:   s.clock.Now(),
	})
}

func (s *RoomService) publish(ctx context.Context, ev *model.Event) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("room_code", ev.RoomCode).Str("event", string(ev.Type)).Msg("failed to publish room event")
	}
}

// generateRoomCode creates a 6-digit numeric code not held by a live room
func (s *RoomService) generateRoomCode(ctx context.Context) (string, error) {
	for attempts := 0; attempts < 10; attempts++ {
		n, err := rand.Int(rand.Reader, big.NewInt(900000))
		if err != nil {
			return "", err
		}
		code := fmt.Sprintf("%06d", n.Int64()+100000)

		exists, err := s.store.Exists(ctx, code)
		if err != nil {
			return "", storageError("check room code", err)
		}
		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("%w: failed to generate unique room code", ErrStorage)
}

func storageError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrRoomNotFound
	case errors.Is(err, ErrAlreadyCompleted), errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrNotOwner):
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
