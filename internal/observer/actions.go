package observer

import (
	"context"
	"errors"
	"fmt"
	"masbaha/internal/model"
	"masbaha/internal/service"
)

var errNotSeeded = errors.New("observer has no room state yet")

// predict applies fn to the local state and publishes the prediction before
// the authoritative call is made. It returns false when fn declined.
func (o *Observer) predict(fn func(state *model.RoomState) bool) (bool, error) {
	o.mu.Lock()
	if o.state == nil {
		o.mu.Unlock()
		return false, errNotSeeded
	}
	if !fn(o.state) {
		o.mu.Unlock()
		return false, nil
	}
	model.SortParticipants(o.state.Participants)
	snapshot := o.state.Clone()
	o.mu.Unlock()

	if o.cfg.OnChange != nil {
		o.cfg.OnChange(snapshot)
	}
	return true, nil
}

func (o *Observer) commit(room *model.Room, err error) (*model.Room, error) {
	if room != nil {
		o.applyRoom(room)
	}
	return room, err
}

// Tap predicts a tap locally, then commits it. A completed room declines
// without a round trip.
func (o *Observer) Tap(ctx context.Context) (*model.Room, error) {
	now := o.cfg.Clock.Now()
	applied, err := o.predict(func(s *model.RoomState) bool {
		if !s.Room.ApplyTap(now) {
			return false
		}
		if p := s.Participant(o.cfg.ParticipantID); p != nil {
			p.AddCount(1)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return o.State().Room, service.ErrAlreadyCompleted
	}
	return o.commit(o.api.Tap(ctx, o.cfg.Code, o.cfg.ParticipantID))
}

// BulkAdjust predicts and commits a signed adjustment for a participant
func (o *Observer) BulkAdjust(ctx context.Context, participantID string, amount int) (*model.Room, error) {
	if amount == 0 {
		return o.State().Room, nil
	}
	now := o.cfg.Clock.Now()
	if _, err := o.predict(func(s *model.RoomState) bool {
		s.Room.ApplyBulkAdjust(amount, now)
		if p := s.Participant(participantID); p != nil {
			p.AddCount(amount)
		}
		return true
	}); err != nil {
		return nil, err
	}
	return o.commit(o.api.BulkAdjust(ctx, o.cfg.Code, participantID, amount))
}

// Reset predicts and commits a reset
func (o *Observer) Reset(ctx context.Context) (*model.Room, error) {
	now := o.cfg.Clock.Now()
	if _, err := o.predict(func(s *model.RoomState) bool {
		s.Room.ApplyReset(now)
		for _, p := range s.Participants {
			p.PersonalCount = 0
		}
		return true
	}); err != nil {
		return nil, err
	}
	return o.commit(o.api.Reset(ctx, o.cfg.Code))
}

// UpdateTarget predicts and commits a target change
func (o *Observer) UpdateTarget(ctx context.Context, target int) (*model.Room, error) {
	if target < 0 {
		return nil, fmt.Errorf("%w: target must not be negative", service.ErrInvalidRequest)
	}
	now := o.cfg.Clock.Now()
	if _, err := o.predict(func(s *model.RoomState) bool {
		s.Room.ApplyTarget(target, now)
		return true
	}); err != nil {
		return nil, err
	}
	return o.commit(o.api.UpdateTarget(ctx, o.cfg.Code, target))
}
