// Package observer keeps a local, optimistically predicted copy of one room
// and converges it on the authoritative state by push and by polling.
package observer

import (
	"context"
	"errors"
	"masbaha/internal/model"
	"masbaha/internal/service"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often an observer re-fetches regardless of push
const DefaultPollInterval = 2 * time.Second

// RoomAPI is the authoritative side an observer talks to
type RoomAPI interface {
	GetRoom(ctx context.Context, code string) (*model.RoomState, error)
	Tap(ctx context.Context, code, participantID string) (*model.Room, error)
	BulkAdjust(ctx context.Context, code, participantID string, amount int) (*model.Room, error)
	Reset(ctx context.Context, code string) (*model.Room, error)
	UpdateTarget(ctx context.Context, code string, target int) (*model.Room, error)
}

// EventSource delivers push notifications for a room
type EventSource interface {
	Subscribe(ctx context.Context, code string) (<-chan *model.Event, error)
}

// Config configures an Observer
type Config struct {
	Code          string
	ParticipantID string
	PollInterval  time.Duration
	Clock         clockwork.Clock

	// Callbacks run outside the observer's lock
	OnChange   func(state *model.RoomState)
	OnComplete func(room *model.Room)
	OnAlert    func(ev *model.Event)
	OnClosed   func()
}

// Observer holds the predicted state of one room. Any authoritative fetch
// at or above the last known version overwrites the prediction.
type Observer struct {
	api    RoomAPI
	events EventSource
	cfg    Config

	mu            sync.Mutex
	state         *model.RoomState
	lastVersion   int64
	lastCompleted bool
	seeded        bool
	closed        bool
}

// New creates an observer. events may be nil, in which case only polling
// keeps the state fresh.
func New(api RoomAPI, events EventSource, cfg Config) *Observer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Observer{api: api, events: events, cfg: cfg}
}

// State returns a copy of the current (possibly predicted) state
func (o *Observer) State() *model.RoomState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Closed reports whether the room has gone away
func (o *Observer) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Run refreshes once, then keeps refreshing on every push notification and
// every poll tick until ctx is done or the room is closed.
func (o *Observer) Run(ctx context.Context) error {
	if err := o.Refresh(ctx); err != nil && !errors.Is(err, service.ErrRoomNotFound) {
		log.Warn().Err(err).Str("room_code", o.cfg.Code).Msg("initial refresh failed")
	}
	if o.Closed() {
		return nil
	}

	var events <-chan *model.Event
	if o.events != nil {
		ch, err := o.events.Subscribe(ctx, o.cfg.Code)
		if err != nil {
			log.Warn().Err(err).Str("room_code", o.cfg.Code).Msg("push unavailable, polling only")
		} else {
			events = ch
		}
	}

	ticker := o.cfg.Clock.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.Chan():
			o.refreshLogged(ctx)

		case ev, ok := <-events:
			if !ok {
				events = nil
				log.Debug().Str("room_code", o.cfg.Code).Msg("push stream closed, polling only")
				continue
			}
			o.handleEvent(ctx, ev)
		}

		if o.Closed() {
			return nil
		}
	}
}

func (o *Observer) handleEvent(ctx context.Context, ev *model.Event) {
	switch ev.Type {
	case model.EventRoomUpdated:
		o.mu.Lock()
		stale := o.seeded && ev.Version > 0 && ev.Version <= o.lastVersion
		o.mu.Unlock()
		if !stale {
			o.refreshLogged(ctx)
		}
	case model.EventAlert:
		if o.cfg.OnAlert != nil {
			o.cfg.OnAlert(ev)
		}
	case model.EventRoomClosed:
		o.markClosed()
	}
}

func (o *Observer) refreshLogged(ctx context.Context) {
	if err := o.Refresh(ctx); err != nil && !errors.Is(err, service.ErrRoomNotFound) {
		log.Warn().Err(err).Str("room_code", o.cfg.Code).Msg("refresh failed")
	}
}

// Refresh fetches the authoritative state and applies it
func (o *Observer) Refresh(ctx context.Context) error {
	state, err := o.api.GetRoom(ctx, o.cfg.Code)
	if errors.Is(err, service.ErrRoomNotFound) {
		o.markClosed()
		return err
	}
	if err != nil {
		return err
	}
	o.applyState(state)
	return nil
}

// applyState overwrites the prediction when state is not older than what
// was last seen. A changed room id means the code was reused.
func (o *Observer) applyState(state *model.RoomState) {
	if state == nil || state.Room == nil {
		return
	}

	o.mu.Lock()
	if o.seeded && state.Room.ID == o.state.Room.ID && state.Room.Version < o.lastVersion {
		o.mu.Unlock()
		return
	}
	replaced := o.seeded && state.Room.ID != o.state.Room.ID
	o.state = state.Clone()
	o.lastVersion = state.Room.Version
	completed := o.observeCompletion(state.Room, replaced)
	snapshot := o.state.Clone()
	o.mu.Unlock()

	o.emit(snapshot, completed)
}

// applyRoom folds an authoritative mutation result into the prediction,
// keeping the predicted roster until the next full refresh
func (o *Observer) applyRoom(room *model.Room) {
	if room == nil {
		return
	}

	o.mu.Lock()
	if o.state == nil || (room.ID == o.state.Room.ID && room.Version < o.lastVersion) {
		o.mu.Unlock()
		return
	}
	o.state.Room = room.Clone()
	o.lastVersion = room.Version
	completed := o.observeCompletion(room, false)
	snapshot := o.state.Clone()
	o.mu.Unlock()

	o.emit(snapshot, completed)
}

// observeCompletion tracks the authoritative completed flag and reports a
// false->true edge. The first observation only seeds the flag, so joining
// a completed room never fires. Must be called with mu held.
func (o *Observer) observeCompletion(room *model.Room, replaced bool) bool {
	fire := o.seeded && !replaced && !o.lastCompleted && room.IsCompleted
	o.lastCompleted = room.IsCompleted
	o.seeded = true
	return fire
}

func (o *Observer) emit(snapshot *model.RoomState, completed bool) {
	if o.cfg.OnChange != nil {
		o.cfg.OnChange(snapshot)
	}
	if completed && o.cfg.OnComplete != nil {
		o.cfg.OnComplete(snapshot.Room)
	}
}

func (o *Observer) markClosed() {
	o.mu.Lock()
	already := o.closed
	o.closed = true
	o.mu.Unlock()
	if !already && o.cfg.OnClosed != nil {
		o.cfg.OnClosed()
	}
}
