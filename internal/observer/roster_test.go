package observer

import (
	"context"
	"masbaha/internal/cache"
	"masbaha/internal/model"
	"masbaha/internal/service"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const engineOwner = "dev_owner"

// engineAPI serves an observer straight from a RoomService
type engineAPI struct {
	svc *service.RoomService

	mu      sync.Mutex
	fetches int
}

func (e *engineAPI) GetRoom(ctx context.Context, code string) (*model.RoomState, error) {
	e.mu.Lock()
	e.fetches++
	e.mu.Unlock()
	return e.svc.Get(ctx, code)
}

func (e *engineAPI) fetchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fetches
}

func (e *engineAPI) Tap(ctx context.Context, code, participantID string) (*model.Room, error) {
	return e.svc.Tap(ctx, code, participantID)
}

func (e *engineAPI) BulkAdjust(ctx context.Context, code, participantID string, amount int) (*model.Room, error) {
	return e.svc.BulkAdjust(ctx, engineOwner, code, participantID, amount)
}

func (e *engineAPI) Reset(ctx context.Context, code string) (*model.Room, error) {
	return e.svc.Reset(ctx, engineOwner, code)
}

func (e *engineAPI) UpdateTarget(ctx context.Context, code string, target int) (*model.Room, error) {
	return e.svc.UpdateTarget(ctx, engineOwner, code, target)
}

type lastEvent struct {
	mu sync.Mutex
	ev *model.Event
}

func (l *lastEvent) Publish(_ context.Context, ev *model.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ev = ev
	return nil
}

func (l *lastEvent) take(t *testing.T) *model.Event {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotNil(t, l.ev, "nothing published")
	ev := l.ev
	l.ev = nil
	return ev
}

func TestObserver_RosterChangesArriveByPush(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	svc := service.NewRoomService(cache.NewRoomCache(client, 0), nil, clockwork.NewFakeClockAt(t0))
	published := &lastEvent{}
	svc.SetBroadcaster(published)
	api := &engineAPI{svc: svc}
	ctx := context.Background()

	room, err := svc.Create(ctx, engineOwner, &model.CreateRoomInput{Name: "Dhikr"})
	require.NoError(t, err)
	a, err := svc.Join(ctx, room.Code, "A")
	require.NoError(t, err)
	b, err := svc.Join(ctx, room.Code, "B")
	require.NoError(t, err)

	o := New(api, nil, Config{Code: room.Code, ParticipantID: a.ID, Clock: clockwork.NewFakeClockAt(t0)})
	require.NoError(t, o.Refresh(ctx))
	require.Len(t, o.State().Participants, 2)
	published.ev = nil

	require.NoError(t, svc.Leave(ctx, room.Code, b.ID))
	before := api.fetchCount()
	o.handleEvent(ctx, published.take(t))
	assert.Equal(t, before+1, api.fetchCount(), "leave must trigger a re-fetch")
	state := o.State()
	require.Len(t, state.Participants, 1)
	assert.Equal(t, a.ID, state.Participants[0].ID)

	c, err := svc.Join(ctx, room.Code, "C")
	require.NoError(t, err)
	o.handleEvent(ctx, published.take(t))
	state = o.State()
	require.Len(t, state.Participants, 2)
	assert.NotNil(t, state.Participant(c.ID))
}
