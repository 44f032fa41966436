package client

import (
	"context"
	"masbaha/internal/cache"
	"masbaha/internal/model"
	"masbaha/internal/notify"
	"masbaha/internal/service"
	"masbaha/internal/transport/rest"
	"masbaha/internal/transport/ws"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := ws.NewHub()
	t.Cleanup(hub.Stop)

	roomSvc := service.NewRoomService(cache.NewRoomCache(rdb, 0), nil, nil)
	roomSvc.SetBroadcaster(notify.NewLocal(hub))
	srv := httptest.NewServer(rest.NewRouter(&rest.Container{
		AuthService: service.NewAuthService("test-secret"),
		RoomService: roomSvc,
		WSHub:       hub,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_RoomLifecycle(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	owner := New(srv.URL)
	dev, err := owner.RegisterDevice(ctx)
	require.NoError(t, err)

	room, err := owner.CreateRoom(ctx, &model.CreateRoomInput{Name: "Dhikr", TargetCount: 2})
	require.NoError(t, err)
	assert.Equal(t, dev.DeviceID, room.OwnerID)

	guest := New(srv.URL)
	p, err := guest.Join(ctx, room.Code, "A")
	require.NoError(t, err)

	room, err = guest.Tap(ctx, room.Code, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, room.TotalCount)

	room, err = owner.BulkAdjust(ctx, room.Code, p.ID, 5)
	require.NoError(t, err)
	assert.True(t, room.IsCompleted)

	room, err = guest.Tap(ctx, room.Code, p.ID)
	assert.True(t, IsAlreadyCompleted(err))
	require.NotNil(t, room)
	assert.Equal(t, 6, room.TotalCount)

	_, err = guest.Reset(ctx, room.Code)
	assert.ErrorIs(t, err, service.ErrNotOwner)

	room, err = owner.UpdateTarget(ctx, room.Code, 100)
	require.NoError(t, err)
	assert.False(t, room.IsCompleted)

	room, err = owner.Reset(ctx, room.Code)
	require.NoError(t, err)
	assert.Zero(t, room.TotalCount)

	require.NoError(t, guest.Leave(ctx, room.Code, p.ID))
	state, err := guest.GetRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Empty(t, state.Participants)

	_, err = guest.GetRoom(ctx, "000000")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClient_Subscribe(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	owner := New(srv.URL)
	_, err := owner.RegisterDevice(ctx)
	require.NoError(t, err)
	room, err := owner.CreateRoom(ctx, &model.CreateRoomInput{Name: "Dhikr"})
	require.NoError(t, err)

	events, err := New(srv.URL).Subscribe(ctx, room.Code)
	require.NoError(t, err)

	// the hub registers asynchronously; keep alerting until one lands
	var got *model.Event
	require.Eventually(t, func() bool {
		_ = owner.SendAlert(ctx, room.Code, "gather")
		select {
		case got = <-events:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.EventAlert, got.Type)
	assert.Equal(t, "gather", got.Message)

	_, err = New(srv.URL).Subscribe(ctx, "000000")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	cancel()
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}
