package ws

import (
	"context"
	"masbaha/internal/cache"
	"masbaha/internal/model"
	"masbaha/internal/service"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConn(h *Hub, code string) *Connection {
	return &Connection{RoomCode: code, Send: make(chan []byte, 4), Hub: h}
}

func receive(t *testing.T, ch <-chan []byte) *model.Event {
	t.Helper()
	select {
	case data, ok := <-ch:
		require.True(t, ok, "channel closed")
		ev, err := model.DecodeEvent(data)
		require.NoError(t, err)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestHub_DeliverScopedToRoom(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	a, b := newConn(h, "111111"), newConn(h, "222222")
	h.Register(a)
	h.Register(b)
	require.Eventually(t, func() bool { return h.Observers("111111") == 1 && h.Observers("222222") == 1 }, time.Second, 10*time.Millisecond)

	h.Deliver(&model.Event{Type: model.EventRoomUpdated, RoomCode: "111111", Version: 4})

	ev := receive(t, a.Send)
	assert.Equal(t, model.EventRoomUpdated, ev.Type)
	assert.Equal(t, int64(4), ev.Version)
	assert.Empty(t, b.Send)
}

func TestHub_RoomClosedDisconnects(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	c := newConn(h, "111111")
	h.Register(c)
	require.Eventually(t, func() bool { return h.Observers("111111") == 1 }, time.Second, 10*time.Millisecond)

	h.Deliver(&model.Event{Type: model.EventRoomClosed, RoomCode: "111111"})

	ev := receive(t, c.Send)
	assert.Equal(t, model.EventRoomClosed, ev.Type)
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Zero(t, h.Observers("111111"))

	// a late unregister from the read pump must not double close
	h.Unregister(c)
}

func TestHub_DropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	c := &Connection{RoomCode: "111111", Send: make(chan []byte, 1), Hub: h}
	h.Register(c)
	require.Eventually(t, func() bool { return h.Observers("111111") == 1 }, time.Second, 10*time.Millisecond)

	for i := 1; i <= 3; i++ {
		h.Deliver(&model.Event{Type: model.EventRoomUpdated, RoomCode: "111111", Version: int64(i)})
	}
	require.Eventually(t, func() bool { return len(c.Send) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), receive(t, c.Send).Version)
}

func TestHandler_RoomWS(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	roomSvc := service.NewRoomService(cache.NewRoomCache(client, 0), nil, nil)
	hub := NewHub()
	defer hub.Stop()
	roomSvc.SetBroadcaster(deliverFunc(hub.Deliver))

	room, err := roomSvc.Create(context.Background(), "dev_owner", &model.CreateRoomInput{Name: "Dhikr"})
	require.NoError(t, err)

	r := mux.NewRouter()
	r.HandleFunc("/v1/ws/rooms/{code}", NewHandler(hub, roomSvc, service.NewAuthService("secret")).RoomWS)
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws/rooms/"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"999999", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+room.Code+"?token=bogus", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+room.Code, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Observers(room.Code) == 1 }, time.Second, 10*time.Millisecond)

	p, err := roomSvc.Join(context.Background(), room.Code, "A")
	require.NoError(t, err)
	_, err = roomSvc.Tap(context.Background(), room.Code, p.ID)
	require.NoError(t, err)

	var versions []int64
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(versions) < 2 {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		ev, err := model.DecodeEvent(data)
		require.NoError(t, err)
		versions = append(versions, ev.Version)
	}
	assert.Equal(t, []int64{1, 2}, versions)
}

type deliverFunc func(*model.Event)

func (f deliverFunc) Publish(_ context.Context, ev *model.Event) error {
	f(ev)
	return nil
}
