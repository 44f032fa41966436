package cache

import (
	"context"
	"errors"
	"masbaha/internal/model"
	"masbaha/internal/repository"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (repository.RoomStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRoomCache(client, time.Hour), mr
}

func seedRoom(t *testing.T, store repository.RoomStore, code string, target int) *model.Room {
	t.Helper()
	room := &model.Room{
		ID:          "r-" + code,
		Code:        code,
		Name:        "Friday circle",
		Phrase:      model.DefaultPhrase,
		TargetCount: target,
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		OwnerID:     "dev-owner",
	}
	require.NoError(t, store.CreateRoom(context.Background(), room))
	return room
}

func TestRoomCache_CreateAndGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, "111111", 33)

	got, err := store.GetRoom(ctx, "111111")
	require.NoError(t, err)
	assert.Equal(t, "Friday circle", got.Name)
	assert.Equal(t, 33, got.TargetCount)
	assert.Nil(t, got.LastActive)
	assert.Equal(t, time.Hour, mr.TTL("room:111111"))

	ok, err := store.Exists(ctx, "111111")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.GetRoom(ctx, "999999")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRoomCache_UpdateRoomWithParticipant(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, "222222", 0)
	addParticipant(t, store, &model.Participant{ID: "p1", RoomCode: "222222", Name: "Amina"})

	room, p, err := store.UpdateRoom(ctx, "222222", "p1", func(r *model.Room, p *model.Participant) error {
		r.TotalCount++
		p.AddCount(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, room.TotalCount)
	require.NotNil(t, p)
	assert.Equal(t, 1, p.PersonalCount)

	roster, err := store.ListParticipants(ctx, "222222")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, 1, roster[0].PersonalCount)
	assert.Equal(t, time.Hour, mr.TTL("room:222222:participants"))
}

func TestRoomCache_UpdateRoomMissingParticipant(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, "333333", 0)

	room, p, err := store.UpdateRoom(ctx, "333333", "ghost", func(r *model.Room, p *model.Participant) error {
		assert.Nil(t, p)
		r.TotalCount++
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 1, room.TotalCount)
}

func TestRoomCache_UpdateRoomAbort(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, "444444", 0)
	errStop := errors.New("stop")

	_, _, err := store.UpdateRoom(ctx, "444444", "", func(r *model.Room, _ *model.Participant) error {
		r.TotalCount = 99
		return errStop
	})
	assert.ErrorIs(t, err, errStop)

	got, err := store.GetRoom(ctx, "444444")
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalCount)

	_, _, err = store.UpdateRoom(ctx, "nope", "", func(*model.Room, *model.Participant) error { return nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRoomCache_ConcurrentUpdatesDoNotLoseIncrements(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, "555555", 0)
	addParticipant(t, store, &model.Participant{ID: "p1", RoomCode: "555555"})

	const workers, taps = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < taps; i++ {
				_, _, err := store.UpdateRoom(ctx, "555555", "p1", func(r *model.Room, p *model.Participant) error {
					r.TotalCount++
					p.AddCount(1)
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, err := store.GetRoom(ctx, "555555")
	require.NoError(t, err)
	assert.Equal(t, workers*taps, got.TotalCount)
	roster, err := store.ListParticipants(ctx, "555555")
	require.NoError(t, err)
	assert.Equal(t, workers*taps, roster[0].PersonalCount)
}

func TestRoomCache_ResetRoom(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, "666666", 0)
	for _, id := range []string{"a", "b", "c"} {
		addParticipant(t, store, &model.Participant{ID: id, RoomCode: "666666", PersonalCount: 7})
	}

	room, err := store.ResetRoom(ctx, "666666", func(r *model.Room) {
		r.TotalCount = 0
		r.Version++
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), room.Version)

	roster, err := store.ListParticipants(ctx, "666666")
	require.NoError(t, err)
	require.Len(t, roster, 3)
	for _, p := range roster {
		assert.Zero(t, p.PersonalCount, p.ID)
	}
}

func TestRoomCache_ResetRoomRejectsCorruptRoster(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, "676767", 0)
	addParticipant(t, store, &model.Participant{ID: "a", RoomCode: "676767", PersonalCount: 4})
	mr.HSet("room:676767:participants", "b", "{broken")

	_, err := store.ResetRoom(ctx, "676767", func(r *model.Room) {
		r.Version++
	})
	require.Error(t, err)

	got, err := store.GetRoom(ctx, "676767")
	require.NoError(t, err)
	assert.Zero(t, got.Version)
	roster, err := store.ListParticipants(ctx, "676767")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, 4, roster[0].PersonalCount)
}

func TestRoomCache_AddParticipantBumpsRoomTogether(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, "717171", 0)

	room, err := store.AddParticipant(ctx, &model.Participant{ID: "p1", RoomCode: "717171", Name: "Amina"}, func(r *model.Room) {
		r.Version++
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), room.Version)

	got, err := store.GetRoom(ctx, "717171")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	roster, err := store.ListParticipants(ctx, "717171")
	require.NoError(t, err)
	require.Len(t, roster, 1)

	_, err = store.AddParticipant(ctx, &model.Participant{ID: "p2", RoomCode: "000000"}, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRoomCache_RemoveAndDelete(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	seedRoom(t, store, "777777", 0)
	addParticipant(t, store, &model.Participant{ID: "p1", RoomCode: "777777"})
	bump := func(r *model.Room) { r.Version++ }

	room, removed, err := store.RemoveParticipant(ctx, "777777", "p1", bump)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, int64(1), room.Version)

	room, removed, err = store.RemoveParticipant(ctx, "777777", "p1", bump)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, int64(1), room.Version, "absent participant leaves the room untouched")

	addParticipant(t, store, &model.Participant{ID: "p2", RoomCode: "777777"})
	require.NoError(t, store.DeleteRoom(ctx, "777777"))
	assert.False(t, mr.Exists("room:777777"))
	assert.False(t, mr.Exists("room:777777:participants"))
}

func addParticipant(t *testing.T, store repository.RoomStore, p *model.Participant) {
	t.Helper()
	_, err := store.AddParticipant(context.Background(), p, nil)
	require.NoError(t, err)
}
