package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"masbaha/internal/model"
	"masbaha/internal/repository"
	"time"

	"github.com/redis/go-redis/v9"
)

// roomCache is the Redis room store. The room is one JSON value under
// room:{code}; the roster is a hash under room:{code}:participants keyed by
// participant id.
type roomCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoomCache creates a Redis backed room store
func NewRoomCache(client *redis.Client, ttl time.Duration) repository.RoomStore {
	if ttl <= 0 {
		ttl = repository.DefaultTTL
	}
	return &roomCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *roomCache) key(code string) string {
	return fmt.Sprintf("room:%s", code)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadRoom(ctx context.Context, g stringGetter, key string) (*model.Room, error) {
	data, err := g.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var room model.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", key, err)
	}
	return &room, nil
}

func (c *roomCache) CreateRoom(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(room.Code), data, c.ttl).Err()
}

func (c *roomCache) GetRoom(ctx context.Context, code string) (*model.Room, error) {
	return loadRoom(ctx, c.client, c.key(code))
}

func (c *roomCache) Exists(ctx context.Context, code string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(code)).Result()
	return n > 0, err
}

func (c *roomCache) UpdateRoom(ctx context.Context, code, participantID string, fn repository.RoomMutator) (*model.Room, *model.Participant, error) {
	roomKey, rosterKey := c.key(code), c.participantsKey(code)

	var (
		room        *model.Room
		participant *model.Participant
	)
	txf := func(tx *redis.Tx) error {
		r, err := loadRoom(ctx, tx, roomKey)
		if err != nil {
			return err
		}
		var p *model.Participant
		if participantID != "" {
			if p, err = loadParticipant(ctx, tx, rosterKey, participantID); err != nil {
				return err
			}
		}
		if err := fn(r, p); err != nil {
			return err
		}

		roomData, err := json.Marshal(r)
		if err != nil {
			return err
		}
		var pData []byte
		if p != nil {
			if pData, err = json.Marshal(p); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey, roomData, c.ttl)
			if p != nil {
				pipe.HSet(ctx, rosterKey, p.ID, pData)
			}
			pipe.Expire(ctx, rosterKey, c.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		room, participant = r, p
		return nil
	}

	if err := c.watch(ctx, txf, roomKey, rosterKey); err != nil {
		return nil, nil, err
	}
	return room, participant, nil
}

func (c *roomCache) ResetRoom(ctx context.Context, code string, fn func(room *model.Room)) (*model.Room, error) {
	roomKey, rosterKey := c.key(code), c.participantsKey(code)

	var room *model.Room
	txf := func(tx *redis.Tx) error {
		r, err := loadRoom(ctx, tx, roomKey)
		if err != nil {
			return err
		}
		raw, err := tx.HGetAll(ctx, rosterKey).Result()
		if err != nil {
			return err
		}
		fn(r)

		roomData, err := json.Marshal(r)
		if err != nil {
			return err
		}
		fields := make([]interface{}, 0, len(raw)*2)
		for id, data := range raw {
			var p model.Participant
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				return fmt.Errorf("decode participant %s: %w", id, err)
			}
			p.PersonalCount = 0
			encoded, err := json.Marshal(&p)
			if err != nil {
				return err
			}
			fields = append(fields, id, encoded)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey, roomData, c.ttl)
			if len(fields) > 0 {
				pipe.HSet(ctx, rosterKey, fields...)
				pipe.Expire(ctx, rosterKey, c.ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		room = r
		return nil
	}

	if err := c.watch(ctx, txf, roomKey, rosterKey); err != nil {
		return nil, err
	}
	return room, nil
}

func (c *roomCache) DeleteRoom(ctx context.Context, code string) error {
	return c.client.Del(ctx, c.key(code), c.participantsKey(code)).Err()
}

// watch runs txf as an optimistic transaction, retrying when a watched key
// changed underneath it.
func (c *roomCache) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < repository.MaxCASRetries; attempt++ {
		err := c.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return repository.ErrConflict
}
