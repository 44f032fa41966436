package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"masbaha/internal/model"

	"github.com/redis/go-redis/v9"
)

func (c *roomCache) participantsKey(code string) string {
	return fmt.Sprintf("room:%s:participants", code)
}

type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

// loadParticipant returns nil without error when the participant is absent
func loadParticipant(ctx context.Context, g hashGetter, key, id string) (*model.Participant, error) {
	data, err := g.HGet(ctx, key, id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p model.Participant
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode participant %s: %w", id, err)
	}
	return &p, nil
}

// AddParticipant writes p and applies fn to its room in one transaction
func (c *roomCache) AddParticipant(ctx context.Context, p *model.Participant, fn func(room *model.Room)) (*model.Room, error) {
	roomKey, rosterKey := c.key(p.RoomCode), c.participantsKey(p.RoomCode)
	pData, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	var room *model.Room
	txf := func(tx *redis.Tx) error {
		r, err := loadRoom(ctx, tx, roomKey)
		if err != nil {
			return err
		}
		if fn != nil {
			fn(r)
		}
		roomData, err := json.Marshal(r)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey, roomData, c.ttl)
			pipe.HSet(ctx, rosterKey, p.ID, pData)
			pipe.Expire(ctx, rosterKey, c.ttl)
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

// RemoveParticipant deletes a roster entry and, only when it existed,
// applies fn to the room in the same transaction
func (c *roomCache) RemoveParticipant(ctx context.Context, code, participantID string, fn func(room *model.Room)) (*model.Room, bool, error) {
	roomKey, rosterKey := c.key(code), c.participantsKey(code)

	var (
		room    *model.Room
		removed bool
	)
	txf := func(tx *redis.Tx) error {
		r, err := loadRoom(ctx, tx, roomKey)
		if err != nil {
			return err
		}
		exists, err := tx.HExists(ctx, rosterKey, participantID).Result()
		if err != nil {
			return err
		}
		if !exists {
			room, removed = r, false
			return nil
		}
		if fn != nil {
			fn(r)
		}
		roomData, err := json.Marshal(r)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey, roomData, c.ttl)
			pipe.HDel(ctx, rosterKey, participantID)
			return nil
		})
		if err != nil {
			return err
		}
		room, removed = r, true
		return nil
	}

	if err := c.watch(ctx, txf, roomKey, rosterKey); err != nil {
		return nil, false, err
	}
	return room, removed, nil
}

// ListParticipants returns the roster ordered by personal count, highest first
func (c *roomCache) ListParticipants(ctx context.Context, code string) ([]*model.Participant, error) {
	data, err := c.client.HGetAll(ctx, c.participantsKey(code)).Result()
	if err != nil {
		return nil, err
	}
	participants := make([]*model.Participant, 0, len(data))
	for _, jsonStr := range data {
		var p model.Participant
		if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
			continue
		}
		participants = append(participants, &p)
	}
	model.SortParticipants(participants)
	return participants, nil
}
