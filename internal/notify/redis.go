package notify

import (
	"context"
	"fmt"
	"masbaha/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisEventPattern = "room:*:events"

// RedisBus fans events out over Redis pub/sub so every replica's hub sees
// mutations made on any other replica
type RedisBus struct {
	client *redis.Client
	sink   Sink
}

// NewRedisBus creates a Redis pub/sub bus
func NewRedisBus(client *redis.Client, sink Sink) *RedisBus {
	return &RedisBus{client: client, sink: sink}
}

func redisChannel(code string) string {
	return fmt.Sprintf("room:%s:events", code)
}

// Publish implements service.Broadcaster
func (b *RedisBus) Publish(ctx context.Context, ev *model.Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisChannel(ev.RoomCode), data).Err()
}

// Run consumes every room channel until ctx is done
func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, redisEventPattern)
	defer pubsub.Close()

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", redisEventPattern, err)
	}
	log.Info().Str("pattern", redisEventPattern).Msg("listening for room events on redis")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			deliver(b.sink, msg.Channel, []byte(msg.Payload))
		}
	}
}
