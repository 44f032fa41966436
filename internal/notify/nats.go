package notify

import (
	"context"
	"fmt"
	"masbaha/internal/model"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const natsEventSubject = "rooms.*.events"

// NATSConfig holds connection settings for the NATS bus
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS settings
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSBus fans events out over core NATS subjects
type NATSBus struct {
	nc   *nats.Conn
	sink Sink
}

// NewNATSBus connects to NATS
func NewNATSBus(cfg NATSConfig, sink Sink) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name("masbaha"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSBus{nc: nc, sink: sink}, nil
}

func natsSubject(code string) string {
	return fmt.Sprintf("rooms.%s.events", code)
}

// Publish implements service.Broadcaster
func (b *NATSBus) Publish(_ context.Context, ev *model.Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return err
	}
	return b.nc.Publish(natsSubject(ev.RoomCode), data)
}

// Run consumes every room subject until ctx is done, then drains the
// connection
func (b *NATSBus) Run(ctx context.Context) error {
	sub, err := b.nc.Subscribe(natsEventSubject, func(msg *nats.Msg) {
		deliver(b.sink, msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", natsEventSubject, err)
	}
	log.Info().Str("subject", natsEventSubject).Msg("listening for room events on NATS")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Msg("NATS unsubscribe failed")
	}
	return b.nc.Drain()
}
