// Package notify carries room events from the state engine to the hubs that
// hold observer connections, either in process or across server replicas.
package notify

import (
	"context"
	"masbaha/internal/model"

	"github.com/rs/zerolog/log"
)

// Sink receives decoded events; the WebSocket hub is the production sink
type Sink interface {
	Deliver(ev *model.Event)
}

// Local delivers straight into an in-process sink. Used when a single
// server replica owns every observer.
type Local struct {
	sink Sink
}

// NewLocal creates an in-process bus
func NewLocal(sink Sink) *Local {
	return &Local{sink: sink}
}

// Publish implements service.Broadcaster
func (l *Local) Publish(_ context.Context, ev *model.Event) error {
	l.sink.Deliver(ev)
	return nil
}

// Run blocks until ctx is done; there is nothing to consume
func (l *Local) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// deliver decodes a wire envelope and hands it to sink
func deliver(sink Sink, source string, data []byte) {
	ev, err := model.DecodeEvent(data)
	if err != nil {
		log.Warn().Err(err).Str("source", source).Msg("dropping undecodable room event")
		return
	}
	if ev.RoomCode == "" {
		log.Warn().Str("source", source).Msg("dropping room event without room code")
		return
	}
	sink.Deliver(ev)
}
