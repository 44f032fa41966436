package service

import (
	"context"
	"masbaha/internal/model"
)

// Broadcaster fans room events out to observers (avoids import cycle with
// the transport and notify packages)
type Broadcaster interface {
	Publish(ctx context.Context, ev *model.Event) error
}
