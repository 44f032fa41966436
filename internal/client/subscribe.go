package client

import (
	"context"
	"fmt"
	"masbaha/internal/model"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Subscribe opens the room's event stream. The channel closes when the
// connection drops, the room is closed or ctx is done.
func (c *Client) Subscribe(ctx context.Context, code string) (<-chan *model.Event, error) {
	u, err := url.Parse(c.baseURL + "/v1/ws/rooms/" + url.PathEscape(code))
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("websocket dial: %v", err)}
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	events := make(chan *model.Event, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Str("room_code", code).Msg("event stream ended")
				}
				return
			}
			ev, err := model.DecodeEvent(data)
			if err != nil {
				log.Warn().Err(err).Str("room_code", code).Msg("dropping undecodable event")
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
