package ws

import (
	"masbaha/internal/model"
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub manages WebSocket observer connections per room
type Hub struct {
	// roomCode -> connections
	rooms map[string]map[*Connection]struct{}

	mu sync.RWMutex

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	stopOnce   sync.Once
}

// Connection represents a WebSocket connection observing one room
type Connection struct {
	RoomCode string
	DeviceID string // Empty for anonymous observers
	Send     chan []byte
	Hub      *Hub
}

// BroadcastMessage is an encoded envelope bound for one room. Close drops
// every observer of the room after delivery.
type BroadcastMessage struct {
	RoomCode string
	Data     []byte
	Close    bool
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		rooms:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for code := range h.rooms {
				h.closeRoom(code)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.rooms[conn.RoomCode] == nil {
				h.rooms[conn.RoomCode] = make(map[*Connection]struct{})
			}
			h.rooms[conn.RoomCode][conn] = struct{}{}
			h.mu.Unlock()
			log.Debug().Str("room_code", conn.RoomCode).Str("device_id", conn.DeviceID).Msg("observer connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.rooms[conn.RoomCode]; ok {
				if _, ok := conns[conn]; ok {
					delete(conns, conn)
					close(conn.Send)
					if len(conns) == 0 {
						delete(h.rooms, conn.RoomCode)
					}
					log.Debug().Str("room_code", conn.RoomCode).Msg("observer disconnected")
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.rooms[msg.RoomCode] {
				select {
				case conn.Send <- msg.Data:
				default:
					// Drop message if buffer full; the observer's poll catches up
				}
			}
			if msg.Close {
				h.closeRoom(msg.RoomCode)
			}
			h.mu.Unlock()
		}
	}
}

// closeRoom must be called with mu held
func (h *Hub) closeRoom(code string) {
	for conn := range h.rooms[code] {
		close(conn.Send)
	}
	delete(h.rooms, code)
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Deliver encodes ev and queues it for every observer of its room. A
// room_closed event disconnects the room's observers once sent.
func (h *Hub) Deliver(ev *model.Event) {
	data, err := ev.Marshal()
	if err != nil {
		log.Error().Err(err).Str("room_code", ev.RoomCode).Msg("failed to encode room event")
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{
		RoomCode: ev.RoomCode,
		Data:     data,
		Close:    ev.Type == model.EventRoomClosed,
	}:
	case <-h.done:
	}
}

// Observers returns the number of connections watching a room
func (h *Hub) Observers(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

// Stop disconnects every observer and stops the hub loop
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
