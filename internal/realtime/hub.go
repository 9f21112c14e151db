package realtime

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"arena/pkg/utils/logger"
)

// sendBuffer is the per-client outbound queue. A client that cannot keep
// up is dropped rather than allowed to stall the broadcast.
const sendBuffer = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect from the contest page origin; the HTTP
	// layer in front of the hub enforces access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub is a room-per-contest broadcast fan-out.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

// ServeWS upgrades the request and subscribes the connection to a room.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, room string) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	client := &Client{
		hub:  h,
		room: room,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.register(client)
	go client.writePump()
	go client.readPump()
	return client, nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.room]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.room] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.room]
	if !ok {
		return
	}
	if _, subscribed := room[c]; subscribed {
		delete(room, c)
		close(c.send)
	}
	if len(room) == 0 {
		delete(h.rooms, c.room)
	}
}

// Broadcast pushes one event to every subscriber of a room. Subscribers
// with a full send queue are dropped.
func (h *Hub) Broadcast(ctx context.Context, room string, event Event) {
	message, err := event.encode()
	if err != nil {
		logger.Error(ctx, "encode broadcast event failed",
			zap.String("event", event.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	subscribers, ok := h.rooms[room]
	if !ok {
		return
	}
	for c := range subscribers {
		select {
		case c.send <- message:
		default:
			delete(subscribers, c)
			close(c.send)
			logger.Warn(ctx, "dropping slow websocket subscriber",
				zap.String("room", room))
		}
	}
	if len(subscribers) == 0 {
		delete(h.rooms, room)
	}
}

// Send delivers one event to a single client, used for the initial
// snapshot on join.
func (h *Hub) Send(ctx context.Context, c *Client, event Event) {
	message, err := event.encode()
	if err != nil {
		logger.Error(ctx, "encode event failed",
			zap.String("event", event.Type), zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.room]
	if !ok {
		return
	}
	if _, subscribed := room[c]; !subscribed {
		return
	}
	select {
	case c.send <- message:
	default:
		delete(room, c)
		close(c.send)
	}
}

// CloseRoom broadcasts a final event and disconnects every subscriber,
// used when a contest finishes and leaves memory.
func (h *Hub) CloseRoom(ctx context.Context, room string, event Event) {
	h.Broadcast(ctx, room, event)

	h.mu.Lock()
	subscribers := h.rooms[room]
	delete(h.rooms, room)
	h.mu.Unlock()

	for c := range subscribers {
		close(c.send)
	}
}

// RoomSize reports the number of subscribers in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
