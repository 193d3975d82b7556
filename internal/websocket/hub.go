// Package websocket fans structured readings out to dashboard clients
// subscribed to user and device rooms.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const emitTimeout = 5 * time.Second

var (
	ErrHubStopped  = errors.New("websocket hub stopped")
	ErrEmitTimeout = errors.New("websocket emit timed out")
)

// UserRoom and DeviceRoom name the rooms a reading is fanned out to
func UserRoom(userID string) string     { return "user:" + userID }
func DeviceRoom(deviceID string) string { return "device:" + deviceID }

type subscription struct {
	client *Client
	room   string
	join   bool
}

type emission struct {
	rooms   []string
	message []byte
}

// Hub maintains the set of active clients, their room memberships and
// delivers room messages.
type Hub struct {
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	emit       chan emission
	done       chan struct{}

	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		emit:       make(chan emission, 64),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "websocket_hub").Logger(),
	}
}

// Run processes hub events until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			h.logger.Info().Msg("hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			for _, room := range client.initialRooms {
				h.join(client, room)
			}
			h.mu.Unlock()
			h.logger.Debug().Str("client_id", client.ID).Strs("rooms", client.initialRooms).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Debug().Str("client_id", client.ID).Msg("client unregistered")
			}
			h.mu.Unlock()

		case sub := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[sub.client]; ok {
				if sub.join {
					h.join(sub.client, sub.room)
				} else {
					h.leave(sub.client, sub.room)
				}
			}
			h.mu.Unlock()

		case e := <-h.emit:
			h.deliver(e)
		}
	}
}

// deliver sends the message once to every client in the union of the rooms
func (h *Hub) deliver(e emission) {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make(map[*Client]struct{})
	for _, room := range e.rooms {
		for client := range h.rooms[room] {
			targets[client] = struct{}{}
		}
	}
	for client := range targets {
		select {
		case client.Send <- e.message:
		default:
			h.logger.Warn().Str("client_id", client.ID).Msg("client send buffer full, removing")
			h.drop(client)
		}
	}
}

// join, leave and drop require h.mu held for writing
func (h *Hub) join(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) drop(c *Client) {
	for room := range h.rooms {
		h.leave(c, room)
	}
	delete(h.clients, c)
	close(c.Send)
}

// Register adds a client and joins it to its initial rooms
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) Subscribe(c *Client, room string) {
	h.sendSubscription(subscription{client: c, room: room, join: true})
}

func (h *Hub) Unsubscribe(c *Client, room string) {
	h.sendSubscription(subscription{client: c, room: room, join: false})
}

func (h *Hub) sendSubscription(s subscription) {
	select {
	case h.subscribe <- s:
	case <-h.done:
	}
}

// Message is the frame written to subscribers for each reading
type Message struct {
	Type     string      `json:"type"`
	UserID   string      `json:"userId"`
	DeviceID string      `json:"deviceId"`
	Payload  interface{} `json:"payload"`
}

// Emit delivers payload to every client subscribed to the user's room or the
// device's room. A client in both rooms receives it once.
func (h *Hub) Emit(userID, deviceID string, payload interface{}) error {
	message, err := json.Marshal(Message{
		Type:     "sensor_data",
		UserID:   userID,
		DeviceID: deviceID,
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("marshal sensor_data message: %w", err)
	}

	e := emission{
		rooms:   []string{UserRoom(userID), DeviceRoom(deviceID)},
		message: message,
	}
	select {
	case h.emit <- e:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-time.After(emitTimeout):
		return ErrEmitTimeout
	}
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients in a room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
