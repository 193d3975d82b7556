package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte // Buffered channel of outbound messages.

	initialRooms []string
}

// NewClient creates a client that joins rooms when registered
func NewClient(hub *Hub, conn *websocket.Conn, rooms ...string) *Client {
	return &Client{
		ID:           uuid.NewString(),
		Hub:          hub,
		Conn:         conn,
		Send:         make(chan []byte, sendBufferSize),
		initialRooms: rooms,
	}
}

// controlMessage is sent by clients to change room membership
type controlMessage struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

func validRoom(room string) bool {
	return (strings.HasPrefix(room, "user:") && len(room) > len("user:")) ||
		(strings.HasPrefix(room, "device:") && len(room) > len("device:"))
}

// ReadPump handles subscribe/unsubscribe requests until the connection closes.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn().Err(err).Str("client_id", c.ID).Msg("websocket read error")
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(message, &msg); err != nil || !validRoom(msg.Room) {
			c.Hub.logger.Debug().Str("client_id", c.ID).Bytes("message", message).Msg("ignoring client message")
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.Hub.Subscribe(c, msg.Room)
		case "unsubscribe":
			c.Hub.Unsubscribe(c, msg.Room)
		}
	}
}

// WritePump writes hub messages to the connection, one frame per message.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Warn().Err(err).Str("client_id", c.ID).Msg("websocket write error")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the request and registers the client in the rooms named
// by the userId and deviceId query parameters.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var rooms []string
	if userID := r.URL.Query().Get("userId"); userID != "" {
		rooms = append(rooms, UserRoom(userID))
	}
	if deviceID := r.URL.Query().Get("deviceId"); deviceID != "" {
		rooms = append(rooms, DeviceRoom(deviceID))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h, conn, rooms...)
	if err := h.Register(client); err != nil {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info().Str("client_id", client.ID).Str("remote_addr", conn.RemoteAddr().String()).Msg("websocket connection established")
}
