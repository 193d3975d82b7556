package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gwebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
	}
	return Message{}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("client %s got unexpected message %s", c.ID, raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_EmitReachesUnionOfRoomsOnce(t *testing.T) {
	hub := runHub(t)

	both := NewClient(hub, nil, UserRoom("u1"), DeviceRoom("d1"))
	userOnly := NewClient(hub, nil, UserRoom("u1"))
	deviceOnly := NewClient(hub, nil, DeviceRoom("d1"))
	other := NewClient(hub, nil, UserRoom("u2"), DeviceRoom("d2"))
	for _, c := range []*Client{both, userOnly, deviceOnly, other} {
		require.NoError(t, hub.Register(c))
	}

	require.NoError(t, hub.Emit("u1", "d1", map[string]interface{}{"temperature": 23.5}))

	for _, c := range []*Client{both, userOnly, deviceOnly} {
		msg := receive(t, c)
		assert.Equal(t, "sensor_data", msg.Type)
		assert.Equal(t, "u1", msg.UserID)
		assert.Equal(t, "d1", msg.DeviceID)
		assert.Equal(t, map[string]interface{}{"temperature": 23.5}, msg.Payload)
	}
	assertNothing(t, both)
	assertNothing(t, other)
}

func TestHub_SubscribeAndUnsubscribe(t *testing.T) {
	hub := runHub(t)

	c := NewClient(hub, nil)
	require.NoError(t, hub.Register(c))

	hub.Subscribe(c, DeviceRoom("d7"))
	require.NoError(t, hub.Emit("u9", "d7", "x"))
	assert.Equal(t, "d7", receive(t, c).DeviceID)

	hub.Unsubscribe(c, DeviceRoom("d7"))
	require.Eventually(t, func() bool { return hub.RoomSize(DeviceRoom("d7")) == 0 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Emit("u9", "d7", "x"))
	assertNothing(t, c)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := runHub(t)

	c := NewClient(hub, nil, UserRoom("u1"))
	require.NoError(t, hub.Register(c))
	hub.Unregister(c)

	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.RoomSize(UserRoom("u1")))
}

func TestHub_EmitAfterStop(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// the emit buffer may still accept a message, so fill it first
	var err error
	for i := 0; i <= cap(hub.emit); i++ {
		if err = hub.Emit("u1", "d1", nil); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrHubStopped)
	assert.ErrorIs(t, hub.Register(NewClient(hub, nil)), ErrHubStopped)
}

func TestServeWS_DeliversFramesAndHonoursSubscribe(t *testing.T) {
	hub := runHub(t)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=u1"
	conn, _, err := gwebsocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.RoomSize(UserRoom("u1")) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Room: DeviceRoom("d5")}))
	require.Eventually(t, func() bool { return hub.RoomSize(DeviceRoom("d5")) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Emit("u1", "d5", map[string]interface{}{"ok": true}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "sensor_data", msg.Type)
	assert.Equal(t, "d5", msg.DeviceID)
}
