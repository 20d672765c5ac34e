package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	return hub
}

func register(t *testing.T, hub *Hub, id, role string) *Client {
	t.Helper()
	client := NewClient(id, nil, hub, role)
	hub.Register <- client
	require.Eventually(t, func() bool {
		_, ok := hub.GetClient(id)
		return ok
	}, time.Second, 5*time.Millisecond)
	return client
}

func receive(t *testing.T, client *Client) *Message {
	t.Helper()
	select {
	case msg := <-client.Send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("client %s received no message", client.ID)
		return nil
	}
}

func TestRegisterJoinsDefaultRooms(t *testing.T) {
	hub := startHub(t)
	client := register(t, hub, "rider-1", "rider")

	assert.True(t, client.InRoom(UserRoom("rider-1")))
	assert.True(t, client.InRoom(TypeRoom("rider")))
	assert.Equal(t, 1, hub.GetClientCount())
}

func TestSendToUserDeliversToThatClientOnly(t *testing.T) {
	hub := startHub(t)
	rider := register(t, hub, "rider-1", "rider")
	driver := register(t, hub, "driver-1", "driver")

	hub.SendToUser("rider-1", &Message{Type: "driver:assigned"})

	msg := receive(t, rider)
	assert.Equal(t, "driver:assigned", msg.Type)
	assert.Empty(t, driver.Send)
}

func TestSendToRoomFansOutToMembers(t *testing.T) {
	hub := startHub(t)
	rider := register(t, hub, "rider-1", "rider")
	driver := register(t, hub, "driver-1", "driver")
	outsider := register(t, hub, "rider-2", "rider")

	room := RideRoom("ride-9")
	hub.JoinRoom("rider-1", room)
	hub.JoinRoom("driver-1", room)

	hub.SendToRoom(room, &Message{Type: "trip:started", RideID: "ride-9"})

	assert.Equal(t, "trip:started", receive(t, rider).Type)
	assert.Equal(t, "trip:started", receive(t, driver).Type)
	assert.Empty(t, outsider.Send)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	hub := startHub(t)
	rider := register(t, hub, "rider-1", "rider")

	room := RideRoom("ride-9")
	hub.JoinRoom("rider-1", room)
	hub.LeaveRoom("rider-1", room)
	require.Eventually(t, func() bool { return !rider.InRoom(room) }, time.Second, 5*time.Millisecond)

	hub.SendToRoom(room, &Message{Type: "trip:started"})

	// Give the hub loop a beat to process the broadcast.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rider.Send)
}

func TestDuplicateRegistrationReplacesClient(t *testing.T) {
	hub := startHub(t)
	first := register(t, hub, "rider-1", "rider")

	second := NewClient("rider-1", nil, hub, "rider")
	hub.Register <- second
	require.Eventually(t, func() bool {
		current, ok := hub.GetClient("rider-1")
		return ok && current == second
	}, time.Second, 5*time.Millisecond)

	// The stale connection's channel is closed so its write pump exits.
	_, open := <-first.Send
	assert.False(t, open)
	assert.Equal(t, 1, hub.GetClientCount())
}

func TestUnregisterRemovesClientAndEmptyRooms(t *testing.T) {
	hub := startHub(t)
	client := register(t, hub, "rider-1", "rider")

	hub.Unregister <- client
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, hub.GetRoomCount())
}

func TestSendToAll(t *testing.T) {
	hub := startHub(t)
	rider := register(t, hub, "rider-1", "rider")
	driver := register(t, hub, "driver-1", "driver")

	hub.SendToAll(&Message{Type: "announcement"})

	assert.Equal(t, "announcement", receive(t, rider).Type)
	assert.Equal(t, "announcement", receive(t, driver).Type)
}

func TestHandleMessageRoutesByType(t *testing.T) {
	hub := startHub(t)
	client := register(t, hub, "rider-1", "rider")

	handled := make(chan *Message, 1)
	hub.RegisterHandler("ping", func(c *Client, msg *Message) {
		handled <- msg
	})

	hub.HandleMessage(client, &Message{Type: "ping"})

	select {
	case msg := <-handled:
		assert.Equal(t, "ping", msg.Type)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	// Unknown types are dropped without panicking.
	hub.HandleMessage(client, &Message{Type: "unknown"})
}
