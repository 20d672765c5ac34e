package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richxcame/dispatch/pkg/eventbus"
	"github.com/richxcame/dispatch/pkg/websocket"
)

// newTestService wires a service to a hub whose loop is not running, so
// broadcasts accumulate in the buffered channel for inspection.
func newTestService(t *testing.T) (*Service, *websocket.Hub) {
	t.Helper()
	hub := websocket.NewHub()
	return NewService(hub, nil), hub
}

func notification(t *testing.T, eventType, key string, payload map[string]interface{}) *eventbus.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &eventbus.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "test",
		Key:       key,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func drain(hub *websocket.Hub) []*websocket.BroadcastMessage {
	var out []*websocket.BroadcastMessage
	for {
		select {
		case msg := <-hub.Broadcast:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestRideOfferGoesToDriverOnly(t *testing.T) {
	svc, hub := newTestService(t)
	driverID := uuid.NewString()
	rideID := uuid.NewString()

	event := notification(t, eventbus.EventTypeRideOffer, driverID, map[string]interface{}{
		"ride_id": rideID, "estimated_fare": 131.25,
	})
	require.NoError(t, svc.handleNotification(context.Background(), event))

	sent := drain(hub)
	require.Len(t, sent, 1)
	assert.Equal(t, "user", sent[0].Target)
	assert.Equal(t, driverID, sent[0].TargetID)
	assert.Equal(t, "ride:offer", sent[0].Message.Type)
	assert.Equal(t, rideID, sent[0].Message.RideID)
}

func TestDriverAssignedGoesToRiderAndRideRoom(t *testing.T) {
	svc, hub := newTestService(t)
	riderID := uuid.NewString()
	rideID := uuid.NewString()

	event := notification(t, eventbus.EventTypeDriverAssigned, riderID, map[string]interface{}{
		"ride_id": rideID, "driver_id": uuid.NewString(),
	})
	require.NoError(t, svc.handleNotification(context.Background(), event))

	sent := drain(hub)
	require.Len(t, sent, 2)
	assert.Equal(t, "user", sent[0].Target)
	assert.Equal(t, riderID, sent[0].TargetID)
	assert.Equal(t, "room", sent[1].Target)
	assert.Equal(t, websocket.RideRoom(rideID), sent[1].TargetID)
	assert.Equal(t, "ride:driver_assigned", sent[1].Message.Type)
}

func TestProgressEventsGoToRideRoomOnly(t *testing.T) {
	tests := []struct {
		eventType   string
		socketEvent string
	}{
		{eventbus.EventTypeRideDriverEnRoute, "ride:driver_en_route"},
		{eventbus.EventTypeRideDriverArrived, "ride:driver_arrived"},
		{eventbus.EventTypeTripStarted, "trip:started"},
		{eventbus.EventTypeTripCompleted, "trip:completed"},
	}
	for _, tt := range tests {
		t.Run(tt.socketEvent, func(t *testing.T) {
			svc, hub := newTestService(t)
			rideID := uuid.NewString()

			event := notification(t, tt.eventType, uuid.NewString(), map[string]interface{}{
				"ride_id": rideID,
			})
			require.NoError(t, svc.handleNotification(context.Background(), event))

			sent := drain(hub)
			require.Len(t, sent, 1)
			assert.Equal(t, "room", sent[0].Target)
			assert.Equal(t, websocket.RideRoom(rideID), sent[0].TargetID)
			assert.Equal(t, tt.socketEvent, sent[0].Message.Type)
		})
	}
}

func TestPaymentEventsGoToUserOnly(t *testing.T) {
	for _, eventType := range []string{eventbus.EventTypePaymentCompleted, eventbus.EventTypePaymentReceived} {
		svc, hub := newTestService(t)
		userID := uuid.NewString()

		event := notification(t, eventType, userID, map[string]interface{}{
			"ride_id": uuid.NewString(), "amount": 131.25,
		})
		require.NoError(t, svc.handleNotification(context.Background(), event))

		sent := drain(hub)
		require.Len(t, sent, 1, eventType)
		assert.Equal(t, "user", sent[0].Target)
		assert.Equal(t, userID, sent[0].TargetID)
	}
}

func TestUnknownEventTypeIsAckedAndDropped(t *testing.T) {
	svc, hub := newTestService(t)

	event := notification(t, "SOMETHING_NEW", uuid.NewString(), map[string]interface{}{"x": 1})
	require.NoError(t, svc.handleNotification(context.Background(), event))

	assert.Empty(t, drain(hub))
}

func TestMalformedPayloadIsAckedAndDropped(t *testing.T) {
	svc, hub := newTestService(t)

	event := &eventbus.Event{
		ID:        uuid.NewString(),
		Type:      eventbus.EventTypeRideOffer,
		Key:       uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Data:      json.RawMessage(`"not an object"`),
	}
	require.NoError(t, svc.handleNotification(context.Background(), event))

	assert.Empty(t, drain(hub))
}

func TestRoomTargetSkippedWithoutRideID(t *testing.T) {
	svc, hub := newTestService(t)
	riderID := uuid.NewString()

	// DRIVER_ASSIGNED routes to both targets, but with no ride_id only the
	// user leg fires.
	event := notification(t, eventbus.EventTypeDriverAssigned, riderID, map[string]interface{}{
		"driver_id": uuid.NewString(),
	})
	require.NoError(t, svc.handleNotification(context.Background(), event))

	sent := drain(hub)
	require.Len(t, sent, 1)
	assert.Equal(t, "user", sent[0].Target)
}
