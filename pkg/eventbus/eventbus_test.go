package eventbus

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectComposition(t *testing.T) {
	tenantID := uuid.New()
	assert.Equal(t, "location-updates."+tenantID.String(), Subject(TopicLocationUpdates, tenantID.String()))
	assert.Equal(t, "notifications.abc", Subject(TopicNotifications, "abc"))
}

func TestSubjectSanitizesUnsafeTokens(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"a.b", "ride-events.a_b"},
		{"a*b", "ride-events.a_b"},
		{"a>b", "ride-events.a_b"},
		{"a b", "ride-events.a_b"},
		{"a\tb", "ride-events.a_b"},
		{"plain", "ride-events.plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Subject(TopicRideEvents, tt.key))
	}
}

func TestNewEventEnvelope(t *testing.T) {
	event, err := NewEvent(EventTypeDriverAssigned, "dispatch", DriverAssignedData{
		RideID: uuid.New(),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventTypeDriverAssigned, event.Type)
	assert.Equal(t, "dispatch", event.Source)
	assert.False(t, event.Timestamp.IsZero())
	assert.Empty(t, event.Key, "key is stamped at publish time")
}

func TestEventDecodeRoundTrip(t *testing.T) {
	rideID := uuid.New()
	driverID := uuid.New()

	event, err := NewEvent(EventTypeDriverLocation, "simulator", DriverLocationData{
		RideID:   rideID,
		DriverID: driverID,
		Latitude: 28.63,
		Arrived:  true,
	})
	require.NoError(t, err)

	var got DriverLocationData
	require.NoError(t, event.Decode(&got))

	assert.Equal(t, rideID, got.RideID)
	assert.Equal(t, driverID, got.DriverID)
	assert.InDelta(t, 28.63, got.Latitude, 1e-9)
	assert.True(t, got.Arrived)
}

func TestEventDecodeMismatchedPayload(t *testing.T) {
	event, err := NewEvent("custom", "test", "just a string")
	require.NoError(t, err)

	var got DriverLocationData
	assert.Error(t, event.Decode(&got))
}

func TestNewEventUnmarshalableData(t *testing.T) {
	_, err := NewEvent("custom", "test", make(chan int))
	assert.Error(t, err)
}
