package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	redismock "github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/richxcame/dispatch/pkg/redis"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestManager(t *testing.T) (*Manager, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	return NewManager(redisclient.Wrap(client)), mock
}

func TestSetMarshalsJSON(t *testing.T) {
	m, mock := newTestManager(t)

	value := payload{Name: "economy", Count: 3}
	data, err := json.Marshal(value)
	require.NoError(t, err)

	mock.ExpectSet("ride:abc", string(data), time.Minute).SetVal("OK")
	assert.NoError(t, m.Set(context.Background(), "ride:abc", value, time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHit(t *testing.T) {
	m, mock := newTestManager(t)
	mock.ExpectGet("ride:abc").SetVal(`{"name":"economy","count":3}`)

	var got payload
	require.NoError(t, m.Get(context.Background(), "ride:abc", &got))

	assert.Equal(t, payload{Name: "economy", Count: 3}, got)
}

func TestGetMiss(t *testing.T) {
	m, mock := newTestManager(t)
	mock.ExpectGet("ride:missing").RedisNil()

	var got payload
	assert.ErrorIs(t, m.Get(context.Background(), "ride:missing", &got), ErrMiss)
}

func TestGetOrSetFallsThroughOnMiss(t *testing.T) {
	m, mock := newTestManager(t)
	mock.ExpectGet("driver:meta:d1").RedisNil()
	// The repopulating Set runs on a background goroutine; the mock may or
	// may not observe it before the test ends, so it is not asserted.
	mock.MatchExpectationsInOrder(false)
	mock.Regexp().ExpectSet("driver:meta:d1", `.*`, time.Minute).SetVal("OK")

	var got payload
	err := m.GetOrSet(context.Background(), "driver:meta:d1", time.Minute, &got, func() (interface{}, error) {
		return payload{Name: "loaded", Count: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "loaded", got.Name)
}

func TestDeleteNoKeysIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	assert.NoError(t, m.Delete(context.Background()))
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "ride:r1", Keys.Ride("r1"))
	assert.Equal(t, "driver:d1", Keys.Driver("d1"))
	assert.Equal(t, "driver:meta:d1", Keys.DriverMeta("d1"))
	assert.Equal(t, "driver:location:d1", Keys.DriverLocation("d1"))
	assert.Equal(t, "driver:active_ride:d1", Keys.DriverActiveRide("d1"))
	assert.Equal(t, "payment:idempotency:k1", Keys.PaymentIdempotency("k1"))
}

func TestTTLPresetsOrdered(t *testing.T) {
	assert.Less(t, TTL.Short(), TTL.Medium())
	assert.Less(t, TTL.Medium(), TTL.Long())
	assert.Less(t, TTL.Long(), TTL.VeryLong())
}
