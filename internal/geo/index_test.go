package geo

import (
	"context"
	"testing"

	redismock "github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richxcame/dispatch/pkg/models"
	redisclient "github.com/richxcame/dispatch/pkg/redis"
)

func newTestIndex(t *testing.T) (*DriverIndex, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	return NewDriverIndex(redisclient.Wrap(client)), mock
}

func TestAddDriverWritesClassKey(t *testing.T) {
	ix, mock := newTestIndex(t)
	driverID := uuid.New()

	mock.ExpectGeoAdd("drivers:geo:economy", &redis.GeoLocation{
		Longitude: 77.2167,
		Latitude:  28.6315,
		Name:      driverID.String(),
	}).SetVal(1)

	require.NoError(t, ix.AddDriver(context.Background(), models.VehicleClassEconomy, driverID, 77.2167, 28.6315))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNearbyReturnsSortedCandidates(t *testing.T) {
	ix, mock := newTestIndex(t)
	near := uuid.New()
	far := uuid.New()

	mock.ExpectGeoRadius("drivers:geo:premium", 77.1, 28.5, &redis.GeoRadiusQuery{
		Radius:   5,
		Unit:     "km",
		WithDist: true,
		Count:    20,
		Sort:     "ASC",
	}).SetVal([]redis.GeoLocation{
		{Name: near.String(), Dist: 0.8},
		{Name: far.String(), Dist: 3.2},
	})

	candidates, err := ix.Nearby(context.Background(), models.VehicleClassPremium, 77.1, 28.5, 5, 20)
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, near, candidates[0].DriverID)
	assert.InDelta(t, 0.8, candidates[0].DistanceKm, 1e-9)
	assert.Equal(t, far, candidates[1].DriverID)
}

func TestNearbySkipsMalformedMembers(t *testing.T) {
	ix, mock := newTestIndex(t)
	valid := uuid.New()

	mock.ExpectGeoRadius("drivers:geo:economy", 77.1, 28.5, &redis.GeoRadiusQuery{
		Radius:   5,
		Unit:     "km",
		WithDist: true,
		Count:    20,
		Sort:     "ASC",
	}).SetVal([]redis.GeoLocation{
		{Name: "not-a-uuid", Dist: 0.1},
		{Name: valid.String(), Dist: 1.5},
	})

	candidates, err := ix.Nearby(context.Background(), models.VehicleClassEconomy, 77.1, 28.5, 5, 20)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, valid, candidates[0].DriverID)
}

func TestRemoveDriver(t *testing.T) {
	ix, mock := newTestIndex(t)
	driverID := uuid.New()

	mock.ExpectZRem("drivers:geo:xl", driverID.String()).SetVal(1)

	require.NoError(t, ix.RemoveDriver(context.Background(), models.VehicleClassXL, driverID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveDriverEverywhereSweepsAllClasses(t *testing.T) {
	ix, mock := newTestIndex(t)
	driverID := uuid.New()

	for _, key := range []string{"drivers:geo:economy", "drivers:geo:premium", "drivers:geo:xl"} {
		mock.ExpectZRem(key, driverID.String()).SetVal(0)
	}

	require.NoError(t, ix.RemoveDriverEverywhere(context.Background(), driverID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPositionAbsentDriver(t *testing.T) {
	ix, mock := newTestIndex(t)
	driverID := uuid.New()

	mock.ExpectGeoPos("drivers:geo:economy", driverID.String()).SetVal([]*redis.GeoPos{nil})

	_, _, ok, err := ix.Position(context.Background(), models.VehicleClassEconomy, driverID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPositionIndexedDriver(t *testing.T) {
	ix, mock := newTestIndex(t)
	driverID := uuid.New()

	mock.ExpectGeoPos("drivers:geo:economy", driverID.String()).SetVal([]*redis.GeoPos{
		{Longitude: 77.0890, Latitude: 28.4950},
	})

	lng, lat, ok, err := ix.Position(context.Background(), models.VehicleClassEconomy, driverID)
	require.NoError(t, err)

	assert.True(t, ok)
	assert.InDelta(t, 77.0890, lng, 1e-6)
	assert.InDelta(t, 28.4950, lat, 1e-6)
}
