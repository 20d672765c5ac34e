package simulator

import (
	"context"
	"testing"
	"time"

	redismock "github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richxcame/dispatch/internal/geo"
	"github.com/richxcame/dispatch/pkg/cache"
	"github.com/richxcame/dispatch/pkg/config"
	"github.com/richxcame/dispatch/pkg/eventbus"
	geomath "github.com/richxcame/dispatch/pkg/geo"
	"github.com/richxcame/dispatch/pkg/models"
	redisclient "github.com/richxcame/dispatch/pkg/redis"
)

type discardWriter struct{}

func (discardWriter) BulkInsertSamples(context.Context, []models.DriverLocationSample) error {
	return nil
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, string, string, *eventbus.Event) error {
	return nil
}

func newTestSimulator(t *testing.T, cfg config.SimulatorConfig) *Simulator {
	t.Helper()
	client, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(false)
	wrapped := redisclient.Wrap(client)
	index := geo.NewDriverIndex(wrapped)
	buffer := geo.NewLocationBuffer(discardWriter{}, geo.DefaultLocationBufferConfig())
	t.Cleanup(buffer.Stop)
	return New(index, buffer, cache.NewManager(wrapped), discardPublisher{}, cfg)
}

func testRide(driverID uuid.UUID) *models.Ride {
	return &models.Ride{
		ID:               uuid.New(),
		RiderID:          uuid.New(),
		DriverID:         &driverID,
		PickupLatitude:   28.7000,
		PickupLongitude:  77.1000,
		DropoffLatitude:  28.5000,
		DropoffLongitude: 77.2000,
	}
}

func TestStepAdvancesTowardPickup(t *testing.T) {
	cfg := config.SimulatorConfig{Enabled: true, SpeedKmh: 36, TickInterval: 2 * time.Second, ArrivalThreshold: 0.05}
	s := newTestSimulator(t, cfg)
	driverID := uuid.New()
	ride := testRide(driverID)

	tk := &task{
		ride:  ride,
		class: models.VehicleClassEconomy,
		lat:   28.6000,
		lng:   77.1000,
		leg:   legToPickup,
		done:  make(chan struct{}),
	}
	before := geomath.Haversine(tk.lat, tk.lng, ride.PickupLatitude, ride.PickupLongitude)

	arrived := s.step(context.Background(), driverID, tk)
	require.False(t, arrived)

	after := geomath.Haversine(tk.lat, tk.lng, ride.PickupLatitude, ride.PickupLongitude)
	stepKm := cfg.SpeedKmh * cfg.TickInterval.Seconds() / 3600
	assert.InDelta(t, before-stepKm, after, 0.001)
}

func TestStepSnapsToWaypointWithinThreshold(t *testing.T) {
	cfg := config.SimulatorConfig{Enabled: true, SpeedKmh: 36, TickInterval: 2 * time.Second, ArrivalThreshold: 0.05}
	s := newTestSimulator(t, cfg)
	driverID := uuid.New()
	ride := testRide(driverID)

	// About 22 m north of the pickup, inside the arrival threshold.
	tk := &task{
		ride:  ride,
		class: models.VehicleClassEconomy,
		lat:   28.7002,
		lng:   77.1000,
		leg:   legToPickup,
		done:  make(chan struct{}),
	}

	arrived := s.step(context.Background(), driverID, tk)
	require.True(t, arrived)
	assert.Equal(t, ride.PickupLatitude, tk.lat)
	assert.Equal(t, ride.PickupLongitude, tk.lng)
}

func TestTargetFollowsLeg(t *testing.T) {
	ride := testRide(uuid.New())
	tk := &task{ride: ride, leg: legToPickup}

	lat, lng := tk.target()
	assert.Equal(t, ride.PickupLatitude, lat)
	assert.Equal(t, ride.PickupLongitude, lng)

	tk.leg = legToDropoff
	lat, lng = tk.target()
	assert.Equal(t, ride.DropoffLatitude, lat)
	assert.Equal(t, ride.DropoffLongitude, lng)
}

func TestSwitchToDropoffCancelsRunningApproach(t *testing.T) {
	// Slow enough that the approach leg would run for hours.
	cfg := config.SimulatorConfig{Enabled: true, SpeedKmh: 1, TickInterval: 10 * time.Millisecond, ArrivalThreshold: 0.01}
	s := newTestSimulator(t, cfg)
	driverID := uuid.New()
	ride := testRide(driverID)
	ride.PickupLatitude = 29.5000

	s.StartToPickup(ride, models.VehicleClassEconomy, 28.6000, 77.1000)
	defer s.Stop(driverID)

	switched := make(chan struct{})
	go func() {
		s.SwitchToDropoff(ride)
		close(switched)
	}()

	select {
	case <-switched:
	case <-time.After(2 * time.Second):
		t.Fatal("switch blocked behind the running approach leg")
	}

	s.mu.Lock()
	tk := s.tasks[driverID]
	s.mu.Unlock()
	require.NotNil(t, tk)
	tk.mu.Lock()
	assert.Equal(t, legToDropoff, tk.leg)
	tk.mu.Unlock()
}

func TestSwitchToDropoffWithoutPriorTaskStartsAtPickup(t *testing.T) {
	cfg := config.SimulatorConfig{Enabled: true, SpeedKmh: 1, TickInterval: 10 * time.Millisecond, ArrivalThreshold: 0.01}
	s := newTestSimulator(t, cfg)
	driverID := uuid.New()
	ride := testRide(driverID)

	s.SwitchToDropoff(ride)
	defer s.Stop(driverID)

	s.mu.Lock()
	tk := s.tasks[driverID]
	s.mu.Unlock()
	require.NotNil(t, tk)
	tk.mu.Lock()
	assert.Equal(t, legToDropoff, tk.leg)
	tk.mu.Unlock()
}

func TestStartToPickupReplacesRunningTask(t *testing.T) {
	cfg := config.SimulatorConfig{Enabled: true, SpeedKmh: 1, TickInterval: 10 * time.Millisecond, ArrivalThreshold: 0.01}
	s := newTestSimulator(t, cfg)
	driverID := uuid.New()
	first := testRide(driverID)
	first.PickupLatitude = 29.5000

	s.StartToPickup(first, models.VehicleClassEconomy, 28.6000, 77.1000)
	s.mu.Lock()
	firstTask := s.tasks[driverID]
	s.mu.Unlock()
	require.NotNil(t, firstTask)

	second := testRide(driverID)
	second.PickupLatitude = 29.6000
	s.StartToPickup(second, models.VehicleClassEconomy, 28.6000, 77.1000)
	defer s.Stop(driverID)

	select {
	case <-firstTask.done:
	case <-time.After(time.Second):
		t.Fatal("replaced task goroutine still running")
	}

	s.mu.Lock()
	secondTask := s.tasks[driverID]
	s.mu.Unlock()
	require.NotNil(t, secondTask)
	assert.NotSame(t, firstTask, secondTask)
}

func TestStopRemovesTask(t *testing.T) {
	cfg := config.SimulatorConfig{Enabled: true, SpeedKmh: 1, TickInterval: 10 * time.Millisecond, ArrivalThreshold: 0.01}
	s := newTestSimulator(t, cfg)
	driverID := uuid.New()
	ride := testRide(driverID)
	ride.PickupLatitude = 29.5000

	s.StartToPickup(ride, models.VehicleClassEconomy, 28.6000, 77.1000)
	s.Stop(driverID)

	s.mu.Lock()
	_, ok := s.tasks[driverID]
	s.mu.Unlock()
	assert.False(t, ok)

	// Stopping an unknown driver is a no-op.
	s.Stop(driverID)
}

func TestDisabledSimulatorIgnoresStart(t *testing.T) {
	cfg := config.SimulatorConfig{Enabled: false, SpeedKmh: 30, TickInterval: 2 * time.Second, ArrivalThreshold: 0.05}
	s := newTestSimulator(t, cfg)
	driverID := uuid.New()

	s.StartToPickup(testRide(driverID), models.VehicleClassEconomy, 28.6000, 77.1000)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.tasks)
}
