package simulator

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/internal/geo"
	"github.com/richxcame/dispatch/pkg/cache"
	"github.com/richxcame/dispatch/pkg/config"
	"github.com/richxcame/dispatch/pkg/eventbus"
	geomath "github.com/richxcame/dispatch/pkg/geo"
	"github.com/richxcame/dispatch/pkg/logger"
	"github.com/richxcame/dispatch/pkg/models"
)

// RideTransitioner advances the ride lifecycle as the simulated driver
// reaches waypoints. Bound after construction; the rides service takes this
// simulator at its own construction time.
type RideTransitioner interface {
	Transition(ctx context.Context, rideID uuid.UUID, target models.RideStatus, expectedVersion *int64) (*models.Ride, error)
}

// Publisher publishes events to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event *eventbus.Event) error
}

type leg int

const (
	legToPickup leg = iota
	legToDropoff
)

// task is one simulated driver in motion. Position is owned by the task
// goroutine; the mutex covers handoff between legs.
type task struct {
	mu       sync.Mutex
	ride     *models.Ride
	class    models.VehicleClass
	lat, lng float64
	leg      leg
	cancel   context.CancelFunc
	done     chan struct{}
}

// Simulator fakes driver motion for assigned rides: straight-line travel
// toward the pickup, then the dropoff, emitting location telemetry on every
// tick exactly like a real driver app would.
type Simulator struct {
	mu     sync.Mutex
	tasks  map[uuid.UUID]*task
	rides  RideTransitioner
	index  *geo.DriverIndex
	buffer *geo.LocationBuffer
	cache  *cache.Manager
	bus    Publisher
	cfg    config.SimulatorConfig
}

// New creates a simulator supervisor.
func New(index *geo.DriverIndex, buffer *geo.LocationBuffer, cacheManager *cache.Manager, bus Publisher, cfg config.SimulatorConfig) *Simulator {
	return &Simulator{
		tasks:  make(map[uuid.UUID]*task),
		index:  index,
		buffer: buffer,
		cache:  cacheManager,
		bus:    bus,
		cfg:    cfg,
	}
}

// BindRides wires the ride lifecycle in after construction.
func (s *Simulator) BindRides(rides RideTransitioner) {
	s.rides = rides
}

// StartToPickup begins simulating the driver's approach to the pickup point.
// A previous task for the same driver is replaced.
func (s *Simulator) StartToPickup(ride *models.Ride, class models.VehicleClass, startLat, startLng float64) {
	if !s.cfg.Enabled || ride.DriverID == nil {
		return
	}
	driverID := *ride.DriverID

	s.Stop(driverID)

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		ride:   ride,
		class:  class,
		lat:    startLat,
		lng:    startLng,
		leg:    legToPickup,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.tasks[driverID] = t
	s.mu.Unlock()

	s.transition(ride.ID, models.RideStatusDriverEnRoute)
	go s.run(ctx, driverID, t)

	logger.Info("simulator started",
		zap.String("ride_id", ride.ID.String()),
		zap.String("driver_id", driverID.String()),
	)
}

// SwitchToDropoff reuses the driver's task for the trip leg, continuing from
// wherever the approach left them.
func (s *Simulator) SwitchToDropoff(ride *models.Ride) {
	if !s.cfg.Enabled || ride.DriverID == nil {
		return
	}
	driverID := *ride.DriverID

	s.mu.Lock()
	t, ok := s.tasks[driverID]
	s.mu.Unlock()
	if !ok {
		// Driver was started outside the simulator; begin at the pickup.
		t = &task{
			class: models.VehicleClassEconomy,
			lat:   ride.PickupLatitude,
			lng:   ride.PickupLongitude,
			done:  make(chan struct{}),
		}
		close(t.done)
		s.mu.Lock()
		s.tasks[driverID] = t
		s.mu.Unlock()
	}

	// Cancel the approach leg and wait for its goroutine to park before
	// rearming, the same handoff Stop performs. Without the cancel a switch
	// issued mid-leg would wait for the simulated driver to physically reach
	// the pickup.
	t.mu.Lock()
	cancelPrev := t.cancel
	t.mu.Unlock()
	if cancelPrev != nil {
		cancelPrev()
	}
	<-t.done

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.ride = ride
	t.leg = legToDropoff
	t.cancel = cancel
	t.done = make(chan struct{})
	t.mu.Unlock()

	go s.run(ctx, driverID, t)
}

// Stop halts the driver's simulated motion, if any.
func (s *Simulator) Stop(driverID uuid.UUID) {
	s.mu.Lock()
	t, ok := s.tasks[driverID]
	if ok {
		delete(s.tasks, driverID)
	}
	s.mu.Unlock()

	if ok && t.cancel != nil {
		t.cancel()
		<-t.done
	}
}

// StopAll halts every simulated driver. Called on shutdown.
func (s *Simulator) StopAll() {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for id, t := range s.tasks {
		tasks = append(tasks, t)
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		if t.cancel != nil {
			t.cancel()
			<-t.done
		}
	}
}

// run drives one leg to its waypoint. The goroutine exits when the waypoint
// is reached or the task is cancelled; the task entry survives arrival at
// the pickup so SwitchToDropoff can resume it.
func (s *Simulator) run(ctx context.Context, driverID uuid.UUID, t *task) {
	defer close(t.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if arrived := s.step(ctx, driverID, t); arrived {
				s.onArrival(driverID, t)
				return
			}
		}
	}
}

// step advances the driver one tick toward the leg's waypoint and emits the
// telemetry a real driver app would send.
func (s *Simulator) step(ctx context.Context, driverID uuid.UUID, t *task) bool {
	t.mu.Lock()
	targetLat, targetLng := t.target()
	lat, lng := t.lat, t.lng

	remaining := geomath.Haversine(lat, lng, targetLat, targetLng)
	stepKm := s.cfg.SpeedKmh * s.cfg.TickInterval.Seconds() / 3600

	arrived := remaining <= stepKm || remaining <= s.cfg.ArrivalThreshold
	var bearing float64
	if arrived {
		lat, lng = targetLat, targetLng
	} else {
		bearing = geomath.InitialBearing(lat, lng, targetLat, targetLng)
		// Wobble the heading a little so the track is not a perfect line.
		bearing += (rand.Float64() - 0.5) * 0.1
		lat, lng = geomath.Destination(lat, lng, bearing, stepKm)
	}
	t.lat, t.lng = lat, lng
	ride := t.ride
	class := t.class
	t.mu.Unlock()

	s.emit(ctx, driverID, class, ride, lat, lng, bearing, arrived)
	return arrived
}

func (t *task) target() (float64, float64) {
	if t.leg == legToPickup {
		return t.ride.PickupLatitude, t.ride.PickupLongitude
	}
	return t.ride.DropoffLatitude, t.ride.DropoffLongitude
}

func (s *Simulator) onArrival(driverID uuid.UUID, t *task) {
	t.mu.Lock()
	ride := t.ride
	currentLeg := t.leg
	t.mu.Unlock()

	if currentLeg == legToPickup {
		s.transition(ride.ID, models.RideStatusDriverArrived)
		logger.Info("simulated driver arrived at pickup",
			zap.String("ride_id", ride.ID.String()),
			zap.String("driver_id", driverID.String()),
		)
		return
	}

	// Dropoff reached. The trip completion endpoint releases the driver and
	// removes the task; the simulator just stops moving.
	logger.Info("simulated driver reached dropoff",
		zap.String("ride_id", ride.ID.String()),
		zap.String("driver_id", driverID.String()),
	)
}

// emit mirrors the location ingest path for a busy driver: geo index write,
// history sample, last-known cache, rider-facing bus event.
func (s *Simulator) emit(ctx context.Context, driverID uuid.UUID, class models.VehicleClass, ride *models.Ride, lat, lng, bearing float64, arrived bool) {
	if err := s.index.AddDriver(ctx, class, driverID, lng, lat); err != nil {
		logger.Warn("simulator failed to update geo index",
			zap.String("driver_id", driverID.String()),
			zap.Error(err),
		)
	}

	headingDeg := bearing * 180 / math.Pi
	if headingDeg < 0 {
		headingDeg += 360
	}
	now := time.Now().UTC()
	sample := models.DriverLocationSample{
		DriverID:   driverID,
		Latitude:   lat,
		Longitude:  lng,
		Heading:    &headingDeg,
		RecordedAt: now,
	}
	s.buffer.Enqueue(sample)

	if err := s.cache.Set(ctx, cache.Keys.DriverLocation(driverID.String()), sample, cache.TTL.Short()); err != nil {
		logger.Warn("simulator failed to cache driver location", zap.Error(err))
	}

	data := eventbus.DriverLocationData{
		RideID:     ride.ID,
		DriverID:   driverID,
		Latitude:   lat,
		Longitude:  lng,
		Heading:    &headingDeg,
		Arrived:    arrived,
		RecordedAt: now,
	}
	event, err := eventbus.NewEvent(eventbus.EventTypeDriverLocation, "simulator", data)
	if err != nil {
		logger.Warn("simulator failed to build location event", zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, eventbus.TopicNotifications, ride.RiderID.String(), event); err != nil {
		logger.Warn("simulator failed to publish driver location",
			zap.String("driver_id", driverID.String()),
			zap.Error(err),
		)
	}
}

// transition advances the ride lifecycle in the background; a lost race with
// a cancellation is logged and absorbed.
func (s *Simulator) transition(rideID uuid.UUID, target models.RideStatus) {
	if s.rides == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.rides.Transition(ctx, rideID, target, nil); err != nil {
			logger.Warn("simulator ride transition failed",
				zap.String("ride_id", rideID.String()),
				zap.String("target", string(target)),
				zap.Error(err),
			)
		}
	}()
}
