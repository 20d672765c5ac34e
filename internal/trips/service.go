package trips

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/internal/pricing"
	"github.com/richxcame/dispatch/internal/rides"
	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/database"
	"github.com/richxcame/dispatch/pkg/eventbus"
	"github.com/richxcame/dispatch/pkg/logger"
	"github.com/richxcame/dispatch/pkg/models"
)

// Simulator switches the motion simulator between ride phases.
type Simulator interface {
	SwitchToDropoff(ride *models.Ride)
}

// Publisher publishes events to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event *eventbus.Event) error
}

// StartTripRequest begins the physical trip for a ride.
type StartTripRequest struct {
	RideID uuid.UUID `json:"ride_id" validate:"required"`
}

// EndTripRequest finalizes a trip. Absent actuals fall back to the ride's
// estimates.
type EndTripRequest struct {
	ActualDistanceKm   *float64 `json:"actual_distance_km,omitempty" validate:"omitempty,gte=0"`
	ActualDurationMins *int     `json:"actual_duration_mins,omitempty" validate:"omitempty,gte=0"`
	RoutePolyline      *string  `json:"route_polyline,omitempty"`
}

// Service owns trip start and completion, including the final fare.
type Service struct {
	repo  *Repository
	rides *rides.Service
	db    *pgxpool.Pool
	bus   Publisher
	sim   Simulator
}

// NewService creates a trips service.
func NewService(repo *Repository, ridesService *rides.Service, db *pgxpool.Pool, bus Publisher, sim Simulator) *Service {
	return &Service{
		repo:  repo,
		rides: ridesService,
		db:    db,
		bus:   bus,
		sim:   sim,
	}
}

// GetTrip returns a trip by id.
func (s *Service) GetTrip(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	return s.repo.GetByID(ctx, tripID)
}

// GetTripByRide returns the trip belonging to a ride.
func (s *Service) GetTripByRide(ctx context.Context, rideID uuid.UUID) (*models.Trip, error) {
	return s.repo.GetByRideID(ctx, rideID)
}

// StartTrip creates the trip record and moves the ride to IN_PROGRESS in one
// transaction. The ride must be in DRIVER_ARRIVED.
func (s *Service) StartTrip(ctx context.Context, rideID uuid.UUID) (*models.Trip, error) {
	var trip *models.Trip
	var ride *models.Ride
	var previous models.RideStatus

	err := database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		r, err := s.rides.Repo().GetForUpdate(ctx, tx, rideID)
		if err != nil {
			return err
		}
		if r.Status != models.RideStatusDriverArrived {
			return common.NewInvalidStateError("trip can only start after the driver has arrived")
		}

		t := &models.Trip{
			ID:        uuid.New(),
			RideID:    r.ID,
			Status:    models.TripStatusInProgress,
			StartedAt: time.Now().UTC(),
		}
		if err := s.repo.Create(ctx, tx, t); err != nil {
			return err
		}

		previous = r.Status
		r.Status = models.RideStatusInProgress
		if err := s.rides.Repo().ApplyTransition(ctx, tx, r); err != nil {
			return err
		}

		trip = t
		ride = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.rides.CacheRide(ctx, ride)
	s.rides.PublishStatusChanged(ctx, ride, previous)
	s.publishTripStarted(ctx, trip, ride)

	if s.sim != nil {
		s.sim.SwitchToDropoff(ride)
	}
	return trip, nil
}

// EndTrip finalizes the trip with its computed fare, completes the ride and
// releases the driver. The trip must be IN_PROGRESS.
func (s *Service) EndTrip(ctx context.Context, tripID uuid.UUID, req *EndTripRequest) (*models.Trip, error) {
	var trip *models.Trip
	var ride *models.Ride
	var previous models.RideStatus

	err := database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		t, err := s.repo.GetForUpdate(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if t.Status != models.TripStatusInProgress {
			return common.NewInvalidStateError("trip is not in progress")
		}

		r, err := s.rides.Repo().GetForUpdate(ctx, tx, t.RideID)
		if err != nil {
			return err
		}
		if r.DriverID == nil {
			return common.NewInternalServerError("trip ride has no driver")
		}

		now := time.Now().UTC()
		distance := resolveDistance(req.ActualDistanceKm, r.EstimatedDistance)
		duration := resolveDuration(req.ActualDurationMins, t.StartedAt, now)

		t.Status = models.TripStatusCompleted
		t.EndedAt = &now
		t.ActualDistance = &distance
		t.ActualDuration = &duration
		t.RoutePolyline = req.RoutePolyline
		t.Fare = pricing.ComputeFare(r.Tier, distance, duration, r.SurgeMultiplier)
		if err := s.repo.Complete(ctx, tx, t); err != nil {
			return err
		}

		previous = r.Status
		r.Status = models.RideStatusCompleted
		if err := s.rides.Repo().ApplyTransition(ctx, tx, r); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE drivers SET status = 'online', total_rides = total_rides + 1, updated_at = NOW()
			WHERE id = $1`,
			*r.DriverID,
		); err != nil {
			return err
		}

		trip = t
		ride = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	// ReleaseDriver stops the simulator, drops stale caches and re-indexes
	// the driver at their last known position.
	s.rides.ReleaseDriver(ctx, *ride.DriverID)
	s.rides.CacheRide(ctx, ride)
	s.rides.PublishStatusChanged(ctx, ride, previous)
	s.publishTripCompleted(ctx, trip, ride)

	return trip, nil
}

// resolveDistance picks the actual distance, falling back to the estimate and
// finally a 5 km floor when neither is usable.
func resolveDistance(actual *float64, estimated float64) float64 {
	if actual != nil && *actual > 0 {
		return *actual
	}
	if estimated > 0 {
		return estimated
	}
	return 5
}

// resolveDuration picks the actual duration, falling back to wall-clock
// minutes since the trip started, ceiled.
func resolveDuration(actual *int, startedAt, now time.Time) int {
	if actual != nil && *actual > 0 {
		return *actual
	}
	mins := int(math.Ceil(now.Sub(startedAt).Minutes()))
	if mins < 1 {
		mins = 1
	}
	return mins
}

func (s *Service) publish(ctx context.Context, topic, key, eventType string, data interface{}) {
	event, err := eventbus.NewEvent(eventType, "trips", data)
	if err != nil {
		logger.WarnContext(ctx, "failed to build event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, topic, key, event); err != nil {
		logger.WarnContext(ctx, "failed to publish event",
			zap.String("type", eventType),
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}

// publishTripStarted notifies the audit stream and the ride room. A single
// notification keyed by the rider is enough: the realtime fabric routes trip
// events into the ride room, which reaches the driver too.
func (s *Service) publishTripStarted(ctx context.Context, trip *models.Trip, ride *models.Ride) {
	data := eventbus.TripStartedData{
		TripID:    trip.ID,
		RideID:    ride.ID,
		RiderID:   ride.RiderID,
		DriverID:  *ride.DriverID,
		StartedAt: trip.StartedAt,
	}
	s.publish(ctx, eventbus.TopicRideEvents, ride.TenantID.String(), eventbus.EventTypeTripStarted, data)
	s.publish(ctx, eventbus.TopicNotifications, ride.RiderID.String(), eventbus.EventTypeTripStarted, data)
}

func (s *Service) publishTripCompleted(ctx context.Context, trip *models.Trip, ride *models.Ride) {
	data := eventbus.TripCompletedData{
		TripID:         trip.ID,
		RideID:         ride.ID,
		RiderID:        ride.RiderID,
		DriverID:       *ride.DriverID,
		FareTotal:      trip.Fare.Total,
		Currency:       trip.Fare.Currency,
		DistanceKm:     *trip.ActualDistance,
		DurationMins:   *trip.ActualDuration,
		DriverEarnings: pricing.Round2(trip.Fare.Total * pricing.DriverShare),
		CompletedAt:    *trip.EndedAt,
	}
	s.publish(ctx, eventbus.TopicRideEvents, ride.TenantID.String(), eventbus.EventTypeTripCompleted, data)
	s.publish(ctx, eventbus.TopicNotifications, ride.RiderID.String(), eventbus.EventTypeTripCompleted, data)
}
