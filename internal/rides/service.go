package rides

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/internal/geo"
	"github.com/richxcame/dispatch/internal/pricing"
	"github.com/richxcame/dispatch/pkg/cache"
	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/database"
	"github.com/richxcame/dispatch/pkg/eventbus"
	geomath "github.com/richxcame/dispatch/pkg/geo"
	"github.com/richxcame/dispatch/pkg/logger"
	"github.com/richxcame/dispatch/pkg/metrics"
	"github.com/richxcame/dispatch/pkg/models"
	"github.com/richxcame/dispatch/pkg/validation"
)

// transitions is the ride lifecycle table. CANCELLED entries cover the
// cancel policy; MATCHING -> MATCHING allows matching re-entry and
// MATCHING -> REQUESTED the no-drivers revert.
var transitions = map[models.RideStatus][]models.RideStatus{
	models.RideStatusRequested:      {models.RideStatusMatching, models.RideStatusCancelled},
	models.RideStatusMatching:       {models.RideStatusMatching, models.RideStatusRequested, models.RideStatusDriverAssigned, models.RideStatusCancelled},
	models.RideStatusDriverAssigned: {models.RideStatusDriverEnRoute, models.RideStatusCancelled},
	models.RideStatusDriverEnRoute:  {models.RideStatusDriverArrived, models.RideStatusCancelled},
	models.RideStatusDriverArrived:  {models.RideStatusInProgress, models.RideStatusCancelled},
	models.RideStatusInProgress:     {models.RideStatusCompleted},
}

// TransitionAllowed reports whether the lifecycle permits from -> to.
func TransitionAllowed(from, to models.RideStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Publisher publishes events to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event *eventbus.Event) error
}

// Matcher kicks off driver matching for a freshly created ride.
type Matcher interface {
	Match(ctx context.Context, rideID uuid.UUID) error
}

// TripSimulator stops the motion simulator for a driver.
type TripSimulator interface {
	Stop(driverID uuid.UUID)
}

// CreateRideRequest is the ride request payload.
type CreateRideRequest struct {
	TenantID       uuid.UUID            `json:"tenant_id" validate:"required"`
	RiderID        uuid.UUID            `json:"rider_id" validate:"required"`
	PickupLat      float64              `json:"pickup_lat" validate:"latitude"`
	PickupLng      float64              `json:"pickup_lng" validate:"longitude"`
	PickupAddress  *string              `json:"pickup_address,omitempty"`
	DropoffLat     float64              `json:"dropoff_lat" validate:"latitude"`
	DropoffLng     float64              `json:"dropoff_lng" validate:"longitude"`
	DropoffAddress *string              `json:"dropoff_address,omitempty"`
	Tier           models.VehicleClass  `json:"tier,omitempty" validate:"omitempty,vehicle_class"`
	PaymentMethod  models.PaymentMethod `json:"payment_method,omitempty" validate:"omitempty,payment_method"`
}

// Service owns the ride lifecycle: creation with a fare quote, guarded
// status transitions and the cancellation policy.
type Service struct {
	repo    *Repository
	db      *pgxpool.Pool
	cache   *cache.Manager
	bus     Publisher
	geo     *geo.Service
	sim     TripSimulator
	matcher Matcher
}

// NewService creates a rides service.
func NewService(repo *Repository, db *pgxpool.Pool, cacheManager *cache.Manager, bus Publisher, geoService *geo.Service, sim TripSimulator) *Service {
	return &Service{
		repo:    repo,
		db:      db,
		cache:   cacheManager,
		bus:     bus,
		geo:     geoService,
		sim:     sim,
	}
}

// SetMatcher wires the dispatch engine in after construction; the dispatch
// service depends on this one.
func (s *Service) SetMatcher(m Matcher) {
	s.matcher = m
}

// Repo exposes the repository to services that transition rides inside
// their own transactions.
func (s *Service) Repo() *Repository {
	return s.repo
}

// CreateRide quotes and persists a new ride, then kicks off matching in the
// background.
func (s *Service) CreateRide(ctx context.Context, req *CreateRideRequest) (*models.Ride, error) {
	if err := validation.ValidateStruct(req); err != nil {
		return nil, common.NewValidationError(err.Error())
	}

	tier := req.Tier
	if tier == "" {
		tier = models.VehicleClassEconomy
	}
	method := req.PaymentMethod
	if method == "" {
		method = models.PaymentMethodCash
	}

	distanceKm := geomath.HaversineRounded(req.PickupLat, req.PickupLng, req.DropoffLat, req.DropoffLng)
	ride := &models.Ride{
		ID:                uuid.New(),
		TenantID:          req.TenantID,
		RiderID:           req.RiderID,
		Status:            models.RideStatusRequested,
		PickupLatitude:    req.PickupLat,
		PickupLongitude:   req.PickupLng,
		PickupAddress:     req.PickupAddress,
		DropoffLatitude:   req.DropoffLat,
		DropoffLongitude:  req.DropoffLng,
		DropoffAddress:    req.DropoffAddress,
		Tier:              tier,
		PaymentMethod:     method,
		SurgeMultiplier:   1.0,
		EstimatedFare:     pricing.EstimateFare(tier, distanceKm),
		EstimatedDistance: distanceKm,
		EstimatedDuration: geomath.EstimateDuration(distanceKm),
	}

	if err := s.repo.Create(ctx, ride); err != nil {
		return nil, err
	}
	metrics.RidesCreated.Inc()

	s.cacheRide(ctx, ride)
	s.publishRideCreated(ctx, ride)

	if s.matcher != nil {
		go func() {
			matchCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.matcher.Match(matchCtx, ride.ID); err != nil {
				logger.Warn("matching failed after ride creation",
					zap.String("ride_id", ride.ID.String()),
					zap.Error(err),
				)
			}
		}()
	}

	return ride, nil
}

// GetRide returns a ride through the cache.
func (s *Service) GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	var ride models.Ride
	err := s.cache.GetOrSet(ctx, cache.Keys.Ride(rideID.String()), cache.TTL.Short(), &ride, func() (interface{}, error) {
		return s.repo.GetByID(ctx, rideID)
	})
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

// Transition moves a ride to the target status under a row lock. An
// expected version, when given, turns a lost race into a Conflict instead
// of a silent overwrite.
func (s *Service) Transition(ctx context.Context, rideID uuid.UUID, target models.RideStatus, expectedVersion *int64) (*models.Ride, error) {
	var ride *models.Ride
	var previous models.RideStatus

	err := database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		r, err := s.repo.GetForUpdate(ctx, tx, rideID)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != r.Version {
			return common.NewConflictError("ride version mismatch")
		}
		if !TransitionAllowed(r.Status, target) {
			return common.NewInvalidStateError("cannot transition ride from " + string(r.Status) + " to " + string(target))
		}

		previous = r.Status
		r.Status = target
		if err := s.repo.ApplyTransition(ctx, tx, r); err != nil {
			return err
		}
		ride = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cacheRide(ctx, ride)
	s.publishStatusChanged(ctx, ride, previous)
	s.publishProgress(ctx, ride)
	return ride, nil
}

// CancelRide terminates a non-terminal, not-in-progress ride. When a driver
// was already assigned they are released back online, re-indexed at their
// last known position, and their simulator is stopped.
func (s *Service) CancelRide(ctx context.Context, rideID uuid.UUID, reason, cancelledBy string) (*models.Ride, error) {
	if reason == "" {
		reason = "cancelled by " + cancelledBy
	}

	var ride *models.Ride
	var previous models.RideStatus
	var releasedDriver *uuid.UUID

	err := database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		r, err := s.repo.GetForUpdate(ctx, tx, rideID)
		if err != nil {
			return err
		}
		if r.Status == models.RideStatusInProgress {
			return common.NewInvalidStateError("a ride in progress must be completed")
		}
		if !TransitionAllowed(r.Status, models.RideStatusCancelled) {
			return common.NewInvalidStateError("cannot cancel ride in status " + string(r.Status))
		}

		previous = r.Status
		now := time.Now().UTC()
		r.Status = models.RideStatusCancelled
		r.CancelledAt = &now
		r.CancelReason = &reason

		if previous.Active() && r.DriverID != nil {
			releasedDriver = r.DriverID
			if _, err := tx.Exec(ctx,
				`UPDATE drivers SET status = 'online', updated_at = NOW() WHERE id = $1`,
				*r.DriverID,
			); err != nil {
				return err
			}
		}

		// Any offers still waiting on a cancelled ride die with it.
		if _, err := tx.Exec(ctx,
			`UPDATE ride_offers SET status = 'cancelled', responded_at = NOW()
			 WHERE ride_id = $1 AND status = 'pending'`,
			r.ID,
		); err != nil {
			return err
		}

		if err := s.repo.ApplyTransition(ctx, tx, r); err != nil {
			return err
		}
		ride = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if releasedDriver != nil {
		s.releaseDriver(ctx, *releasedDriver)
	}

	s.cacheRide(ctx, ride)
	s.publishStatusChanged(ctx, ride, previous)
	s.publishCancelled(ctx, ride, cancelledBy, reason)
	return ride, nil
}

// releaseDriver returns a driver to the matchable pool after a cancellation
// or completion: simulator off, caches dropped, geo index re-populated from
// the last known position when one exists.
func (s *Service) releaseDriver(ctx context.Context, driverID uuid.UUID) {
	if s.sim != nil {
		s.sim.Stop(driverID)
	}

	s.geo.InvalidateMeta(ctx, driverID)
	if err := s.cache.Delete(ctx, cache.Keys.Driver(driverID.String())); err != nil {
		logger.WarnContext(ctx, "failed to invalidate driver cache", zap.Error(err))
	}
	if err := s.cache.Delete(ctx, cache.Keys.DriverActiveRide(driverID.String())); err != nil {
		logger.WarnContext(ctx, "failed to clear active ride mapping", zap.Error(err))
	}

	sample, err := s.geo.LastKnownLocation(ctx, driverID)
	if err != nil {
		return
	}
	meta, err := s.geo.Meta(ctx, driverID)
	if err != nil {
		return
	}
	if err := s.geo.Index().AddDriver(ctx, meta.VehicleClass, driverID, sample.Longitude, sample.Latitude); err != nil {
		logger.WarnContext(ctx, "failed to re-add released driver to geo index",
			zap.String("driver_id", driverID.String()),
			zap.Error(err),
		)
	}
}

// ReleaseDriver is the exported form used by the trips service on
// completion.
func (s *Service) ReleaseDriver(ctx context.Context, driverID uuid.UUID) {
	s.releaseDriver(ctx, driverID)
}

// ActiveRideByRider returns the rider's current non-terminal ride.
func (s *Service) ActiveRideByRider(ctx context.Context, riderID uuid.UUID) (*models.Ride, error) {
	return s.repo.ActiveByRider(ctx, riderID)
}

// ActiveRideByDriver returns the ride the driver is currently serving.
func (s *Service) ActiveRideByDriver(ctx context.Context, driverID uuid.UUID) (*models.Ride, error) {
	return s.repo.ActiveByDriver(ctx, driverID)
}

// RidesByRider lists the rider's rides, newest first.
func (s *Service) RidesByRider(ctx context.Context, riderID uuid.UUID, status *models.RideStatus, limit, offset int) ([]models.Ride, int64, error) {
	return s.repo.ListByRider(ctx, riderID, status, limit, offset)
}

// RidesByDriver lists the driver's rides, newest first.
func (s *Service) RidesByDriver(ctx context.Context, driverID uuid.UUID, status *models.RideStatus, limit, offset int) ([]models.Ride, int64, error) {
	return s.repo.ListByDriver(ctx, driverID, status, limit, offset)
}

// CacheRide refreshes the ride cache entry after an external transition.
func (s *Service) CacheRide(ctx context.Context, ride *models.Ride) {
	s.cacheRide(ctx, ride)
}

func (s *Service) cacheRide(ctx context.Context, ride *models.Ride) {
	if err := s.cache.Set(ctx, cache.Keys.Ride(ride.ID.String()), ride, cache.TTL.Short()); err != nil {
		logger.WarnContext(ctx, "failed to cache ride",
			zap.String("ride_id", ride.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, topic, key, eventType string, data interface{}) {
	event, err := eventbus.NewEvent(eventType, "rides", data)
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

func (s *Service) publishRideCreated(ctx context.Context, ride *models.Ride) {
	s.publish(ctx, eventbus.TopicRideEvents, ride.TenantID.String(), eventbus.EventTypeRideCreated, eventbus.RideCreatedData{
		RideID:            ride.ID,
		TenantID:          ride.TenantID,
		RiderID:           ride.RiderID,
		PickupLatitude:    ride.PickupLatitude,
		PickupLongitude:   ride.PickupLongitude,
		DropoffLatitude:   ride.DropoffLatitude,
		DropoffLongitude:  ride.DropoffLongitude,
		Tier:              string(ride.Tier),
		EstimatedFare:     ride.EstimatedFare,
		EstimatedDistance: ride.EstimatedDistance,
		RequestedAt:       ride.CreatedAt,
	})
}

// PublishStatusChanged emits the audit-stream transition record, keyed by
// tenant for per-tenant FIFO.
func (s *Service) PublishStatusChanged(ctx context.Context, ride *models.Ride, previous models.RideStatus) {
	s.publishStatusChanged(ctx, ride, previous)
}

func (s *Service) publishStatusChanged(ctx context.Context, ride *models.Ride, previous models.RideStatus) {
	s.publish(ctx, eventbus.TopicRideEvents, ride.TenantID.String(), eventbus.EventTypeRideStatusChanged, eventbus.RideStatusChangedData{
		RideID:         ride.ID,
		TenantID:       ride.TenantID,
		RiderID:        ride.RiderID,
		DriverID:       ride.DriverID,
		PreviousStatus: string(previous),
		Status:         string(ride.Status),
		Version:        ride.Version,
		OccurredAt:     ride.UpdatedAt,
	})
}

// publishProgress notifies the rider's realtime stream about en-route and
// arrived transitions.
func (s *Service) publishProgress(ctx context.Context, ride *models.Ride) {
	var eventType string
	switch ride.Status {
	case models.RideStatusDriverEnRoute:
		eventType = eventbus.EventTypeRideDriverEnRoute
	case models.RideStatusDriverArrived:
		eventType = eventbus.EventTypeRideDriverArrived
	default:
		return
	}
	if ride.DriverID == nil {
		return
	}

	s.publish(ctx, eventbus.TopicNotifications, ride.RiderID.String(), eventType, eventbus.RideProgressData{
		RideID:     ride.ID,
		RiderID:    ride.RiderID,
		DriverID:   *ride.DriverID,
		Status:     string(ride.Status),
		OccurredAt: ride.UpdatedAt,
	})
}

func (s *Service) publishCancelled(ctx context.Context, ride *models.Ride, cancelledBy, reason string) {
	data := eventbus.RideCancelledData{
		RideID:      ride.ID,
		TenantID:    ride.TenantID,
		RiderID:     ride.RiderID,
		DriverID:    ride.DriverID,
		CancelledBy: cancelledBy,
		Reason:      reason,
		CancelledAt: ride.UpdatedAt,
	}
	s.publish(ctx, eventbus.TopicRideEvents, ride.TenantID.String(), eventbus.EventTypeRideCancelled, data)
	s.publish(ctx, eventbus.TopicNotifications, ride.RiderID.String(), eventbus.EventTypeRideCancelled, data)
	if ride.DriverID != nil {
		s.publish(ctx, eventbus.TopicNotifications, ride.DriverID.String(), eventbus.EventTypeRideCancelled, data)
	}
}
