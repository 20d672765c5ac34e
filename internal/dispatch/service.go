package dispatch

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/internal/drivers"
	"github.com/richxcame/dispatch/internal/geo"
	"github.com/richxcame/dispatch/internal/rides"
	"github.com/richxcame/dispatch/pkg/cache"
	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/config"
	"github.com/richxcame/dispatch/pkg/database"
	"github.com/richxcame/dispatch/pkg/eventbus"
	"github.com/richxcame/dispatch/pkg/lock"
	"github.com/richxcame/dispatch/pkg/logger"
	"github.com/richxcame/dispatch/pkg/metrics"
	"github.com/richxcame/dispatch/pkg/models"
)

// Scoring weights. Distance dominates, with rating and acceptance history
// splitting the remainder.
const (
	distanceWeight   = 0.4
	ratingWeight     = 0.3
	acceptanceWeight = 0.3

	lockAcquireAttempts = 3
	lockRetryDelay      = 100 * time.Millisecond
)

// Publisher publishes events to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event *eventbus.Event) error
}

// Simulator starts the driver motion simulator after assignment.
type Simulator interface {
	StartToPickup(ride *models.Ride, class models.VehicleClass, startLat, startLng float64)
}

// ScoredCandidate is a candidate driver with its composite dispatch score.
type ScoredCandidate struct {
	DriverID   uuid.UUID `json:"driver_id"`
	DistanceKm float64   `json:"distance_km"`
	Score      float64   `json:"score"`
}

// MatchResult summarizes one matching round.
type MatchResult struct {
	RideID     uuid.UUID         `json:"ride_id"`
	Candidates []ScoredCandidate `json:"drivers"`
	OffersSent int               `json:"offers_sent"`
	Reason     string            `json:"reason,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

// Service is the dispatch engine: it finds candidate drivers, fans offers
// out to them and resolves concurrent acceptances to exactly one winner.
type Service struct {
	db      *pgxpool.Pool
	offers  *OfferRepository
	rides   *rides.Service
	drivers *drivers.Repository
	geo     *geo.Service
	cache   *cache.Manager
	locker  *lock.Locker
	bus     Publisher
	sim     Simulator
	cfg     config.DispatchConfig
}

// NewService creates a dispatch service.
func NewService(
	db *pgxpool.Pool,
	offers *OfferRepository,
	ridesService *rides.Service,
	driversRepo *drivers.Repository,
	geoService *geo.Service,
	cacheManager *cache.Manager,
	locker *lock.Locker,
	bus Publisher,
	sim Simulator,
	cfg config.DispatchConfig,
) *Service {
	return &Service{
		db:      db,
		offers:  offers,
		rides:   ridesService,
		drivers: driversRepo,
		geo:     geoService,
		cache:   cacheManager,
		locker:  locker,
		bus:     bus,
		sim:     sim,
		cfg:     cfg,
	}
}

// Match implements rides.Matcher.
func (s *Service) Match(ctx context.Context, rideID uuid.UUID) error {
	_, err := s.FindDrivers(ctx, rideID)
	return err
}

// FindDrivers runs one matching round: move the ride into MATCHING, query
// the geo index around the pickup, score the online candidates and create
// pending offers for them. The MATCHING write is awaited before fan-out so
// consumers never observe offers for a ride still reported as REQUESTED.
func (s *Service) FindDrivers(ctx context.Context, rideID uuid.UUID) (*MatchResult, error) {
	ride, err := s.rides.Repo().GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	switch ride.Status {
	case models.RideStatusRequested, models.RideStatusMatching:
	default:
		return nil, common.NewInvalidStateError("ride is not matchable in status " + string(ride.Status))
	}

	ride, err = s.rides.Transition(ctx, rideID, models.RideStatusMatching, nil)
	if err != nil {
		return nil, err
	}

	candidates, err := s.geo.NearbyDrivers(ctx,
		ride.Tier, ride.PickupLatitude, ride.PickupLongitude,
		s.cfg.SearchRadiusKm, s.cfg.MaxOffersPerRound,
	)
	if err != nil {
		return nil, err
	}

	scored, err := s.scoreCandidates(ctx, candidates)
	if err != nil {
		return nil, err
	}

	if len(scored) == 0 {
		metrics.MatchingRounds.WithLabelValues("no_drivers").Inc()
		if _, err := s.rides.Transition(ctx, rideID, models.RideStatusRequested, nil); err != nil {
			logger.WarnContext(ctx, "failed to revert unmatched ride",
				zap.String("ride_id", rideID.String()),
				zap.Error(err),
			)
		}
		return &MatchResult{RideID: rideID, Candidates: []ScoredCandidate{}, Reason: "no drivers available"}, nil
	}

	expiresAt := time.Now().UTC().Add(s.cfg.OfferTTL())
	driverIDs := make([]uuid.UUID, 0, len(scored))
	for _, c := range scored {
		driverIDs = append(driverIDs, c.DriverID)
	}

	offers, err := s.offers.CreateOffers(ctx, rideID, driverIDs, expiresAt)
	if err != nil {
		return nil, err
	}

	distanceByDriver := make(map[uuid.UUID]float64, len(scored))
	for _, c := range scored {
		distanceByDriver[c.DriverID] = c.DistanceKm
	}
	for _, offer := range offers {
		s.publishOffer(ctx, ride, &offer, distanceByDriver[offer.DriverID])
		metrics.OffersSent.Inc()
	}
	metrics.MatchingRounds.WithLabelValues("offered").Inc()

	logger.InfoContext(ctx, "dispatch round complete",
		zap.String("ride_id", rideID.String()),
		zap.Int("candidates", len(scored)),
		zap.Int("offers_sent", len(offers)),
	)

	return &MatchResult{
		RideID:     rideID,
		Candidates: scored,
		OffersSent: len(offers),
		ExpiresAt:  &expiresAt,
	}, nil
}

// scoreCandidates bulk-loads the candidate drivers, keeps the online ones
// and ranks them. The sort key falls back to the driver id so a tied round
// always produces the same order.
func (s *Service) scoreCandidates(ctx context.Context, candidates []geo.Candidate) ([]ScoredCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.DriverID)
	}
	loaded, err := s.drivers.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		driver, ok := loaded[c.DriverID]
		if !ok || driver.Status != models.DriverStatusOnline {
			continue
		}
		scored = append(scored, ScoredCandidate{
			DriverID:   c.DriverID,
			DistanceKm: c.DistanceKm,
			Score:      Score(c.DistanceKm, driver.Rating, driver.AcceptanceRate),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].DriverID.String() < scored[j].DriverID.String()
	})
	return scored, nil
}

// Score combines proximity, rating and acceptance history into one ranking
// value in [0, 1].
func Score(distanceKm, rating, acceptanceRate float64) float64 {
	distanceScore := 1 / (1 + distanceKm)
	ratingScore := rating / 5
	acceptanceScore := acceptanceRate / 100
	return distanceWeight*distanceScore + ratingWeight*ratingScore + acceptanceWeight*acceptanceScore
}

// Accept resolves a driver's acceptance. The distributed lock sheds rival
// acceptances before they queue on the database; the row locks inside the
// transaction are the authoritative mutual exclusion. Exactly one driver
// wins; everyone else gets a Conflict.
func (s *Service) Accept(ctx context.Context, rideID, driverID uuid.UUID) (*models.Ride, error) {
	rideLock, err := s.locker.AcquireWithRetry(ctx, "ride:"+rideID.String(), s.cfg.LockLease, lockAcquireAttempts, lockRetryDelay)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, common.NewLockFailedError("ride is being assigned, retry shortly")
		}
		return nil, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := rideLock.Release(releaseCtx); err != nil {
			logger.Warn("failed to release ride lock", zap.String("ride_id", rideID.String()), zap.Error(err))
		}
	}()

	var ride *models.Ride
	var driver *models.Driver
	var previous models.RideStatus

	err = database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		r, err := s.rides.Repo().GetForUpdate(ctx, tx, rideID)
		if err != nil {
			return err
		}
		if r.Status != models.RideStatusMatching {
			if r.DriverID != nil {
				return common.NewConflictError("ride already assigned")
			}
			return common.NewInvalidStateError("ride is not accepting drivers in status " + string(r.Status))
		}

		d, err := s.drivers.GetOnlineForUpdate(ctx, tx, driverID)
		if err != nil {
			return err
		}

		pending, err := s.offers.HasPendingOffer(ctx, tx, rideID, driverID)
		if err != nil {
			return err
		}
		if !pending {
			return common.NewConflictError("no pending offer for this driver")
		}

		// Guards done, writes next. Renew the advisory lock if contended row
		// locks ate into the lease; losing it is not fatal since the row lock
		// is the authoritative exclusion.
		if err := rideLock.ExtendIfExpiring(ctx, s.cfg.LockLease/2); err != nil {
			logger.WarnContext(ctx, "failed to extend ride lock",
				zap.String("ride_id", rideID.String()),
				zap.Error(err),
			)
		}

		now := time.Now().UTC()
		previous = r.Status
		r.Status = models.RideStatusDriverAssigned
		r.DriverID = &driverID
		r.MatchedAt = &now
		if err := s.rides.Repo().ApplyTransition(ctx, tx, r); err != nil {
			return err
		}
		if err := s.drivers.MarkBusy(ctx, tx, driverID); err != nil {
			return err
		}
		if err := s.offers.AcceptOffer(ctx, tx, rideID, driverID); err != nil {
			return err
		}
		if _, err := s.offers.CancelPendingExcept(ctx, tx, rideID, driverID); err != nil {
			return err
		}

		ride = r
		driver = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.OffersResolved.WithLabelValues("accepted").Inc()

	// The winner is off the market: out of the geo index, caches refreshed,
	// active-ride mapping set.
	if err := s.geo.Index().RemoveDriver(ctx, driver.VehicleClass, driverID); err != nil {
		logger.WarnContext(ctx, "failed to remove assigned driver from geo index",
			zap.String("driver_id", driverID.String()),
			zap.Error(err),
		)
	}
	s.invalidateAfterAssignment(ctx, ride, driverID)

	s.rides.CacheRide(ctx, ride)
	s.rides.PublishStatusChanged(ctx, ride, previous)
	s.publishDriverAssigned(ctx, ride, driver)
	s.startSimulator(ctx, ride, driver)

	logger.InfoContext(ctx, "driver assigned",
		zap.String("ride_id", rideID.String()),
		zap.String("driver_id", driverID.String()),
	)
	return ride, nil
}

// Decline records a driver's refusal and recomputes their acceptance rate
// in the background; the rate is advisory, not part of any guard.
func (s *Service) Decline(ctx context.Context, rideID, driverID uuid.UUID, reason *string) error {
	declined, err := s.offers.Decline(ctx, rideID, driverID, reason)
	if err != nil {
		return err
	}
	if !declined {
		return common.NewConflictError("no pending offer to decline")
	}
	metrics.OffersResolved.WithLabelValues("declined").Inc()

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.drivers.RecomputeAcceptanceRate(bgCtx, driverID); err != nil {
			logger.Warn("failed to recompute acceptance rate",
				zap.String("driver_id", driverID.String()),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// PendingOffers lists the driver's live offers.
func (s *Service) PendingOffers(ctx context.Context, driverID uuid.UUID) ([]OfferDetail, error) {
	return s.offers.PendingByDriver(ctx, driverID)
}

// ExpireOffers sweeps pending offers past their expiry. Rides whose offers
// all expired stay in MATCHING; re-matching is caller-driven.
func (s *Service) ExpireOffers(ctx context.Context) (int64, error) {
	expired, err := s.offers.ExpirePending(ctx)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		metrics.OffersResolved.WithLabelValues("expired").Add(float64(expired))
		logger.Debug("expired stale offers", zap.Int64("count", expired))
	}
	return expired, nil
}

func (s *Service) invalidateAfterAssignment(ctx context.Context, ride *models.Ride, driverID uuid.UUID) {
	keys := []string{
		cache.Keys.Ride(ride.ID.String()),
		cache.Keys.Driver(driverID.String()),
		cache.Keys.Rider(ride.RiderID.String()),
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logger.WarnContext(ctx, "failed to invalidate caches after assignment", zap.Error(err))
	}
	s.geo.InvalidateMeta(ctx, driverID)

	if err := s.cache.Set(ctx, cache.Keys.DriverActiveRide(driverID.String()), ride.ID, cache.TTL.Long()); err != nil {
		logger.WarnContext(ctx, "failed to record active ride mapping", zap.Error(err))
	}
}

func (s *Service) startSimulator(ctx context.Context, ride *models.Ride, driver *models.Driver) {
	if s.sim == nil {
		return
	}

	// Start from the driver's indexed position, falling back to their last
	// reported location and finally the pickup point itself.
	lat, lng := ride.PickupLatitude, ride.PickupLongitude
	if lng2, lat2, ok, err := s.geo.Index().Position(ctx, driver.VehicleClass, driver.ID); err == nil && ok {
		lat, lng = lat2, lng2
	} else if sample, err := s.geo.LastKnownLocation(ctx, driver.ID); err == nil {
		lat, lng = sample.Latitude, sample.Longitude
	}
	s.sim.StartToPickup(ride, driver.VehicleClass, lat, lng)
}

func (s *Service) publish(ctx context.Context, topic, key, eventType string, data interface{}) {
	event, err := eventbus.NewEvent(eventType, "dispatch", data)
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

// publishOffer sends the offer to the candidate driver's notification
// stream, keyed by the driver so their offers arrive in order.
func (s *Service) publishOffer(ctx context.Context, ride *models.Ride, offer *models.RideOffer, pickupDistanceKm float64) {
	data := eventbus.RideOfferData{
		OfferID:          offer.ID,
		RideID:           ride.ID,
		DriverID:         offer.DriverID,
		PickupLatitude:   ride.PickupLatitude,
		PickupLongitude:  ride.PickupLongitude,
		DropoffLatitude:  ride.DropoffLatitude,
		DropoffLongitude: ride.DropoffLongitude,
		EstimatedFare:    ride.EstimatedFare,
		PickupDistanceKm: pickupDistanceKm,
		ExpiresAt:        offer.ExpiresAt,
	}
	if ride.PickupAddress != nil {
		data.PickupAddress = *ride.PickupAddress
	}
	if ride.DropoffAddress != nil {
		data.DropoffAddress = *ride.DropoffAddress
	}
	s.publish(ctx, eventbus.TopicNotifications, offer.DriverID.String(), eventbus.EventTypeRideOffer, data)
}

func (s *Service) publishDriverAssigned(ctx context.Context, ride *models.Ride, driver *models.Driver) {
	data := eventbus.DriverAssignedData{
		RideID:       ride.ID,
		RiderID:      ride.RiderID,
		DriverID:     driver.ID,
		VehicleClass: string(driver.VehicleClass),
		Rating:       driver.Rating,
		AssignedAt:   *ride.MatchedAt,
	}
	if driver.Name != nil {
		data.DriverName = *driver.Name
	}
	s.publish(ctx, eventbus.TopicNotifications, ride.RiderID.String(), eventbus.EventTypeDriverAssigned, data)
}
