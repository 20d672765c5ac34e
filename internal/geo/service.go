package geo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/pkg/cache"
	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/eventbus"
	"github.com/richxcame/dispatch/pkg/logger"
	"github.com/richxcame/dispatch/pkg/metrics"
	"github.com/richxcame/dispatch/pkg/models"
	"github.com/richxcame/dispatch/pkg/validation"
)

// DriverMeta is the slice of driver state the ingest path needs. Cached for
// five minutes; the authoritative row lives in the drivers table.
type DriverMeta struct {
	DriverID     uuid.UUID           `json:"driver_id"`
	TenantID     uuid.UUID           `json:"tenant_id"`
	VehicleClass models.VehicleClass `json:"vehicle_class"`
	Status       models.DriverStatus `json:"status"`
}

// DriverMetaProvider loads driver metadata on cache miss.
type DriverMetaProvider interface {
	DriverMeta(ctx context.Context, driverID uuid.UUID) (*DriverMeta, error)
}

// Publisher publishes events to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event *eventbus.Event) error
}

// UpdateLocationRequest is a single telemetry sample from a driver.
type UpdateLocationRequest struct {
	Latitude  float64  `json:"latitude" validate:"latitude"`
	Longitude float64  `json:"longitude" validate:"longitude"`
	Heading   *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	Speed     *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Accuracy  *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
}

// Service handles location ingest: it keeps the live geo index current for
// online drivers, batches history writes, and republishes telemetry on the
// bus.
type Service struct {
	index   *DriverIndex
	cache   *cache.Manager
	buffer  *LocationBuffer
	bus     Publisher
	drivers DriverMetaProvider
}

// NewService creates a location ingest service.
func NewService(index *DriverIndex, cacheManager *cache.Manager, buffer *LocationBuffer, bus Publisher, drivers DriverMetaProvider) *Service {
	return &Service{
		index:   index,
		cache:   cacheManager,
		buffer:  buffer,
		bus:     bus,
		drivers: drivers,
	}
}

// Index exposes the underlying driver index to other services.
func (s *Service) Index() *DriverIndex {
	return s.index
}

// UpdateLocation ingests one telemetry sample. The geo index write is
// synchronous so matching sees the new position immediately; the history
// append is batched and the bus publish is best-effort.
func (s *Service) UpdateLocation(ctx context.Context, driverID uuid.UUID, req *UpdateLocationRequest) error {
	if err := validation.ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		return common.NewValidationError(err.Error())
	}

	meta, err := s.Meta(ctx, driverID)
	if err != nil {
		return err
	}

	if meta.Status == models.DriverStatusOnline {
		if err := s.index.AddDriver(ctx, meta.VehicleClass, driverID, req.Longitude, req.Latitude); err != nil {
			return err
		}
	}

	sample := models.DriverLocationSample{
		DriverID:   driverID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Heading:    req.Heading,
		Speed:      req.Speed,
		Accuracy:   req.Accuracy,
		RecordedAt: time.Now().UTC(),
	}
	s.buffer.Enqueue(sample)

	// Last-known location backs geo re-adds after cancellation.
	if err := s.cache.Set(ctx, cache.Keys.DriverLocation(driverID.String()), sample, cache.TTL.Short()); err != nil {
		logger.WarnContext(ctx, "failed to cache driver location",
			zap.String("driver_id", driverID.String()),
			zap.Error(err),
		)
	}

	s.publishLocationUpdate(ctx, meta, sample)
	metrics.LocationUpdates.Inc()
	return nil
}

func (s *Service) publishLocationUpdate(ctx context.Context, meta *DriverMeta, sample models.DriverLocationSample) {
	data := eventbus.LocationUpdateData{
		DriverID:     sample.DriverID,
		TenantID:     meta.TenantID,
		Latitude:     sample.Latitude,
		Longitude:    sample.Longitude,
		Heading:      sample.Heading,
		Speed:        sample.Speed,
		Accuracy:     sample.Accuracy,
		VehicleClass: string(meta.VehicleClass),
		Status:       string(meta.Status),
		RecordedAt:   sample.RecordedAt,
	}

	event, err := eventbus.NewEvent(eventbus.EventTypeLocationUpdate, "location-ingest", data)
	if err != nil {
		logger.WarnContext(ctx, "failed to build location event", zap.Error(err))
		return
	}

	if err := s.bus.Publish(ctx, eventbus.TopicLocationUpdates, meta.TenantID.String(), event); err != nil {
		logger.WarnContext(ctx, "failed to publish location update",
			zap.String("driver_id", sample.DriverID.String()),
			zap.Error(err),
		)
	}
}

// Meta resolves driver metadata through the cache with a store fallback.
func (s *Service) Meta(ctx context.Context, driverID uuid.UUID) (*DriverMeta, error) {
	var meta DriverMeta
	err := s.cache.GetOrSet(ctx, cache.Keys.DriverMeta(driverID.String()), cache.TTL.Short(), &meta, func() (interface{}, error) {
		return s.drivers.DriverMeta(ctx, driverID)
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// InvalidateMeta drops the cached metadata after a driver status or class
// change.
func (s *Service) InvalidateMeta(ctx context.Context, driverID uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.Keys.DriverMeta(driverID.String())); err != nil {
		logger.WarnContext(ctx, "failed to invalidate driver meta",
			zap.String("driver_id", driverID.String()),
			zap.Error(err),
		)
	}
}

// LastKnownLocation returns the driver's most recent cached position.
func (s *Service) LastKnownLocation(ctx context.Context, driverID uuid.UUID) (*models.DriverLocationSample, error) {
	var sample models.DriverLocationSample
	err := s.cache.Get(ctx, cache.Keys.DriverLocation(driverID.String()), &sample)
	if err != nil {
		if err == cache.ErrMiss {
			return nil, common.NewNotFoundError("driver location not found", nil)
		}
		return nil, err
	}
	return &sample, nil
}

// NearbyDrivers queries the geo index for the closest drivers of a class.
func (s *Service) NearbyDrivers(ctx context.Context, class models.VehicleClass, latitude, longitude, radiusKm float64, limit int) ([]Candidate, error) {
	if !class.Valid() {
		return nil, common.NewValidationError("invalid vehicle class")
	}
	if err := validation.ValidateCoordinates(latitude, longitude); err != nil {
		return nil, common.NewValidationError(err.Error())
	}
	return s.index.Nearby(ctx, class, longitude, latitude, radiusKm, limit)
}

// RestoreIndex rebuilds the geo index from the latest persisted sample per
// driver. Called once on startup; only online drivers are indexed.
func (s *Service) RestoreIndex(ctx context.Context, repo *Repository) error {
	samples, err := repo.LatestPerDriver(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for _, sample := range samples {
		meta, err := s.drivers.DriverMeta(ctx, sample.DriverID)
		if err != nil {
			continue
		}
		if meta.Status != models.DriverStatusOnline {
			continue
		}
		if err := s.index.AddDriver(ctx, meta.VehicleClass, sample.DriverID, sample.Longitude, sample.Latitude); err != nil {
			logger.Warn("failed to restore driver position",
				zap.String("driver_id", sample.DriverID.String()),
				zap.Error(err),
			)
			continue
		}
		restored++
	}

	logger.Info("geo index restored",
		zap.Int("drivers", restored),
		zap.Int("samples", len(samples)),
	)
	return nil
}

// Stop flushes buffered samples synchronously.
func (s *Service) Stop() {
	s.buffer.Stop()
}
