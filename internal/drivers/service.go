package drivers

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/internal/geo"
	"github.com/richxcame/dispatch/pkg/cache"
	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/logger"
	"github.com/richxcame/dispatch/pkg/models"
)

// UpdateStatusRequest toggles driver availability.
type UpdateStatusRequest struct {
	Status models.DriverStatus `json:"status" validate:"required,driver_status"`
}

// Service handles driver availability and profile reads.
type Service struct {
	repo  *Repository
	geo   *geo.Service
	cache *cache.Manager
}

// NewService creates a drivers service.
func NewService(repo *Repository, geoService *geo.Service, cacheManager *cache.Manager) *Service {
	return &Service{repo: repo, geo: geoService, cache: cacheManager}
}

// GetDriver returns a driver profile through the cache.
func (s *Service) GetDriver(ctx context.Context, driverID uuid.UUID) (*models.Driver, error) {
	var driver models.Driver
	err := s.cache.GetOrSet(ctx, cache.Keys.Driver(driverID.String()), cache.TTL.Medium(), &driver, func() (interface{}, error) {
		return s.repo.GetByID(ctx, driverID)
	})
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

// UpdateStatus moves a driver between online and offline. Busy is owned by
// the acceptance and trip paths and cannot be requested directly.
func (s *Service) UpdateStatus(ctx context.Context, driverID uuid.UUID, status models.DriverStatus) (*models.Driver, error) {
	if !status.Valid() {
		return nil, common.NewValidationError("invalid driver status")
	}
	if status == models.DriverStatusBusy {
		return nil, common.NewBadRequestError("status busy cannot be set directly", nil)
	}

	if err := s.repo.SetStatus(ctx, driverID, status, true); err != nil {
		return nil, err
	}
	s.Invalidate(ctx, driverID)

	switch status {
	case models.DriverStatusOnline:
		// Re-add with the last known position if there is one; otherwise the
		// driver enters the index with their first location report.
		if sample, err := s.geo.LastKnownLocation(ctx, driverID); err == nil {
			meta, metaErr := s.geo.Meta(ctx, driverID)
			if metaErr == nil {
				if err := s.geo.Index().AddDriver(ctx, meta.VehicleClass, driverID, sample.Longitude, sample.Latitude); err != nil {
					logger.WarnContext(ctx, "failed to re-add driver to geo index",
						zap.String("driver_id", driverID.String()),
						zap.Error(err),
					)
				}
			}
		}
	case models.DriverStatusOffline:
		if err := s.geo.Index().RemoveDriverEverywhere(ctx, driverID); err != nil {
			logger.WarnContext(ctx, "failed to remove driver from geo index",
				zap.String("driver_id", driverID.String()),
				zap.Error(err),
			)
		}
	}

	return s.repo.GetByID(ctx, driverID)
}

// Invalidate drops the driver's cached profile and ingest metadata.
func (s *Service) Invalidate(ctx context.Context, driverID uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.Keys.Driver(driverID.String())); err != nil {
		logger.WarnContext(ctx, "failed to invalidate driver cache",
			zap.String("driver_id", driverID.String()),
			zap.Error(err),
		)
	}
	s.geo.InvalidateMeta(ctx, driverID)
}

// Repo exposes the repository to services that share driver writes.
func (s *Service) Repo() *Repository {
	return s.repo
}
