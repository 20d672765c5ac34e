package geo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/models"
	redisclient "github.com/richxcame/dispatch/pkg/redis"
)

const driverGeoKeyPrefix = "drivers:geo:"

// Candidate is a driver returned from a nearby query.
type Candidate struct {
	DriverID   uuid.UUID
	DistanceKm float64
}

// DriverIndex maintains per-vehicle-class driver positions in Redis GEO
// sets. Keys are partitioned by class so nearby queries are tier-pure.
type DriverIndex struct {
	redis *redisclient.Client
}

// NewDriverIndex creates a geo index over the given Redis client.
func NewDriverIndex(redis *redisclient.Client) *DriverIndex {
	return &DriverIndex{redis: redis}
}

func classKey(class models.VehicleClass) string {
	return driverGeoKeyPrefix + string(class)
}

// AddDriver upserts a driver's position. Idempotent.
func (ix *DriverIndex) AddDriver(ctx context.Context, class models.VehicleClass, driverID uuid.UUID, longitude, latitude float64) error {
	if err := ix.redis.GeoAdd(ctx, classKey(class), longitude, latitude, driverID.String()); err != nil {
		return common.NewServiceUnavailableError("failed to update geo index", err)
	}
	return nil
}

// RemoveDriver removes a driver from one class index. Idempotent.
func (ix *DriverIndex) RemoveDriver(ctx context.Context, class models.VehicleClass, driverID uuid.UUID) error {
	if err := ix.redis.GeoRemove(ctx, classKey(class), driverID.String()); err != nil {
		return common.NewServiceUnavailableError("failed to remove driver from geo index", err)
	}
	return nil
}

// RemoveDriverEverywhere removes a driver from all class indexes. Used when
// the driver's class is unknown or may have changed.
func (ix *DriverIndex) RemoveDriverEverywhere(ctx context.Context, driverID uuid.UUID) error {
	for _, class := range []models.VehicleClass{models.VehicleClassEconomy, models.VehicleClassPremium, models.VehicleClassXL} {
		if err := ix.redis.GeoRemove(ctx, classKey(class), driverID.String()); err != nil {
			return common.NewServiceUnavailableError("failed to remove driver from geo index", err)
		}
	}
	return nil
}

// Nearby returns up to maxCount drivers of the given class within radiusKm
// of the point, sorted ascending by distance.
func (ix *DriverIndex) Nearby(ctx context.Context, class models.VehicleClass, longitude, latitude, radiusKm float64, maxCount int) ([]Candidate, error) {
	members, err := ix.redis.GeoRadius(ctx, classKey(class), longitude, latitude, radiusKm, maxCount)
	if err != nil {
		return nil, common.NewServiceUnavailableError("failed to query geo index", err)
	}

	candidates := make([]Candidate, 0, len(members))
	for _, m := range members {
		driverID, err := uuid.Parse(m.Name)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{DriverID: driverID, DistanceKm: m.DistanceKm})
	}
	return candidates, nil
}

// Position returns a driver's indexed position, or ok=false when absent.
func (ix *DriverIndex) Position(ctx context.Context, class models.VehicleClass, driverID uuid.UUID) (longitude, latitude float64, ok bool, err error) {
	lng, lat, ok, err := ix.redis.GeoPos(ctx, classKey(class), driverID.String())
	if err != nil {
		return 0, 0, false, fmt.Errorf("geo pos: %w", err)
	}
	return lng, lat, ok, nil
}
