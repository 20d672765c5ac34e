package geo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/dispatch/pkg/models"
)

// Repository persists location telemetry.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a location repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// BulkInsertSamples appends a batch of samples with a single COPY.
func (r *Repository) BulkInsertSamples(ctx context.Context, samples []models.DriverLocationSample) error {
	if len(samples) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, []interface{}{
			s.DriverID, s.Latitude, s.Longitude, s.Heading, s.Speed, s.Accuracy, s.RecordedAt,
		})
	}

	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"driver_locations"},
		[]string{"driver_id", "latitude", "longitude", "heading", "speed", "accuracy", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("bulk insert driver locations: %w", err)
	}
	return nil
}

// LatestPerDriver returns the most recent sample for every driver. Used to
// restore the geo index on startup.
func (r *Repository) LatestPerDriver(ctx context.Context) ([]models.DriverLocationSample, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (driver_id)
			driver_id, latitude, longitude, heading, speed, accuracy, recorded_at
		FROM driver_locations
		ORDER BY driver_id, recorded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query latest locations: %w", err)
	}
	defer rows.Close()

	var samples []models.DriverLocationSample
	for rows.Next() {
		var s models.DriverLocationSample
		if err := rows.Scan(&s.DriverID, &s.Latitude, &s.Longitude, &s.Heading, &s.Speed, &s.Accuracy, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan location sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
