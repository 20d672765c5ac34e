package trips

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/database"
	"github.com/richxcame/dispatch/pkg/models"
)

const tripColumns = `id, ride_id, status, started_at, ended_at,
	actual_distance_km, actual_duration_mins, route_polyline,
	fare_base, fare_distance, fare_time, fare_surge, fare_taxes, fare_total, fare_currency,
	created_at, updated_at`

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles database operations for trips
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new trips repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanTrip(row pgx.Row) (*models.Trip, error) {
	trip := &models.Trip{}
	var base, distance, timeFare, surge, taxes, total *float64
	var currency *string

	err := row.Scan(
		&trip.ID,
		&trip.RideID,
		&trip.Status,
		&trip.StartedAt,
		&trip.EndedAt,
		&trip.ActualDistance,
		&trip.ActualDuration,
		&trip.RoutePolyline,
		&base, &distance, &timeFare, &surge, &taxes, &total, &currency,
		&trip.CreatedAt,
		&trip.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("trip not found", err)
		}
		return nil, fmt.Errorf("failed to scan trip: %w", err)
	}

	if total != nil {
		trip.Fare = &models.FareBreakdown{
			Base:     *base,
			Distance: *distance,
			Time:     *timeFare,
			Surge:    *surge,
			Taxes:    *taxes,
			Total:    *total,
			Currency: *currency,
		}
	}
	return trip, nil
}

// Create inserts a new trip inside the caller's transaction.
func (r *Repository) Create(ctx context.Context, q Querier, trip *models.Trip) error {
	err := q.QueryRow(ctx, `
		INSERT INTO trips (id, ride_id, status, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		trip.ID, trip.RideID, trip.Status, trip.StartedAt,
	).Scan(&trip.CreatedAt, &trip.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return common.NewConflictError("trip already exists for this ride")
		}
		return fmt.Errorf("failed to create trip: %w", err)
	}
	return nil
}

// GetByID retrieves a trip by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	query := fmt.Sprintf(`SELECT %s FROM trips WHERE id = $1`, tripColumns)
	return scanTrip(r.db.QueryRow(ctx, query, id))
}

// GetByRideID retrieves the trip belonging to a ride (1:1).
func (r *Repository) GetByRideID(ctx context.Context, rideID uuid.UUID) (*models.Trip, error) {
	query := fmt.Sprintf(`SELECT %s FROM trips WHERE ride_id = $1`, tripColumns)
	return scanTrip(r.db.QueryRow(ctx, query, rideID))
}

// GetForUpdate loads a trip under FOR UPDATE NOWAIT inside the caller's
// transaction.
func (r *Repository) GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*models.Trip, error) {
	query := fmt.Sprintf(`SELECT %s FROM trips WHERE id = $1 FOR UPDATE NOWAIT`, tripColumns)
	trip, err := scanTrip(q.QueryRow(ctx, query, id))
	if err != nil {
		if database.IsLockNotAvailable(err) {
			return nil, common.NewLockFailedError("trip is locked by another operation")
		}
		return nil, err
	}
	return trip, nil
}

// Complete persists the trip's terminal state with its fare breakdown inside
// the caller's transaction.
func (r *Repository) Complete(ctx context.Context, q Querier, trip *models.Trip) error {
	err := q.QueryRow(ctx, `
		UPDATE trips SET
			status = $2,
			ended_at = $3,
			actual_distance_km = $4,
			actual_duration_mins = $5,
			route_polyline = $6,
			fare_base = $7, fare_distance = $8, fare_time = $9,
			fare_surge = $10, fare_taxes = $11, fare_total = $12, fare_currency = $13,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		trip.ID, trip.Status, trip.EndedAt,
		trip.ActualDistance, trip.ActualDuration, trip.RoutePolyline,
		trip.Fare.Base, trip.Fare.Distance, trip.Fare.Time,
		trip.Fare.Surge, trip.Fare.Taxes, trip.Fare.Total, trip.Fare.Currency,
	).Scan(&trip.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to complete trip: %w", err)
	}
	return nil
}
