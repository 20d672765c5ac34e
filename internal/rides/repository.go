package rides

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

const rideColumns = `id, tenant_id, rider_id, driver_id, status,
	pickup_latitude, pickup_longitude, pickup_address,
	dropoff_latitude, dropoff_longitude, dropoff_address,
	tier, payment_method, surge_multiplier,
	estimated_fare, estimated_distance_km, estimated_duration_mins,
	version, created_at, updated_at, matched_at, cancelled_at, cancel_reason`

// Querier is satisfied by *pgxpool.Pool and pgx.Tx, letting repository
// methods run standalone or inside a caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles database operations for rides
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new rides repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanRide(row pgx.Row) (*models.Ride, error) {
	ride := &models.Ride{}
	err := row.Scan(
		&ride.ID,
		&ride.TenantID,
		&ride.RiderID,
		&ride.DriverID,
		&ride.Status,
		&ride.PickupLatitude,
		&ride.PickupLongitude,
		&ride.PickupAddress,
		&ride.DropoffLatitude,
		&ride.DropoffLongitude,
		&ride.DropoffAddress,
		&ride.Tier,
		&ride.PaymentMethod,
		&ride.SurgeMultiplier,
		&ride.EstimatedFare,
		&ride.EstimatedDistance,
		&ride.EstimatedDuration,
		&ride.Version,
		&ride.CreatedAt,
		&ride.UpdatedAt,
		&ride.MatchedAt,
		&ride.CancelledAt,
		&ride.CancelReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("ride not found", err)
		}
		return nil, fmt.Errorf("failed to scan ride: %w", err)
	}
	return ride, nil
}

// Create inserts a new ride at version 1.
func (r *Repository) Create(ctx context.Context, ride *models.Ride) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO rides (
			id, tenant_id, rider_id, status,
			pickup_latitude, pickup_longitude, pickup_address,
			dropoff_latitude, dropoff_longitude, dropoff_address,
			tier, payment_method, surge_multiplier,
			estimated_fare, estimated_distance_km, estimated_duration_mins, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1)
		RETURNING version, created_at, updated_at`,
		ride.ID, ride.TenantID, ride.RiderID, ride.Status,
		ride.PickupLatitude, ride.PickupLongitude, ride.PickupAddress,
		ride.DropoffLatitude, ride.DropoffLongitude, ride.DropoffAddress,
		ride.Tier, ride.PaymentMethod, ride.SurgeMultiplier,
		ride.EstimatedFare, ride.EstimatedDistance, ride.EstimatedDuration,
	).Scan(&ride.Version, &ride.CreatedAt, &ride.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}
	return nil
}

// GetByID retrieves a ride by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ride, error) {
	query := fmt.Sprintf(`SELECT %s FROM rides WHERE id = $1`, rideColumns)
	return scanRide(r.db.QueryRow(ctx, query, id))
}

// GetForUpdate loads a ride under FOR UPDATE NOWAIT inside the caller's
// transaction. A held row lock surfaces as LOCK_FAILED instead of queueing.
func (r *Repository) GetForUpdate(ctx context.Context, tx Querier, id uuid.UUID) (*models.Ride, error) {
	query := fmt.Sprintf(`SELECT %s FROM rides WHERE id = $1 FOR UPDATE NOWAIT`, rideColumns)
	ride, err := scanRide(tx.QueryRow(ctx, query, id))
	if err != nil {
		if database.IsLockNotAvailable(err) {
			return nil, common.NewLockFailedError("ride is locked by another operation")
		}
		return nil, err
	}
	return ride, nil
}

// ApplyTransition persists the ride's mutated fields and bumps the version
// by exactly one. The version guard makes concurrent writers lose cleanly
// even outside row locks.
func (r *Repository) ApplyTransition(ctx context.Context, q Querier, ride *models.Ride) error {
	err := q.QueryRow(ctx, `
		UPDATE rides SET
			status = $3,
			driver_id = $4,
			matched_at = $5,
			cancelled_at = $6,
			cancel_reason = $7,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		ride.ID, ride.Version, ride.Status, ride.DriverID,
		ride.MatchedAt, ride.CancelledAt, ride.CancelReason,
	).Scan(&ride.Version, &ride.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.NewConflictError("ride was modified concurrently")
		}
		return fmt.Errorf("failed to apply ride transition: %w", err)
	}
	return nil
}

// ActiveByRider returns the rider's most recent non-terminal ride.
func (r *Repository) ActiveByRider(ctx context.Context, riderID uuid.UUID) (*models.Ride, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM rides
		WHERE rider_id = $1 AND status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY created_at DESC
		LIMIT 1`, rideColumns)
	return scanRide(r.db.QueryRow(ctx, query, riderID))
}

// ActiveByDriver returns the ride the driver is currently serving.
func (r *Repository) ActiveByDriver(ctx context.Context, driverID uuid.UUID) (*models.Ride, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM rides
		WHERE driver_id = $1
		  AND status IN ('DRIVER_ASSIGNED', 'DRIVER_EN_ROUTE', 'DRIVER_ARRIVED', 'IN_PROGRESS')
		ORDER BY created_at DESC
		LIMIT 1`, rideColumns)
	return scanRide(r.db.QueryRow(ctx, query, driverID))
}

// ListByRider returns a page of the rider's rides plus the filtered total.
func (r *Repository) ListByRider(ctx context.Context, riderID uuid.UUID, status *models.RideStatus, limit, offset int) ([]models.Ride, int64, error) {
	return r.list(ctx, "rider_id", riderID, status, limit, offset)
}

// ListByDriver returns a page of the driver's rides plus the filtered total.
func (r *Repository) ListByDriver(ctx context.Context, driverID uuid.UUID, status *models.RideStatus, limit, offset int) ([]models.Ride, int64, error) {
	return r.list(ctx, "driver_id", driverID, status, limit, offset)
}

func (r *Repository) list(ctx context.Context, column string, userID uuid.UUID, status *models.RideStatus, limit, offset int) ([]models.Ride, int64, error) {
	filter := fmt.Sprintf("WHERE %s = $1", column)
	args := []any{userID}
	if status != nil {
		filter += " AND status = $2"
		args = append(args, *status)
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM rides %s", filter)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rides: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM rides %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, rideColumns, filter, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rides: %w", err)
	}
	defer rows.Close()

	rides := make([]models.Ride, 0, limit)
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, 0, err
		}
		rides = append(rides, *ride)
	}
	return rides, total, rows.Err()
}
