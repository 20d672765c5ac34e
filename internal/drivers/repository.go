package drivers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/dispatch/internal/geo"
	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/models"
)

const driverColumns = `id, tenant_id, phone, name, vehicle_id, vehicle_class, status,
	rating, total_rides, acceptance_rate, created_at, updated_at`

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles database operations for drivers
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new drivers repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanDriver(row pgx.Row) (*models.Driver, error) {
	driver := &models.Driver{}
	err := row.Scan(
		&driver.ID,
		&driver.TenantID,
		&driver.Phone,
		&driver.Name,
		&driver.VehicleID,
		&driver.VehicleClass,
		&driver.Status,
		&driver.Rating,
		&driver.TotalRides,
		&driver.AcceptanceRate,
		&driver.CreatedAt,
		&driver.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("driver not found", err)
		}
		return nil, fmt.Errorf("failed to scan driver: %w", err)
	}
	return driver, nil
}

// GetByID retrieves a driver by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	query := fmt.Sprintf(`SELECT %s FROM drivers WHERE id = $1`, driverColumns)
	return scanDriver(r.db.QueryRow(ctx, query, id))
}

// GetByIDs bulk-loads drivers for matching. Missing IDs are simply absent
// from the result map.
func (r *Repository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Driver, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*models.Driver{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM drivers WHERE id = ANY($1)`, driverColumns)
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk load drivers: %w", err)
	}
	defer rows.Close()

	drivers := make(map[uuid.UUID]*models.Driver, len(ids))
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers[driver.ID] = driver
	}
	return drivers, rows.Err()
}

// GetOnlineForUpdate row-locks an online driver inside the caller's
// transaction. SKIP LOCKED means a driver already being assigned elsewhere
// comes back empty instead of blocking; callers treat that as unavailable.
func (r *Repository) GetOnlineForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*models.Driver, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM drivers
		WHERE id = $1 AND status = 'online'
		FOR UPDATE SKIP LOCKED`, driverColumns)
	driver, err := scanDriver(q.QueryRow(ctx, query, id))
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) && appErr.ErrorCode == common.CodeNotFound {
			return nil, common.NewConflictError("driver unavailable")
		}
		return nil, err
	}
	return driver, nil
}

// MarkBusy flips a driver to busy inside the acceptance transaction.
func (r *Repository) MarkBusy(ctx context.Context, q Querier, id uuid.UUID) error {
	if _, err := q.Exec(ctx,
		`UPDATE drivers SET status = 'busy', updated_at = NOW() WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("failed to mark driver busy: %w", err)
	}
	return nil
}

// DriverMeta loads the metadata slice the location ingest path caches.
// Implements geo.DriverMetaProvider.
func (r *Repository) DriverMeta(ctx context.Context, driverID uuid.UUID) (*geo.DriverMeta, error) {
	meta := &geo.DriverMeta{}
	err := r.db.QueryRow(ctx,
		`SELECT id, tenant_id, vehicle_class, status FROM drivers WHERE id = $1`,
		driverID,
	).Scan(&meta.DriverID, &meta.TenantID, &meta.VehicleClass, &meta.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("driver not found", err)
		}
		return nil, fmt.Errorf("failed to load driver meta: %w", err)
	}
	return meta, nil
}

// SetStatus updates a driver's availability. The notBusy guard refuses the
// write when the driver is busy; accept/complete paths bypass it inside
// their own transactions.
func (r *Repository) SetStatus(ctx context.Context, driverID uuid.UUID, status models.DriverStatus, notBusy bool) error {
	query := `UPDATE drivers SET status = $2, updated_at = NOW() WHERE id = $1`
	if notBusy {
		query += ` AND status != 'busy'`
	}

	tag, err := r.db.Exec(ctx, query, driverID, status)
	if err != nil {
		return fmt.Errorf("failed to update driver status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the driver does not exist or they are mid-ride.
		if _, err := r.GetByID(ctx, driverID); err != nil {
			return err
		}
		return common.NewConflictError("driver is busy with an active ride")
	}
	return nil
}

// RecomputeAcceptanceRate derives the acceptance rate from the driver's
// resolved offer history. Drivers with no history keep 100.
func (r *Repository) RecomputeAcceptanceRate(ctx context.Context, driverID uuid.UUID) error {
	query := `
		UPDATE drivers SET acceptance_rate = sub.rate, updated_at = NOW()
		FROM (
			SELECT COALESCE(
				100.0 * SUM(CASE WHEN status = 'accepted' THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0),
				100.0
			) AS rate
			FROM ride_offers
			WHERE driver_id = $1 AND status IN ('accepted', 'declined', 'expired')
		) sub
		WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, driverID); err != nil {
		return fmt.Errorf("failed to recompute acceptance rate: %w", err)
	}
	return nil
}
