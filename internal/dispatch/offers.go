package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/dispatch/pkg/models"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OfferDetail is a pending offer enriched with the ride context the driver
// needs to decide.
type OfferDetail struct {
	models.RideOffer
	PickupLatitude   float64 `json:"pickup_latitude"`
	PickupLongitude  float64 `json:"pickup_longitude"`
	PickupAddress    *string `json:"pickup_address,omitempty"`
	DropoffLatitude  float64 `json:"dropoff_latitude"`
	DropoffLongitude float64 `json:"dropoff_longitude"`
	DropoffAddress   *string `json:"dropoff_address,omitempty"`
	EstimatedFare    float64 `json:"estimated_fare"`
	Tier             string  `json:"tier"`
}

// OfferRepository handles database operations for ride offers
type OfferRepository struct {
	db *pgxpool.Pool
}

// NewOfferRepository creates a new offers repository
func NewOfferRepository(db *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{db: db}
}

// CreateOffers inserts one pending offer per driver. The conflict target is
// (ride_id, driver_id) so re-running matching never duplicates an offer: a
// still-pending offer is left alone, an expired or cancelled one is re-armed
// for the new round, and a declined or accepted one stays settled. Only the
// offers live after this round are returned.
func (r *OfferRepository) CreateOffers(ctx context.Context, rideID uuid.UUID, driverIDs []uuid.UUID, expiresAt time.Time) ([]models.RideOffer, error) {
	if len(driverIDs) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, driverID := range driverIDs {
		batch.Queue(`
			INSERT INTO ride_offers (id, ride_id, driver_id, status, offered_at, expires_at)
			VALUES ($1, $2, $3, 'pending', NOW(), $4)
			ON CONFLICT (ride_id, driver_id) DO UPDATE
			SET status = 'pending', offered_at = NOW(), expires_at = EXCLUDED.expires_at,
				responded_at = NULL, decline_reason = NULL
			WHERE ride_offers.status IN ('expired', 'cancelled')
			RETURNING id, ride_id, driver_id, status, offered_at, expires_at`,
			uuid.New(), rideID, driverID, expiresAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	offers := make([]models.RideOffer, 0, len(driverIDs))
	for range driverIDs {
		var offer models.RideOffer
		err := results.QueryRow().Scan(
			&offer.ID, &offer.RideID, &offer.DriverID,
			&offer.Status, &offer.OfferedAt, &offer.ExpiresAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			// Offer already existed from a previous matching round.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create ride offer: %w", err)
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// PendingByDriver lists the driver's live offers with ride context.
func (r *OfferRepository) PendingByDriver(ctx context.Context, driverID uuid.UUID) ([]OfferDetail, error) {
	rows, err := r.db.Query(ctx, `
		SELECT o.id, o.ride_id, o.driver_id, o.status, o.offered_at, o.expires_at,
			o.responded_at, o.decline_reason,
			r.pickup_latitude, r.pickup_longitude, r.pickup_address,
			r.dropoff_latitude, r.dropoff_longitude, r.dropoff_address,
			r.estimated_fare, r.tier
		FROM ride_offers o
		JOIN rides r ON r.id = o.ride_id
		WHERE o.driver_id = $1 AND o.status = 'pending' AND o.expires_at > NOW()
		ORDER BY o.offered_at DESC`, driverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending offers: %w", err)
	}
	defer rows.Close()

	offers := make([]OfferDetail, 0)
	for rows.Next() {
		var o OfferDetail
		if err := rows.Scan(
			&o.ID, &o.RideID, &o.DriverID, &o.Status, &o.OfferedAt, &o.ExpiresAt,
			&o.RespondedAt, &o.DeclineReason,
			&o.PickupLatitude, &o.PickupLongitude, &o.PickupAddress,
			&o.DropoffLatitude, &o.DropoffLongitude, &o.DropoffAddress,
			&o.EstimatedFare, &o.Tier,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// HasPendingOffer reports whether a live offer exists for (ride, driver).
// Runs inside the acceptance transaction.
func (r *OfferRepository) HasPendingOffer(ctx context.Context, q Querier, rideID, driverID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ride_offers
			WHERE ride_id = $1 AND driver_id = $2 AND status = 'pending' AND expires_at > NOW()
		)`, rideID, driverID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending offer: %w", err)
	}
	return exists, nil
}

// AcceptOffer marks the winning offer accepted; the caller's transaction
// also cancels the rest.
func (r *OfferRepository) AcceptOffer(ctx context.Context, q Querier, rideID, driverID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE ride_offers SET status = 'accepted', responded_at = NOW()
		WHERE ride_id = $1 AND driver_id = $2 AND status = 'pending'`,
		rideID, driverID)
	if err != nil {
		return fmt.Errorf("failed to accept offer: %w", err)
	}
	return nil
}

// CancelPendingExcept cancels every other pending offer for the ride once a
// driver has won it.
func (r *OfferRepository) CancelPendingExcept(ctx context.Context, q Querier, rideID, winnerID uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE ride_offers SET status = 'cancelled', responded_at = NOW()
		WHERE ride_id = $1 AND driver_id != $2 AND status = 'pending'`,
		rideID, winnerID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel losing offers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Decline marks a pending offer declined. Returns false when no pending
// offer was there to decline.
func (r *OfferRepository) Decline(ctx context.Context, rideID, driverID uuid.UUID, reason *string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE ride_offers SET status = 'declined', responded_at = NOW(), decline_reason = $3
		WHERE ride_id = $1 AND driver_id = $2 AND status = 'pending'`,
		rideID, driverID, reason)
	if err != nil {
		return false, fmt.Errorf("failed to decline offer: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExpirePending sweeps offers past their expiry into the expired state.
func (r *OfferRepository) ExpirePending(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE ride_offers SET status = 'expired'
		WHERE status = 'pending' AND expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to expire offers: %w", err)
	}
	return tag.RowsAffected(), nil
}
