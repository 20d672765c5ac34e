package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/models"
)

const paymentColumns = `id, trip_id, amount, currency, method, status, psp_ref, psp_response,
	idempotency_key, created_at, completed_at, refunded_at, refund_reason`

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TripContext is the settlement slice of a trip joined with its ride.
type TripContext struct {
	TripID     uuid.UUID
	TripStatus models.TripStatus
	RideID     uuid.UUID
	TenantID   uuid.UUID
	RiderID    uuid.UUID
	DriverID   *uuid.UUID
	Method     models.PaymentMethod
	Amount     *float64
	Currency   *string
}

// Repository handles database operations for payments
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new payments repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	payment := &models.Payment{}
	err := row.Scan(
		&payment.ID,
		&payment.TripID,
		&payment.Amount,
		&payment.Currency,
		&payment.Method,
		&payment.Status,
		&payment.PSPRef,
		&payment.PSPResponse,
		&payment.IdempotencyKey,
		&payment.CreatedAt,
		&payment.CompletedAt,
		&payment.RefundedAt,
		&payment.RefundReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("payment not found", err)
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return payment, nil
}

// GetByID retrieves a payment by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, id))
}

// GetByTripForUpdate row-locks the trip's payment inside the caller's
// transaction. Returns NotFound when the trip has no payment yet.
func (r *Repository) GetByTripForUpdate(ctx context.Context, q Querier, tripID uuid.UUID) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE trip_id = $1 FOR UPDATE`, paymentColumns)
	return scanPayment(q.QueryRow(ctx, query, tripID))
}

// TripContextForUpdate loads the settlement context, row-locking the trip so
// a concurrent dispute or re-completion cannot slide under the payment.
func (r *Repository) TripContextForUpdate(ctx context.Context, q Querier, tripID uuid.UUID) (*TripContext, error) {
	tc := &TripContext{}
	err := q.QueryRow(ctx, `
		SELECT t.id, t.status, t.fare_total, t.fare_currency,
			r.id, r.tenant_id, r.rider_id, r.driver_id, r.payment_method
		FROM trips t
		JOIN rides r ON r.id = t.ride_id
		WHERE t.id = $1
		FOR UPDATE OF t`, tripID,
	).Scan(
		&tc.TripID, &tc.TripStatus, &tc.Amount, &tc.Currency,
		&tc.RideID, &tc.TenantID, &tc.RiderID, &tc.DriverID, &tc.Method,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("trip not found", err)
		}
		return nil, fmt.Errorf("failed to load trip settlement context: %w", err)
	}
	return tc, nil
}

// Create inserts a payment in its initial processing state. The unique
// constraint on idempotency_key turns a replay race into a Conflict.
func (r *Repository) Create(ctx context.Context, q Querier, payment *models.Payment) error {
	err := q.QueryRow(ctx, `
		INSERT INTO payments (id, trip_id, amount, currency, method, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		payment.ID, payment.TripID, payment.Amount, payment.Currency,
		payment.Method, payment.Status, payment.IdempotencyKey,
	).Scan(&payment.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return common.NewIdempotencyConflictError("idempotency key already used")
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// Reattempt rebinds a failed payment to a fresh idempotency key and puts it
// back into processing.
func (r *Repository) Reattempt(ctx context.Context, q Querier, paymentID uuid.UUID, idempotencyKey string) error {
	tag, err := q.Exec(ctx, `
		UPDATE payments
		SET status = 'processing', idempotency_key = $2, psp_ref = NULL, psp_response = NULL
		WHERE id = $1 AND status = 'failed'`,
		paymentID, idempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to reattempt payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NewConflictError("payment is not retryable")
	}
	return nil
}

// Finalize writes the provider verdict onto the payment row.
func (r *Repository) Finalize(ctx context.Context, q Querier, payment *models.Payment) error {
	_, err := q.Exec(ctx, `
		UPDATE payments
		SET status = $2, psp_ref = $3, psp_response = $4, completed_at = $5
		WHERE id = $1`,
		payment.ID, payment.Status, payment.PSPRef, payment.PSPResponse, payment.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to finalize payment: %w", err)
	}
	return nil
}

// MarkRefunded flips a completed payment to refunded. Returns Conflict when
// the payment is not in a refundable state.
func (r *Repository) MarkRefunded(ctx context.Context, paymentID uuid.UUID, reason string) (*models.Payment, error) {
	query := fmt.Sprintf(`
		UPDATE payments
		SET status = 'refunded', refunded_at = NOW(), refund_reason = $2
		WHERE id = $1 AND status = 'completed'
		RETURNING %s`, paymentColumns)

	payment, err := scanPayment(r.db.QueryRow(ctx, query, paymentID, reason))
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) && appErr.ErrorCode == common.CodeNotFound {
			return nil, common.NewConflictError("payment is not refundable")
		}
		return nil, err
	}
	return payment, nil
}
