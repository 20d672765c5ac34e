package riders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/models"
)

// Repository handles database operations for riders
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new riders repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves a rider by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rider, error) {
	rider := &models.Rider{}
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, phone, name, email, created_at, updated_at
		FROM riders WHERE id = $1`, id,
	).Scan(
		&rider.ID,
		&rider.TenantID,
		&rider.Phone,
		&rider.Name,
		&rider.Email,
		&rider.CreatedAt,
		&rider.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("rider not found", err)
		}
		return nil, fmt.Errorf("failed to get rider: %w", err)
	}
	return rider, nil
}
