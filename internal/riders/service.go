package riders

import (
	"context"

	"github.com/google/uuid"

	"github.com/richxcame/dispatch/pkg/cache"
	"github.com/richxcame/dispatch/pkg/models"
)

// Service handles rider profile reads.
type Service struct {
	repo  *Repository
	cache *cache.Manager
}

// NewService creates a riders service.
func NewService(repo *Repository, cacheManager *cache.Manager) *Service {
	return &Service{repo: repo, cache: cacheManager}
}

// GetRider returns a rider profile through the cache.
func (s *Service) GetRider(ctx context.Context, riderID uuid.UUID) (*models.Rider, error) {
	var rider models.Rider
	err := s.cache.GetOrSet(ctx, cache.Keys.Rider(riderID.String()), cache.TTL.Medium(), &rider, func() (interface{}, error) {
		return s.repo.GetByID(ctx, riderID)
	})
	if err != nil {
		return nil, err
	}
	return &rider, nil
}
