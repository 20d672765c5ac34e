package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richxcame/dispatch/pkg/logger"
	redisclient "github.com/richxcame/dispatch/pkg/redis"
	"go.uber.org/zap"
)

// ErrMiss is returned when a key is absent.
var ErrMiss = fmt.Errorf("cache miss")

// Manager handles caching operations with JSON serialization
type Manager struct {
	redis *redisclient.Client
}

// NewManager creates a new cache manager
func NewManager(redis *redisclient.Client) *Manager {
	return &Manager{redis: redis}
}

// Get retrieves a cached value and unmarshals it into result
func (m *Manager) Get(ctx context.Context, key string, result interface{}) error {
	data, err := m.redis.GetString(ctx, key)
	if err != nil {
		if redisclient.IsNil(err) {
			return ErrMiss
		}
		return err
	}

	return json.Unmarshal([]byte(data), result)
}

// Set marshals and caches a value with expiration
func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return m.redis.SetWithExpiration(ctx, key, string(data), ttl)
}

// GetOrSet retrieves from cache or executes fn and caches the result.
func (m *Manager) GetOrSet(ctx context.Context, key string, ttl time.Duration, result interface{}, fn func() (interface{}, error)) error {
	err := m.Get(ctx, key, result)
	if err == nil {
		return nil // Cache hit
	}

	data, err := fn()
	if err != nil {
		return err
	}

	// Cache the result (non-blocking)
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Set(cacheCtx, key, data, ttl); err != nil {
			logger.Warn("failed to populate cache", zap.String("key", key), zap.Error(err))
		}
	}()

	// Marshal the result into the result pointer
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return json.Unmarshal(jsonData, result)
}

// Delete removes keys from cache
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return m.redis.Delete(ctx, keys...)
}

// CacheKeys defines common cache key patterns
type CacheKeys struct{}

var Keys = CacheKeys{}

// Ride returns the cache key for ride data
func (k CacheKeys) Ride(rideID string) string {
	return fmt.Sprintf("ride:%s", rideID)
}

// Driver returns the cache key for driver data
func (k CacheKeys) Driver(driverID string) string {
	return fmt.Sprintf("driver:%s", driverID)
}

// Rider returns the cache key for rider data
func (k CacheKeys) Rider(riderID string) string {
	return fmt.Sprintf("rider:%s", riderID)
}

// DriverMeta returns the cache key for driver dispatch metadata
func (k CacheKeys) DriverMeta(driverID string) string {
	return fmt.Sprintf("driver:meta:%s", driverID)
}

// DriverLocation returns the cache key for the driver's last known location
func (k CacheKeys) DriverLocation(driverID string) string {
	return fmt.Sprintf("driver:location:%s", driverID)
}

// DriverActiveRide returns the cache key mapping a busy driver to their
// active ride.
func (k CacheKeys) DriverActiveRide(driverID string) string {
	return fmt.Sprintf("driver:active_ride:%s", driverID)
}

// PaymentIdempotency returns the cache key binding an idempotency key to
// its payment outcome.
func (k CacheKeys) PaymentIdempotency(key string) string {
	return fmt.Sprintf("payment:idempotency:%s", key)
}

// TTL defines common cache TTL durations
type CacheTTL struct{}

var TTL = CacheTTL{}

func (t CacheTTL) Short() time.Duration    { return 5 * time.Minute }
func (t CacheTTL) Medium() time.Duration   { return 15 * time.Minute }
func (t CacheTTL) Long() time.Duration     { return 1 * time.Hour }
func (t CacheTTL) VeryLong() time.Duration { return 24 * time.Hour }
