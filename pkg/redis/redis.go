package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/dispatch/pkg/config"
)

// Client wraps the Redis client
type Client struct {
	*redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return &Client{Client: client}, nil
}

// Wrap adapts an existing go-redis client (used by tests with redismock).
func Wrap(client *redis.Client) *Client {
	return &Client{Client: client}
}

// SetWithExpiration sets a key-value pair with expiration
func (c *Client) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.Set(ctx, key, value, expiration).Err()
}

// SetIfNotExists sets a key only when absent, returning whether it was set.
func (c *Client) SetIfNotExists(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.SetNX(ctx, key, value, expiration).Result()
}

// GetString gets a string value by key
func (c *Client) GetString(ctx context.Context, key string) (string, error) {
	return c.Get(ctx, key).Result()
}

// MGetStrings fetches multiple keys in one round trip. Missing keys map to
// empty strings in the result slice.
func (c *Client) MGetStrings(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make([]string, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			result[i] = s
		}
	}
	return result, nil
}

// Delete deletes one or more keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.Del(ctx, keys...).Err()
}

// IsNil reports a cache miss.
func IsNil(err error) bool {
	return err == redis.Nil
}

// GeoMember is a member of a geospatial index with its distance from the
// query point.
type GeoMember struct {
	Name       string
	DistanceKm float64
}

// GeoAdd adds a location to a geospatial index
func (c *Client) GeoAdd(ctx context.Context, key string, longitude, latitude float64, member string) error {
	return c.Client.GeoAdd(ctx, key, &redis.GeoLocation{
		Longitude: longitude,
		Latitude:  latitude,
		Name:      member,
	}).Err()
}

// GeoRadius searches for members within a radius, ascending by distance.
func (c *Client) GeoRadius(ctx context.Context, key string, longitude, latitude, radiusKm float64, count int) ([]GeoMember, error) {
	result, err := c.Client.GeoRadius(ctx, key, longitude, latitude, &redis.GeoRadiusQuery{
		Radius:   radiusKm,
		Unit:     "km",
		WithDist: true,
		Count:    count,
		Sort:     "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	members := make([]GeoMember, 0, len(result))
	for _, loc := range result {
		members = append(members, GeoMember{Name: loc.Name, DistanceKm: loc.Dist})
	}
	return members, nil
}

// GeoRemove removes a member from a geospatial index
func (c *Client) GeoRemove(ctx context.Context, key string, member string) error {
	return c.Client.ZRem(ctx, key, member).Err()
}

// GeoPos gets the position of a member. ok is false when the member is not
// indexed.
func (c *Client) GeoPos(ctx context.Context, key string, member string) (longitude, latitude float64, ok bool, err error) {
	result, err := c.Client.GeoPos(ctx, key, member).Result()
	if err != nil {
		return 0, 0, false, err
	}

	if len(result) == 0 || result[0] == nil {
		return 0, 0, false, nil
	}

	return result[0].Longitude, result[0].Latitude, true, nil
}

// Close closes the Redis client
func (c *Client) Close() error {
	return c.Client.Close()
}
