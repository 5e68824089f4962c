package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/models"
)

// CacheClient fronts availability reads with Redis. Writers never update
// entries in place: every commit that changes a product's stock or holds
// deletes the entry, and the next read repopulates it.
type CacheClient struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
}

// NewCacheClient creates a cache client; cluster mode for multi-node setups
func NewCacheClient(addrs []string, password string, clusterMode bool, ttl time.Duration, keyPrefix string) *CacheClient {
	var client redis.UniversalClient

	if clusterMode {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        addrs,
			Password:     password,
			MaxRetries:   3,
			PoolSize:     50,
			MinIdleConns: 5,
			PoolTimeout:  30 * time.Second,
		})
	} else {
		addr := "localhost:6379"
		if len(addrs) > 0 {
			addr = addrs[0]
		}
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			PoolSize: 10,
		})
	}

	return &CacheClient{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

// GetAvailability retrieves the cached snapshot; nil on a miss
func (c *CacheClient) GetAvailability(ctx context.Context, productID string) (*models.AvailabilitySnapshot, error) {
	val, err := c.client.Get(ctx, c.availabilityKey(productID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to get availability from cache")
		return nil, fmt.Errorf("get availability from cache: %w", err)
	}

	var snapshot models.AvailabilitySnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to unmarshal cached availability")
		return nil, fmt.Errorf("unmarshal cached availability: %w", err)
	}

	log.Debug().Str("product_id", productID).Msg("Availability cache hit")
	return &snapshot, nil
}

// SetAvailability stores a snapshot with the configured TTL
func (c *CacheClient) SetAvailability(ctx context.Context, snapshot *models.AvailabilitySnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal availability: %w", err)
	}

	if err := c.client.Set(ctx, c.availabilityKey(snapshot.ProductID), data, c.ttl).Err(); err != nil {
		log.Error().Err(err).Str("product_id", snapshot.ProductID).Msg("Failed to cache availability")
		return fmt.Errorf("cache availability: %w", err)
	}
	return nil
}

// DeleteAvailability invalidates the product's entry
func (c *CacheClient) DeleteAvailability(ctx context.Context, productID string) error {
	if err := c.client.Del(ctx, c.availabilityKey(productID)).Err(); err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to invalidate availability")
		return fmt.Errorf("invalidate availability: %w", err)
	}
	return nil
}

// Ping checks connectivity
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection pool
func (c *CacheClient) Close() error {
	return c.client.Close()
}

func (c *CacheClient) availabilityKey(productID string) string {
	return fmt.Sprintf("%savailability:%s", c.keyPrefix, productID)
}
