// Package redis wraps the shared Redis instance backing idempotency claims
// and per-sender rate-limit counters. Both must live outside the process so
// horizontally scaled router instances agree on claims and counts.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	claimKeyPrefix = "router:claim:"
	rateKeyPrefix  = "router:rate:"
)

// Config holds Redis connection settings
type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// Client wraps go-redis with the router's claim and rate-limit operations
type Client struct {
	rdb    *redis.Client
	config *Config
}

// NewClient connects to Redis and verifies reachability
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		config: config,
	}, nil
}

// Close releases the connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// claimRecord is the value stored under a claim key
type claimRecord struct {
	Sender    string                 `json:"sender"`
	RouteKey  string                 `json:"routeKey,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	ClaimedAt time.Time              `json:"claimedAt"`
}

// ClaimMessage claims a message id with insert-if-absent semantics. Exactly
// one concurrent caller gets true; claims carry no expiry because the router
// never deletes them.
func (c *Client) ClaimMessage(ctx context.Context, messageID, sender, routeKey string, metadata map[string]interface{}) (bool, error) {
	record, err := json.Marshal(claimRecord{
		Sender:    sender,
		RouteKey:  routeKey,
		Metadata:  metadata,
		ClaimedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal claim: %w", err)
	}

	claimed, err := c.rdb.SetNX(ctx, claimKeyPrefix+messageID, record, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim message: %w", err)
	}

	return claimed, nil
}

// CheckRateLimit admits a sender against a sliding window implemented as a
// sorted set of arrival timestamps. Safe under concurrent increments from
// multiple process instances.
func (c *Client) CheckRateLimit(ctx context.Context, sender string, limit int, window time.Duration) (bool, int, error) {
	key := rateKeyPrefix + sender
	now := time.Now()
	windowStart := now.Add(-window)

	pipe := c.rdb.TxPipeline()

	// Drop entries that fell out of the window, count what remains, then
	// record this arrival.
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	pipe.Expire(ctx, key, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to check rate limit: %w", err)
	}

	count := int(countCmd.Val())
	return count < limit, count + 1, nil
}
