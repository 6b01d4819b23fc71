// Package postgres implements the storage port over PostgreSQL for reference
// data and audit rows, delegating claims and rate-limit counters to Redis.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat-router/internal/common/logging"
	"chat-router/internal/redis"
	"chat-router/internal/routing"
	"chat-router/internal/storage"
)

// Adapter implements storage.Store
type Adapter struct {
	pool   *pgxpool.Pool
	redis  *redis.Client
	logger logging.Logger
}

// NewAdapter connects to PostgreSQL and pairs the pool with the shared Redis
// client used for claims and rate limiting.
func NewAdapter(ctx context.Context, databaseURL string, redisClient *redis.Client, logger logging.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Adapter{
		pool:   pool,
		redis:  redisClient,
		logger: logger,
	}, nil
}

// Close releases the connection pool
func (a *Adapter) Close() {
	a.pool.Close()
}

// LoadKeywordMappings returns the full keyword routing rule set
func (a *Adapter) LoadKeywordMappings(ctx context.Context) ([]routing.KeywordMapping, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT keyword, route_key FROM router_keyword_mappings`)
	if err != nil {
		return nil, fmt.Errorf("failed to load keyword mappings: %w", err)
	}
	defer rows.Close()

	var mappings []routing.KeywordMapping
	for rows.Next() {
		var mapping routing.KeywordMapping
		if err := rows.Scan(&mapping.Keyword, &mapping.RouteKey); err != nil {
			return nil, fmt.Errorf("failed to scan keyword mapping: %w", err)
		}
		mappings = append(mappings, mapping)
	}

	return mappings, rows.Err()
}

// LoadDestinations returns all fanout destination rows
func (a *Adapter) LoadDestinations(ctx context.Context) ([]routing.RouteDestination, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT route_key, destination_slug, destination_url, priority FROM router_destinations`)
	if err != nil {
		return nil, fmt.Errorf("failed to load destinations: %w", err)
	}
	defer rows.Close()

	var destinations []routing.RouteDestination
	for rows.Next() {
		var destination routing.RouteDestination
		if err := rows.Scan(&destination.RouteKey, &destination.Slug, &destination.DestinationURL, &destination.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan destination: %w", err)
		}
		destinations = append(destinations, destination)
	}

	return destinations, rows.Err()
}

// ClaimMessage delegates to the shared Redis claim store
func (a *Adapter) ClaimMessage(ctx context.Context, messageID, sender, routeKey string, metadata map[string]interface{}) (bool, error) {
	return a.redis.ClaimMessage(ctx, messageID, sender, routeKey, metadata)
}

// CheckRateLimit delegates to the shared Redis sliding-window counter
func (a *Adapter) CheckRateLimit(ctx context.Context, sender string, windowSeconds, maxMessages int) (storage.RateLimitDecision, error) {
	allowed, count, err := a.redis.CheckRateLimit(ctx, sender, maxMessages, time.Duration(windowSeconds)*time.Second)
	if err != nil {
		return storage.RateLimitDecision{}, err
	}
	return storage.RateLimitDecision{Allowed: allowed, CurrentCount: count}, nil
}

// RecordRouterLog appends one audit row
func (a *Adapter) RecordRouterLog(ctx context.Context, entry storage.RouterLogEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal log metadata: %w", err)
	}

	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	var routeKey interface{}
	if entry.RouteKey != "" {
		routeKey = entry.RouteKey
	}

	_, err = a.pool.Exec(ctx,
		`INSERT INTO router_logs (message_id, route_key, status, text_snippet, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.MessageID, routeKey, entry.Status,
		storage.TruncateSnippet(entry.TextSnippet), metadata, timestamp)
	if err != nil {
		return fmt.Errorf("failed to record router log: %w", err)
	}

	return nil
}

// Health reports database and Redis reachability
func (a *Adapter) Health(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return a.redis.Health(ctx)
}

var _ storage.Store = (*Adapter)(nil)
