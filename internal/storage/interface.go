// Package storage defines the backing-store port consumed by the router.
// Keyword mappings, destinations, idempotency claims, rate-limit counters,
// and audit rows are all externally owned; this package only states the
// contract the pipeline depends on.
package storage

import (
	"context"
	"time"

	"chat-router/internal/routing"
)

// SnippetLimit bounds the audit-log text snippet length
const SnippetLimit = 500

// Router log statuses
const (
	StatusAccepted    = "accepted"
	StatusRouted      = "routed"
	StatusUnmatched   = "unmatched"
	StatusDuplicate   = "duplicate"
	StatusRateLimited = "rate_limited"
	StatusError       = "error"
)

// RouterLogEntry is one append-only audit trail row
type RouterLogEntry struct {
	MessageID   string                 `json:"messageId"`
	RouteKey    string                 `json:"routeKey,omitempty"`
	Status      string                 `json:"status"`
	TextSnippet string                 `json:"textSnippet,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// RateLimitDecision is the outcome of a per-sender admission check
type RateLimitDecision struct {
	Allowed      bool `json:"allowed"`
	CurrentCount int  `json:"currentCount"`
}

// Store is the single capability interface over the backing store. Claims
// and rate-limit counters must be shared across process instances; a
// process-local implementation would silently fail to prevent duplicate
// fanout in a scaled deployment.
type Store interface {
	// LoadKeywordMappings returns the full routing rule set
	LoadKeywordMappings(ctx context.Context) ([]routing.KeywordMapping, error)

	// LoadDestinations returns all fanout destination rows
	LoadDestinations(ctx context.Context) ([]routing.RouteDestination, error)

	// ClaimMessage atomically claims a message id. Exactly one concurrent
	// caller observes true; the claim is never deleted by the router.
	ClaimMessage(ctx context.Context, messageID, sender, routeKey string, metadata map[string]interface{}) (bool, error)

	// CheckRateLimit admits or rejects a sender for the current window
	CheckRateLimit(ctx context.Context, sender string, windowSeconds, maxMessages int) (RateLimitDecision, error)

	// RecordRouterLog appends one audit row
	RecordRouterLog(ctx context.Context, entry RouterLogEntry) error

	// Health reports backing-store reachability
	Health(ctx context.Context) error
}

// TruncateSnippet bounds a text snippet before persistence
func TruncateSnippet(text string) string {
	if len(text) <= SnippetLimit {
		return text
	}
	return text[:SnippetLimit]
}
