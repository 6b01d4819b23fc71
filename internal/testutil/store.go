// Package testutil provides an in-memory Store fake for router tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"chat-router/internal/routing"
	"chat-router/internal/storage"
)

// StoreFake is an in-memory storage.Store with per-operation failure and
// rate-limit knobs. Safe for concurrent use.
type StoreFake struct {
	mu sync.Mutex

	Mappings     []routing.KeywordMapping
	Destinations []routing.RouteDestination

	claims map[string]string
	logs   []storage.RouterLogEntry

	RateLimitAllowed bool
	RateLimitCount   int
	rateLimitCalls   int

	LoadMappingsErr     error
	LoadDestinationsErr error
	ClaimErr            error
	RateLimitErr        error
	RecordLogErr        error
	HealthErr           error
}

// NewStore creates a fake that allows everything by default
func NewStore() *StoreFake {
	return &StoreFake{
		claims:           make(map[string]string),
		RateLimitAllowed: true,
		RateLimitCount:   1,
	}
}

func (s *StoreFake) LoadKeywordMappings(ctx context.Context) ([]routing.KeywordMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadMappingsErr != nil {
		return nil, s.LoadMappingsErr
	}
	return append([]routing.KeywordMapping(nil), s.Mappings...), nil
}

func (s *StoreFake) LoadDestinations(ctx context.Context) ([]routing.RouteDestination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadDestinationsErr != nil {
		return nil, s.LoadDestinationsErr
	}
	return append([]routing.RouteDestination(nil), s.Destinations...), nil
}

func (s *StoreFake) ClaimMessage(ctx context.Context, messageID, sender, routeKey string, metadata map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ClaimErr != nil {
		return false, s.ClaimErr
	}
	if _, exists := s.claims[messageID]; exists {
		return false, nil
	}
	s.claims[messageID] = sender
	return true, nil
}

func (s *StoreFake) CheckRateLimit(ctx context.Context, sender string, windowSeconds, maxMessages int) (storage.RateLimitDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitCalls++
	if s.RateLimitErr != nil {
		return storage.RateLimitDecision{}, s.RateLimitErr
	}
	return storage.RateLimitDecision{Allowed: s.RateLimitAllowed, CurrentCount: s.RateLimitCount}, nil
}

func (s *StoreFake) RecordRouterLog(ctx context.Context, entry storage.RouterLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordLogErr != nil {
		return s.RecordLogErr
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.logs = append(s.logs, entry)
	return nil
}

func (s *StoreFake) Health(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.HealthErr
}

// SeedClaim marks a message id as already claimed
func (s *StoreFake) SeedClaim(messageID, sender string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[messageID] = sender
}

// Claimed reports whether a message id has been claimed
func (s *StoreFake) Claimed(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claims[messageID]
	return ok
}

// RateLimitCalls returns how many times CheckRateLimit was invoked
func (s *StoreFake) RateLimitCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateLimitCalls
}

// Logs returns a copy of all recorded audit rows
func (s *StoreFake) Logs() []storage.RouterLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.RouterLogEntry(nil), s.logs...)
}

// LogsByStatus filters recorded audit rows by status
func (s *StoreFake) LogsByStatus(status string) []storage.RouterLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.RouterLogEntry
	for _, entry := range s.logs {
		if entry.Status == status {
			out = append(out, entry)
		}
	}
	return out
}

var _ storage.Store = (*StoreFake)(nil)
