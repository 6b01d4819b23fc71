package routing

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-router/internal/common/logging"
)

// DestinationLoader loads destination rows from the backing store
type DestinationLoader interface {
	LoadDestinations(ctx context.Context) ([]RouteDestination, error)
}

// cacheEntry is the process-local cached destination list. Concurrent readers
// may race to refresh an expired entry; both succeed redundantly and last
// write wins, which is acceptable for a short-lived read-mostly cache.
type cacheEntry struct {
	records   []RouteDestination
	expiresAt time.Time
}

// Registry loads, caches, and allowlist-filters route-key to destination-URL
// mappings. A backing-store failure degrades to "no destinations" and is
// logged, never returned to the caller.
type Registry struct {
	loader       DestinationLoader
	allowedSlugs map[string]struct{}
	allowedHosts map[string]struct{}
	ttl          time.Duration
	logger       logging.Logger

	mu    sync.Mutex
	cache *cacheEntry

	now func() time.Time
}

// NewRegistry creates a destination registry. An empty allowlist admits every
// loaded destination.
func NewRegistry(loader DestinationLoader, allowlist []string, ttl time.Duration, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := &Registry{
		loader:       loader,
		allowedSlugs: make(map[string]struct{}),
		allowedHosts: make(map[string]struct{}),
		ttl:          ttl,
		logger:       logger,
		now:          time.Now,
	}

	for _, entry := range allowlist {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		r.allowedSlugs[entry] = struct{}{}
		if host := hostOf(entry); host != "" {
			r.allowedHosts[host] = struct{}{}
		}
	}

	return r
}

// Resolve returns the deduplicated, priority-ordered destination URLs for a
// route key. Lower priority values come first; all allowlisted destinations
// are returned, priority governs call order only.
func (r *Registry) Resolve(ctx context.Context, routeKey string) []string {
	records := r.load(ctx)

	var matched []RouteDestination
	for _, record := range records {
		if record.RouteKey != routeKey {
			continue
		}
		if !r.allowed(record) {
			r.logger.Debug("destination filtered by allowlist",
				logging.String("slug", record.Slug),
				logging.String("url", record.DestinationURL),
			)
			continue
		}
		matched = append(matched, record)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority < matched[j].Priority
	})

	seen := make(map[string]struct{}, len(matched))
	var urls []string
	for _, record := range matched {
		if _, dup := seen[record.DestinationURL]; dup {
			continue
		}
		seen[record.DestinationURL] = struct{}{}
		urls = append(urls, record.DestinationURL)
	}

	return urls
}

// load returns the cached records, reloading synchronously on miss or expiry
func (r *Registry) load(ctx context.Context) []RouteDestination {
	r.mu.Lock()
	entry := r.cache
	r.mu.Unlock()

	if entry != nil && r.now().Before(entry.expiresAt) {
		return entry.records
	}

	records, err := r.loader.LoadDestinations(ctx)
	if err != nil {
		r.logger.Error("destination load failed, routing with no destinations", err)
		return nil
	}

	r.mu.Lock()
	r.cache = &cacheEntry{records: records, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()

	return records
}

// allowed applies allowlist semantics: empty allowlist passes everything,
// otherwise the slug must be listed verbatim or the URL's host must match a
// host derived from an allowlist entry.
func (r *Registry) allowed(record RouteDestination) bool {
	if len(r.allowedSlugs) == 0 {
		return true
	}

	if _, ok := r.allowedSlugs[record.Slug]; ok {
		return true
	}

	if host := hostOf(record.DestinationURL); host != "" {
		if _, ok := r.allowedHosts[host]; ok {
			return true
		}
	}

	return false
}

// hostOf derives a host from an allowlist entry or destination URL. Bare
// entries without a scheme are treated as hosts themselves.
func hostOf(entry string) string {
	if parsed, err := url.Parse(entry); err == nil && parsed.Host != "" {
		return strings.ToLower(parsed.Hostname())
	}
	if !strings.Contains(entry, "/") {
		return strings.ToLower(entry)
	}
	return ""
}
