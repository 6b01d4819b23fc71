// Package routing maps normalized messages to downstream destinations:
// keyword-to-route resolution and the allowlist-filtered destination registry.
package routing

// KeywordMapping is one routing rule. Keywords are stored lowercase and
// matched case-insensitively.
type KeywordMapping struct {
	Keyword  string `json:"keyword"`
	RouteKey string `json:"routeKey"`
}

// RouteDestination is one fanout target for a route. Many rows may share a
// route key; lower priority values are invoked first.
type RouteDestination struct {
	RouteKey       string `json:"routeKey"`
	Slug           string `json:"slug"`
	DestinationURL string `json:"destinationUrl"`
	Priority       int    `json:"priority"`
}

// Resolution is the outcome of keyword matching for one message
type Resolution struct {
	RouteKey       string
	MatchedKeyword string
}
