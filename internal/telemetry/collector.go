// Package telemetry accumulates per-request routing counters. One Collector
// is created per webhook request; its snapshot is logged exactly once after
// all per-message processing, including fanout, settles.
package telemetry

import "sync"

const (
	maxUnknownSamples = 10
	maxErrorDetails   = 20
)

// DownstreamErrorDetail describes one failing destination call
type DownstreamErrorDetail struct {
	Destination string `json:"destination"`
	Status      int    `json:"status"`
	Message     string `json:"message"`
}

// Snapshot is the aggregated view of a request's routing outcomes
type Snapshot struct {
	Received            int                     `json:"received"`
	Routed              int                     `json:"routed"`
	Duplicate           int                     `json:"duplicate"`
	RateLimited         int                     `json:"rateLimited"`
	UnknownKeyword      int                     `json:"unknownKeyword"`
	DownstreamErrors    int                     `json:"downstreamErrors"`
	DestinationsInvoked int                     `json:"destinationsInvoked"`
	UnknownSamples      []string                `json:"unknownSamples,omitempty"`
	ErrorDetails        []DownstreamErrorDetail `json:"errorDetails,omitempty"`
}

// Collector is a pure accumulator with no I/O. It is mutex-guarded because
// messages within one envelope are processed concurrently.
type Collector struct {
	mu       sync.Mutex
	snapshot Snapshot
}

// New creates an empty collector
func New() *Collector {
	return &Collector{}
}

// RecordReceived counts one normalized inbound message
func (c *Collector) RecordReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.Received++
}

// RecordDuplicate counts a message whose id was already claimed
func (c *Collector) RecordDuplicate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.Duplicate++
}

// RecordRateLimited counts a message rejected by the rate limiter
func (c *Collector) RecordRateLimited() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.RateLimited++
}

// RecordUnknownKeyword counts an unmatched message, sampling the candidate
func (c *Collector) RecordUnknownKeyword(sample string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.UnknownKeyword++
	if sample != "" && len(c.snapshot.UnknownSamples) < maxUnknownSamples {
		c.snapshot.UnknownSamples = append(c.snapshot.UnknownSamples, sample)
	}
}

// RecordRouted counts an accepted message and its invoked destinations
func (c *Collector) RecordRouted(destinationCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.Routed++
	c.snapshot.DestinationsInvoked += destinationCount
}

// RecordDownstreamError counts one failing destination call
func (c *Collector) RecordDownstreamError(destination string, status int, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.DownstreamErrors++
	if len(c.snapshot.ErrorDetails) < maxErrorDetails {
		c.snapshot.ErrorDetails = append(c.snapshot.ErrorDetails, DownstreamErrorDetail{
			Destination: destination,
			Status:      status,
			Message:     message,
		})
	}
}

// Snapshot returns a copy of the accumulated counters
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.snapshot
	out.UnknownSamples = append([]string(nil), c.snapshot.UnknownSamples...)
	out.ErrorDetails = append([]DownstreamErrorDetail(nil), c.snapshot.ErrorDetails...)
	return out
}
