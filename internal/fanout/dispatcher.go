// Package fanout issues bounded-timeout concurrent HTTP calls to resolved
// destinations. Calls run to completion independently; one destination's
// failure or timeout never cancels or delays another.
package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"chat-router/internal/common/logging"
	"chat-router/internal/metrics"
	"chat-router/internal/normalize"
)

// CorrelationHeader carries the request correlation id to destinations
const CorrelationHeader = "x-correlation-id"

// Result is the outcome of one destination call. A timeout or network error
// yields status 0 with the error message; the dispatcher never returns an
// error for a downstream failure.
type Result struct {
	Destination string `json:"destination"`
	Status      int    `json:"status"`
	OK          bool   `json:"ok"`
	Error       string `json:"error,omitempty"`
	LatencyMS   int64  `json:"latencyMs"`
}

// Payload is the body POSTed to each destination: the normalized message
// plus the original raw envelope for downstream context.
type Payload struct {
	Normalized normalize.NormalizedMessage `json:"normalized"`
	Original   json.RawMessage             `json:"original"`
}

// Dispatcher fans a message out to destination URLs
type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewDispatcher creates a dispatcher with a shared pooled transport. The
// per-call timeout is enforced through contexts rather than a client-wide
// deadline so each destination is bounded independently.
func NewDispatcher(timeout time.Duration, logger logging.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Dispatcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Dispatch POSTs the payload to every destination concurrently and returns
// one result per destination, in input order.
func (d *Dispatcher) Dispatch(ctx context.Context, payload Payload, correlationID string, destinations []string) []Result {
	body, err := json.Marshal(payload)
	if err != nil {
		// The payload is built from already-decoded JSON; marshalling it
		// again cannot realistically fail, but fail every call rather than
		// panic if it does.
		results := make([]Result, len(destinations))
		for i, destination := range destinations {
			results[i] = Result{Destination: destination, Status: 0, Error: err.Error()}
		}
		return results
	}

	results := make([]Result, len(destinations))

	var wg sync.WaitGroup
	for i, destination := range destinations {
		wg.Add(1)
		go func(i int, destination string) {
			defer wg.Done()
			results[i] = d.call(ctx, destination, body, correlationID)
		}(i, destination)
	}
	wg.Wait()

	return results
}

// call performs one destination POST with its own timeout
func (d *Dispatcher) call(ctx context.Context, destination string, body []byte, correlationID string) Result {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return d.failure(destination, err, start)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(CorrelationHeader, correlationID)

	resp, err := d.client.Do(req)
	if err != nil {
		return d.failure(destination, err, start)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	io.Copy(io.Discard, resp.Body)

	latency := time.Since(start)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	if d.metrics != nil {
		d.metrics.FanoutDuration.Observe(latency.Seconds())
		if ok {
			d.metrics.FanoutCalls.WithLabelValues("ok").Inc()
		} else {
			d.metrics.FanoutCalls.WithLabelValues("error").Inc()
		}
	}

	return Result{
		Destination: destination,
		Status:      resp.StatusCode,
		OK:          ok,
		LatencyMS:   latency.Milliseconds(),
	}
}

func (d *Dispatcher) failure(destination string, err error, start time.Time) Result {
	latency := time.Since(start)

	if d.metrics != nil {
		d.metrics.FanoutDuration.Observe(latency.Seconds())
		d.metrics.FanoutCalls.WithLabelValues("error").Inc()
	}

	d.logger.Debug("fanout call failed",
		logging.String("destination", destination),
		logging.String("error", err.Error()),
	)

	return Result{
		Destination: destination,
		Status:      0,
		OK:          false,
		Error:       err.Error(),
		LatencyMS:   latency.Milliseconds(),
	}
}
