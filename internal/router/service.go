// Package router orchestrates the webhook pipeline: normalization, route
// resolution, idempotent claim, rate limiting, background fanout, and
// telemetry/audit emission.
package router

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sync"

	"chat-router/internal/common/logging"
	"chat-router/internal/fanout"
	"chat-router/internal/metrics"
	"chat-router/internal/normalize"
	"chat-router/internal/routing"
	"chat-router/internal/storage"
	"chat-router/internal/telemetry"
)

// Options holds the per-message pipeline settings
type Options struct {
	RateLimitWindowSeconds int
	RateLimitMaxMessages   int
}

// Service runs the per-message state machine:
//
//	Received -> {Unmatched | Duplicate | RateLimited | Routed}
//	Routed   -> FanoutSettled(ok | error)
//
// The idempotency claim is checked before the rate limit so a redelivered
// webhook never consumes rate-limit budget or re-triggers side effects.
type Service struct {
	store      storage.Store
	registry   *routing.Registry
	dispatcher *fanout.Dispatcher
	opts       Options
	logger     logging.Logger
	metrics    *metrics.Metrics

	// pending tracks background fanout tasks so Drain can await them
	pending sync.WaitGroup
}

// New creates the orchestrator
func New(store storage.Store, registry *routing.Registry, dispatcher *fanout.Dispatcher, opts Options, logger logging.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Service{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		metrics:    m,
	}
}

// routedMessage is a message that passed every admission check and awaits
// fanout settlement
type routedMessage struct {
	msg            normalize.NormalizedMessage
	routeKey       string
	matchedKeyword string
	destinations   []string
}

// ProcessEnvelope runs the pipeline for every message in an authenticated,
// parsed envelope. Admission decisions (resolve, claim, rate limit) complete
// synchronously; fanout and the telemetry flush continue as one tracked
// background task per request. It never returns an error: every per-message
// outcome is recorded via telemetry and the audit log without altering the
// already-issued acknowledgment.
func (s *Service) ProcessEnvelope(ctx context.Context, raw []byte, env *normalize.Envelope, correlationID string) {
	tel := telemetry.New()

	messages := normalize.Normalize(env)
	s.logger.Info("payload normalized",
		logging.String("correlationId", correlationID),
		logging.Int("messageCount", len(messages)),
	)

	if len(messages) == 0 {
		return
	}

	mappings, err := s.store.LoadKeywordMappings(ctx)
	if err != nil {
		s.logger.Error("keyword mapping load failed", err,
			logging.String("correlationId", correlationID))
		return
	}

	routed := make([]routedMessage, 0, len(messages))
	var mu sync.Mutex

	// Messages within one envelope are independent; admit them concurrently.
	var wg sync.WaitGroup
	for _, msg := range messages {
		wg.Add(1)
		go func(msg normalize.NormalizedMessage) {
			defer wg.Done()
			defer s.recoverPanic(correlationID, msg.MessageID)

			if accepted, ok := s.admitMessage(ctx, msg, mappings, tel, correlationID); ok {
				mu.Lock()
				routed = append(routed, accepted)
				mu.Unlock()
			}
		}(msg)
	}
	wg.Wait()

	// Fanout and the telemetry flush run after the acknowledgment; Drain
	// awaits this task for tests and graceful shutdown.
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer s.recoverPanic(correlationID, "")
		s.settleFanouts(raw, routed, tel, correlationID)
	}()
}

// Drain waits for all outstanding background fanout tasks to settle
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// admitMessage runs the synchronous part of the state machine for one
// message. It returns the routed message and true when fanout should follow.
func (s *Service) admitMessage(ctx context.Context, msg normalize.NormalizedMessage, mappings []routing.KeywordMapping, tel *telemetry.Collector, correlationID string) (routedMessage, bool) {
	tel.RecordReceived()

	resolution, matched := routing.ResolveRoute(msg, mappings)
	if !matched {
		tel.RecordUnknownKeyword(routing.PrimaryCandidate(msg))
		s.countOutcome(storage.StatusUnmatched)
		s.recordLog(msg, "", storage.StatusUnmatched, map[string]interface{}{
			"correlationId": correlationID,
			"reason":        "no_route",
		})
		return routedMessage{}, false
	}

	destinations := s.registry.Resolve(ctx, resolution.RouteKey)
	if len(destinations) == 0 {
		tel.RecordUnknownKeyword(resolution.RouteKey)
		s.countOutcome(storage.StatusUnmatched)
		s.recordLog(msg, resolution.RouteKey, storage.StatusUnmatched, map[string]interface{}{
			"correlationId": correlationID,
			"reason":        "no_destination",
		})
		return routedMessage{}, false
	}

	claimed, err := s.store.ClaimMessage(ctx, msg.MessageID, msg.From, resolution.RouteKey, map[string]interface{}{
		"correlationId":  correlationID,
		"matchedKeyword": resolution.MatchedKeyword,
	})
	if err != nil {
		// Without a claim there is no at-most-once guarantee; skip fanout.
		s.logger.Error("idempotency claim failed", err,
			logging.String("correlationId", correlationID),
			logging.String("messageId", msg.MessageID),
		)
		s.countOutcome(storage.StatusError)
		return routedMessage{}, false
	}
	if !claimed {
		tel.RecordDuplicate()
		s.countOutcome(storage.StatusDuplicate)
		s.recordLog(msg, resolution.RouteKey, storage.StatusDuplicate, map[string]interface{}{
			"correlationId": correlationID,
			"reason":        "already_processed",
		})
		return routedMessage{}, false
	}

	decision, err := s.store.CheckRateLimit(ctx, msg.From, s.opts.RateLimitWindowSeconds, s.opts.RateLimitMaxMessages)
	if err != nil {
		// The limiter is advisory; fail open rather than drop a claimed
		// message.
		s.logger.Warn("rate limit check failed, allowing message",
			logging.String("correlationId", correlationID),
			logging.String("messageId", msg.MessageID),
			logging.String("error", err.Error()),
		)
		decision = storage.RateLimitDecision{Allowed: true}
	}
	if !decision.Allowed {
		tel.RecordRateLimited()
		s.countOutcome(storage.StatusRateLimited)
		s.recordLog(msg, resolution.RouteKey, storage.StatusRateLimited, map[string]interface{}{
			"correlationId": correlationID,
			"currentCount":  decision.CurrentCount,
			"windowSeconds": s.opts.RateLimitWindowSeconds,
		})
		return routedMessage{}, false
	}

	tel.RecordRouted(len(destinations))
	s.recordLog(msg, resolution.RouteKey, storage.StatusAccepted, map[string]interface{}{
		"correlationId":  correlationID,
		"matchedKeyword": resolution.MatchedKeyword,
		"destinations":   destinations,
	})

	return routedMessage{
		msg:            msg,
		routeKey:       resolution.RouteKey,
		matchedKeyword: resolution.MatchedKeyword,
		destinations:   destinations,
	}, true
}

// settleFanouts dispatches every routed message concurrently, records the
// terminal outcome per message, then logs the telemetry snapshot exactly once.
func (s *Service) settleFanouts(raw []byte, routed []routedMessage, tel *telemetry.Collector, correlationID string) {
	// Background work must outlive the originating request.
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, rm := range routed {
		wg.Add(1)
		go func(rm routedMessage) {
			defer wg.Done()
			defer s.recoverPanic(correlationID, rm.msg.MessageID)
			s.settleOne(ctx, raw, rm, tel, correlationID)
		}(rm)
	}
	wg.Wait()

	snapshot := tel.Snapshot()
	s.logger.Info("router telemetry",
		logging.String("correlationId", correlationID),
		logging.Any("snapshot", snapshot),
	)
}

func (s *Service) settleOne(ctx context.Context, raw []byte, rm routedMessage, tel *telemetry.Collector, correlationID string) {
	payload := fanout.Payload{
		Normalized: rm.msg,
		Original:   json.RawMessage(raw),
	}

	results := s.dispatcher.Dispatch(ctx, payload, correlationID, rm.destinations)

	anyOK := false
	for _, result := range results {
		if result.OK {
			anyOK = true
			continue
		}
		message := result.Error
		if message == "" {
			message = "non-2xx response"
		}
		tel.RecordDownstreamError(result.Destination, result.Status, message)
	}

	status := storage.StatusRouted
	if !anyOK {
		status = storage.StatusError
	}
	s.countOutcome(status)

	s.recordLog(rm.msg, rm.routeKey, status, map[string]interface{}{
		"correlationId": correlationID,
		"destinations":  rm.destinations,
		"responses":     results,
	})
}

// recordLog appends an audit row, truncating the text snippet. Store
// failures are logged and swallowed; audit emission must never break the
// pipeline.
func (s *Service) recordLog(msg normalize.NormalizedMessage, routeKey, status string, metadata map[string]interface{}) {
	entry := storage.RouterLogEntry{
		MessageID:   msg.MessageID,
		RouteKey:    routeKey,
		Status:      status,
		TextSnippet: storage.TruncateSnippet(msg.Text),
		Metadata:    metadata,
	}

	if err := s.store.RecordRouterLog(context.Background(), entry); err != nil {
		s.logger.Error("router log write failed", err,
			logging.String("messageId", msg.MessageID),
			logging.String("status", status),
		)
	}
}

func (s *Service) countOutcome(status string) {
	if s.metrics != nil {
		s.metrics.MessageOutcomes.WithLabelValues(status).Inc()
	}
}

// recoverPanic keeps a per-message failure from taking down the request or
// altering the already-issued acknowledgment.
func (s *Service) recoverPanic(correlationID, messageID string) {
	if r := recover(); r != nil {
		s.logger.Error("unhandled panic in router pipeline", nil,
			logging.String("correlationId", correlationID),
			logging.String("messageId", messageID),
			logging.Any("panic", r),
			logging.String("stack", string(debug.Stack())),
		)
	}
}
