// Package handlers exposes the router's HTTP surface: the provider webhook
// endpoint, the verification handshake, health, and metrics.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"chat-router/internal/common/errors"
	"chat-router/internal/common/logging"
	"chat-router/internal/config"
	"chat-router/internal/metrics"
	"chat-router/internal/normalize"
	"chat-router/internal/router"
	"chat-router/internal/signature"
	"chat-router/internal/storage"
)

// maxBodyBytes bounds inbound webhook bodies; provider envelopes are small
const maxBodyBytes = 1 << 20

// Handlers wires the HTTP surface to the router pipeline
type Handlers struct {
	verifier *signature.Verifier
	service  *router.Service
	store    storage.Store
	cfg      *config.Config
	logger   logging.Logger
	metrics  *metrics.Metrics
}

// New creates the HTTP handlers
func New(verifier *signature.Verifier, service *router.Service, store storage.Store, cfg *config.Config, logger logging.Logger, m *metrics.Metrics) *Handlers {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Handlers{
		verifier: verifier,
		service:  service,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

// Routes builds the router's HTTP mux
func (h *Handlers) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/webhook", h.HandleWebhook)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// HandleWebhook serves the provider webhook endpoint. GET is the subscription
// handshake; POST carries message envelopes. The POST path acknowledges with
// 200 "ok" once the payload is authenticated and parsed; message outcomes
// never change the acknowledgment.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.RouterEnabled {
		h.respondError(w, http.StatusServiceUnavailable, errors.DisabledError("router disabled"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleVerification(w, r)
	case http.MethodPost:
		h.handleDelivery(w, r)
	default:
		h.respondError(w, http.StatusMethodNotAllowed,
			errors.ValidationError("method not allowed").WithContext("method", r.Method))
	}
}

// handleVerification answers the provider's subscription handshake: echo the
// challenge when the verify token matches, 403 otherwise.
func (h *Handlers) handleVerification(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "subscribe" && token == h.cfg.VerifyToken {
		h.logger.Info("webhook verification succeeded")
		h.respond(w, http.StatusOK, challenge)
		return
	}

	h.logger.Warn("webhook verification rejected", logging.String("mode", mode))
	h.respondError(w, http.StatusForbidden, errors.AuthError("verification failed"))
}

func (h *Handlers) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, errors.ValidationError("unreadable body"))
		return
	}

	if !h.verifier.Verify(body, r.Header.Get(signature.Header)) {
		h.logger.Warn("webhook rejected", logging.String("reason", "invalid signature"))
		h.respondError(w, http.StatusUnauthorized, errors.AuthError("invalid signature"))
		return
	}

	env, err := normalize.Parse(body)
	if err != nil {
		h.logger.Warn("webhook rejected", logging.String("reason", "malformed payload"))
		h.respondError(w, http.StatusBadRequest, errors.ValidationError("malformed payload"))
		return
	}

	correlationID := uuid.NewString()
	h.logger.Info("webhook accepted", logging.String("correlationId", correlationID))

	h.service.ProcessEnvelope(r.Context(), body, env, correlationID)

	h.respond(w, http.StatusOK, "ok")
}

// HandleHealth reports backing-store reachability
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Health(r.Context()); err != nil {
		h.logger.Error("health check failed", err)
		h.respondError(w, http.StatusServiceUnavailable, errors.InternalError("backing store unreachable", err))
		return
	}
	h.respond(w, http.StatusOK, "healthy")
}

func (h *Handlers) respond(w http.ResponseWriter, status int, body string) {
	h.countRequest(status)
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, appErr *errors.AppError) {
	h.countRequest(status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(appErr)
}

func (h *Handlers) countRequest(status int) {
	if h.metrics != nil {
		h.metrics.WebhookRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}
