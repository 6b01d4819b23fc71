package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-router/internal/config"
	"chat-router/internal/fanout"
	"chat-router/internal/metrics"
	"chat-router/internal/router"
	"chat-router/internal/routing"
	"chat-router/internal/signature"
	"chat-router/internal/storage"
	"chat-router/internal/testutil"
)

const (
	testAppSecret   = "test-app-secret"
	testVerifyToken = "test-verify-token"
)

type fixture struct {
	handlers *Handlers
	store    *testutil.StoreFake
	service  *router.Service
	cfg      *config.Config
}

func newFixture(store *testutil.StoreFake) *fixture {
	cfg := &config.Config{
		RouterEnabled:          true,
		VerifyToken:            testVerifyToken,
		AppSecret:              testAppSecret,
		RateLimitWindowSeconds: 60,
		RateLimitMaxMessages:   10,
	}

	registry := routing.NewRegistry(store, nil, time.Minute, nil)
	dispatcher := fanout.NewDispatcher(2*time.Second, nil, nil)
	service := router.New(store, registry, dispatcher, router.Options{
		RateLimitWindowSeconds: cfg.RateLimitWindowSeconds,
		RateLimitMaxMessages:   cfg.RateLimitMaxMessages,
	}, nil, nil)

	verifier := signature.NewVerifier(cfg.AppSecret, nil)
	return &fixture{
		handlers: New(verifier, service, store, cfg, nil, metrics.New()),
		store:    store,
		service:  service,
		cfg:      cfg,
	}
}

func signedPost(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, signature.Sign(testAppSecret, []byte(body)))
	return req
}

func textEnvelope(messageID, from, text string) string {
	return fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"messages": [{
						"from": %q,
						"id": %q,
						"type": "text",
						"text": {"body": %q}
					}]
				}
			}]
		}]
	}`, from, messageID, text)
}

func TestHandleWebhook_VerificationHandshake(t *testing.T) {
	f := newFixture(testutil.NewStore())
	mux := f.handlers.Routes()

	t.Run("valid token echoes challenge", func(t *testing.T) {
		query := url.Values{
			"hub.mode":         {"subscribe"},
			"hub.verify_token": {testVerifyToken},
			"hub.challenge":    {"challenge-42"},
		}
		req := httptest.NewRequest(http.MethodGet, "/webhook?"+query.Encode(), nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "challenge-42", rec.Body.String())
	})

	t.Run("wrong token is forbidden", func(t *testing.T) {
		query := url.Values{
			"hub.mode":         {"subscribe"},
			"hub.verify_token": {"wrong"},
			"hub.challenge":    {"challenge-42"},
		}
		req := httptest.NewRequest(http.MethodGet, "/webhook?"+query.Encode(), nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NotContains(t, rec.Body.String(), "challenge-42")
	})

	t.Run("wrong mode is forbidden", func(t *testing.T) {
		query := url.Values{
			"hub.mode":         {"unsubscribe"},
			"hub.verify_token": {testVerifyToken},
		}
		req := httptest.NewRequest(http.MethodGet, "/webhook?"+query.Encode(), nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHandleWebhook_DisabledReturns503(t *testing.T) {
	f := newFixture(testutil.NewStore())
	f.cfg.RouterEnabled = false
	mux := f.handlers.Routes()

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/webhook", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, method)
	}
}

func TestHandleWebhook_RejectsUnsupportedMethods(t *testing.T) {
	f := newFixture(testutil.NewStore())
	mux := f.handlers.Routes()

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req := httptest.NewRequest(method, "/webhook", nil)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	f := newFixture(testutil.NewStore())
	mux := f.handlers.Routes()

	body := textEnvelope("msg-1", "15550001111", "basket")

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		req.Header.Set(signature.Header, signature.Sign("other-secret", []byte(body)))
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body+" "))
		req.Header.Set(signature.Header, signature.Sign(testAppSecret, []byte(body)))
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandleWebhook_MalformedJSON(t *testing.T) {
	f := newFixture(testutil.NewStore())
	mux := f.handlers.Routes()

	body := `{"object": "whatsapp_business_account", "entry": [`
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, signedPost(body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWebhook_RoutedDelivery(t *testing.T) {
	var mu sync.Mutex
	var deliveries []http.Header
	destination := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		deliveries = append(deliveries, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer destination.Close()

	store := testutil.NewStore()
	store.Mappings = []routing.KeywordMapping{{Keyword: "basket", RouteKey: "orders"}}
	store.Destinations = []routing.RouteDestination{
		{RouteKey: "orders", Slug: "orders-svc", DestinationURL: destination.URL, Priority: 1},
	}

	f := newFixture(store)
	mux := f.handlers.Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, signedPost(textEnvelope("msg-1", "15550001111", "basket please")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.service.Drain(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, deliveries, 1)
	assert.NotEmpty(t, deliveries[0].Get(fanout.CorrelationHeader))

	require.Len(t, store.LogsByStatus(storage.StatusRouted), 1)
	assert.True(t, store.Claimed("msg-1"))
}

func TestHandleWebhook_UnmatchedStillAcknowledged(t *testing.T) {
	store := testutil.NewStore()
	f := newFixture(store)
	mux := f.handlers.Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, signedPost(textEnvelope("msg-1", "15550001111", "nothing configured")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.service.Drain(ctx))

	assert.Len(t, store.LogsByStatus(storage.StatusUnmatched), 1)
}

func TestHandleHealth(t *testing.T) {
	store := testutil.NewStore()
	f := newFixture(store)
	mux := f.handlers.Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	store.HealthErr = fmt.Errorf("store down")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
