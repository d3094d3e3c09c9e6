package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/substrack/modules/billing"
	"github.com/dmitrymomot/substrack/pkg/invoice"
	"github.com/dmitrymomot/substrack/pkg/jwt"
	"github.com/dmitrymomot/substrack/pkg/ratelimit"
	svc "github.com/dmitrymomot/substrack/svc/billing"
)

const (
	webhookSecret = "whsec_module_secret"
	adminKey      = "admin-key"
)

type stubProcessor struct {
	mu  sync.Mutex
	err error
}

func (p *stubProcessor) CreateCheckoutSession(_ context.Context, _ string, params svc.CheckoutSessionParams) (*svc.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &svc.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (p *stubProcessor) SubscriptionPeriod(context.Context, string, string) (time.Time, time.Time, error) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

type env struct {
	store     *svc.MemoryStore
	processor *stubProcessor
	tokens    *svc.TokenIssuer
	router    http.Handler
	merchant  svc.Merchant
	plan      svc.Plan
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := svc.NewMemoryStore()
	merchant := svc.Merchant{
		ID:    uuid.New(),
		Name:  "Acme Analytics",
		Email: "billing@acme.test",
		Credentials: svc.ProcessorCredentials{
			SecretKey:      "sk_test_acme",
			PublishableKey: "pk_test_acme",
			WebhookSecret:  webhookSecret,
		},
	}
	plan := svc.Plan{
		ID:              uuid.New(),
		MerchantID:      merchant.ID,
		Name:            "Pro",
		Price:           decimal.RequireFromString("1180.00"),
		Currency:        "INR",
		BillingCycle:    svc.CycleMonthly,
		Features:        []string{"reports"},
		Active:          true,
		ExternalPriceID: "price_pro",
	}
	store.AddMerchant(merchant)
	store.AddPlan(plan)

	signer, err := jwt.NewFromString("module-test-signing-key-32-bytes!")
	require.NoError(t, err)
	tokens := svc.NewTokenIssuer(store, signer, nil)
	processor := &stubProcessor{}

	module := billing.New(billing.Options{
		Webhooks:        svc.NewService(store, tokens, svc.WithProcessor(processor)),
		Checkout:        svc.NewCheckoutService(store, processor, nil),
		Tokens:          tokens,
		Invoices:        svc.NewInvoiceService(store, invoice.NewGenerator(), ""),
		Merchants:       svc.NewMerchantService(store, nil),
		MerchantAuth:    billing.AdminKey(adminKey),
		MaxWebhookBytes: 64 << 10,
	})

	return &env{
		store:     store,
		processor: processor,
		tokens:    tokens,
		router:    module.Handle(),
		merchant:  merchant,
		plan:      plan,
	}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) checkoutEvent(t *testing.T, sessionID string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_" + uuid.NewString(),
		"object":      "event",
		"type":        svc.EventCheckoutCompleted,
		"api_version": "2025-07-30.basil",
		"created":     time.Now().Unix(),
		"data": map[string]any{"object": map[string]any{
			"id":           sessionID,
			"object":       "checkout.session",
			"mode":         "subscription",
			"subscription": "sub_" + sessionID,
			"customer":     "cus_1",
			"invoice":      "in_" + sessionID,
			"amount_total": 118000,
			"currency":     "inr",
			"metadata": map[string]string{
				svc.MetadataMerchantID:   e.merchant.ID.String(),
				svc.MetadataPlanID:       e.plan.ID.String(),
				svc.MetadataCustomerName: "Jane Doe",
			},
			"customer_details": map[string]any{"email": "jane@example.com"},
		}},
	})
	require.NoError(t, err)
	return payload
}

func signed(payload []byte, secret string) (body []byte, header string) {
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return sp.Payload, sp.Header
}

func (e *env) deliver(t *testing.T, payload []byte, secret string) *httptest.ResponseRecorder {
	t.Helper()
	body, header := signed(payload, secret)
	return e.do(t, http.MethodPost, "/webhooks/stripe", body, map[string]string{billing.SignatureHeader: header})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string              `json:"code"`
			Details map[string][]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

func TestWebhookToAccessToken(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.deliver(t, e.checkoutEvent(t, "cs_flow"), webhookSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/access/exchange", map[string]string{"session_id": "cs_flow"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var exchanged svc.ExchangeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exchanged))
	require.NotEmpty(t, exchanged.Token)
	assert.Equal(t, "jane@example.com", exchanged.Subscriber.Email)
	assert.Equal(t, "Pro", exchanged.Subscriber.Plan)
	assert.Equal(t, svc.StatusActive, exchanged.Subscriber.Status)

	t.Run("second exchange is rejected", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/access/exchange", map[string]string{"session_id": "cs_flow"}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "access_token_unavailable", errorCode(t, rec))
	})

	t.Run("entitlements with token", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/access/entitlements", nil, map[string]string{"Authorization": "Bearer " + exchanged.Token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, true, body["has_subscription"])
		assert.Equal(t, "Pro", body["plan_name"])
		assert.Equal(t, e.merchant.ID.String(), body["merchant_id"])
	})

	t.Run("entitlements rejects forged token", func(t *testing.T) {
		forged := exchanged.Token[:len(exchanged.Token)-2] + "xx"
		rec := e.do(t, http.MethodGet, "/access/entitlements", nil, map[string]string{"Authorization": "Bearer " + forged})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

		rec = e.do(t, http.MethodGet, "/access/entitlements", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invoice download", func(t *testing.T) {
		txns := e.store.Transactions()
		require.Len(t, txns, 1)
		path := fmt.Sprintf("/merchants/%s/transactions/%s/invoice.pdf", e.merchant.ID, txns[0].ID)

		rec := e.do(t, http.MethodGet, path, nil, map[string]string{"Authorization": "Bearer " + adminKey})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "INV-")
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

		other := fmt.Sprintf("/merchants/%s/transactions/%s/invoice.pdf", uuid.New(), txns[0].ID)
		rec = e.do(t, http.MethodGet, other, nil, map[string]string{"Authorization": "Bearer " + adminKey})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = e.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestWebhookRejections(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	t.Run("bad signature", func(t *testing.T) {
		rec := e.deliver(t, e.checkoutEvent(t, "cs_bad"), "whsec_wrong")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", errorCode(t, rec))
	})

	t.Run("missing signature", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/webhooks/stripe", e.checkoutEvent(t, "cs_nosig"), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/webhooks/stripe", []byte(strings.Repeat("a", 65<<10)), map[string]string{billing.SignatureHeader: "t=1,v1=00"})
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	assert.Zero(t, e.store.MutationCount())
}

// racingStore fails subscriber creation the way a foreign key violation
// surfaces when the plan disappears mid-transition.
type racingStore struct {
	*svc.MemoryStore
}

func (racingStore) CreateSubscriber(context.Context, *svc.Subscriber) (bool, error) {
	return false, fmt.Errorf("create subscriber: %w", svc.ErrPlanNotFound)
}

func TestWebhookTransitionFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	store := racingStore{MemoryStore: e.store}
	module := billing.New(billing.Options{
		Webhooks:        svc.NewService(store, e.tokens),
		MaxWebhookBytes: 64 << 10,
	})
	e.router = module.Handle()

	rec := e.deliver(t, e.checkoutEvent(t, "cs_race"), webhookSecret)
	assert.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	assert.Equal(t, "internal_server_error", errorCode(t, rec))
}

func TestCheckoutEndpoint(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	request := func(mutate func(*svc.CheckoutRequest)) svc.CheckoutRequest {
		req := svc.CheckoutRequest{
			MerchantID:    e.merchant.ID,
			PlanID:        e.plan.ID,
			CustomerEmail: "jane@example.com",
			SuccessURL:    "https://app.acme.test/thanks",
			CancelURL:     "https://app.acme.test/pricing",
		}
		if mutate != nil {
			mutate(&req)
		}
		return req
	}

	rec := e.do(t, http.MethodPost, "/checkout", request(nil), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"cs_test_1","url":"https://checkout.stripe.test/cs_test_1"}`, rec.Body.String())

	cases := []struct {
		name   string
		req    svc.CheckoutRequest
		status int
		code   string
	}{
		{"unknown merchant", request(func(r *svc.CheckoutRequest) { r.MerchantID = uuid.New() }), http.StatusNotFound, "not_found"},
		{"unknown plan", request(func(r *svc.CheckoutRequest) { r.PlanID = uuid.New() }), http.StatusNotFound, "not_found"},
		{"invalid email", request(func(r *svc.CheckoutRequest) { r.CustomerEmail = "not-an-email" }), http.StatusUnprocessableEntity, "checkout_rejected"},
		{"relative return url", request(func(r *svc.CheckoutRequest) { r.SuccessURL = "/thanks" }), http.StatusUnprocessableEntity, "checkout_rejected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/checkout", tc.req, nil)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, errorCode(t, rec))
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/checkout", []byte(`{"merchant_id":`), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("processor failure", func(t *testing.T) {
		e.processor.mu.Lock()
		e.processor.err = errors.New("stripe: connection reset")
		e.processor.mu.Unlock()

		rec := e.do(t, http.MethodPost, "/checkout", request(nil), nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "processor_failure", errorCode(t, rec))
	})
}

func TestCredentialsEndpoint(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	auth := map[string]string{"Authorization": "Bearer " + adminKey}
	path := fmt.Sprintf("/merchants/%s/credentials", e.merchant.ID)

	t.Run("valid update", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, path, svc.Credentials{
			SecretKey:      "sk_live_new",
			PublishableKey: "pk_live_new",
			WebhookSecret:  "whsec_new",
		}, auth)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		m, err := e.store.GetMerchant(context.Background(), e.merchant.ID)
		require.NoError(t, err)
		assert.Equal(t, "sk_live_new", m.Credentials.SecretKey)
	})

	t.Run("invalid keys", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, path, svc.Credentials{
			SecretKey:      "pk_live_wrong",
			PublishableKey: "pk_live_new",
			WebhookSecret:  "whsec_new",
		}, auth)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var body struct {
			Error handlerError `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "validation_error", body.Error.Code)
		assert.Contains(t, body.Error.Details, "secret_key")
	})

	t.Run("unknown merchant", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, fmt.Sprintf("/merchants/%s/credentials", uuid.New()), svc.Credentials{
			SecretKey:      "sk_test_x",
			PublishableKey: "pk_test_x",
			WebhookSecret:  "whsec_x",
		}, auth)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed merchant id", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, "/merchants/acme/credentials", svc.Credentials{}, auth)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires admin key", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, path, svc.Credentials{}, map[string]string{"Authorization": "Bearer nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

type handlerError struct {
	Code    string              `json:"code"`
	Details map[string][]string `json:"details"`
}

func TestRequireAccess(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.deliver(t, e.checkoutEvent(t, "cs_gate"), webhookSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	sub, err := e.store.GetSubscriberByExternalID(context.Background(), "sub_cs_gate")
	require.NoError(t, err)
	token, err := e.tokens.Issue(context.Background(), sub.ID, e.merchant.ID)
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, found := billing.ClaimsFromContext(r.Context())
		if !found {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(claims.PlanName))
	})

	r := chi.NewRouter()
	r.With(billing.RequireAccess(e.tokens, billing.WithActiveSubscription(), billing.WithFeature("reports"))).Get("/reports", ok)
	r.With(billing.RequireAccess(e.tokens, billing.WithFeature("exports"))).Get("/exports", ok)

	serve := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec = serve("/reports")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Pro", rec.Body.String())

	rec = serve("/exports")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestPublicRateLimit(t *testing.T) {
	t.Parallel()

	store := svc.NewMemoryStore()
	signer, err := jwt.NewFromString("module-test-signing-key-32-bytes!")
	require.NoError(t, err)
	limiter, err := ratelimit.NewFixedWindow(ratelimit.NewMemoryStore(), 1, time.Minute)
	require.NoError(t, err)

	router := billing.New(billing.Options{
		Tokens:        svc.NewTokenIssuer(store, signer, nil),
		PublicLimiter: limiter,
	}).Handle()

	exchange := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/access/exchange", strings.NewReader(`{"session_id":"cs_unknown"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.77:4000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNotFound, exchange().Code)

	rec := exchange()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "too_many_requests", body.Error.Code)
}
