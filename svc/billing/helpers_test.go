package billing_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/substrack/pkg/jwt"
	"github.com/dmitrymomot/substrack/svc/billing"
)

const testWebhookSecret = "whsec_test_secret"

type recordingNotifier struct {
	mu    sync.Mutex
	notes []billing.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n billing.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) kinds() []billing.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]billing.NotificationKind, 0, len(r.notes))
	for _, n := range r.notes {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type fakeProcessor struct {
	mu       sync.Mutex
	sessions []billing.CheckoutSessionParams
	keys     []string
	start    time.Time
	end      time.Time
	err      error
}

func (p *fakeProcessor) CreateCheckoutSession(_ context.Context, secretKey string, params billing.CheckoutSessionParams) (*billing.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.keys = append(p.keys, secretKey)
	p.sessions = append(p.sessions, params)
	id := fmt.Sprintf("cs_test_%d", len(p.sessions))
	return &billing.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (p *fakeProcessor) SubscriptionPeriod(context.Context, string, string) (time.Time, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.start, p.end, p.err
}

type fixture struct {
	store     *billing.MemoryStore
	tokens    *billing.TokenIssuer
	service   *billing.Service
	notifier  *recordingNotifier
	processor *fakeProcessor
	merchant  billing.Merchant
	plan      billing.Plan
}

func newFixture(t *testing.T, opts ...billing.Option) *fixture {
	t.Helper()

	store := billing.NewMemoryStore()
	merchant := billing.Merchant{
		ID:    uuid.New(),
		Name:  "Acme Analytics",
		Email: "billing@acme.test",
		Credentials: billing.ProcessorCredentials{
			SecretKey:      "sk_test_acme",
			PublishableKey: "pk_test_acme",
			WebhookSecret:  testWebhookSecret,
		},
	}
	plan := billing.Plan{
		ID:              uuid.New(),
		MerchantID:      merchant.ID,
		Name:            "Pro",
		Price:           decimal.RequireFromString("1180.00"),
		Currency:        "INR",
		BillingCycle:    billing.CycleMonthly,
		Features:        []string{"reports", "exports"},
		Active:          true,
		ExternalPriceID: "price_pro",
	}
	store.AddMerchant(merchant)
	store.AddPlan(plan)

	signer, err := jwt.NewFromString("test-signing-key-of-at-least-32-bytes")
	require.NoError(t, err)
	tokens := billing.NewTokenIssuer(store, signer, nil)

	notifier := &recordingNotifier{}
	processor := &fakeProcessor{
		start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		end:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	opts = append([]billing.Option{billing.WithNotifier(notifier), billing.WithProcessor(processor)}, opts...)

	return &fixture{
		store:     store,
		tokens:    tokens,
		service:   billing.NewService(store, tokens, opts...),
		notifier:  notifier,
		processor: processor,
		merchant:  merchant,
		plan:      plan,
	}
}

// deliver signs the event with the merchant secret and runs it through
// the pipeline.
func (f *fixture) deliver(t *testing.T, eventType string, object map[string]any) (*billing.WebhookResult, error) {
	t.Helper()
	payload := eventPayload(t, "evt_"+uuid.NewString(), eventType, object)
	signed := sign(payload, testWebhookSecret)
	return f.service.HandleWebhook(context.Background(), signed.Payload, signed.Header)
}

func eventPayload(t *testing.T, id, eventType string, object map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2025-07-30.basil",
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return payload
}

func sign(payload []byte, secret string) *webhook.SignedPayload {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
}

func (f *fixture) checkoutSession(sessionID, subscriptionID string, amount int64) map[string]any {
	return map[string]any{
		"id":           sessionID,
		"object":       "checkout.session",
		"mode":         "subscription",
		"subscription": subscriptionID,
		"customer":     "cus_123",
		"invoice":      "in_first_" + sessionID,
		"amount_total": amount,
		"currency":     "inr",
		"metadata": map[string]string{
			billing.MetadataMerchantID:   f.merchant.ID.String(),
			billing.MetadataPlanID:       f.plan.ID.String(),
			billing.MetadataCustomerName: "Jane Doe",
		},
		"customer_details": map[string]any{"email": "jane@example.com", "name": "Jane D."},
	}
}

// invoice builds an invoice object without merchant metadata, so tenant
// resolution has to fall back to the stored subscriber.
func invoiceObject(invoiceID, subscriptionID, reason string, amount int64) map[string]any {
	return map[string]any{
		"id":             invoiceID,
		"object":         "invoice",
		"subscription":   subscriptionID,
		"amount_paid":    amount,
		"amount_due":     amount,
		"currency":       "inr",
		"billing_reason": reason,
		"created":        time.Now().Unix(),
		"lines": map[string]any{"data": []map[string]any{{
			"period": map[string]any{"start": time.Now().Unix(), "end": time.Now().AddDate(0, 1, 0).Unix()},
		}}},
	}
}

func (f *fixture) planCounter(t *testing.T) int64 {
	t.Helper()
	p, err := f.store.GetPlan(context.Background(), f.plan.ID)
	require.NoError(t, err)
	return p.SubscriberCount
}

func (f *fixture) subscriber(t *testing.T, externalID string) *billing.Subscriber {
	t.Helper()
	sub, err := f.store.GetSubscriberByExternalID(context.Background(), externalID)
	require.NoError(t, err)
	return sub
}
