package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// CheckoutSessionParams describes a hosted subscription checkout.
type CheckoutSessionParams struct {
	PriceID       string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession is the processor's answer to a checkout request.
type CheckoutSession struct {
	ID  string
	URL string
}

// Processor is the outbound side of the payment processor. Every call is
// made with the merchant's own secret key.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, secretKey string, params CheckoutSessionParams) (*CheckoutSession, error)
	// SubscriptionPeriod returns the current billing period of a
	// subscription. Zero times mean the processor did not report one.
	SubscriptionPeriod(ctx context.Context, secretKey, subscriptionID string) (start, end time.Time, err error)
}

// StripeProcessor implements Processor with per-merchant API clients.
type StripeProcessor struct {
	backends *stripe.Backends
}

// NewStripeProcessor creates a processor. Nil backends use the SDK
// defaults; tests pass backends pointing at a fake server.
func NewStripeProcessor(backends *stripe.Backends) *StripeProcessor {
	return &StripeProcessor{backends: backends}
}

func (p *StripeProcessor) api(secretKey string) *client.API {
	return client.New(secretKey, p.backends)
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, secretKey string, in CheckoutSessionParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(in.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: in.Metadata,
		},
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	params.Metadata = in.Metadata
	params.Context = ctx

	sess, err := p.api(secretKey).CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Join(ErrProcessorFailure, err)
	}
	if sess.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProcessor) SubscriptionPeriod(ctx context.Context, secretKey, subscriptionID string) (time.Time, time.Time, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.api(secretKey).Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Join(ErrProcessorFailure, err)
	}

	// The period lives on the subscription or on its items depending on the
	// account's API version, so it is read from the raw response.
	var obj subscriptionObject
	if sub.LastResponse != nil && len(sub.LastResponse.RawJSON) > 0 {
		if err := json.Unmarshal(sub.LastResponse.RawJSON, &obj); err != nil {
			return time.Time{}, time.Time{}, errors.Join(ErrMalformedEvent, err)
		}
	}
	start, end := obj.period()
	return start, end, nil
}
