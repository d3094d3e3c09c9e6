package billing

import (
	"errors"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Verifier authenticates a raw delivery against a tenant's signing secret
// and returns the parsed event.
type Verifier interface {
	Verify(payload []byte, signatureHeader, secret string) (stripe.Event, error)
}

// StripeVerifier checks the Stripe-Signature scheme (HMAC-SHA256 over
// "timestamp.payload") with a timestamp tolerance.
type StripeVerifier struct {
	Tolerance time.Duration
}

// NewStripeVerifier uses the library default tolerance of five minutes.
func NewStripeVerifier() StripeVerifier {
	return StripeVerifier{Tolerance: webhook.DefaultTolerance}
}

func (v StripeVerifier) Verify(payload []byte, signatureHeader, secret string) (stripe.Event, error) {
	if signatureHeader == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	if secret == "" {
		return stripe.Event{}, ErrMissingWebhookSecret
	}

	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, errors.Join(ErrInvalidSignature, err)
	}
	return event, nil
}
