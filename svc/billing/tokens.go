package billing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/substrack/pkg/jwt"
)

// AccessTokenTTL is the lifetime of an issued access token.
const AccessTokenTTL = 90 * 24 * time.Hour

// AccessClaims is the payload of a subscriber access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	MerchantID   uuid.UUID `json:"merchant_id"`
	SubscriberID uuid.UUID `json:"subscriber_id"`
	PlanID       uuid.UUID `json:"plan_id"`
	PlanName     string    `json:"plan_name"`
	Features     []string  `json:"features"`
	Status       Status    `json:"status"`
	Expiry       string    `json:"expires_at"`
}

// HasSubscription reports whether the token was issued for an active
// subscriber.
func (c AccessClaims) HasSubscription() bool {
	return c.Status == StatusActive
}

// HasFeature reports whether an active subscription includes feature.
func (c AccessClaims) HasFeature(feature string) bool {
	return c.HasSubscription() && slices.Contains(c.Features, feature)
}

// SubscriberSummary is returned alongside an exchanged token.
type SubscriberSummary struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Plan     string   `json:"plan"`
	Features []string `json:"features"`
	Status   Status   `json:"status"`
}

// ExchangeResult is the outcome of a successful token exchange.
type ExchangeResult struct {
	Token      string            `json:"token"`
	Subscriber SubscriberSummary `json:"subscriber"`
}

// TokenStore is the persistence the issuer needs.
type TokenStore interface {
	SubscriberStore
	PlanStore
	AccessTokenStore
}

// TokenIssuer mints access tokens and runs the one-time exchange.
type TokenIssuer struct {
	store  TokenStore
	signer *jwt.Service
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. A nil clock uses time.Now. The signer's
// key is shared by all merchants.
func NewTokenIssuer(store TokenStore, signer *jwt.Service, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{store: store, signer: signer, now: now}
}

// Issue loads the subscriber and its plan and signs a fresh token.
func (t *TokenIssuer) Issue(ctx context.Context, subscriberID, merchantID uuid.UUID) (string, error) {
	sub, err := t.store.GetSubscriber(ctx, subscriberID)
	if err != nil {
		return "", err
	}
	if sub.MerchantID != merchantID {
		return "", ErrSubscriberNotFound
	}
	plan, err := t.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return "", err
	}
	token, _, err := t.mint(sub, plan)
	return token, err
}

// IssueForSession signs a token for sub and stores it against the checkout
// session for a later exchange. A session that already has a token keeps
// it and saved is false.
func (t *TokenIssuer) IssueForSession(ctx context.Context, sub *Subscriber, plan *Plan, sessionID string) (saved bool, err error) {
	token, expiresAt, err := t.mint(sub, plan)
	if err != nil {
		return false, err
	}
	return t.store.SaveAccessToken(ctx, &AccessToken{
		ID:           uuid.New(),
		MerchantID:   sub.MerchantID,
		SubscriberID: sub.ID,
		Token:        token,
		SessionID:    sessionID,
		ExpiresAt:    expiresAt,
		CreatedAt:    t.now().UTC(),
	})
}

// Exchange consumes the token stored for sessionID. Exactly one of any
// number of concurrent calls succeeds; the others get an error satisfying
// ErrAccessTokenUnavailable.
func (t *TokenIssuer) Exchange(ctx context.Context, sessionID string) (*ExchangeResult, error) {
	if sessionID == "" {
		return nil, ErrAccessTokenNotFound
	}
	now := t.now().UTC()

	tok, err := t.store.ConsumeAccessToken(ctx, sessionID, now)
	if errors.Is(err, ErrAccessTokenNotFound) {
		return nil, t.unavailable(ctx, sessionID, now)
	}
	if err != nil {
		return nil, err
	}

	summary := SubscriberSummary{Features: []string{}}
	sub, err := t.store.GetSubscriber(ctx, tok.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("load subscriber for exchanged token: %w", err)
	}
	summary.Email, summary.Name, summary.Status = sub.CustomerEmail, sub.CustomerName, sub.Status

	plan, err := t.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("load plan for exchanged token: %w", err)
	}
	summary.Plan = plan.Name
	if plan.Features != nil {
		summary.Features = plan.Features
	}

	return &ExchangeResult{Token: tok.Token, Subscriber: summary}, nil
}

// Verify checks a token's signature and expiry and returns its claims.
func (t *TokenIssuer) Verify(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := t.signer.Parse(token, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// Signer exposes the signing service for HTTP middleware.
func (t *TokenIssuer) Signer() *jwt.Service {
	return t.signer
}

// unavailable explains why a conditional consume matched no row.
func (t *TokenIssuer) unavailable(ctx context.Context, sessionID string, now time.Time) error {
	tok, err := t.store.GetAccessToken(ctx, sessionID)
	switch {
	case errors.Is(err, ErrAccessTokenNotFound):
		return ErrAccessTokenNotFound
	case err != nil:
		return err
	case tok.Used:
		return ErrAccessTokenUsed
	case !tok.ExpiresAt.After(now):
		return ErrAccessTokenExpired
	}
	return ErrAccessTokenUsed
}

func (t *TokenIssuer) mint(sub *Subscriber, plan *Plan) (string, time.Time, error) {
	issuedAt := t.now().UTC()
	expiresAt := issuedAt.Add(AccessTokenTTL)
	features := plan.Features
	if features == nil {
		features = []string{}
	}

	token, err := t.signer.Generate(AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.ID.String(),
			IssuedAt:  issuedAt.Unix(),
			ExpiresAt: expiresAt.Unix(),
		},
		Email:        sub.CustomerEmail,
		Name:         sub.CustomerName,
		MerchantID:   sub.MerchantID,
		SubscriberID: sub.ID,
		PlanID:       plan.ID,
		PlanName:     plan.Name,
		Features:     features,
		Status:       sub.Status,
		Expiry:       expiresAt.Format(time.RFC3339),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, expiresAt, nil
}
