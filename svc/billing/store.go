package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MerchantStore reads tenants and their processor credentials.
type MerchantStore interface {
	// GetMerchant returns ErrMerchantNotFound for unknown ids.
	GetMerchant(ctx context.Context, id uuid.UUID) (*Merchant, error)
	UpdateMerchantCredentials(ctx context.Context, id uuid.UUID, creds ProcessorCredentials) error
}

// PlanStore reads plans and maintains their subscriber counters.
type PlanStore interface {
	// GetPlan returns ErrPlanNotFound for unknown ids.
	GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error)
	// ReconcilePlanCounters resets every counter to the number of
	// non-cancelled subscribers of the plan and returns the corrected ones.
	ReconcilePlanCounters(ctx context.Context) ([]CounterDrift, error)
}

// SubscriberStore persists subscribers. Counter changes happen inside the
// same store transaction as the status change that causes them.
type SubscriberStore interface {
	GetSubscriber(ctx context.Context, id uuid.UUID) (*Subscriber, error)
	// GetSubscriberByExternalID looks a subscriber up by the processor's
	// subscription id and returns ErrSubscriberNotFound when absent.
	GetSubscriberByExternalID(ctx context.Context, externalSubscriptionID string) (*Subscriber, error)
	// CreateSubscriber inserts sub and increments its plan's counter
	// atomically. When a subscriber with the same external subscription id
	// already exists nothing changes and created is false.
	CreateSubscriber(ctx context.Context, sub *Subscriber) (created bool, err error)
	// UpdateSubscriber applies upd and returns the updated row.
	UpdateSubscriber(ctx context.Context, externalSubscriptionID string, upd SubscriberUpdate) (*Subscriber, error)
	// CancelSubscriber marks the subscriber cancelled and decrements the
	// counter of the plan it was on. A subscriber that is already cancelled
	// is returned unchanged with cancelled false.
	CancelSubscriber(ctx context.Context, externalSubscriptionID string, at time.Time) (sub *Subscriber, cancelled bool, err error)
}

// TransactionStore is the payment log, keyed by external payment id.
type TransactionStore interface {
	// InsertTransaction stores txn when no row with its external payment id
	// exists. A success for a payment whose row is not yet a success
	// replaces that row's outcome in place and keeps the row id. inserted
	// reports whether either happened; on success txn.ID is the id of the
	// stored row. Every other repeat is a no-op.
	InsertTransaction(ctx context.Context, txn *PaymentTransaction) (inserted bool, err error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*PaymentTransaction, error)
}

// AccessTokenStore keeps one access token per checkout session.
type AccessTokenStore interface {
	// SaveAccessToken stores tok; an existing token for the same session
	// is kept and saved is false.
	SaveAccessToken(ctx context.Context, tok *AccessToken) (saved bool, err error)
	GetAccessToken(ctx context.Context, sessionID string) (*AccessToken, error)
	// ConsumeAccessToken marks the session's token used if it is unused and
	// not expired at now, in a single conditional write. It returns
	// ErrAccessTokenNotFound when no row qualified.
	ConsumeAccessToken(ctx context.Context, sessionID string, now time.Time) (*AccessToken, error)
}

// Store is everything the billing services need from persistence.
type Store interface {
	MerchantStore
	PlanStore
	SubscriberStore
	TransactionStore
	AccessTokenStore
}
