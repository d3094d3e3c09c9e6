package billing

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a subscriber.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// TransactionStatus is the outcome recorded for a payment.
type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
	TransactionPending TransactionStatus = "pending"
)

// BillingCycle is the renewal period of a plan.
type BillingCycle string

const (
	CycleDaily     BillingCycle = "daily"
	CycleWeekly    BillingCycle = "weekly"
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
)

// Valid reports whether c is one of the known cycles.
func (c BillingCycle) Valid() bool {
	switch c {
	case CycleDaily, CycleWeekly, CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	}
	return false
}

// Next returns the renewal time following from. Unknown cycles are
// treated as monthly.
func (c BillingCycle) Next(from time.Time) time.Time {
	switch c {
	case CycleDaily:
		return from.AddDate(0, 0, 1)
	case CycleWeekly:
		return from.AddDate(0, 0, 7)
	case CycleQuarterly:
		return from.AddDate(0, 3, 0)
	case CycleYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// ProcessorCredentials are the merchant's own Stripe keys.
type ProcessorCredentials struct {
	SecretKey      string `json:"-"`
	PublishableKey string `json:"publishable_key"`
	WebhookSecret  string `json:"-"`
}

// Merchant is a tenant of the platform.
type Merchant struct {
	ID          uuid.UUID
	Name        string
	Email       string
	Address     string
	TaxID       string
	LogoRef     string
	Phone       string
	Credentials ProcessorCredentials
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Plan is a merchant's subscription offering. SubscriberCount is maintained
// by the store and only moves through subscriber creation and cancellation.
type Plan struct {
	ID                uuid.UUID
	MerchantID        uuid.UUID
	Name              string
	Description       string
	Price             decimal.Decimal
	Currency          string
	BillingCycle      BillingCycle
	Features          []string
	Active            bool
	ExternalProductID string
	ExternalPriceID   string
	SubscriberCount   int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasFeature reports whether the plan lists feature.
func (p Plan) HasFeature(feature string) bool {
	return slices.Contains(p.Features, feature)
}

// Subscriber is a customer's subscription to one plan. Rows are never
// deleted; cancellation is a status.
type Subscriber struct {
	ID                     uuid.UUID
	MerchantID             uuid.UUID
	PlanID                 uuid.UUID
	CustomerName           string
	CustomerEmail          string
	Status                 Status
	ExternalSubscriptionID string
	ExternalCustomerID     string
	StartDate              time.Time
	NextRenewalDate        time.Time
	LastPaymentDate        *time.Time
	LastPaymentAmount      decimal.NullDecimal
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// PaymentTransaction is a payment log entry. There is at most one row per
// ExternalPaymentID; a failed row may later be promoted to success.
type PaymentTransaction struct {
	ID                uuid.UUID
	MerchantID        uuid.UUID
	SubscriberID      uuid.UUID
	PlanID            uuid.UUID
	Amount            decimal.Decimal
	Currency          string
	Status            TransactionStatus
	ExternalPaymentID string
	PaymentDate       time.Time
	PaymentMethod     string
	CreatedAt         time.Time
}

// AccessToken is the stored, single-use record behind a token exchange.
type AccessToken struct {
	ID           uuid.UUID
	MerchantID   uuid.UUID
	SubscriberID uuid.UUID
	Token        string
	SessionID    string
	ExpiresAt    time.Time
	Used         bool
	UsedAt       *time.Time
	CreatedAt    time.Time
}

// SubscriberUpdate lists the fields an event may change. Nil fields are
// left untouched.
type SubscriberUpdate struct {
	Status            *Status
	NextRenewalDate   *time.Time
	LastPaymentDate   *time.Time
	LastPaymentAmount *decimal.Decimal
}

// Empty reports whether the update changes nothing.
func (u SubscriberUpdate) Empty() bool {
	return u.Status == nil && u.NextRenewalDate == nil && u.LastPaymentDate == nil && u.LastPaymentAmount == nil
}

// CounterDrift is a plan counter corrected by reconciliation.
type CounterDrift struct {
	PlanID uuid.UUID
	Stored int64
	Actual int64
}
