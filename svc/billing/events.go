package billing

import (
	"bytes"
	"encoding/json"
	"time"
)

// Processor event types handled by the dispatcher.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"
)

// Metadata keys written on checkout sessions and their subscriptions.
const (
	MetadataMerchantID   = "merchant_id"
	MetadataPlanID       = "plan_id"
	MetadataCustomerName = "customer_name"
)

// billingReasonFirstInvoice marks the invoice created together with the
// subscription during checkout.
const billingReasonFirstInvoice = "subscription_create"

// expandable holds a reference that Stripe sends either as a bare id or as
// an expanded object with an "id" field.
type expandable struct {
	ID string
}

func (e *expandable) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		e.ID = ""
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &e.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	e.ID = obj.ID
	return nil
}

type checkoutSessionObject struct {
	ID                 string            `json:"id"`
	Mode               string            `json:"mode"`
	Subscription       expandable        `json:"subscription"`
	Customer           expandable        `json:"customer"`
	Invoice            expandable        `json:"invoice"`
	CustomerEmail      string            `json:"customer_email"`
	AmountTotal        int64             `json:"amount_total"`
	Currency           string            `json:"currency"`
	PaymentStatus      string            `json:"payment_status"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	Metadata           map[string]string `json:"metadata"`
	CustomerDetails    *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
}

func (s checkoutSessionObject) customerEmail() string {
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

func (s checkoutSessionObject) customerName() string {
	if name := s.Metadata[MetadataCustomerName]; name != "" {
		return name
	}
	if s.CustomerDetails != nil {
		return s.CustomerDetails.Name
	}
	return ""
}

func (s checkoutSessionObject) paymentMethod() string {
	if len(s.PaymentMethodTypes) > 0 {
		return s.PaymentMethodTypes[0]
	}
	return ""
}

type subscriptionPeriod struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

type subscriptionObject struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Customer expandable        `json:"customer"`
	Metadata map[string]string `json:"metadata"`
	subscriptionPeriod
	Items struct {
		Data []subscriptionPeriod `json:"data"`
	} `json:"items"`
}

// period returns the current billing period. Newer API versions report it
// per subscription item instead of on the subscription.
func (s subscriptionObject) period() (start, end time.Time) {
	p := s.subscriptionPeriod
	if p.CurrentPeriodEnd == 0 && len(s.Items.Data) > 0 {
		p = s.Items.Data[0]
	}
	return unixTime(p.CurrentPeriodStart), unixTime(p.CurrentPeriodEnd)
}

type invoiceLine struct {
	Metadata map[string]string `json:"metadata"`
	Period   struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	} `json:"period"`
}

type subscriptionDetails struct {
	Subscription expandable        `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type invoiceObject struct {
	ID                  string               `json:"id"`
	Subscription        expandable           `json:"subscription"`
	SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	Parent              *struct {
		SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
	AmountPaid        int64  `json:"amount_paid"`
	AmountDue         int64  `json:"amount_due"`
	Currency          string `json:"currency"`
	BillingReason     string `json:"billing_reason"`
	AttemptCount      int    `json:"attempt_count"`
	Created           int64  `json:"created"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	Lines struct {
		Data []invoiceLine `json:"data"`
	} `json:"lines"`
}

// subscriptionID returns the subscription the invoice belongs to; the
// field moved under parent.subscription_details in newer API versions.
func (i invoiceObject) subscriptionID() string {
	if i.Subscription.ID != "" {
		return i.Subscription.ID
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

func (i invoiceObject) paidAt(fallback time.Time) time.Time {
	if t := unixTime(i.StatusTransitions.PaidAt); !t.IsZero() {
		return t
	}
	return fallback
}

// periodEnd is the end of the period the invoice pays for.
func (i invoiceObject) periodEnd() time.Time {
	for _, l := range i.Lines.Data {
		if l.Period.End > 0 {
			return unixTime(l.Period.End)
		}
	}
	return time.Time{}
}

func (i invoiceObject) isFirst() bool {
	return i.BillingReason == billingReasonFirstInvoice
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
