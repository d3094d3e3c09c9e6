package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/substrack/pkg/invoice"
)

// BuildInvoice assembles the document for one transaction.
func BuildInvoice(m *Merchant, sub *Subscriber, plan *Plan, txn *PaymentTransaction, portalURL string) invoice.Invoice {
	status := invoice.StatusPending
	switch txn.Status {
	case TransactionSuccess:
		status = invoice.StatusPaid
	case TransactionFailed:
		status = invoice.StatusFailed
	}

	details := string(plan.BillingCycle) + " subscription"
	if plan.Description != "" {
		details = plan.Description + " (" + details + ")"
	}

	currency := txn.Currency
	if currency == "" {
		currency = plan.Currency
	}

	return invoice.Invoice{
		Number:   invoice.Number(txn.ID.String(), txn.PaymentDate),
		IssuedAt: txn.PaymentDate,
		Status:   status,
		Seller: invoice.Party{
			Name:    m.Name,
			Email:   m.Email,
			Phone:   m.Phone,
			Address: m.Address,
			TaxID:   m.TaxID,
			LogoRef: m.LogoRef,
		},
		Buyer: invoice.Party{
			Name:  sub.CustomerName,
			Email: sub.CustomerEmail,
		},
		Description:    plan.Name,
		Details:        details,
		Total:          txn.Amount,
		Currency:       strings.ToUpper(currency),
		PaymentMethod:  txn.PaymentMethod,
		TransactionRef: txn.ExternalPaymentID,
		PortalURL:      portalURL,
	}
}

// Renderer produces PDF bytes for an invoice. *invoice.Generator
// implements it.
type Renderer interface {
	Render(ctx context.Context, inv invoice.Invoice) ([]byte, error)
	RenderBase64(ctx context.Context, inv invoice.Invoice) (string, error)
}

// InvoiceService serves invoice downloads.
type InvoiceService struct {
	store     Store
	renderer  Renderer
	portalURL string
}

// NewInvoiceService creates the download service. portalURL is printed as a
// QR code when not empty.
func NewInvoiceService(store Store, renderer Renderer, portalURL string) *InvoiceService {
	return &InvoiceService{store: store, renderer: renderer, portalURL: portalURL}
}

// Invoice renders the invoice of a merchant's transaction. A transaction
// of another merchant is reported as not found.
func (s *InvoiceService) Invoice(ctx context.Context, merchantID, transactionID uuid.UUID) (invoice.Invoice, []byte, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return invoice.Invoice{}, nil, err
	}
	if txn.MerchantID != merchantID {
		return invoice.Invoice{}, nil, ErrTransactionNotFound
	}

	m, err := s.store.GetMerchant(ctx, txn.MerchantID)
	if err != nil {
		return invoice.Invoice{}, nil, err
	}
	sub, err := s.store.GetSubscriber(ctx, txn.SubscriberID)
	if err != nil {
		return invoice.Invoice{}, nil, err
	}
	plan, err := s.store.GetPlan(ctx, txn.PlanID)
	if err != nil {
		return invoice.Invoice{}, nil, err
	}

	inv := BuildInvoice(m, sub, plan, txn, s.portalURL)
	pdf, err := s.renderer.Render(ctx, inv)
	if err != nil {
		return invoice.Invoice{}, nil, errors.Join(ErrInvoiceRender, fmt.Errorf("invoice %s: %w", inv.Number, err))
	}
	return inv, pdf, nil
}
