package billing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"

	"github.com/dmitrymomot/substrack/pkg/logger"
	"github.com/dmitrymomot/substrack/pkg/money"
)

// handleCheckoutCompleted creates the subscriber of a completed checkout.
// Every step is idempotent so a redelivery finishes whatever a failed
// attempt left undone without repeating what already happened.
func (s *Service) handleCheckoutCompleted(ctx context.Context, m *Merchant, event stripe.Event) error {
	var sess checkoutSessionObject
	if err := decodeObject(event, &sess); err != nil {
		return err
	}
	if sess.Mode != "" && sess.Mode != string(stripe.CheckoutSessionModeSubscription) {
		s.log.DebugContext(ctx, "checkout session is not a subscription", logger.ExternalID(sess.ID))
		return nil
	}
	if sess.Subscription.ID == "" {
		return errors.Join(ErrIntegrity, ErrMalformedEvent)
	}

	planID, err := uuid.Parse(sess.Metadata[MetadataPlanID])
	if err != nil {
		return errors.Join(ErrIntegrity, ErrPlanNotFound, err)
	}
	plan, err := s.ownedPlan(ctx, m, planID)
	if err != nil {
		return err
	}

	sub, created, err := s.ensureSubscriber(ctx, m, plan, sess)
	if err != nil {
		return err
	}

	if _, err := s.tokens.IssueForSession(ctx, sub, plan, sess.ID); err != nil {
		return err
	}

	var txn *PaymentTransaction
	inserted := false
	if sess.AmountTotal > 0 {
		ref := sess.Invoice.ID
		if ref == "" {
			ref = sess.ID
		}
		txn = s.newTransaction(m, sub, plan, ref, sess.AmountTotal, sess.Currency, TransactionSuccess, s.now().UTC(), sess.paymentMethod())
		if inserted, err = s.store.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		if inserted {
			if sub, err = s.recordPayment(ctx, sub, txn, nil); err != nil {
				return err
			}
		}
	}

	if created || inserted {
		s.notifier.Notify(ctx, Notification{Kind: NotifyWelcome, Merchant: m, Subscriber: sub, Plan: plan, Transaction: txn})
	}

	s.log.InfoContext(ctx, "checkout completed",
		logger.SubscriberID(sub.ID),
		logger.PlanID(plan.ID),
		slog.Bool("created", created),
		slog.Bool("payment_recorded", inserted),
	)
	return nil
}

func (s *Service) ensureSubscriber(ctx context.Context, m *Merchant, plan *Plan, sess checkoutSessionObject) (*Subscriber, bool, error) {
	existing, err := s.store.GetSubscriberByExternalID(ctx, sess.Subscription.ID)
	switch {
	case err == nil:
		if existing.MerchantID != m.ID {
			return nil, false, errors.Join(ErrIntegrity, ErrSubscriberNotFound)
		}
		return existing, false, nil
	case !errors.Is(err, ErrSubscriberNotFound):
		return nil, false, err
	}

	now := s.now().UTC()
	start, renewal := s.billingPeriod(ctx, m, sess.Subscription.ID)
	if start.IsZero() {
		start = now
	}
	if renewal.IsZero() {
		renewal = plan.BillingCycle.Next(start)
	}

	sub := &Subscriber{
		ID:                     uuid.New(),
		MerchantID:             m.ID,
		PlanID:                 plan.ID,
		CustomerName:           sess.customerName(),
		CustomerEmail:          sess.customerEmail(),
		Status:                 StatusActive,
		ExternalSubscriptionID: sess.Subscription.ID,
		ExternalCustomerID:     sess.Customer.ID,
		StartDate:              start,
		NextRenewalDate:        renewal,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	created, err := s.store.CreateSubscriber(ctx, sub)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// A concurrent delivery won the insert.
		sub, err = s.store.GetSubscriberByExternalID(ctx, sess.Subscription.ID)
		if err != nil {
			return nil, false, err
		}
	}
	return sub, created, nil
}

// billingPeriod asks the processor for the subscription's current period.
// Zero times are returned when it cannot answer.
func (s *Service) billingPeriod(ctx context.Context, m *Merchant, subscriptionID string) (time.Time, time.Time) {
	if s.processor == nil || m.Credentials.SecretKey == "" {
		return time.Time{}, time.Time{}
	}
	start, end, err := s.processor.SubscriptionPeriod(ctx, m.Credentials.SecretKey, subscriptionID)
	if err != nil {
		s.log.WarnContext(ctx, "billing period lookup failed, using plan cycle",
			logger.ExternalID(subscriptionID),
			logger.Error(err),
		)
		return time.Time{}, time.Time{}
	}
	return start, end
}

// handleSubscriptionUpdated mirrors the processor status and renewal date.
func (s *Service) handleSubscriptionUpdated(ctx context.Context, m *Merchant, event stripe.Event) error {
	var obj subscriptionObject
	if err := decodeObject(event, &obj); err != nil {
		return err
	}
	sub, err := s.ownedSubscriber(ctx, m, obj.ID)
	if err != nil {
		return err
	}

	var upd SubscriberUpdate
	if next, changed := nextStatus(sub.Status, EventSubscriptionUpdated, obj.Status); changed {
		upd.Status = &next
	}
	if _, end := obj.period(); !end.IsZero() && !end.Equal(sub.NextRenewalDate) {
		upd.NextRenewalDate = &end
	}
	if upd.Empty() {
		return nil
	}

	if _, err := s.store.UpdateSubscriber(ctx, sub.ExternalSubscriptionID, upd); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "subscription updated",
		logger.SubscriberID(sub.ID),
		slog.String("processor_status", obj.Status),
	)
	return nil
}

// handleSubscriptionDeleted cancels the subscriber. The store decrements the
// plan counter only when the row actually moves to cancelled.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, m *Merchant, event stripe.Event) error {
	var obj subscriptionObject
	if err := decodeObject(event, &obj); err != nil {
		return err
	}
	if _, err := s.ownedSubscriber(ctx, m, obj.ID); err != nil {
		return err
	}

	sub, cancelled, err := s.store.CancelSubscriber(ctx, obj.ID, s.now().UTC())
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "subscription deleted",
		logger.SubscriberID(sub.ID),
		logger.PlanID(sub.PlanID),
		slog.Bool("cancelled", cancelled),
	)
	return nil
}

// handleInvoicePaid records a successful charge and reactivates the
// subscriber. Only renewals get a "payment received" email; the first
// invoice went out with the welcome email.
func (s *Service) handleInvoicePaid(ctx context.Context, m *Merchant, event stripe.Event) error {
	var inv invoiceObject
	if err := decodeObject(event, &inv); err != nil {
		return err
	}
	if inv.ID == "" {
		return errors.Join(ErrIntegrity, ErrMalformedEvent)
	}
	sub, err := s.ownedSubscriber(ctx, m, inv.subscriptionID())
	if err != nil {
		return err
	}
	plan, err := s.ownedPlan(ctx, m, sub.PlanID)
	if err != nil {
		return err
	}

	paidAt := inv.paidAt(s.now().UTC())
	txn := s.newTransaction(m, sub, plan, inv.ID, inv.AmountPaid, inv.Currency, TransactionSuccess, paidAt, "")
	inserted, err := s.store.InsertTransaction(ctx, txn)
	if err != nil {
		return err
	}

	active, _ := nextStatus(sub.Status, EventInvoicePaid, "")
	upd := SubscriberUpdate{Status: &active}
	if end := inv.periodEnd(); !end.IsZero() {
		upd.NextRenewalDate = &end
	}
	if sub, err = s.recordPayment(ctx, sub, txn, &upd); err != nil {
		return err
	}

	if inserted && !inv.isFirst() {
		s.notifier.Notify(ctx, Notification{Kind: NotifyPaymentReceived, Merchant: m, Subscriber: sub, Plan: plan, Transaction: txn})
	}

	s.log.InfoContext(ctx, "invoice paid",
		logger.SubscriberID(sub.ID),
		logger.ExternalID(inv.ID),
		slog.Bool("payment_recorded", inserted),
		slog.String("billing_reason", inv.BillingReason),
	)
	return nil
}

// handleInvoiceFailed marks the subscriber failed and logs the attempt.
func (s *Service) handleInvoiceFailed(ctx context.Context, m *Merchant, event stripe.Event) error {
	var inv invoiceObject
	if err := decodeObject(event, &inv); err != nil {
		return err
	}
	if inv.ID == "" {
		return errors.Join(ErrIntegrity, ErrMalformedEvent)
	}
	sub, err := s.ownedSubscriber(ctx, m, inv.subscriptionID())
	if err != nil {
		return err
	}
	plan, err := s.ownedPlan(ctx, m, sub.PlanID)
	if err != nil {
		return err
	}

	created := unixTime(inv.Created)
	if created.IsZero() {
		created = s.now().UTC()
	}
	txn := s.newTransaction(m, sub, plan, inv.ID, inv.AmountDue, inv.Currency, TransactionFailed, created, "")
	inserted, err := s.store.InsertTransaction(ctx, txn)
	if err != nil {
		return err
	}

	if next, changed := nextStatus(sub.Status, EventInvoiceFailed, ""); changed {
		if sub, err = s.store.UpdateSubscriber(ctx, sub.ExternalSubscriptionID, SubscriberUpdate{Status: &next}); err != nil {
			return err
		}
	}

	if inserted {
		s.notifier.Notify(ctx, Notification{Kind: NotifyPaymentFailed, Merchant: m, Subscriber: sub, Plan: plan, Transaction: txn})
	}

	s.log.InfoContext(ctx, "invoice payment failed",
		logger.SubscriberID(sub.ID),
		logger.ExternalID(inv.ID),
		slog.Bool("payment_recorded", inserted),
		slog.Int("attempt", inv.AttemptCount),
	)
	return nil
}

// recordPayment writes the last payment fields of txn together with the
// optional extra changes in upd.
func (s *Service) recordPayment(ctx context.Context, sub *Subscriber, txn *PaymentTransaction, upd *SubscriberUpdate) (*Subscriber, error) {
	u := SubscriberUpdate{}
	if upd != nil {
		u = *upd
	}
	paidAt, amount := txn.PaymentDate, txn.Amount
	u.LastPaymentDate = &paidAt
	u.LastPaymentAmount = &amount
	return s.store.UpdateSubscriber(ctx, sub.ExternalSubscriptionID, u)
}

func (s *Service) newTransaction(m *Merchant, sub *Subscriber, plan *Plan, ref string, minor int64, currency string, status TransactionStatus, at time.Time, method string) *PaymentTransaction {
	if currency == "" {
		currency = plan.Currency
	}
	currency = strings.ToUpper(currency)
	amount := decimal.Zero
	if minor > 0 {
		amount = money.FromMinor(minor, currency)
	}
	if method == "" {
		method = "card"
	}
	return &PaymentTransaction{
		ID:                uuid.New(),
		MerchantID:        m.ID,
		SubscriberID:      sub.ID,
		PlanID:            plan.ID,
		Amount:            amount,
		Currency:          currency,
		Status:            status,
		ExternalPaymentID: ref,
		PaymentDate:       at.UTC(),
		PaymentMethod:     method,
		CreatedAt:         s.now().UTC(),
	}
}
