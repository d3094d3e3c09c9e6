package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/substrack/pkg/email"
	"github.com/dmitrymomot/substrack/pkg/logger"
)

// sessionIDPlaceholder is replaced by the processor with the session id
// when it redirects the customer back.
const sessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// CheckoutRequest starts a hosted subscription checkout.
type CheckoutRequest struct {
	MerchantID    uuid.UUID `json:"merchant_id"`
	PlanID        uuid.UUID `json:"plan_id"`
	PriceID       string    `json:"price_id"`
	CustomerEmail string    `json:"customer_email"`
	CustomerName  string    `json:"customer_name"`
	SuccessURL    string    `json:"success_url"`
	CancelURL     string    `json:"cancel_url"`
}

// CheckoutService creates checkout sessions with each merchant's own key.
type CheckoutService struct {
	store     Store
	processor Processor
	log       *slog.Logger
}

func NewCheckoutService(store Store, processor Processor, log *slog.Logger) *CheckoutService {
	if log == nil {
		log = logger.Nop()
	}
	return &CheckoutService{store: store, processor: processor, log: log.With(logger.Component("billing.checkout"))}
}

// CreateCheckout returns the hosted checkout session for req. The merchant
// and plan ids are written into the session and subscription metadata so
// that later webhooks can be attributed without a stored subscriber.
func (c *CheckoutService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	m, err := c.store.GetMerchant(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	if m.Credentials.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}

	plan, err := c.store.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.MerchantID != m.ID {
		return nil, ErrPlanNotFound
	}
	if !plan.Active {
		return nil, ErrPlanInactive
	}

	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		priceID = plan.ExternalPriceID
	}
	if priceID == "" {
		return nil, ErrMissingPriceID
	}
	if req.CustomerEmail != "" && !email.IsValidAddress(req.CustomerEmail) {
		return nil, ErrInvalidEmail
	}
	if !absoluteURL(req.SuccessURL) || !absoluteURL(req.CancelURL) {
		return nil, ErrInvalidReturnURL
	}

	md := map[string]string{
		MetadataMerchantID: m.ID.String(),
		MetadataPlanID:     plan.ID.String(),
	}
	if name := strings.TrimSpace(req.CustomerName); name != "" {
		md[MetadataCustomerName] = name
	}

	sess, err := c.processor.CreateCheckoutSession(ctx, m.Credentials.SecretKey, CheckoutSessionParams{
		PriceID:       priceID,
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    withSessionID(req.SuccessURL),
		CancelURL:     req.CancelURL,
		Metadata:      md,
	})
	if err != nil {
		if !errors.Is(err, ErrProcessorFailure) && !errors.Is(err, ErrNoCheckoutURL) {
			err = errors.Join(ErrProcessorFailure, err)
		}
		c.log.ErrorContext(ctx, "checkout session creation failed",
			logger.MerchantID(m.ID),
			logger.PlanID(plan.ID),
			logger.Error(err),
		)
		return nil, err
	}

	c.log.InfoContext(ctx, "checkout session created",
		logger.MerchantID(m.ID),
		logger.PlanID(plan.ID),
		logger.ExternalID(sess.ID),
	)
	return sess, nil
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

// withSessionID appends the session placeholder unescaped; the processor
// only substitutes the literal form.
func withSessionID(raw string) string {
	if strings.Contains(raw, sessionIDPlaceholder) {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "session_id=" + sessionIDPlaceholder
}
