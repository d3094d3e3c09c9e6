package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"github.com/dmitrymomot/substrack/pkg/logger"
)

// WebhookResult describes how a delivery was handled.
type WebhookResult struct {
	EventID    string
	EventType  string
	MerchantID uuid.UUID
	Outcome    string
}

// eventHandler applies one verified event for merchant m.
type eventHandler func(ctx context.Context, m *Merchant, event stripe.Event) error

// Service runs the webhook pipeline: tenant resolution, signature
// verification and dispatch to the subscriber state machine.
type Service struct {
	store     Store
	tokens    *TokenIssuer
	resolver  *TenantResolver
	verifier  Verifier
	processor Processor
	notifier  Notifier
	events    EventLog
	metrics   *Metrics
	log       *slog.Logger
	now       func() time.Time
	handlers  map[string]eventHandler
}

// Option configures a Service.
type Option func(*Service)

func WithVerifier(v Verifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithProcessor enables processor lookups of the billing period during
// checkout completion.
func WithProcessor(p Processor) Option {
	return func(s *Service) { s.processor = p }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithEventLog(l EventLog) Option {
	return func(s *Service) { s.events = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the webhook pipeline.
func NewService(store Store, tokens *TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:    store,
		tokens:   tokens,
		verifier: NewStripeVerifier(),
		notifier: NopNotifier{},
		events:   NopEventLog{},
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("billing.webhook"))
	s.resolver = NewTenantResolver(store, s.log)
	s.handlers = map[string]eventHandler{
		EventCheckoutCompleted:   s.handleCheckoutCompleted,
		EventSubscriptionUpdated: s.handleSubscriptionUpdated,
		EventSubscriptionDeleted: s.handleSubscriptionDeleted,
		EventInvoicePaid:         s.handleInvoicePaid,
		EventInvoiceFailed:       s.handleInvoiceFailed,
	}
	return s
}

// HandleWebhook processes one raw delivery. Errors satisfying ErrUntrusted
// mean the delivery was rejected before any state change; any other error
// means processing failed and the delivery should be retried.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	start := time.Now()
	res := &WebhookResult{}
	defer func() {
		s.metrics.observeWebhook(res.EventType, res.Outcome, time.Since(start).Seconds())
	}()

	m, event, err := s.authenticate(ctx, payload, signature)
	if err != nil {
		if errors.Is(err, ErrUntrusted) {
			res.Outcome = OutcomeUntrusted
			s.log.WarnContext(ctx, "webhook rejected", logger.Error(err))
		} else {
			res.Outcome = OutcomeFailed
			s.log.ErrorContext(ctx, "webhook authentication failed", logger.Error(err))
		}
		return res, err
	}

	res.EventID, res.EventType, res.MerchantID = event.ID, string(event.Type), m.ID
	log := s.log.With(logger.EventID(event.ID), logger.EventType(res.EventType), logger.MerchantID(m.ID))

	handler, ok := s.handlers[res.EventType]
	if !ok {
		res.Outcome = OutcomeIgnored
		log.DebugContext(ctx, "webhook event type not handled")
		return res, nil
	}

	if seen, err := s.events.Seen(ctx, event.ID); err != nil {
		log.WarnContext(ctx, "event log lookup failed", logger.Error(err))
	} else if seen {
		res.Outcome = OutcomeDuplicate
		log.InfoContext(ctx, "webhook event already processed")
		return res, nil
	}

	if err := handler(ctx, m, event); err != nil {
		if errors.Is(err, ErrIntegrity) {
			res.Outcome = OutcomeIntegrity
			log.WarnContext(ctx, "webhook event acknowledged without changes", logger.Error(err))
			return res, nil
		}
		res.Outcome = OutcomeFailed
		log.ErrorContext(ctx, "webhook event processing failed", logger.Error(err))
		return res, fmt.Errorf("process %s %s: %w", res.EventType, event.ID, err)
	}

	if err := s.events.Mark(ctx, event.ID); err != nil {
		log.WarnContext(ctx, "event log mark failed", logger.Error(err))
	}

	res.Outcome = OutcomeProcessed
	log.InfoContext(ctx, "webhook event processed", logger.Duration(time.Since(start)))
	return res, nil
}

// authenticate resolves the tenant from the unverified body, loads its
// secret and verifies the signature. Nothing is written on the way.
func (s *Service) authenticate(ctx context.Context, payload []byte, signature string) (*Merchant, stripe.Event, error) {
	if signature == "" {
		return nil, stripe.Event{}, ErrMissingSignature
	}

	merchantID, err := s.resolver.Resolve(ctx, payload)
	if err != nil {
		return nil, stripe.Event{}, err
	}

	m, err := s.store.GetMerchant(ctx, merchantID)
	if errors.Is(err, ErrMerchantNotFound) {
		return nil, stripe.Event{}, errors.Join(ErrTenantUnresolved, err)
	}
	if err != nil {
		return nil, stripe.Event{}, fmt.Errorf("load merchant %s: %w", merchantID, err)
	}
	if m.Credentials.WebhookSecret == "" {
		return nil, stripe.Event{}, ErrMissingWebhookSecret
	}

	event, err := s.verifier.Verify(payload, signature, m.Credentials.WebhookSecret)
	if err != nil {
		return nil, stripe.Event{}, err
	}
	return m, event, nil
}

// decodeObject parses the verified event's data object into dst.
func decodeObject(event stripe.Event, dst any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return errors.Join(ErrIntegrity, ErrMalformedEvent)
	}
	if err := json.Unmarshal(event.Data.Raw, dst); err != nil {
		return errors.Join(ErrIntegrity, ErrMalformedEvent, err)
	}
	return nil
}

// ownedSubscriber loads the subscriber of an external subscription and
// checks that it belongs to m.
func (s *Service) ownedSubscriber(ctx context.Context, m *Merchant, externalID string) (*Subscriber, error) {
	if externalID == "" {
		return nil, errors.Join(ErrIntegrity, ErrMalformedEvent)
	}
	sub, err := s.store.GetSubscriberByExternalID(ctx, externalID)
	if errors.Is(err, ErrSubscriberNotFound) {
		return nil, errors.Join(ErrIntegrity, err)
	}
	if err != nil {
		return nil, err
	}
	if sub.MerchantID != m.ID {
		return nil, errors.Join(ErrIntegrity, fmt.Errorf("subscriber %s belongs to another merchant", sub.ID))
	}
	return sub, nil
}

// ownedPlan loads a plan and checks that it belongs to m.
func (s *Service) ownedPlan(ctx context.Context, m *Merchant, id uuid.UUID) (*Plan, error) {
	plan, err := s.store.GetPlan(ctx, id)
	if errors.Is(err, ErrPlanNotFound) {
		return nil, errors.Join(ErrIntegrity, err)
	}
	if err != nil {
		return nil, err
	}
	if plan.MerchantID != m.ID {
		return nil, errors.Join(ErrIntegrity, fmt.Errorf("plan %s belongs to another merchant", plan.ID))
	}
	return plan, nil
}
