// Package billing mounts the Substrack HTTP surface: the Stripe webhook
// endpoint, hosted checkout creation, the one-time access token exchange,
// entitlement checks and the merchant invoice and credential endpoints.
package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/substrack/handler"
	"github.com/dmitrymomot/substrack/pkg/logger"
	"github.com/dmitrymomot/substrack/pkg/ratelimit"
	svc "github.com/dmitrymomot/substrack/svc/billing"
)

// DefaultMaxWebhookBytes caps webhook bodies. Stripe events are well below it.
const DefaultMaxWebhookBytes int64 = 1 << 20

// Mountable is a sub-router that can be mounted on a parent router.
type Mountable interface {
	Handle() http.Handler
}

// Options wires the module to the billing services. Nil services leave their
// routes unmounted.
type Options struct {
	Webhooks  *svc.Service
	Checkout  *svc.CheckoutService
	Tokens    *svc.TokenIssuer
	Invoices  *svc.InvoiceService
	Merchants *svc.MerchantService

	// MerchantAuth guards the /merchants routes. Authentication of dashboard
	// users lives outside this module.
	MerchantAuth func(http.Handler) http.Handler

	// PublicLimiter throttles the unauthenticated checkout and token
	// exchange routes per client IP. Nil disables throttling.
	PublicLimiter ratelimit.Limiter

	MaxWebhookBytes int64
	Logger          *slog.Logger
}

// Module serves the billing HTTP API.
type Module struct {
	opts         Options
	log          *slog.Logger
	errorHandler handler.ErrorHandler[handler.Context]
}

// New builds the module.
func New(opts Options) *Module {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.MaxWebhookBytes <= 0 {
		opts.MaxWebhookBytes = DefaultMaxWebhookBytes
	}
	log := opts.Logger.With(logger.Component("billing.http"))
	return &Module{
		opts:         opts,
		log:          log,
		errorHandler: handler.NewErrorHandler(log, mapError),
	}
}

// Handle returns the module router.
//
//	r := chi.NewRouter()
//	r.Mount("/", billing.New(billing.Options{Webhooks: service, ...}).Handle())
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()

	if m.opts.Webhooks != nil {
		r.Post("/webhooks/stripe", m.webhookHandler())
	}
	public := r.With(m.throttle)
	if m.opts.Checkout != nil {
		public.Post("/checkout", m.checkoutHandler())
	}
	if m.opts.Tokens != nil {
		public.Post("/access/exchange", m.exchangeHandler())
		r.With(RequireAccess(m.opts.Tokens)).Get("/access/entitlements", m.entitlementsHandler())
	}
	if m.opts.Invoices != nil || m.opts.Merchants != nil {
		r.Route("/merchants/{merchantID}", func(r chi.Router) {
			if m.opts.MerchantAuth != nil {
				r.Use(m.opts.MerchantAuth)
			}
			if m.opts.Invoices != nil {
				r.Get("/transactions/{transactionID}/invoice.pdf", m.invoiceHandler())
			}
			if m.opts.Merchants != nil {
				r.Put("/credentials", m.credentialsHandler())
			}
		})
	}

	return r
}

// throttle applies PublicLimiter, rendering rejections in the API error
// envelope.
func (m *Module) throttle(next http.Handler) http.Handler {
	if m.opts.PublicLimiter == nil {
		return next
	}
	return ratelimit.Middleware(m.opts.PublicLimiter, ratelimit.Composite(ratelimit.ByIP, ratelimit.ByRoute),
		ratelimit.WithLogger(m.log),
		ratelimit.WithOnLimitReached(func(w http.ResponseWriter, r *http.Request, _ *ratelimit.Result) {
			_ = handler.JSONError(handler.ErrTooManyRequests.WithMessage("Too many requests, retry later")).Render(w, r)
		}),
	)(next)
}
