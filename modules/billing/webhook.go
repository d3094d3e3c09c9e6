package billing

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/substrack/handler"
	"github.com/dmitrymomot/substrack/pkg/logger"
	svc "github.com/dmitrymomot/substrack/svc/billing"
)

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

type webhookAck struct {
	Received bool `json:"received"`
}

// webhookHandler reads the raw body without decoding it, because the
// signature covers the exact bytes Stripe sent.
func (m *Module) webhookHandler() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, _ struct{}) handler.Response {
		r := ctx.Request()
		body, err := io.ReadAll(http.MaxBytesReader(ctx.ResponseWriter(), r.Body, m.opts.MaxWebhookBytes))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return handler.Fail(maxErr)
			}
			return handler.Fail(handler.ErrBadRequest.WithMessage("failed to read body"))
		}

		res, err := m.opts.Webhooks.HandleWebhook(ctx, body, r.Header.Get(SignatureHeader))
		switch {
		case errors.Is(err, svc.ErrUntrusted):
			return handler.Fail(fmt.Errorf("webhook: %w", err))
		case err != nil:
			// Not-found sentinels raised mid-transition are internal failures
			// here, not 404s.
			return handler.Fail(handler.ErrInternalServerError.WithMessage("webhook processing failed"))
		}

		m.log.DebugContext(ctx, "webhook acknowledged",
			logger.EventID(res.EventID),
			logger.EventType(res.EventType),
			slog.String("outcome", res.Outcome),
		)
		return handler.JSON(webhookAck{Received: true})
	}, handler.WithErrorHandler[handler.Context, struct{}](m.errorHandler))
}
