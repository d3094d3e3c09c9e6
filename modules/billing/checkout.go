package billing

import (
	"net/http"

	"github.com/dmitrymomot/substrack/handler"
	"github.com/dmitrymomot/substrack/pkg/binder"
	svc "github.com/dmitrymomot/substrack/svc/billing"
)

type checkoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (m *Module) checkoutHandler() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req svc.CheckoutRequest) handler.Response {
		sess, err := m.opts.Checkout.CreateCheckout(ctx, req)
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(checkoutResponse{ID: sess.ID, URL: sess.URL})
	},
		handler.WithBinder[handler.Context, svc.CheckoutRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, svc.CheckoutRequest](m.errorHandler),
	)
}
