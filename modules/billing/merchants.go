package billing

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/substrack/handler"
	"github.com/dmitrymomot/substrack/pkg/binder"
	"github.com/dmitrymomot/substrack/pkg/jwt"
	svc "github.com/dmitrymomot/substrack/svc/billing"
)

// InvoiceRequest addresses one transaction of a merchant.
type InvoiceRequest struct {
	MerchantID    uuid.UUID `path:"merchantID"`
	TransactionID uuid.UUID `path:"transactionID"`
}

// CredentialsRequest replaces a merchant's processor credentials.
type CredentialsRequest struct {
	MerchantID uuid.UUID `path:"merchantID" json:"-"`
	svc.Credentials
}

func (m *Module) invoiceHandler() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req InvoiceRequest) handler.Response {
		inv, pdf, err := m.opts.Invoices.Invoice(ctx, req.MerchantID, req.TransactionID)
		if err != nil {
			return handler.Fail(err)
		}
		return handler.PDF(pdf, inv.Number+".pdf")
	},
		handler.WithBinder[handler.Context, InvoiceRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, InvoiceRequest](m.errorHandler),
	)
}

func (m *Module) credentialsHandler() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req CredentialsRequest) handler.Response {
		if err := m.opts.Merchants.UpdateCredentials(ctx, req.MerchantID, req.Credentials); err != nil {
			return handler.Fail(err)
		}
		return handler.Empty()
	},
		handler.WithBinders[handler.Context, CredentialsRequest](binder.Path(chi.URLParam), binder.JSON()),
		handler.WithErrorHandler[handler.Context, CredentialsRequest](m.errorHandler),
	)
}

// AdminKey guards merchant routes with a static bearer key. An empty key
// rejects every request.
func AdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := jwt.BearerTokenExtractor(r)
			if err != nil || key == "" || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				_ = handler.JSONError(handler.ErrUnauthorized).Render(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
