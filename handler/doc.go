// Package handler is a small typed layer over net/http for JSON APIs.
//
// A HandlerFunc receives a request struct filled by binders (see pkg/binder)
// and returns a Response. Wrap turns it into an http.HandlerFunc:
//
//	type ExchangeRequest struct {
//		SessionID string `json:"session_id"`
//	}
//
//	r.Post("/access/exchange", handler.Wrap(exchange,
//		handler.WithBinder[handler.Context, ExchangeRequest](binder.JSON()),
//		handler.WithErrorHandler[handler.Context, ExchangeRequest](errorHandler),
//	))
//
// # Responses
//
//   - JSON(v): v encoded as the body
//   - JSONError(err): {"error":{"code","message","details"}}, status taken from
//     an HTTPError or ValidationError in the chain, 500 otherwise
//   - Empty(), EmptyWithStatus(code): no body
//   - File(data, type, name), PDF(data, name): downloads
//
// # Errors
//
// NewErrorHandler logs failures with the request id and renders them as JSON.
// ErrorMapper functions translate domain sentinels into HTTPError values, so
// services stay free of HTTP concerns:
//
//	errorHandler := handler.NewErrorHandler(log, func(err error) error {
//		if errors.Is(err, billing.ErrPlanNotFound) {
//			return handler.ErrNotFound
//		}
//		return nil
//	})
package handler
