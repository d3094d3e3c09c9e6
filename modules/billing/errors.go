package billing

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/substrack/handler"
	svc "github.com/dmitrymomot/substrack/svc/billing"
)

var (
	errPlanInactive     = handler.NewHTTPError(http.StatusUnprocessableEntity, "plan_inactive")
	errCheckoutRejected = handler.NewHTTPError(http.StatusUnprocessableEntity, "checkout_rejected")
	errNotConfigured    = handler.NewHTTPError(http.StatusConflict, "merchant_not_configured")
	errTokenUnavailable = handler.NewHTTPError(http.StatusNotFound, "access_token_unavailable")
	errProcessor        = handler.NewHTTPError(http.StatusBadGateway, "processor_failure")
)

// mapError translates billing sentinels into HTTP errors for the JSON error
// handler. Unknown errors fall through to 500.
func mapError(err error) error {
	var valErr *svc.ValidationError
	if errors.As(err, &valErr) {
		out := handler.NewValidationError()
		for field, msgs := range valErr.Fields {
			for _, msg := range msgs {
				out.Add(field, msg)
			}
		}
		return out
	}

	switch {
	case errors.Is(err, svc.ErrUntrusted):
		return handler.ErrBadRequest.WithMessage("webhook rejected")
	case errors.Is(err, svc.ErrAccessTokenUnavailable):
		return errTokenUnavailable.WithMessage("access token not found or expired")
	case errors.Is(err, svc.ErrMerchantNotFound):
		return handler.ErrNotFound.WithMessage("merchant not found")
	case errors.Is(err, svc.ErrPlanNotFound):
		return handler.ErrNotFound.WithMessage("plan not found")
	case errors.Is(err, svc.ErrSubscriberNotFound):
		return handler.ErrNotFound.WithMessage("subscriber not found")
	case errors.Is(err, svc.ErrTransactionNotFound):
		return handler.ErrNotFound.WithMessage("transaction not found")
	case errors.Is(err, svc.ErrPlanInactive):
		return errPlanInactive.WithMessage("plan is not active")
	case errors.Is(err, svc.ErrMissingSecretKey):
		return errNotConfigured.WithMessage("merchant has no processor secret key")
	case errors.Is(err, svc.ErrMissingPriceID):
		return errCheckoutRejected.WithMessage("price id is required")
	case errors.Is(err, svc.ErrInvalidEmail):
		return errCheckoutRejected.WithMessage("customer email is invalid")
	case errors.Is(err, svc.ErrInvalidReturnURL):
		return errCheckoutRejected.WithMessage("success and cancel urls must be absolute http(s) urls")
	case errors.Is(err, svc.ErrProcessorFailure), errors.Is(err, svc.ErrNoCheckoutURL):
		return errProcessor.WithMessage("payment processor request failed")
	}
	return nil
}
