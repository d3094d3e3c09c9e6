package billing

import "errors"

// ErrUntrusted is the parent of every failure that means a webhook
// delivery cannot be attributed to a tenant and authenticated. These map to
// HTTP 400 and are never retried successfully by the processor.
var ErrUntrusted = errors.New("billing: untrusted webhook delivery")

var (
	ErrMissingSignature     = untrusted("billing: missing webhook signature header")
	ErrInvalidSignature     = untrusted("billing: webhook signature verification failed")
	ErrTenantUnresolved     = untrusted("billing: webhook tenant could not be resolved")
	ErrMissingWebhookSecret = untrusted("billing: merchant has no webhook signing secret")
)

var (
	ErrMerchantNotFound    = errors.New("billing: merchant not found")
	ErrPlanNotFound        = errors.New("billing: plan not found")
	ErrPlanInactive        = errors.New("billing: plan is not active")
	ErrSubscriberNotFound  = errors.New("billing: subscriber not found")
	ErrTransactionNotFound = errors.New("billing: transaction not found")

	ErrMissingSecretKey = errors.New("billing: merchant has no processor secret key")
	ErrMissingPriceID   = errors.New("billing: price id is required")
	ErrInvalidEmail     = errors.New("billing: invalid customer email")
	ErrInvalidReturnURL = errors.New("billing: success and cancel urls must be absolute")
	ErrNoCheckoutURL    = errors.New("billing: processor returned no checkout url")
	ErrProcessorFailure = errors.New("billing: payment processor request failed")
	ErrValidation       = errors.New("billing: validation failed")
	ErrMalformedEvent   = errors.New("billing: malformed event payload")
	ErrInvoiceRender    = errors.New("billing: failed to render invoice")
)

// ErrIntegrity marks a verified event that references data this store does
// not hold or that belongs to another merchant. Such events are logged and
// acknowledged because redelivery cannot fix them.
var ErrIntegrity = errors.New("billing: event failed integrity checks")

// ErrAccessTokenUnavailable is the parent of the exchange failures.
var ErrAccessTokenUnavailable = errors.New("billing: access token unavailable")

var (
	ErrAccessTokenNotFound = tokenUnavailable("billing: access token not found")
	ErrAccessTokenUsed     = tokenUnavailable("billing: access token already used")
	ErrAccessTokenExpired  = tokenUnavailable("billing: access token expired")
)

type childError struct {
	msg    string
	parent error
}

func (e *childError) Error() string { return e.msg }
func (e *childError) Unwrap() error { return e.parent }

func untrusted(msg string) error        { return &childError{msg: msg, parent: ErrUntrusted} }
func tokenUnavailable(msg string) error { return &childError{msg: msg, parent: ErrAccessTokenUnavailable} }
