// Package billing reconciles payment processor webhooks into subscriber
// state for many merchants at once.
//
// A delivery first passes through the TenantResolver, which reads the
// unverified body only to find the merchant whose signing secret applies.
// The Verifier then authenticates the raw bytes, and only a verified event
// reaches the state machine. Each handler is idempotent: subscribers are
// keyed by the processor's subscription id, payments by (payment id,
// status) and access tokens by checkout session, so redeliveries converge
// on the same state.
//
// Subscriber lifecycle:
//
//	checkout.session.completed     -> active (created, plan counter +1)
//	customer.subscription.updated  -> active | failed (processor status)
//	customer.subscription.deleted  -> cancelled (plan counter -1, once)
//	invoice.payment_succeeded      -> active
//	invoice.payment_failed         -> failed
//
// Side effects that may fail without harming state, such as email and
// invoice rendering, run through a Notifier in the background.
package billing
