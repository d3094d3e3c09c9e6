package billing

import (
	"context"

	"github.com/dmitrymomot/substrack/pkg/statemachine"
)

// Processor-reported subscription statuses.
const (
	processorActive            = "active"
	processorTrialing          = "trialing"
	processorPastDue           = "past_due"
	processorUnpaid            = "unpaid"
	processorIncomplete        = "incomplete"
	processorIncompleteExpired = "incomplete_expired"
	processorPaused            = "paused"
	processorCanceled          = "canceled"
)

// statusFromProcessor maps a processor subscription status onto the local
// lifecycle. ok is false when the status must not change the subscriber;
// cancellation is only entered through subscription deletion.
func statusFromProcessor(reported string) (Status, bool) {
	switch reported {
	case processorActive, processorTrialing:
		return StatusActive, true
	case processorPastDue, processorUnpaid, processorIncomplete, processorIncompleteExpired, processorPaused:
		return StatusFailed, true
	case processorCanceled:
		return "", false
	}
	return "", false
}

// lifecycle is the subscriber status table. Events that carry a processor
// status pass it as data.
var lifecycle = statemachine.New[Status, string, string]().
	AddFromAny(EventSubscriptionDeleted, StatusCancelled).
	AddFromAny(EventInvoicePaid, StatusActive).
	AddFromAny(EventInvoiceFailed, StatusFailed).
	AddFromAny(EventSubscriptionUpdated, StatusActive, reportedAs(StatusActive)).
	AddFromAny(EventSubscriptionUpdated, StatusFailed, reportedAs(StatusFailed))

func reportedAs(want Status) statemachine.Guard[Status, string, string] {
	return func(_ context.Context, _ Status, _ string, reported string) bool {
		s, ok := statusFromProcessor(reported)
		return ok && s == want
	}
}

// nextStatus returns the status a subscriber in current moves to when
// eventType arrives. reported is the processor status carried by update
// events. changed is false when the event leaves the status as is.
func nextStatus(current Status, eventType, reported string) (next Status, changed bool) {
	next, err := lifecycle.Next(context.Background(), current, eventType, reported)
	if err != nil {
		return current, false
	}
	return next, next != current
}
