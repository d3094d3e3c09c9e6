package logger

import (
	"log/slog"
	"time"
)

// Error records err under "error". A nil error yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// MerchantID records the tenant identifier under "merchant_id".
func MerchantID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("merchant_id", id)
}

// SubscriberID records the subscriber identifier under "subscriber_id".
func SubscriberID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscriber_id", id)
}

// PlanID records the plan identifier under "plan_id".
func PlanID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("plan_id", id)
}

// EventID records the processor event id under "event_id".
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// EventType records the processor event type under "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// ExternalID records a processor-side identifier (subscription, session,
// invoice) under "external_id".
func ExternalID(id string) slog.Attr {
	return slog.String("external_id", id)
}

// Duration records d under "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
