package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/substrack/pkg/logger"
)

// bootstrapEnvelope is the unverified view of a delivery used only to find
// which merchant's secret verifies it. Nothing read from it is trusted.
type bootstrapEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object bootstrapObject `json:"object"`
	} `json:"data"`
}

type bootstrapObject struct {
	ID                  string               `json:"id"`
	Object              string               `json:"object"`
	Metadata            map[string]string    `json:"metadata"`
	Subscription        expandable           `json:"subscription"`
	SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	SubscriptionData    *struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_data"`
	Parent *struct {
		SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
	Lines *struct {
		Data []invoiceLine `json:"data"`
	} `json:"lines"`
}

// tenantStrategy is one step of the resolution chain. It returns ok=false
// when it found nothing and an error only for infrastructure failures.
type tenantStrategy func(ctx context.Context, obj *bootstrapObject) (id uuid.UUID, ok bool, err error)

// TenantResolver determines the merchant a raw delivery belongs to before
// its signature is checked. The first strategy that succeeds wins.
type TenantResolver struct {
	strategies []tenantStrategy
	log        *slog.Logger
}

// NewTenantResolver builds the standard chain: direct metadata, nested
// subscription metadata, line-item metadata, then the stored subscriber
// owning the referenced subscription.
func NewTenantResolver(subscribers SubscriberStore, log *slog.Logger) *TenantResolver {
	if log == nil {
		log = logger.Nop()
	}
	return &TenantResolver{
		strategies: []tenantStrategy{
			directMetadataStrategy,
			nestedMetadataStrategy,
			lineItemMetadataStrategy,
			subscriberLookupStrategy(subscribers),
		},
		log: log,
	}
}

// Resolve returns ErrTenantUnresolved when no strategy matches or the
// payload is not JSON. Lookup failures are returned as is.
func (r *TenantResolver) Resolve(ctx context.Context, payload []byte) (uuid.UUID, error) {
	var env bootstrapEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return uuid.Nil, errors.Join(ErrTenantUnresolved, err)
	}

	for i, strategy := range r.strategies {
		id, ok, err := strategy(ctx, &env.Data.Object)
		if err != nil {
			return uuid.Nil, err
		}
		if ok {
			r.log.DebugContext(ctx, "webhook tenant resolved",
				logger.EventID(env.ID),
				logger.MerchantID(id),
				slog.Int("strategy", i+1),
			)
			return id, nil
		}
	}

	return uuid.Nil, ErrTenantUnresolved
}

func merchantFromMetadata(md map[string]string) (uuid.UUID, bool) {
	raw, ok := md[MetadataMerchantID]
	if !ok || raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// directMetadataStrategy reads data.object.metadata.merchant_id.
func directMetadataStrategy(_ context.Context, obj *bootstrapObject) (uuid.UUID, bool, error) {
	id, ok := merchantFromMetadata(obj.Metadata)
	return id, ok, nil
}

// nestedMetadataStrategy reads the subscription metadata copied onto
// invoices and checkout sessions.
func nestedMetadataStrategy(_ context.Context, obj *bootstrapObject) (uuid.UUID, bool, error) {
	var candidates []map[string]string
	if obj.SubscriptionDetails != nil {
		candidates = append(candidates, obj.SubscriptionDetails.Metadata)
	}
	if obj.Parent != nil && obj.Parent.SubscriptionDetails != nil {
		candidates = append(candidates, obj.Parent.SubscriptionDetails.Metadata)
	}
	if obj.SubscriptionData != nil {
		candidates = append(candidates, obj.SubscriptionData.Metadata)
	}
	for _, md := range candidates {
		if id, ok := merchantFromMetadata(md); ok {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

// lineItemMetadataStrategy reads merchant_id from invoice line items.
func lineItemMetadataStrategy(_ context.Context, obj *bootstrapObject) (uuid.UUID, bool, error) {
	if obj.Lines == nil {
		return uuid.Nil, false, nil
	}
	for _, line := range obj.Lines.Data {
		if id, ok := merchantFromMetadata(line.Metadata); ok {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

// subscriberLookupStrategy maps the referenced subscription id to the
// merchant of the stored subscriber.
func subscriberLookupStrategy(subscribers SubscriberStore) tenantStrategy {
	return func(ctx context.Context, obj *bootstrapObject) (uuid.UUID, bool, error) {
		externalID := obj.subscriptionRef()
		if externalID == "" {
			return uuid.Nil, false, nil
		}
		sub, err := subscribers.GetSubscriberByExternalID(ctx, externalID)
		switch {
		case errors.Is(err, ErrSubscriberNotFound):
			return uuid.Nil, false, nil
		case err != nil:
			return uuid.Nil, false, err
		}
		return sub.MerchantID, true, nil
	}
}

func (o *bootstrapObject) subscriptionRef() string {
	if o.Object == "subscription" {
		return o.ID
	}
	if o.Subscription.ID != "" {
		return o.Subscription.ID
	}
	if o.Parent != nil && o.Parent.SubscriptionDetails != nil {
		return o.Parent.SubscriptionDetails.Subscription.ID
	}
	if o.SubscriptionDetails != nil {
		return o.SubscriptionDetails.Subscription.ID
	}
	return ""
}
