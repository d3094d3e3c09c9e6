package billing_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/substrack/svc/billing"
)

func TestTenantResolver(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	merchant := uuid.New()
	plan := billing.Plan{ID: uuid.New(), MerchantID: merchant}
	store.AddPlan(plan)
	_, err := store.CreateSubscriber(context.Background(), &billing.Subscriber{
		ID:                     uuid.New(),
		MerchantID:             merchant,
		PlanID:                 plan.ID,
		ExternalSubscriptionID: "sub_stored",
	})
	require.NoError(t, err)

	resolver := billing.NewTenantResolver(store, nil)
	md := map[string]string{billing.MetadataMerchantID: merchant.String()}

	cases := map[string]map[string]any{
		"direct metadata": {"object": "checkout.session", "metadata": md},
		"subscription details": {
			"object":               "invoice",
			"subscription_details": map[string]any{"metadata": md},
		},
		"parent subscription details": {
			"object": "invoice",
			"parent": map[string]any{"subscription_details": map[string]any{"metadata": md}},
		},
		"subscription data": {
			"object":            "checkout.session",
			"subscription_data": map[string]any{"metadata": md},
		},
		"line item metadata": {
			"object": "invoice",
			"lines":  map[string]any{"data": []map[string]any{{"metadata": map[string]string{}}, {"metadata": md}}},
		},
		"stored subscription by id":       {"object": "subscription", "id": "sub_stored"},
		"stored subscription by ref":      {"object": "invoice", "id": "in_1", "subscription": "sub_stored"},
		"expanded subscription reference": {"object": "invoice", "subscription": map[string]any{"id": "sub_stored"}},
		"invalid direct id falls through": {
			"object":       "invoice",
			"metadata":     map[string]string{billing.MetadataMerchantID: "not-a-uuid"},
			"subscription": "sub_stored",
		},
	}
	for name, object := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			payload, err := json.Marshal(map[string]any{"id": "evt_1", "data": map[string]any{"object": object}})
			require.NoError(t, err)

			got, err := resolver.Resolve(context.Background(), payload)
			require.NoError(t, err)
			assert.Equal(t, merchant, got)
		})
	}

	t.Run("direct metadata wins over stored subscriber", func(t *testing.T) {
		t.Parallel()
		other := uuid.New()
		payload, err := json.Marshal(map[string]any{"data": map[string]any{"object": map[string]any{
			"object":       "invoice",
			"subscription": "sub_stored",
			"metadata":     map[string]string{billing.MetadataMerchantID: other.String()},
		}}})
		require.NoError(t, err)

		got, err := resolver.Resolve(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, other, got)
	})

	t.Run("nothing matches", func(t *testing.T) {
		t.Parallel()
		_, err := resolver.Resolve(context.Background(), []byte(`{"data":{"object":{"object":"invoice","subscription":"sub_other"}}}`))
		assert.ErrorIs(t, err, billing.ErrTenantUnresolved)
	})
}
