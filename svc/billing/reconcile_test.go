package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/substrack/svc/billing"
)

func TestReconciler(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for i, id := range []string{"sub_1", "sub_2", "sub_3"} {
		_, err := f.deliver(t, billing.EventCheckoutCompleted, f.checkoutSession("cs_"+id, id, int64(i)))
		require.NoError(t, err)
	}
	_, err := f.deliver(t, billing.EventSubscriptionDeleted, map[string]any{"id": "sub_3", "object": "subscription"})
	require.NoError(t, err)
	require.Equal(t, int64(2), f.planCounter(t))

	// A stale counter, as left behind by a lost update.
	stale := f.plan
	stale.SubscriberCount = 7
	f.store.AddPlan(stale)

	empty := f.plan
	empty.ID = uuid.New()
	f.store.AddPlan(empty)

	r := billing.NewReconciler(f.store, nil, nil)
	drift, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, billing.CounterDrift{PlanID: f.plan.ID, Stored: 7, Actual: 2}, drift[0])
	assert.Equal(t, int64(2), f.planCounter(t))

	drift, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drift)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, r.Loop(ctx, 5*time.Millisecond))
}
