package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/substrack/svc/billing"
)

func TestUpdateCredentials(t *testing.T) {
	t.Parallel()

	valid := billing.Credentials{
		SecretKey:      "sk_live_abc",
		PublishableKey: "pk_live_abc",
		WebhookSecret:  "whsec_abc",
	}

	t.Run("stores valid credentials", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		svc := billing.NewMerchantService(f.store, nil)

		require.NoError(t, svc.UpdateCredentials(context.Background(), f.merchant.ID, valid))
		m, err := f.store.GetMerchant(context.Background(), f.merchant.ID)
		require.NoError(t, err)
		assert.Equal(t, "whsec_abc", m.Credentials.WebhookSecret)
		assert.Equal(t, "sk_live_abc", m.Credentials.SecretKey)
	})

	t.Run("unknown merchant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		svc := billing.NewMerchantService(f.store, nil)
		err := svc.UpdateCredentials(context.Background(), uuid.New(), valid)
		assert.ErrorIs(t, err, billing.ErrMerchantNotFound)
	})

	t.Run("field errors", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		svc := billing.NewMerchantService(f.store, nil)

		err := svc.UpdateCredentials(context.Background(), f.merchant.ID, billing.Credentials{
			SecretKey:      "pk_live_abc",
			PublishableKey: "pk_live_a bc",
		})
		require.ErrorIs(t, err, billing.ErrValidation)

		var verr *billing.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"must start with sk_"}, verr.Fields["secret_key"])
		assert.Equal(t, []string{"must not contain whitespace"}, verr.Fields["publishable_key"])
		assert.Equal(t, []string{"is required"}, verr.Fields["webhook_secret"])
		assert.Zero(t, f.store.MutationCount())
	})

	t.Run("mixed modes", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		svc := billing.NewMerchantService(f.store, nil)

		mixed := valid
		mixed.PublishableKey = "pk_test_abc"
		err := svc.ValidateCredentials(mixed)

		var verr *billing.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"must be a live mode key like the secret key"}, verr.Fields["publishable_key"])
	})
}
