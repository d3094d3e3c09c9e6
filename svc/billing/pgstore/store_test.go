package pgstore_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/substrack/pkg/pg"
	"github.com/dmitrymomot/substrack/pkg/secrets"
	"github.com/dmitrymomot/substrack/svc/billing"
	"github.com/dmitrymomot/substrack/svc/billing/pgstore"
)

var (
	migrateOnce sync.Once
	migrateErr  error
)

// connectPool connects to SUBSTRACK_TEST_PG_URL and applies the migrations.
// Tests are skipped when the variable is not set.
func connectPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("SUBSTRACK_TEST_PG_URL")
	if url == "" {
		t.Skip("SUBSTRACK_TEST_PG_URL is not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: url,
		MaxOpenConns:     10,
		MaxIdleConns:     1,
		RetryAttempts:    1,
		MigrationsTable:  "schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrateOnce.Do(func() {
		migrateErr = pg.Migrate(ctx, pool, cfg, pgstore.Migrations, pgstore.MigrationsDir, slog.New(slog.DiscardHandler))
	})
	require.NoError(t, migrateErr)
	return pool
}

func setupStore(t *testing.T) (*pgstore.Store, *billing.Merchant, *billing.Plan) {
	t.Helper()
	ctx := context.Background()

	store := pgstore.New(connectPool(t))
	m := &billing.Merchant{
		ID:   uuid.New(),
		Name: "Acme",
		Credentials: billing.ProcessorCredentials{
			SecretKey:     "sk_test_x",
			WebhookSecret: "whsec_x",
		},
	}
	require.NoError(t, store.CreateMerchant(ctx, m))

	p := &billing.Plan{
		ID:           uuid.New(),
		MerchantID:   m.ID,
		Name:         "Pro",
		Price:        decimal.RequireFromString("1180.00"),
		Currency:     "INR",
		BillingCycle: billing.CycleMonthly,
		Features:     []string{"reports"},
		Active:       true,
	}
	require.NoError(t, store.CreatePlan(ctx, p))
	return store, m, p
}

func newSubscriber(m *billing.Merchant, p *billing.Plan) *billing.Subscriber {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &billing.Subscriber{
		ID:                     uuid.New(),
		MerchantID:             m.ID,
		PlanID:                 p.ID,
		CustomerName:           "Jane",
		CustomerEmail:          "jane@example.com",
		Status:                 billing.StatusActive,
		ExternalSubscriptionID: "sub_" + uuid.NewString(),
		StartDate:              now,
		NextRenewalDate:        now.AddDate(0, 1, 0),
	}
}

func counter(t *testing.T, store *pgstore.Store, id uuid.UUID) int64 {
	t.Helper()
	p, err := store.GetPlan(context.Background(), id)
	require.NoError(t, err)
	return p.SubscriberCount
}

func TestSubscriberLifecycle(t *testing.T) {
	t.Parallel()
	store, m, p := setupStore(t)
	ctx := context.Background()

	sub := newSubscriber(m, p)
	created, err := store.CreateSubscriber(ctx, sub)
	require.NoError(t, err)
	assert.True(t, created)

	dup := *sub
	dup.ID = uuid.New()
	created, err = store.CreateSubscriber(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(1), counter(t, store, p.ID))

	paidAt := time.Now().UTC().Truncate(time.Microsecond)
	amount := decimal.RequireFromString("1180.00")
	failed := billing.StatusFailed
	updated, err := store.UpdateSubscriber(ctx, sub.ExternalSubscriptionID, billing.SubscriberUpdate{
		Status:            &failed,
		LastPaymentDate:   &paidAt,
		LastPaymentAmount: &amount,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.StatusFailed, updated.Status)
	require.True(t, updated.LastPaymentAmount.Valid)
	assert.True(t, amount.Equal(updated.LastPaymentAmount.Decimal))
	assert.True(t, paidAt.Equal(*updated.LastPaymentDate))

	for i := range 2 {
		got, cancelled, err := store.CancelSubscriber(ctx, sub.ExternalSubscriptionID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, i == 0, cancelled)
		assert.Equal(t, billing.StatusCancelled, got.Status)
	}
	assert.Equal(t, int64(0), counter(t, store, p.ID))

	_, _, err = store.CancelSubscriber(ctx, "sub_missing_"+uuid.NewString(), time.Now())
	assert.ErrorIs(t, err, billing.ErrSubscriberNotFound)
}

func TestTransactionDedup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool := connectPool(t)
	store, m, p := setupStore(t)

	sub := newSubscriber(m, p)
	_, err := store.CreateSubscriber(ctx, sub)
	require.NoError(t, err)

	txn := func(ref string, status billing.TransactionStatus, amount string) *billing.PaymentTransaction {
		return &billing.PaymentTransaction{
			ID:                uuid.New(),
			MerchantID:        m.ID,
			SubscriberID:      sub.ID,
			PlanID:            p.ID,
			Amount:            decimal.RequireFromString(amount),
			Currency:          "INR",
			Status:            status,
			ExternalPaymentID: ref,
			PaymentDate:       time.Now(),
		}
	}
	rows := func(t *testing.T, ref string) int {
		t.Helper()
		var n int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT count(*) FROM payment_transactions WHERE external_payment_id = $1`, ref).Scan(&n))
		return n
	}

	t.Run("concurrent successes insert once", func(t *testing.T) {
		ref := "in_" + uuid.NewString()
		var inserted atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.InsertTransaction(ctx, txn(ref, billing.TransactionSuccess, "99.90"))
				if assert.NoError(t, err) && ok {
					inserted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), inserted.Load())

		ok, err := store.InsertTransaction(ctx, txn(ref, billing.TransactionFailed, "0"))
		require.NoError(t, err)
		assert.False(t, ok, "a failure never overwrites a success")
		assert.Equal(t, 1, rows(t, ref))
	})

	t.Run("failed then paid keeps one row", func(t *testing.T) {
		ref := "in_" + uuid.NewString()
		failed := txn(ref, billing.TransactionFailed, "99.90")
		ok, err := store.InsertTransaction(ctx, failed)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.InsertTransaction(ctx, txn(ref, billing.TransactionFailed, "99.90"))
		require.NoError(t, err)
		assert.False(t, ok)

		paid := txn(ref, billing.TransactionSuccess, "99.90")
		ok, err = store.InsertTransaction(ctx, paid)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, failed.ID, paid.ID)

		ok, err = store.InsertTransaction(ctx, txn(ref, billing.TransactionSuccess, "99.90"))
		require.NoError(t, err)
		assert.False(t, ok)

		assert.Equal(t, 1, rows(t, ref))
		got, err := store.GetTransaction(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.TransactionSuccess, got.Status)
	})
}

func TestConsumeAccessToken(t *testing.T) {
	t.Parallel()
	store, m, p := setupStore(t)
	ctx := context.Background()

	sub := newSubscriber(m, p)
	_, err := store.CreateSubscriber(ctx, sub)
	require.NoError(t, err)

	session := "cs_" + uuid.NewString()
	tok := &billing.AccessToken{
		ID:           uuid.New(),
		MerchantID:   m.ID,
		SubscriberID: sub.ID,
		Token:        "a.b.c",
		SessionID:    session,
		ExpiresAt:    time.Now().Add(time.Hour),
		CreatedAt:    time.Now(),
	}
	saved, err := store.SaveAccessToken(ctx, tok)
	require.NoError(t, err)
	assert.True(t, saved)

	again := *tok
	again.ID = uuid.New()
	saved, err = store.SaveAccessToken(ctx, &again)
	require.NoError(t, err)
	assert.False(t, saved)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeAccessToken(ctx, session, time.Now()); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, billing.ErrAccessTokenNotFound)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	got, err := store.GetAccessToken(ctx, session)
	require.NoError(t, err)
	assert.True(t, got.Used)
	assert.NotNil(t, got.UsedAt)
}

func TestReconcilePlanCounters(t *testing.T) {
	t.Parallel()
	store, m, p := setupStore(t)
	ctx := context.Background()

	for range 3 {
		_, err := store.CreateSubscriber(ctx, newSubscriber(m, p))
		require.NoError(t, err)
	}
	require.Equal(t, int64(3), counter(t, store, p.ID))

	_, err := store.ReconcilePlanCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counter(t, store, p.ID))
}

func TestSealedCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pool := connectPool(t)

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	sealer, err := secrets.NewFromBase64(key)
	require.NoError(t, err)
	store := pgstore.New(pool, pgstore.WithSealer(sealer))

	m := &billing.Merchant{
		ID:   uuid.New(),
		Name: "Sealed Co",
		Credentials: billing.ProcessorCredentials{
			SecretKey:      "sk_test_sealed",
			PublishableKey: "pk_test_sealed",
			WebhookSecret:  "whsec_sealed",
		},
	}
	require.NoError(t, store.CreateMerchant(ctx, m))

	var rawSecret, rawWebhook, rawPublishable string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT stripe_secret_key, stripe_webhook_secret, stripe_publishable_key FROM merchants WHERE id = $1`, m.ID,
	).Scan(&rawSecret, &rawWebhook, &rawPublishable))
	assert.True(t, secrets.IsSealed(rawSecret))
	assert.True(t, secrets.IsSealed(rawWebhook))
	assert.Equal(t, "pk_test_sealed", rawPublishable)

	got, err := store.GetMerchant(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Credentials, got.Credentials)

	require.NoError(t, store.UpdateMerchantCredentials(ctx, m.ID, billing.ProcessorCredentials{
		SecretKey: "sk_test_rotated", PublishableKey: "pk_test_rotated", WebhookSecret: "whsec_rotated",
	}))
	got, err = store.GetMerchant(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk_test_rotated", got.Credentials.SecretKey)
	assert.Equal(t, "whsec_rotated", got.Credentials.WebhookSecret)

	_, err = pgstore.New(pool).GetMerchant(ctx, m.ID)
	assert.Error(t, err)
}
