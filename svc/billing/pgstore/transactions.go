package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/substrack/pkg/pg"
	"github.com/dmitrymomot/substrack/svc/billing"
)

// InsertTransaction relies on the unique external_payment_id index. A
// conflicting success promotes a row that is not yet a success; any other
// conflict leaves the row alone and RETURNING yields nothing.
func (s *Store) InsertTransaction(ctx context.Context, txn *billing.PaymentTransaction) (bool, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO payment_transactions (id, merchant_id, subscriber_id, plan_id, amount, currency,
			status, external_payment_id, payment_date, payment_method)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)
		ON CONFLICT (external_payment_id) DO UPDATE SET
			status = EXCLUDED.status,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			payment_date = EXCLUDED.payment_date,
			payment_method = EXCLUDED.payment_method
		WHERE EXCLUDED.status = 'success' AND payment_transactions.status <> 'success'
		RETURNING id`,
		txn.ID, txn.MerchantID, txn.SubscriberID, txn.PlanID, decimalText(txn.Amount), txn.Currency,
		string(txn.Status), txn.ExternalPaymentID, txn.PaymentDate, txn.PaymentMethod,
	).Scan(&id)
	if pg.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	txn.ID = id
	return true, nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*billing.PaymentTransaction, error) {
	var (
		txn    billing.PaymentTransaction
		amount string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, merchant_id, subscriber_id, plan_id, amount::text, currency, status,
			external_payment_id, payment_date, payment_method, created_at
		FROM payment_transactions WHERE id = $1`, id).Scan(
		&txn.ID, &txn.MerchantID, &txn.SubscriberID, &txn.PlanID, &amount, &txn.Currency, &txn.Status,
		&txn.ExternalPaymentID, &txn.PaymentDate, &txn.PaymentMethod, &txn.CreatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if txn.Amount, err = parseDecimal(amount); err != nil {
		return nil, fmt.Errorf("transaction amount: %w", err)
	}
	return &txn, nil
}
