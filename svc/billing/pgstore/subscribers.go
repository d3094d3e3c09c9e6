package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/substrack/pkg/pg"
	"github.com/dmitrymomot/substrack/svc/billing"
)

const subscriberColumns = `id, merchant_id, plan_id, customer_name, customer_email, status,
	external_subscription_id, external_customer_id, start_date, next_renewal_date,
	last_payment_date, last_payment_amount::text, created_at, updated_at`

func scanSubscriber(row pgx.Row) (*billing.Subscriber, error) {
	var (
		sub    billing.Subscriber
		amount *string
	)
	err := row.Scan(
		&sub.ID, &sub.MerchantID, &sub.PlanID, &sub.CustomerName, &sub.CustomerEmail, &sub.Status,
		&sub.ExternalSubscriptionID, &sub.ExternalCustomerID, &sub.StartDate, &sub.NextRenewalDate,
		&sub.LastPaymentDate, &amount, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, err
	}
	if amount != nil {
		d, err := parseDecimal(*amount)
		if err != nil {
			return nil, fmt.Errorf("last payment amount: %w", err)
		}
		sub.LastPaymentAmount.Decimal, sub.LastPaymentAmount.Valid = d, true
	}
	return &sub, nil
}

func (s *Store) GetSubscriber(ctx context.Context, id uuid.UUID) (*billing.Subscriber, error) {
	sub, err := scanSubscriber(s.pool.QueryRow(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id))
	if err != nil && !errors.Is(err, billing.ErrSubscriberNotFound) {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return sub, err
}

func (s *Store) GetSubscriberByExternalID(ctx context.Context, externalID string) (*billing.Subscriber, error) {
	sub, err := scanSubscriber(s.pool.QueryRow(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE external_subscription_id = $1`, externalID))
	if err != nil && !errors.Is(err, billing.ErrSubscriberNotFound) {
		return nil, fmt.Errorf("get subscriber by external id: %w", err)
	}
	return sub, err
}

// CreateSubscriber inserts the row and increments the plan counter in one
// transaction. The unique external id index turns a concurrent duplicate
// into a no-op.
func (s *Store) CreateSubscriber(ctx context.Context, sub *billing.Subscriber) (bool, error) {
	created := false
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var amount *string
		if sub.LastPaymentAmount.Valid {
			v := decimalText(sub.LastPaymentAmount.Decimal)
			amount = &v
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO subscribers (id, merchant_id, plan_id, customer_name, customer_email, status,
				external_subscription_id, external_customer_id, start_date, next_renewal_date,
				last_payment_date, last_payment_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::numeric)
			ON CONFLICT (external_subscription_id) DO NOTHING`,
			sub.ID, sub.MerchantID, sub.PlanID, sub.CustomerName, sub.CustomerEmail, string(sub.Status),
			sub.ExternalSubscriptionID, sub.ExternalCustomerID, sub.StartDate, sub.NextRenewalDate,
			sub.LastPaymentDate, amount,
		)
		if err != nil {
			if pg.IsForeignKeyViolationError(err) {
				return billing.ErrPlanNotFound
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		created = true
		return adjustCounter(ctx, tx, sub.PlanID, 1)
	})
	if err != nil {
		return false, fmt.Errorf("create subscriber: %w", err)
	}
	return created, nil
}

func (s *Store) UpdateSubscriber(ctx context.Context, externalID string, upd billing.SubscriberUpdate) (*billing.Subscriber, error) {
	if upd.Empty() {
		return s.GetSubscriberByExternalID(ctx, externalID)
	}

	var status, amount *string
	if upd.Status != nil {
		v := string(*upd.Status)
		status = &v
	}
	if upd.LastPaymentAmount != nil {
		v := decimalText(*upd.LastPaymentAmount)
		amount = &v
	}

	sub, err := scanSubscriber(s.pool.QueryRow(ctx, `
		UPDATE subscribers SET
			status = COALESCE($2, status),
			next_renewal_date = COALESCE($3, next_renewal_date),
			last_payment_date = COALESCE($4, last_payment_date),
			last_payment_amount = COALESCE($5::numeric, last_payment_amount),
			updated_at = now()
		WHERE external_subscription_id = $1
		RETURNING `+subscriberColumns,
		externalID, status, upd.NextRenewalDate, upd.LastPaymentDate, amount,
	))
	if err != nil && !errors.Is(err, billing.ErrSubscriberNotFound) {
		return nil, fmt.Errorf("update subscriber: %w", err)
	}
	return sub, err
}

// CancelSubscriber locks the row, reads the plan it is on and decrements
// that plan's counter only when the status actually changes.
func (s *Store) CancelSubscriber(ctx context.Context, externalID string, at time.Time) (*billing.Subscriber, bool, error) {
	var (
		result    *billing.Subscriber
		cancelled bool
	)
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := scanSubscriber(tx.QueryRow(ctx,
			`SELECT `+subscriberColumns+` FROM subscribers WHERE external_subscription_id = $1 FOR UPDATE`, externalID))
		if err != nil {
			return err
		}
		if current.Status == billing.StatusCancelled {
			result = current
			return nil
		}

		result, err = scanSubscriber(tx.QueryRow(ctx, `
			UPDATE subscribers SET status = 'cancelled', updated_at = $2
			WHERE id = $1
			RETURNING `+subscriberColumns, current.ID, at))
		if err != nil {
			return err
		}
		cancelled = true
		return adjustCounter(ctx, tx, current.PlanID, -1)
	})
	if err != nil {
		if errors.Is(err, billing.ErrSubscriberNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("cancel subscriber: %w", err)
	}
	return result, cancelled, nil
}
