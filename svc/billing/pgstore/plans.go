package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/substrack/pkg/pg"
	"github.com/dmitrymomot/substrack/svc/billing"
)

func (s *Store) GetPlan(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	var (
		p     billing.Plan
		price string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, merchant_id, name, description, price::text, currency, billing_cycle, features,
			active, external_product_id, external_price_id, subscriber_count, created_at, updated_at
		FROM subscription_plans WHERE id = $1`, id).Scan(
		&p.ID, &p.MerchantID, &p.Name, &p.Description, &price, &p.Currency, &p.BillingCycle, &p.Features,
		&p.Active, &p.ExternalProductID, &p.ExternalPriceID, &p.SubscriberCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if p.Price, err = parseDecimal(price); err != nil {
		return nil, fmt.Errorf("plan price: %w", err)
	}
	return &p, nil
}

// CreatePlan inserts a plan with a zero counter.
func (s *Store) CreatePlan(ctx context.Context, p *billing.Plan) error {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscription_plans (id, merchant_id, name, description, price, currency, billing_cycle,
			features, active, external_product_id, external_price_id)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.MerchantID, p.Name, p.Description, decimalText(p.Price), p.Currency, string(p.BillingCycle),
		features, p.Active, p.ExternalProductID, p.ExternalPriceID,
	)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// ReconcilePlanCounters locks every plan row first so that concurrent
// creates and cancels apply their counter change after the recount.
func (s *Store) ReconcilePlanCounters(ctx context.Context) ([]billing.CounterDrift, error) {
	var drift []billing.CounterDrift
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT id FROM subscription_plans ORDER BY id FOR UPDATE`); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			WITH actual AS (
				SELECT p.id, p.subscriber_count AS stored,
					COUNT(s.id) FILTER (WHERE s.status <> 'cancelled') AS actual
				FROM subscription_plans p
				LEFT JOIN subscribers s ON s.plan_id = p.id
				GROUP BY p.id, p.subscriber_count
			)
			UPDATE subscription_plans p
			SET subscriber_count = a.actual, updated_at = now()
			FROM actual a
			WHERE p.id = a.id AND p.subscriber_count <> a.actual
			RETURNING p.id, a.stored, a.actual`)
		if err != nil {
			return err
		}
		drift, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.CounterDrift, error) {
			var d billing.CounterDrift
			err := row.Scan(&d.PlanID, &d.Stored, &d.Actual)
			return d, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile plan counters: %w", err)
	}
	return drift, nil
}

// adjustCounter moves a plan counter by delta inside tx, never below zero.
func adjustCounter(ctx context.Context, q querier, planID uuid.UUID, delta int) error {
	tag, err := q.Exec(ctx, `
		UPDATE subscription_plans
		SET subscriber_count = GREATEST(subscriber_count + $2, 0), updated_at = now()
		WHERE id = $1`, planID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrPlanNotFound
	}
	return nil
}
