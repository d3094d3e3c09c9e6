package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/substrack/pkg/logger"
)

// Reconciler corrects drift in the denormalized plan subscriber counters.
type Reconciler struct {
	plans   PlanStore
	metrics *Metrics
	log     *slog.Logger
}

func NewReconciler(plans PlanStore, metrics *Metrics, log *slog.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{plans: plans, metrics: metrics, log: log.With(logger.Component("billing.reconcile"))}
}

// Run recomputes every counter once and returns the corrections made.
func (r *Reconciler) Run(ctx context.Context) ([]CounterDrift, error) {
	drift, err := r.plans.ReconcilePlanCounters(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drift {
		r.log.WarnContext(ctx, "plan subscriber counter corrected",
			logger.PlanID(d.PlanID),
			slog.Int64("stored", d.Stored),
			slog.Int64("actual", d.Actual),
		)
	}
	r.metrics.observeDrift(len(drift))
	return drift, nil
}

// Loop runs reconciliation every interval until ctx is done. Failed runs
// are logged and retried on the next tick.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
				r.log.ErrorContext(ctx, "counter reconciliation failed", logger.Error(err))
			}
		}
	}
}
