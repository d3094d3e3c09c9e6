package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook outcomes used as metric label values.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeIntegrity = "integrity"
	OutcomeUntrusted = "untrusted"
	OutcomeFailed    = "failed"
)

// Metrics are the billing collectors. A nil *Metrics records nothing.
type Metrics struct {
	webhooks      *prometheus.CounterVec
	webhookTime   *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	counterDrift  prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "substrack",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
		webhookTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "substrack",
			Subsystem: "webhook",
			Name:      "duration_seconds",
			Help:      "Time spent handling a webhook delivery.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "substrack",
			Subsystem: "notification",
			Name:      "sent_total",
			Help:      "Notification deliveries by kind and result.",
		}, []string{"kind", "result"}),
		counterDrift: f.NewCounter(prometheus.CounterOpts{
			Namespace: "substrack",
			Subsystem: "reconcile",
			Name:      "counter_corrections_total",
			Help:      "Plan subscriber counters corrected by reconciliation.",
		}),
	}
}

func (m *Metrics) observeWebhook(eventType, outcome string, seconds float64) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhooks.WithLabelValues(eventType, outcome).Inc()
	m.webhookTime.WithLabelValues(eventType).Observe(seconds)
}

func (m *Metrics) observeNotification(kind NotificationKind, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) observeDrift(n int) {
	if m == nil || n == 0 {
		return
	}
	m.counterDrift.Add(float64(n))
}
