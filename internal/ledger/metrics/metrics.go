package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the entitlement ledger.
// Tracks consume outcomes, credits, expiries and write latency.
type Metrics struct {
	ConsumeOutcomes   *prometheus.CounterVec
	CreditsApplied    *prometheus.CounterVec
	SubscriptionsLost prometheus.Counter
	BusyRejections    prometheus.Counter
	WriteDuration     *prometheus.HistogramVec
}

// New registers the ledger metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConsumeOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mutuelle_ledger_consume_total",
			Help: "Quota consume attempts by treatment kind and outcome",
		}, []string{"kind", "outcome"}),
		CreditsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mutuelle_ledger_credits_total",
			Help: "Payments credited by renewal policy",
		}, []string{"policy"}),
		SubscriptionsLost: f.NewCounter(prometheus.CounterOpts{
			Name: "mutuelle_ledger_subscriptions_expired_total",
			Help: "Accounts deactivated because no payment covered the period",
		}),
		BusyRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "mutuelle_ledger_busy_total",
			Help: "Writes rejected because the member lock was not acquired in time",
		}),
		WriteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mutuelle_ledger_write_duration_seconds",
			Help:    "Duration of ledger write operations including lock wait",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
	}
}

func (m *Metrics) RecordConsume(kind, outcome string) {
	m.ConsumeOutcomes.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordCredit(policy string) {
	m.CreditsApplied.WithLabelValues(policy).Inc()
}

func (m *Metrics) IncrementExpired() {
	m.SubscriptionsLost.Inc()
}

func (m *Metrics) IncrementBusy() {
	m.BusyRejections.Inc()
}

// ObserveWrite records the duration of a write. Call with time.Now() taken at
// the start of the operation.
func (m *Metrics) ObserveWrite(op string, start time.Time) {
	m.WriteDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
