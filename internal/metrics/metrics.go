package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for webhook intake and payout dispatch.
type Metrics struct {
	WebhookRequests        *prometheus.CounterVec
	Instructions           *prometheus.CounterVec
	PayoutLegs             *prometheus.CounterVec
	PayoutDispatchDuration prometheus.Histogram
	LedgerWriteFailures    prometheus.Counter
}

// New registers and returns the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_gateway_webhook_requests_total",
			Help: "Total number of webhook requests by outcome (accepted, unauthorized, invalid)",
		}, []string{"outcome"}),
		Instructions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_gateway_instructions_total",
			Help: "Total number of credit-transfer instructions by currency and disposition",
		}, []string{"currency", "status"}),
		PayoutLegs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_gateway_payout_legs_total",
			Help: "Total number of payout legs dispatched to the provider",
		}, []string{"currency"}),
		PayoutDispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "payout_gateway_payout_dispatch_duration_ms",
			Help:    "Duration of a single provider payout call in milliseconds",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		LedgerWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "payout_gateway_ledger_write_failures_total",
			Help: "Total number of failed ledger appends",
		}),
	}
}

// Nop returns collectors registered on a private registry, for tests and tools.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
