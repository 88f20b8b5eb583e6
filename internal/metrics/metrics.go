// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imaginify",
		Name:      "ledger_adjustments_total",
		Help:      "Credit balance adjustments by direction and outcome.",
	}, []string{"direction", "result"})

	CreditsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imaginify",
		Name:      "credits_moved_total",
		Help:      "Absolute number of credits granted or debited.",
	}, []string{"direction"})

	CheckoutSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imaginify",
		Name:      "checkout_sessions_total",
		Help:      "Checkout sessions requested from the payment provider.",
	}, []string{"result"})

	TransactionsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imaginify",
		Name:      "transactions_finalized_total",
		Help:      "Payment confirmations processed by the worker.",
	}, []string{"result"})

	ViewInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "imaginify",
		Name:      "view_invalidations_total",
		Help:      "Invalidation signals emitted after mutations.",
	})
)

// Direction labels a signed credit delta.
func Direction(delta int) string {
	if delta < 0 {
		return "debit"
	}
	return "credit"
}
