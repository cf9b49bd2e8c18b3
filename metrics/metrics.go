// Package metrics exposes Prometheus counters for the money paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MovementsTotal counts ledger movements by transaction type.
	MovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sacco",
		Name:      "ledger_movements_total",
		Help:      "Ledger movements applied, by transaction type.",
	}, []string{"type"})

	// SettlementsTotal counts gateway callback outcomes.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sacco",
		Name:      "settlements_total",
		Help:      "Payment gateway settlements handled, by outcome.",
	}, []string{"outcome"})

	// GatewayErrorsTotal counts payment gateway failures by operation.
	GatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sacco",
		Name:      "gateway_errors_total",
		Help:      "Payment gateway errors, by gateway operation.",
	}, []string{"op"})
)
