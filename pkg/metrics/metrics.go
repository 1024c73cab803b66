package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CalculatorCalls counts calculator requests by formula variant and outcome.
	CalculatorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carlot_calculator_calls_total",
			Help: "Installment calculator calls",
		},
		[]string{"variant", "status"},
	)

	// PaymentActions counts schedule mutations (paid, reset, transfer) by outcome.
	PaymentActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carlot_payment_actions_total",
			Help: "Installment schedule actions",
		},
		[]string{"action", "status"},
	)

	// LateFeesApplied counts months that received an automatic late fee.
	LateFeesApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carlot_late_fees_applied_total",
			Help: "Late fees applied by the batch job",
		},
	)

	// HTTPRequests counts API requests by route template, method and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carlot_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"route", "method", "code"},
	)
)
