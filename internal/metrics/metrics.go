package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pg_gateway_requests_total",
		Help: "Calls made to payment gateways by provider, operation and result",
	}, []string{"provider", "operation", "result"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pg_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	ProviderSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pg_provider_selections_total",
		Help: "Weighted provider selections",
	}, []string{"provider"})

	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pg_compensations_total",
		Help: "Compensating network cancels by trigger and outcome",
	}, []string{"reason", "result"})

	Orchestrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pg_orchestrations_total",
		Help: "Orchestrator operations by outcome",
	}, []string{"operation", "result"})
)
