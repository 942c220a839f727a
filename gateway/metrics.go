// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Gateway Prometheus metrics
var (
	metricRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_gateway_requests_total",
			Help: "Total number of requests processed by the gateway",
		},
		[]string{"action", "status"},
	)
	metricRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_gateway_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
		},
		[]string{"action"},
	)
	metricAuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_gateway_auth_failures_total",
			Help: "Total number of rejected authentications",
		},
		[]string{"reason"},
	)
	metricRateLimitDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_gateway_rate_limit_denials_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"scope"},
	)
	metricBudgetRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_gateway_budget_rejections_total",
			Help: "Total number of campaign writes rejected by the monthly budget cap",
		},
	)
	metricToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_gateway_tool_calls_total",
			Help: "Total number of tool worker calls",
		},
		[]string{"tool", "status"},
	)
	metricToolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_gateway_tool_call_duration_milliseconds",
			Help:    "Tool worker call duration in milliseconds",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 15000, 30000},
		},
		[]string{"tool"},
	)
)

// metricsOnce ensures metrics are registered only once
var metricsOnce sync.Once

// registerMetrics registers all gateway metrics once (safe for multiple calls)
func registerMetrics() {
	metricsOnce.Do(func() {
		// Duplicate registration across tests is not an error worth failing on
		_ = prometheus.Register(metricRequestsTotal)
		_ = prometheus.Register(metricRequestDuration)
		_ = prometheus.Register(metricAuthFailures)
		_ = prometheus.Register(metricRateLimitDenials)
		_ = prometheus.Register(metricBudgetRejections)
		_ = prometheus.Register(metricToolCalls)
		_ = prometheus.Register(metricToolCallDuration)
	})
}

// registerAuditGauges binds queue depth and drop gauges to a live audit
// logger. Called once from Run; separate from registerMetrics because
// the collectors need the logger instance.
func registerAuditGauges(pending func() int, dropped func() uint64) {
	_ = prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "campaign_gateway_audit_queue_depth",
			Help: "Entries currently waiting in the audit queue",
		},
		func() float64 { return float64(pending()) },
	))
	_ = prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "campaign_gateway_audit_dropped_total",
			Help: "Audit entries dropped because the queue was full",
		},
		func() float64 { return float64(dropped()) },
	))
}
