package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts permission evaluations and their outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formscore_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"level", "result"},
	)

	// GrantOperations counts grant/revoke mutations by outcome.
	GrantOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formscore_grant_operations_total",
			Help: "Total number of grant lifecycle operations",
		},
		[]string{"operation", "result"},
	)

	// ExpiredGrants tracks grants still flagged active whose expiry has passed.
	ExpiredGrants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formscore_expired_active_grants",
			Help: "Number of active grants past their expiry timestamp",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formscore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
