// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts calls to the upstream REST API by endpoint and outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presensi",
		Name:      "upstream_requests_total",
		Help:      "Requests sent to the upstream attendance API.",
	}, []string{"endpoint", "code"})

	// UpstreamLatency observes upstream round-trip time.
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presensi",
		Name:      "upstream_request_seconds",
		Help:      "Upstream attendance API latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	// RecordsRejected counts upstream records dropped by boundary validation.
	RecordsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presensi",
		Name:      "records_rejected_total",
		Help:      "Upstream records that failed validation.",
	}, []string{"kind"})

	// FilterResults observes how many records survive a history filter.
	FilterResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "presensi",
		Name:      "history_filter_results",
		Help:      "Records returned per history filter request.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
	})

	// SyncJobs counts mirror sync jobs processed by the worker.
	SyncJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presensi",
		Name:      "sync_jobs_total",
		Help:      "Mirror sync jobs by result.",
	}, []string{"result"})
)
