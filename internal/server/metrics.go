package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tower_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	sseClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tower_sse_clients",
		Help: "Connected SSE clients.",
	})

	sseDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tower_sse_dropped_total",
		Help: "Events dropped for slow SSE clients.",
	})
)
