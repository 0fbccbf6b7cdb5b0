package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// loadsTotal counts snapshot loads by result.
	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_graph_loads_total",
		Help: "Total graph snapshot loads by result",
	}, []string{"result"})

	// loadDuration tracks fetch plus normalisation latency.
	loadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tower_graph_load_duration_seconds",
		Help:    "Graph snapshot load duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	// snapshotNodes records the size of the latest snapshot.
	snapshotNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tower_graph_snapshot_nodes",
		Help: "Number of accounts in the current graph snapshot",
	})
)
