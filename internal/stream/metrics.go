package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// eventsTotal counts accepted stage events.
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_stream_events_total",
		Help: "Total stage events accepted by stage",
	}, []string{"stage"})

	// droppedTotal counts events discarded without changing state.
	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_stream_dropped_total",
		Help: "Total stage events dropped by reason",
	}, []string{"reason"})

	// terminalTotal counts runs reaching a terminal status.
	terminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_stream_terminal_total",
		Help: "Total pipeline runs reaching a terminal status",
	}, []string{"status"})

	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tower_stream_active_subscriptions",
		Help: "Number of open stage subscriptions",
	})
)
