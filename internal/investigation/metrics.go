package investigation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_submissions_total",
		Help: "Transaction submissions by outcome.",
	}, []string{"result"})

	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_searches_total",
		Help: "Account searches by outcome.",
	}, []string{"result"})

	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_reports_total",
		Help: "Investigation report exports by outcome.",
	}, []string{"result"})
)
