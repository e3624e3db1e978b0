package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kashef_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kashef_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ConversationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kashef_conversations_active",
		Help: "Number of conversations currently held in the state store",
	})

	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kashef_turns_total",
		Help: "Total dialogue turns processed, by outcome",
	}, []string{"outcome"})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kashef_turn_duration_seconds",
		Help:    "End-to-end turn handling duration",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 25},
	})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kashef_search_duration_seconds",
		Help:    "Catalogue retrieval duration including the retry",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	})

	SearchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kashef_search_failures_total",
		Help: "Catalogue retrievals that failed after the retry",
	})

	RelaxationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kashef_relaxations_total",
		Help: "Constraint relaxation steps applied, by topic",
	}, []string{"topic"})

	ExtractorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kashef_extractor_failures_total",
		Help: "Extractor calls that failed and degraded to an empty delta",
	})
)
