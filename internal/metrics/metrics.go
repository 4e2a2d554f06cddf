// Package metrics records planner outcomes as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operations.
const (
	OpDecompose = "decompose"
	OpSplit     = "split"
)

// Recorder observes one planner call.
type Recorder interface {
	ObservePlan(operation, source, reason string, duration time.Duration)
}

type PrometheusRecorder struct {
	resultsTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the planner metrics on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		resultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_results_total",
				Help: "Planner results by operation, source (ai or fallback) and failure reason",
			},
			[]string{"operation", "source", "reason"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "planner_duration_seconds",
				Help:    "Wall-clock time of planner calls including fallback",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "source"},
		),
	}
}

func (p *PrometheusRecorder) ObservePlan(operation, source, reason string, duration time.Duration) {
	p.resultsTotal.WithLabelValues(operation, source, reason).Inc()
	p.requestDuration.WithLabelValues(operation, source).Observe(duration.Seconds())
}

// Nop discards observations.
type Nop struct{}

func (Nop) ObservePlan(string, string, string, time.Duration) {}
