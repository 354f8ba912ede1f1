// Package metrics exposes pipeline and HTTP measurements to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector implements chat.Recorder.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	stageDuration     *prometheus.HistogramVec
	stageErrors       *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	documentsGraded   prometheus.Counter
	documentsRetained prometheus.Counter

	logger *zap.Logger
}

// NewCollector registers every metric on reg. A nil reg uses the default
// Prometheus registry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"route", "outcome", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"route"},
	)

	c.stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	c.stageErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Total number of failed pipeline stages",
		},
		[]string{"stage"},
	)

	c.transitionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of state machine transitions",
		},
		[]string{"from", "to", "condition"},
	)

	c.documentsGraded = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_graded_total",
		Help:      "Total number of documents submitted to relevance grading",
	})

	c.documentsRetained = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_retained_total",
		Help:      "Total number of documents judged relevant",
	})

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) StageCompleted(stage string, duration time.Duration, err error) {
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		c.stageErrors.WithLabelValues(stage).Inc()
	}
}

func (c *Collector) Transition(from, to, condition string) {
	c.transitionsTotal.WithLabelValues(from, to, condition).Inc()
}

func (c *Collector) DocumentsGraded(retained, total int) {
	c.documentsGraded.Add(float64(total))
	c.documentsRetained.Add(float64(retained))
}

func (c *Collector) RunCompleted(route, outcome string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	if route == "" {
		route = "none"
	}
	if outcome == "" {
		outcome = "none"
	}
	c.runsTotal.WithLabelValues(route, outcome, status).Inc()
	c.runDuration.WithLabelValues(route).Observe(duration.Seconds())
}
