package server

import (
	"context"
	"image"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zephyrtronium/scribble/predict"
)

const namespace = "scribble"

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	// Submissions counts finished submissions by outcome: ok, aborted, or
	// canceled.
	Submissions *prometheus.CounterVec
	// Events counts prediction events by kind.
	Events *prometheus.CounterVec
	// Duration measures submissions from dequeue to the done event.
	Duration prometheus.Histogram
	// Wait measures how long submissions wait for a worker.
	Wait prometheus.Histogram
	// Connections is the number of open websocket connections.
	Connections prometheus.Gauge
	// Classifications counts classifier calls by outcome: label, unknown, or
	// error.
	Classifications *prometheus.CounterVec
	// Evaluations counts REST evaluations by failure kind, with "ok" for
	// success.
	Evaluations *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Image submissions by outcome.",
		}, []string{"outcome"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Prediction events by kind.",
		}, []string{"kind"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Time to process a submission.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Wait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_wait_seconds",
			Help:      "Time a submission waits for a worker.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open websocket connections.",
		}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classifier calls by outcome.",
		}, []string{"outcome"}),
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Label sequence evaluations by result.",
		}, []string{"result"}),
	}
}

// Classifier wraps c to count its calls.
func (m *Metrics) Classifier(c predict.Classifier) predict.Classifier {
	return predict.ClassifierFunc(func(ctx context.Context, raster image.Image, threshold float64) (string, error) {
		l, err := c.Classify(ctx, raster, threshold)
		switch {
		case err != nil:
			m.Classifications.WithLabelValues("error").Inc()
		case l == predict.Unknown:
			m.Classifications.WithLabelValues("unknown").Inc()
		default:
			m.Classifications.WithLabelValues("label").Inc()
		}
		return l, err
	})
}
