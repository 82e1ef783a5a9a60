package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	readingsTotal   *prometheus.CounterVec
	detectionsTotal *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	threshold       prometheus.Gauge
	trust           prometheus.Gauge
	phase           *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		readingsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calmpulse_readings_total",
				Help: "Total number of biometric readings processed",
			},
			[]string{"source"},
		),
		detectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calmpulse_detections_total",
				Help: "Total number of anxiety events detected",
			},
			[]string{"type", "method"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calmpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		threshold: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "calmpulse_adjusted_threshold",
				Help: "Current online-adapted ML decision threshold",
			},
		),
		trust: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "calmpulse_trust_score",
				Help: "Fraction of recent feedback confirming detections",
			},
		),
		phase: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "calmpulse_detection_phase",
				Help: "Active detection phase (1 for the current phase, 0 otherwise)",
			},
			[]string{"phase"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calmpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordReading counts one processed reading by source.
func (r *Recorder) RecordReading(source string) {
	r.readingsTotal.WithLabelValues(source).Inc()
}

// RecordDetection counts one emitted anxiety event.
func (r *Recorder) RecordDetection(method, eventType string) {
	r.detectionsTotal.WithLabelValues(eventType, method).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordThreshold publishes the current adjusted threshold.
func (r *Recorder) RecordThreshold(v float64) {
	r.threshold.Set(v)
}

// RecordTrust publishes the current trust score.
func (r *Recorder) RecordTrust(v float64) {
	r.trust.Set(v)
}

// RecordPhase marks the active detection phase.
func (r *Recorder) RecordPhase(phase string) {
	for _, p := range []string{"rules_only", "hybrid", "ml_dominant"} {
		v := 0.0
		if p == phase {
			v = 1
		}
		r.phase.WithLabelValues(p).Set(v)
	}
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
