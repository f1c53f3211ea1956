package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	pollsTotal      *prometheus.CounterVec
	backoffActive   prometheus.Gauge
	cacheSize       prometheus.Gauge
	relayClients    prometheus.Gauge
	broadcastsTotal *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		pollsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricepulse_polls_total",
				Help: "Total number of poll timer fires by outcome",
			},
			[]string{"outcome"},
		),
		backoffActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricepulse_backoff_active",
				Help: "1 while the poll scheduler is in backoff mode",
			},
		),
		cacheSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricepulse_tick_cache_size",
				Help: "Current number of ticks held in the bounded cache",
			},
		),
		relayClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricepulse_relay_clients",
				Help: "Current number of connected relay subscribers",
			},
		),
		broadcastsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricepulse_broadcasts_total",
				Help: "Total number of relay messages broadcast by type",
			},
			[]string{"type"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricepulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricepulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordPoll records one poll timer fire with its outcome.
func (r *Recorder) RecordPoll(outcome string) {
	r.pollsTotal.WithLabelValues(outcome).Inc()
}

// SetBackoff records whether the scheduler is in backoff mode.
func (r *Recorder) SetBackoff(active bool) {
	if active {
		r.backoffActive.Set(1)
		return
	}
	r.backoffActive.Set(0)
}

// SetCacheSize records the bounded cache size.
func (r *Recorder) SetCacheSize(n int) {
	r.cacheSize.Set(float64(n))
}

// SetRelayClients records the relay subscriber count.
func (r *Recorder) SetRelayClients(n int) {
	r.relayClients.Set(float64(n))
}

// RecordBroadcast records one fan-out message by frame type.
func (r *Recorder) RecordBroadcast(kind string) {
	r.broadcastsTotal.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
