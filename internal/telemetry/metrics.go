// Package telemetry registers the broker's Prometheus metrics, grounded
// on the teacher's package-level var + init()-registration pattern
// (adred-codev/ws_poc's metrics.go).
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Streaming engine metrics (C5).
	BatchesEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_stream_batches_emitted_total",
		Help: "Total number of batch records emitted, including keep-alives",
	}, []string{"event_type"})

	KeepAlivesEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_stream_keep_alives_emitted_total",
		Help: "Total number of keep-alive (no-events) batch records emitted",
	}, []string{"event_type"})

	BytesFlushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_stream_bytes_flushed_total",
		Help: "Total number of bytes flushed to stream sinks",
	}, []string{"event_type"})

	StreamExits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_stream_exits_total",
		Help: "Total number of stream engine exits, by reason",
	}, []string{"event_type", "reason"})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "broker_active_streams",
		Help: "Current number of open streaming connections",
	})

	// Subscription service metrics (C8/C9).
	SubscriptionCreateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_subscription_create_total",
		Help: "Total number of subscription create-or-get calls, by outcome",
	}, []string{"outcome"})

	SubscriptionCreateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "broker_subscription_create_duration_seconds",
		Help:    "Latency of subscription create-or-get calls",
		Buckets: prometheus.DefBuckets,
	})

	SubscriptionListTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_subscription_list_total",
		Help: "Total number of subscription list calls",
	})

	SubscriptionStatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_subscription_stats_total",
		Help: "Total number of subscription stats calls",
	})
)

func init() {
	prometheus.MustRegister(BatchesEmitted)
	prometheus.MustRegister(KeepAlivesEmitted)
	prometheus.MustRegister(BytesFlushed)
	prometheus.MustRegister(StreamExits)
	prometheus.MustRegister(ActiveStreams)
	prometheus.MustRegister(SubscriptionCreateTotal)
	prometheus.MustRegister(SubscriptionCreateDuration)
	prometheus.MustRegister(SubscriptionListTotal)
	prometheus.MustRegister(SubscriptionStatsTotal)
}

// Handler exposes the default registry's /metrics endpoint, served on the
// broker's dedicated metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
