package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChannelTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livemap_channel_transitions_total",
		Help: "Channel state transitions",
	}, []string{"from", "to"})
	ChannelReconnectAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livemap_channel_reconnect_attempts_total",
		Help: "Automatic reconnect attempts",
	})
	ChannelHeartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livemap_channel_heartbeats_total",
		Help: "Heartbeat pings sent",
	})
	ChannelFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livemap_channel_frames_total",
		Help: "Inbound frames by type tag",
	}, []string{"type"})
	ChannelDecodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livemap_channel_decode_failures_total",
		Help: "Inbound frames dropped as malformed",
	})

	GeoRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livemap_geo_requests_total",
		Help: "Geo provider requests by query shape",
	}, []string{"query"})
	GeoErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livemap_geo_errors_total",
		Help: "Geo provider failures by query shape and error kind",
	}, []string{"query", "kind"})
	GeoDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "livemap_geo_duration_ms",
		Help:    "Geo provider call duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"query"})

	CyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livemap_cycles_total",
		Help: "Query cycles by outcome",
	}, []string{"outcome"})
	CycleDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "livemap_cycle_duration_ms",
		Help:    "Full query cycle duration in milliseconds",
		Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
	})
	CycleMismatchRatio = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "livemap_cycle_mismatch_ratio",
		Help:    "Disk/rectangle mismatch ratio per cycle",
		Buckets: []float64{0, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1},
	})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livemap_cache_hits_total",
		Help: "Report cache hits by tier",
	}, []string{"tier"})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livemap_cache_misses_total",
		Help: "Report cache misses across all tiers",
	})

	PredictRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livemap_predict_requests_total",
		Help: "Forecast requests proxied to the scoring service",
	})
	PredictFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livemap_predict_failures_total",
		Help: "Forecast requests that failed",
	})
)

func init() {
	prometheus.MustRegister(ChannelTransitionsTotal)
	prometheus.MustRegister(ChannelReconnectAttemptsTotal)
	prometheus.MustRegister(ChannelHeartbeatsTotal)
	prometheus.MustRegister(ChannelFramesTotal)
	prometheus.MustRegister(ChannelDecodeFailuresTotal)
	prometheus.MustRegister(GeoRequestsTotal)
	prometheus.MustRegister(GeoErrorsTotal)
	prometheus.MustRegister(GeoDurationMs)
	prometheus.MustRegister(CyclesTotal)
	prometheus.MustRegister(CycleDurationMs)
	prometheus.MustRegister(CycleMismatchRatio)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(PredictRequestsTotal)
	prometheus.MustRegister(PredictFailuresTotal)
}

// Handler exposes the registered collectors for scraping. Mounted on the
// secondary metrics listener, not the main API app.
func Handler() http.Handler { return promhttp.Handler() }
