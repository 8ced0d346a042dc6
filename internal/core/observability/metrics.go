package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gevika/map-metagenome/internal/core/model"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	artifactResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_cache_results_total",
			Help: "Artifact cache lookups by artifact and outcome.",
		},
		[]string{"artifact", "outcome"},
	)

	artifactRenderSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "artifact_render_duration_seconds",
			Help:    "Time spent rendering an artifact.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"artifact"},
	)

	cacheOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Latency of cache backend operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	datasetReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_reloads_total",
			Help: "Dataset reloads by trigger and result.",
		},
		[]string{"trigger", "result"},
	)

	datasetMarkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dataset_markers",
			Help: "Markers in the loaded dataset by depth category.",
		},
		[]string{"category"},
	)

	datasetSkippedRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_skipped_rows",
			Help: "Rows skipped for invalid coordinates in the loaded dataset.",
		},
	)

	invalidationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Dataset update events consumed by op and result.",
		},
		[]string{"op", "result"},
	)

	invalidationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invalidation_apply_seconds",
			Help:    "Time from event receipt to reload completion.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	kafkaConsumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func IncArtifactHit(artifact string)  { artifactResults.WithLabelValues(artifact, "hit").Inc() }
func IncArtifactMiss(artifact string) { artifactResults.WithLabelValues(artifact, "miss").Inc() }

func ObserveRender(artifact string, d time.Duration) {
	artifactRenderSeconds.WithLabelValues(artifact).Observe(d.Seconds())
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}

func ObserveReload(trigger string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	datasetReloads.WithLabelValues(trigger, result).Inc()
}

// SetDatasetCounts publishes the category breakdown of the current dataset.
func SetDatasetCounts(c model.Counts, skipped int) {
	datasetMarkers.WithLabelValues(model.Numeric.String()).Set(float64(c.Numeric))
	datasetMarkers.WithLabelValues(model.Missing.String()).Set(float64(c.Missing))
	datasetMarkers.WithLabelValues(model.Unknown.String()).Set(float64(c.Unknown))
	datasetSkippedRows.Set(float64(skipped))
}

func ObserveInvalidation(op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	invalidationEvents.WithLabelValues(op, result).Inc()
	if err == nil {
		invalidationLatency.Observe(d.Seconds())
	}
}

func IncInvalidationSkipped(op, reason string) {
	invalidationEvents.WithLabelValues(op, "skipped_"+reason).Inc()
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

// Collectors returns the application metrics, without build info, for
// registration on a custom registry next to the runtime collectors.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		artifactResults,
		artifactRenderSeconds,
		cacheOpSeconds,
		datasetReloads,
		datasetMarkers,
		datasetSkippedRows,
		invalidationEvents,
		invalidationLatency,
		kafkaConsumerErrors,
	}
}
