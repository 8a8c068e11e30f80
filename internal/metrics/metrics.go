package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnailer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_generations_total",
			Help: "Total number of thumbnail generations by renderer and result",
		},
		[]string{"renderer", "result"}, // renderer: image, text, pdf, external; result: success, error
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnailer_generation_duration_seconds",
			Help:    "Time spent rendering and writing a thumbnail",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"renderer"},
	)

	ThumbnailIneligibleTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnailer_ineligible_total",
			Help: "Create requests rejected by the eligibility policy",
		},
	)

	ThumbnailCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_cache_lookups_total",
			Help: "Cache path lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss, stale, passthrough
	)

	ThumbnailCacheFiles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnailer_cache_files",
			Help: "Number of files in each cache directory",
		},
		[]string{"dir"},
	)

	ThumbnailCacheBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnailer_cache_bytes",
			Help: "Total size of each cache directory in bytes",
		},
		[]string{"dir"},
	)
)

// Queue metrics
var (
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailer_queue_depth",
			Help: "Number of requests waiting for the worker",
		},
	)

	QueuePendingCancels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailer_queue_pending_cancels",
			Help: "Cancellations not yet matched by a dequeued request",
		},
	)

	QueueDiscardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnailer_queue_discarded_total",
			Help: "Queued requests skipped because they were cancelled",
		},
	)

	QueueCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnailer_queue_coalesced_total",
			Help: "Requests merged into one already queued or rendering",
		},
	)

	QueueProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnailer_queue_processed_total",
			Help: "Queued requests rendered by the worker",
		},
	)

	WorkerBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailer_worker_busy",
			Help: "Whether the worker is rendering (1) or idle (0)",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailer_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailer_memory_paused",
			Help: "Whether the worker is paused for memory pressure (1) or not (0)",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnailer_memory_pauses_total",
			Help: "Times the worker was paused for memory pressure",
		},
	)
)

// External tool metrics
var (
	ToolRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_tool_runs_total",
			Help: "External thumbnail tool invocations by result",
		},
		[]string{"result"}, // success, exit_error, timeout, canceled, start_error, bad_output
	)

	ToolRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thumbnailer_tool_run_duration_seconds",
			Help:    "External thumbnail tool run time",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	ToolsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailer_tools_registered",
			Help: "Number of mime keys mapped to external thumbnail tools",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_filesystem_retry_attempts_total",
			Help: "Retries performed after stale file handle errors",
		},
		[]string{"operation", "fstype"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "fstype"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "fstype"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_filesystem_stale_errors_total",
			Help: "ESTALE errors seen while reading source files",
		},
		[]string{"operation", "fstype"},
	)
)

// Settings database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_db_queries_total",
			Help: "Total number of settings database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnailer_db_query_duration_seconds",
			Help:    "Settings database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnailer_db_size_bytes",
			Help: "Settings database file size in bytes",
		},
		[]string{"file"}, // main, wal, shm
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnailer_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
