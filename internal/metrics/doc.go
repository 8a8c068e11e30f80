// Package metrics provides Prometheus instrumentation for the thumbnailer.
//
// All metrics are registered with the default registry through promauto and
// are prefixed with "thumbnailer_".
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Thumbnail Metrics
//
//   - ThumbnailGenerationsTotal: Counter by renderer (image/text/pdf/external) and result
//   - ThumbnailGenerationDuration: Histogram of render plus write time by renderer
//   - ThumbnailIneligibleTotal: Counter of create calls refused by the eligibility policy
//   - ThumbnailCacheLookups: Counter of cache lookups by outcome (hit/miss/stale/passthrough)
//   - ThumbnailCacheFiles, ThumbnailCacheBytes: Gauges per cache directory
//
// ## Queue Metrics
//
//   - QueueDepth: Gauge of requests waiting for the worker
//   - QueuePendingCancels: Gauge of cancellations waiting for their request
//   - QueueDiscardedTotal: Counter of cancelled requests skipped by the worker
//   - QueueProcessedTotal: Counter of requests rendered by the worker
//   - QueueCoalescedTotal: Counter of requests joined to one already pending
//   - WorkerBusy: Gauge set while the worker renders
//
// ## External Tool Metrics
//
//   - ToolRunsTotal: Counter of tool invocations by result (timeout and
//     canceled are counted apart)
//   - ToolRunDuration: Histogram of tool run time
//   - ToolsRegistered: Gauge of registered mime keys
//
// ## Filesystem and Database Metrics
//
//   - FilesystemRetry*: ESTALE retry bookkeeping by operation and filesystem type
//   - DBQueryTotal, DBQueryDuration, DBSizeBytes: settings database activity
//
// # Usage
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// The filesystem package cannot import metrics directly, so wire the
// observer at startup:
//
//	filesystem.SetObserver(metrics.NewFilesystemObserver())
//
// # Collector
//
// [Collector] periodically measures the cache directories and the settings
// database and reads queue statistics from a [StatsProvider]:
//
//	collector := metrics.NewCollector(svc, cacheRoot, dbPath, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Cache hit rate:
//
//	sum(rate(thumbnailer_cache_lookups_total{outcome="hit"}[5m])) /
//	sum(rate(thumbnailer_cache_lookups_total[5m]))
//
// Render failure rate by renderer:
//
//	sum(rate(thumbnailer_generations_total{result="error"}[5m])) by (renderer)
package metrics
