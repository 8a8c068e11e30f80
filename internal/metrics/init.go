package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, r := range []string{"image", "text", "pdf", "external"} {
		ThumbnailGenerationsTotal.WithLabelValues(r, "success")
		ThumbnailGenerationsTotal.WithLabelValues(r, "error")
		ThumbnailGenerationDuration.WithLabelValues(r)
	}

	for _, o := range []string{"hit", "miss", "stale", "passthrough"} {
		ThumbnailCacheLookups.WithLabelValues(o)
	}

	for _, d := range []string{"small", "normal", "large", "fail"} {
		ThumbnailCacheFiles.WithLabelValues(d)
		ThumbnailCacheBytes.WithLabelValues(d)
	}

	for _, r := range []string{"success", "exit_error", "timeout", "start_error", "bad_output"} {
		ToolRunsTotal.WithLabelValues(r)
	}

	for _, op := range []string{"stat", "open"} {
		FilesystemRetryAttempts.WithLabelValues(op, "unknown")
		FilesystemRetrySuccess.WithLabelValues(op, "unknown")
		FilesystemRetryFailures.WithLabelValues(op, "unknown")
		FilesystemStaleErrors.WithLabelValues(op, "unknown")
	}

	for _, op := range []string{"initialize_schema", "get_settings", "set_setting", "get_size_limits", "set_size_limit"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
