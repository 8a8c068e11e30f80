// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - MEDIA_DIR: Root that HTTP paths are resolved against (default: /media)
//   - CACHE_DIR: Cache root; thumbnails live in CACHE_DIR/thumbnails (default: /cache)
//   - DATABASE_DIR: Directory holding settings.db (default: /database)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - TOOL_DIRS: Colon separated external tool roots (default: /usr/lib/thumbnailer/tools)
//   - TOOL_TIMEOUT: Per-invocation tool timeout as Go duration (default: 30s)
//   - QUEUE_SIZE: Pending request capacity (default: 10000)
//   - DEFAULT_SIZE_LIMIT: Source size cap for mimes without a limit (default: 20MiB)
//   - PREVIEW_IMAGE, PREVIEW_VIDEO, PREVIEW_TEXT, PREVIEW_DOCUMENT: Initial
//     preview toggles (default: true)
//   - EXTRA_VIDEO_MIMES: Comma separated mimes treated as video
//   - VIPS_CONCURRENCY: libvips thread count override
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_STATIC_FILES: Log thumbnail image responses (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//
// Sizes accept plain byte counts or unit suffixes, see [ParseBytes].
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
//
// # Example Usage
//
//	config, err := startup.LoadConfig()
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//
//	startup.LogServerStarted(startup.ServerConfig{
//	    Port:            config.Port,
//	    MetricsPort:     config.MetricsPort,
//	    MetricsEnabled:  config.MetricsEnabled,
//	    StartupDuration: time.Since(startTime),
//	})
package startup
