// Package main runs the thumbnail server.
//
// The server renders preview images for files under MEDIA_DIR and keeps them
// in a cache laid out as CACHE_DIR/thumbnails/{small,normal,large,fail}/
// <md5 of file URL>.png. Each cached PNG records the source URL and
// modification time, so a changed source invalidates its entry on the next
// lookup.
//
// # Application Lifecycle
//
//  1. Memory: GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
//  2. Configuration: environment variables, directory checks
//  3. Settings database: preview toggles and size limits in SQLite
//  4. Renderers: libvips, text and PDF renderers, the video provider and
//     external tools found under TOOL_DIRS
//  5. Thumbnail service with its single background worker
//  6. HTTP servers: the API on PORT and Prometheus metrics on METRICS_PORT
//  7. Graceful shutdown on SIGINT or SIGTERM
//
// # HTTP API
//
//	GET    /api/thumbnail/{size}/{path}  cached PNG, or 202 after queueing
//	POST   /api/thumbnail/{size}/{path}  render now and return the result
//	DELETE /api/queue/{size}/{path}      drop a queued request
//	GET    /api/limits                   source size limits
//	PUT    /api/limits                   change size limits
//	GET    /api/settings                 preview toggles
//	PUT    /api/settings                 change preview toggles
//
// Health probes are served on /health, /healthz, /livez and /readyz.
//
// # Environment Variables
//
//   - MEDIA_DIR: root that request paths are resolved against (default /media)
//   - CACHE_DIR: cache root (default /cache)
//   - DATABASE_DIR: settings database directory (default /database)
//   - PORT, METRICS_PORT, METRICS_ENABLED
//   - TOOL_DIRS: colon separated roots holding thumbnail/<tool>.json
//   - TOOL_TIMEOUT: limit on a single external tool run (default 30s)
//   - QUEUE_SIZE: pending request capacity (default 10000)
//   - DEFAULT_SIZE_LIMIT: source size cap for mimes without their own limit
//   - EXTRA_VIDEO_MIMES: comma separated mimes treated as video
//   - PREVIEW_IMAGE, PREVIEW_VIDEO, PREVIEW_TEXT, PREVIEW_DOCUMENT: initial
//     preview toggles, used only until changed through the API
//   - LOG_LEVEL, LOG_STATIC_FILES, LOG_HEALTH_CHECKS
//
// # Build Requirements
//
// CGO is required for SQLite and libvips. FFmpeg provides video frames.
//
//	go build -o thumbnailer .
package main
