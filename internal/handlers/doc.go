// Package handlers provides the HTTP API of the thumbnailer.
//
// It includes handlers for:
//   - Serving, queueing and synchronously creating thumbnails
//   - Cancelling queued thumbnail requests
//   - Reading and changing size limits and preview settings
//   - Health, readiness and version endpoints
//
// Source paths in requests are relative to the media directory and may not
// leave it.
package handlers
