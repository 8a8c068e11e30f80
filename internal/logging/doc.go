// Package logging provides the leveled logger used across the thumbnailer.
//
// Levels, from most to least verbose:
//   - DEBUG: per-task details from the thumbnail worker
//   - INFO: startup banners and lifecycle messages
//   - WARN: failed renders, unreadable manifests
//   - ERROR: conditions that need operator attention
//   - FATAL: startup errors that terminate the process
//
// The level comes from LOG_LEVEL (or DEBUG=true) and can be overridden at
// runtime with SetLevel.
package logging
