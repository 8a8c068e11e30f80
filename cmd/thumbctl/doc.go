// Command thumbctl creates and inspects cached thumbnails from the command
// line, using the same environment and settings database as the server.
//
// Usage:
//
//	thumbctl <command> [arguments]
//
// Commands:
//
//	create <size> <path>...   Render thumbnails synchronously and print
//	                          where each one was written.
//	path <size> <path>        Print the cached thumbnail for path if it is
//	                          present and up to date.
//	limits                    Show the effective source size limits.
//	set-limit <mime|*> <n>    Store a size limit, e.g. "video/mp4 2GiB".
//	                          "*" changes the default.
//	settings                  Show the preview toggles.
//	set-preview <key> <on|off>
//	                          Change a preview toggle.
//
// Sizes are small, normal or large (or 64, 128, 256).
//
// Environment:
//
//	CACHE_DIR    - cache root; thumbnails live under CACHE_DIR/thumbnails
//	DATABASE_DIR - directory holding settings.db
//	TOOL_DIRS    - colon separated roots scanned for thumbnail tools
//
// Output is colored only when stdout is a terminal.
package main
