// Package database persists thumbnailer settings in SQLite.
//
// Two tables are kept: preferences, holding the preview toggles consulted by
// the eligibility policy, and size_limits, holding per-mime source size
// limits changed at runtime. The database uses WAL mode and creates its
// schema on open.
package database
