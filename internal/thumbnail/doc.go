// Package thumbnail generates preview images for files and keeps them in an
// on-disk cache.
//
// Thumbnails are PNG files stored under the cache root in one directory per
// size class (small, normal, large). The file name is the MD5 of the source's
// file URL. Each entry carries the source URL and modification time in PNG
// text chunks, and an entry whose recorded time differs from the source is
// treated as stale and removed on lookup. Failed renders leave a 1x1 marker
// in the fail directory.
//
// Requests can be made synchronously with CreateThumbnail or queued with
// Enqueue. Queued requests are handled in order by a single worker goroutine
// and may be cancelled before they are dequeued. Lifecycle events are
// delivered through the service's Notifier.
package thumbnail
