// Package memory keeps the thumbnail worker inside the container's memory
// budget.
//
// Decoding large images through libvips and running external tools both
// allocate outside the Go heap, so the heap is given only part of the
// container limit.
//
// # Configuration
//
// Call [ConfigureFromEnv] early in main, before significant allocations:
//
//   - GOMEMLIMIT: standard Go variable. When set it wins and nothing else is
//     read.
//   - MEMORY_LIMIT: container limit, either plain bytes from the Kubernetes
//     Downward API or a size such as "512MiB".
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the heap, between 0 and 1.
//     Defaults to 0.75.
//
// # Backpressure
//
// A [Monitor] samples heap usage against the limit. Above the critical mark
// it reports paused and the thumbnail worker blocks in
// [Monitor.WaitIfPaused] before starting the next render. It resumes once
// usage drops below the high water mark.
package memory
