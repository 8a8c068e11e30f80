// Package workers sizes the thread pools handed to native image libraries.
//
// The thumbnail pipeline itself renders on a single goroutine, but libvips
// spreads one decode across its own threads. Sizing that pool from
// runtime.NumCPU oversubscribes containers with a CPU limit, so the helpers
// here derive the count from GOMAXPROCS:
//
//	vips.Startup(&vips.Config{ConcurrencyLevel: workers.ForCPU(8)})
//
// Operators can pin the value with VIPS_CONCURRENCY.
package workers
