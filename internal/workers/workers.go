package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv names the environment variable that pins the thread count.
const OverrideEnv = "VIPS_CONCURRENCY"

// Count returns the number of threads to hand a CPU-heavy library such as
// libvips. It uses GOMAXPROCS, which Go sets from the container CPU quota,
// rather than runtime.NumCPU, which reports the host.
//
// multiplier scales the per-CPU count; limit caps the result (0 for none).
// A positive integer in VIPS_CONCURRENCY wins over the calculation but is
// still capped by limit.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(OverrideEnv); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	n := int(float64(runtime.GOMAXPROCS(0)) * multiplier)

	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}

	return n
}

// ForCPU returns one thread per available CPU, capped by limit.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}
