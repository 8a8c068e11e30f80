package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"thumbnailer/internal/logging"
	"thumbnailer/internal/startup"
)

// DefaultMemoryRatio is the share of the container limit given to the Go heap.
const DefaultMemoryRatio = 0.75

// ConfigResult describes what ConfigureFromEnv did.
type ConfigResult struct {
	Configured bool
	// Source is "GOMEMLIMIT", "MEMORY_LIMIT" or "none".
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets the runtime memory limit from MEMORY_LIMIT and
// MEMORY_RATIO unless GOMEMLIMIT is already set.
func ConfigureFromEnv() ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	raw := os.Getenv("MEMORY_LIMIT")
	if raw == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT will not be configured automatically")
		return ConfigResult{Source: "none"}
	}

	limit, err := startup.ParseBytes(raw)
	if err != nil || limit == 0 || limit == math.MaxInt64 {
		logging.Warn("Ignoring MEMORY_LIMIT %q", raw)
		return ConfigResult{Source: "none"}
	}

	ratio := parseRatio(os.Getenv("MEMORY_RATIO"))
	goLimit := int64(float64(limit) * ratio)
	debug.SetMemoryLimit(goLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
		startup.FormatBytes(goLimit), ratio*100, startup.FormatBytes(limit))

	return ConfigResult{
		Configured:     true,
		Source:         "MEMORY_LIMIT",
		ContainerLimit: limit,
		GoMemLimit:     goLimit,
		Ratio:          ratio,
	}
}

func parseRatio(s string) float64 {
	if s == "" {
		return DefaultMemoryRatio
	}
	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil || !(ratio > 0 && ratio <= 1) {
		logging.Warn("MEMORY_RATIO %q must be in (0, 1], using default %.2f", s, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return ratio
}
