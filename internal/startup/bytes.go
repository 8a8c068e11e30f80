package startup

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var byteUnits = []struct {
	suffix string
	factor int64
}{
	{"kib", 1 << 10},
	{"mib", 1 << 20},
	{"gib", 1 << 30},
	{"kb", 1000},
	{"mb", 1000 * 1000},
	{"gb", 1000 * 1000 * 1000},
	{"k", 1 << 10},
	{"m", 1 << 20},
	{"g", 1 << 30},
	{"b", 1},
}

// ParseBytes parses a byte count such as "1048576", "30MiB" or "1.5G".
// Single letter suffixes are binary. "unlimited" maps to math.MaxInt64.
func ParseBytes(s string) (int64, error) {
	value := strings.ToLower(strings.TrimSpace(s))
	if value == "" {
		return 0, fmt.Errorf("empty size")
	}
	if value == "unlimited" {
		return math.MaxInt64, nil
	}

	factor := int64(1)
	for _, u := range byteUnits {
		if strings.HasSuffix(value, u.suffix) {
			factor = u.factor
			value = strings.TrimSpace(strings.TrimSuffix(value, u.suffix))
			break
		}
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative size %q", s)
		}
		if n > math.MaxInt64/factor {
			return math.MaxInt64, nil
		}
		return n * factor, nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	total := f * float64(factor)
	if total >= math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(total), nil
}

// FormatBytes formats bytes into a human-readable string
func FormatBytes(b int64) string {
	if b == math.MaxInt64 {
		return "unlimited"
	}
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
