package thumbnail

import (
	"fmt"
	"strconv"
	"strings"
)

// SizeClass is a thumbnail size tier. Its value is the bounding box edge in
// pixels.
type SizeClass int

const (
	Small  SizeClass = 64
	Normal SizeClass = 128
	Large  SizeClass = 256
)

// FailDir holds fail markers for every size class.
const FailDir = "fail"

// SizeClasses lists the tiers in ascending order.
func SizeClasses() []SizeClass {
	return []SizeClass{Small, Normal, Large}
}

// Bound returns the bounding box edge in pixels.
func (s SizeClass) Bound() int {
	return int(s)
}

// Dir returns the cache subdirectory for the tier, or "" for an unknown value.
func (s SizeClass) Dir() string {
	switch s {
	case Small:
		return "small"
	case Normal:
		return "normal"
	case Large:
		return "large"
	default:
		return ""
	}
}

// Valid reports whether s is one of the known tiers.
func (s SizeClass) Valid() bool {
	return s.Dir() != ""
}

func (s SizeClass) String() string {
	if d := s.Dir(); d != "" {
		return d
	}
	return fmt.Sprintf("SizeClass(%d)", int(s))
}

// ParseSizeClass accepts a tier name ("small", "normal", "large") or its
// pixel bound ("64", "128", "256").
func ParseSizeClass(v string) (SizeClass, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, s := range SizeClasses() {
		if v == s.Dir() {
			return s, nil
		}
	}
	if n, err := strconv.Atoi(v); err == nil && SizeClass(n).Valid() {
		return SizeClass(n), nil
	}
	return 0, fmt.Errorf("invalid thumbnail size %q", v)
}
