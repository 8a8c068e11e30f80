package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	t.Setenv(OverrideEnv, "")

	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		want       int
	}{
		{"one per CPU", 1.0, 0, available},
		{"double", 2.0, 0, available * 2},
		{"capped by limit", 100.0, 2, 2},
		{"zero multiplier floors to one", 0.0, 0, 1},
		{"negative multiplier floors to one", -1.0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.multiplier, tt.limit); got != tt.want {
				t.Errorf("Count(%v, %d) = %d, want %d", tt.multiplier, tt.limit, got, tt.want)
			}
		})
	}
}

func TestCountWithEnvOverride(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		limit    int
		want     int
	}{
		{"valid override", "8", 0, 8},
		{"override capped by limit", "20", 10, 10},
		{"override below limit", "5", 10, 5},
		{"non-numeric ignored", "lots", 1, 1},
		{"zero ignored", "0", 1, 1},
		{"negative ignored", "-5", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(OverrideEnv, tt.envValue)

			if got := Count(1.0, tt.limit); got != tt.want {
				t.Errorf("Count(1.0, %d) with %s=%q = %d, want %d", tt.limit, OverrideEnv, tt.envValue, got, tt.want)
			}
		})
	}
}

func TestForCPU(t *testing.T) {
	t.Setenv(OverrideEnv, "")

	if got := ForCPU(1); got != 1 {
		t.Errorf("ForCPU(1) = %d, want 1", got)
	}

	got := ForCPU(0)
	if got < 1 || got > runtime.GOMAXPROCS(0) {
		t.Errorf("ForCPU(0) = %d, want between 1 and %d", got, runtime.GOMAXPROCS(0))
	}
}
