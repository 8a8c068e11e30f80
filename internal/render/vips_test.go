package render

import (
	"testing"

	"thumbnailer/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

func TestVipsThreshold(t *testing.T) {
	tests := []struct {
		level logging.LogLevel
		want  vips.LogLevel
	}{
		{logging.LevelDebug, vips.LogLevelInfo},
		{logging.LevelInfo, vips.LogLevelWarning},
		{logging.LevelWarn, vips.LogLevelError},
		{logging.LevelError, vips.LogLevelCritical},
	}

	for _, tt := range tests {
		if got := vipsThreshold(tt.level); got != tt.want {
			t.Errorf("vipsThreshold(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestLoadWithVipsUnavailable(t *testing.T) {
	if IsVipsAvailable() {
		t.Skip("libvips already initialized")
	}

	_, _, err := loadWithVips(vipsLoad{path: "/nonexistent.svg", page: -1, bound: 64})
	if err == nil {
		t.Fatal("expected error when libvips is not initialized")
	}
}
