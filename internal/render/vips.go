package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"sync"

	"thumbnailer/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// vipsThreshold maps the application log level to the lowest libvips level
// worth forwarding.
func vipsThreshold(level logging.LogLevel) vips.LogLevel {
	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo
	case logging.LevelWarn:
		return vips.LogLevelError
	case logging.LevelError:
		return vips.LogLevelCritical
	default:
		return vips.LogLevelWarning
	}
}

// forwardVipsLog writes a libvips message through the application logger.
// libvips levels grow more verbose as the value increases.
func forwardVipsLog(domain string, level vips.LogLevel, msg string) {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical:
		logging.Error("[%s] %s", domain, msg)
	case vips.LogLevelWarning:
		logging.Warn("[%s] %s", domain, msg)
	default:
		logging.Debug("[%s] %s", domain, msg)
	}
}

// InitVips initializes libvips with the given worker thread count.
// It is safe to call more than once; only the first call has an effect.
func InitVips(concurrency int) error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	if concurrency < 1 {
		concurrency = 1
	}

	vips.LoggingSettings(forwardVipsLog, vipsThreshold(logging.GetLevel()))

	vips.Startup(&vips.Config{
		ConcurrencyLevel: concurrency,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized (version: %s, threads: %d)", vips.Version, concurrency)
	return nil
}

// ShutdownVips releases libvips. govips cannot be started again afterwards.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// vipsLoad describes one libvips decode.
type vipsLoad struct {
	path  string
	page  int  // -1 for formats without pages
	bound int  // 0 keeps the decoded size
	grow  bool // scale up images smaller than bound
}

// vipsDecodeError marks a failure inside libvips as opposed to an image
// that decoded into something unusable.
type vipsDecodeError struct{ err error }

func (e *vipsDecodeError) Error() string { return e.err.Error() }
func (e *vipsDecodeError) Unwrap() error { return e.err }

// loadWithVips decodes through libvips, shrinking to the bound inside
// libvips so the full resolution bitmap never reaches Go memory.
func loadWithVips(l vipsLoad) (image.Image, int, error) {
	if !IsVipsAvailable() {
		return nil, 0, &vipsDecodeError{fmt.Errorf("libvips not available")}
	}

	params := vips.NewImportParams()
	if l.page >= 0 {
		params.Page.Set(l.page)
	}

	ref, err := vips.LoadImageFromFile(l.path, params)
	if err != nil {
		return nil, 0, &vipsDecodeError{fmt.Errorf("vips failed to load image: %w", err)}
	}
	defer ref.Close()

	width, height := ref.Width(), ref.Height()
	bands := ref.Bands()

	logging.Debug("Vips loaded %s: %dx%d, %d bands", filepath.Base(l.path), width, height, bands)

	if l.bound > 0 && (width > l.bound || height > l.bound || l.grow) {
		w, h := fitSize(width, height, l.bound)
		if err := ref.Thumbnail(w, h, vips.InterestingNone); err != nil {
			return nil, bands, &vipsDecodeError{fmt.Errorf("vips resize failed: %w", err)}
		}
	}

	data, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, bands, &vipsDecodeError{fmt.Errorf("vips export failed: %w", err)}
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, bands, fmt.Errorf("failed to decode vips output: %w", err)
	}

	return img, bands, nil
}
