package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"thumbnailer/internal/filesystem"
	"thumbnailer/internal/logging"
	"thumbnailer/internal/mediatypes"
	"thumbnailer/internal/metrics"
	"thumbnailer/internal/render"
)

var (
	// ErrNotSupported is returned for files that are not eligible for a
	// thumbnail. No fail marker is written for them.
	ErrNotSupported = errors.New("thumbnail not supported for file")

	// ErrSourceBusy marks a video that is still being written. Retrying
	// later may succeed.
	ErrSourceBusy = fmt.Errorf("%w: source is still being copied", ErrNotSupported)

	// ErrPreviewDisabled marks a file whose preview kind is switched off.
	ErrPreviewDisabled = fmt.Errorf("%w: preview disabled", ErrNotSupported)

	// ErrStopped is returned by Enqueue after Shutdown.
	ErrStopped = errors.New("thumbnail queue stopped")

	errNoImage = errors.New("renderer returned no image")
)

// DefaultQueueSize is the queue capacity used when Options.QueueSize is not
// positive.
const DefaultQueueSize = 10000

// Renderer turns a source file into an image. *render.Dispatcher satisfies it.
type Renderer interface {
	Render(ctx context.Context, path string, m mediatypes.MIME, bound int) render.Result
}

// Options configures a Service.
type Options struct {
	// Root is the cache root, typically <CACHE_DIR>/thumbnails.
	Root string

	Renderer Renderer
	// Provider answers capability questions for mimes without a built-in
	// renderer. It is usually the same provider the renderer falls back to.
	Provider render.Provider

	Settings        Settings
	Copying         CopyTracker
	Mounts          MountChecker
	ExtraVideoMimes []string

	DefaultSizeLimit int64
	QueueSize        int

	// Throttle, when set, may hold the worker back before each render.
	Throttle Throttle
}

// Throttle delays queued work, e.g. under memory pressure. WaitIfPaused
// returns false if done closes first.
type Throttle interface {
	WaitIfPaused(done <-chan struct{}) bool
}

// Service generates and caches thumbnails. Synchronous calls may come from
// any goroutine; queued requests are rendered by a single worker.
type Service struct {
	root       string
	renderer   Renderer
	provider   render.Provider
	settings   Settings
	copying    CopyTracker
	mounts     MountChecker
	extraVideo []string
	retry      filesystem.RetryConfig
	throttle   Throttle

	limits   *SizeLimits
	memo     mimeMemo
	notifier Notifier

	errMu     sync.Mutex
	lastError string

	queue      chan Request
	startOnce  sync.Once
	stopOnce   sync.Once
	stop       chan struct{}
	workerDone chan struct{}
	stopped    atomic.Bool

	// discardMu guards both the discard set and the queued or rendering
	// requests with their callbacks.
	discardMu sync.Mutex
	discarded map[discardKey]struct{}
	pending   map[discardKey][]func(string)
	inflight  discardKey
}

// New creates a Service. The worker starts with the first Enqueue.
func New(opts Options) (*Service, error) {
	if opts.Root == "" {
		return nil, errors.New("thumbnail cache root is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("thumbnail renderer is required")
	}
	root, err := absPath(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	settings := opts.Settings
	if settings == nil {
		settings = AllPreviews{}
	}
	def := opts.DefaultSizeLimit
	if def <= 0 {
		def = 20 * 1024 * 1024
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	return &Service{
		root:       root,
		renderer:   opts.Renderer,
		provider:   opts.Provider,
		settings:   settings,
		copying:    opts.Copying,
		mounts:     opts.Mounts,
		extraVideo: opts.ExtraVideoMimes,
		retry:      filesystem.DefaultRetryConfig(),
		throttle:   opts.Throttle,
		limits:     NewSizeLimits(def),
		queue:      make(chan Request, size),
		stop:       make(chan struct{}),
		workerDone: make(chan struct{}),
		discarded:  make(map[discardKey]struct{}),
		pending:    make(map[discardKey][]func(string)),
	}, nil
}

// Notifier returns the event fan-out for this service.
func (s *Service) Notifier() *Notifier {
	return &s.notifier
}

// ErrorString returns the message of the most recent CreateThumbnail
// failure, or "" when the last call succeeded.
func (s *Service) ErrorString() string {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastError
}

func (s *Service) setError(msg string) {
	s.errMu.Lock()
	s.lastError = msg
	s.errMu.Unlock()
}

// CreateThumbnail renders a thumbnail for path and stores it in the cache.
// It returns the thumbnail path, or "" with the failure reason.
func (s *Service) CreateThumbnail(path string, size SizeClass) (string, error) {
	return s.CreateThumbnailContext(context.Background(), path, size)
}

// CreateThumbnailContext is CreateThumbnail with a context that bounds
// external helper processes.
func (s *Service) CreateThumbnailContext(ctx context.Context, path string, size SizeClass) (string, error) {
	s.setError("")

	if !size.Valid() {
		err := fmt.Errorf("invalid thumbnail size %d", int(size))
		s.setError(err.Error())
		return "", err
	}

	abs, err := absPath(path)
	if err != nil {
		s.setError(err.Error())
		return "", err
	}
	if s.inCache(abs) {
		return abs, nil
	}

	if reason := s.Eligible(abs); reason != nil {
		metrics.ThumbnailIneligibleTotal.Inc()
		err := fmt.Errorf("%w: %s", reason, abs)
		s.setError(err.Error())
		return "", err
	}

	info, err := filesystem.StatWithRetry(abs, s.retry)
	if err != nil {
		s.setError(err.Error())
		return "", err
	}
	m, err := mediatypes.Detect(abs)
	if err != nil {
		s.setError(err.Error())
		return "", err
	}

	kind := m.Kind()
	start := time.Now()
	res := s.renderer.Render(ctx, abs, m, size.Bound())
	thumb, err := s.finalize(abs, info.ModTime(), size, res)

	label := render.Label(kind)
	metrics.ThumbnailGenerationDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(label, "error").Inc()
		s.setError(err.Error())
		return "", err
	}
	metrics.ThumbnailGenerationsTotal.WithLabelValues(label, "success").Inc()
	return thumb, nil
}

// failMarker is stored in the fail directory when rendering fails.
func failMarker() image.Image {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.SetGray(0, 0, color.Gray{Y: 0x80})
	return img
}

// finalize writes the rendered image, or a fail marker, tagged with the
// source URL and modification time, then emits the matching events.
func (s *Service) finalize(abs string, mtime time.Time, size SizeClass, res render.Result) (string, error) {
	name := CacheName(abs)
	img, renderErr := res.Image, res.Err
	if renderErr == nil && img == nil {
		renderErr = errNoImage
	}

	dest := filepath.Join(s.sizeDir(size), name)
	if renderErr != nil {
		img = failMarker()
		dest = filepath.Join(s.failDir(), name)
	}

	entries := []textEntry{
		{KeyURL, FileURL(abs)},
		{KeyMTime, strconv.FormatInt(mtime.Unix(), 10)},
	}
	if err := writeThumbnail(dest, img, entries); err != nil {
		renderErr = &render.WriteError{Path: dest, Err: err}
	}

	if renderErr != nil {
		logging.Warn("Thumbnail generation failed for %s: %v", abs, renderErr)
		s.notifier.emit(Event{Kind: EventFailed, Path: abs})
		return "", renderErr
	}

	logging.Debug("Thumbnail created for %s at %s", abs, dest)
	s.notifier.emit(Event{Kind: EventCreated, Path: abs, NewPath: dest})
	s.notifier.emit(Event{Kind: EventChanged, Path: abs, NewPath: dest})
	return dest, nil
}
