package thumbnail

import (
	"math"
	"os"
	"strings"
	"sync"

	"thumbnailer/internal/filesystem"
	"thumbnailer/internal/logging"
	"thumbnailer/internal/mediatypes"
)

// Unlimited disables the size check for a mime.
const Unlimited int64 = math.MaxInt64

// Preview toggle keys understood by Settings.
const (
	PreviewImage    = "preview_image"
	PreviewVideo    = "preview_video"
	PreviewText     = "preview_text"
	PreviewDocument = "preview_document"
)

// Settings supplies the user's preview toggles.
type Settings interface {
	PreviewEnabled(key string) bool
}

// AllPreviews enables every preview family.
type AllPreviews struct{}

func (AllPreviews) PreviewEnabled(string) bool { return true }

// CopyTracker reports files that are still being copied. Their content is
// incomplete, so videos among them are skipped.
type CopyTracker interface {
	IsCopying(path string) bool
}

// MountChecker reports paths on network or virtual mounts.
type MountChecker interface {
	IsRemote(path string) bool
}

func defaultSizeLimits() map[string]int64 {
	const mib = 1024 * 1024
	return map[string]int64{
		mediatypes.TextPlain:     1 * mib,
		mediatypes.PDF:           Unlimited,
		mediatypes.RealMedia:     Unlimited,
		mediatypes.ASF:           Unlimited,
		mediatypes.MXF:           Unlimited,
		"image/ief":              80 * mib,
		"image/tiff":             80 * mib,
		"image/x-tiff-multipage": 80 * mib,
		"image/x-adobe-dng":      80 * mib,
		"image/jpeg":             30 * mib,
		"image/png":              30 * mib,
		"image/pipeg":            30 * mib,
	}
}

// SizeLimits maps mime names to the largest source size, in bytes, that is
// still thumbnailed. Unmapped mimes use the default limit.
type SizeLimits struct {
	mu     sync.RWMutex
	limits map[string]int64
	def    int64
}

// NewSizeLimits returns the built-in table with the given default.
func NewSizeLimits(def int64) *SizeLimits {
	return &SizeLimits{limits: defaultSizeLimits(), def: def}
}

// Get returns the limit for mime.
func (l *SizeLimits) Get(mime string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n, ok := l.limits[mediatypes.Normalize(mime)]; ok {
		return n
	}
	return l.def
}

// Set overrides the limit for mime.
func (l *SizeLimits) Set(mime string, n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[mediatypes.Normalize(mime)] = n
}

// Default returns the limit for unmapped mimes.
func (l *SizeLimits) Default() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.def
}

// SetDefault changes the limit for unmapped mimes.
func (l *SizeLimits) SetDefault(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.def = n
}

// Snapshot returns a copy of the per-mime table.
func (l *SizeLimits) Snapshot() map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int64, len(l.limits))
	for k, v := range l.limits {
		out[k] = v
	}
	return out
}

// mimeMemo remembers mimes already proven capable. Entries are never removed.
type mimeMemo struct {
	m sync.Map
}

func (c *mimeMemo) has(mime string) bool {
	_, ok := c.m.Load(mime)
	return ok
}

func (c *mimeMemo) add(mime string) {
	c.m.Store(mime, struct{}{})
}

// SizeLimit returns the source size limit for mime.
func (s *Service) SizeLimit(mime string) int64 {
	return s.limits.Get(mime)
}

// SetSizeLimit overrides the source size limit for mime.
func (s *Service) SetSizeLimit(mime string, n int64) {
	s.limits.Set(mime, n)
}

// DefaultSizeLimit returns the limit for mimes without an entry.
func (s *Service) DefaultSizeLimit() int64 {
	return s.limits.Default()
}

// SetDefaultSizeLimit changes the limit for mimes without an entry.
func (s *Service) SetDefaultSizeLimit(n int64) {
	s.limits.SetDefault(n)
}

// SizeLimits returns a copy of the per-mime limit table.
func (s *Service) SizeLimits() map[string]int64 {
	return s.limits.Snapshot()
}

// HasThumbnail reports whether a thumbnail can be produced for the file at
// path under the current settings and limits.
func (s *Service) HasThumbnail(path string) bool {
	return s.Eligible(path) == nil
}

// Eligible is HasThumbnail with the reason. It returns nil, ErrSourceBusy
// for a video that is still being copied, ErrPreviewDisabled when the
// preview toggle for its kind is off, or ErrNotSupported.
func (s *Service) Eligible(path string) error {
	abs, err := absPath(path)
	if err != nil {
		return ErrNotSupported
	}

	info, err := filesystem.StatWithRetry(abs, s.retry)
	if err != nil || !info.Mode().IsRegular() || info.Size() <= 0 {
		return ErrNotSupported
	}
	f, err := os.Open(abs)
	if err != nil {
		return ErrNotSupported
	}
	f.Close()

	m, err := mediatypes.Detect(abs)
	if err != nil {
		logging.Debug("Mime detection failed for %s: %v", abs, err)
		return ErrNotSupported
	}

	if strings.HasPrefix(m.Name, "video/") {
		if s.copying != nil && s.copying.IsCopying(abs) {
			return ErrSourceBusy
		}
		if s.mounts != nil && s.mounts.IsRemote(abs) {
			return ErrNotSupported
		}
	} else if info.Size() > s.limits.Get(m.Name) {
		return ErrNotSupported
	}

	return s.mimeEligible(m)
}

// HasThumbnailMime reports whether files of the given mime can be
// thumbnailed under the current settings.
func (s *Service) HasThumbnailMime(mime string) bool {
	return s.mimeEligible(mediatypes.Lookup(mime)) == nil
}

func (s *Service) mimeEligible(m mediatypes.MIME) error {
	name := m.Name

	if mediatypes.IsImage(name) && !s.settings.PreviewEnabled(PreviewImage) {
		return ErrPreviewDisabled
	}
	if mediatypes.IsVideo(name, s.extraVideo) && !s.settings.PreviewEnabled(PreviewVideo) {
		return ErrPreviewDisabled
	}
	if name == mediatypes.TextPlain && !s.settings.PreviewEnabled(PreviewText) {
		return ErrPreviewDisabled
	}
	if mediatypes.IsDocument(m) && !s.settings.PreviewEnabled(PreviewDocument) {
		return ErrPreviewDisabled
	}

	if s.memo.has(name) {
		return nil
	}

	if mediatypes.IsImage(name) || strings.HasPrefix(name, "video/") {
		s.memo.add(name)
		return nil
	}

	switch {
	case name == mediatypes.TextPlain,
		m.Is(mediatypes.PDF),
		name == mediatypes.RealMedia,
		name == mediatypes.ASF,
		name == mediatypes.MXF:
		s.memo.add(name)
		return nil
	}

	if s.provider != nil && s.provider.Supports(name) {
		return nil
	}
	return ErrNotSupported
}
