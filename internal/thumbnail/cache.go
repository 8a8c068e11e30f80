package thumbnail

import (
	"crypto/md5"
	"encoding/hex"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"thumbnailer/internal/filesystem"
	"thumbnailer/internal/logging"
	"thumbnailer/internal/metrics"
)

const upperhex = "0123456789ABCDEF"

// FileURL returns the percent-encoded file URL of an absolute path. Bytes
// outside the unreserved set, the sub-delimiters, ':', '@' and '/' are
// escaped.
func FileURL(abs string) string {
	var b strings.Builder
	b.Grow(len("file://") + len(abs))
	b.WriteString("file://")
	for i := 0; i < len(abs); i++ {
		c := abs[i]
		if keepInPath(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func keepInPath(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-._~!$&'()*+,;=:@/", c) >= 0
}

// CacheName returns the cache file name for a source: the hex MD5 of its
// file URL plus ".png".
func CacheName(abs string) string {
	sum := md5.Sum([]byte(FileURL(abs)))
	return hex.EncodeToString(sum[:]) + ".png"
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// Root returns the directory holding the size and fail subdirectories.
func (s *Service) Root() string {
	return s.root
}

func (s *Service) sizeDir(size SizeClass) string {
	return filepath.Join(s.root, size.Dir())
}

func (s *Service) failDir() string {
	return filepath.Join(s.root, FailDir)
}

// inCache reports whether abs sits directly inside one of the cache
// directories.
func (s *Service) inCache(abs string) bool {
	dir := filepath.Dir(abs)
	if dir == s.failDir() {
		return true
	}
	for _, size := range SizeClasses() {
		if dir == s.sizeDir(size) {
			return true
		}
	}
	return false
}

// ThumbnailFilePath returns the cached thumbnail for path when one exists and
// was made from the current version of the file. A stale entry is deleted
// and announced with a changed event carrying an empty path.
func (s *Service) ThumbnailFilePath(path string, size SizeClass) string {
	abs, err := absPath(path)
	if err != nil {
		return ""
	}
	if s.inCache(abs) {
		metrics.ThumbnailCacheLookups.WithLabelValues("passthrough").Inc()
		return abs
	}

	thumb := filepath.Join(s.sizeDir(size), CacheName(abs))
	if _, err := os.Stat(thumb); err != nil {
		metrics.ThumbnailCacheLookups.WithLabelValues("miss").Inc()
		return ""
	}

	info, err := filesystem.StatWithRetry(abs, s.retry)
	if err != nil {
		metrics.ThumbnailCacheLookups.WithLabelValues("miss").Inc()
		return ""
	}

	text, err := readPNGText(thumb)
	if err == nil {
		if mtime, perr := strconv.ParseInt(text[KeyMTime], 10, 64); perr == nil && mtime == info.ModTime().Unix() {
			metrics.ThumbnailCacheLookups.WithLabelValues("hit").Inc()
			return thumb
		}
	} else {
		logging.Debug("Unreadable thumbnail metadata in %s: %v", thumb, err)
	}

	metrics.ThumbnailCacheLookups.WithLabelValues("stale").Inc()
	if err := os.Remove(thumb); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to remove stale thumbnail %s: %v", thumb, err)
	}
	s.notifier.emit(Event{Kind: EventChanged, Path: abs})
	return ""
}

// writeThumbnail encodes img with its metadata and moves it into place with
// a rename so readers never observe a partial file.
func writeThumbnail(dest string, img image.Image, entries []textEntry) error {
	data, err := encodePNG(img, entries)
	if err != nil {
		return err
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".thumb-*.png")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
