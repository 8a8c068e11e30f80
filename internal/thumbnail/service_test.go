package thumbnail

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"thumbnailer/internal/render"
)

func TestCreateThumbnailImage(t *testing.T) {
	s := newTestService(t, nil)
	src := writePNGSource(t, t.TempDir(), "photo.png", 300, 150)

	thumb, err := s.CreateThumbnail(src, Normal)
	if err != nil {
		t.Fatalf("CreateThumbnail() error = %v", err)
	}
	if want := filepath.Join(s.Root(), "normal", CacheName(src)); thumb != want {
		t.Errorf("CreateThumbnail() = %q, want %q", thumb, want)
	}
	if s.ErrorString() != "" {
		t.Errorf("ErrorString() = %q, want empty", s.ErrorString())
	}

	img := decodePNGFile(t, thumb)
	if b := img.Bounds(); b.Dx() != 128 || b.Dy() != 64 {
		t.Errorf("thumbnail size = %dx%d, want 128x64", b.Dx(), b.Dy())
	}

	text, err := readPNGText(thumb)
	if err != nil {
		t.Fatalf("readPNGText() error = %v", err)
	}
	if text[KeyURL] != FileURL(src) {
		t.Errorf("%s = %q, want %q", KeyURL, text[KeyURL], FileURL(src))
	}
	if want := strconv.FormatInt(sourceTime.Unix(), 10); text[KeyMTime] != want {
		t.Errorf("%s = %q, want %q", KeyMTime, text[KeyMTime], want)
	}

	if got := s.ThumbnailFilePath(src, Normal); got != thumb {
		t.Errorf("ThumbnailFilePath() = %q, want %q", got, thumb)
	}
}

func TestCreateThumbnailEvents(t *testing.T) {
	s := newTestService(t, nil)
	src := writePNGSource(t, t.TempDir(), "photo.png", 40, 40)

	rec := &recorder{}
	s.Notifier().Subscribe(rec.record)

	thumb, err := s.CreateThumbnail(src, Small)
	if err != nil {
		t.Fatalf("CreateThumbnail() error = %v", err)
	}

	want := []Event{
		{Kind: EventCreated, Path: src, NewPath: thumb},
		{Kind: EventChanged, Path: src, NewPath: thumb},
	}
	if got := rec.all(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}
}

func TestCreateThumbnailIdempotentMetadata(t *testing.T) {
	s := newTestService(t, nil)
	src := writePNGSource(t, t.TempDir(), "photo.png", 64, 32)

	first, err := s.CreateThumbnail(src, Small)
	if err != nil {
		t.Fatalf("first CreateThumbnail() error = %v", err)
	}
	before, err := readPNGText(first)
	if err != nil {
		t.Fatalf("readPNGText() error = %v", err)
	}

	second, err := s.CreateThumbnail(src, Small)
	if err != nil {
		t.Fatalf("second CreateThumbnail() error = %v", err)
	}
	after, err := readPNGText(second)
	if err != nil {
		t.Fatalf("readPNGText() error = %v", err)
	}

	if first != second {
		t.Errorf("paths differ: %q vs %q", first, second)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("metadata differs: %v vs %v", before, after)
	}
}

func TestThumbnailFilePathStale(t *testing.T) {
	s := newTestService(t, nil)
	src := writePNGSource(t, t.TempDir(), "photo.png", 20, 20)

	thumb, err := s.CreateThumbnail(src, Large)
	if err != nil {
		t.Fatalf("CreateThumbnail() error = %v", err)
	}

	touched := sourceTime.Add(10 * time.Second)
	if err := os.Chtimes(src, touched, touched); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	rec := &recorder{}
	s.Notifier().Subscribe(rec.record)

	if got := s.ThumbnailFilePath(src, Large); got != "" {
		t.Errorf("ThumbnailFilePath() = %q, want empty", got)
	}
	if _, err := os.Stat(thumb); !os.IsNotExist(err) {
		t.Errorf("stale thumbnail still present, stat error = %v", err)
	}

	want := []Event{{Kind: EventChanged, Path: src}}
	if got := rec.all(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}
}

func TestThumbnailFilePathMissing(t *testing.T) {
	s := newTestService(t, nil)
	src := writePNGSource(t, t.TempDir(), "photo.png", 20, 20)

	if got := s.ThumbnailFilePath(src, Normal); got != "" {
		t.Errorf("ThumbnailFilePath() = %q, want empty", got)
	}
}

func TestThumbnailFilePathCorruptEntry(t *testing.T) {
	s := newTestService(t, nil)
	src := writePNGSource(t, t.TempDir(), "photo.png", 20, 20)

	thumb := filepath.Join(s.Root(), "small", CacheName(src))
	if err := os.MkdirAll(filepath.Dir(thumb), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(thumb, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := s.ThumbnailFilePath(src, Small); got != "" {
		t.Errorf("ThumbnailFilePath() = %q, want empty", got)
	}
	if _, err := os.Stat(thumb); !os.IsNotExist(err) {
		t.Errorf("corrupt entry still present, stat error = %v", err)
	}
}

func TestCachePathPassthrough(t *testing.T) {
	s := newTestService(t, nil)

	for _, dir := range []string{"small", "normal", "large", FailDir} {
		p := filepath.Join(s.Root(), dir, "0123.png")
		if got := s.ThumbnailFilePath(p, Normal); got != p {
			t.Errorf("ThumbnailFilePath(%q) = %q, want unchanged", p, got)
		}
		got, err := s.CreateThumbnail(p, Normal)
		if err != nil || got != p {
			t.Errorf("CreateThumbnail(%q) = %q, %v; want unchanged", p, got, err)
		}
	}
}

func TestCreateThumbnailOversized(t *testing.T) {
	s := newTestService(t, nil)
	src := writePNGSource(t, t.TempDir(), "photo.png", 50, 50)
	s.SetSizeLimit("image/png", 16)

	if s.HasThumbnail(src) {
		t.Fatal("HasThumbnail() = true for an oversized file")
	}

	rec := &recorder{}
	s.Notifier().Subscribe(rec.record)

	thumb, err := s.CreateThumbnail(src, Normal)
	if thumb != "" {
		t.Errorf("CreateThumbnail() = %q, want empty", thumb)
	}
	if !errors.Is(err, ErrNotSupported) {
		t.Errorf("error = %v, want ErrNotSupported", err)
	}
	if want := "thumbnail not supported for file: " + src; s.ErrorString() != want {
		t.Errorf("ErrorString() = %q, want %q", s.ErrorString(), want)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), FailDir, CacheName(src))); !os.IsNotExist(err) {
		t.Errorf("fail marker written for an ineligible file, stat error = %v", err)
	}
	if got := rec.all(); len(got) != 0 {
		t.Errorf("events = %+v, want none", got)
	}
}

func TestCreateThumbnailText(t *testing.T) {
	s := newTestService(t, nil)
	src := writeSource(t, t.TempDir(), "note.txt", []byte("abc"))

	thumb, err := s.CreateThumbnail(src, Small)
	if err != nil {
		t.Fatalf("CreateThumbnail() error = %v", err)
	}
	img := decodePNGFile(t, thumb)
	if b := img.Bounds(); b.Dx() != 45 || b.Dy() != 64 {
		t.Errorf("text thumbnail size = %dx%d, want 45x64", b.Dx(), b.Dy())
	}
}

func TestCreateThumbnailNoSupport(t *testing.T) {
	provider := &stubProvider{
		mimes: map[string]bool{"application/octet-stream": true},
		err:   errBoom,
	}
	s := newTestService(t, provider)
	src := writeSource(t, t.TempDir(), "blob.qqq", []byte{0x00, 0x9c, 0x13, 0x37, 0x00, 0x01, 0x42})

	rec := &recorder{}
	s.Notifier().Subscribe(rec.record)

	thumb, err := s.CreateThumbnail(src, Normal)
	if thumb != "" {
		t.Errorf("CreateThumbnail() = %q, want empty", thumb)
	}
	var toolErr *render.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %v, want *render.ToolError", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("error does not wrap the provider failure: %v", err)
	}
	if !strings.Contains(s.ErrorString(), "no thumbnail support for mime") {
		t.Errorf("ErrorString() = %q, want missing support message", s.ErrorString())
	}

	marker := filepath.Join(s.Root(), FailDir, CacheName(src))
	img := decodePNGFile(t, marker)
	if b := img.Bounds(); b.Dx() != 1 || b.Dy() != 1 {
		t.Errorf("fail marker size = %dx%d, want 1x1", b.Dx(), b.Dy())
	}
	text, err := readPNGText(marker)
	if err != nil {
		t.Fatalf("readPNGText() error = %v", err)
	}
	if text[KeyURL] != FileURL(src) {
		t.Errorf("fail marker %s = %q", KeyURL, text[KeyURL])
	}

	want := []Event{{Kind: EventFailed, Path: src}}
	if got := rec.all(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}
	if got := s.ThumbnailFilePath(src, Normal); got != "" {
		t.Errorf("ThumbnailFilePath() = %q, want empty after failure", got)
	}
}

func TestCreateThumbnailProvider(t *testing.T) {
	provider := &stubProvider{mimes: map[string]bool{"application/octet-stream": true}}
	s := newTestService(t, provider)
	src := writeSource(t, t.TempDir(), "blob.qqq", []byte{0x00, 0x9c, 0x13, 0x37, 0x00, 0x01, 0x42})

	thumb, err := s.CreateThumbnail(src, Small)
	if err != nil {
		t.Fatalf("CreateThumbnail() error = %v", err)
	}
	if b := decodePNGFile(t, thumb).Bounds(); b.Dx() != 8 || b.Dy() != 8 {
		t.Errorf("thumbnail size = %dx%d, want 8x8", b.Dx(), b.Dy())
	}
}

func TestCreateThumbnailErrorStringResets(t *testing.T) {
	s := newTestService(t, nil)
	dir := t.TempDir()
	good := writePNGSource(t, dir, "photo.png", 10, 10)

	if _, err := s.CreateThumbnail(filepath.Join(dir, "missing.png"), Small); err == nil {
		t.Fatal("CreateThumbnail() succeeded for a missing file")
	}
	if s.ErrorString() == "" {
		t.Fatal("ErrorString() empty after failure")
	}
	if _, err := s.CreateThumbnail(good, Small); err != nil {
		t.Fatalf("CreateThumbnail() error = %v", err)
	}
	if s.ErrorString() != "" {
		t.Errorf("ErrorString() = %q, want empty after success", s.ErrorString())
	}
}

func TestCreateThumbnailWriteFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	s := newTestService(t, nil)
	src := writePNGSource(t, t.TempDir(), "photo.png", 10, 10)

	if err := os.MkdirAll(s.Root(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(s.Root(), 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(s.Root(), 0o755) })

	_, err := s.CreateThumbnail(src, Small)
	var writeErr *render.WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("error = %v, want *render.WriteError", err)
	}
	if !strings.HasPrefix(s.ErrorString(), "can not save image to ") {
		t.Errorf("ErrorString() = %q", s.ErrorString())
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{Renderer: newGateRenderer()}); err == nil {
		t.Error("New() without root succeeded")
	}
	if _, err := New(Options{Root: t.TempDir()}); err == nil {
		t.Error("New() without renderer succeeded")
	}
}
