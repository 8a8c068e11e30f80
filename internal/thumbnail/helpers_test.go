package thumbnail

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"thumbnailer/internal/mediatypes"
	"thumbnailer/internal/render"
)

var sourceTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type previewSettings map[string]bool

func (p previewSettings) PreviewEnabled(key string) bool {
	enabled, ok := p[key]
	return !ok || enabled
}

type pathSet map[string]bool

func (p pathSet) IsCopying(path string) bool { return p[path] }
func (p pathSet) IsRemote(path string) bool  { return p[path] }

type stubProvider struct {
	mimes map[string]bool
	err   error
}

func (p *stubProvider) Supports(mime string) bool { return p.mimes[mime] }

func (p *stubProvider) Thumbnail(context.Context, string, int) (image.Image, error) {
	if p.err != nil {
		return nil, p.err
	}
	return image.NewGray(image.Rect(0, 0, 8, 8)), nil
}

// recorder collects events in emission order.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// newTestService builds a service over a temporary cache root using the
// built-in renderers and the given provider.
func newTestService(t *testing.T, provider render.Provider) *Service {
	t.Helper()
	fallback := &render.Fallback{Provider: provider, Tools: render.NewToolRegistry(nil)}
	return newServiceWith(t, render.NewDispatcher(fallback), provider)
}

func newServiceWith(t *testing.T, r Renderer, provider render.Provider) *Service {
	t.Helper()
	s, err := New(Options{
		Root:      filepath.Join(t.TempDir(), "thumbnails"),
		Renderer:  r,
		Provider:  provider,
		QueueSize: 16,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

// writeSource writes data to dir/name and pins its modification time.
func writeSource(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	if err := os.Chtimes(path, sourceTime, sourceTime); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
	return path
}

func writePNGSource(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 200, G: 40, B: 40, A: 255}}, image.Point{}, draw.Src)

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		t.Fatalf("failed to encode %s: %v", name, err)
	}
	f.Close()
	if err := os.Chtimes(path, sourceTime, sourceTime); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
	return path
}

func decodePNGFile(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("failed to decode %s: %v", path, err)
	}
	return img
}

// gateRenderer blocks every render until gate is closed and reports the
// paths it starts on.
type gateRenderer struct {
	gate    chan struct{}
	started chan string
}

func newGateRenderer() *gateRenderer {
	return &gateRenderer{gate: make(chan struct{}), started: make(chan string, 16)}
}

func (g *gateRenderer) Render(_ context.Context, path string, _ mediatypes.MIME, _ int) render.Result {
	g.started <- path
	<-g.gate
	return render.Result{Image: image.NewGray(image.Rect(0, 0, 4, 4))}
}

var errBoom = errors.New("boom")
