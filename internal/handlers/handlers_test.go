package handlers

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"thumbnailer/internal/database"
	"thumbnailer/internal/mediatypes"
	"thumbnailer/internal/render"
	"thumbnailer/internal/startup"
	"thumbnailer/internal/thumbnail"
)

func setupHandlers(t *testing.T) (h *Handlers, mediaDir string) {
	t.Helper()
	return setupHandlersWith(t, nil)
}

// setupHandlersWith lets a test adjust the service options before the
// service is built.
func setupHandlersWith(t *testing.T, configure func(*thumbnail.Options)) (h *Handlers, mediaDir string) {
	t.Helper()

	mediaDir = t.TempDir()
	ctx := context.Background()

	db, err := database.New(ctx, filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	opts := thumbnail.Options{
		Root:      filepath.Join(t.TempDir(), "thumbnails"),
		Renderer:  render.NewDispatcher(&render.Fallback{Tools: render.NewToolRegistry(nil)}),
		Settings:  db,
		QueueSize: 8,
	}
	if configure != nil {
		configure(&opts)
	}
	svc, err := thumbnail.New(opts)
	if err != nil {
		t.Fatalf("thumbnail.New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})

	return New(svc, db, &startup.Config{MediaDir: mediaDir}), mediaDir
}

func do(handler http.HandlerFunc, method, target string, vars map[string]string, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func writeImage(t *testing.T, dir, name string, w, h int) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
}

func TestThumbnailLifecycle(t *testing.T) {
	h, media := setupHandlers(t)
	writeImage(t, media, "photo.png", 200, 100)
	vars := map[string]string{"size": "normal", "path": "photo.png"}

	rec := do(h.GetThumbnail, http.MethodGet, "/api/thumbnail/normal/photo.png", vars, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("GET uncached: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var status map[string]string
	decodeJSON(t, rec, &status)
	if status["status"] != "queued" {
		t.Errorf("GET uncached: body = %v", status)
	}

	rec = do(h.CreateThumbnail, http.MethodPost, "/api/thumbnail/normal/photo.png", vars, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("POST: Content-Type = %q", ct)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("POST: body is not a png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 128 || b.Dy() != 64 {
		t.Errorf("POST: thumbnail size = %dx%d, want 128x64", b.Dx(), b.Dy())
	}

	rec = do(h.GetThumbnail, http.MethodGet, "/api/thumbnail/normal/photo.png", vars, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("GET cached: status = %d, Content-Type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestThumbnailRequestErrors(t *testing.T) {
	h, media := setupHandlers(t)
	if err := os.Mkdir(filepath.Join(media, "dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		vars map[string]string
		want int
	}{
		{"bad size", map[string]string{"size": "huge", "path": "a.png"}, http.StatusBadRequest},
		{"empty path", map[string]string{"size": "small", "path": ""}, http.StatusBadRequest},
		{"traversal", map[string]string{"size": "small", "path": "../../etc/passwd"}, http.StatusBadRequest},
		{"missing", map[string]string{"size": "small", "path": "nope.png"}, http.StatusNotFound},
		{"directory", map[string]string{"size": "small", "path": "dir"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, hf := range []http.HandlerFunc{h.GetThumbnail, h.CreateThumbnail} {
				rec := do(hf, http.MethodGet, "/api/thumbnail", tt.vars, "")
				if rec.Code != tt.want {
					t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
				}
			}
		})
	}
}

func TestThumbnailUnsupported(t *testing.T) {
	h, media := setupHandlers(t)
	if err := os.WriteFile(filepath.Join(media, "blob.qqq"), []byte{0, 0x9c, 0x13, 0x37, 0, 1}, 0o644); err != nil {
		t.Fatal(err)
	}
	vars := map[string]string{"size": "small", "path": "blob.qqq"}

	if rec := do(h.GetThumbnail, http.MethodGet, "/", vars, ""); rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("GET: status = %d, want 415", rec.Code)
	}

	rec := do(h.CreateThumbnail, http.MethodPost, "/", vars, "")
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("POST: status = %d, want 415", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if !strings.HasPrefix(body["error"], "thumbnail not supported for file: ") {
		t.Errorf("POST: error = %q", body["error"])
	}
}

var mp4Header = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2\x00\x00\x00\x08free")

type copyingAll struct{}

func (copyingAll) IsCopying(string) bool { return true }

func TestThumbnailSourceBusy(t *testing.T) {
	h, media := setupHandlersWith(t, func(o *thumbnail.Options) { o.Copying = copyingAll{} })
	if err := os.WriteFile(filepath.Join(media, "clip.mp4"), mp4Header, 0o644); err != nil {
		t.Fatal(err)
	}
	vars := map[string]string{"size": "normal", "path": "clip.mp4"}

	for name, hf := range map[string]http.HandlerFunc{"GET": h.GetThumbnail, "POST": h.CreateThumbnail} {
		rec := do(hf, http.MethodGet, "/", vars, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503 (body %s)", name, rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("Retry-After"); got == "" {
			t.Errorf("%s: missing Retry-After", name)
		}
	}
	if got := h.svc.GetStats().QueueDepth; got != 0 {
		t.Errorf("QueueDepth = %d, want 0", got)
	}
}

func TestThumbnailPreviewDisabled(t *testing.T) {
	h, media := setupHandlers(t)
	writeImage(t, media, "photo.png", 20, 20)
	if err := h.db.SetPreview(context.Background(), thumbnail.PreviewImage, false); err != nil {
		t.Fatal(err)
	}
	vars := map[string]string{"size": "small", "path": "photo.png"}

	for name, hf := range map[string]http.HandlerFunc{"GET": h.GetThumbnail, "POST": h.CreateThumbnail} {
		rec := do(hf, http.MethodGet, "/", vars, "")
		if rec.Code != http.StatusConflict {
			t.Errorf("%s: status = %d, want 409 (body %s)", name, rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("Retry-After"); got != "" {
			t.Errorf("%s: Retry-After = %q, want none", name, got)
		}
	}
}

// heldRenderer blocks every render until release is closed.
type heldRenderer struct {
	release chan struct{}
	started chan string
}

func (r *heldRenderer) Render(_ context.Context, path string, _ mediatypes.MIME, _ int) render.Result {
	r.started <- path
	<-r.release
	return render.Result{Image: image.NewGray(image.Rect(0, 0, 8, 8))}
}

func TestThumbnailDuplicateRequests(t *testing.T) {
	held := &heldRenderer{release: make(chan struct{}), started: make(chan string, 8)}
	h, media := setupHandlersWith(t, func(o *thumbnail.Options) { o.Renderer = held })
	writeImage(t, media, "busy.png", 20, 20)
	writeImage(t, media, "photo.png", 20, 20)
	t.Cleanup(func() { close(held.release) })

	// Keep the worker busy so the photo requests stay queued.
	busy := map[string]string{"size": "normal", "path": "busy.png"}
	if rec := do(h.GetThumbnail, http.MethodGet, "/", busy, ""); rec.Code != http.StatusAccepted {
		t.Fatalf("GET busy.png: status = %d", rec.Code)
	}
	select {
	case <-held.started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the first render")
	}

	vars := map[string]string{"size": "normal", "path": "photo.png"}
	for i := 0; i < 5; i++ {
		rec := do(h.GetThumbnail, http.MethodGet, "/", vars, "")
		if rec.Code != http.StatusAccepted {
			t.Fatalf("GET %d: status = %d, want 202", i, rec.Code)
		}
	}
	if got := h.svc.GetStats().QueueDepth; got != 1 {
		t.Errorf("QueueDepth = %d, want 1", got)
	}
}

func TestCancelThumbnail(t *testing.T) {
	h, _ := setupHandlers(t)

	rec := do(h.CancelThumbnail, http.MethodDelete, "/", map[string]string{"size": "large", "path": "later.png"}, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := h.svc.GetStats().PendingCancels; got != 1 {
		t.Errorf("PendingCancels = %d, want 1", got)
	}

	rec = do(h.CancelThumbnail, http.MethodDelete, "/", map[string]string{"size": "large", "path": "../x"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("traversal: status = %d, want 400", rec.Code)
	}
}

func TestLimits(t *testing.T) {
	h, _ := setupHandlers(t)

	rec := do(h.GetLimits, http.MethodGet, "/api/limits", nil, "")
	var limits LimitsResponse
	decodeJSON(t, rec, &limits)
	if limits.Default != 20<<20 {
		t.Errorf("default = %d, want %d", limits.Default, 20<<20)
	}
	if limits.Limits["text/plain"] != 1<<20 {
		t.Errorf("text/plain = %d, want %d", limits.Limits["text/plain"], 1<<20)
	}

	updates := []struct {
		body string
		want int
	}{
		{`{"mime":"Image/PNG","bytes":10}`, http.StatusOK},
		{`{"mime":"text/plain","size":"2MiB"}`, http.StatusOK},
		{`{"default":5}`, http.StatusOK},
		{`{}`, http.StatusBadRequest},
		{`{"mime":"image/gif","bytes":0}`, http.StatusBadRequest},
		{`{"mime":"image/gif","size":"lots"}`, http.StatusBadRequest},
		{`{"default":-1}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, u := range updates {
		rec := do(h.UpdateLimits, http.MethodPut, "/api/limits", nil, u.body)
		if rec.Code != u.want {
			t.Errorf("PUT %s: status = %d, want %d (body %s)", u.body, rec.Code, u.want, rec.Body.String())
		}
	}

	if got := h.svc.SizeLimit("image/png"); got != 10 {
		t.Errorf("SizeLimit(image/png) = %d, want 10", got)
	}
	if got := h.svc.SizeLimit("text/plain"); got != 2<<20 {
		t.Errorf("SizeLimit(text/plain) = %d, want %d", got, 2<<20)
	}
	if got := h.svc.DefaultSizeLimit(); got != 5 {
		t.Errorf("DefaultSizeLimit() = %d, want 5", got)
	}

	stored, err := h.db.SizeLimits(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stored.Default != 5 || stored.Mimes["image/png"] != 10 || stored.Mimes["text/plain"] != 2<<20 {
		t.Errorf("stored overrides = %+v", stored)
	}
}

func TestSettings(t *testing.T) {
	h, _ := setupHandlers(t)

	rec := do(h.GetSettings, http.MethodGet, "/api/settings", nil, "")
	var prefs map[string]bool
	decodeJSON(t, rec, &prefs)
	if len(prefs) != len(database.PreviewKeys) {
		t.Errorf("settings = %v", prefs)
	}

	rec = do(h.UpdateSettings, http.MethodPut, "/api/settings", nil, `{"preview_image":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT: status = %d, body %s", rec.Code, rec.Body.String())
	}
	decodeJSON(t, rec, &prefs)
	if prefs[thumbnail.PreviewImage] {
		t.Error("preview_image still enabled in response")
	}
	if h.svc.HasThumbnailMime("image/png") {
		t.Error("HasThumbnailMime(image/png) = true after disabling image previews")
	}

	for _, body := range []string{`{"preview_audio":true}`, `[1,2]`} {
		if rec := do(h.UpdateSettings, http.MethodPut, "/api/settings", nil, body); rec.Code != http.StatusBadRequest {
			t.Errorf("PUT %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	h, _ := setupHandlers(t)

	rec := do(h.HealthCheck, http.MethodGet, "/health", nil, "")
	var health HealthResponse
	decodeJSON(t, rec, &health)
	if rec.Code != http.StatusServiceUnavailable || health.Status != statusStarting {
		t.Errorf("before ready: %d %q", rec.Code, health.Status)
	}
	if rec := do(h.ReadinessCheck, http.MethodGet, "/readyz", nil, ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before ready: %d", rec.Code)
	}

	h.SetReady(true)

	rec = do(h.HealthCheck, http.MethodGet, "/health", nil, "")
	decodeJSON(t, rec, &health)
	if rec.Code != http.StatusOK || health.Status != statusHealthy || !health.Ready {
		t.Errorf("after ready: %d %+v", rec.Code, health)
	}
	if health.Version != startup.Version || health.NumCPU == 0 {
		t.Errorf("health details = %+v", health)
	}
	if rec := do(h.ReadinessCheck, http.MethodGet, "/readyz", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("readyz after ready: %d", rec.Code)
	}

	if rec := do(h.LivenessCheck, http.MethodGet, "/livez", nil, ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "alive") {
		t.Errorf("livez GET: %d %q", rec.Code, rec.Body.String())
	}
	if rec := do(h.LivenessCheck, http.MethodHead, "/livez", nil, ""); rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("livez HEAD: %d %q", rec.Code, rec.Body.String())
	}
}

func TestGetVersion(t *testing.T) {
	h, _ := setupHandlers(t)

	rec := do(h.GetVersion, http.MethodGet, "/version", nil, "")
	var info startup.BuildInfo
	decodeJSON(t, rec, &info)
	if info.Version != startup.Version || info.GoVersion == "" {
		t.Errorf("version = %+v", info)
	}
	if rec.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func TestIsSubPath(t *testing.T) {
	tests := []struct {
		parent, child string
		want          bool
	}{
		{"/media", "/media", true},
		{"/media", "/media/a/b.png", true},
		{"/media", "/media2/a.png", false},
		{"/media", "/", false},
		{"/media", "/media/..hidden", true},
	}
	for _, tt := range tests {
		if got := isSubPath(tt.parent, tt.child); got != tt.want {
			t.Errorf("isSubPath(%q, %q) = %v, want %v", tt.parent, tt.child, got, tt.want)
		}
	}
}
