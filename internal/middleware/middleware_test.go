package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"thumbnailer/internal/metrics"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	n, err := rw.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v", n, err)
	}

	if rw.statusCode != http.StatusAccepted || rec.Code != http.StatusAccepted {
		t.Errorf("status = %d / %d, want 202", rw.statusCode, rec.Code)
	}
	if rw.bytesWritten != 5 {
		t.Errorf("bytesWritten = %d, want 5", rw.bytesWritten)
	}
	if newResponseWriter(rw) != rw {
		t.Error("newResponseWriter() wrapped an existing responseWriter")
	}
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name        string
		config      LoggingConfig
		path        string
		contentType string
		wantLogged  bool
	}{
		{"json response", DefaultLoggingConfig(), "/api/limits", "application/json", true},
		{"image hidden", DefaultLoggingConfig(), "/api/thumbnail/small/a.png", "image/png", false},
		{"image shown", LoggingConfig{LogImages: true, LogHealthChecks: true}, "/api/thumbnail/small/a.png", "image/png", true},
		{"health shown", DefaultLoggingConfig(), "/healthz", "application/json", true},
		{"health hidden", LoggingConfig{}, "/healthz", "application/json", false},
		{"skip path", LoggingConfig{SkipPaths: []string{"/api/queue"}, LogHealthChecks: true}, "/api/queue/x", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			handler := Logger(tt.config)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.Write([]byte("ok"))
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path+"?x=1", nil)
			req.Header.Set("User-Agent", "test agent")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			logged := strings.Contains(buf.String(), tt.path)
			if logged != tt.wantLogged {
				t.Errorf("logged = %v, want %v (output %q)", logged, tt.wantLogged, buf.String())
			}
			if logged && !strings.Contains(buf.String(), ` x=1 200 2 `) {
				t.Errorf("unexpected W3C line %q", buf.String())
			}
			if logged && !strings.Contains(buf.String(), `"test agent"`) {
				t.Errorf("user agent not quoted in %q", buf.String())
			}
		})
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := map[string]string{
		"plain":            "plain",
		"a\nb\rc":          "a b c",
		"nul\x00byte":      "nulbyte",
		"esc\x1b[31mred":   "esc[31mred",
		"tab\tkept":        "tab\tkept",
		"bell\x07stripped": "bellstripped",
	}
	for in, want := range tests {
		if got := sanitizeLogField(in); got != want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := getClientIP(req); got != "10.0.0.1" {
		t.Errorf("RemoteAddr: got %q", got)
	}

	req.Header.Set("X-Real-IP", "10.0.0.2")
	if got := getClientIP(req); got != "10.0.0.2" {
		t.Errorf("X-Real-IP: got %q", got)
	}

	req.Header.Set("X-Forwarded-For", " 10.0.0.3 , 10.0.0.4")
	if got := getClientIP(req); got != "10.0.0.3" {
		t.Errorf("X-Forwarded-For: got %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/limits":                    "/api/limits",
		"/api/thumbnail/small":           "/api/thumbnail/small",
		"/api/thumbnail/small/a/b/c.png": "/api/thumbnail/small/{path}",
		"/api/queue/large/deep/file.mkv": "/api/queue/large/{path}",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/thumbnail/{size}/{path:.*}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodGet)

	const tpl = "/api/thumbnail/{size}/{path:.*}"
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, tpl, "202")
	before := testutil.ToFloat64(counter)

	for _, p := range []string{"/api/thumbnail/small/a.png", "/api/thumbnail/large/b/c.png"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("requests counted under template = %v, want 2", got)
	}
}

func TestMetricsSkipPaths(t *testing.T) {
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Millisecond)
	}))

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")
	before := testutil.ToFloat64(counter)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := testutil.ToFloat64(counter); got != before {
		t.Errorf("health check recorded: %v -> %v", before, got)
	}
}
