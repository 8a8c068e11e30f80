package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	SkipPaths       []string
	LogImages       bool
	LogHealthChecks bool
}

// DefaultLoggingConfig logs everything except successful image responses.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{},
		LogImages:       false,
		LogHealthChecks: true,
	}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// sanitizeLogField removes control characters that could be used for log
// injection. Newlines become spaces; NUL, ESC and other control bytes except
// tab are dropped.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r < 0x20 && r != '\t':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Logger writes one W3C Extended Log Format line per request:
// date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes
// time-taken cs(User-Agent) cs(Referer)
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPath(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			if !config.LogImages && isImageResponse(wrapped) {
				return
			}
			log.Println(formatW3C(time.Now().UTC(), r, wrapped, time.Since(start)))
		})
	}
}

func formatW3C(now time.Time, r *http.Request, rw *responseWriter, duration time.Duration) string {
	orDash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}

	userAgent := sanitizeLogField(r.Header.Get("User-Agent"))
	if userAgent != "" {
		userAgent = escapeW3CField(userAgent)
	}

	return fmt.Sprintf("%s %s %s %s %s %s %d %d %d %s %s",
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		sanitizeLogField(getClientIP(r)),
		sanitizeLogField(r.Method),
		sanitizeLogField(r.URL.Path),
		orDash(sanitizeLogField(r.URL.RawQuery)),
		rw.statusCode,
		rw.bytesWritten,
		duration.Milliseconds(),
		orDash(userAgent),
		orDash(sanitizeLogField(r.Header.Get("Referer"))),
	)
}

func skipPath(path string, config LoggingConfig) bool {
	for _, skip := range config.SkipPaths {
		if strings.HasPrefix(path, skip) {
			return true
		}
	}
	return !config.LogHealthChecks && healthCheckPaths[path]
}

func isImageResponse(rw *responseWriter) bool {
	return rw.statusCode == http.StatusOK &&
		strings.HasPrefix(rw.Header().Get("Content-Type"), "image/")
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// escapeW3CField quotes a value containing spaces, tabs or quotes.
func escapeW3CField(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}
