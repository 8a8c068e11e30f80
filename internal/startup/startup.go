package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"thumbnailer/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	MediaDir        string
	CacheDir        string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogStaticFiles  bool
	LogHealthChecks bool

	// Thumbnail pipeline
	ToolDirs         []string
	ToolTimeout      time.Duration
	QueueSize        int
	DefaultSizeLimit int64
	ExtraVideoMimes  []string

	// Initial preview toggles, written to the settings store on first run
	PreviewImage    bool
	PreviewVideo    bool
	PreviewText     bool
	PreviewDocument bool

	// Derived paths
	DatabasePath string
	ThumbnailDir string
}

// DefaultSizeLimit is the source size cap applied to mimes without an
// explicit limit.
const DefaultSizeLimit = 20 * 1024 * 1024

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	logging.Info("  MEDIA_DIR:           %s", config.MediaDir)
	logging.Info("  CACHE_DIR:           %s", config.CacheDir)
	logging.Info("  DATABASE_DIR:        %s", config.DatabaseDir)
	logging.Info("  PORT:                %s", config.Port)
	logging.Info("  METRICS_PORT:        %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", config.MetricsEnabled)
	logging.Info("  TOOL_DIRS:           %s", strings.Join(config.ToolDirs, ":"))
	logging.Info("  TOOL_TIMEOUT:        %v", config.ToolTimeout)
	logging.Info("  QUEUE_SIZE:          %d", config.QueueSize)
	logging.Info("  DEFAULT_SIZE_LIMIT:  %s", FormatBytes(config.DefaultSizeLimit))
	logging.Info("  PREVIEW_IMAGE:       %v", config.PreviewImage)
	logging.Info("  PREVIEW_VIDEO:       %v", config.PreviewVideo)
	logging.Info("  PREVIEW_TEXT:        %v", config.PreviewText)
	logging.Info("  PREVIEW_DOCUMENT:    %v", config.PreviewDocument)
	if len(config.ExtraVideoMimes) > 0 {
		logging.Info("  EXTRA_VIDEO_MIMES:   %s", strings.Join(config.ExtraVideoMimes, ","))
	}
	logging.Info("  LOG_STATIC_FILES:    %v", config.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	// Resolve paths
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Media directory (absolute): %s", config.MediaDir)
	logging.Info("  Cache directory (absolute): %s", config.CacheDir)
	logging.Info("  Database directory (absolute): %s", config.DatabaseDir)

	// Check media directory (warning only)
	if err := ensureDirectory(config.MediaDir, "media"); err != nil {
		logging.Warn("  Media directory issue: %v", err)
	}

	// Ensure base database directory exists (required for settings)
	if err := ensureDirectory(config.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}

	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for settings): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	// The thumbnail cache is the whole point of the service, so it is required.
	if err := ensureDirectory(config.ThumbnailDir, "thumbnails"); err != nil {
		return nil, fmt.Errorf("thumbnail directory error: %w", err)
	}
	if err := testWriteAccess(config.ThumbnailDir); err != nil {
		return nil, fmt.Errorf("thumbnail directory is not writable: %w", err)
	}
	logging.Info("  [OK] Thumbnail directory is writable")

	for _, dir := range config.ToolDirs {
		if info, err := os.Stat(filepath.Join(dir, "thumbnail")); err != nil || !info.IsDir() {
			logging.Debug("  Tool directory %s has no thumbnail/ subdirectory", dir)
		}
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Settings:    ENABLED (required)")
	logging.Info("    Thumbnails:  ENABLED (required)")
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// ConfigFromEnv reads every setting without logging or touching the
// filesystem beyond resolving absolute paths.
func ConfigFromEnv() (*Config, error) {
	mediaDir, err := filepath.Abs(getEnv("MEDIA_DIR", "/media"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}

	cacheDir, err := filepath.Abs(getEnv("CACHE_DIR", "/cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}

	databaseDir, err := filepath.Abs(getEnv("DATABASE_DIR", "/database"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}

	return &Config{
		MediaDir:         mediaDir,
		CacheDir:         cacheDir,
		DatabaseDir:      databaseDir,
		Port:             getEnv("PORT", "8080"),
		MetricsPort:      getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:   getEnvBool("METRICS_ENABLED", true),
		LogStaticFiles:   getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks:  getEnvBool("LOG_HEALTH_CHECKS", true),
		ToolDirs:         splitList(getEnv("TOOL_DIRS", "/usr/lib/thumbnailer/tools"), ":"),
		ToolTimeout:      getEnvDuration("TOOL_TIMEOUT", 30*time.Second),
		QueueSize:        getEnvInt("QUEUE_SIZE", 10000),
		DefaultSizeLimit: getEnvBytes("DEFAULT_SIZE_LIMIT", DefaultSizeLimit),
		ExtraVideoMimes:  splitList(os.Getenv("EXTRA_VIDEO_MIMES"), ","),
		PreviewImage:     getEnvBool("PREVIEW_IMAGE", true),
		PreviewVideo:     getEnvBool("PREVIEW_VIDEO", true),
		PreviewText:      getEnvBool("PREVIEW_TEXT", true),
		PreviewDocument:  getEnvBool("PREVIEW_DOCUMENT", true),
		DatabasePath:     filepath.Join(databaseDir, "settings.db"),
		ThumbnailDir:     filepath.Join(cacheDir, "thumbnails"),
	}, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs settings database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Settings database initialized in %v", duration)
}

// LogRendererInit logs renderer initialization and checks FFmpeg, which the
// video provider shells out to.
func LogRendererInit(vipsEnabled bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("RENDERER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if vipsEnabled {
		logging.Info("  [OK] libvips initialized")
	} else {
		logging.Warn("  libvips unavailable; PDF and SVG thumbnails will fail")
	}

	if err := checkFFmpeg(); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Video thumbnails will fall back to external tools")
	} else {
		logging.Info("  [OK] FFmpeg is available")
	}
}

// LogToolsRegistered logs the external tool registry once it has been scanned.
func LogToolsRegistered(keys int) {
	if keys == 0 {
		logging.Info("  No external thumbnail tools registered")
		return
	}
	logging.Info("  [OK] %d mime keys mapped to external thumbnail tools", keys)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		// Group routes by prefix for cleaner output
		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		// Sort group keys
		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		// Print routes by group
		for _, group := range groupKeys {
			groupRoutes := groups[group]
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groupRoutes {
				methodPadded := fmt.Sprintf("%-6s", route.Method)
				logging.Debug("    %s %s", methodPadded, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Image response logging: ON")
	} else {
		logging.Info("    Image response logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	// Remove leading slash
	path = strings.TrimPrefix(path, "/")

	// Get first segment
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return ""
	}

	first := parts[0]

	// Special handling for API routes
	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Local access:")
	logging.Info("    Application:   http://localhost:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://localhost:%s/metrics", config.MetricsPort)
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
  _____ _                     _                 _ _
 |_   _| |__  _   _ _ __ ___ | |__  _ __   __ _(_) | ___ _ __
   | | | '_ \| | | | '_ ` + "`" + ` _ \| '_ \| '_ \ / _` + "`" + ` | | |/ _ \ '__|
   | | | | | | |_| | | | | | | |_) | | | | (_| | | |  __/ |
   |_| |_| |_|\__,_|_| |_| |_|_.__/|_| |_|\__,_|_|_|\___|_|

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")

	if name == "media" && logging.IsDebugEnabled() {
		entries, err := os.ReadDir(path)
		if err == nil {
			fileCount := 0
			dirCount := 0
			for _, e := range entries {
				if e.IsDir() {
					dirCount++
				} else {
					fileCount++
				}
			}
			logging.Debug("    Contents: %d files, %d directories (top level)", fileCount, dirCount)
		}
	}

	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Don't return error since write access was confirmed
	}
	return nil
}

func checkFFmpeg() error {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found in PATH")
	}
	logging.Debug("  FFmpeg path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", "-version")
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		logging.Debug("  FFmpeg version: %s", strings.TrimSpace(lines[0]))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvBytes(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := ParseBytes(value)
	if err != nil {
		logging.Warn("Invalid size for %s: %q, using default: %s", key, value, FormatBytes(defaultValue))
		return defaultValue
	}
	return parsed
}

func splitList(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
