package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"thumbnailer/internal/database"
	"thumbnailer/internal/filesystem"
	"thumbnailer/internal/handlers"
	"thumbnailer/internal/logging"
	"thumbnailer/internal/memory"
	"thumbnailer/internal/metrics"
	"thumbnailer/internal/middleware"
	"thumbnailer/internal/render"
	"thumbnailer/internal/startup"
	"thumbnailer/internal/thumbnail"
	"thumbnailer/internal/workers"
)

const shutdownTimeout = 30 * time.Second

func main() {
	startTime := time.Now()

	// Before significant allocations.
	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	filesystem.SetObserver(metrics.NewFilesystemObserver())
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	if err := db.SeedPreviews(ctx, map[string]bool{
		thumbnail.PreviewImage:    config.PreviewImage,
		thumbnail.PreviewVideo:    config.PreviewVideo,
		thumbnail.PreviewText:     config.PreviewText,
		thumbnail.PreviewDocument: config.PreviewDocument,
	}); err != nil {
		startup.LogFatal("Failed to seed preview settings: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	vipsErr := render.InitVips(workers.ForCPU(0))
	if vipsErr != nil {
		logging.Warn("libvips initialization failed: %v", vipsErr)
	}
	defer render.ShutdownVips()
	startup.LogRendererInit(vipsErr == nil)

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	activity, err := filesystem.WatchWriteActivity(config.MediaDir, filesystem.DefaultQuietPeriod)
	if err != nil {
		logging.Warn("Write activity watcher unavailable, copy detection disabled: %v", err)
		activity = filesystem.NewWriteActivity()
	}

	svc := newService(config, db, monitor, activity)
	if n, err := db.ApplySizeLimits(ctx, svc); err != nil {
		logging.Warn("Failed to load stored size limits: %v", err)
	} else if n > 0 {
		logging.Info("  [OK] Applied %d stored size limits", n)
	}

	collector := metrics.NewCollector(svc, svc.Root(), config.DatabasePath, time.Minute)
	if config.MetricsEnabled {
		collector.Start()
	}

	h := handlers.New(svc, db, config)
	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogImages = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           middleware.Logger(loggingConfig)(router),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listen(srv) })
	if metricsSrv != nil {
		g.Go(func() error { return listen(metricsSrv) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdown(ctx, h, svc, monitor, activity, collector, srv, metricsSrv)
		return nil
	})

	h.SetReady(true)
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := g.Wait(); err != nil {
		startup.LogFatal("Server error: %v", err)
	}
}

// newService wires the renderers, external tools and eligibility checks into
// a thumbnail service.
func newService(config *startup.Config, db *database.Database, throttle thumbnail.Throttle, copying thumbnail.CopyTracker) *thumbnail.Service {
	video := render.NewVideoProvider(config.ExtraVideoMimes, config.ToolTimeout)
	tools := render.NewToolRegistry(config.ToolDirs)
	tools.OnLoad = startup.LogToolsRegistered
	tools.Len()

	dispatcher := render.NewDispatcher(&render.Fallback{
		Provider: video,
		Tools:    tools,
		Runner:   &render.ToolRunner{Timeout: config.ToolTimeout},
	})

	opts := thumbnail.Options{
		Root:             config.ThumbnailDir,
		Renderer:         dispatcher,
		Provider:         video,
		Settings:         db,
		Copying:          copying,
		ExtraVideoMimes:  config.ExtraVideoMimes,
		DefaultSizeLimit: config.DefaultSizeLimit,
		QueueSize:        config.QueueSize,
		Throttle:         throttle,
	}
	if mounts, err := filesystem.LoadMountTable(); err != nil {
		logging.Warn("Mount table unavailable, remote video detection disabled: %v", err)
	} else {
		opts.Mounts = mounts
	}

	svc, err := thumbnail.New(opts)
	if err != nil {
		startup.LogFatal("Failed to create thumbnail service: %v", err)
	}
	return svc
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnail/{size}/{path:.*}", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/thumbnail/{size}/{path:.*}", h.CreateThumbnail).Methods("POST")
	api.HandleFunc("/queue/{size}/{path:.*}", h.CancelThumbnail).Methods("DELETE")
	api.HandleFunc("/limits", h.GetLimits).Methods("GET")
	api.HandleFunc("/limits", h.UpdateLimits).Methods("PUT")
	api.HandleFunc("/settings", h.GetSettings).Methods("GET")
	api.HandleFunc("/settings", h.UpdateSettings).Methods("PUT")

	return r
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func shutdown(ctx context.Context, h *handlers.Handlers, svc *thumbnail.Service, monitor *memory.Monitor, activity *filesystem.WriteActivity, collector *metrics.Collector, srv, metricsSrv *http.Server) {
	reason := "server error"
	if ctx.Err() != nil {
		reason = "signal"
	}
	startup.LogShutdownInitiated(reason)

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	h.SetReady(false)

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(sctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping thumbnail worker")
	monitor.Stop()
	if err := svc.Shutdown(sctx); err != nil {
		logging.Warn("Thumbnail worker did not stop in time: %v", err)
	} else {
		startup.LogShutdownStepComplete("Thumbnail worker stopped")
	}

	collector.Stop()
	if err := activity.Close(); err != nil {
		logging.Warn("Failed to close write activity watcher: %v", err)
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(sctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownComplete()
}
