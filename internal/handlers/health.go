package handlers

import (
	"net/http"
	"runtime"
	"time"

	"thumbnailer/internal/render"
	"thumbnailer/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	QueueDepth     int  `json:"queueDepth"`
	PendingCancels int  `json:"pendingCancels"`
	Vips           bool `json:"vips"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	stats := h.svc.GetStats()
	ready := h.ready.Load()

	response := HealthResponse{
		Status:         statusHealthy,
		Ready:          ready,
		Version:        startup.Version,
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
		QueueDepth:     stats.QueueDepth,
		PendingCancels: stats.PendingCancels,
		Vips:           render.IsVipsAvailable(),
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		response.Status = statusStarting
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.ready.Load() {
		writeJSONStatus(w, "ready", http.StatusOK)
		return
	}
	writeJSONStatus(w, "not_ready", http.StatusServiceUnavailable)
}
