package handlers

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"

	"thumbnailer/internal/filesystem"
	"thumbnailer/internal/logging"
	"thumbnailer/internal/thumbnail"
)

// thumbnailRequest extracts and validates the size and source path of a
// thumbnail route. It writes the error response itself and returns ok=false
// on failure.
func (h *Handlers) thumbnailRequest(w http.ResponseWriter, r *http.Request, needFile bool) (string, thumbnail.SizeClass, bool) {
	vars := mux.Vars(r)

	size, err := thumbnail.ParseSizeClass(vars["size"])
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return "", 0, false
	}

	rel := vars["path"]
	if strings.TrimSpace(rel) == "" {
		writeJSONError(w, "Path is required", http.StatusBadRequest)
		return "", 0, false
	}

	abs, err := h.resolveMediaPath(rel)
	if err != nil {
		logging.Warn("Thumbnail: rejected path %q: %v", rel, err)
		writeJSONError(w, "Invalid path", http.StatusBadRequest)
		return "", 0, false
	}

	if needFile {
		info, err := filesystem.StatWithRetry(abs, filesystem.DefaultRetryConfig())
		if err != nil {
			if os.IsNotExist(err) {
				writeJSONError(w, "File not found", http.StatusNotFound)
			} else {
				logging.Error("Thumbnail: failed to stat %s: %v", abs, err)
				writeJSONError(w, "Failed to access file", http.StatusInternalServerError)
			}
			return "", 0, false
		}
		if info.IsDir() {
			writeJSONError(w, "Cannot generate thumbnail for directory", http.StatusBadRequest)
			return "", 0, false
		}
	}

	return abs, size, true
}

// GetThumbnail serves a cached thumbnail, or queues one and answers 202.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	abs, size, ok := h.thumbnailRequest(w, r, true)
	if !ok {
		return
	}

	if thumb := h.svc.ThumbnailFilePath(abs, size); thumb != "" {
		serveThumbnail(w, r, thumb)
		return
	}

	if reason := h.svc.Eligible(abs); reason != nil {
		writeIneligible(w, reason)
		return
	}

	if err := h.svc.Enqueue(abs, size, nil); err != nil {
		if errors.Is(err, thumbnail.ErrStopped) {
			writeJSONError(w, "Service is shutting down", http.StatusServiceUnavailable)
			return
		}
		logging.Error("Thumbnail: failed to queue %s: %v", abs, err)
		writeJSONError(w, "Failed to queue thumbnail", http.StatusInternalServerError)
		return
	}

	logging.Debug("Thumbnail: queued %s (%s)", abs, size)
	writeJSONStatus(w, "queued", http.StatusAccepted)
}

// CreateThumbnail generates a thumbnail synchronously.
func (h *Handlers) CreateThumbnail(w http.ResponseWriter, r *http.Request) {
	abs, size, ok := h.thumbnailRequest(w, r, true)
	if !ok {
		return
	}

	thumb, err := h.svc.CreateThumbnailContext(r.Context(), abs, size)
	if err != nil {
		if errors.Is(err, thumbnail.ErrNotSupported) {
			writeIneligible(w, err)
			return
		}
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	serveThumbnail(w, r, thumb)
}

// retryAfterSeconds is advertised while a source is still being copied.
const retryAfterSeconds = "5"

// writeIneligible answers a request for a file that cannot be thumbnailed
// now. A source still being copied is 503 with Retry-After, a disabled
// preview kind is 409, and anything else is 415.
func writeIneligible(w http.ResponseWriter, reason error) {
	message := reason.Error()
	switch {
	case errors.Is(reason, thumbnail.ErrSourceBusy):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeJSONError(w, message, http.StatusServiceUnavailable)
	case errors.Is(reason, thumbnail.ErrPreviewDisabled):
		writeJSONError(w, message, http.StatusConflict)
	default:
		writeJSONError(w, message, http.StatusUnsupportedMediaType)
	}
}

// CancelThumbnail drops a queued request that has not started yet.
func (h *Handlers) CancelThumbnail(w http.ResponseWriter, r *http.Request) {
	abs, size, ok := h.thumbnailRequest(w, r, false)
	if !ok {
		return
	}

	h.svc.Cancel(abs, size)
	w.WriteHeader(http.StatusNoContent)
}

func serveThumbnail(w http.ResponseWriter, r *http.Request, thumb string) {
	f, err := filesystem.OpenWithRetry(thumb, filesystem.DefaultRetryConfig())
	if err != nil {
		logging.Error("Thumbnail: failed to open %s: %v", thumb, err)
		writeJSONError(w, "Failed to read thumbnail", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeJSONError(w, "Failed to read thumbnail", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "", info.ModTime(), f)
}
