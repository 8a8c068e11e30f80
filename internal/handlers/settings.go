package handlers

import (
	"encoding/json"
	"net/http"

	"thumbnailer/internal/database"
	"thumbnailer/internal/logging"
	"thumbnailer/internal/mediatypes"
	"thumbnailer/internal/startup"
)

// LimitsResponse lists the effective source size limits in bytes.
type LimitsResponse struct {
	Default int64            `json:"default"`
	Limits  map[string]int64 `json:"limits"`
}

// LimitUpdate changes one limit. Set Mime and Bytes, or Default. Size accepts
// a human readable amount such as "30MiB" in place of Bytes.
type LimitUpdate struct {
	Mime    string `json:"mime,omitempty"`
	Bytes   *int64 `json:"bytes,omitempty"`
	Size    string `json:"size,omitempty"`
	Default *int64 `json:"default,omitempty"`
}

func (h *Handlers) limitsResponse() LimitsResponse {
	return LimitsResponse{
		Default: h.svc.DefaultSizeLimit(),
		Limits:  h.svc.SizeLimits(),
	}
}

// GetLimits returns the size limits.
func (h *Handlers) GetLimits(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.limitsResponse())
}

// UpdateLimits stores a size limit and applies it immediately.
func (h *Handlers) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	var req LimitUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Mime = mediatypes.Normalize(req.Mime)
	if req.Mime == "" && req.Default == nil {
		writeJSONError(w, "mime or default is required", http.StatusBadRequest)
		return
	}
	if req.Default != nil && *req.Default <= 0 {
		writeJSONError(w, "default must be positive", http.StatusBadRequest)
		return
	}
	var n int64
	if req.Mime != "" {
		var ok bool
		if n, ok = limitBytes(req); !ok {
			writeJSONError(w, "bytes or size must be a positive amount", http.StatusBadRequest)
			return
		}
	}

	if req.Default != nil {
		if err := h.db.SetDefaultSizeLimit(r.Context(), *req.Default); err != nil {
			logging.Error("Failed to store default size limit: %v", err)
			writeJSONError(w, "Failed to store size limit", http.StatusInternalServerError)
			return
		}
		h.svc.SetDefaultSizeLimit(*req.Default)
		logging.Info("Default size limit set to %s", startup.FormatBytes(*req.Default))
	}

	if req.Mime != "" {
		if err := h.db.SetSizeLimit(r.Context(), req.Mime, n); err != nil {
			logging.Error("Failed to store size limit for %s: %v", req.Mime, err)
			writeJSONError(w, "Failed to store size limit", http.StatusInternalServerError)
			return
		}
		h.svc.SetSizeLimit(req.Mime, n)
		logging.Info("Size limit for %s set to %s", req.Mime, startup.FormatBytes(n))
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.limitsResponse())
}

func limitBytes(req LimitUpdate) (int64, bool) {
	if req.Bytes != nil {
		return *req.Bytes, *req.Bytes > 0
	}
	if req.Size == "" {
		return 0, false
	}
	n, err := startup.ParseBytes(req.Size)
	return n, err == nil && n > 0
}

// GetSettings returns the preview toggles.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.db.Previews(r.Context())
	if err != nil {
		logging.Error("Failed to load preview settings: %v", err)
		writeJSONError(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, prefs)
}

// UpdateSettings stores preview toggles given as a JSON object of booleans.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]bool
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	for key := range req {
		if !database.IsPreviewKey(key) {
			writeJSONError(w, "Unknown setting: "+key, http.StatusBadRequest)
			return
		}
	}

	for key, enabled := range req {
		if err := h.db.SetPreview(r.Context(), key, enabled); err != nil {
			logging.Error("Failed to store %s: %v", key, err)
			writeJSONError(w, "Failed to store settings", http.StatusInternalServerError)
			return
		}
		logging.Info("Preview setting %s = %v", key, enabled)
	}

	h.GetSettings(w, r)
}
