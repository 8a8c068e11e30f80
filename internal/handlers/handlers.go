package handlers

import (
	"sync/atomic"
	"time"

	"thumbnailer/internal/database"
	"thumbnailer/internal/startup"
	"thumbnailer/internal/thumbnail"
)

type Handlers struct {
	svc       *thumbnail.Service
	db        *database.Database
	mediaDir  string
	startTime time.Time
	ready     atomic.Bool
}

func New(svc *thumbnail.Service, db *database.Database, config *startup.Config) *Handlers {
	return &Handlers{
		svc:       svc,
		db:        db,
		mediaDir:  config.MediaDir,
		startTime: time.Now(),
	}
}

// SetReady toggles the readiness probe.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}
