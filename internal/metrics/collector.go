package metrics

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"thumbnailer/internal/logging"
)

// CacheDirs lists the subdirectories of the thumbnail cache root that the
// collector measures.
var CacheDirs = []string{"small", "normal", "large", "fail"}

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current statistics
type Stats struct {
	QueueDepth     int
	PendingCancels int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	cacheRoot     string
	dbPath        string
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new metrics collector. cacheRoot is the directory
// holding the size subdirectories; dbPath is the settings database file.
// Either may be empty to skip that measurement.
func NewCollector(provider StatsProvider, cacheRoot, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		cacheRoot:     cacheRoot,
		dbPath:        dbPath,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection. It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectCacheSizes()
	c.collectDBSize()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	QueueDepth.Set(float64(stats.QueueDepth))
	QueuePendingCancels.Set(float64(stats.PendingCancels))

	logging.Debug("Metrics collected: queue=%d, pending cancels=%d", stats.QueueDepth, stats.PendingCancels)
}

func (c *Collector) collectCacheSizes() {
	if c.cacheRoot == "" {
		return
	}

	for _, dir := range CacheDirs {
		count, size := dirUsage(filepath.Join(c.cacheRoot, dir))
		ThumbnailCacheFiles.WithLabelValues(dir).Set(float64(count))
		ThumbnailCacheBytes.WithLabelValues(dir).Set(float64(size))
	}
}

// dirUsage returns the number of regular files and their total size below
// dir. A missing directory counts as empty.
func dirUsage(dir string) (count int, size int64) {
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		count++
		size += info.Size()
		return nil
	})
	if err != nil {
		logging.Debug("Failed to walk cache directory %s: %v", dir, err)
	}
	return count, size
}

func (c *Collector) collectDBSize() {
	if c.dbPath == "" {
		return
	}

	for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		info, err := os.Stat(c.dbPath + suffix)
		if err != nil {
			DBSizeBytes.WithLabelValues(label).Set(0)
			continue
		}
		DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
	}
}
