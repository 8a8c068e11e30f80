package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"thumbnailer/internal/logging"
	"thumbnailer/internal/metrics"
)

// Config holds the monitor thresholds as fractions of the limit.
type Config struct {
	// LimitBytes is the budget to measure against. Zero uses GOMEMLIMIT.
	LimitBytes    int64
	HighWaterMark float64
	// CriticalWaterMark pauses the worker.
	CriticalWaterMark float64
	CheckInterval     time.Duration
}

// DefaultConfig returns the thresholds used by the server.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples heap usage and pauses the worker under pressure.
type Monitor struct {
	config Config
	limit  int64
	// heapAlloc is replaced in tests.
	heapAlloc func() uint64

	mu     sync.Mutex
	paused bool
	resume chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a monitor. Without a limit it never pauses.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no memory limit configured, backpressure disabled")
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		heapAlloc: readHeapAlloc,
		resume:    make(chan struct{}),
		stop:      make(chan struct{}),
	}
}

func readHeapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Limit returns the budget the monitor measures against, or 0.
func (m *Monitor) Limit() int64 {
	return m.limit
}

// Start begins sampling. It does nothing without a limit.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	logging.Info("Memory monitor started (limit %d MiB, pause at %.0f%%)", m.limit>>20, m.config.CriticalWaterMark*100)
	go m.loop()
}

// Stop ends sampling and releases any waiter. It is safe to call more than
// once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) check() {
	if m.limit == 0 {
		return
	}
	usage := float64(m.heapAlloc()) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.paused && usage >= m.config.CriticalWaterMark:
		logging.Warn("Memory critical (%.1f%% of limit), pausing thumbnail worker", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && usage < m.config.HighWaterMark:
		logging.Info("Memory recovered (%.1f%% of limit), resuming thumbnail worker", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// Paused reports whether usage crossed the critical mark and has not yet
// recovered.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// WaitIfPaused blocks while the monitor is paused. It returns false if done
// or the monitor is stopped first.
func (m *Monitor) WaitIfPaused(done <-chan struct{}) bool {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return true
	}
	resume := m.resume
	m.mu.Unlock()

	select {
	case <-resume:
		return true
	case <-done:
		return false
	case <-m.stop:
		return false
	}
}
