package thumbnail

import (
	"context"
	"errors"

	"thumbnailer/internal/logging"
	"thumbnailer/internal/metrics"
)

// Request is a queued thumbnail job.
type Request struct {
	Path string
	Size SizeClass
}

type discardKey struct {
	path string
	size SizeClass
}

// Enqueue adds a request to the queue, blocking while the queue is full.
// The callback receives the thumbnail path, or "" when generation failed, on
// the worker goroutine. A request for a path and size that is already queued
// or rendering is not queued again; its callback joins the pending one.
func (s *Service) Enqueue(path string, size SizeClass, callback func(string)) error {
	if s.stopped.Load() {
		return ErrStopped
	}
	abs, err := absPath(path)
	if err != nil {
		return err
	}
	key := discardKey{abs, size}

	if s.join(key, callback) {
		return nil
	}

	s.startOnce.Do(func() { go s.work() })

	select {
	case <-s.stop:
		s.takePending(key)
		return ErrStopped
	default:
	}

	select {
	case s.queue <- Request{Path: abs, Size: size}:
		metrics.QueueDepth.Set(float64(len(s.queue)))
		return nil
	case <-s.stop:
		s.takePending(key)
		return ErrStopped
	}
}

// join attaches callback to a pending request for key. It returns false,
// after registering key as pending, when the caller must queue a new one.
func (s *Service) join(key discardKey, callback func(string)) bool {
	s.discardMu.Lock()
	defer s.discardMu.Unlock()

	callbacks, ok := s.pending[key]
	if !ok {
		s.pending[key] = appendCallback(nil, callback)
		return false
	}

	if _, cancelled := s.discarded[key]; cancelled {
		delete(s.discarded, key)
		metrics.QueuePendingCancels.Set(float64(len(s.discarded)))
		if key == s.inflight {
			// A cancel issued during the render applies to this request.
			metrics.QueueDiscardedTotal.Inc()
			logging.Debug("Discarded thumbnail request for %s (%s)", key.path, key.size)
			return true
		}
		// The queued request was cancelled; this one takes its place.
	}

	s.pending[key] = appendCallback(callbacks, callback)
	metrics.QueueCoalescedTotal.Inc()
	logging.Debug("Thumbnail request for %s (%s) already pending", key.path, key.size)
	return true
}

func appendCallback(callbacks []func(string), callback func(string)) []func(string) {
	if callback == nil {
		return callbacks
	}
	return append(callbacks, callback)
}

// takePending removes key from the pending set and returns the callbacks
// waiting on it.
func (s *Service) takePending(key discardKey) []func(string) {
	s.discardMu.Lock()
	defer s.discardMu.Unlock()
	callbacks := s.pending[key]
	delete(s.pending, key)
	if s.inflight == key {
		s.inflight = discardKey{}
	}
	return callbacks
}

// Cancel marks the next queued request for path and size as discarded. The
// worker drops it without rendering or calling back.
func (s *Service) Cancel(path string, size SizeClass) {
	abs, err := absPath(path)
	if err != nil {
		return
	}
	key := discardKey{abs, size}

	s.discardMu.Lock()
	if _, queued := s.pending[key]; queued && key != s.inflight {
		s.pending[key] = nil
	}
	s.discarded[key] = struct{}{}
	n := len(s.discarded)
	s.discardMu.Unlock()
	metrics.QueuePendingCancels.Set(float64(n))
}

// start takes the discard mark for req if there is one, otherwise records
// req as rendering. It reports whether req should be rendered.
func (s *Service) start(req Request) bool {
	key := discardKey{req.Path, req.Size}
	s.discardMu.Lock()
	defer s.discardMu.Unlock()

	if _, ok := s.discarded[key]; ok {
		delete(s.discarded, key)
		delete(s.pending, key)
		metrics.QueuePendingCancels.Set(float64(len(s.discarded)))
		return false
	}
	s.inflight = key
	return true
}

func (s *Service) work() {
	defer close(s.workerDone)
	logging.Debug("Thumbnail worker started")

	for {
		select {
		case <-s.stop:
			logging.Debug("Thumbnail worker stopped")
			return
		case req := <-s.queue:
			metrics.QueueDepth.Set(float64(len(s.queue)))

			select {
			case <-s.stop:
				logging.Debug("Thumbnail worker stopped")
				return
			default:
			}

			if s.throttle != nil && !s.throttle.WaitIfPaused(s.stop) {
				logging.Debug("Thumbnail worker stopped while throttled")
				return
			}

			if !s.start(req) {
				metrics.QueueDiscardedTotal.Inc()
				logging.Debug("Discarded thumbnail request for %s (%s)", req.Path, req.Size)
				continue
			}

			s.process(req)
		}
	}
}

func (s *Service) process(req Request) {
	metrics.WorkerBusy.Set(1)
	defer metrics.WorkerBusy.Set(0)

	logging.Debug("Generating %s thumbnail for %s", req.Size, req.Path)
	thumb, err := s.CreateThumbnail(req.Path, req.Size)
	metrics.QueueProcessedTotal.Inc()
	if err != nil && errors.Is(err, ErrNotSupported) {
		logging.Debug("Skipped %s: %v", req.Path, err)
	}

	// Requests that joined while rendering get the same result.
	for _, callback := range s.takePending(discardKey{req.Path, req.Size}) {
		callback(thumb)
	}
}

// Shutdown stops the worker. A render in progress completes; requests still
// queued are abandoned. It returns ctx.Err() if the worker does not finish in
// time.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stopped.Store(true)
	s.stopOnce.Do(func() { close(s.stop) })
	// Mark done when no worker was ever started.
	s.startOnce.Do(func() { close(s.workerDone) })

	select {
	case <-s.workerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStats reports queue state to the metrics collector.
func (s *Service) GetStats() metrics.Stats {
	s.discardMu.Lock()
	cancels := len(s.discarded)
	s.discardMu.Unlock()
	return metrics.Stats{
		QueueDepth:     len(s.queue),
		PendingCancels: cancels,
	}
}
