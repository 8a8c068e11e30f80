package metrics

import "thumbnailer/internal/filesystem"

// filesystemObserver implements filesystem.Observer using the Prometheus
// metrics declared in this package.
type filesystemObserver struct{}

// NewFilesystemObserver creates an observer that records retry metrics into
// the counters declared in metrics.go.
func NewFilesystemObserver() filesystem.Observer {
	return filesystemObserver{}
}

func (filesystemObserver) ObserveRetryAttempt(op, fsType string) {
	FilesystemRetryAttempts.WithLabelValues(op, fsType).Inc()
}

func (filesystemObserver) ObserveRetrySuccess(op, fsType string) {
	FilesystemRetrySuccess.WithLabelValues(op, fsType).Inc()
}

func (filesystemObserver) ObserveRetryFailure(op, fsType string) {
	FilesystemRetryFailures.WithLabelValues(op, fsType).Inc()
}

func (filesystemObserver) ObserveStaleError(op, fsType string) {
	FilesystemStaleErrors.WithLabelValues(op, fsType).Inc()
}
