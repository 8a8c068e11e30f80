package filesystem

// Observer records retry metrics for source file access. Implementations are
// provided by the metrics package to break the import cycle between
// filesystem and metrics.
type Observer interface {
	ObserveRetryAttempt(op, volume string)
	ObserveRetrySuccess(op, volume string)
	ObserveRetryFailure(op, volume string)
	ObserveStaleError(op, volume string)
}

// defaultObserver is the package-level observer set at startup.
// If nil, metric recording is silently skipped (safe for tests).
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
// Call this once at startup after creating the observer implementation.
func SetObserver(o Observer) {
	defaultObserver = o
}

type nopObserver struct{}

func (nopObserver) ObserveRetryAttempt(string, string) {}
func (nopObserver) ObserveRetrySuccess(string, string) {}
func (nopObserver) ObserveRetryFailure(string, string) {}
func (nopObserver) ObserveStaleError(string, string)   {}

func observe() Observer {
	if defaultObserver == nil {
		return nopObserver{}
	}
	return defaultObserver
}
