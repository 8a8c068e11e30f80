package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"thumbnailer/internal/logging"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Mounts labels metrics with the filesystem type of the path.
	// If nil, the label is "unknown".
	Mounts *MountTable
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c RetryConfig) volume(path string) string {
	if m, ok := c.Mounts.Lookup(path); ok {
		return m.FSType
	}
	return "unknown"
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}

	return false
}

// withRetry runs fn until it succeeds, fails with anything but ESTALE, or
// runs out of attempts. Backoff doubles up to MaxBackoff.
func withRetry[T any](op, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	volume := config.volume(path)
	backoff := config.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", op, attempt, path)
				observe().ObserveRetrySuccess(op, volume)
			}
			return v, nil
		}

		lastErr = err
		if !isNFSStaleError(err) {
			var zero T
			return zero, err
		}

		observe().ObserveStaleError(op, volume)

		if attempt < config.MaxRetries {
			observe().ObserveRetryAttempt(op, volume)
			logging.Debug("%s stale file handle for %s, retrying in %v (attempt %d/%d)",
				op, path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("%s failed after %d retries for %s: %v", op, config.MaxRetries, path, lastErr)
	observe().ObserveRetryFailure(op, volume)

	var zero T
	return zero, lastErr
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry performs os.Open with retry logic for NFS stale file handle errors
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry("open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}
