package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"thumbnailer/internal/logging"
)

// DefaultQuietPeriod is how long after its last create or write event a file
// is still considered in transfer.
const DefaultQuietPeriod = 5 * time.Second

// WriteActivity tracks files under a directory tree that received create or
// write events recently. A file is being copied until it has been quiet for
// Quiet. Modification times are not consulted, so a finished file that was
// touched or copied with its timestamps preserved is never reported.
type WriteActivity struct {
	// Quiet must not change once watching has started.
	Quiet time.Duration

	watcher  *fsnotify.Watcher
	done     chan struct{}
	loopDone chan struct{}
	once     sync.Once

	mu     sync.Mutex
	writes map[string]time.Time
	now    func() time.Time
}

// NewWriteActivity returns a tracker without a watcher. It never reports a
// file as being copied.
func NewWriteActivity() *WriteActivity {
	return &WriteActivity{
		Quiet:  DefaultQuietPeriod,
		writes: make(map[string]time.Time),
		now:    time.Now,
	}
}

// WatchWriteActivity watches every non-hidden directory under root and
// records create and write events on files. Directories created later are
// watched as they appear. A quiet period of zero means DefaultQuietPeriod.
// Call Close to stop watching.
func WatchWriteActivity(root string, quiet time.Duration) (*WriteActivity, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := NewWriteActivity()
	if quiet > 0 {
		w.Quiet = quiet
	}
	w.watcher = watcher
	w.done = make(chan struct{})
	w.loopDone = make(chan struct{})

	count, err := w.addDirectories(root, false)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}
	logging.Debug("Write activity watcher started, watching %d directories", count)

	go w.processEvents()
	return w, nil
}

// addDirectories adds root and every non-hidden directory below it to the
// watcher. With record set, files found on the way are recorded as written;
// they were created before their directory's watch was in place.
func (w *WriteActivity) addDirectories(root string, record bool) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if record {
				w.record(path)
			}
			return nil
		}
		if addErr := w.watcher.Add(path); addErr != nil {
			logging.Warn("failed to add path to watcher %s: %v", path, addErr)
			return nil
		}
		count++
		return nil
	})
	return count, err
}

func (w *WriteActivity) processEvents() {
	defer close(w.loopDone)

	ticker := time.NewTicker(w.Quiet)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Write activity watcher error: %v", err)

		case <-ticker.C:
			w.prune()
		}
	}
}

func (w *WriteActivity) handleEvent(event fsnotify.Event) {
	if strings.Contains(event.Name, "/.") {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if n, err := w.addDirectories(event.Name, true); err == nil {
				logging.Debug("Added %d new directories to write activity watcher under %s", n, event.Name)
			}
			return
		}
		w.record(event.Name)

	case event.Op&fsnotify.Write != 0:
		w.record(event.Name)

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.forget(event.Name)
	}
	// Chmod alone, including timestamp changes, is not a write.
}

func (w *WriteActivity) record(path string) {
	w.mu.Lock()
	w.writes[filepath.Clean(path)] = w.now()
	w.mu.Unlock()
}

// forget drops path and, for a directory, everything recorded below it.
func (w *WriteActivity) forget(path string) {
	path = filepath.Clean(path)
	prefix := path + string(filepath.Separator)

	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.writes, path)
	for p := range w.writes {
		if strings.HasPrefix(p, prefix) {
			delete(w.writes, p)
		}
	}
}

func (w *WriteActivity) prune() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	for p, at := range w.writes {
		if now.Sub(at) >= w.Quiet {
			delete(w.writes, p)
		}
	}
}

// IsCopying reports whether path received a create or write event within
// the quiet period.
func (w *WriteActivity) IsCopying(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	at, ok := w.writes[filepath.Clean(path)]
	return ok && w.now().Sub(at) < w.Quiet
}

// Close stops the watcher. It is safe to call more than once and on a
// tracker without a watcher.
func (w *WriteActivity) Close() error {
	if w.watcher == nil {
		return nil
	}
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		<-w.loopDone
	})
	return err
}
