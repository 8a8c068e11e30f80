package thumbnail

import "sync"

// EventKind identifies a cache lifecycle notification.
type EventKind int

const (
	// EventCreated fires after a thumbnail was written to its size directory.
	EventCreated EventKind = iota
	// EventChanged fires after a thumbnail was written (NewPath set) or a
	// stale one was removed (NewPath empty).
	EventChanged
	// EventFailed fires when generation produced a fail marker.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventChanged:
		return "changed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Path is the source file.
type Event struct {
	Kind    EventKind
	Path    string
	NewPath string
}

type subscriber struct {
	id int
	fn func(Event)
}

// Notifier fans events out to subscribers on the emitting goroutine, in
// subscription order.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscriber
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn func(Event)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs = append(n.subs, subscriber{id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, s := range n.subs {
				if s.id == id {
					n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (n *Notifier) emit(e Event) {
	n.mu.RLock()
	subs := make([]subscriber, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	for _, s := range subs {
		s.fn(e)
	}
}
