// Package notify keeps a context's in-memory view of the shared tab store
// current. The owning context refreshes synchronously after its own writes;
// changes made elsewhere arrive through the repo subscription. Propagation is
// push-based and fire-and-forget: no polling, no acknowledgement, eventual
// consistency across contexts.
package notify

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-portal-sessions/tabs"
)

// DefaultSubscriberBuffer is the channel buffer handed to subscribers.
// A slow subscriber drops intermediate snapshots rather than blocking the
// publisher; it always ends up observing the latest one.
const DefaultSubscriberBuffer = 8

// Watcher republishes store snapshots to in-context subscribers.
type Watcher struct {
	repo   tabs.Repo
	logger zerolog.Logger

	lock        sync.RWMutex
	current     map[string]tabs.TabRecord
	subscribers map[int]chan map[string]tabs.TabRecord
	nextSubID   int
	unsubscribe func()
	closed      bool
}

// WatcherOption modifies a Watcher instance.
type WatcherOption func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(logger zerolog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher reads the initial snapshot and starts listening for changes made
// through other handles on the same store.
func NewWatcher(ctx context.Context, repo tabs.Repo, options ...WatcherOption) (*Watcher, error) {
	if repo == nil {
		return nil, errors.New("[NewWatcher] repo is required")
	}

	w := &Watcher{
		repo:        repo,
		logger:      zerolog.Nop(),
		subscribers: make(map[int]chan map[string]tabs.TabRecord),
	}
	for _, opt := range options {
		opt(w)
	}

	records, err := repo.ReadAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[NewWatcher] ReadAll")
	}
	w.current = records

	w.unsubscribe = repo.Subscribe(w.publish)
	return w, nil
}

// Snapshot returns the last observed tab map.
func (w *Watcher) Snapshot() map[string]tabs.TabRecord {
	w.lock.RLock()
	defer w.lock.RUnlock()
	return w.current
}

// Refresh re-reads the store and republishes. The owning context calls this
// after its own writes, since those never fire the repo subscription.
func (w *Watcher) Refresh(ctx context.Context) error {
	records, err := w.repo.ReadAll(ctx)
	if err != nil {
		return errors.Wrap(err, "[Watcher.Refresh] ReadAll")
	}
	w.publish(records)
	return nil
}

// Subscribe returns a channel receiving every published snapshot and a cancel
// function. The channel is closed on cancel or watcher Close.
func (w *Watcher) Subscribe() (<-chan map[string]tabs.TabRecord, func()) {
	w.lock.Lock()
	defer w.lock.Unlock()

	ch := make(chan map[string]tabs.TabRecord, DefaultSubscriberBuffer)
	id := w.nextSubID
	w.nextSubID++
	w.subscribers[id] = ch

	return ch, func() {
		w.lock.Lock()
		defer w.lock.Unlock()
		if sub, ok := w.subscribers[id]; ok {
			delete(w.subscribers, id)
			close(sub)
		}
	}
}

// Close stops listening and closes all subscriber channels.
func (w *Watcher) Close() {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
	for id, ch := range w.subscribers {
		delete(w.subscribers, id)
		close(ch)
	}
}

// publish stores the snapshot and fans it out. Sends never block: a full
// subscriber sheds its oldest queued snapshot so the latest one lands. The
// lock is held across the sends so a concurrent cancel cannot close a channel
// mid-send; the non-blocking sends keep the critical section short.
func (w *Watcher) publish(records map[string]tabs.TabRecord) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return
	}
	w.current = records

	for _, ch := range w.subscribers {
		select {
		case ch <- records:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- records:
			default:
			}
		}
	}
}
