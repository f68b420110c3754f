// Package filerepo persists the shared tab store as JSON files in a
// directory, one file per storage key: sessions.json for the tab map and
// active_token for the process-wide current token.
//
// Handles opened from the same Store notify each other on writes.
// A second process pointed at the same directory shares the persisted state
// but receives no change notifications; use redisrepo where cross-process
// propagation matters.
package filerepo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-portal-sessions/tabs"
)

const (
	sessionsFile = "sessions.json"
	tokenFile    = "active_token"
)

// Store manages the storage directory and the in-process handle registry.
type Store struct {
	dir     string
	lock    sync.RWMutex
	handles []*handle
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "[filerepo.NewStore] mkdir %s", dir)
	}
	return &Store{dir: dir}, nil
}

// Open returns a new handle on the store, representing one tab context.
func (s *Store) Open() tabs.Repo {
	s.lock.Lock()
	defer s.lock.Unlock()

	h := &handle{store: s}
	s.handles = append(s.handles, h)
	return h
}

func (s *Store) readAllLocked() map[string]tabs.TabRecord {
	records := make(map[string]tabs.TabRecord)
	data, err := os.ReadFile(filepath.Join(s.dir, sessionsFile))
	if err != nil {
		return records
	}
	// A corrupt blob reads as empty and self-heals on the next write.
	if err := json.Unmarshal(data, &records); err != nil {
		return make(map[string]tabs.TabRecord)
	}
	return records
}

func (s *Store) writeAllLocked(records map[string]tabs.TabRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[filerepo] marshal records")
	}
	if err := os.WriteFile(filepath.Join(s.dir, sessionsFile), data, 0o644); err != nil {
		return errors.Wrap(err, "[filerepo] write records")
	}
	return nil
}

func (s *Store) notify(origin *handle, snapshot map[string]tabs.TabRecord) {
	s.lock.RLock()
	handles := make([]*handle, len(s.handles))
	copy(handles, s.handles)
	s.lock.RUnlock()

	for _, h := range handles {
		if h == origin {
			continue
		}
		h.publish(snapshot)
	}
}

type handle struct {
	store       *Store
	subLock     sync.Mutex
	subscribers map[int]func(map[string]tabs.TabRecord)
	nextSubID   int
}

var _ tabs.Repo = (*handle)(nil)

func (h *handle) ReadAll(ctx context.Context) (map[string]tabs.TabRecord, error) {
	h.store.lock.RLock()
	defer h.store.lock.RUnlock()
	return h.store.readAllLocked(), nil
}

func (h *handle) WriteAll(ctx context.Context, records map[string]tabs.TabRecord) error {
	h.store.lock.Lock()
	err := h.store.writeAllLocked(records)
	h.store.lock.Unlock()
	if err != nil {
		return err
	}

	h.store.notify(h, records)
	return nil
}

func (h *handle) ActiveToken(ctx context.Context) (string, error) {
	h.store.lock.RLock()
	defer h.store.lock.RUnlock()

	data, err := os.ReadFile(filepath.Join(h.store.dir, tokenFile))
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(string(data)), nil
}

func (h *handle) SetActiveToken(ctx context.Context, token string) error {
	h.store.lock.Lock()
	defer h.store.lock.Unlock()

	path := filepath.Join(h.store.dir, tokenFile)
	if token == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "[filerepo] remove token")
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return errors.Wrap(err, "[filerepo] write token")
	}
	return nil
}

func (h *handle) Subscribe(fn func(map[string]tabs.TabRecord)) func() {
	h.subLock.Lock()
	defer h.subLock.Unlock()

	if h.subscribers == nil {
		h.subscribers = make(map[int]func(map[string]tabs.TabRecord))
	}
	id := h.nextSubID
	h.nextSubID++
	h.subscribers[id] = fn

	return func() {
		h.subLock.Lock()
		defer h.subLock.Unlock()
		delete(h.subscribers, id)
	}
}

func (h *handle) publish(snapshot map[string]tabs.TabRecord) {
	h.subLock.Lock()
	subscribers := make([]func(map[string]tabs.TabRecord), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		subscribers = append(subscribers, fn)
	}
	h.subLock.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}
}
