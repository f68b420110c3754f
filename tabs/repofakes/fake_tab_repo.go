package repofakes

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-portal-sessions/tabs"
)

// FakeTabStore is an in-memory stand-in for the shared storage medium. Each
// simulated tab opens its own handle; a write through one handle notifies the
// subscribers of every other handle, mirroring how the platform's storage
// change signal fires everywhere except the writing context.
type FakeTabStore struct {
	lock        sync.RWMutex
	records     map[string]tabs.TabRecord
	activeToken string
	handles     []*fakeHandle
}

func NewFakeTabStore() *FakeTabStore {
	return &FakeTabStore{
		records: make(map[string]tabs.TabRecord),
	}
}

// Open returns a new handle on the store, representing one tab context.
func (s *FakeTabStore) Open() tabs.Repo {
	s.lock.Lock()
	defer s.lock.Unlock()

	h := &fakeHandle{store: s}
	s.handles = append(s.handles, h)
	return h
}

func (s *FakeTabStore) snapshotLocked() map[string]tabs.TabRecord {
	return copyRecords(s.records)
}

func (s *FakeTabStore) notify(origin *fakeHandle) {
	s.lock.RLock()
	snapshot := s.snapshotLocked()
	handles := make([]*fakeHandle, len(s.handles))
	copy(handles, s.handles)
	s.lock.RUnlock()

	for _, h := range handles {
		if h == origin {
			continue
		}
		h.publish(snapshot)
	}
}

type fakeHandle struct {
	store       *FakeTabStore
	subLock     sync.Mutex
	subscribers map[int]func(map[string]tabs.TabRecord)
	nextSubID   int
}

var _ tabs.Repo = (*fakeHandle)(nil)

func (h *fakeHandle) ReadAll(ctx context.Context) (map[string]tabs.TabRecord, error) {
	h.store.lock.RLock()
	defer h.store.lock.RUnlock()
	return h.store.snapshotLocked(), nil
}

func (h *fakeHandle) WriteAll(ctx context.Context, records map[string]tabs.TabRecord) error {
	h.store.lock.Lock()
	h.store.records = copyRecords(records)
	h.store.lock.Unlock()

	h.store.notify(h)
	return nil
}

func (h *fakeHandle) ActiveToken(ctx context.Context) (string, error) {
	h.store.lock.RLock()
	defer h.store.lock.RUnlock()
	return h.store.activeToken, nil
}

func (h *fakeHandle) SetActiveToken(ctx context.Context, token string) error {
	h.store.lock.Lock()
	defer h.store.lock.Unlock()
	h.store.activeToken = token
	return nil
}

func (h *fakeHandle) Subscribe(fn func(map[string]tabs.TabRecord)) func() {
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

func (h *fakeHandle) publish(snapshot map[string]tabs.TabRecord) {
	h.subLock.Lock()
	subscribers := make([]func(map[string]tabs.TabRecord), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		subscribers = append(subscribers, fn)
	}
	h.subLock.Unlock()

	for _, fn := range subscribers {
		fn(copyRecords(snapshot))
	}
}

func copyRecords(in map[string]tabs.TabRecord) map[string]tabs.TabRecord {
	out := make(map[string]tabs.TabRecord, len(in))
	for tabID, record := range in {
		if record.User != nil {
			user := *record.User
			record.User = &user
		}
		out[tabID] = record
	}
	return out
}
