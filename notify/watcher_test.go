package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-portal-sessions/notify"
	"github.com/jrsteele09/go-portal-sessions/tabs"
	"github.com/jrsteele09/go-portal-sessions/tabs/repofakes"
)

func testRecords(tabIDs ...string) map[string]tabs.TabRecord {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := make(map[string]tabs.TabRecord, len(tabIDs))
	for _, tabID := range tabIDs {
		records[tabID] = tabs.TabRecord{
			TabID:        tabID,
			Role:         tabs.RoleNone,
			CreatedAt:    now,
			LastActiveAt: now,
		}
	}
	return records
}

func receive(t *testing.T, ch <-chan map[string]tabs.TabRecord) map[string]tabs.TabRecord {
	t.Helper()
	select {
	case snapshot, ok := <-ch:
		require.True(t, ok, "channel closed before a snapshot arrived")
		return snapshot
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return nil
	}
}

func TestWatcher_InitialSnapshot(t *testing.T) {
	store := repofakes.NewFakeTabStore()
	ctx := context.Background()

	seed := testRecords("tab-1")
	require.NoError(t, store.Open().WriteAll(ctx, seed))

	watcher, err := notify.NewWatcher(ctx, store.Open())
	require.NoError(t, err)
	defer watcher.Close()

	require.Equal(t, seed, watcher.Snapshot())
}

func TestWatcher_SeesOtherHandlesWrites(t *testing.T) {
	store := repofakes.NewFakeTabStore()
	ctx := context.Background()

	watcher, err := notify.NewWatcher(ctx, store.Open())
	require.NoError(t, err)
	defer watcher.Close()

	updates, cancel := watcher.Subscribe()
	defer cancel()

	want := testRecords("tab-1", "tab-2")
	require.NoError(t, store.Open().WriteAll(ctx, want))

	require.Equal(t, want, receive(t, updates))
	require.Equal(t, want, watcher.Snapshot())
}

func TestWatcher_RefreshPublishesOwnWrites(t *testing.T) {
	store := repofakes.NewFakeTabStore()
	ctx := context.Background()

	repo := store.Open()
	watcher, err := notify.NewWatcher(ctx, repo)
	require.NoError(t, err)
	defer watcher.Close()

	updates, cancel := watcher.Subscribe()
	defer cancel()

	// A write through the watcher's own handle fires no store subscription,
	// so the snapshot is stale until the owner refreshes.
	want := testRecords("tab-1")
	require.NoError(t, repo.WriteAll(ctx, want))
	require.Empty(t, watcher.Snapshot())

	require.NoError(t, watcher.Refresh(ctx))
	require.Equal(t, want, receive(t, updates))
	require.Equal(t, want, watcher.Snapshot())
}

func TestWatcher_CancelClosesChannel(t *testing.T) {
	store := repofakes.NewFakeTabStore()
	watcher, err := notify.NewWatcher(context.Background(), store.Open())
	require.NoError(t, err)
	defer watcher.Close()

	updates, cancel := watcher.Subscribe()
	cancel()

	_, ok := <-updates
	require.False(t, ok)
}

func TestWatcher_CloseClosesAllChannels(t *testing.T) {
	store := repofakes.NewFakeTabStore()
	watcher, err := notify.NewWatcher(context.Background(), store.Open())
	require.NoError(t, err)

	first, _ := watcher.Subscribe()
	second, _ := watcher.Subscribe()

	watcher.Close()

	_, ok := <-first
	require.False(t, ok)
	_, ok = <-second
	require.False(t, ok)

	// Closing twice is safe, as is a write arriving after close.
	watcher.Close()
	require.NoError(t, store.Open().WriteAll(context.Background(), testRecords("tab-1")))
}

func TestWatcher_SlowSubscriberKeepsLatest(t *testing.T) {
	store := repofakes.NewFakeTabStore()
	ctx := context.Background()

	watcher, err := notify.NewWatcher(ctx, store.Open())
	require.NoError(t, err)
	defer watcher.Close()

	updates, cancel := watcher.Subscribe()
	defer cancel()

	writer := store.Open()
	var last map[string]tabs.TabRecord
	for i := 0; i < notify.DefaultSubscriberBuffer*3; i++ {
		last = testRecords(tabs.NewTabID())
		require.NoError(t, writer.WriteAll(ctx, last))
	}

	// Intermediate snapshots may be shed, but the newest one is always
	// queued.
	var got map[string]tabs.TabRecord
	for {
		select {
		case snapshot := <-updates:
			got = snapshot
			continue
		default:
		}
		break
	}
	require.Equal(t, last, got)
}
