package tabs

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Manager owns tab lifecycle: it hands out identities, registers records in
// the shared store and removes them again when a tab goes away. Mutations are
// full-map read-modify-write against the repo.
type Manager struct {
	repo    Repo
	logger  zerolog.Logger
	nowTime func() time.Time
}

// ManagerOption modifies a Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a lifecycle manager over the given repo handle.
func NewManager(repo Repo, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] repo is required")
	}
	m := &Manager{
		repo:    repo,
		logger:  zerolog.Nop(),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Register inserts a fresh unauthenticated record for tabID. Registering an
// ID that is already present resets its record.
func (m *Manager) Register(ctx context.Context, tabID string) (TabRecord, error) {
	if tabID == "" {
		return TabRecord{}, errors.New("[Manager.Register] tabID is required")
	}
	records, err := m.repo.ReadAll(ctx)
	if err != nil {
		return TabRecord{}, errors.Wrap(err, "[Manager.Register] ReadAll")
	}

	now := m.nowTime()
	record := TabRecord{
		TabID:        tabID,
		Role:         RoleNone,
		User:         nil,
		Token:        "",
		CreatedAt:    now,
		LastActiveAt: now,
	}
	records[tabID] = record

	if err := m.repo.WriteAll(ctx, records); err != nil {
		return TabRecord{}, errors.Wrap(err, "[Manager.Register] WriteAll")
	}
	return record, nil
}

// Deregister removes the tab's record. Invoked on the tab's unload signal;
// not guaranteed to run (crashed tabs leak their records until swept).
// Deregistering an unknown ID is a no-op.
func (m *Manager) Deregister(ctx context.Context, tabID string) error {
	records, err := m.repo.ReadAll(ctx)
	if err != nil {
		return errors.Wrap(err, "[Manager.Deregister] ReadAll")
	}
	if _, ok := records[tabID]; !ok {
		return nil
	}
	delete(records, tabID)
	if err := m.repo.WriteAll(ctx, records); err != nil {
		return errors.Wrap(err, "[Manager.Deregister] WriteAll")
	}
	return nil
}

// Get returns the record for tabID.
func (m *Manager) Get(ctx context.Context, tabID string) (TabRecord, error) {
	records, err := m.repo.ReadAll(ctx)
	if err != nil {
		return TabRecord{}, errors.Wrap(err, "[Manager.Get] ReadAll")
	}
	record, ok := records[tabID]
	if !ok {
		return TabRecord{}, ErrTabNotFound
	}
	return record, nil
}

// List returns all records ordered by creation time.
func (m *Manager) List(ctx context.Context) ([]TabRecord, error) {
	records, err := m.repo.ReadAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.List] ReadAll")
	}
	list := make([]TabRecord, 0, len(records))
	for _, record := range records {
		list = append(list, record)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].TabID < list[j].TabID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

// Sweep removes records whose LastActiveAt is older than ttl, bounding the
// growth left behind by tabs that never fired their unload signal. Returns
// the number of records removed.
func (m *Manager) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	records, err := m.repo.ReadAll(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "[Manager.Sweep] ReadAll")
	}
	cutoff := m.nowTime().Add(-ttl)
	removed := 0
	for tabID, record := range records {
		if record.LastActiveAt.Before(cutoff) {
			delete(records, tabID)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := m.repo.WriteAll(ctx, records); err != nil {
		return 0, errors.Wrap(err, "[Manager.Sweep] WriteAll")
	}
	m.logger.Debug().Int("removed", removed).Msg("swept stale tab records")
	return removed, nil
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Sweep(ctx, ttl); err != nil {
					m.logger.Err(err).Msg("tab sweep failed")
				}
			}
		}
	}()
}
