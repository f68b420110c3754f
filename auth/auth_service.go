package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-portal-sessions/tabs"
)

// RoleService is the only component that mutates a tab's (role, user, token)
// triple. It talks to the external auth backend and keeps the shared store's
// role bookkeeping, under the rule that at most one tab holds a given
// non-none role at a time.
//
// The exclusivity bookkeeping is advisory: it drives the dashboard's
// disabled-role hints, not a security boundary. The backend decides whether
// a role/credential pair may actually be used (see LoginAsRole).
type RoleService struct {
	repo    tabs.Repo
	backend Backend
	logger  zerolog.Logger
	nowTime func() time.Time
}

// RoleServiceOption defines a function type to modify the RoleService instance.
type RoleServiceOption func(*RoleService)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) RoleServiceOption {
	return func(rs *RoleService) {
		rs.nowTime = nowFunc
	}
}

// WithLogger sets the service's logger.
func WithLogger(logger zerolog.Logger) RoleServiceOption {
	return func(rs *RoleService) {
		rs.logger = logger
	}
}

// NewRoleService initializes a RoleService with required dependencies.
func NewRoleService(repo tabs.Repo, backend Backend, options ...RoleServiceOption) (*RoleService, error) {
	if repo == nil {
		return nil, errors.New("[NewRoleService] repo is required")
	}
	if backend == nil {
		return nil, errors.New("[NewRoleService] backend is required")
	}

	rs := &RoleService{
		repo:    repo,
		backend: backend,
		logger:  zerolog.Nop(),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(rs)
	}
	return rs, nil
}

// LoginAsRole authenticates the calling tab against the backend and, on
// success, writes the (role, user, token) triple into the tab's record.
//
// There is deliberately no client-side exclusivity check before the backend
// call: a second tab asking for an in-use role still reaches the backend,
// which is expected to reject it. On any failure the tab's record is left
// unchanged.
func (rs *RoleService) LoginAsRole(ctx context.Context, tabID, email, password string, role tabs.Role) (tabs.TabRecord, error) {
	if role == tabs.RoleNone {
		return tabs.TabRecord{}, errors.New("[RoleService.LoginAsRole] cannot sign in as role none")
	}

	user, token, err := rs.backend.Login(ctx, email, password, role)
	if err != nil {
		return tabs.TabRecord{}, rs.backendErr("login", err)
	}

	record, err := rs.updateRecord(ctx, tabID, func(record *tabs.TabRecord) {
		record.Role = role
		record.User = &user
		record.Token = token
	})
	if err != nil {
		return tabs.TabRecord{}, errors.Wrap(err, "[RoleService.LoginAsRole]")
	}

	if err := rs.repo.SetActiveToken(ctx, token); err != nil {
		return tabs.TabRecord{}, errors.Wrap(err, "[RoleService.LoginAsRole] SetActiveToken")
	}
	return record, nil
}

// SwitchRole exchanges the calling tab's token for one bound to the target
// role. The tab must already hold a session; the user snapshot is kept.
func (rs *RoleService) SwitchRole(ctx context.Context, tabID string, target tabs.Role) (tabs.TabRecord, error) {
	if target == tabs.RoleNone {
		return tabs.TabRecord{}, errors.New("[RoleService.SwitchRole] cannot switch to role none")
	}

	current, err := rs.Get(ctx, tabID)
	if err != nil {
		return tabs.TabRecord{}, errors.Wrap(err, "[RoleService.SwitchRole]")
	}
	if current.Token == "" {
		return tabs.TabRecord{}, ErrNoActiveSession
	}

	role, token, err := rs.backend.SwitchRole(ctx, current.Token, target)
	if err != nil {
		return tabs.TabRecord{}, rs.backendErr("switch-role", err)
	}

	record, err := rs.updateRecord(ctx, tabID, func(record *tabs.TabRecord) {
		record.Role = role
		record.Token = token
	})
	if err != nil {
		return tabs.TabRecord{}, errors.Wrap(err, "[RoleService.SwitchRole]")
	}

	if err := rs.repo.SetActiveToken(ctx, token); err != nil {
		return tabs.TabRecord{}, errors.Wrap(err, "[RoleService.SwitchRole] SetActiveToken")
	}
	return record, nil
}

// Logout clears the calling tab's triple. Purely a local state clear; no
// backend call is made and the operation always succeeds for a known tab.
// Other tabs' records are untouched.
func (rs *RoleService) Logout(ctx context.Context, tabID string) error {
	records, err := rs.repo.ReadAll(ctx)
	if err != nil {
		return errors.Wrap(err, "[RoleService.Logout] ReadAll")
	}
	record, ok := records[tabID]
	if !ok {
		return nil
	}
	previousToken := record.Token

	record.Role = tabs.RoleNone
	record.User = nil
	record.Token = ""
	record.LastActiveAt = rs.nowTime()
	records[tabID] = record

	if err := rs.repo.WriteAll(ctx, records); err != nil {
		return errors.Wrap(err, "[RoleService.Logout] WriteAll")
	}

	// Drop the ambient token only if this tab owned it; another tab's later
	// login may have replaced it already.
	if previousToken != "" {
		active, err := rs.repo.ActiveToken(ctx)
		if err != nil {
			return errors.Wrap(err, "[RoleService.Logout] ActiveToken")
		}
		if active == previousToken {
			if err := rs.repo.SetActiveToken(ctx, ""); err != nil {
				return errors.Wrap(err, "[RoleService.Logout] SetActiveToken")
			}
		}
	}
	return nil
}

// Get returns the current record for tabID.
func (rs *RoleService) Get(ctx context.Context, tabID string) (tabs.TabRecord, error) {
	records, err := rs.repo.ReadAll(ctx)
	if err != nil {
		return tabs.TabRecord{}, errors.Wrap(err, "ReadAll")
	}
	record, ok := records[tabID]
	if !ok {
		return tabs.TabRecord{}, tabs.ErrTabNotFound
	}
	return record, nil
}

// IsRoleAvailable reports whether no tab in the current snapshot holds role.
// Pure read; stale records from crashed tabs count as holding their role
// until swept.
func (rs *RoleService) IsRoleAvailable(ctx context.Context, role tabs.Role) (bool, error) {
	records, err := rs.repo.ReadAll(ctx)
	if err != nil {
		return false, errors.Wrap(err, "[RoleService.IsRoleAvailable] ReadAll")
	}
	for _, record := range records {
		if record.Role == role && role != tabs.RoleNone {
			return false, nil
		}
	}
	return true, nil
}

// AvailableRoles returns the assignable roles not currently held by any tab.
func (rs *RoleService) AvailableRoles(ctx context.Context) ([]tabs.Role, error) {
	records, err := rs.repo.ReadAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[RoleService.AvailableRoles] ReadAll")
	}
	inUse := make(map[tabs.Role]bool)
	for _, record := range records {
		if record.Role != tabs.RoleNone {
			inUse[record.Role] = true
		}
	}
	available := make([]tabs.Role, 0, len(tabs.AssignableRoles()))
	for _, role := range tabs.AssignableRoles() {
		if !inUse[role] {
			available = append(available, role)
		}
	}
	return available, nil
}

// updateRecord applies mutate to the tab's entry in a full-map
// read-modify-write, stamping LastActiveAt.
func (rs *RoleService) updateRecord(ctx context.Context, tabID string, mutate func(*tabs.TabRecord)) (tabs.TabRecord, error) {
	records, err := rs.repo.ReadAll(ctx)
	if err != nil {
		return tabs.TabRecord{}, errors.Wrap(err, "ReadAll")
	}
	record, ok := records[tabID]
	if !ok {
		return tabs.TabRecord{}, tabs.ErrTabNotFound
	}

	mutate(&record)
	record.LastActiveAt = rs.nowTime()
	records[tabID] = record

	if err := rs.repo.WriteAll(ctx, records); err != nil {
		return tabs.TabRecord{}, errors.Wrap(err, "WriteAll")
	}
	return record, nil
}

// backendErr passes backend rejections through verbatim and normalizes
// transport failures to a generic message so raw network errors never reach
// the user. The original failure is logged.
func (rs *RoleService) backendErr(op string, err error) error {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return err
	}
	rs.logger.Err(err).Str("operation", op).Msg("auth backend request failed")
	return ErrBackendUnavailable
}
