package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-portal-sessions/auth"
	"github.com/jrsteele09/go-portal-sessions/authapi"
	"github.com/jrsteele09/go-portal-sessions/notify"
	"github.com/jrsteele09/go-portal-sessions/server"
	"github.com/jrsteele09/go-portal-sessions/stubauth"
	"github.com/jrsteele09/go-portal-sessions/tabs"
	"github.com/jrsteele09/go-portal-sessions/tabs/repofakes"
	fakeuserrepo "github.com/jrsteele09/go-portal-sessions/users/repofake"
)

const (
	janeEmail    = "jane@example.com"
	janePassword = "Jane-Pass-1"
	bobEmail     = "bob@example.com"
	bobPassword  = "Bob-Pass-11"
)

type testFixture struct {
	store   *repofakes.FakeTabStore
	repo    tabs.Repo
	portal  *httptest.Server
	backend *httptest.Server
	watcher *notify.Watcher
}

type tabEnvelope struct {
	Success bool           `json:"success"`
	Tab     tabs.TabRecord `json:"tab"`
	Error   string         `json:"error"`
}

type tabsListEnvelope struct {
	Success        bool             `json:"success"`
	Tabs           []tabs.TabRecord `json:"tabs"`
	AvailableRoles []tabs.Role      `json:"availableRoles"`
}

type statusEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// setupTestFixture wires the full stack: stub auth backend, backend client,
// shared tab store, role service, watcher and the dashboard server.
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	stub, err := stubauth.New(fakeuserrepo.NewFakeUserRepo(), []byte("test-secret"))
	require.NoError(t, err)
	require.NoError(t, stub.AddUser(janeEmail, "Jane Doe", janePassword, tabs.RoleRider, tabs.RoleDriver, tabs.RoleAdmin))
	require.NoError(t, stub.AddUser(bobEmail, "Bob Roe", bobPassword, tabs.RoleRider))
	backend := httptest.NewServer(stub)
	t.Cleanup(backend.Close)

	store := repofakes.NewFakeTabStore()
	repo := store.Open()

	manager, err := tabs.NewManager(repo)
	require.NoError(t, err)
	roles, err := auth.NewRoleService(repo, authapi.NewClient(backend.URL))
	require.NoError(t, err)
	watcher, err := notify.NewWatcher(context.Background(), repo)
	require.NoError(t, err)
	t.Cleanup(watcher.Close)

	handler, err := server.New(manager, roles, watcher)
	require.NoError(t, err)
	portal := httptest.NewServer(handler)
	t.Cleanup(portal.Close)

	return &testFixture{
		store:   store,
		repo:    repo,
		portal:  portal,
		backend: backend,
		watcher: watcher,
	}
}

func (f *testFixture) request(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, f.portal.URL+path, &payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *testFixture) registerTab(t *testing.T) string {
	t.Helper()

	var envelope tabEnvelope
	status := f.request(t, http.MethodPost, "/api/tabs", nil, &envelope)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, envelope.Success)
	require.NotEmpty(t, envelope.Tab.TabID)
	return envelope.Tab.TabID
}

func (f *testFixture) loginTab(t *testing.T, tabID, email, password string, role tabs.Role) tabEnvelope {
	t.Helper()

	var envelope tabEnvelope
	status := f.request(t, http.MethodPost, "/api/tabs/"+tabID+"/login", map[string]string{
		"email":    email,
		"password": password,
		"role":     string(role),
	}, &envelope)
	require.Equal(t, http.StatusOK, status)
	require.True(t, envelope.Success)
	return envelope
}

func TestRegisterTab_GeneratedAndSuppliedIDs(t *testing.T) {
	f := setupTestFixture(t)

	generated := f.registerTab(t)
	require.NotEmpty(t, generated)

	var envelope tabEnvelope
	status := f.request(t, http.MethodPost, "/api/tabs", map[string]string{"tabId": "tab-from-client"}, &envelope)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "tab-from-client", envelope.Tab.TabID)
	require.Equal(t, tabs.RoleNone, envelope.Tab.Role)
}

func TestGetTab_NotFound(t *testing.T) {
	f := setupTestFixture(t)

	var envelope statusEnvelope
	status := f.request(t, http.MethodGet, "/api/tabs/no-such-tab", nil, &envelope)
	require.Equal(t, http.StatusNotFound, status)
	require.False(t, envelope.Success)
	require.NotEmpty(t, envelope.Error)
}

func TestLoginFlow(t *testing.T) {
	f := setupTestFixture(t)
	tabID := f.registerTab(t)

	envelope := f.loginTab(t, tabID, janeEmail, janePassword, tabs.RoleRider)
	require.Equal(t, tabs.RoleRider, envelope.Tab.Role)
	require.NotNil(t, envelope.Tab.User)
	require.Equal(t, janeEmail, envelope.Tab.User.Email)
	require.NotEmpty(t, envelope.Tab.Token)

	// The record is visible in the aggregated listing, and the role is no
	// longer offered.
	var listing tabsListEnvelope
	status := f.request(t, http.MethodGet, "/api/tabs", nil, &listing)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, listing.Tabs, 1)
	require.Equal(t, tabs.RoleRider, listing.Tabs[0].Role)
	require.Equal(t, []tabs.Role{tabs.RoleDriver, tabs.RoleAdmin}, listing.AvailableRoles)
}

func TestLogin_BadCredentialsPassThrough(t *testing.T) {
	f := setupTestFixture(t)
	tabID := f.registerTab(t)

	var envelope statusEnvelope
	status := f.request(t, http.MethodPost, "/api/tabs/"+tabID+"/login", map[string]string{
		"email":    janeEmail,
		"password": "Wrong-Pass-1",
		"role":     "rider",
	}, &envelope)

	require.Equal(t, http.StatusUnauthorized, status)
	require.False(t, envelope.Success)
	require.Equal(t, "invalid email or password", envelope.Error)
}

func TestLogin_RoleConflictAcrossTabs(t *testing.T) {
	f := setupTestFixture(t)
	first := f.registerTab(t)
	second := f.registerTab(t)

	f.loginTab(t, first, janeEmail, janePassword, tabs.RoleRider)

	var envelope statusEnvelope
	status := f.request(t, http.MethodPost, "/api/tabs/"+second+"/login", map[string]string{
		"email":    bobEmail,
		"password": bobPassword,
		"role":     "rider",
	}, &envelope)

	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "role rider is already in use", envelope.Error)
}

func TestLogin_UnknownRole(t *testing.T) {
	f := setupTestFixture(t)
	tabID := f.registerTab(t)

	var envelope statusEnvelope
	status := f.request(t, http.MethodPost, "/api/tabs/"+tabID+"/login", map[string]string{
		"email":    janeEmail,
		"password": janePassword,
		"role":     "superuser",
	}, &envelope)

	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "unknown role", envelope.Error)
}

func TestSwitchRoleFlow(t *testing.T) {
	f := setupTestFixture(t)
	tabID := f.registerTab(t)
	before := f.loginTab(t, tabID, janeEmail, janePassword, tabs.RoleRider)

	var envelope tabEnvelope
	status := f.request(t, http.MethodPost, "/api/tabs/"+tabID+"/switch-role", map[string]string{
		"targetRole": "driver",
	}, &envelope)

	require.Equal(t, http.StatusOK, status)
	require.True(t, envelope.Success)
	require.Equal(t, tabs.RoleDriver, envelope.Tab.Role)
	require.Equal(t, before.Tab.User, envelope.Tab.User)
	require.NotEqual(t, before.Tab.Token, envelope.Tab.Token)
}

func TestSwitchRole_WithoutSession(t *testing.T) {
	f := setupTestFixture(t)
	tabID := f.registerTab(t)

	var envelope statusEnvelope
	status := f.request(t, http.MethodPost, "/api/tabs/"+tabID+"/switch-role", map[string]string{
		"targetRole": "driver",
	}, &envelope)

	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "no active session", envelope.Error)
}

func TestLogoutFlow(t *testing.T) {
	f := setupTestFixture(t)
	tabID := f.registerTab(t)
	f.loginTab(t, tabID, janeEmail, janePassword, tabs.RoleAdmin)

	var envelope statusEnvelope
	status := f.request(t, http.MethodPost, "/api/tabs/"+tabID+"/logout", nil, &envelope)
	require.Equal(t, http.StatusOK, status)
	require.True(t, envelope.Success)

	var got tabEnvelope
	status = f.request(t, http.MethodGet, "/api/tabs/"+tabID, nil, &got)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, tabs.RoleNone, got.Tab.Role)
	require.Nil(t, got.Tab.User)
	require.Empty(t, got.Tab.Token)
}

func TestDeregisterTab(t *testing.T) {
	f := setupTestFixture(t)
	tabID := f.registerTab(t)

	var envelope statusEnvelope
	status := f.request(t, http.MethodDelete, "/api/tabs/"+tabID, nil, &envelope)
	require.Equal(t, http.StatusOK, status)
	require.True(t, envelope.Success)

	status = f.request(t, http.MethodGet, "/api/tabs/"+tabID, nil, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestBackendDown_GenericMessage(t *testing.T) {
	f := setupTestFixture(t)
	tabID := f.registerTab(t)
	f.backend.Close()

	var envelope statusEnvelope
	status := f.request(t, http.MethodPost, "/api/tabs/"+tabID+"/login", map[string]string{
		"email":    janeEmail,
		"password": janePassword,
		"role":     "rider",
	}, &envelope)

	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, auth.ErrBackendUnavailable.Error(), envelope.Error)
}

func TestAvailableRolesEndpoint(t *testing.T) {
	f := setupTestFixture(t)
	tabID := f.registerTab(t)
	f.loginTab(t, tabID, janeEmail, janePassword, tabs.RoleDriver)

	var envelope struct {
		Success        bool        `json:"success"`
		AvailableRoles []tabs.Role `json:"availableRoles"`
	}
	status := f.request(t, http.MethodGet, "/api/roles/available", nil, &envelope)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []tabs.Role{tabs.RoleRider, tabs.RoleAdmin}, envelope.AvailableRoles)
}

func TestMutationsRefreshTheWatcher(t *testing.T) {
	f := setupTestFixture(t)
	tabID := f.registerTab(t)

	// The server writes through its own repo handle, which fires no store
	// subscription; the handlers refresh the watcher explicitly.
	snapshot := f.watcher.Snapshot()
	require.Contains(t, snapshot, tabID)

	f.loginTab(t, tabID, janeEmail, janePassword, tabs.RoleRider)
	snapshot = f.watcher.Snapshot()
	require.Equal(t, tabs.RoleRider, snapshot[tabID].Role)
}
