package tabs_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-portal-sessions/tabs"
)

func TestNewTabID_Unique(t *testing.T) {
	const n = 1000

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id := tabs.NewTabID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate tab ID %q", id)
		seen[id] = true
	}
}

func TestParseRole(t *testing.T) {
	for _, role := range tabs.AssignableRoles() {
		parsed, err := tabs.ParseRole(string(role))
		require.NoError(t, err)
		require.Equal(t, role, parsed)
	}

	parsed, err := tabs.ParseRole("none")
	require.NoError(t, err)
	require.Equal(t, tabs.RoleNone, parsed)

	_, err = tabs.ParseRole("superuser")
	require.Error(t, err)

	_, err = tabs.ParseRole("")
	require.Error(t, err)
}

func TestTabRecord_ConsistentTriple(t *testing.T) {
	empty := tabs.TabRecord{TabID: "tab-1", Role: tabs.RoleNone}
	require.True(t, empty.ConsistentTriple())
	require.False(t, empty.Authenticated())

	full := tabs.TabRecord{
		TabID: "tab-1",
		Role:  tabs.RoleRider,
		User:  &tabs.Profile{ID: "user-1", Name: "Jane", Email: "jane@example.com"},
		Token: "token-1",
	}
	require.True(t, full.ConsistentTriple())
	require.True(t, full.Authenticated())

	missingToken := full
	missingToken.Token = ""
	require.False(t, missingToken.ConsistentTriple())

	missingUser := full
	missingUser.User = nil
	require.False(t, missingUser.ConsistentTriple())

	danglingToken := tabs.TabRecord{TabID: "tab-1", Role: tabs.RoleNone, Token: "stale"}
	require.False(t, danglingToken.ConsistentTriple())
}
