package auth

import (
	"context"

	"github.com/jrsteele09/go-portal-sessions/tabs"
)

// Backend is the external authentication service consulted on login and
// role switch. It is the source of truth for whether a role/credential pair
// may be used; the client-side store only keeps advisory bookkeeping.
type Backend interface {
	// Login exchanges credentials and a desired role for a profile and token.
	Login(ctx context.Context, email, password string, role tabs.Role) (tabs.Profile, string, error)

	// SwitchRole exchanges the current token for a token bound to the target
	// role. The profile attached to the session is unchanged.
	SwitchRole(ctx context.Context, token string, target tabs.Role) (tabs.Role, string, error)
}

// RejectionError carries a backend rejection message (bad credentials, role
// already in use, expired token). The message is shown to the user verbatim.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}
