package tabs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role represents the portal a tab is signed into. A browser may hold
// several tabs at once but at most one tab per non-none role.
type Role string

const (
	RoleNone   Role = "none"
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

// AssignableRoles lists the roles a tab can sign in as, in display order.
func AssignableRoles() []Role {
	return []Role{RoleRider, RoleDriver, RoleAdmin}
}

// ParseRole validates a role string coming from a request or a persisted blob.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleRider, RoleDriver, RoleAdmin:
		return Role(s), nil
	case RoleNone:
		return RoleNone, nil
	}
	return RoleNone, fmt.Errorf("unknown role %q", s)
}

// Profile is the snapshot of the authenticated identity held by a tab.
// Field names match the backend's user object and the persisted layout.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TabRecord is the persisted state of one open tab. The JSON field names are
// the compatibility surface of the shared storage blob; do not rename them.
//
// The (Role, User, Token) triple is set and cleared together: Role is
// RoleNone exactly when User is nil and Token is empty.
type TabRecord struct {
	TabID        string    `json:"tabId"`
	Role         Role      `json:"role"`
	User         *Profile  `json:"user"`
	Token        string    `json:"token"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// Authenticated returns true if the tab currently holds a session.
func (r TabRecord) Authenticated() bool {
	return r.Role != RoleNone && r.Token != ""
}

// ConsistentTriple reports whether the record honours the set/cleared-together
// rule for (Role, User, Token).
func (r TabRecord) ConsistentTriple() bool {
	if r.Role == RoleNone {
		return r.User == nil && r.Token == ""
	}
	return r.User != nil && r.Token != ""
}

// NewTabID returns a new tab identifier, unique with overwhelming probability
// across tabs created in the same millisecond. The timestamp component keeps
// IDs roughly sortable for debugging; the random component carries the
// uniqueness. Carries no user information.
func NewTabID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString())
}
