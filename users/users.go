package users

import (
	"fmt"
	"time"

	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-portal-sessions/tabs"
)

// User is a portal account known to the auth backend. Accounts list the
// roles they may sign in as; a rider-only account cannot open the driver or
// admin portals.
type User struct {
	ID           string      `json:"id,omitempty"`    // Unique identifier for the user
	Email        string      `json:"email,omitempty"` // User's email address
	Name         string      `json:"name,omitempty"`  // Display name
	PasswordHash string      `json:"-"`               // Hashed version of the user's password - never serialize
	Roles        []tabs.Role `json:"roles,omitempty"` // Roles this account may assume
	DateJoined   time.Time   `json:"date_joined,omitempty"`
	LastLogin    time.Time   `json:"last_login,omitempty"`
	Blocked      bool        `json:"blocked,omitempty"` // Blocked, has the user been blocked from logging in
}

// HasRole returns true if the account may sign in as role.
func (u *User) HasRole(role tabs.Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Profile returns the snapshot of the account handed to tabs on login.
func (u *User) Profile() tabs.Profile {
	return tabs.Profile{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
	}
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
