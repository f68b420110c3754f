package auth

import "errors"

var (
	ErrNoActiveSession    = errors.New("no active session")
	ErrBackendUnavailable = errors.New("authentication service unavailable, please try again")
)
