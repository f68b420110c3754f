package tabs

import "errors"

var (
	ErrTabNotFound = errors.New("tab not found")
)
