package deletion

import "errors"

var (
	// ErrNotFound indicates a record or account that is already gone. Steps
	// racing the alternate trigger path treat it as success.
	ErrNotFound = errors.New("record not found")
	// ErrMissingUsername indicates a required username was absent.
	ErrMissingUsername = errors.New("username is required")
)
