package sessions

import "errors"

var (
	// ErrNotFound reports a session that does not exist or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrWrongPassword reports a failed access-password check.
	ErrWrongPassword = errors.New("wrong or missing access password")
)
