package documents

import "errors"

var (
	// ErrNotFound reports a document that does not exist for the user.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidInput reports a malformed upload request.
	ErrInvalidInput = errors.New("invalid document input")
)
