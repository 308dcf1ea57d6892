package conversions

import "errors"

var (
	ErrNotFound       = errors.New("conversion not found")
	ErrEmptyInput     = errors.New("no input to rewrite")
	ErrRewriteFailed  = errors.New("rewrite stage failed")
	ErrSchemaMismatch = errors.New("extraction response does not match the cv schema")
	ErrValidation     = errors.New("cv validation failed")
	ErrNotRetryable   = errors.New("conversion is not in a failed state")
	ErrNoCV           = errors.New("conversion has no structured cv")
)

// User-visible error codes, recorded on failed conversions and used in
// HTTP error envelopes.
const (
	ErrorCodeEmptyInput       = "EMPTY_INPUT"
	ErrorCodeRewriteFailed    = "REWRITE_FAILED"
	ErrorCodeSchemaMismatch   = "SCHEMA_MISMATCH"
	ErrorCodeValidationFailed = "VALIDATION_FAILED"
	ErrorCodeTemplateMismatch = "TEMPLATE_MISMATCH"
	ErrorCodeInternal         = "INTERNAL"
)
