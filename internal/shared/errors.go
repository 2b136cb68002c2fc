package shared

import "errors"

// Sentinel errors shared across modules. Module-specific failures such as
// insufficient ingredient balances carry their own typed errors.
var (
	// ErrNotFound reports a missing row, for example an ingredient or
	// recipe that was deleted from master data.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials reports a failed staff login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing reports a form post without a csrf_token field.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch reports a csrf_token that does not match the
	// session's token.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
