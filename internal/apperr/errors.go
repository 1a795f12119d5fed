// Package apperr defines the error taxonomy shared across services.
package apperr

import "errors"

var (
	// ErrNotFound marks unknown paths or note ids, including tombstoned records.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks auth failures: unknown key, invalid or expired
	// challenge or token, signature mismatch.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation marks malformed input such as an unparseable public key.
	ErrValidation = errors.New("validation failed")
)
