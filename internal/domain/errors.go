package domain

import "errors"

// Error taxonomy shared across services. Handlers map these onto HTTP status
// codes; the event router never broadcasts any of them.
var (
	// ErrValidation marks malformed or empty input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing message or conversation.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an authorization failure on edit or delete.
	ErrForbidden = errors.New("forbidden")

	// ErrStoreUnavailable marks a transient persistence failure. The caller
	// retries the whole action; no partial state survives it.
	ErrStoreUnavailable = errors.New("store unavailable")
)
