package backend

import "errors"

// Error kinds every Client implementation maps its failures onto.
// Callers branch with errors.Is; anything not wrapped in one of these
// counts as "other" and is surfaced as-is.
var (
	// ErrUnavailable means the node did not answer (connection refused,
	// timeout, 5xx). The operation may succeed later.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrNotFound means the bucket or object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrIntegrity means the backend refused or failed a checksummed
	// transfer, or returned bytes that do not match their digest.
	ErrIntegrity = errors.New("backend integrity error")
)
