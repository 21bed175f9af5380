package metadata

import "errors"

// Sentinel errors returned by Store implementations. Driver-specific
// failures are mapped onto these so callers can branch with errors.Is.
var (
	// ErrNodeNotFound is returned when a node does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrFileNotFound is returned when a stored file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrChunkNotFound is returned when a chunk does not exist.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrPendingNotFound is returned when a pending replication row
	// does not exist (typically: another drainer already claimed it).
	ErrPendingNotFound = errors.New("pending replication not found")

	// ErrConflict is returned when an insert or update loses a race on a
	// unique constraint. Callers treat it as "lost the race" control flow
	// and re-read the winning row.
	ErrConflict = errors.New("metadata conflict")

	// ErrNoActiveNodes is returned by primary election when no node has
	// administrative status active.
	ErrNoActiveNodes = errors.New("no active nodes")

	// ErrInvalidStatus is returned when a status value is not one of the
	// recognized constants.
	ErrInvalidStatus = errors.New("invalid status")
)
