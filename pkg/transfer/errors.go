package transfer

import "errors"

var (
	// ErrNotEnoughNodes rejects an upload before it starts: fewer nodes
	// are available than the configured minimum for primary + replicas.
	ErrNotEnoughNodes = errors.New("not enough available nodes for upload")

	// ErrMissingChunks means a file's uploaded primary chunk numbers do
	// not form a contiguous 1..N sequence.
	ErrMissingChunks = errors.New("file has missing chunks")

	// ErrUnrecoverable means a chunk could not be read from any copy:
	// every candidate was missing, corrupt, or on an unreachable node.
	ErrUnrecoverable = errors.New("file unrecoverable")
)
