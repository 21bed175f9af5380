// Package handlers implements the HTTP handlers for the management API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/shardstore/pkg/api/respond"
	"github.com/marmos91/shardstore/pkg/cluster"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/transfer"
)

// maxRequestBodySize limits JSON request bodies to prevent abuse.
// File uploads use multipart streaming and are not subject to this limit.
const maxRequestBodySize = 1 << 20 // 1 MiB

// decodeJSONBody decodes a JSON request body into dst with a size limit.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// nodeIDParam parses the {id} URL parameter as a node ID.
func nodeIDParam(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q", raw)
	}
	return uint(id), nil
}

// writeError maps a service error to an HTTP status and writes the
// standard error envelope.
func writeError(w http.ResponseWriter, err error) {
	respond.JSON(w, statusForError(err), respond.Error(err.Error()))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, metadata.ErrNodeNotFound),
		errors.Is(err, metadata.ErrFileNotFound),
		errors.Is(err, metadata.ErrChunkNotFound),
		errors.Is(err, metadata.ErrPendingNotFound):
		return http.StatusNotFound
	case errors.Is(err, metadata.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, metadata.ErrNoActiveNodes),
		errors.Is(err, cluster.ErrNoAvailableNodes),
		errors.Is(err, transfer.ErrNotEnoughNodes):
		return http.StatusServiceUnavailable
	case errors.Is(err, transfer.ErrMissingChunks),
		errors.Is(err, transfer.ErrUnrecoverable):
		return http.StatusInternalServerError
	case errors.Is(err, metadata.ErrInvalidStatus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
