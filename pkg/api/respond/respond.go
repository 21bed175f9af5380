// Package respond writes the management API's JSON envelope. It sits
// below the router and the handlers so both can share one response
// shape without depending on each other.
package respond

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the envelope every management endpoint answers with.
//
//   - Status is "ok" or "error" for management calls, "healthy" or
//     "unhealthy" for the probe endpoints
//   - Timestamp is the server-side response time
//   - Data carries the payload: a node view, a file record, sweep
//     stats, a health report
//   - Error carries the failure detail when Status indicates one
type Response struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// JSON writes an envelope with the given HTTP status code and
// Content-Type: application/json.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// The status line is gone already; this is best effort.
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Healthy builds a passing probe envelope.
func Healthy(data interface{}) Response {
	return Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Unhealthy builds a failing probe envelope.
func Unhealthy(errMsg string) Response {
	return Response{
		Status:    "unhealthy",
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}

// OK builds a successful management envelope.
func OK(data interface{}) Response {
	return Response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Error builds a failed management envelope.
func Error(errMsg string) Response {
	return Response{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}
