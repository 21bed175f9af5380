package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/shardstore/pkg/api"
	"github.com/marmos91/shardstore/pkg/api/respond"
	"github.com/marmos91/shardstore/pkg/backend/memory"
	"github.com/marmos91/shardstore/pkg/cluster"
	"github.com/marmos91/shardstore/pkg/filecache"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/metadata/store"
	"github.com/marmos91/shardstore/pkg/redundancy"
	"github.com/marmos91/shardstore/pkg/service"
	"github.com/marmos91/shardstore/pkg/transfer"
)

// newTestServer starts an httptest server over the full router with an
// in-memory store and the given storage nodes.
func newTestServer(t *testing.T, nodes ...string) *httptest.Server {
	t.Helper()

	s, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	hub := memory.NewHub()
	svc := service.New(s, hub, nil, service.Config{
		Chunker:    transfer.ChunkerConfig{ChunkSize: 4, MinAvailableNodes: 1},
		Redundancy: redundancy.Config{MinReplicas: 1},
		Monitor: cluster.MonitorConfig{
			ProbeTimeout: time.Second,
			LoadStatsTTL: time.Millisecond,
		},
		Cache: filecache.Config{MaxFileSize: 1024},
	})

	for i, address := range nodes {
		_, err := svc.AddNode(context.Background(), cluster.AddNodeParams{
			Name:     address,
			Address:  address,
			Bucket:   "chunks",
			Backend:  metadata.BackendMemory,
			Priority: 100 + i,
		})
		require.NoError(t, err)
	}

	srv := httptest.NewServer(api.NewRouter(svc, nil))
	t.Cleanup(srv.Close)
	return srv
}

// doJSON sends a request with an optional JSON body and decodes the
// standard response envelope.
func doJSON(t *testing.T, method, url string, body interface{}) (int, respond.Response) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope respond.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope
}

// uploadFile posts a multipart upload and returns the created file ID.
func uploadFile(t *testing.T, baseURL, name, content string) string {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("name", name))
	require.NoError(t, writer.WriteField("owner", "alice"))
	part, err := writer.CreateFormFile("file", name+".txt")
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := http.Post(baseURL+"/api/v1/files", writer.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var envelope struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NotEmpty(t, envelope.Data.ID)
	return envelope.Data.ID
}

func TestLiveness(t *testing.T) {
	srv := newTestServer(t)

	code, envelope := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", envelope.Status)
}

func TestReadiness(t *testing.T) {
	srv := newTestServer(t)

	code, envelope := doJSON(t, http.MethodGet, srv.URL+"/health/ready", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", envelope.Status)
}

func TestNodeLifecycle(t *testing.T) {
	srv := newTestServer(t)

	// Register a node.
	code, envelope := doJSON(t, http.MethodPost, srv.URL+"/api/v1/nodes", map[string]interface{}{
		"name":       "n1",
		"address":    "n1",
		"bucket":     "chunks",
		"backend":    "memory",
		"access_key": "key",
		"secret_key": "secret",
	})
	require.Equal(t, http.StatusCreated, code)

	node, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "n1", node["name"])
	// Credentials are never echoed back.
	assert.NotContains(t, node, "access_key")
	assert.NotContains(t, node, "secret_key")

	// Duplicate names are rejected.
	code, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/nodes", map[string]interface{}{
		"name":    "n1",
		"address": "n1",
		"bucket":  "chunks",
		"backend": "memory",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	// The node shows up in the listing.
	code, envelope = doJSON(t, http.MethodGet, srv.URL+"/api/v1/nodes", nil)
	require.Equal(t, http.StatusOK, code)
	listed, ok := envelope.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, listed, 1)

	// Elect it primary.
	code, envelope = doJSON(t, http.MethodPost, srv.URL+"/api/v1/nodes/elect", nil)
	require.Equal(t, http.StatusOK, code)
	elected, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, elected["is_primary"])
}

func TestNodeSetStatus(t *testing.T) {
	srv := newTestServer(t, "n1")

	code, _ := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/nodes/1/status",
		map[string]string{"status": "maintenance"})
	assert.Equal(t, http.StatusOK, code)

	code, envelope := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/nodes/1/status",
		map[string]string{"status": "broken"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", envelope.Status)

	code, _ = doJSON(t, http.MethodPatch, srv.URL+"/api/v1/nodes/not-a-number/status",
		map[string]string{"status": "active"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doJSON(t, http.MethodPatch, srv.URL+"/api/v1/nodes/99/status",
		map[string]string{"status": "active"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestFileUploadAndDownload(t *testing.T) {
	srv := newTestServer(t, "n1", "n2")

	payload := "the quick brown fox"
	fileID := uploadFile(t, srv.URL, "fox", payload)

	// Metadata lookup.
	code, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/files/"+fileID, nil)
	require.Equal(t, http.StatusOK, code)
	meta, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "fox", meta["display_name"])

	// Content download.
	resp, err := http.Get(srv.URL + "/api/v1/files/" + fileID + "/content")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "fox.txt")

	// Listing includes the file.
	code, envelope = doJSON(t, http.MethodGet, srv.URL+"/api/v1/files", nil)
	require.Equal(t, http.StatusOK, code)
	files, ok := envelope.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, files, 1)
}

func TestFileNotFound(t *testing.T) {
	srv := newTestServer(t, "n1")

	code, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/files/no-such-file", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", envelope.Status)

	code, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/files/no-such-file/content", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestFileDelete(t *testing.T) {
	srv := newTestServer(t, "n1")

	fileID := uploadFile(t, srv.URL, "doomed", "data")

	code, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/files/"+fileID, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/files/"+fileID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestFileUpload_RejectsNonMultipart(t *testing.T) {
	srv := newTestServer(t, "n1")

	resp, err := http.Post(srv.URL+"/api/v1/files", "application/json",
		strings.NewReader(`{"name":"f"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFileUpload_NoNodesAvailable(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "f.txt")
	require.NoError(t, err)
	_, err = io.WriteString(part, "data")
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := http.Post(srv.URL+"/api/v1/files", writer.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestFileHealthAndIntegrity(t *testing.T) {
	srv := newTestServer(t, "n1", "n2")

	fileID := uploadFile(t, srv.URL, "f", "hello world")

	code, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/files/"+fileID+"/health", nil)
	require.Equal(t, http.StatusOK, code)
	report, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "healthy", report["status"])

	code, envelope = doJSON(t, http.MethodGet, srv.URL+"/api/v1/files/"+fileID+"/integrity", nil)
	require.Equal(t, http.StatusOK, code)
	integrity, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, integrity["recoverable"])
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, "n1", "n2")

	uploadFile(t, srv.URL, "f", "data")

	code, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/status", nil)
	require.Equal(t, http.StatusOK, code)
	stats, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotNil(t, stats["nodes"])
	assert.NotNil(t, stats["chunks"])
}

func TestAdminEndpoints(t *testing.T) {
	srv := newTestServer(t, "n1", "n2")

	uploadFile(t, srv.URL, "f", "hello world")

	code, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/admin/verify", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/admin/replicas/ensure", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/admin/pending/drain", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/admin/maintain", nil)
	assert.Equal(t, http.StatusOK, code)

	code, envelope := doJSON(t, http.MethodGet, srv.URL+"/api/v1/admin/cache/stats", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, envelope.Data)

	code, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/admin/cache/flush", nil)
	assert.Equal(t, http.StatusOK, code)
}
