// Package memory provides an in-memory backend.Client for testing, with
// failure and corruption injection. A Hub holds one client per node
// address and doubles as the backend.Dialer tests hand to the engine.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/shardstore/pkg/backend"
	"github.com/marmos91/shardstore/pkg/metadata"
)

// Client is an in-memory implementation of backend.Client.
type Client struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	down    bool

	// putErr, when set, fails the next PutObject calls.
	putErr error
}

// NewClient creates an empty in-memory client.
func NewClient() *Client {
	return &Client{buckets: make(map[string]map[string][]byte)}
}

// SetDown marks the node unreachable: every operation, including the
// health probe, fails with backend.ErrUnavailable until SetUp.
func (c *Client) SetDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = true
}

// SetUp brings the node back online.
func (c *Client) SetUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = false
}

// FailPuts makes subsequent PutObject calls return err (nil to clear).
func (c *Client) FailPuts(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putErr = err
}

// CorruptObject overwrites an object's bytes in place, simulating silent
// on-disk corruption. Returns false if the object does not exist.
func (c *Client) CorruptObject(bucket, key string, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	objects, ok := c.buckets[bucket]
	if !ok {
		return false
	}
	if _, ok := objects[key]; !ok {
		return false
	}
	objects[key] = bytes.Clone(data)
	return true
}

// DeleteObject removes an object without going through the client API,
// simulating external deletion. Returns false if it did not exist.
func (c *Client) DeleteObject(bucket, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	objects, ok := c.buckets[bucket]
	if !ok {
		return false
	}
	if _, ok := objects[key]; !ok {
		return false
	}
	delete(objects, key)
	return true
}

// ObjectCount returns the number of objects across all buckets.
func (c *Client) ObjectCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, objects := range c.buckets {
		n += len(objects)
	}
	return n
}

func (c *Client) PutObject(ctx context.Context, bucket, key string, reader io.Reader, length int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	down, putErr := c.down, c.putErr
	c.mu.Unlock()
	if down {
		return fmt.Errorf("put %s/%s: %w", bucket, key, backend.ErrUnavailable)
	}
	if putErr != nil {
		return putErr
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read put body: %w", err)
	}
	if length >= 0 && int64(len(data)) != length {
		return fmt.Errorf("put %s/%s: body length %d != declared %d: %w",
			bucket, key, len(data), length, backend.ErrIntegrity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	objects, ok := c.buckets[bucket]
	if !ok {
		objects = make(map[string][]byte)
		c.buckets[bucket] = objects
	}
	objects[key] = data
	return nil
}

func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.down {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, backend.ErrUnavailable)
	}

	objects, ok := c.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, backend.ErrNotFound)
	}
	data, ok := objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, backend.ErrNotFound)
	}

	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.down {
		return false, fmt.Errorf("stat %s/%s: %w", bucket, key, backend.ErrUnavailable)
	}

	objects, ok := c.buckets[bucket]
	if !ok {
		return false, nil
	}
	_, ok = objects[key]
	return ok, nil
}

func (c *Client) RemoveObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.down {
		return fmt.Errorf("remove %s/%s: %w", bucket, key, backend.ErrUnavailable)
	}

	if objects, ok := c.buckets[bucket]; ok {
		delete(objects, key)
	}
	return nil
}

func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.down {
		return fmt.Errorf("ensure bucket %s: %w", bucket, backend.ErrUnavailable)
	}

	if _, ok := c.buckets[bucket]; !ok {
		c.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (c *Client) HealthReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.down {
		return fmt.Errorf("ready probe: %w", backend.ErrUnavailable)
	}
	return nil
}

// Hub hands out one shared Client per node address, so the engine and
// the test observe the same objects.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Dial returns the client for the node's address, creating it on first
// use. Implements backend.Dialer.
func (h *Hub) Dial(ctx context.Context, node *metadata.Node) (backend.Client, error) {
	return h.Node(node.Address), nil
}

// Node returns the client for an address, creating it on first use.
// Tests use this to inject failures and inspect stored objects.
func (h *Hub) Node(address string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[address]
	if !ok {
		client = NewClient()
		h.clients[address] = client
	}
	return client
}

var (
	_ backend.Client = (*Client)(nil)
	_ backend.Dialer = (*Hub)(nil)
)
