// Package dial provides the production backend.Dialer: it selects the
// protocol client from a node's backend kind and caches one client per
// node connection.
package dial

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/shardstore/pkg/backend"
	"github.com/marmos91/shardstore/pkg/backend/minio"
	"github.com/marmos91/shardstore/pkg/backend/s3"
	"github.com/marmos91/shardstore/pkg/metadata"
)

// Dialer builds and caches protocol clients per node.
type Dialer struct {
	probeTimeout time.Duration

	mu      sync.Mutex
	clients map[string]backend.Client
}

// New creates a dialer. probeTimeout bounds every health probe issued by
// the clients it hands out; zero selects the client default (3s).
func New(probeTimeout time.Duration) *Dialer {
	return &Dialer{
		probeTimeout: probeTimeout,
		clients:      make(map[string]backend.Client),
	}
}

// Dial returns the client for a node, creating it on first use. Clients
// are cached by the node's connection fingerprint, so credential or
// address changes produce a fresh client.
func (d *Dialer) Dial(ctx context.Context, node *metadata.Node) (backend.Client, error) {
	key := fmt.Sprintf("%d|%s|%s|%s|%t|%s",
		node.ID, node.Backend, node.Address, node.AccessKey, node.UseSSL, node.Bucket)

	d.mu.Lock()
	defer d.mu.Unlock()

	if client, ok := d.clients[key]; ok {
		return client, nil
	}

	client, err := d.build(ctx, node)
	if err != nil {
		return nil, err
	}
	d.clients[key] = client
	return client, nil
}

func (d *Dialer) build(ctx context.Context, node *metadata.Node) (backend.Client, error) {
	switch node.Backend {
	case metadata.BackendMinIO, "":
		return minio.New(minio.Config{
			Address:      node.Address,
			AccessKey:    node.AccessKey,
			SecretKey:    node.SecretKey,
			UseSSL:       node.UseSSL,
			ProbeTimeout: d.probeTimeout,
		})

	case metadata.BackendS3:
		scheme := "http"
		if node.UseSSL {
			scheme = "https"
		}
		return s3.NewFromConfig(ctx, s3.Config{
			Endpoint:       fmt.Sprintf("%s://%s", scheme, node.Address),
			AccessKey:      node.AccessKey,
			SecretKey:      node.SecretKey,
			ForcePathStyle: true,
			ProbeTimeout:   d.probeTimeout,
		})

	default:
		return nil, fmt.Errorf("unsupported backend kind %q for node %s", node.Backend, node.Name)
	}
}

var _ backend.Dialer = (*Dialer)(nil)
