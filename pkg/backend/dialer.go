package backend

import (
	"context"

	"github.com/marmos91/shardstore/pkg/metadata"
)

// Dialer hands out the Client for a storage node. Implementations cache
// connections; dialing the same node twice returns an equivalent client.
//
// The production dialer lives in backend/dial and selects the protocol
// client from the node's backend kind. Tests inject a memory.Hub.
type Dialer interface {
	Dial(ctx context.Context, node *metadata.Node) (Client, error)
}
