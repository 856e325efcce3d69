package client

import (
	"context"
	"fmt"

	"github.com/route-beacon/bird-collector/internal/birdc"
)

// Peers returns every BGP session with its detail block.
func (c *Client) Peers(ctx context.Context) ([]birdc.Peer, error) {
	return c.peers(ctx, "show protocols all", true)
}

// PeerSummaries returns every BGP session from the one-line listing only.
func (c *Client) PeerSummaries(ctx context.Context) ([]birdc.Peer, error) {
	return c.peers(ctx, "show protocols", false)
}

// Peer returns one session by its configured name.
func (c *Client) Peer(ctx context.Context, name string) (*birdc.Peer, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	peers, err := c.peers(ctx, fmt.Sprintf("show protocols all %q", clean), true)
	if err != nil {
		return nil, err
	}
	switch len(peers) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrPeerNotFound, clean)
	case 1:
		return &peers[0], nil
	default:
		return nil, fmt.Errorf("client: %d peers returned for %s", len(peers), clean)
	}
}

// RawPeers returns the "show protocols all" reply alongside its decoding,
// for callers that archive the wire text.
func (c *Client) RawPeers(ctx context.Context) ([]birdc.Peer, string, error) {
	reply, err := c.query(ctx, "show protocols all")
	if err != nil {
		return nil, "", err
	}
	peers, err := birdc.DecodePeers(reply, true, c.now())
	if err != nil {
		return nil, reply, decodeFailed("peers", err)
	}
	return peers, reply, nil
}

func (c *Client) peers(ctx context.Context, cmd string, detail bool) ([]birdc.Peer, error) {
	reply, err := c.query(ctx, cmd)
	if err != nil {
		return nil, err
	}
	peers, err := birdc.DecodePeers(reply, detail, c.now())
	if err != nil {
		return nil, decodeFailed("peers", err)
	}
	return peers, nil
}
