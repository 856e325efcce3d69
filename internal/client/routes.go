package client

import (
	"context"
	"strings"

	"github.com/route-beacon/bird-collector/internal/birdc"
)

// RouteQuery narrows "show route". Zero fields are omitted from the command.
type RouteQuery struct {
	Table  string
	Prefix string
	Peer   string
	// Full requests attribute blocks ("all").
	Full bool
}

func (q RouteQuery) command() (string, error) {
	parts := []string{"show route"}
	if q.Full {
		parts = append(parts, "all")
	}
	if q.Table != "" {
		table, err := cleanName(q.Table)
		if err != nil {
			return "", err
		}
		parts = append(parts, "table", table)
	}
	if q.Prefix != "" {
		prefix, err := cleanPrefix(q.Prefix)
		if err != nil {
			return "", err
		}
		parts = append(parts, "for", prefix)
	}
	if q.Peer != "" {
		peer, err := cleanName(q.Peer)
		if err != nil {
			return "", err
		}
		parts = append(parts, "protocol", peer)
	}
	return strings.Join(parts, " "), nil
}

func (c *Client) Routes(ctx context.Context, q RouteQuery) ([]birdc.Route, error) {
	cmd, err := q.command()
	if err != nil {
		return nil, err
	}
	return c.routes(ctx, cmd, q.Full)
}

func (c *Client) routes(ctx context.Context, cmd string, detail bool) ([]birdc.Route, error) {
	reply, err := c.query(ctx, cmd)
	if err != nil {
		return nil, err
	}
	routes, err := birdc.DecodeRoutes(reply, detail)
	if err != nil {
		return nil, decodeFailed("routes", err)
	}
	return routes, nil
}

// PeerPrefixesAnnounced returns everything the peer sent, before import
// filters, from the peer's own table T_<peer>.
func (c *Client) PeerPrefixesAnnounced(ctx context.Context, peer string) ([]birdc.Route, error) {
	name, err := cleanName(peer)
	if err != nil {
		return nil, err
	}
	return c.routes(ctx, "show route table T_"+name+" all protocol "+name, true)
}

// PeerPrefixesAccepted returns the peer's routes that passed import filters.
func (c *Client) PeerPrefixesAccepted(ctx context.Context, peer string) ([]birdc.Route, error) {
	name, err := cleanName(peer)
	if err != nil {
		return nil, err
	}
	return c.routes(ctx, "show route all protocol "+name, true)
}

// PeerPrefixesExported returns the routes sent to the peer.
func (c *Client) PeerPrefixesExported(ctx context.Context, peer string) ([]birdc.Route, error) {
	name, err := cleanName(peer)
	if err != nil {
		return nil, err
	}
	return c.routes(ctx, "show route all table T_"+name+" export "+name, true)
}

// PeerPrefixesRejected returns announced routes whose prefix is missing from
// the accepted set.
func (c *Client) PeerPrefixesRejected(ctx context.Context, peer string) ([]birdc.Route, error) {
	announced, err := c.PeerPrefixesAnnounced(ctx, peer)
	if err != nil {
		return nil, err
	}
	accepted, err := c.PeerPrefixesAccepted(ctx, peer)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(accepted))
	for _, r := range accepted {
		seen[r.Prefix] = struct{}{}
	}
	rejected := []birdc.Route{}
	for _, r := range announced {
		if _, ok := seen[r.Prefix]; !ok {
			rejected = append(rejected, r)
		}
	}
	return rejected, nil
}

// PrefixInfo returns every route for prefix, optionally only those learned
// from peer.
func (c *Client) PrefixInfo(ctx context.Context, prefix, peer string) ([]birdc.Route, error) {
	p, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	cmd := "show route for " + p + " all"
	if peer != "" {
		name, err := cleanName(peer)
		if err != nil {
			return nil, err
		}
		cmd += " protocol " + name
	}
	return c.routes(ctx, cmd, true)
}
