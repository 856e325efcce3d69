package client

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const protocolsAll = "0001 BIRD 2.0.8 ready.\n" +
	"2002-Name       Proto      Table      State  Since         Info\n" +
	"1002-bgp1       BGP        ---        up     2024-06-19 10:00:05  Established\n" +
	"1006-  BGP state:          Established\n" +
	"    Neighbor address: 10.123.123.10\n" +
	"    Neighbor AS:      65010\n" +
	"  Routes:         12 imported, 3 exported, 10 preferred\n" +
	"\n" +
	"1002-bgp2       BGP        ---        start  2024-06-19 10:00:05  Active\n" +
	"1006-  BGP state:          Active\n" +
	"    Neighbor address: 10.123.123.20\n" +
	"\n" +
	"0000 \n"

const protocolsOne = "0001 BIRD 2.0.8 ready.\n" +
	"2002-Name       Proto      Table      State  Since         Info\n" +
	"1002-bgp1       BGP        ---        up     2024-06-19 10:00:05  Established\n" +
	"1006-  BGP state:          Established\n" +
	"\n" +
	"0000 \n"

func TestPeers(t *testing.T) {
	c, _ := newTestClient(map[string]string{"show protocols all": protocolsAll}, Options{})
	peers, err := c.Peers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(peers))
	}
	if peers[0].RoutesImported != 12 || peers[0].ASN != "65010" {
		t.Errorf("unexpected detail for bgp1: %+v", peers[0])
	}
	if peers[1].IsUp() {
		t.Error("expected bgp2 to be down")
	}
}

func TestRawPeers(t *testing.T) {
	c, _ := newTestClient(map[string]string{"show protocols all": protocolsAll}, Options{})
	peers, raw, err := c.RawPeers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 2 {
		t.Errorf("expected 2 peers, got %d", len(peers))
	}
	if !strings.HasPrefix(raw, "0001 BIRD") {
		t.Errorf("expected raw reply, got %q", raw)
	}
}

func TestPeer(t *testing.T) {
	c, tr := newTestClient(map[string]string{`show protocols all "bgp1"`: protocolsOne}, Options{})
	p, err := c.Peer(context.Background(), "bgp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "bgp1" || !p.IsUp() {
		t.Errorf("expected bgp1 up, got %+v", p)
	}
	if tr.commands[0] != `show protocols all "bgp1"` {
		t.Errorf("unexpected command %q", tr.commands[0])
	}
}

func TestPeer_NotFound(t *testing.T) {
	c, _ := newTestClient(map[string]string{
		`show protocols all "nope"`: "0001 BIRD 2.0.8 ready.\n8003 No protocols match\n",
	}, Options{})
	if _, err := c.Peer(context.Background(), "nope"); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestPeer_Multiple(t *testing.T) {
	c, _ := newTestClient(map[string]string{`show protocols all "bgp"`: protocolsAll}, Options{})
	_, err := c.Peer(context.Background(), "bgp")
	if err == nil {
		t.Fatal("expected error when more than one peer is returned")
	}
	if errors.Is(err, ErrPeerNotFound) {
		t.Errorf("expected a distinct error, got %v", err)
	}
}

func TestPeerSummaries(t *testing.T) {
	c, tr := newTestClient(map[string]string{
		"show protocols": "0001 BIRD 2.0.8 ready.\n" +
			"2002-Name       Proto      Table      State  Since         Info\n" +
			"1002-device1    Device     ---        up     2024-06-19 10:00:00\n" +
			" bgp1       BGP        ---        up     2024-06-19 10:00:05  Established\n" +
			"0000 \n",
	}, Options{})
	peers, err := c.PeerSummaries(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 1 || peers[0].Name != "bgp1" {
		t.Errorf("unexpected peers %+v", peers)
	}
	if tr.commands[0] != "show protocols" {
		t.Errorf("unexpected command %q", tr.commands[0])
	}
}
