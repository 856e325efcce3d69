package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/route-beacon/bird-collector/internal/birdc"
	"github.com/route-beacon/bird-collector/internal/client"
	"go.uber.org/zap"
)

// mockDBChecker implements DBChecker for testing.
type mockDBChecker struct {
	err error
}

func (m *mockDBChecker) Ping(_ context.Context) error { return m.err }

type mockPoller struct {
	ready bool
	last  time.Time
}

func (m *mockPoller) Ready() bool            { return m.ready }
func (m *mockPoller) LastSuccess() time.Time { return m.last }

type mockQuerier struct {
	status  *birdc.Status
	peers   []birdc.Peer
	routes  []birdc.Route
	err     error
	lastQry client.RouteQuery
}

func (m *mockQuerier) Status(ctx context.Context) (*birdc.Status, error) {
	return m.status, m.err
}

func (m *mockQuerier) Peers(ctx context.Context) ([]birdc.Peer, error) {
	return m.peers, m.err
}

func (m *mockQuerier) Peer(ctx context.Context, name string) (*birdc.Peer, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.peers {
		if m.peers[i].Name == name {
			return &m.peers[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", client.ErrPeerNotFound, name)
}

func (m *mockQuerier) Routes(ctx context.Context, q client.RouteQuery) ([]birdc.Route, error) {
	m.lastQry = q
	return m.routes, m.err
}

func newTestServer(db DBChecker, poller PollStatus, q Querier) *Server {
	return NewServer(":0", db, poller, q, zap.NewNop())
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz_AlwaysOK(t *testing.T) {
	s := newTestServer(nil, &mockPoller{}, &mockQuerier{})
	w := serve(s, "/healthz")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", body["status"])
	}
}

func TestReadyz_NotPolledYet(t *testing.T) {
	s := newTestServer(nil, &mockPoller{}, &mockQuerier{})
	w := serve(s, "/readyz")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%v'", body["status"])
	}
	checks := body["checks"].(map[string]any)
	if checks["bird"] != "not_polled" {
		t.Errorf("expected bird 'not_polled', got '%v'", checks["bird"])
	}
	if _, ok := checks["postgres"]; ok {
		t.Error("expected no postgres check when the database is disabled")
	}
}

func TestReadyz_PolledButDBDown(t *testing.T) {
	s := newTestServer(&mockDBChecker{err: errors.New("down")}, &mockPoller{ready: true}, &mockQuerier{})
	w := serve(s, "/readyz")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 (DB down), got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	checks := body["checks"].(map[string]any)
	if checks["bird"] != "ok" {
		t.Errorf("expected bird 'ok', got '%v'", checks["bird"])
	}
	if checks["postgres"] != "error" {
		t.Errorf("expected postgres 'error', got '%v'", checks["postgres"])
	}
}

func TestReadyz_AllHealthy(t *testing.T) {
	last := time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)
	s := newTestServer(&mockDBChecker{}, &mockPoller{ready: true, last: last}, &mockQuerier{})
	w := serve(s, "/readyz")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ready" {
		t.Errorf("expected status 'ready', got '%v'", body["status"])
	}
	if body["last_poll"] != "2024-06-20T12:00:00Z" {
		t.Errorf("expected last_poll '2024-06-20T12:00:00Z', got '%v'", body["last_poll"])
	}
	checks := body["checks"].(map[string]any)
	if checks["postgres"] != "ok" {
		t.Errorf("expected postgres 'ok', got '%v'", checks["postgres"])
	}
}

func TestStatus(t *testing.T) {
	q := &mockQuerier{status: &birdc.Status{RouterID: "10.0.0.1", Version: "2.0.8"}}
	s := newTestServer(nil, &mockPoller{}, q)
	w := serve(s, "/v1/status")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["router_id"] != "10.0.0.1" {
		t.Errorf("expected router_id '10.0.0.1', got '%v'", body["router_id"])
	}
}

func TestStatus_DaemonUnreachable(t *testing.T) {
	q := &mockQuerier{err: errors.New("dial unix /var/run/bird/bird.ctl: connect: no such file or directory")}
	s := newTestServer(nil, &mockPoller{}, q)
	w := serve(s, "/v1/status")

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

func testPeers() []birdc.Peer {
	p1 := birdc.Peer{ASN: "65010"}
	p1.Name = "bgp1"
	p2 := birdc.Peer{ASN: "65020"}
	p2.Name = "bgp2"
	return []birdc.Peer{p1, p2}
}

func TestPeers(t *testing.T) {
	s := newTestServer(nil, &mockPoller{}, &mockQuerier{peers: testPeers()})
	w := serve(s, "/v1/peers")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 2 || body[1]["name"] != "bgp2" {
		t.Errorf("unexpected peers %v", body)
	}
}

func TestPeer(t *testing.T) {
	s := newTestServer(nil, &mockPoller{}, &mockQuerier{peers: testPeers()})

	w := serve(s, "/v1/peers/bgp2")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["asn"] != "65020" {
		t.Errorf("expected asn '65020', got '%v'", body["asn"])
	}

	w = serve(s, "/v1/peers/bgp9")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestRoutes_QueryParameters(t *testing.T) {
	q := &mockQuerier{routes: []birdc.Route{{Prefix: "10.0.0.0/24", Peer: "10.123.123.10"}}}
	s := newTestServer(nil, &mockPoller{}, q)

	w := serve(s, "/v1/routes?table=master4&prefix=10.0.0.0/24&protocol=bgp1&all=1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	want := client.RouteQuery{Table: "master4", Prefix: "10.0.0.0/24", Peer: "bgp1", Full: true}
	if q.lastQry != want {
		t.Errorf("expected query %+v, got %+v", want, q.lastQry)
	}

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 1 || body[0]["prefix"] != "10.0.0.0/24" {
		t.Errorf("unexpected routes %v", body)
	}
}

func TestRoutes_InvalidPrefix(t *testing.T) {
	q := &mockQuerier{err: fmt.Errorf("%w: %q", client.ErrInvalidPrefix, "bogus")}
	s := newTestServer(nil, &mockPoller{}, q)

	w := serve(s, "/v1/routes?prefix=bogus")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	s := newTestServer(nil, &mockPoller{}, &mockQuerier{})
	req := httptest.NewRequest(http.MethodPost, "/v1/routes", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}
