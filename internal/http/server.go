package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/route-beacon/bird-collector/internal/birdc"
	"github.com/route-beacon/bird-collector/internal/client"
	"go.uber.org/zap"
)

// DBChecker abstracts the database health check for testability.
type DBChecker interface {
	Ping(ctx context.Context) error
}

// PollStatus reports whether the collector's last poll succeeded.
type PollStatus interface {
	Ready() bool
	LastSuccess() time.Time
}

// Querier is the subset of client.Client served under /v1.
type Querier interface {
	Status(ctx context.Context) (*birdc.Status, error)
	Peers(ctx context.Context) ([]birdc.Peer, error)
	Peer(ctx context.Context, name string) (*birdc.Peer, error)
	Routes(ctx context.Context, q client.RouteQuery) ([]birdc.Route, error)
}

type Server struct {
	srv       *http.Server
	dbChecker DBChecker
	poller    PollStatus
	querier   Querier
	logger    *zap.Logger
}

// NewServer builds the HTTP surface. dbChecker is nil when Postgres is
// disabled; the readiness check then skips it.
func NewServer(addr string, dbChecker DBChecker, poller PollStatus, querier Querier, logger *zap.Logger) *Server {
	s := &Server{
		dbChecker: dbChecker,
		poller:    poller,
		querier:   querier,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/peers", s.handlePeers)
	mux.HandleFunc("GET /v1/peers/{name}", s.handlePeer)
	mux.HandleFunc("GET /v1/routes", s.handleRoutes)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	if s.dbChecker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.dbChecker.Ping(ctx); err != nil {
			checks["postgres"] = "error"
			allOK = false
		} else {
			checks["postgres"] = "ok"
		}
	}

	if s.poller != nil && s.poller.Ready() {
		checks["bird"] = "ok"
	} else {
		checks["bird"] = "not_polled"
		allOK = false
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status": status,
		"checks": checks,
	}
	if s.poller != nil {
		if last := s.poller.LastSuccess(); !last.IsZero() {
			body["last_poll"] = last.UTC().Format(time.RFC3339)
		}
	}
	writeJSON(w, httpStatus, body)
}

// writeError maps client and decoder errors to a status code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, client.ErrPeerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, client.ErrInvalidName), errors.Is(err, client.ErrInvalidPrefix):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		s.logger.Warn("query failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.querier.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers, err := s.querier.Peers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, peers)
}

func (s *Server) handlePeer(w http.ResponseWriter, r *http.Request) {
	peer, err := s.querier.Peer(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, peer)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	all := q.Get("all")
	query := client.RouteQuery{
		Table:  q.Get("table"),
		Prefix: q.Get("prefix"),
		Peer:   q.Get("protocol"),
		Full:   all == "1" || all == "true",
	}
	routes, err := s.querier.Routes(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}
