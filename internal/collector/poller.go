// Package collector polls the daemon on a fixed interval, tracks BGP session
// state between polls and hands each result to the configured sinks.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/route-beacon/bird-collector/internal/birdc"
	"github.com/route-beacon/bird-collector/internal/metrics"
	"go.uber.org/zap"
)

// Source is the subset of client.Client the poller uses.
type Source interface {
	Status(ctx context.Context) (*birdc.Status, error)
	RawPeers(ctx context.Context) ([]birdc.Peer, string, error)
	PeerSummaries(ctx context.Context) ([]birdc.Peer, error)
}

// PeerEvent records a session whose state differs from the previous poll.
// OldState is empty the first time a session is seen.
type PeerEvent struct {
	InstanceID string    `json:"instance_id"`
	RouterID   string    `json:"router_id"`
	Peer       string    `json:"peer"`
	OldState   string    `json:"old_state"`
	NewState   string    `json:"new_state"`
	Up         bool      `json:"up"`
	At         time.Time `json:"at"`
}

// Snapshot is the result of one poll.
type Snapshot struct {
	InstanceID string
	TakenAt    time.Time
	Status     *birdc.Status
	Peers      []birdc.Peer
	// RawPeers is the undecoded "show protocols all" reply; empty in
	// summary mode.
	RawPeers string
}

type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, s *Snapshot) error
}

type EventPublisher interface {
	Publish(ctx context.Context, events []PeerEvent) error
}

type Poller struct {
	source     Source
	writer     SnapshotWriter
	publisher  EventPublisher
	interval   time.Duration
	detail     bool
	instanceID string
	now        func() time.Time
	logger     *zap.Logger

	mu          sync.RWMutex
	states      map[string]string
	lastSuccess time.Time
	lastErr     error
}

type Options struct {
	Interval   time.Duration
	Detail     bool
	InstanceID string
	// Writer and Publisher are optional.
	Writer    SnapshotWriter
	Publisher EventPublisher
}

func NewPoller(source Source, opts Options, logger *zap.Logger) *Poller {
	return &Poller{
		source:     source,
		writer:     opts.Writer,
		publisher:  opts.Publisher,
		interval:   opts.Interval,
		detail:     opts.Detail,
		instanceID: opts.InstanceID,
		now:        time.Now,
		logger:     logger,
		states:     make(map[string]string),
	}
}

// Run polls once immediately and then every interval until ctx is done.
// Failed polls are logged and the loop continues.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce queries status and sessions, records state changes and feeds the
// sinks. Sink failures are returned after both sinks were tried.
func (p *Poller) PollOnce(ctx context.Context) error {
	err := p.poll(ctx)

	p.mu.Lock()
	p.lastErr = err
	if err == nil {
		p.lastSuccess = p.now()
	}
	p.mu.Unlock()

	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PollsTotal.WithLabelValues("ok").Inc()
	metrics.LastPollTimestamp.SetToCurrentTime()
	return nil
}

func (p *Poller) poll(ctx context.Context) error {
	takenAt := p.now()

	status, err := p.source.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	var peers []birdc.Peer
	var raw string
	if p.detail {
		peers, raw, err = p.source.RawPeers(ctx)
	} else {
		peers, err = p.source.PeerSummaries(ctx)
	}
	if err != nil {
		return fmt.Errorf("peers: %w", err)
	}

	events := p.detectChanges(status.RouterID, peers, takenAt)
	updatePeerMetrics(peers, p.detail)

	p.logger.Debug("poll complete",
		zap.String("router_id", status.RouterID),
		zap.Int("peers", len(peers)),
		zap.Int("state_changes", len(events)),
	)

	var errs []error
	if p.writer != nil {
		snap := &Snapshot{
			InstanceID: p.instanceID,
			TakenAt:    takenAt,
			Status:     status,
			Peers:      peers,
			RawPeers:   raw,
		}
		if err := p.writer.WriteSnapshot(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("write snapshot: %w", err))
		}
	}
	if p.publisher != nil && len(events) > 0 {
		if err := p.publisher.Publish(ctx, events); err != nil {
			errs = append(errs, fmt.Errorf("publish events: %w", err))
		}
	}
	return errors.Join(errs...)
}

// detectChanges compares each session's state with the previous poll.
// Sessions missing from this poll are forgotten.
func (p *Poller) detectChanges(routerID string, peers []birdc.Peer, at time.Time) []PeerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var events []PeerEvent
	current := make(map[string]string, len(peers))
	for i := range peers {
		peer := &peers[i]
		state := peer.StateString()
		current[peer.Name] = state

		old, seen := p.states[peer.Name]
		if seen && old == state {
			continue
		}
		events = append(events, PeerEvent{
			InstanceID: p.instanceID,
			RouterID:   routerID,
			Peer:       peer.Name,
			OldState:   old,
			NewState:   state,
			Up:         peer.IsUp(),
			At:         at,
		})
		metrics.PeerStateChangesTotal.WithLabelValues(peer.Name, state).Inc()
		p.logger.Info("peer state changed",
			zap.String("peer", peer.Name),
			zap.String("old_state", old),
			zap.String("new_state", state),
		)
	}

	for name := range p.states {
		if _, ok := current[name]; !ok {
			metrics.PeerUp.DeleteLabelValues(name)
			for _, kind := range routeKinds {
				metrics.PeerRoutes.DeleteLabelValues(name, kind)
			}
			p.logger.Info("peer no longer reported", zap.String("peer", name))
		}
	}
	p.states = current
	return events
}

var routeKinds = []string{"imported", "exported", "filtered", "preferred"}

func updatePeerMetrics(peers []birdc.Peer, detail bool) {
	for i := range peers {
		peer := &peers[i]
		up := 0.0
		if peer.IsUp() {
			up = 1
		}
		metrics.PeerUp.WithLabelValues(peer.Name).Set(up)
		if !detail {
			continue
		}
		metrics.PeerRoutes.WithLabelValues(peer.Name, "imported").Set(float64(peer.RoutesImported))
		metrics.PeerRoutes.WithLabelValues(peer.Name, "exported").Set(float64(peer.RoutesExported))
		metrics.PeerRoutes.WithLabelValues(peer.Name, "filtered").Set(float64(peer.RoutesFiltered))
		metrics.PeerRoutes.WithLabelValues(peer.Name, "preferred").Set(float64(peer.RoutesPreferred))
	}
}

// Ready reports whether the most recent poll succeeded.
func (p *Poller) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr == nil && !p.lastSuccess.IsZero()
}

// LastSuccess returns the time of the last successful poll, zero if none.
func (p *Poller) LastSuccess() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSuccess
}
