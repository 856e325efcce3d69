// Package snapshot persists poll results to PostgreSQL.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/zstd"
	"github.com/route-beacon/bird-collector/internal/birdc"
	"github.com/route-beacon/bird-collector/internal/collector"
	"github.com/route-beacon/bird-collector/internal/metrics"
	"go.uber.org/zap"
)

var zstdEncoder, _ = zstd.NewWriter(nil)

type Writer struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	storeRaw    bool
	compressRaw bool
}

func NewWriter(pool *pgxpool.Pool, logger *zap.Logger, storeRaw, compressRaw bool) *Writer {
	return &Writer{
		pool:        pool,
		logger:      logger,
		storeRaw:    storeRaw,
		compressRaw: compressRaw,
	}
}

// peerRow is one row of peer_snapshots.
type peerRow struct {
	Peer        string
	State       any
	Up          bool
	LastChange  any
	Address     any
	ASN         any
	BGPState    any
	Imported    int64
	Exported    int64
	Filtered    int64
	Preferred   int64
	ChangeStats []byte
}

func buildPeerRow(p *birdc.Peer) (peerRow, error) {
	row := peerRow{
		Peer:      p.Name,
		State:     nullableString(p.StateString()),
		Up:        p.IsUp(),
		Address:   nullableString(p.Address),
		ASN:       nullableString(p.ASN),
		BGPState:  nullableString(p.BGPState),
		Imported:  p.RoutesImported,
		Exported:  p.RoutesExported,
		Filtered:  p.RoutesFiltered,
		Preferred: p.RoutesPreferred,
	}
	if !p.LastChange.IsZero() {
		row.LastChange = p.LastChange
	}
	if stats := p.ChangeStats.Flatten(); len(stats) > 0 {
		b, err := json.Marshal(stats)
		if err != nil {
			return peerRow{}, fmt.Errorf("marshal change stats: %w", err)
		}
		row.ChangeStats = b
	}
	return row, nil
}

// rawPayload returns the bytes stored in raw_replies and whether they are
// compressed. A nil payload means nothing is stored.
func (w *Writer) rawPayload(raw string) ([]byte, bool) {
	if !w.storeRaw || raw == "" {
		return nil, false
	}
	if w.compressRaw {
		return zstdEncoder.EncodeAll([]byte(raw), nil), true
	}
	return []byte(raw), false
}

// WriteSnapshot stores the daemon status, one row per peer and optionally
// the raw reply, all in one transaction.
func (w *Writer) WriteSnapshot(ctx context.Context, s *collector.Snapshot) error {
	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if s.Status != nil {
		if err := w.upsertStatus(ctx, tx, s.InstanceID, s.Status); err != nil {
			return fmt.Errorf("upsert bird_status: %w", err)
		}
	}

	var inserted int64
	for i := range s.Peers {
		row, err := buildPeerRow(&s.Peers[i])
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO peer_snapshots (taken_at, instance_id, peer, state, up, last_change,
				address, asn, bgp_state, routes_imported, routes_exported, routes_filtered,
				routes_preferred, change_stats)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			s.TakenAt, s.InstanceID, row.Peer, row.State, row.Up, row.LastChange,
			row.Address, row.ASN, row.BGPState, row.Imported, row.Exported, row.Filtered,
			row.Preferred, row.ChangeStats,
		)
		if err != nil {
			return fmt.Errorf("insert peer_snapshot %s: %w", row.Peer, err)
		}
		inserted += tag.RowsAffected()
	}

	if payload, compressed := w.rawPayload(s.RawPeers); payload != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO raw_replies (taken_at, instance_id, command, reply, compressed)
			VALUES ($1, $2, $3, $4, $5)`,
			s.TakenAt, s.InstanceID, "show protocols all", payload, compressed,
		)
		if err != nil {
			return fmt.Errorf("insert raw_reply: %w", err)
		}
		metrics.DBRowsAffectedTotal.WithLabelValues("raw_replies", "insert").Inc()
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	metrics.DBWriteDuration.WithLabelValues("snapshot").Observe(time.Since(start).Seconds())
	metrics.DBRowsAffectedTotal.WithLabelValues("peer_snapshots", "insert").Add(float64(inserted))

	w.logger.Debug("snapshot written",
		zap.String("instance_id", s.InstanceID),
		zap.Int64("peers", inserted),
	)
	return nil
}

func (w *Writer) upsertStatus(ctx context.Context, tx pgx.Tx, instanceID string, st *birdc.Status) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bird_status (instance_id, router_id, version, hostname, last_reboot, last_reconfiguration, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (instance_id) DO UPDATE SET
			router_id            = EXCLUDED.router_id,
			version              = EXCLUDED.version,
			hostname             = COALESCE(EXCLUDED.hostname, bird_status.hostname),
			last_reboot          = EXCLUDED.last_reboot,
			last_reconfiguration = EXCLUDED.last_reconfiguration,
			updated_at           = now()`,
		instanceID, st.RouterID, nullableString(st.Version), nullableString(st.Hostname),
		nullableTime(st.LastReboot), nullableTime(st.LastReconfiguration),
	)
	return err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
