package maintenance

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/route-beacon/bird-collector/internal/metrics"
	"go.uber.org/zap"
)

var validPartitionName = regexp.MustCompile(`^peer_snapshots_\d{8}$`)

// PartitionManager keeps the daily peer_snapshots partitions in place and
// prunes snapshot data past the retention period.
type PartitionManager struct {
	pool          *pgxpool.Pool
	retentionDays int
	timezone      string
	now           func() time.Time
	logger        *zap.Logger
}

func NewPartitionManager(pool *pgxpool.Pool, retentionDays int, timezone string, logger *zap.Logger) *PartitionManager {
	return &PartitionManager{
		pool:          pool,
		retentionDays: retentionDays,
		timezone:      timezone,
		now:           time.Now,
		logger:        logger,
	}
}

func (pm *PartitionManager) Run(ctx context.Context) error {
	if err := pm.CreatePartitions(ctx); err != nil {
		return fmt.Errorf("creating partitions: %w", err)
	}
	if err := pm.DropOldPartitions(ctx); err != nil {
		return fmt.Errorf("dropping old partitions: %w", err)
	}
	if err := pm.PruneRawReplies(ctx); err != nil {
		return fmt.Errorf("pruning raw replies: %w", err)
	}
	return nil
}

// RunEvery runs Run immediately and then on every interval until ctx is done.
// Failures are logged.
func (pm *PartitionManager) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := pm.Run(ctx); err != nil && ctx.Err() == nil {
			pm.logger.Error("maintenance failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (pm *PartitionManager) location() (*time.Location, error) {
	loc, err := time.LoadLocation(pm.timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %s: %w", pm.timezone, err)
	}
	return loc, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// cutoffDate is the start of the day retentionDays before now in loc. Data
// taken before it is expired.
func cutoffDate(now time.Time, loc *time.Location, retentionDays int) time.Time {
	return startOfDay(now.In(loc).AddDate(0, 0, -retentionDays))
}

func partitionName(day time.Time) string {
	return fmt.Sprintf("peer_snapshots_%s", day.Format("20060102"))
}

// partitionDate parses the day out of a partition name. ok is false for
// names this package did not create.
func partitionDate(name string, loc *time.Location) (time.Time, bool) {
	if !validPartitionName.MatchString(name) {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation("20060102", name[len(name)-8:], loc)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// CreatePartitions creates daily partitions for today and tomorrow using the configured timezone.
func (pm *PartitionManager) CreatePartitions(ctx context.Context) error {
	loc, err := pm.location()
	if err != nil {
		return err
	}

	today := startOfDay(pm.now().In(loc))
	tomorrow := today.AddDate(0, 0, 1)
	dayAfter := today.AddDate(0, 0, 2)

	if err := pm.createPartition(ctx, today, tomorrow); err != nil {
		return err
	}
	return pm.createPartition(ctx, tomorrow, dayAfter)
}

func (pm *PartitionManager) createPartition(ctx context.Context, from, to time.Time) error {
	name := partitionName(from)
	safeName := pgx.Identifier{name}.Sanitize()
	fromStr := from.UTC().Format("2006-01-02 15:04:05+00")
	toStr := to.UTC().Format("2006-01-02 15:04:05+00")

	createSQL := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF peer_snapshots FOR VALUES FROM ('%s') TO ('%s')`,
		safeName, fromStr, toStr,
	)
	if _, err := pm.pool.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("creating partition %s: %w", name, err)
	}

	safeIdx := pgx.Identifier{fmt.Sprintf("idx_%s_peer_history", name)}.Sanitize()
	peerIdx := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s (instance_id, peer, taken_at DESC)`,
		safeIdx, safeName,
	)
	if _, err := pm.pool.Exec(ctx, peerIdx); err != nil {
		return fmt.Errorf("creating peer_history index on %s: %w", name, err)
	}

	pm.logger.Debug("partition ensured", zap.String("partition", name))
	return nil
}

// DropOldPartitions drops partitions older than the configured retention period.
func (pm *PartitionManager) DropOldPartitions(ctx context.Context) error {
	loc, err := pm.location()
	if err != nil {
		return err
	}
	cutoff := cutoffDate(pm.now(), loc, pm.retentionDays)

	rows, err := pm.pool.Query(ctx,
		`SELECT inhrelid::regclass::text FROM pg_inherits WHERE inhparent = 'peer_snapshots'::regclass`)
	if err != nil {
		return fmt.Errorf("listing partitions: %w", err)
	}
	defer rows.Close()

	var partitions []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scanning partition name: %w", err)
		}
		partitions = append(partitions, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating partitions: %w", err)
	}

	for _, name := range expiredPartitions(partitions, cutoff, loc, pm.logger) {
		dropSQL := fmt.Sprintf("DROP TABLE IF EXISTS %s", pgx.Identifier{name}.Sanitize())
		if _, err := pm.pool.Exec(ctx, dropSQL); err != nil {
			return fmt.Errorf("dropping partition %s: %w", name, err)
		}
		metrics.DBRowsAffectedTotal.WithLabelValues("peer_snapshots", "drop_partition").Inc()
		pm.logger.Info("dropped old partition", zap.String("partition", name), zap.Time("cutoff", cutoff))
	}
	return nil
}

func expiredPartitions(names []string, cutoff time.Time, loc *time.Location, logger *zap.Logger) []string {
	var out []string
	for _, name := range names {
		day, ok := partitionDate(name, loc)
		if !ok {
			logger.Warn("skipping partition with unexpected name", zap.String("partition", name))
			continue
		}
		if day.Before(cutoff) {
			out = append(out, name)
		}
	}
	return out
}

// PruneRawReplies deletes stored raw replies taken before the retention cutoff.
func (pm *PartitionManager) PruneRawReplies(ctx context.Context) error {
	loc, err := pm.location()
	if err != nil {
		return err
	}
	cutoff := cutoffDate(pm.now(), loc, pm.retentionDays)

	tag, err := pm.pool.Exec(ctx, `DELETE FROM raw_replies WHERE taken_at < $1`, cutoff)
	if err != nil {
		return err
	}
	if n := tag.RowsAffected(); n > 0 {
		metrics.DBRowsAffectedTotal.WithLabelValues("raw_replies", "delete").Add(float64(n))
		pm.logger.Info("pruned raw replies", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return nil
}
