package maintenance

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestValidPartitionName_Valid(t *testing.T) {
	name := "peer_snapshots_20250115"
	if !validPartitionName.MatchString(name) {
		t.Errorf("expected %q to match validPartitionName regex", name)
	}
}

func TestValidPartitionName_Invalid(t *testing.T) {
	invalid := []string{
		"peer_snapshots_abc",
		"route_events_20250115",
		"peer_snapshots_2025011",
		"peer_snapshots_20250115; DROP TABLE x",
		"",
	}
	for _, name := range invalid {
		if validPartitionName.MatchString(name) {
			t.Errorf("expected %q to NOT match validPartitionName regex", name)
		}
	}
}

func TestCutoffDate(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Belgrade")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	// 23:30 UTC on the 14th is already the 15th in Belgrade.
	now := time.Date(2025, 1, 14, 23, 30, 0, 0, time.UTC)
	got := cutoffDate(now, loc, 30)
	want := time.Date(2024, 12, 16, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("expected cutoff %s, got %s", want, got)
	}
}

func TestCutoffDate_UTC(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	got := cutoffDate(now, time.UTC, 1)
	want := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected cutoff %s, got %s", want, got)
	}
}

func TestPartitionName(t *testing.T) {
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	if got := partitionName(day); got != "peer_snapshots_20250115" {
		t.Errorf("expected 'peer_snapshots_20250115', got '%s'", got)
	}
}

func TestExpiredPartitions(t *testing.T) {
	cutoff := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	names := []string{
		"peer_snapshots_20250108",
		"peer_snapshots_20250109",
		"peer_snapshots_20250110",
		"peer_snapshots_20250111",
		"peer_snapshots_default",
	}

	got := expiredPartitions(names, cutoff, time.UTC, zap.NewNop())
	if len(got) != 2 || got[0] != "peer_snapshots_20250108" || got[1] != "peer_snapshots_20250109" {
		t.Errorf("unexpected expired partitions %v", got)
	}
}

func TestPartitionDate_RejectsForeignNames(t *testing.T) {
	if _, ok := partitionDate("peer_snapshots_20251399", time.UTC); ok {
		t.Error("expected invalid month to be rejected")
	}
	if _, ok := partitionDate("other_20250115", time.UTC); ok {
		t.Error("expected foreign table to be rejected")
	}
}
