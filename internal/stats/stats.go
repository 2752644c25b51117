// Package stats surfaces run statistics and disk usage for the
// diagnostics API (spec §9, SUPPLEMENTED FEATURES).
package stats

import (
	"project-tachyon/internal/catalog"

	"github.com/shirou/gopsutil/v3/disk"
)

// DiskUsage mirrors the disk-space snapshot the teacher reports for its
// download volume, repurposed here for the output root.
type DiskUsage struct {
	UsedGB  float64 `json:"used_gb"`
	FreeGB  float64 `json:"free_gb"`
	TotalGB float64 `json:"total_gb"`
	Percent float64 `json:"percent"`
}

// Snapshot is the full payload the stats endpoint returns.
type Snapshot struct {
	DailyRuns []catalog.DailyRunStat `json:"daily_runs"`
	DiskUsage DiskUsage              `json:"disk_usage"`
}

// Manager computes run statistics and disk usage on demand; it holds no
// state of its own beyond references to the things it reads from.
type Manager struct {
	catalog    *catalog.Catalog
	outputRoot string
}

// New builds a Manager reporting disk usage for the volume holding
// outputRoot.
func New(c *catalog.Catalog, outputRoot string) *Manager {
	return &Manager{catalog: c, outputRoot: outputRoot}
}

// DailyRunStats returns the last `days` days of completed/failed/
// download_failed counters, most recent first.
func (m *Manager) DailyRunStats(days int) ([]catalog.DailyRunStat, error) {
	return m.catalog.DailyStats(days)
}

// DiskUsageSnapshot reports free/used/total space for the output root's
// volume. Returns a zero-value snapshot (not an error) if the path can't
// be statted, since a stats endpoint shouldn't fail a whole dashboard
// over one unreadable mount.
func (m *Manager) DiskUsageSnapshot() DiskUsage {
	if m.outputRoot == "" {
		return DiskUsage{}
	}
	usage, err := disk.Usage(m.outputRoot)
	if err != nil {
		return DiskUsage{}
	}
	const bytesPerGB = 1024 * 1024 * 1024
	return DiskUsage{
		UsedGB:  float64(usage.Used) / bytesPerGB,
		FreeGB:  float64(usage.Free) / bytesPerGB,
		TotalGB: float64(usage.Total) / bytesPerGB,
		Percent: usage.UsedPercent,
	}
}

// Snapshot assembles the full dashboard payload.
func (m *Manager) Snapshot(days int) (Snapshot, error) {
	daily, err := m.DailyRunStats(days)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{DailyRuns: daily, DiskUsage: m.DiskUsageSnapshot()}, nil
}
