package services

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// SystemStats is a point-in-time snapshot of process and host resource
// usage, reported by the health endpoint and logged by the sweeper.
type SystemStats struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsedMB  uint64    `json:"memory_used_mb"`
	MemoryTotalMB uint64    `json:"memory_total_mb"`
	HeapAllocMB   uint64    `json:"heap_alloc_mb"`
	Goroutines    int       `json:"goroutines"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SystemMonitor collects resource usage snapshots.
type SystemMonitor struct {
	startedAt time.Time
	logger    *logrus.Logger
}

func NewSystemMonitor(logger *logrus.Logger) *SystemMonitor {
	return &SystemMonitor{
		startedAt: time.Now(),
		logger:    logger,
	}
}

// Snapshot collects current usage. The CPU reading is the usage since the
// previous snapshot, so the first call after startup reports zero. Where a
// probe fails the affected fields stay zero instead of failing the caller.
func (m *SystemMonitor) Snapshot(ctx context.Context) SystemStats {
	stats := SystemStats{
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(m.startedAt).Seconds()),
		CollectedAt:   time.Now(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats.HeapAllocMB = ms.HeapAlloc / 1024 / 1024

	if cpuPercents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		m.logger.WithError(err).Debug("Could not read CPU usage")
	} else if len(cpuPercents) > 0 {
		stats.CPUPercent = cpuPercents[0]
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		m.logger.WithError(err).Debug("Could not read memory usage")
	} else {
		stats.MemoryPercent = memInfo.UsedPercent
		stats.MemoryUsedMB = memInfo.Used / 1024 / 1024
		stats.MemoryTotalMB = memInfo.Total / 1024 / 1024
	}

	return stats
}
