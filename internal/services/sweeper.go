package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/metrics"
)

// PrunableCache is the slice of the in-process result cache the sweeper
// needs. Declared here so the sweeper does not depend on the cache package.
type PrunableCache interface {
	PruneExpired(now time.Time) int
	Len() int
}

// AuditLogPruner deletes delivered-notification rows older than a cutoff.
type AuditLogPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweeperStatus is the admin view of the background sweep loop.
type SweeperStatus struct {
	Running     bool           `json:"running"`
	Paused      bool           `json:"paused"`
	Interval    string         `json:"interval"`
	LastRunAt   time.Time      `json:"last_run_at,omitempty"`
	LastCounts  map[string]int `json:"last_counts,omitempty"`
	CycleCount  int64          `json:"cycle_count"`
	CacheSize   int            `json:"cache_entries,omitempty"`
	LastAuditGC int64          `json:"last_audit_rows_deleted"`
}

// Sweeper periodically drops expired entries from the pipeline's in-memory
// stores, prunes the fallback cache, and trims the notification audit log.
// Without it, tokens that stop signaling would pin tracker entries forever.
type Sweeper struct {
	evaluator *SignalEvaluator
	memCache  PrunableCache
	auditLog  AuditLogPruner
	recovery  *ErrorRecoveryManager
	logger    *logrus.Logger
	monitor   *SystemMonitor

	interval  time.Duration
	retention time.Duration

	mu          sync.Mutex
	running     bool
	paused      bool
	cancel      context.CancelFunc
	done        chan struct{}
	lastRunAt   time.Time
	lastCounts  map[string]int
	cycleCount  int64
	lastAuditGC int64

	now func() time.Time
}

// NewSweeper builds the sweep loop. memCache, auditLog, recovery, and
// monitor may each be nil; the corresponding step is skipped.
func NewSweeper(
	evaluator *SignalEvaluator,
	memCache PrunableCache,
	auditLog AuditLogPruner,
	recovery *ErrorRecoveryManager,
	monitor *SystemMonitor,
	cfg config.SweeperConfig,
	logger *logrus.Logger,
) *Sweeper {
	return &Sweeper{
		evaluator: evaluator,
		memCache:  memCache,
		auditLog:  auditLog,
		recovery:  recovery,
		monitor:   monitor,
		interval:  cfg.Interval(),
		retention: cfg.Retention(),
		logger:    logger,
		now:       time.Now,
	}
}

// Start launches the sweep goroutine. Calling Start on a running sweeper
// is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.WithField("interval", s.interval).Info("Starting sweeper")

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.isPaused() {
					continue
				}
				s.RunOnce(ctx, s.now())
			}
		}
	}()
}

// Stop cancels the sweep goroutine and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("Sweeper stopped")
}

// Pause keeps the loop alive but skips sweep cycles until Resume.
func (s *Sweeper) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.logger.Info("Sweeper paused")
}

// Resume re-enables sweep cycles after a Pause.
func (s *Sweeper) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.logger.Info("Sweeper resumed")
}

func (s *Sweeper) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// RunOnce executes one sweep cycle at the given time and returns the
// removed-entry counts keyed by store name.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) map[string]int {
	counts := s.evaluator.Sweep(now)

	if s.memCache != nil {
		counts["result_cache"] = s.memCache.PruneExpired(now)
	}

	var auditDeleted int64
	if s.auditLog != nil {
		auditDeleted = s.pruneAuditLog(ctx, now)
	}

	metrics.SweepsTotal.Inc()
	total := 0
	for store, removed := range counts {
		metrics.SweptEntries.WithLabelValues(store).Add(float64(removed))
		total += removed
	}

	fields := logrus.Fields{
		"removed_entries":    total,
		"audit_rows_deleted": auditDeleted,
		"cooldown":           counts["cooldown"],
		"dedup":              counts["dedup"],
		"recurrence":         counts["recurrence"],
		"alert_state":        counts["alert_state"],
		"channel_cooldown":   counts["notification_cooldown"],
		"result_cache":       counts["result_cache"],
	}
	if s.monitor != nil {
		stats := s.monitor.Snapshot(ctx)
		fields["goroutines"] = stats.Goroutines
		fields["heap_alloc_mb"] = stats.HeapAllocMB
		fields["memory_percent"] = stats.MemoryPercent
	}
	s.logger.WithFields(fields).Info("Sweep cycle completed")

	s.mu.Lock()
	s.lastRunAt = now
	s.lastCounts = counts
	s.cycleCount++
	s.lastAuditGC = auditDeleted
	s.mu.Unlock()

	return counts
}

// pruneAuditLog deletes notification log rows older than the retention
// window, retrying transient database errors.
func (s *Sweeper) pruneAuditLog(ctx context.Context, now time.Time) int64 {
	cutoff := now.Add(-s.retention)

	var deleted int64
	run := func() error {
		var err error
		deleted, err = s.auditLog.DeleteOlderThan(ctx, cutoff)
		return err
	}

	var err error
	if s.recovery != nil {
		err = s.recovery.ExecuteWithRetry(ctx, "notification_log_cleanup", run)
	} else {
		err = run()
	}
	if err != nil {
		s.logger.WithError(err).Warn("Failed to prune notification log")
		return 0
	}
	if deleted > 0 {
		s.logger.WithFields(logrus.Fields{
			"rows":   deleted,
			"cutoff": cutoff.Format(time.RFC3339),
		}).Info("Pruned notification log")
	}
	return deleted
}

// Status reports the loop state for the admin status endpoint.
func (s *Sweeper) Status() SweeperStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SweeperStatus{
		Running:     s.running,
		Paused:      s.paused,
		Interval:    s.interval.String(),
		LastRunAt:   s.lastRunAt,
		CycleCount:  s.cycleCount,
		LastAuditGC: s.lastAuditGC,
	}
	if s.lastCounts != nil {
		status.LastCounts = make(map[string]int, len(s.lastCounts))
		for store, removed := range s.lastCounts {
			status.LastCounts[store] = removed
		}
	}
	if s.memCache != nil {
		status.CacheSize = s.memCache.Len()
	}
	return status
}
