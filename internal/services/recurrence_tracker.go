package services

import (
	"sync"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/models"
)

type recurrenceEntry struct {
	severity    models.Severity
	impactScore int
	occurredAt  time.Time
}

// RecurrenceTracker keeps a trailing 24h history of emitted signals per key
// and classifies the direction of the newest score against the mean of what
// came before. Callers must query GetInfo before RecordOccurrence so the
// trend compares against prior history, not against itself.
type RecurrenceTracker struct {
	mu         sync.Mutex
	window     time.Duration
	margin     float64
	maxEntries int
	entries    map[models.SignalKey][]recurrenceEntry
	now        func() time.Time
}

func NewRecurrenceTracker(cfg config.SignalsConfig) *RecurrenceTracker {
	window := time.Duration(cfg.RecurrenceWindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}
	margin := cfg.RecurrenceMargin
	if margin <= 0 {
		margin = 5.0
	}
	maxEntries := cfg.RecurrenceMaxEntries
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &RecurrenceTracker{
		window:     window,
		margin:     margin,
		maxEntries: maxEntries,
		entries:    make(map[models.SignalKey][]recurrenceEntry),
		now:        time.Now,
	}
}

// GetInfo classifies impactScore against the key's in-window history.
// Occurrences24h counts prior occurrences only; a brand-new key reports
// trend "new" with zero occurrences.
func (t *RecurrenceTracker) GetInfo(key models.SignalKey, impactScore int) models.RecurrenceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.pruneLocked(key, t.now())
	if len(entries) == 0 {
		return models.RecurrenceInfo{Trend: models.TrendNew}
	}

	mean := priorImpactMean(entries)
	direction := models.TrendStable
	switch {
	case float64(impactScore) > mean+t.margin:
		direction = models.TrendIncreasing
	case float64(impactScore) < mean-t.margin:
		direction = models.TrendDecreasing
	}

	return models.RecurrenceInfo{
		Occurrences24h: len(entries),
		Trend:          direction,
		IsRepeat:       true,
		PreviousImpact: mean,
	}
}

// RecordOccurrence appends the emitted signal to the key's history, pruning
// stale entries and holding the per-key count under the cap.
func (t *RecurrenceTracker) RecordOccurrence(key models.SignalKey, severity models.Severity, impactScore int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entries := append(t.pruneLocked(key, now), recurrenceEntry{
		severity:    severity,
		impactScore: impactScore,
		occurredAt:  now,
	})
	if len(entries) > t.maxEntries {
		entries = entries[len(entries)-t.maxEntries:]
	}
	t.entries[key] = entries
}

// pruneLocked drops out-of-window entries for one key and returns what
// remains. Caller holds the mutex.
func (t *RecurrenceTracker) pruneLocked(key models.SignalKey, now time.Time) []recurrenceEntry {
	entries := t.entries[key]
	cutoff := now.Add(-t.window)

	kept := entries[:0]
	for _, entry := range entries {
		if entry.occurredAt.After(cutoff) {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(t.entries, key)
		return nil
	}
	t.entries[key] = kept
	return kept
}

// Occurrences reports how many occurrences of the key fall inside the
// recurrence window, without recording anything.
func (t *RecurrenceTracker) Occurrences(key models.SignalKey, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pruneLocked(key, now))
}

// SweepExpired prunes every key's history and reports how many entries were
// dropped.
func (t *RecurrenceTracker) SweepExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key := range t.entries {
		before := len(t.entries[key])
		kept := t.pruneLocked(key, now)
		removed += before - len(kept)
	}
	return removed
}

// priorImpactMean is the full-window moving average of the stored scores:
// an SMA whose period spans the entire history.
func priorImpactMean(entries []recurrenceEntry) float64 {
	scores := make([]float64, len(entries))
	for i, entry := range entries {
		scores[i] = float64(entry.impactScore)
	}

	sma := trend.NewSmaWithPeriod[float64](len(scores))
	smoothed := helper.ChanToSlice(sma.Compute(helper.SliceToChan(scores)))
	if len(smoothed) == 0 {
		return 0
	}
	return smoothed[len(smoothed)-1]
}
