package services

import (
	"sync"
	"time"

	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/models"
)

// CooldownTracker suppresses repeat emissions for a signal key while a
// severity-proportional window is active. More severe findings get shorter
// windows so a worsening token can re-alert sooner.
type CooldownTracker struct {
	mu      sync.Mutex
	entries map[models.SignalKey]models.CooldownEntry
	windows map[models.Severity]time.Duration
	now     func() time.Time
}

func NewCooldownTracker(cfg config.SignalsConfig) *CooldownTracker {
	return &CooldownTracker{
		entries: make(map[models.SignalKey]models.CooldownEntry),
		windows: map[models.Severity]time.Duration{
			models.SeverityCritical: time.Duration(cfg.CooldownCriticalMinutes) * time.Minute,
			models.SeverityDanger:   time.Duration(cfg.CooldownDangerMinutes) * time.Minute,
			models.SeverityWarning:  time.Duration(cfg.CooldownWarningMinutes) * time.Minute,
		},
		now: time.Now,
	}
}

func (t *CooldownTracker) window(severity models.Severity) time.Duration {
	if w, ok := t.windows[severity]; ok && w > 0 {
		return w
	}
	return time.Hour
}

// CheckAndStart atomically decides whether an observation may pass. With no
// active window it starts one and admits. With an active window it admits
// only a strictly higher severity, replacing the window (reset on
// escalation). Two concurrent calls for the same key cannot both be
// admitted by the same window.
func (t *CooldownTracker) CheckAndStart(key models.SignalKey, severity models.Severity) (bool, models.CooldownEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[key]; ok && entry.Active(t.now()) {
		if !severity.HigherThan(entry.Severity) {
			return false, entry
		}
	}
	return true, t.startLocked(key, severity)
}

// IsActive returns the current window for a key, if one is still running.
func (t *CooldownTracker) IsActive(key models.SignalKey) (models.CooldownEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok || !entry.Active(t.now()) {
		return models.CooldownEntry{}, false
	}
	return entry, true
}

// Start opens a fresh window for the key, overwriting any previous entry.
func (t *CooldownTracker) Start(key models.SignalKey, severity models.Severity) models.CooldownEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLocked(key, severity)
}

// Reset replaces the key's window after an escalation. The old window is
// discarded, never extended.
func (t *CooldownTracker) Reset(key models.SignalKey, severity models.Severity) models.CooldownEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLocked(key, severity)
}

func (t *CooldownTracker) startLocked(key models.SignalKey, severity models.Severity) models.CooldownEntry {
	now := t.now()
	entry := models.CooldownEntry{
		StartedAt: now,
		ExpiresAt: now.Add(t.window(severity)),
		Severity:  severity,
	}
	t.entries[key] = entry
	return entry
}

// Snapshot returns the raw entry for the debug endpoint, expired or not.
func (t *CooldownTracker) Snapshot(key models.SignalKey) (models.CooldownEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	return entry, ok
}

// SweepExpired removes windows that ended before now and reports how many
// were dropped.
func (t *CooldownTracker) SweepExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, entry := range t.entries {
		if !entry.Active(now) {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys, expired entries included.
func (t *CooldownTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
