package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/models"
)

type dedupEntry struct {
	fingerprint string
	seenAt      time.Time
}

// DedupGuard suppresses observations whose content is identical to the last
// one seen for the key. It exists because cooldown windows can expire while
// a token's state has not changed at all; without the guard the same facts
// would re-fire and carry no new information.
type DedupGuard struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[models.SignalKey]dedupEntry
	now     func() time.Time
}

func NewDedupGuard(cfg config.SignalsConfig) *DedupGuard {
	window := time.Duration(cfg.DedupWindowMinutes) * time.Minute
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &DedupGuard{
		window:  window,
		entries: make(map[models.SignalKey]dedupEntry),
		now:     time.Now,
	}
}

// IsDuplicate reports whether fingerprint matches the one stored for the key
// inside the window, and records the fingerprint with a fresh timestamp in
// the same critical section. Two concurrent identical observations cannot
// both come back false.
func (g *DedupGuard) IsDuplicate(key models.SignalKey, fingerprint string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	prev, ok := g.entries[key]
	dup := ok && prev.fingerprint == fingerprint && now.Sub(prev.seenAt) < g.window
	g.entries[key] = dedupEntry{fingerprint: fingerprint, seenAt: now}
	return dup
}

// Fingerprint condenses what the user would perceive from an observation:
// the sorted factor list (risk) or the drop percentage at one decimal
// (liquidity), the severity name, and confidence at two decimals.
func (g *DedupGuard) Fingerprint(obs models.SignalObservation) string {
	var payload string
	switch obs.SignalType {
	case models.SignalTypeRisk:
		var factors []string
		if obs.Risk != nil {
			factors = append(factors, obs.Risk.Factors...)
		}
		sort.Strings(factors)
		payload = strings.Join(factors, ",")
	case models.SignalTypeLiquidity:
		if obs.Liquidity != nil {
			payload = fmt.Sprintf("%.1f", obs.Liquidity.DropPct)
		}
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.2f", payload, obs.Severity, obs.Confidence)))
	return hex.EncodeToString(sum[:])
}

// Snapshot returns the stored fingerprint and when it was seen.
func (g *DedupGuard) Snapshot(key models.SignalKey) (string, time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[key]
	return entry.fingerprint, entry.seenAt, ok
}

// SweepExpired removes fingerprints older than the window and reports how
// many were dropped.
func (g *DedupGuard) SweepExpired(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, entry := range g.entries {
		if now.Sub(entry.seenAt) >= g.window {
			delete(g.entries, key)
			removed++
		}
	}
	return removed
}
