package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/swapfolio/swapfolio-go/internal/models"
)

func TestDedupGuard_FirstObservationIsNotDuplicate(t *testing.T) {
	guard := NewDedupGuard(testSignalsConfig())

	assert.False(t, guard.IsDuplicate(testKey(), "fp-1"))
	assert.True(t, guard.IsDuplicate(testKey(), "fp-1"))
}

func TestDedupGuard_ChangedContentPasses(t *testing.T) {
	guard := NewDedupGuard(testSignalsConfig())

	assert.False(t, guard.IsDuplicate(testKey(), "fp-1"))
	assert.False(t, guard.IsDuplicate(testKey(), "fp-2"))
	assert.True(t, guard.IsDuplicate(testKey(), "fp-2"))
}

func TestDedupGuard_WindowSlidesOnEveryObservation(t *testing.T) {
	guard := NewDedupGuard(testSignalsConfig())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return base }

	assert.False(t, guard.IsDuplicate(testKey(), "fp-1"))

	// Each sighting refreshes the timestamp, so identical content stays
	// suppressed indefinitely while it keeps arriving inside the window.
	guard.now = func() time.Time { return base.Add(9 * time.Minute) }
	assert.True(t, guard.IsDuplicate(testKey(), "fp-1"))

	guard.now = func() time.Time { return base.Add(18 * time.Minute) }
	assert.True(t, guard.IsDuplicate(testKey(), "fp-1"))
}

func TestDedupGuard_IdleWindowExpires(t *testing.T) {
	guard := NewDedupGuard(testSignalsConfig())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return base }

	assert.False(t, guard.IsDuplicate(testKey(), "fp-1"))

	guard.now = func() time.Time { return base.Add(10 * time.Minute) }
	assert.False(t, guard.IsDuplicate(testKey(), "fp-1"))
}

func TestDedupGuard_KeysAreIndependent(t *testing.T) {
	guard := NewDedupGuard(testSignalsConfig())

	other := testKey()
	other.ChainID = 137

	assert.False(t, guard.IsDuplicate(testKey(), "fp-1"))
	assert.False(t, guard.IsDuplicate(other, "fp-1"))
}

func TestDedupGuard_FingerprintIgnoresFactorOrder(t *testing.T) {
	guard := NewDedupGuard(testSignalsConfig())

	a := models.SignalObservation{
		SignalType: models.SignalTypeRisk,
		Risk:       &models.RiskFacts{Factors: []string{"mintable", "proxy"}},
		Severity:   models.SeverityWarning,
		Confidence: 0.6,
	}
	b := a
	b.Risk = &models.RiskFacts{Factors: []string{"proxy", "mintable"}}

	assert.Equal(t, guard.Fingerprint(a), guard.Fingerprint(b))
}

func TestDedupGuard_FingerprintSeesSeverityAndConfidence(t *testing.T) {
	guard := NewDedupGuard(testSignalsConfig())

	base := models.SignalObservation{
		SignalType: models.SignalTypeRisk,
		Risk:       &models.RiskFacts{Factors: []string{"mintable"}},
		Severity:   models.SeverityWarning,
		Confidence: 0.6,
	}

	hotter := base
	hotter.Severity = models.SeverityDanger
	assert.NotEqual(t, guard.Fingerprint(base), guard.Fingerprint(hotter))

	surer := base
	surer.Confidence = 0.75
	assert.NotEqual(t, guard.Fingerprint(base), guard.Fingerprint(surer))

	// Sub-cent confidence noise rounds away.
	jitter := base
	jitter.Confidence = 0.601
	assert.Equal(t, guard.Fingerprint(base), guard.Fingerprint(jitter))
}

func TestDedupGuard_FingerprintLiquidityUsesDropPct(t *testing.T) {
	guard := NewDedupGuard(testSignalsConfig())

	a := models.SignalObservation{
		SignalType: models.SignalTypeLiquidity,
		Liquidity: &models.LiquidityFacts{
			DropPct:      42.0,
			LiquidityUSD: decimal.NewFromInt(100000),
		},
		Severity:   models.SeverityWarning,
		Confidence: 0.6,
	}

	// Absolute liquidity can drift without changing what the user sees.
	b := a
	b.Liquidity = &models.LiquidityFacts{
		DropPct:      42.04,
		LiquidityUSD: decimal.NewFromInt(90000),
	}
	assert.Equal(t, guard.Fingerprint(a), guard.Fingerprint(b))

	c := a
	c.Liquidity = &models.LiquidityFacts{DropPct: 42.2}
	assert.NotEqual(t, guard.Fingerprint(a), guard.Fingerprint(c))
}

func TestDedupGuard_SweepExpired(t *testing.T) {
	guard := NewDedupGuard(testSignalsConfig())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return base }

	other := testKey()
	other.SignalType = models.SignalTypeLiquidity

	guard.IsDuplicate(testKey(), "fp-1")

	guard.now = func() time.Time { return base.Add(8 * time.Minute) }
	guard.IsDuplicate(other, "fp-2")

	removed := guard.SweepExpired(base.Add(12 * time.Minute))
	assert.Equal(t, 1, removed)

	_, _, ok := guard.Snapshot(testKey())
	assert.False(t, ok)
	_, _, ok = guard.Snapshot(other)
	assert.True(t, ok)
}
