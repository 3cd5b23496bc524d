package services

import (
	"strings"
	"sync"
	"time"

	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/models"
)

// EscalationRule names which rule admitted an observation past the detector.
type EscalationRule string

const (
	RuleFirstAlert     EscalationRule = "first_alert"
	RuleLevelJump      EscalationRule = "level_jump"
	RuleConfidenceJump EscalationRule = "confidence_jump"
	RuleDropWorsened   EscalationRule = "drop_worsened"
	RuleNone           EscalationRule = "none"
)

// EscalationDecision is the detector's verdict for one observation.
type EscalationDecision struct {
	Escalate   bool
	Rule       EscalationRule
	FirstAlert bool
	Previous   *models.AlertState
}

// EscalationDetector decides whether an observation is materially worse than
// the last alert the wallet actually received for the same token and signal
// type. A wallet with no recorded alert always escalates: the first alert is
// unconditionally notify-worthy, even below the user's confidence floor.
//
// State advances only through CommitAlert, which callers invoke after a
// successful delivery. A failed send leaves the previous alert in place so
// the next observation is judged against what the user last saw.
type EscalationDetector struct {
	mu              sync.Mutex
	states          map[models.AlertKey]models.AlertState
	confidenceDelta float64
	worsenPct       float64
}

func NewEscalationDetector(cfg config.EscalationConfig) *EscalationDetector {
	confidenceDelta := cfg.ConfidenceDelta
	if confidenceDelta <= 0 {
		confidenceDelta = 0.15
	}
	worsenPct := cfg.LiquidityWorsenPct
	if worsenPct <= 0 {
		worsenPct = 10.0
	}
	return &EscalationDetector{
		states:          make(map[models.AlertKey]models.AlertState),
		confidenceDelta: confidenceDelta,
		worsenPct:       worsenPct,
	}
}

// Evaluate applies the escalation rules. minConfidence is the wallet's
// 0-100 floor, consulted only by the confidence-crossing rule.
func (d *EscalationDetector) Evaluate(walletAddress string, obs models.SignalObservation, minConfidence int) EscalationDecision {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.states[alertKeyFor(walletAddress, obs)]
	if !ok {
		return EscalationDecision{Escalate: true, Rule: RuleFirstAlert, FirstAlert: true}
	}
	prevCopy := prev

	// Rule A: the impact level jumped.
	if obs.ImpactLevel.HigherThan(prev.ImpactLevel) {
		return EscalationDecision{Escalate: true, Rule: RuleLevelJump, Previous: &prevCopy}
	}

	// Rule B: confidence rose materially and crossed the user's floor from
	// below.
	floor := float64(minConfidence) / 100.0
	if obs.Confidence-prev.Confidence >= d.confidenceDelta &&
		prev.Confidence < floor && obs.Confidence >= floor {
		return EscalationDecision{Escalate: true, Rule: RuleConfidenceJump, Previous: &prevCopy}
	}

	// Rule C: the liquidity drop deepened past the worsening threshold.
	if obs.SignalType == models.SignalTypeLiquidity && obs.Liquidity != nil && prev.LiquidityDropPct != nil {
		if obs.Liquidity.DropPct-*prev.LiquidityDropPct >= d.worsenPct {
			return EscalationDecision{Escalate: true, Rule: RuleDropWorsened, Previous: &prevCopy}
		}
	}

	return EscalationDecision{Rule: RuleNone, Previous: &prevCopy}
}

// CommitAlert overwrites the wallet's alert state after a successful
// delivery.
func (d *EscalationDetector) CommitAlert(walletAddress string, obs models.SignalObservation, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := models.AlertState{
		ImpactLevel: obs.ImpactLevel,
		Confidence:  obs.Confidence,
		LastAlertAt: now,
	}
	if obs.SignalType == models.SignalTypeLiquidity && obs.Liquidity != nil {
		drop := obs.Liquidity.DropPct
		state.LiquidityDropPct = &drop
	}
	d.states[alertKeyFor(walletAddress, obs)] = state
}

// LastAlert returns the recorded alert state for a key.
func (d *EscalationDetector) LastAlert(key models.AlertKey) (models.AlertState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.states[key]
	return state, ok
}

// SweepIdle removes alert states whose last delivery is older than maxIdle
// and reports how many were dropped.
func (d *EscalationDetector) SweepIdle(now time.Time, maxIdle time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for key, state := range d.states {
		if now.Sub(state.LastAlertAt) > maxIdle {
			delete(d.states, key)
			removed++
		}
	}
	return removed
}

func alertKeyFor(walletAddress string, obs models.SignalObservation) models.AlertKey {
	return models.AlertKey{
		WalletAddress: strings.ToLower(walletAddress),
		TokenAddress:  strings.ToLower(obs.TokenAddress),
		SignalType:    obs.SignalType,
	}
}
