package services

import (
	"fmt"
	"math"

	"github.com/swapfolio/swapfolio-go/internal/models"
)

// ownershipFactors are the contract-control flags where the deployer retains
// power over holder balances. Their presence raises both confidence and
// score beyond the plain factor count.
var ownershipFactors = map[string]bool{
	"owner_change_balance":    true,
	"can_take_back_ownership": true,
	"hidden_owner":            true,
}

const (
	baseConfidence = 0.5
	maxConfidence  = 0.95
)

// ScoredSignal is the scorer's verdict for one set of facts.
type ScoredSignal struct {
	Severity    models.Severity
	Confidence  float64
	ImpactScore int
	ImpactLevel models.ImpactLevel
	Reason      string
}

// ImpactScorer derives severity, confidence and a 0-100 impact score from
// normalized upstream facts. Pure computation: no clocks, no state, same
// facts always produce the same verdict.
type ImpactScorer struct{}

func NewImpactScorer() *ImpactScorer {
	return &ImpactScorer{}
}

// ScoreRisk evaluates contract risk facts. The second return is false when
// the facts carry nothing alarming and no signal should be raised.
func (s *ImpactScorer) ScoreRisk(facts models.RiskFacts) (ScoredSignal, bool) {
	count := len(facts.Factors)
	if count == 0 && !facts.Honeypot {
		return ScoredSignal{}, false
	}

	hasOwnership := false
	for _, factor := range facts.Factors {
		if ownershipFactors[factor] {
			hasOwnership = true
			break
		}
	}

	confidence := baseConfidence
	if facts.Honeypot {
		confidence += 0.40
	}
	switch {
	case count >= 5:
		confidence += 0.25
	case count >= 3:
		confidence += 0.20
	case count >= 1:
		confidence += 0.10
	}
	if hasOwnership {
		confidence += 0.10
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	var severity models.Severity
	switch {
	case facts.Honeypot || count >= 5:
		severity = models.SeverityCritical
	case count >= 3:
		severity = models.SeverityDanger
	default:
		severity = models.SeverityWarning
	}

	score := 20
	if facts.Honeypot {
		score += 40
	}
	factorPoints := 6 * count
	if factorPoints > 30 {
		factorPoints = 30
	}
	score += factorPoints
	if hasOwnership {
		score += 10
	}
	if score > 100 {
		score = 100
	}

	return ScoredSignal{
		Severity:    severity,
		Confidence:  confidence,
		ImpactScore: score,
		ImpactLevel: severity.Impact(),
		Reason:      riskReason(facts, count),
	}, true
}

// ScoreLiquidity evaluates a liquidity snapshot. Drops under 30% are normal
// market movement and raise no signal.
func (s *ImpactScorer) ScoreLiquidity(facts models.LiquidityFacts) (ScoredSignal, bool) {
	if facts.DropPct < 30 {
		return ScoredSignal{}, false
	}

	confidence := baseConfidence
	switch {
	case facts.DropPct >= 50:
		confidence += 0.20
	case facts.DropPct >= 40:
		confidence += 0.15
	default:
		confidence += 0.10
	}
	// Real trading volume means the drop is observed by market activity,
	// not an artifact of a dead pool.
	if facts.HasVolume() {
		confidence += 0.15
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	var severity models.Severity
	switch {
	case facts.DropPct >= 65:
		severity = models.SeverityCritical
	case facts.DropPct >= 45:
		severity = models.SeverityDanger
	default:
		severity = models.SeverityWarning
	}

	score := int(math.Round(facts.DropPct * 1.4))
	if score > 100 {
		score = 100
	}

	return ScoredSignal{
		Severity:    severity,
		Confidence:  confidence,
		ImpactScore: score,
		ImpactLevel: severity.Impact(),
		Reason:      fmt.Sprintf("liquidity down %.1f%% over the last hour", facts.DropPct),
	}, true
}

func riskReason(facts models.RiskFacts, count int) string {
	if facts.Honeypot {
		switch count {
		case 0:
			return "honeypot flagged"
		case 1:
			return "honeypot flagged with 1 other risk factor"
		default:
			return fmt.Sprintf("honeypot flagged with %d other risk factors", count)
		}
	}
	if count == 1 {
		return fmt.Sprintf("risk factor detected: %s", facts.Factors[0])
	}
	return fmt.Sprintf("%d risk factors detected", count)
}
