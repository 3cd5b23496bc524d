package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SignalType identifies which upstream condition a signal describes.
type SignalType string

const (
	SignalTypeRisk      SignalType = "risk"
	SignalTypeLiquidity SignalType = "liquidity"
)

// IsValid reports whether the signal type is one of the known values.
func (st SignalType) IsValid() bool {
	return st == SignalTypeRisk || st == SignalTypeLiquidity
}

// Severity classifies how bad a detected condition is. The zero value is
// invalid so an unset severity is distinguishable from SeverityWarning.
type Severity int

const (
	SeverityWarning Severity = iota + 1
	SeverityDanger
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityWarning:  "warning",
	SeverityDanger:   "danger",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// AtLeast reports whether s is equal to or more severe than other.
func (s Severity) AtLeast(other Severity) bool {
	return s >= other
}

// HigherThan reports whether s is strictly more severe than other.
func (s Severity) HigherThan(other Severity) bool {
	return s > other
}

// Impact maps severity onto the notification impact ladder.
func (s Severity) Impact() ImpactLevel {
	switch s {
	case SeverityCritical, SeverityDanger:
		return ImpactHigh
	case SeverityWarning:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// MarshalJSON encodes the severity as its string name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its string name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity converts a severity name into its enum value.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "warning":
		return SeverityWarning, nil
	case "danger":
		return SeverityDanger, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", name)
	}
}

// ImpactLevel ranks how prominently a signal should surface to users.
type ImpactLevel int

const (
	ImpactLow ImpactLevel = iota + 1
	ImpactMedium
	ImpactHigh
)

var impactNames = map[ImpactLevel]string{
	ImpactLow:    "low",
	ImpactMedium: "medium",
	ImpactHigh:   "high",
}

func (l ImpactLevel) String() string {
	if name, ok := impactNames[l]; ok {
		return name
	}
	return fmt.Sprintf("impact(%d)", int(l))
}

// AtLeast reports whether l is equal to or higher than other.
func (l ImpactLevel) AtLeast(other ImpactLevel) bool {
	return l >= other
}

// HigherThan reports whether l is strictly higher than other.
func (l ImpactLevel) HigherThan(other ImpactLevel) bool {
	return l > other
}

// MarshalJSON encodes the impact level as its string name.
func (l ImpactLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes an impact level from its string name.
func (l *ImpactLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseImpactLevel(name)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseImpactLevel converts an impact level name into its enum value.
func ParseImpactLevel(name string) (ImpactLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low":
		return ImpactLow, nil
	case "medium":
		return ImpactMedium, nil
	case "high":
		return ImpactHigh, nil
	default:
		return 0, fmt.Errorf("unknown impact level %q", name)
	}
}

// FetchStatus reports how trustworthy an evaluation's inputs were.
type FetchStatus string

const (
	// FetchOK means the facts came from the upstream source or a fresh cache entry.
	FetchOK FetchStatus = "ok"
	// FetchDegraded means the shared cache was unreachable and the in-process
	// fallback served the evaluation.
	FetchDegraded FetchStatus = "degraded"
	// FetchUnavailable means neither the upstream nor any cache could supply
	// facts; the evaluation carries no signal.
	FetchUnavailable FetchStatus = "unavailable"
)

// Trend describes the 24h direction of a signal's impact score.
type Trend string

const (
	TrendNew        Trend = "new"
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// RiskFacts is the normalized output of the token security scanner.
type RiskFacts struct {
	Factors  []string `json:"factors"`
	Honeypot bool     `json:"honeypot"`
}

// LiquidityFacts is the normalized output of the DEX liquidity index.
// DropPct is positive when liquidity fell over the short window.
type LiquidityFacts struct {
	LiquidityUSD decimal.Decimal `json:"liquidity_usd"`
	DropPct      float64         `json:"drop_pct"`
	Volume24hUSD decimal.Decimal `json:"volume_24h_usd"`
}

// HasVolume reports whether the token traded at all in the last 24 hours.
func (f LiquidityFacts) HasVolume() bool {
	return f.Volume24hUSD.IsPositive()
}

// SignalObservation is the ephemeral result of evaluating one signal type for
// one token. It is recomputed on every poll and never persisted.
type SignalObservation struct {
	ChainID      int             `json:"chain_id"`
	TokenAddress string          `json:"token_address"`
	SignalType   SignalType      `json:"signal_type"`
	Risk         *RiskFacts      `json:"risk,omitempty"`
	Liquidity    *LiquidityFacts `json:"liquidity,omitempty"`
	HasSignal    bool            `json:"has_signal"`
	Severity     Severity        `json:"severity,omitempty"`
	Confidence   float64         `json:"confidence,omitempty"`
	ImpactScore  int             `json:"impact_score,omitempty"`
	ImpactLevel  ImpactLevel     `json:"impact_level,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Status       FetchStatus     `json:"status"`
	StatusReason string          `json:"status_reason,omitempty"`
	ObservedAt   time.Time       `json:"observed_at"`
}

// Key returns the signal-level state key for this observation.
func (o SignalObservation) Key() SignalKey {
	return SignalKey{
		ChainID:      o.ChainID,
		TokenAddress: strings.ToLower(o.TokenAddress),
		SignalType:   o.SignalType,
	}
}

// SignalKey addresses per-signal state: cooldowns, dedup fingerprints and
// recurrence records. Token addresses are normalized to lowercase.
type SignalKey struct {
	ChainID      int        `json:"chain_id"`
	TokenAddress string     `json:"token_address"`
	SignalType   SignalType `json:"signal_type"`
}

func (k SignalKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.ChainID, strings.ToLower(k.TokenAddress), k.SignalType)
}

// CooldownEntry records an active signal-level suppression window.
type CooldownEntry struct {
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Severity  Severity  `json:"severity"`
}

// Active reports whether the window still covers the given instant.
func (e CooldownEntry) Active(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// RecurrenceInfo summarizes a key's trailing 24h history. PreviousImpact is
// the mean impact score of the prior in-window occurrences, zero when none.
type RecurrenceInfo struct {
	Occurrences24h int     `json:"occurrences_24h"`
	Trend          Trend   `json:"trend"`
	IsRepeat       bool    `json:"is_repeat"`
	PreviousImpact float64 `json:"previous_impact"`
}

// AlertKey addresses notification-level state by wallet, token and signal
// type. Chain is deliberately omitted so a token escalates once per wallet
// no matter how many chains it trades on.
type AlertKey struct {
	WalletAddress string     `json:"wallet_address"`
	TokenAddress  string     `json:"token_address"`
	SignalType    SignalType `json:"signal_type"`
}

func (k AlertKey) String() string {
	return fmt.Sprintf("%s:%s:%s", strings.ToLower(k.WalletAddress), strings.ToLower(k.TokenAddress), k.SignalType)
}

// AlertState is the last state actually delivered to a wallet for a key.
// It is written only after a successful send.
type AlertState struct {
	ImpactLevel      ImpactLevel `json:"impact_level"`
	Confidence       float64     `json:"confidence"`
	LiquidityDropPct *float64    `json:"liquidity_drop_pct,omitempty"`
	LastAlertAt      time.Time   `json:"last_alert_at"`
}

// NotificationKey addresses the per-channel cooldown. Unlike AlertKey it
// includes the chain so the same token on two chains throttles separately.
type NotificationKey struct {
	WalletAddress string     `json:"wallet_address"`
	ChainID       int        `json:"chain_id"`
	TokenAddress  string     `json:"token_address"`
	SignalType    SignalType `json:"signal_type"`
}

func (k NotificationKey) String() string {
	return fmt.Sprintf("%s:%d:%s:%s", strings.ToLower(k.WalletAddress), k.ChainID, strings.ToLower(k.TokenAddress), k.SignalType)
}

// SupportedChains maps the chain ids the engine accepts to display names.
var SupportedChains = map[int]string{
	1:     "ethereum",
	10:    "optimism",
	56:    "bsc",
	137:   "polygon",
	8453:  "base",
	42161: "arbitrum",
}

// ChainName returns the display name for a supported chain id.
func ChainName(chainID int) string {
	if name, ok := SupportedChains[chainID]; ok {
		return name
	}
	return fmt.Sprintf("chain-%d", chainID)
}

// IsSupportedChain reports whether the chain id is one the engine accepts.
func IsSupportedChain(chainID int) bool {
	_, ok := SupportedChains[chainID]
	return ok
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress reports whether s looks like an EVM address.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}
