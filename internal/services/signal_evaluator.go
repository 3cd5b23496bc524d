package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/swapfolio/swapfolio-go/internal/config"
	"github.com/swapfolio/swapfolio-go/internal/metrics"
	"github.com/swapfolio/swapfolio-go/internal/models"
	"github.com/swapfolio/swapfolio-go/internal/telemetry"
	"github.com/swapfolio/swapfolio-go/internal/utils"
	"github.com/swapfolio/swapfolio-go/pkg/interfaces"
)

// RiskSource fetches token security facts for one (chain, token) pair.
// found=false means the upstream has never indexed the token.
type RiskSource interface {
	GetTokenSecurity(ctx context.Context, chainID int, tokenAddress string) (*models.RiskFacts, bool, error)
}

// LiquiditySource fetches the current liquidity snapshot for one
// (chain, token) pair. found=false means no tracked pool exists.
type LiquiditySource interface {
	GetLiquiditySnapshot(ctx context.Context, chainID int, tokenAddress string) (*models.LiquidityFacts, bool, error)
}

// EvaluationResult is the outcome of running one observation through the
// full pipeline: detection, suppression, recurrence, escalation and,
// when everything passes, notification.
type EvaluationResult struct {
	Observation  models.SignalObservation `json:"observation"`
	Suppressed   bool                     `json:"suppressed"`
	SuppressedBy string                   `json:"suppressed_by,omitempty"`
	Recurrence   *models.RecurrenceInfo   `json:"recurrence,omitempty"`
	Escalation   *EscalationDecision      `json:"escalation,omitempty"`
	Notification *NotificationResult      `json:"notification,omitempty"`
}

// cachedFacts is the envelope stored in the result cache. Found=false
// memoizes "the upstream knows nothing about this token" so negative
// lookups do not hammer the upstream either.
type cachedFacts struct {
	Found     bool                   `json:"found"`
	Risk      *models.RiskFacts      `json:"risk,omitempty"`
	Liquidity *models.LiquidityFacts `json:"liquidity,omitempty"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// SignalEvaluator runs the signal pipeline. Upstream fetches go through a
// circuit breaker and a fetch-through result cache; an unreachable Redis
// degrades to the in-process mirror instead of failing the evaluation.
// Upstream or cache trouble never returns an error from an evaluation,
// it is reported through the observation's fetch status.
type SignalEvaluator struct {
	risk          RiskSource
	liquidity     LiquiditySource
	cache         interfaces.ResultCache
	fallback      interfaces.ResultCache
	subscriptions SubscriptionStore
	escalations   *EscalationDetector
	notifier      *NotificationTrigger

	scorer           *ImpactScorer
	dedup            *DedupGuard
	cooldowns        *CooldownTracker
	recurrence       *RecurrenceTracker
	riskBreaker      *CircuitBreaker
	liquidityBreaker *CircuitBreaker

	cacheTTL      time.Duration
	alertIdleDays int
	logger        *logrus.Logger
	tracer        trace.Tracer

	now func() time.Time
}

// NewSignalEvaluator wires the pipeline. The escalation detector is shared
// with the notification trigger so alert state commits after delivery land
// where the next evaluation reads them. resultCache may be nil to run
// memory-only; fallbackCache should be the in-process mirror.
func NewSignalEvaluator(
	riskSource RiskSource,
	liquiditySource LiquiditySource,
	resultCache interfaces.ResultCache,
	fallbackCache interfaces.ResultCache,
	subscriptions SubscriptionStore,
	escalations *EscalationDetector,
	notifier *NotificationTrigger,
	cfg *config.Config,
	logger *logrus.Logger,
) *SignalEvaluator {
	idleDays := cfg.Escalation.AlertIdleDays
	if idleDays <= 0 {
		idleDays = 7
	}

	return &SignalEvaluator{
		risk:             riskSource,
		liquidity:        liquiditySource,
		cache:            resultCache,
		fallback:         fallbackCache,
		subscriptions:    subscriptions,
		escalations:      escalations,
		notifier:         notifier,
		scorer:           NewImpactScorer(),
		dedup:            NewDedupGuard(cfg.Signals),
		cooldowns:        NewCooldownTracker(cfg.Signals),
		recurrence:       NewRecurrenceTracker(cfg.Signals),
		riskBreaker:      NewCircuitBreaker("security", cfg.Upstream.Breaker, logger),
		liquidityBreaker: NewCircuitBreaker("liquidity", cfg.Upstream.Breaker, logger),
		cacheTTL:         cfg.Cache.TTL(),
		alertIdleDays:    idleDays,
		logger:           logger,
		tracer:           telemetry.Tracer("signal-evaluator"),
		now:              time.Now,
	}
}

// EvaluateToken runs both signal types for one holding, risk first.
func (e *SignalEvaluator) EvaluateToken(ctx context.Context, walletAddress string, chainID int, tokenAddress string) ([]EvaluationResult, error) {
	results := make([]EvaluationResult, 0, 2)
	for _, signalType := range []models.SignalType{models.SignalTypeRisk, models.SignalTypeLiquidity} {
		result, err := e.EvaluateSignal(ctx, walletAddress, chainID, tokenAddress, signalType)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// EvaluateSignal runs one signal type through the full pipeline for the
// given wallet. The error return is reserved for invalid input.
func (e *SignalEvaluator) EvaluateSignal(ctx context.Context, walletAddress string, chainID int, tokenAddress string, signalType models.SignalType) (EvaluationResult, error) {
	if !models.IsValidAddress(walletAddress) {
		return EvaluationResult{}, utils.NewValidationErrorf("invalid wallet address %q", walletAddress)
	}
	if err := validateSignalTarget(chainID, tokenAddress, signalType); err != nil {
		return EvaluationResult{}, err
	}

	ctx, span := e.tracer.Start(ctx, "signal.evaluate", trace.WithAttributes(
		attribute.String("signal.type", string(signalType)),
		attribute.Int("chain.id", chainID),
		attribute.String("token.address", strings.ToLower(tokenAddress)),
	))
	defer span.End()

	obs := e.observe(ctx, chainID, tokenAddress, signalType)
	metrics.EvaluationsTotal.WithLabelValues(string(signalType), string(obs.Status)).Inc()

	result := EvaluationResult{Observation: obs}
	if !obs.HasSignal {
		span.SetAttributes(attribute.Bool("signal.detected", false))
		return result, nil
	}
	metrics.SignalsDetected.WithLabelValues(string(signalType), obs.Severity.String()).Inc()
	span.SetAttributes(
		attribute.Bool("signal.detected", true),
		attribute.String("signal.severity", obs.Severity.String()),
	)

	key := obs.Key()
	if e.dedup.IsDuplicate(key, e.dedup.Fingerprint(obs)) {
		return e.suppress(span, result, key, "duplicate"), nil
	}
	if admitted, _ := e.cooldowns.CheckAndStart(key, obs.Severity); !admitted {
		return e.suppress(span, result, key, "cooldown"), nil
	}

	info := e.recurrence.GetInfo(key, obs.ImpactScore)
	e.recurrence.RecordOccurrence(key, obs.Severity, obs.ImpactScore)
	result.Recurrence = &info

	decision := e.escalations.Evaluate(walletAddress, obs, e.minConfidenceFor(ctx, walletAddress))
	metrics.EscalationsTotal.WithLabelValues(string(decision.Rule)).Inc()
	span.SetAttributes(attribute.String("escalation.rule", string(decision.Rule)))
	result.Escalation = &decision
	if !decision.Escalate {
		e.logger.WithFields(logrus.Fields{
			"key":    key.String(),
			"wallet": strings.ToLower(walletAddress),
		}).Debug("Signal repeated without escalation")
		return result, nil
	}

	notification := e.notifier.Notify(ctx, walletAddress, obs, decision, info)
	result.Notification = &notification
	return result, nil
}

// Observe fetches and scores one signal type without touching dedup,
// cooldown, or alert state. It backs the read-only signal endpoint.
func (e *SignalEvaluator) Observe(ctx context.Context, chainID int, tokenAddress string, signalType models.SignalType) (models.SignalObservation, error) {
	if err := validateSignalTarget(chainID, tokenAddress, signalType); err != nil {
		return models.SignalObservation{}, err
	}

	ctx, span := e.tracer.Start(ctx, "signal.observe", trace.WithAttributes(
		attribute.String("signal.type", string(signalType)),
		attribute.Int("chain.id", chainID),
	))
	defer span.End()

	return e.observe(ctx, chainID, tokenAddress, signalType), nil
}

func (e *SignalEvaluator) suppress(span trace.Span, result EvaluationResult, key models.SignalKey, stage string) EvaluationResult {
	metrics.SignalsSuppressed.WithLabelValues(stage).Inc()
	span.SetAttributes(attribute.String("signal.suppressed_by", stage))
	e.logger.WithFields(logrus.Fields{
		"key":   key.String(),
		"stage": stage,
	}).Debug("Signal suppressed")

	result.Suppressed = true
	result.SuppressedBy = stage
	return result
}

// minConfidenceFor loads the wallet's confidence floor for the escalation
// check. A missing subscription means no floor; the notification gates
// reject the delivery anyway.
func (e *SignalEvaluator) minConfidenceFor(ctx context.Context, walletAddress string) int {
	sub, err := e.subscriptions.GetByWallet(ctx, walletAddress)
	if err != nil || sub == nil {
		return 0
	}
	return sub.MinConfidence
}

func (e *SignalEvaluator) observe(ctx context.Context, chainID int, tokenAddress string, signalType models.SignalType) models.SignalObservation {
	obs := models.SignalObservation{
		ChainID:      chainID,
		TokenAddress: strings.ToLower(tokenAddress),
		SignalType:   signalType,
		Status:       models.FetchOK,
		ObservedAt:   e.now(),
	}

	env, status, reason := e.fetch(ctx, obs.Key())
	obs.Status = status
	obs.StatusReason = reason
	if status == models.FetchUnavailable || !env.Found {
		return obs
	}

	switch signalType {
	case models.SignalTypeRisk:
		if env.Risk == nil {
			return obs
		}
		obs.Risk = env.Risk
		if scored, ok := e.scorer.ScoreRisk(*env.Risk); ok {
			applyScore(&obs, scored)
		}
	case models.SignalTypeLiquidity:
		if env.Liquidity == nil {
			return obs
		}
		obs.Liquidity = env.Liquidity
		if scored, ok := e.scorer.ScoreLiquidity(*env.Liquidity); ok {
			applyScore(&obs, scored)
		}
	}
	return obs
}

func applyScore(obs *models.SignalObservation, scored ScoredSignal) {
	obs.HasSignal = true
	obs.Severity = scored.Severity
	obs.Confidence = scored.Confidence
	obs.ImpactScore = scored.ImpactScore
	obs.ImpactLevel = scored.ImpactLevel
	obs.Reason = scored.Reason
}

// fetch resolves the facts for one signal key: fresh cache entry first,
// then the upstream behind its breaker, memoizing whatever comes back.
func (e *SignalEvaluator) fetch(ctx context.Context, key models.SignalKey) (cachedFacts, models.FetchStatus, string) {
	if env, status, reason, ok := e.fromCache(ctx, key); ok {
		return env, status, reason
	}

	env, err := e.fetchUpstream(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			metrics.UpstreamRequests.WithLabelValues(upstreamLabel(key.SignalType), "breaker_open").Inc()
		}
		e.logger.WithError(err).WithField("key", key.String()).Warn("Upstream fetch failed with no cached facts")
		return cachedFacts{}, models.FetchUnavailable, "upstream fetch failed: " + err.Error()
	}

	payload, merr := json.Marshal(env)
	if merr != nil {
		return env, models.FetchOK, ""
	}
	if e.cacheSet(ctx, key.String(), payload) {
		return env, models.FetchDegraded, "result cache degraded to in-process fallback"
	}
	return env, models.FetchOK, ""
}

func (e *SignalEvaluator) fetchUpstream(ctx context.Context, key models.SignalKey) (cachedFacts, error) {
	env := cachedFacts{FetchedAt: e.now()}

	switch key.SignalType {
	case models.SignalTypeRisk:
		err := e.riskBreaker.Execute(ctx, func(ctx context.Context) error {
			facts, found, ferr := e.risk.GetTokenSecurity(ctx, key.ChainID, key.TokenAddress)
			if ferr != nil {
				return ferr
			}
			env.Found, env.Risk = found, facts
			return nil
		})
		return env, err

	case models.SignalTypeLiquidity:
		err := e.liquidityBreaker.Execute(ctx, func(ctx context.Context) error {
			facts, found, ferr := e.liquidity.GetLiquiditySnapshot(ctx, key.ChainID, key.TokenAddress)
			if ferr != nil {
				return ferr
			}
			env.Found, env.Liquidity = found, facts
			return nil
		})
		return env, err

	default:
		return env, utils.NewValidationErrorf("unknown signal type %q", key.SignalType)
	}
}

func (e *SignalEvaluator) fromCache(ctx context.Context, key models.SignalKey) (cachedFacts, models.FetchStatus, string, bool) {
	data, found, degraded := e.cacheGet(ctx, key.String())
	if !found {
		return cachedFacts{}, "", "", false
	}

	var env cachedFacts
	if err := json.Unmarshal(data, &env); err != nil {
		e.logger.WithError(err).WithField("key", key.String()).Warn("Discarding undecodable result cache entry")
		return cachedFacts{}, "", "", false
	}

	if degraded {
		return env, models.FetchDegraded, "served from in-process fallback cache", true
	}
	return env, models.FetchOK, "", true
}

// cacheGet tries the shared cache first and falls back to the in-process
// mirror on transport errors. The third return reports that fallback.
func (e *SignalEvaluator) cacheGet(ctx context.Context, key string) ([]byte, bool, bool) {
	if e.cache == nil {
		if e.fallback == nil {
			return nil, false, false
		}
		data, found, _ := e.fallback.Get(ctx, key)
		return data, found, false
	}

	data, found, err := e.cache.Get(ctx, key)
	if err == nil {
		return data, found, false
	}

	e.logger.WithError(err).Warn("Result cache degraded to in-process fallback")
	if e.fallback == nil {
		return nil, false, true
	}
	data, found, _ = e.fallback.Get(ctx, key)
	return data, found, true
}

// cacheSet mirrors the payload into the in-process cache first so the
// mirror stays warm, then writes through to the shared cache. It returns
// true when the shared cache write failed.
func (e *SignalEvaluator) cacheSet(ctx context.Context, key string, payload []byte) bool {
	if e.fallback != nil {
		_ = e.fallback.Set(ctx, key, payload, e.cacheTTL)
	}
	if e.cache == nil {
		return false
	}
	return e.cache.Set(ctx, key, payload, e.cacheTTL) != nil
}

// Sweep drops expired entries from every in-memory store the pipeline
// owns and returns the removed counts keyed by store name.
func (e *SignalEvaluator) Sweep(now time.Time) map[string]int {
	idle := time.Duration(e.alertIdleDays) * 24 * time.Hour
	return map[string]int{
		"cooldown":              e.cooldowns.SweepExpired(now),
		"dedup":                 e.dedup.SweepExpired(now),
		"recurrence":            e.recurrence.SweepExpired(now),
		"alert_state":           e.escalations.SweepIdle(now, idle),
		"notification_cooldown": e.notifier.SweepCooldowns(now),
	}
}

// BreakerStats exposes the upstream breaker counters for the status
// endpoint.
func (e *SignalEvaluator) BreakerStats() []BreakerStats {
	return []BreakerStats{
		e.riskBreaker.Stats(),
		e.liquidityBreaker.Stats(),
	}
}

// SignalDebugState is the admin view of one signal key's pipeline state.
type SignalDebugState struct {
	Key              models.SignalKey      `json:"key"`
	Cooldown         *models.CooldownEntry `json:"cooldown,omitempty"`
	DedupFingerprint string                `json:"dedup_fingerprint,omitempty"`
	DedupRecordedAt  *time.Time            `json:"dedup_recorded_at,omitempty"`
	Occurrences24h   int                   `json:"occurrences_24h"`
}

// DebugState snapshots the cooldown, dedup, and recurrence state for one
// signal key. Expired cooldowns still show until the sweeper removes them.
func (e *SignalEvaluator) DebugState(chainID int, tokenAddress string, signalType models.SignalType) (SignalDebugState, error) {
	if err := validateSignalTarget(chainID, tokenAddress, signalType); err != nil {
		return SignalDebugState{}, err
	}

	key := models.SignalKey{
		ChainID:      chainID,
		TokenAddress: strings.ToLower(tokenAddress),
		SignalType:   signalType,
	}
	state := SignalDebugState{Key: key}

	if entry, ok := e.cooldowns.Snapshot(key); ok {
		state.Cooldown = &entry
	}
	if fingerprint, recordedAt, ok := e.dedup.Snapshot(key); ok {
		state.DedupFingerprint = fingerprint
		state.DedupRecordedAt = &recordedAt
	}
	state.Occurrences24h = e.recurrence.Occurrences(key, e.now())

	return state, nil
}

func validateSignalTarget(chainID int, tokenAddress string, signalType models.SignalType) error {
	if !models.IsSupportedChain(chainID) {
		return utils.NewValidationErrorf("unsupported chain id %d", chainID)
	}
	if !models.IsValidAddress(tokenAddress) {
		return utils.NewValidationErrorf("invalid token address %q", tokenAddress)
	}
	if !signalType.IsValid() {
		return utils.NewValidationErrorf("unknown signal type %q", signalType)
	}
	return nil
}

func upstreamLabel(signalType models.SignalType) string {
	if signalType == models.SignalTypeRisk {
		return "security"
	}
	return "liquidity"
}
